package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/scholarstack/scholarstack/backend/internal/admission"
	"github.com/scholarstack/scholarstack/backend/internal/ai"
	"github.com/scholarstack/scholarstack/backend/internal/blob"
	"github.com/scholarstack/scholarstack/backend/internal/catalog"
	"github.com/scholarstack/scholarstack/backend/internal/claims"
	"github.com/scholarstack/scholarstack/backend/internal/store"
)

const userIDContextKey = "scholarstack_user_id"

var (
	errMissingTokenManager = errors.New("token manager dependency required")
	errMissingPipeline     = errors.New("admission pipeline dependency required")
	errMissingCatalog      = errors.New("catalog service dependency required")
	errMissingResolver     = errors.New("claim resolver dependency required")
	errMissingStore        = errors.New("store dependency required")
	errMissingBlobs        = errors.New("blob store dependency required")
)

// TokenManager issues and validates the bearer tokens accepted by the
// protected routes.
type TokenManager interface {
	IssueToken(subject string) (string, int64, error)
	ValidateToken(token string) (string, error)
}

// Dependencies wires the HTTP layer to the domain services.
type Dependencies struct {
	TokenManager   TokenManager
	Pipeline       *admission.Pipeline
	CatalogService *catalog.Service
	ClaimResolver  *claims.Resolver
	Store          store.Store
	Blobs          blob.Store
	// Artifacts is optional; when nil, published entries carry no study
	// artifacts beyond the quality assessment.
	Artifacts ai.ArtifactGenerator
	Logger    *zap.Logger
	// DevTokenMint exposes POST /auth/token for local deployments that
	// have no identity provider in front of the API.
	DevTokenMint bool
}

// NewHTTPHandler builds the gin router serving the catalog API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.Pipeline == nil {
		return nil, errMissingPipeline
	}
	if deps.CatalogService == nil {
		return nil, errMissingCatalog
	}
	if deps.ClaimResolver == nil {
		return nil, errMissingResolver
	}
	if deps.Store == nil {
		return nil, errMissingStore
	}
	if deps.Blobs == nil {
		return nil, errMissingBlobs
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:    deps.TokenManager,
		pipeline:  deps.Pipeline,
		catalog:   deps.CatalogService,
		resolver:  deps.ClaimResolver,
		store:     deps.Store,
		blobs:     deps.Blobs,
		artifacts: deps.Artifacts,
		logger:    logger,
	}

	if deps.DevTokenMint {
		router.POST("/auth/token", handler.handleMintToken)
	}

	router.GET("/notes", handler.handleListEntries)
	router.GET("/notes/:id", handler.handleEntryByID)
	router.GET("/users/:id", handler.handleProfile)
	router.GET("/users/:id/notes", handler.handleEntriesByUploader)
	router.GET("/users/:id/points", handler.handlePointHistory)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/notes/verify", handler.handleVerify)
	protected.POST("/notes/publish", handler.handlePublish)
	protected.POST("/notes/:id/claim", handler.handleClaim)
	protected.POST("/notes/:id/bookmark", handler.handleBookmark(true))
	protected.DELETE("/notes/:id/bookmark", handler.handleBookmark(false))
	protected.GET("/bookmarks", handler.handleBookmarkedEntries)
	protected.POST("/users/:id/follow", handler.handleFollow(true))
	protected.DELETE("/users/:id/follow", handler.handleFollow(false))

	return router, nil
}

type httpHandler struct {
	tokens    TokenManager
	pipeline  *admission.Pipeline
	catalog   *catalog.Service
	resolver  *claims.Resolver
	store     store.Store
	blobs     blob.Store
	artifacts ai.ArtifactGenerator
	logger    *zap.Logger
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	subject, err := h.tokens.ValidateToken(header[len(prefix):])
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	c.Set(userIDContextKey, subject)
	c.Next()
}
