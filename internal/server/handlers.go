package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/scholarstack/scholarstack/backend/internal/admission"
	"github.com/scholarstack/scholarstack/backend/internal/catalog"
	"github.com/scholarstack/scholarstack/backend/internal/claims"
	"github.com/scholarstack/scholarstack/backend/internal/store"
	"github.com/scholarstack/scholarstack/backend/internal/users"
)

type mintTokenRequestPayload struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

type mintTokenResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// handleMintToken trades a user identity for a bearer token. It is
// registered only when dev token minting is enabled and stands in for
// the identity provider a real deployment puts in front of the API.
func (h *httpHandler) handleMintToken(c *gin.Context) {
	var request mintTokenRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.UserID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	profile := &users.Profile{
		UserID:      strings.TrimSpace(request.UserID),
		Email:       strings.TrimSpace(request.Email),
		DisplayName: strings.TrimSpace(request.DisplayName),
		Role:        "student",
	}
	if err := h.store.SaveProfile(c.Request.Context(), profile); err != nil {
		h.logger.Error("failed to save profile", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "profile_save_failed"})
		return
	}

	token, expiresIn, err := h.tokens.IssueToken(profile.UserID)
	if err != nil {
		h.logger.Error("failed to issue token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, mintTokenResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

type uploadRequestPayload struct {
	Title         string   `json:"title"`
	Subject       string   `json:"subject"`
	Filename      string   `json:"filename"`
	ContentType   string   `json:"content_type"`
	ContentBase64 string   `json:"content_base64"`
	Tags          []string `json:"tags"`
	CoAuthorIDs   []string `json:"co_author_ids"`
}

func (p uploadRequestPayload) upload() (admission.Upload, []byte, error) {
	if strings.TrimSpace(p.Title) == "" {
		return admission.Upload{}, nil, errors.New("title is required")
	}
	if strings.TrimSpace(p.Filename) == "" {
		return admission.Upload{}, nil, errors.New("filename is required")
	}

	raw, err := base64.StdEncoding.DecodeString(p.ContentBase64)
	if err != nil {
		return admission.Upload{}, nil, errors.New("content_base64 is not valid base64")
	}
	if len(raw) == 0 {
		return admission.Upload{}, nil, errors.New("content_base64 is required")
	}

	isImage := strings.HasPrefix(p.ContentType, "image/")
	upload := admission.Upload{
		Title:    strings.TrimSpace(p.Title),
		Subject:  strings.TrimSpace(p.Subject),
		Filename: strings.TrimSpace(p.Filename),
		MIME:     p.ContentType,
		IsImage:  isImage,
	}
	if isImage {
		upload.Raw = raw
	}
	return upload, raw, nil
}

type outcomePayload struct {
	Decision      string               `json:"decision"`
	Stage         string               `json:"stage"`
	Reason        string               `json:"reason,omitempty"`
	Fingerprint   string               `json:"fingerprint,omitempty"`
	Duplicate     *duplicateRefPayload `json:"duplicate,omitempty"`
	Quality       *qualityScorePayload `json:"quality,omitempty"`
	SuggestedTags []string             `json:"suggested_tags,omitempty"`
}

type duplicateRefPayload struct {
	EntryID    string `json:"entry_id"`
	SerialCode string `json:"serial_code"`
	Title      string `json:"title"`
	UploaderID string `json:"uploader_id"`
}

type qualityScorePayload struct {
	Score        int    `json:"score"`
	Clarity      string `json:"clarity"`
	Completeness string `json:"completeness"`
	Relevance    string `json:"relevance"`
	Legibility   string `json:"legibility"`
}

func newOutcomePayload(outcome admission.Outcome) outcomePayload {
	payload := outcomePayload{
		Decision:    string(outcome.Decision),
		Stage:       string(outcome.Stage),
		Reason:      outcome.Reason,
		Fingerprint: outcome.Fingerprint,
	}
	if outcome.Duplicate != nil {
		payload.Duplicate = &duplicateRefPayload{
			EntryID:    outcome.Duplicate.EntryID,
			SerialCode: outcome.Duplicate.SerialCode,
			Title:      outcome.Duplicate.Title,
			UploaderID: outcome.Duplicate.UploaderID,
		}
	}
	if outcome.Admitted() {
		payload.Quality = &qualityScorePayload{
			Score:        outcome.Quality.Score,
			Clarity:      outcome.Quality.Clarity,
			Completeness: outcome.Quality.Completeness,
			Relevance:    outcome.Quality.Relevance,
			Legibility:   outcome.Quality.Legibility,
		}
		payload.SuggestedTags = outcome.SuggestedTags
	}
	return payload
}

func (h *httpHandler) handleVerify(c *gin.Context) {
	var request uploadRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	upload, _, err := request.upload()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome := h.pipeline.Run(c.Request.Context(), upload)
	status := http.StatusOK
	if outcome.Retryable() {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, newOutcomePayload(outcome))
}

type entryPayload struct {
	EntryID           string          `json:"entry_id"`
	SerialCode        string          `json:"serial_code"`
	Title             string          `json:"title"`
	Subject           string          `json:"subject"`
	Tags              []string        `json:"tags"`
	UploaderID        string          `json:"uploader_id"`
	UploaderName      string          `json:"uploader_name"`
	Contributors      []string        `json:"contributors"`
	FileURL           string          `json:"file_url"`
	FileType          string          `json:"file_type"`
	QualityScore      int             `json:"quality_score"`
	Status            string          `json:"status"`
	UploadedAtSeconds int64           `json:"uploaded_at_s"`
	Artifacts         json.RawMessage `json:"artifacts,omitempty"`
}

func newEntryPayload(entry catalog.Entry) entryPayload {
	payload := entryPayload{
		EntryID:           entry.EntryID,
		SerialCode:        entry.SerialCode,
		Title:             entry.Title,
		Subject:           entry.Subject,
		Tags:              entry.Tags(),
		UploaderID:        entry.UploaderID,
		UploaderName:      entry.UploaderName,
		Contributors:      entry.Contributors(),
		FileURL:           entry.FileURL,
		FileType:          entry.FileType,
		QualityScore:      entry.QualityScore,
		Status:            string(entry.Status),
		UploadedAtSeconds: entry.UploadedAtSeconds,
	}
	if entry.AIJSON != "" {
		payload.Artifacts = json.RawMessage(entry.AIJSON)
	}
	return payload
}

type publishResponsePayload struct {
	Outcome outcomePayload `json:"outcome"`
	Entry   *entryPayload  `json:"entry,omitempty"`
}

func (h *httpHandler) handlePublish(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var request uploadRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	upload, raw, err := request.upload()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	outcome := h.pipeline.Run(ctx, upload)
	if !outcome.Admitted() {
		status := http.StatusOK
		if outcome.Retryable() {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, publishResponsePayload{Outcome: newOutcomePayload(outcome)})
		return
	}

	profile, err := h.store.Profile(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrProfileNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown_user"})
			return
		}
		h.logger.Error("failed to load uploader profile", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "publish_failed"})
		return
	}

	blobPath := fmt.Sprintf("notes/%s/%d_%s", userID, time.Now().UTC().UnixNano(), upload.Filename)
	fileURL, err := h.blobs.Put(ctx, raw, blobPath, upload.MIME)
	if err != nil {
		h.logger.Error("failed to store upload", zap.Error(err), zap.String("path", blobPath))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload_storage_failed"})
		return
	}

	tags := request.Tags
	if len(tags) == 0 {
		tags = outcome.SuggestedTags
	}

	quality := outcome.Quality
	artifacts := h.generateArtifacts(c, upload)
	artifacts.Quality = &quality

	entry, err := h.catalog.Publish(ctx, catalog.Draft{
		Title:        upload.Title,
		Subject:      upload.Subject,
		Tags:         tags,
		UploaderID:   userID,
		UploaderName: profile.DisplayName,
		CoAuthorIDs:  request.CoAuthorIDs,
		Fingerprint:  outcome.Fingerprint,
		FileURL:      fileURL,
		FileType:     upload.MIME,
		Artifacts:    artifacts,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateFingerprint) {
			// Lost the race against a concurrent publish of the same
			// content; report it the same way the duplicate gate would.
			c.JSON(http.StatusOK, publishResponsePayload{Outcome: h.racedDuplicateOutcome(c, outcome)})
			return
		}
		h.logger.Error("publish commit failed", zap.Error(err), zap.String("uploader_id", userID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "publish_failed"})
		return
	}

	published := newEntryPayload(*entry)
	c.JSON(http.StatusCreated, publishResponsePayload{
		Outcome: newOutcomePayload(outcome),
		Entry:   &published,
	})
}

// generateArtifacts produces the optional study artifacts. Generation
// failures degrade to absent artifacts; they never block a publish.
func (h *httpHandler) generateArtifacts(c *gin.Context, upload admission.Upload) catalog.Artifacts {
	artifacts := catalog.Artifacts{}
	if h.artifacts == nil {
		return artifacts
	}

	ctx := c.Request.Context()
	content := upload.Content()

	if summary, err := h.artifacts.Summarize(ctx, content); err != nil {
		h.logger.Warn("summary generation failed", zap.Error(err))
	} else {
		artifacts.Summary = &summary
	}
	if cards, err := h.artifacts.GenerateFlashcards(ctx, content); err != nil {
		h.logger.Warn("flashcard generation failed", zap.Error(err))
	} else if len(cards) > 0 {
		artifacts.Flashcards = cards
	}
	if quiz, err := h.artifacts.GenerateQuiz(ctx, content); err != nil {
		h.logger.Warn("quiz generation failed", zap.Error(err))
	} else if len(quiz.Questions) > 0 {
		artifacts.Quizzes = append(artifacts.Quizzes, quiz)
	}

	if artifacts.Summary != nil || artifacts.Flashcards != nil || artifacts.Quizzes != nil {
		artifacts.ProcessedBy = "ai"
	}
	return artifacts
}

func (h *httpHandler) racedDuplicateOutcome(c *gin.Context, admitted admission.Outcome) outcomePayload {
	outcome := admission.Outcome{
		Decision:    admission.DecisionRejectedDuplicate,
		Stage:       admission.StageDuplicateCheck,
		Reason:      "This document matches an existing record in our library.",
		Fingerprint: admitted.Fingerprint,
	}
	if existing, err := h.store.EntryByFingerprint(c.Request.Context(), admitted.Fingerprint); err == nil {
		outcome.Duplicate = existing
	}
	return newOutcomePayload(outcome)
}

func (h *httpHandler) handleListEntries(c *gin.Context) {
	entries, err := h.store.ListEntries(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list entries", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"notes": entryPayloads(entries)})
}

func (h *httpHandler) handleEntriesByUploader(c *gin.Context) {
	entries, err := h.store.ListEntriesByUploader(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.Error("failed to list entries by uploader", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"notes": entryPayloads(entries)})
}

func entryPayloads(entries []catalog.Entry) []entryPayload {
	payloads := make([]entryPayload, 0, len(entries))
	for _, entry := range entries {
		payloads = append(payloads, newEntryPayload(entry))
	}
	return payloads
}

func (h *httpHandler) handleEntryByID(c *gin.Context) {
	entry, err := h.store.EntryByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrEntryNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		h.logger.Error("failed to load entry", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read_failed"})
		return
	}
	c.JSON(http.StatusOK, newEntryPayload(*entry))
}

type claimResponsePayload struct {
	Resolved bool   `json:"resolved"`
	Reason   string `json:"reason,omitempty"`
}

func (h *httpHandler) handleClaim(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	err := h.resolver.Resolve(c.Request.Context(), c.Param("id"), userID)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, claimResponsePayload{Resolved: true})
	case errors.Is(err, claims.ErrSelfClaim):
		c.JSON(http.StatusOK, claimResponsePayload{Resolved: false, Reason: "self_claim"})
	case errors.Is(err, claims.ErrAlreadyInfringing):
		c.JSON(http.StatusOK, claimResponsePayload{Resolved: false, Reason: "already_infringing"})
	case errors.Is(err, claims.ErrEntryNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	default:
		h.logger.Error("claim resolution failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "claim_failed"})
	}
}

type profileResponsePayload struct {
	UserID         string `json:"user_id"`
	Email          string `json:"email"`
	DisplayName    string `json:"display_name"`
	Role           string `json:"role"`
	Points         int    `json:"points"`
	Level          int    `json:"level"`
	Badge          string `json:"badge"`
	FollowersCount int    `json:"followers_count"`
	FollowingCount int    `json:"following_count"`
}

func (h *httpHandler) handleProfile(c *gin.Context) {
	profile, err := h.store.Profile(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrProfileNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		h.logger.Error("failed to load profile", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read_failed"})
		return
	}

	view := profile.View()
	c.JSON(http.StatusOK, profileResponsePayload{
		UserID:         view.UserID,
		Email:          view.Email,
		DisplayName:    view.DisplayName,
		Role:           view.Role,
		Points:         view.Points,
		Level:          view.Level,
		Badge:          view.Badge,
		FollowersCount: view.FollowersCount,
		FollowingCount: view.FollowingCount,
	})
}

type pointEntryPayload struct {
	EntryID           string `json:"entry_id"`
	CatalogEntryID    string `json:"catalog_entry_id,omitempty"`
	Delta             int    `json:"delta"`
	Reason            string `json:"reason"`
	RecordedAtSeconds int64  `json:"recorded_at_s"`
}

func (h *httpHandler) handlePointHistory(c *gin.Context) {
	history, err := h.store.PointHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.Error("failed to load point history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read_failed"})
		return
	}

	payloads := make([]pointEntryPayload, 0, len(history))
	for _, record := range history {
		payloads = append(payloads, pointEntryPayload{
			EntryID:           record.EntryID,
			CatalogEntryID:    record.CatalogEntryID,
			Delta:             record.Delta,
			Reason:            string(record.Reason),
			RecordedAtSeconds: record.RecordedAtSeconds,
		})
	}
	c.JSON(http.StatusOK, gin.H{"points": payloads})
}

func (h *httpHandler) handleFollow(follow bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(userIDContextKey)
		targetID := c.Param("id")
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if targetID == userID {
			c.JSON(http.StatusBadRequest, gin.H{"error": "self_follow"})
			return
		}

		if err := h.store.SetFollow(c.Request.Context(), userID, targetID, follow); err != nil {
			h.logger.Error("failed to update follow", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "follow_failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"following": follow})
	}
}

func (h *httpHandler) handleBookmark(saved bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(userIDContextKey)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		if err := h.store.SetBookmark(c.Request.Context(), userID, c.Param("id"), saved); err != nil {
			h.logger.Error("failed to update bookmark", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "bookmark_failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"bookmarked": saved})
	}
}

func (h *httpHandler) handleBookmarkedEntries(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	entries, err := h.store.BookmarkedEntries(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list bookmarks", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"notes": entryPayloads(entries)})
}
