package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/scholarstack/scholarstack/backend/internal/admission"
	"github.com/scholarstack/scholarstack/backend/internal/ai"
	"github.com/scholarstack/scholarstack/backend/internal/auth"
	"github.com/scholarstack/scholarstack/backend/internal/blob"
	"github.com/scholarstack/scholarstack/backend/internal/catalog"
	"github.com/scholarstack/scholarstack/backend/internal/claims"
	"github.com/scholarstack/scholarstack/backend/internal/config"
	"github.com/scholarstack/scholarstack/backend/internal/database"
	"github.com/scholarstack/scholarstack/backend/internal/logging"
	"github.com/scholarstack/scholarstack/backend/internal/server"
	"github.com/scholarstack/scholarstack/backend/internal/store"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "scholarstack-api",
		Short: "ScholarStack note catalog backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("token.ttl_minutes"), "Bearer token TTL in minutes")
	cmd.PersistentFlags().String("storage-mode", defaults.GetString("storage.mode"), "Catalog storage backend (sqlite, memory)")
	cmd.PersistentFlags().String("blob-mode", defaults.GetString("blob.mode"), "Upload blob backend (gcs, dir)")
	cmd.PersistentFlags().String("blob-bucket", "", "GCS bucket for uploads")
	cmd.PersistentFlags().String("blob-dir", defaults.GetString("blob.dir"), "Local directory for uploads")
	cmd.PersistentFlags().String("openai-model", defaults.GetString("openai.model"), "Model used for admission gates and artifacts")
	cmd.PersistentFlags().Int("gate-timeout-seconds", defaults.GetInt("gates.timeout_seconds"), "Per-gate capability timeout in seconds")
	cmd.PersistentFlags().Bool("dev-token-mint", defaults.GetBool("auth.dev_token_mint"), "Expose POST /auth/token for local use")
	cmd.PersistentFlags().String("signing-secret", "", "Bearer token signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "token.ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "storage.mode", "storage-mode")
	bindFlag(cmd, "blob.mode", "blob-mode")
	bindFlag(cmd, "blob.bucket", "blob-bucket")
	bindFlag(cmd, "blob.dir", "blob-dir")
	bindFlag(cmd, "openai.model", "openai-model")
	bindFlag(cmd, "gates.timeout_seconds", "gate-timeout-seconds")
	bindFlag(cmd, "auth.dev_token_mint", "dev-token-mint")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	idProvider := catalog.NewUUIDProvider()

	var catalogStore store.Store
	switch appConfig.StorageMode {
	case config.StorageModeSQLite:
		db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
		if err != nil {
			return err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		defer sqlDB.Close()

		catalogStore, err = store.NewSQLStore(store.SQLConfig{
			Database:   db,
			Clock:      time.Now,
			IDProvider: idProvider,
			Logger:     logger,
		})
		if err != nil {
			return err
		}
	case config.StorageModeMemory:
		catalogStore, err = store.NewMemoryStore(store.MemoryConfig{
			Clock:      time.Now,
			IDProvider: idProvider,
		})
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported storage mode: %s", appConfig.StorageMode)
	}

	var blobs blob.Store
	switch appConfig.BlobMode {
	case config.BlobModeGCS:
		gcs, err := blob.NewGCSStore(ctx, blob.GCSConfig{
			Bucket:          appConfig.BlobBucket,
			CredentialsFile: appConfig.BlobCredsFile,
		})
		if err != nil {
			return err
		}
		defer gcs.Close() //nolint:errcheck
		blobs = gcs
	case config.BlobModeDir:
		blobs, err = blob.NewDirStore(appConfig.BlobDir)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported blob mode: %s", appConfig.BlobMode)
	}

	capability, err := ai.NewOpenAIClient(ai.OpenAIConfig{
		APIKey:  appConfig.OpenAIAPIKey,
		Model:   appConfig.OpenAIModel,
		BaseURL: appConfig.OpenAIBaseURL,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	pipeline, err := admission.NewPipeline(admission.PipelineConfig{
		Classifier:  capability,
		Assessor:    capability,
		Registry:    catalogStore,
		GateTimeout: appConfig.GateTimeout,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	catalogService, err := catalog.NewService(catalog.ServiceConfig{
		Publisher:  catalogStore,
		Clock:      time.Now,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	claimResolver, err := claims.NewResolver(claims.ResolverConfig{
		Store:  catalogStore,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	tokenManager := auth.NewTokenService(auth.TokenServiceConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        "scholarstack-auth",
		Audience:      "scholarstack-api",
		TokenTTL:      appConfig.TokenTTL,
	})

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager:   tokenManager,
		Pipeline:       pipeline,
		CatalogService: catalogService,
		ClaimResolver:  claimResolver,
		Store:          catalogStore,
		Blobs:          blobs,
		Artifacts:      capability,
		Logger:         logger,
		DevTokenMint:   appConfig.DevTokenMint,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("storage_mode", appConfig.StorageMode),
			zap.String("blob_mode", appConfig.BlobMode))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
