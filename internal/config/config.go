package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix           = "SCHOLARSTACK"
	defaultHTTPAddress  = "0.0.0.0:8080"
	defaultDatabasePath = "scholarstack.db"
	defaultLogLevel     = "info"
	defaultStorageMode  = StorageModeSQLite
	defaultBlobMode     = BlobModeDir
	defaultBlobDir      = "uploads"
	defaultGateTimeout  = 30 * time.Second
	defaultTokenTTL     = 30 * time.Minute
	defaultOpenAIModel  = "gpt-4o-mini"
)

// Storage and blob backends selected at process start.
const (
	StorageModeSQLite = "sqlite"
	StorageModeMemory = "memory"
	BlobModeGCS       = "gcs"
	BlobModeDir       = "dir"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress   string
	DatabasePath  string
	LogLevel      string
	SigningSecret string
	TokenTTL      time.Duration
	StorageMode   string
	BlobMode      string
	BlobBucket    string
	BlobCredsFile string
	BlobDir       string
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
	GateTimeout   time.Duration
	DevTokenMint  bool
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("token.ttl_minutes", int(defaultTokenTTL.Minutes()))
	configViper.SetDefault("storage.mode", defaultStorageMode)
	configViper.SetDefault("blob.mode", defaultBlobMode)
	configViper.SetDefault("blob.dir", defaultBlobDir)
	configViper.SetDefault("openai.model", defaultOpenAIModel)
	configViper.SetDefault("gates.timeout_seconds", int(defaultGateTimeout.Seconds()))
	configViper.SetDefault("auth.dev_token_mint", false)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:   configViper.GetString("http.address"),
		DatabasePath:  configViper.GetString("database.path"),
		LogLevel:      configViper.GetString("log.level"),
		SigningSecret: configViper.GetString("auth.signing_secret"),
		TokenTTL:      time.Duration(configViper.GetInt("token.ttl_minutes")) * time.Minute,
		StorageMode:   configViper.GetString("storage.mode"),
		BlobMode:      configViper.GetString("blob.mode"),
		BlobBucket:    configViper.GetString("blob.bucket"),
		BlobCredsFile: configViper.GetString("blob.credentials_file"),
		BlobDir:       configViper.GetString("blob.dir"),
		OpenAIAPIKey:  configViper.GetString("openai.api_key"),
		OpenAIModel:   configViper.GetString("openai.model"),
		OpenAIBaseURL: configViper.GetString("openai.base_url"),
		GateTimeout:   time.Duration(configViper.GetInt("gates.timeout_seconds")) * time.Second,
		DevTokenMint:  configViper.GetBool("auth.dev_token_mint"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	switch c.StorageMode {
	case StorageModeSQLite:
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("database.path is required for sqlite storage")
		}
	case StorageModeMemory:
	default:
		return fmt.Errorf("storage.mode must be %q or %q", StorageModeSQLite, StorageModeMemory)
	}
	switch c.BlobMode {
	case BlobModeGCS:
		if strings.TrimSpace(c.BlobBucket) == "" {
			return fmt.Errorf("blob.bucket is required for gcs blob storage")
		}
	case BlobModeDir:
		if strings.TrimSpace(c.BlobDir) == "" {
			return fmt.Errorf("blob.dir is required for dir blob storage")
		}
	default:
		return fmt.Errorf("blob.mode must be %q or %q", BlobModeGCS, BlobModeDir)
	}
	if strings.TrimSpace(c.OpenAIAPIKey) == "" {
		return fmt.Errorf("openai.api_key is required")
	}
	return nil
}
