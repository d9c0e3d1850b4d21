// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage backends.
const (
	StorageLocal    = "local"
	StorageGCS      = "gcs"
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Portal   PortalConfig   `mapstructure:"portal"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Staging  StagingConfig  `mapstructure:"staging"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int      `mapstructure:"port"`
	CORSOrigins            []string `mapstructure:"cors_origins"`
	ShutdownTimeoutSeconds int      `mapstructure:"shutdown_timeout_seconds"`
	// ViewerPath is the HTML report viewer served at "/"; empty disables it.
	ViewerPath string `mapstructure:"viewer_path"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// PortalConfig locates the procurement portal and its token bridge.
type PortalConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	AuthURL    string `mapstructure:"auth_url"`
	SessionURL string `mapstructure:"session_url"`
	ClientID   string `mapstructure:"client_id"`
	UserAgent  string `mapstructure:"user_agent"`
	Origin     string `mapstructure:"origin"`
	Referer    string `mapstructure:"referer"`
	// TabDelayMs spaces consecutive requests to the same host.
	TabDelayMs int `mapstructure:"tab_delay_ms"`
}

// HTTPConfig configures HTTP client retry behavior.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	MaxRetries     int `mapstructure:"max_retries"`
	RetryBackoffMs int `mapstructure:"retry_backoff_ms"`
	MaxBodyBytes   int `mapstructure:"max_body_bytes"`
}

// StagingConfig controls where attachments are downloaded.
type StagingConfig struct {
	Dir       string `mapstructure:"dir"`
	MaxFiles  int    `mapstructure:"max_files"`
	KeepFiles bool   `mapstructure:"keep_files"`
}

// StorageConfig selects and configures the report store.
type StorageConfig struct {
	Backend  string         `mapstructure:"backend"`
	LocalDir string         `mapstructure:"local_dir"`
	GCS      GCSConfig      `mapstructure:"gcs"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// GCSConfig names the bucket reports are written to.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// PostgresConfig controls the report table connection.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// AnalysisConfig configures the analysis service.
type AnalysisConfig struct {
	APIKey              string `mapstructure:"api_key"`
	Model               string `mapstructure:"model"`
	MaxTokens           int64  `mapstructure:"max_tokens"`
	BaseURL             string `mapstructure:"base_url"`
	MaxRetries          int    `mapstructure:"max_retries"`
	TechSpecPromptPath  string `mapstructure:"techspec_prompt_path"`
	AffiliatePromptPath string `mapstructure:"affiliate_prompt_path"`
}

// PubSubConfig holds metadata for report-completed notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Load builds a Config from .env, disk and environment.
func Load(path string) (Config, error) {
	if err := loadDotEnv(); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("TENDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// loadDotEnv reads .env from the working directory when present. Variables
// already set in the environment win.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout_seconds", 15)
	v.SetDefault("server.viewer_path", "report_viewer.html")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("portal.base_url", "https://goszakup.gov.kz")
	v.SetDefault("portal.auth_url", "https://help.ecc.kz/bridge/auth")
	v.SetDefault("portal.session_url", "https://help.ecc.kz/bridge/session")
	v.SetDefault("portal.client_id", "widget-aiis-epp")
	v.SetDefault("portal.user_agent", "")
	v.SetDefault("portal.origin", "")
	v.SetDefault("portal.referer", "")
	v.SetDefault("portal.tab_delay_ms", 1000)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.retry_backoff_ms", 100)
	v.SetDefault("http.max_body_bytes", 64*1024*1024)
	v.SetDefault("staging.dir", "downloads/goszakup_techspecs")
	v.SetDefault("staging.max_files", 3)
	v.SetDefault("staging.keep_files", false)
	v.SetDefault("storage.backend", StorageLocal)
	v.SetDefault("storage.local_dir", "reports")
	v.SetDefault("storage.gcs.bucket", "")
	v.SetDefault("storage.gcs.prefix", "reports")
	v.SetDefault("storage.postgres.dsn", "")
	v.SetDefault("storage.postgres.table", "reports")
	v.SetDefault("storage.postgres.max_conns", 4)
	v.SetDefault("analysis.api_key", "")
	v.SetDefault("analysis.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("analysis.max_tokens", 8192)
	v.SetDefault("analysis.base_url", "")
	v.SetDefault("analysis.max_retries", 2)
	v.SetDefault("analysis.techspec_prompt_path", "")
	v.SetDefault("analysis.affiliate_prompt_path", "")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.Portal.TabDelayMs < 0 {
		return fmt.Errorf("portal.tab_delay_ms must be >= 0")
	}
	if c.Staging.Dir == "" {
		return fmt.Errorf("staging.dir is required")
	}
	if c.Staging.MaxFiles <= 0 {
		return fmt.Errorf("staging.max_files must be > 0")
	}
	switch c.Storage.Backend {
	case StorageLocal:
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir is required for the local backend")
		}
	case StorageGCS:
		if c.Storage.GCS.Bucket == "" {
			return fmt.Errorf("storage.gcs.bucket is required for the gcs backend")
		}
	case StoragePostgres:
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn is required for the postgres backend")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is")
	}
	return nil
}

// FetchTimeout is the per-request timeout for portal fetches.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// FetchBackoff is the sleep between fetch retries.
func (c Config) FetchBackoff() time.Duration {
	return time.Duration(c.HTTP.RetryBackoffMs) * time.Millisecond
}

// TabDelay is the minimum spacing between requests to one host.
func (c Config) TabDelay() time.Duration {
	return time.Duration(c.Portal.TabDelayMs) * time.Millisecond
}

// ShutdownTimeout bounds graceful HTTP shutdown.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}
