// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

// Publisher backends.
const (
	PublisherNone   = "none"
	PublisherMemory = "memory"
	PublisherPubSub = "pubsub"
)

// Snapshot backends.
const (
	SnapshotsNone   = "none"
	SnapshotsMemory = "memory"
	SnapshotsLocal  = "local"
	SnapshotsGCS    = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Model     ModelConfig     `mapstructure:"model"`
	Store     StoreConfig     `mapstructure:"store"`
	Snapshots SnapshotsConfig `mapstructure:"snapshots"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	MaxBodyBytes      int64         `mapstructure:"max_body_bytes"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// ModelConfig selects the generative model and bounds each call.
type ModelConfig struct {
	Provider        string        `mapstructure:"provider"`
	ProjectID       string        `mapstructure:"project_id"`
	Location        string        `mapstructure:"location"`
	Name            string        `mapstructure:"name"`
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url"`
	MaxTokens       int           `mapstructure:"max_tokens"`
	Temperature     float32       `mapstructure:"temperature"`
	JSONMode        bool          `mapstructure:"json_mode"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	RetryBaseDelay  time.Duration `mapstructure:"retry_base_delay"`
	MaxContentChars int           `mapstructure:"max_content_chars"`
}

// StoreConfig selects the archive backend.
type StoreConfig struct {
	Backend         string        `mapstructure:"backend"`
	DSN             string        `mapstructure:"dsn"`
	SQLitePath      string        `mapstructure:"sqlite_path"`
	ArchiveTable    string        `mapstructure:"archive_table"`
	MetricsTable    string        `mapstructure:"metrics_table"`
	MetricsRowID    int64         `mapstructure:"metrics_row_id"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MetricsTimeout  time.Duration `mapstructure:"metrics_timeout"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// SnapshotsConfig controls the optional full-content snapshot.
type SnapshotsConfig struct {
	Backend     string      `mapstructure:"backend"`
	Bucket      string      `mapstructure:"bucket"`
	Prefix      string      `mapstructure:"prefix"`
	ContentType string      `mapstructure:"content_type"`
	Local       LocalConfig `mapstructure:"local"`
}

// LocalConfig configures the filesystem snapshot backend.
type LocalConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// PubSubConfig holds metadata for archive event notifications.
type PubSubConfig struct {
	Backend   string `mapstructure:"backend"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// CORSConfig lists the origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// legacyEnv maps keys to the unprefixed variables deployments already set.
var legacyEnv = map[string]string{
	"model.project_id": "GOOGLE_CLOUD_PROJECT",
	"model.location":   "GOOGLE_CLOUD_LOCATION",
	"store.dsn":        "DATABASE_URL",
	"server.port":      "PORT",
}

// Load builds a Config from disk/environment. Callers validate with Validate
// or ValidateStore depending on what they run.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TABHARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := "TABHARVESTER_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

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
	cfg.applyDerived()

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.max_body_bytes", 10<<20)
	v.SetDefault("server.request_timeout", 90*time.Second)
	v.SetDefault("server.read_header_timeout", 5*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("model.provider", "vertex")
	v.SetDefault("model.location", "us-central1")
	v.SetDefault("model.name", "google/gemini-2.0-flash-001")
	v.SetDefault("model.max_tokens", 1024)
	v.SetDefault("model.temperature", 0.2)
	v.SetDefault("model.json_mode", true)
	v.SetDefault("model.timeout", 60*time.Second)
	v.SetDefault("model.max_attempts", 1)
	v.SetDefault("model.retry_base_delay", 500*time.Millisecond)
	v.SetDefault("model.max_content_chars", 30000)
	v.SetDefault("store.archive_table", "archived_tabs")
	v.SetDefault("store.metrics_table", "system_metrics")
	v.SetDefault("store.metrics_row_id", 1)
	v.SetDefault("store.timeout", 10*time.Second)
	v.SetDefault("store.metrics_timeout", 5*time.Second)
	v.SetDefault("store.auto_migrate", false)
	v.SetDefault("snapshots.backend", SnapshotsNone)
	v.SetDefault("snapshots.prefix", "tabs")
	v.SetDefault("snapshots.content_type", "text/plain; charset=utf-8")
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")

	// Unmarshal only sees keys viper knows about; register the rest so
	// TABHARVESTER_* overrides reach them.
	for _, key := range []string{
		"model.api_key", "model.base_url",
		"store.backend", "store.sqlite_path",
		"snapshots.bucket", "snapshots.local.base_dir",
		"pubsub.backend", "pubsub.project_id", "pubsub.topic_name",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("store.max_conns", 0)
	v.SetDefault("store.min_conns", 0)
	v.SetDefault("store.max_conn_lifetime", time.Duration(0))
}

// applyDerived fills values that default to other settings.
func (c *Config) applyDerived() {
	if c.Store.Backend == "" {
		c.Store.Backend = BackendMemory
		if c.Store.DSN != "" {
			c.Store.Backend = BackendPostgres
		}
	}
	if c.PubSub.ProjectID == "" {
		c.PubSub.ProjectID = c.Model.ProjectID
	}
	if c.PubSub.Backend == "" {
		c.PubSub.Backend = PublisherNone
		if c.PubSub.TopicName != "" {
			c.PubSub.Backend = PublisherPubSub
		}
	}
}

// Validate enforces everything the serve command needs.
//
//nolint:gocyclo // flat list of independent checks
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be > 0")
	}
	switch c.Model.Provider {
	case "vertex":
		if c.Model.ProjectID == "" {
			return fmt.Errorf("model.project_id is required for the vertex provider (or set GOOGLE_CLOUD_PROJECT)")
		}
	case "openai":
		if c.Model.APIKey == "" {
			return fmt.Errorf("model.api_key is required for the openai provider")
		}
	default:
		return fmt.Errorf("model.provider must be vertex or openai, got %q", c.Model.Provider)
	}
	if c.Model.Timeout <= 0 {
		return fmt.Errorf("model.timeout must be > 0")
	}
	if c.Model.MaxAttempts <= 0 {
		return fmt.Errorf("model.max_attempts must be > 0")
	}
	if c.Model.MaxContentChars <= 0 {
		return fmt.Errorf("model.max_content_chars must be > 0")
	}
	if err := c.ValidateStore(); err != nil {
		return err
	}
	if c.Store.Timeout <= 0 {
		return fmt.Errorf("store.timeout must be > 0")
	}
	metricsTimeout := c.Store.MetricsTimeout
	if metricsTimeout <= 0 {
		metricsTimeout = c.Store.Timeout
	}
	// The model call, the insert and the metrics update all run inside the
	// request deadline.
	if budget := c.Model.Timeout + c.Store.Timeout + metricsTimeout; c.Server.RequestTimeout <= budget {
		return fmt.Errorf(
			"server.request_timeout (%s) must exceed model.timeout + store.timeout + store.metrics_timeout (%s)",
			c.Server.RequestTimeout, budget,
		)
	}
	switch c.Snapshots.Backend {
	case SnapshotsNone, SnapshotsMemory:
	case SnapshotsLocal:
		if c.Snapshots.Local.BaseDir == "" {
			return fmt.Errorf("snapshots.local.base_dir is required for the local backend")
		}
	case SnapshotsGCS:
		if c.Snapshots.Bucket == "" {
			return fmt.Errorf("snapshots.bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("snapshots.backend must be none, memory, local or gcs, got %q", c.Snapshots.Backend)
	}
	switch c.PubSub.Backend {
	case PublisherNone, PublisherMemory:
	case PublisherPubSub:
		if c.PubSub.TopicName == "" {
			return fmt.Errorf("pubsub.topic_name is required for the pubsub backend")
		}
		if c.PubSub.ProjectID == "" {
			return fmt.Errorf("pubsub.project_id is required for the pubsub backend")
		}
	default:
		return fmt.Errorf("pubsub.backend must be none, memory or pubsub, got %q", c.PubSub.Backend)
	}
	return nil
}

// ValidateStore checks only the store section; migrate needs nothing else.
func (c Config) ValidateStore() error {
	switch c.Store.Backend {
	case BackendPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres backend (or set DATABASE_URL)")
		}
	case BackendSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("store.backend must be postgres, sqlite or memory, got %q", c.Store.Backend)
	}
	return nil
}
