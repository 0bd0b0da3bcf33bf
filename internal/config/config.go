// Package config loads and validates scrapper configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/scrapper/internal/storage/local"
	"github.com/JakeFAU/scrapper/internal/storage/postgres"
)

// Storage backends for the result cache.
const (
	BackendLocal  = "local"
	BackendGCS    = "gcs"
	BackendMemory = "memory"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	TLS        TLSConfig        `mapstructure:"tls"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Browser    BrowserConfig    `mapstructure:"browser"`
	Screenshot ScreenshotConfig `mapstructure:"screenshot"`
	Scripts    ScriptsConfig    `mapstructure:"scripts"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Database   postgres.Config  `mapstructure:"database"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Host                     string `mapstructure:"host"`
	Port                     int    `mapstructure:"port"`
	ReadHeaderTimeoutSeconds int    `mapstructure:"read_header_timeout_seconds"`
	// RequestTimeoutSeconds bounds a whole request; 0 disables the bound.
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// TLSConfig enables HTTPS when both files are set.
type TLSConfig struct {
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// AuthConfig points at an optional htpasswd file.
type AuthConfig struct {
	HtpasswdFile string `mapstructure:"htpasswd_file"`
}

// BrowserConfig governs the shared browser and the session pool.
type BrowserConfig struct {
	ContextLimit     int     `mapstructure:"context_limit"`
	ExecPath         string  `mapstructure:"exec_path"`
	UserDataDir      string  `mapstructure:"user_data_dir"`
	DomainQPS        float64 `mapstructure:"domain_qps"`
	CoalesceRequests bool    `mapstructure:"coalesce_requests"`
	NoSandbox        bool    `mapstructure:"no_sandbox"`
}

// ScreenshotConfig sets the capture encoding.
type ScreenshotConfig struct {
	Type         string  `mapstructure:"type"`
	Quality      int     `mapstructure:"quality"`
	MaxDimension float64 `mapstructure:"max_dimension"`
}

// ScriptsConfig points at on-disk script locations.
type ScriptsConfig struct {
	StealthDir      string `mapstructure:"stealth_dir"`
	UserScriptsDir  string `mapstructure:"user_scripts_dir"`
	ReadabilityPath string `mapstructure:"readability_path"`
}

// StorageConfig selects the cache backend.
type StorageConfig struct {
	Backend string       `mapstructure:"backend"`
	Local   local.Config `mapstructure:"local"`
	Bucket  string       `mapstructure:"bucket"`
	Prefix  string       `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for result notifications. An empty topic disables them.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCRAPPER")
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

// setDefaults registers every key so AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_header_timeout_seconds", 10)
	v.SetDefault("server.request_timeout_seconds", 0)
	v.SetDefault("tls.cert_file", "")
	v.SetDefault("tls.key_file", "")
	v.SetDefault("auth.htpasswd_file", "")
	v.SetDefault("browser.context_limit", 20)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.user_data_dir", "user_data_dir")
	v.SetDefault("browser.domain_qps", 0)
	v.SetDefault("browser.coalesce_requests", true)
	v.SetDefault("browser.no_sandbox", false)
	v.SetDefault("screenshot.type", "jpeg")
	v.SetDefault("screenshot.quality", 80)
	v.SetDefault("screenshot.max_dimension", 32767)
	v.SetDefault("scripts.stealth_dir", "")
	v.SetDefault("scripts.user_scripts_dir", "user_scripts")
	v.SetDefault("scripts.readability_path", "")
	v.SetDefault("storage.backend", BackendLocal)
	v.SetDefault("storage.local.base_dir", "user_data")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.table", "scrapper_results")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return errors.New("server.port must be > 0")
	}
	if c.Browser.ContextLimit <= 0 {
		return errors.New("browser.context_limit must be > 0")
	}
	if c.Browser.DomainQPS < 0 {
		return errors.New("browser.domain_qps must be >= 0")
	}
	switch c.Screenshot.Type {
	case "jpeg", "png":
	default:
		return fmt.Errorf("screenshot.type must be jpeg or png, got %q", c.Screenshot.Type)
	}
	if c.Screenshot.Quality < 0 || c.Screenshot.Quality > 100 {
		return errors.New("screenshot.quality must be between 0 and 100")
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		return errors.New("tls.cert_file and tls.key_file must be set together")
	}
	switch c.Storage.Backend {
	case BackendLocal:
		if strings.TrimSpace(c.Storage.Local.BaseDir) == "" {
			return errors.New("storage.local.base_dir is required for the local backend")
		}
	case BackendGCS:
		if c.Storage.Bucket == "" {
			return errors.New("storage.bucket is required for the gcs backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return errors.New("pubsub.project_id is required when pubsub.topic_name is set")
	}
	return nil
}

// TLSEnabled reports whether the server should listen with HTTPS.
func (c Config) TLSEnabled() bool {
	return c.TLS.CertFile != "" && c.TLS.KeyFile != ""
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// RequestTimeout converts server.request_timeout_seconds to a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// ReadHeaderTimeout converts server.read_header_timeout_seconds to a duration.
func (c Config) ReadHeaderTimeout() time.Duration {
	return time.Duration(c.Server.ReadHeaderTimeoutSeconds) * time.Second
}
