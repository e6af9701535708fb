// Package config provides configuration structures and loading logic for the exporter.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// New Relic OTLP endpoints, chosen by the license key region prefix.
const (
	NewRelicEndpoint   = "https://otlp.nr-data.net"
	NewRelicEUEndpoint = "https://otlp.eu01.nr-data.net:4318"
)

// Config represents the root configuration structure for the exporter.
type Config struct {
	App    AppConfig    `mapstructure:"app"`
	GitHub GitHubConfig `mapstructure:"github"`
	Export ExportConfig `mapstructure:"export"`
	OTLP   OTLPConfig   `mapstructure:"otlp"`
	Server ServerConfig `mapstructure:"server"`
	DB     DBConfig     `mapstructure:"db"`
}

// AppConfig defines process-level settings.
type AppConfig struct {
	LogLevel string `mapstructure:"log_level"`
	Debug    bool   `mapstructure:"debug"`
}

// GitHubConfig defines the API connection and the workflow run to export.
type GitHubConfig struct {
	APIURL     string `mapstructure:"api_url"`
	TokenEnv   string `mapstructure:"token_env"`
	Token      string `mapstructure:"-"`
	Repository string `mapstructure:"repository"`
	Owner      string `mapstructure:"owner"`
	RunID      int64  `mapstructure:"run_id"`
	RunName    string `mapstructure:"run_name"`
}

// ExportConfig controls what ends up in the exported trace.
type ExportConfig struct {
	ParseLogs                 bool     `mapstructure:"parse_logs"`
	IncludeIDInParentSpanName bool     `mapstructure:"include_id_in_parent_span_name"`
	ExcludedJobs              []string `mapstructure:"excluded_jobs"`
	// LogsDir points at already extracted step logs. When empty the run archive is downloaded.
	LogsDir string `mapstructure:"logs_dir"`
	Timeout string `mapstructure:"timeout"`
}

// OTLPConfig defines the telemetry backend.
type OTLPConfig struct {
	Endpoint      string `mapstructure:"endpoint"`
	LicenseKeyEnv string `mapstructure:"license_key_env"`
	LicenseKey    string `mapstructure:"-"`
}

// ServerConfig defines the webhook listener.
type ServerConfig struct {
	Host             string `mapstructure:"host"`
	Port             int    `mapstructure:"port"`
	WebhookSecretEnv string `mapstructure:"webhook_secret_env"`
	WebhookSecret    string `mapstructure:"-"`
	QueueSize        int    `mapstructure:"queue_size"`
}

// DBConfig defines the export ledger location.
type DBConfig struct {
	Path string `mapstructure:"path"`
}

// envBindings maps config keys to the variables set by the GitHub Action.
var envBindings = map[string]string{
	"github.api_url":                        "GITHUB_API_URL",
	"github.repository":                     "GITHUB_REPOSITORY",
	"github.owner":                          "GITHUB_REPOSITORY_OWNER",
	"github.run_id":                         "GHA_RUN_ID",
	"github.run_name":                       "GHA_RUN_NAME",
	"export.parse_logs":                     "PARSE_LOGS",
	"export.include_id_in_parent_span_name": "INCLUDE_ID_IN_PARENT_SPAN_NAME",
	"export.excluded_jobs":                  "EXCLUDED_JOBS",
	"export.logs_dir":                       "LOGS_DIR",
	"otlp.endpoint":                         "OTEL_EXPORTER_OTLP_ENDPOINT",
	"app.debug":                             "GHA_DEBUG",
}

// Load loads configuration from config.yaml or environment variables
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/gha-exporter")

	// Allow environment variables to override config
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	// Set defaults
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.debug", false)
	v.SetDefault("github.api_url", "https://api.github.com")
	v.SetDefault("github.token_env", "GHA_TOKEN")
	v.SetDefault("export.parse_logs", true)
	v.SetDefault("export.include_id_in_parent_span_name", true)
	v.SetDefault("export.excluded_jobs", []string{"new-relic-exporter"})
	v.SetDefault("export.timeout", "10m")
	v.SetDefault("otlp.license_key_env", "NEW_RELIC_LICENSE_KEY")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.webhook_secret_env", "GITHUB_WEBHOOK_SECRET")
	v.SetDefault("server.queue_size", 32)
	v.SetDefault("db.path", "gha-exporter.db")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Secrets are only ever read through their _env indirection.
	if cfg.GitHub.TokenEnv != "" {
		cfg.GitHub.Token = os.Getenv(cfg.GitHub.TokenEnv)
	}
	if cfg.OTLP.LicenseKeyEnv != "" {
		cfg.OTLP.LicenseKey = os.Getenv(cfg.OTLP.LicenseKeyEnv)
	}
	if cfg.Server.WebhookSecretEnv != "" {
		cfg.Server.WebhookSecret = os.Getenv(cfg.Server.WebhookSecretEnv)
	}

	return &cfg, nil
}

// ValidateExport reports every variable a single run export needs but lacks.
func (c *Config) ValidateExport() error {
	missing := c.missingCommon()
	if c.GitHub.RunID == 0 {
		missing = append(missing, "GHA_RUN_ID")
	}
	if c.GitHub.Repository == "" {
		missing = append(missing, "GITHUB_REPOSITORY")
	}
	if c.GitHub.Owner == "" {
		missing = append(missing, "GITHUB_REPOSITORY_OWNER")
	}
	if c.GitHub.RunName == "" {
		missing = append(missing, "GHA_RUN_NAME")
	}
	return missingError(missing)
}

// ValidateServe reports missing settings for webhook mode, where the run comes from the event.
func (c *Config) ValidateServe() error {
	return missingError(c.missingCommon())
}

func (c *Config) missingCommon() []string {
	var missing []string
	if c.OTLP.LicenseKey == "" && c.OTLP.Endpoint == "" {
		missing = append(missing, c.OTLP.LicenseKeyEnv)
	}
	if c.GitHub.Token == "" {
		missing = append(missing, c.GitHub.TokenEnv)
	}
	if c.GitHub.APIURL == "" {
		missing = append(missing, "GITHUB_API_URL")
	}
	return missing
}

func missingError(missing []string) error {
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
}

// ExporterEndpoint returns the configured OTLP endpoint, or the New Relic one for the license
// key region.
func (c *OTLPConfig) ExporterEndpoint() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	if strings.HasPrefix(c.LicenseKey, "eu") {
		return NewRelicEUEndpoint
	}
	return NewRelicEndpoint
}

// RepoName returns the repository part of GITHUB_REPOSITORY.
func (c *GitHubConfig) RepoName() string {
	if _, name, ok := strings.Cut(c.Repository, "/"); ok {
		return name
	}
	return c.Repository
}

// IsExcluded reports whether a job name is configured to be left out of the trace.
func (c *ExportConfig) IsExcluded(job string) bool {
	for _, name := range c.ExcludedJobs {
		if strings.EqualFold(strings.TrimSpace(name), job) {
			return true
		}
	}
	return false
}

// GetTimeoutDuration parses the export timeout into a time.Duration.
func (c *ExportConfig) GetTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	if d == 0 {
		return 10 * time.Minute
	}
	return d
}

// Addr returns the listen address for the webhook server.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
