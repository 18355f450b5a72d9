// Package config provides host configuration loaded from environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/morezero/operations-host/pkg/semver"
)

const logPrefix = "config:LoadConfig"

// Config holds operations host configuration.
type Config struct {
	// HTTP
	HTTPAddrs       []string      `envconfig:"HTTP_ADDRS" default:":8080"`
	ApplicationPath string        `envconfig:"APPLICATION_PATH"`
	MetadataPath    string        `envconfig:"METADATA_PATH" default:"/metadata"`
	MetricsPath     string        `envconfig:"METRICS_PATH" default:"/metrics"`
	HealthPath      string        `envconfig:"HEALTH_PATH" default:"/health"`
	HomePath        string        `envconfig:"HOME_PATH" default:"/"`
	MaxBodyBytes    int64         `envconfig:"MAX_BODY_BYTES" default:"4194304"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`

	// APIVersion is reported by the metadata document and enforced by the version gate.
	APIVersion   string `envconfig:"API_VERSION" default:"1.0.0"`
	ManifestFile string `envconfig:"MANIFEST_FILE"`

	// COMMS: optional request/reply bridge and failure events.
	COMMSEnabled        bool          `envconfig:"COMMS_ENABLED" default:"false"`
	COMMSURL            string        `envconfig:"COMMS_URL" default:"nats://127.0.0.1:4222"`
	COMMSName           string        `envconfig:"SERVICE_NAME" default:"opshost"`
	COMMSSubjectPrefix  string        `envconfig:"COMMS_SUBJECT_PREFIX" default:"ops"`
	COMMSFailureSubject string        `envconfig:"COMMS_FAILURE_SUBJECT" default:"ops.failures"`
	COMMSRequestTimeout time.Duration `envconfig:"COMMS_REQUEST_TIMEOUT" default:"25s"`

	// Invocation journal
	JournalEnabled bool   `envconfig:"JOURNAL_ENABLED" default:"false"`
	JournalBuffer  int    `envconfig:"JOURNAL_BUFFER" default:"1024"`
	DatabaseURL    string `envconfig:"DATABASE_URL"`
	RunMigrations  bool   `envconfig:"RUN_MIGRATIONS" default:"false"`
	MigrationPath  string `envconfig:"MIGRATION_PATH"`

	// Hooks: a zero rate or an empty secret leaves that hook off.
	RateLimitRPS   float64  `envconfig:"RATE_LIMIT_RPS" default:"0"`
	RateLimitBurst int      `envconfig:"RATE_LIMIT_BURST" default:"20"`
	JWTSecret      string   `envconfig:"JWT_SECRET"`
	JWTSkipPaths   []string `envconfig:"JWT_SKIP_PATHS" default:"/health,/metadata"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	c.HTTPAddrs = compact(c.HTTPAddrs)
	c.JWTSkipPaths = compact(c.JWTSkipPaths)
	return &c, nil
}

func compact(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ValidateForServe checks required config when running the host.
func (c *Config) ValidateForServe() error {
	if len(c.HTTPAddrs) == 0 {
		return fmt.Errorf("%s - HTTP_ADDRS must name at least one address", logPrefix)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%s - SHUTDOWN_TIMEOUT must be positive", logPrefix)
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("%s - MAX_BODY_BYTES must be positive", logPrefix)
	}
	if _, err := semver.Canonical(c.APIVersion); err != nil {
		return fmt.Errorf("%s - API_VERSION %q is not a semantic version: %w", logPrefix, c.APIVersion, err)
	}
	if c.RateLimitRPS < 0 || (c.RateLimitRPS > 0 && c.RateLimitBurst <= 0) {
		return fmt.Errorf("%s - RATE_LIMIT_RPS must be >= 0 with a positive RATE_LIMIT_BURST", logPrefix)
	}
	if c.COMMSEnabled {
		if c.COMMSURL == "" {
			return fmt.Errorf("%s - COMMS_URL is required when COMMS_ENABLED", logPrefix)
		}
		if c.COMMSRequestTimeout <= 0 {
			return fmt.Errorf("%s - COMMS_REQUEST_TIMEOUT must be positive", logPrefix)
		}
	}
	if c.JournalEnabled {
		return c.ValidateForDB()
	}
	return nil
}

// ValidateForDB checks required config when running DB-dependent commands (migrate, clear, ensure-db).
func (c *Config) ValidateForDB() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required", logPrefix)
	}
	return nil
}
