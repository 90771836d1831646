package config

import (
	"time"

	redisclient "github.com/vietddude/imagematch/internal/infra/redis"
	"github.com/vietddude/imagematch/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server     ServerConfig       `yaml:"server"`
	Logging    LoggingConfig      `yaml:"logging"`
	GenAI      GenAIConfig        `yaml:"genai"`
	Monitoring MonitoringConfig   `yaml:"monitoring"`
	Redis      redisclient.Config `yaml:"redis"`
	Database   postgres.Config    `yaml:"database"`
	Archive    ArchiveConfig      `yaml:"archive"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	MaxBodyMB       int           `yaml:"max_body_mb"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// GenAIConfig holds the model endpoint and the API key pool settings.
type GenAIConfig struct {
	APIKeys          []string      `yaml:"api_keys"`
	Model            string        `yaml:"model"`
	Endpoint         string        `yaml:"endpoint"`
	FailureThreshold int           `yaml:"failure_threshold"`
	Concurrency      int           `yaml:"concurrency"`
	CallTimeout      time.Duration `yaml:"call_timeout"`    // 0 = no per-call bound
	RequestTimeout   time.Duration `yaml:"request_timeout"` // HTTP client timeout
}

// MonitoringConfig controls the background key monitor.
type MonitoringConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Interval          time.Duration `yaml:"interval"`
	AutoReset         bool          `yaml:"auto_reset"`
	AutoResetInterval time.Duration `yaml:"auto_reset_interval"`
}

// ArchiveConfig controls the search result archive.
type ArchiveConfig struct {
	Retention time.Duration `yaml:"retention"` // 0 = keep forever
}
