package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// APIKeysEnv is read when the file lists no keys. Keys are comma separated.
const APIKeysEnv = "GEMINI_API_KEYS"

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML content, expanding environment variables first.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.GenAI.APIKeys = cleanKeys(cfg.GenAI.APIKeys)
	if len(cfg.GenAI.APIKeys) == 0 {
		cfg.GenAI.APIKeys = cleanKeys(strings.Split(os.Getenv(APIKeysEnv), ","))
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MaxBodyMB == 0 {
		cfg.Server.MaxBodyMB = 50
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"*"}
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	if cfg.GenAI.FailureThreshold == 0 {
		cfg.GenAI.FailureThreshold = 3
	}
	if cfg.GenAI.Concurrency == 0 {
		cfg.GenAI.Concurrency = 3
	}
	if cfg.GenAI.RequestTimeout == 0 {
		cfg.GenAI.RequestTimeout = 60 * time.Second
	}

	if cfg.Monitoring.Interval == 0 {
		cfg.Monitoring.Interval = 5 * time.Minute
	}
	if cfg.Monitoring.AutoResetInterval == 0 {
		cfg.Monitoring.AutoResetInterval = time.Hour
	}
}

// cleanKeys trims keys and drops blanks, which unset env vars leave behind.
func cleanKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// KeysChanged reports whether two key lists differ.
func KeysChanged(a, b []string) bool {
	if len(a) != len(b) {
		return true
	}
	for i := range a {
		if a[i] != b[i] {
			return true
		}
	}
	return false
}
