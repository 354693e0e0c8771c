// Package config loads and validates scriptd configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the complete scriptd configuration
type Config struct {
	Version int `json:"version" mapstructure:"version"`

	Server   ServerConfig   `json:"server" mapstructure:"server"`
	Database DatabaseConfig `json:"database" mapstructure:"database"`
	Cache    CacheConfig    `json:"cache" mapstructure:"cache"`
	Analysis AnalysisConfig `json:"analysis" mapstructure:"analysis"`
	Safety   SafetyConfig   `json:"safety" mapstructure:"safety"`
	Jobs     JobsConfig     `json:"jobs" mapstructure:"jobs"`
	Logging  LoggingConfig  `json:"logging" mapstructure:"logging"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Addr            string `json:"addr" mapstructure:"addr"`
	ReadTimeoutSec  int    `json:"readTimeoutSec" mapstructure:"readTimeoutSec"`
	WriteTimeoutSec int    `json:"writeTimeoutSec" mapstructure:"writeTimeoutSec"`
}

// DatabaseConfig contains the sqlite store-of-record configuration
type DatabaseConfig struct {
	Dir string `json:"dir" mapstructure:"dir"`
}

// CacheConfig contains redis cache configuration. An empty RedisURL disables
// the cache entirely; the store of record is always authoritative.
type CacheConfig struct {
	RedisURL          string `json:"redisUrl" mapstructure:"redisUrl"`
	ScriptTtlSeconds  int    `json:"scriptTtlSeconds" mapstructure:"scriptTtlSeconds"`
	ListTtlSeconds    int    `json:"listTtlSeconds" mapstructure:"listTtlSeconds"`
}

// AnalysisConfig contains AI analysis service configuration
type AnalysisConfig struct {
	ServiceURL     string `json:"serviceUrl" mapstructure:"serviceUrl"`
	TimeoutSeconds int    `json:"timeoutSeconds" mapstructure:"timeoutSeconds"`
	APIKey         string `json:"apiKey" mapstructure:"apiKey"`
	MinSimilarity  float64 `json:"minSimilarity" mapstructure:"minSimilarity"`
}

// SafetyConfig contains content safety screen configuration
type SafetyConfig struct {
	RulesPath string `json:"rulesPath" mapstructure:"rulesPath"`
}

// JobsConfig contains background job runner configuration
type JobsConfig struct {
	QueueSize   int `json:"queueSize" mapstructure:"queueSize"`
	WorkerCount int `json:"workerCount" mapstructure:"workerCount"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format"`
	Level  string `json:"level" mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Server: ServerConfig{
			Addr:            "127.0.0.1:8780",
			ReadTimeoutSec:  15,
			WriteTimeoutSec: 30,
		},
		Database: DatabaseConfig{
			Dir: ".scriptd",
		},
		Cache: CacheConfig{
			RedisURL:         "",
			ScriptTtlSeconds: 600,
			ListTtlSeconds:   300,
		},
		Analysis: AnalysisConfig{
			ServiceURL:     "http://localhost:8000",
			TimeoutSeconds: 30,
			MinSimilarity:  0.7,
		},
		Safety: SafetyConfig{
			RulesPath: "",
		},
		Jobs: JobsConfig{
			QueueSize:   100,
			WorkerCount: 2,
		},
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
		},
	}
}

// LoadConfig loads configuration from <dir>/scriptd.json, falling back to the
// defaults when no config file exists.
func LoadConfig(dir string) (*Config, error) {
	v := viper.New()

	v.SetDefault("version", 1)

	v.SetConfigName("scriptd")
	v.SetConfigType("json")
	v.AddConfigPath(dir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to <dir>/scriptd.json
func (c *Config) Save(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, "scriptd.json"), data, 0644)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Version != 1 {
		return &ConfigError{Field: "version", Message: "unsupported config version"}
	}
	if c.Server.Addr == "" {
		return &ConfigError{Field: "server.addr", Message: "listen address is required"}
	}
	if c.Analysis.ServiceURL == "" {
		return &ConfigError{Field: "analysis.serviceUrl", Message: "analysis service URL is required"}
	}
	if c.Analysis.TimeoutSeconds <= 0 {
		return &ConfigError{Field: "analysis.timeoutSeconds", Message: "timeout must be positive"}
	}
	if c.Analysis.MinSimilarity < 0 || c.Analysis.MinSimilarity > 1 {
		return &ConfigError{Field: "analysis.minSimilarity", Message: "similarity threshold must be in [0,1]"}
	}
	if c.Jobs.QueueSize <= 0 {
		return &ConfigError{Field: "jobs.queueSize", Message: "queue size must be positive"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error in field '%s': %s", e.Field, e.Message)
}
