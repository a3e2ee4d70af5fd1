// Package config loads service settings from an optional YAML file, then
// applies CLOUDCITY_* environment overrides and validates the result.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the complete service configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Storage   StorageConfig   `yaml:"storage"`
	Graph     GraphConfig     `yaml:"graph"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	AWS       AWSConfig       `yaml:"aws"`
	Export    ExportConfig    `yaml:"export"`
}

type ServerConfig struct {
	Port         int           `yaml:"port" validate:"gte=1,lte=65535"`
	ReadTimeout  time.Duration `yaml:"readTimeout" validate:"gt=0"`
	WriteTimeout time.Duration `yaml:"writeTimeout" validate:"gt=0"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn warning error fatal"`
	Format string `yaml:"format" validate:"oneof=json console"`
}

type StorageConfig struct {
	Driver string `yaml:"driver" validate:"oneof=memory sqlite"`
	// Path is the SQLite database file; required for the sqlite driver
	Path string `yaml:"path" validate:"required_if=Driver sqlite"`
}

type GraphConfig struct {
	TopN int `yaml:"topN" validate:"gte=1,lte=100"`
}

type DiscoveryConfig struct {
	RunTimeout      time.Duration `yaml:"runTimeout" validate:"gt=0"`
	CallTimeout     time.Duration `yaml:"callTimeout" validate:"gt=0"`
	TypeConcurrency int           `yaml:"typeConcurrency" validate:"gte=1,lte=16"`
	// Stub replaces AWS with a fixed sample topology
	Stub bool `yaml:"stub"`
}

type AWSConfig struct {
	MaxAttempts       int     `yaml:"maxAttempts" validate:"gte=1,lte=20"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond" validate:"gt=0"`
	Profile           string  `yaml:"profile"`
}

type ExportConfig struct {
	Dir          string        `yaml:"dir" validate:"required"`
	Supersede    bool          `yaml:"supersede"`
	ApplyTimeout time.Duration `yaml:"applyTimeout" validate:"gt=0"`
	// ApplyCommand is run inside the artifact directory; empty means a no-op apply
	ApplyCommand []string `yaml:"applyCommand"`
}

// Default returns the configuration used when no file or override is given
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		Log:     LogConfig{Level: "info", Format: "json"},
		Storage: StorageConfig{Driver: "memory"},
		Graph:   GraphConfig{TopN: 5},
		Discovery: DiscoveryConfig{
			RunTimeout:      15 * time.Minute,
			CallTimeout:     30 * time.Second,
			TypeConcurrency: 1,
		},
		AWS: AWSConfig{
			MaxAttempts:       5,
			RequestsPerSecond: 10,
		},
		Export: ExportConfig{
			Dir:          "exports",
			ApplyTimeout: 10 * time.Minute,
		},
	}
}

// Load reads path (if non-empty), applies environment overrides and validates
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnvInt("CLOUDCITY_PORT", c.Server.Port)
	c.Log.Level = getEnv("CLOUDCITY_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("CLOUDCITY_LOG_FORMAT", c.Log.Format)
	c.Storage.Driver = getEnv("CLOUDCITY_STORAGE_DRIVER", c.Storage.Driver)
	c.Storage.Path = getEnv("CLOUDCITY_STORAGE_PATH", c.Storage.Path)
	c.Graph.TopN = getEnvInt("CLOUDCITY_GRAPH_TOP_N", c.Graph.TopN)
	c.Discovery.RunTimeout = getEnvDuration("CLOUDCITY_DISCOVERY_RUN_TIMEOUT", c.Discovery.RunTimeout)
	c.Discovery.CallTimeout = getEnvDuration("CLOUDCITY_DISCOVERY_CALL_TIMEOUT", c.Discovery.CallTimeout)
	c.Discovery.TypeConcurrency = getEnvInt("CLOUDCITY_DISCOVERY_TYPE_CONCURRENCY", c.Discovery.TypeConcurrency)
	c.Discovery.Stub = getEnvBool("CLOUDCITY_DISCOVERY_STUB", c.Discovery.Stub)
	c.AWS.MaxAttempts = getEnvInt("CLOUDCITY_AWS_MAX_ATTEMPTS", c.AWS.MaxAttempts)
	c.AWS.Profile = getEnv("CLOUDCITY_AWS_PROFILE", c.AWS.Profile)
	c.Export.Dir = getEnv("CLOUDCITY_EXPORT_DIR", c.Export.Dir)
	c.Export.Supersede = getEnvBool("CLOUDCITY_EXPORT_SUPERSEDE", c.Export.Supersede)
	c.Export.ApplyTimeout = getEnvDuration("CLOUDCITY_EXPORT_APPLY_TIMEOUT", c.Export.ApplyTimeout)
	if cmd := getEnv("CLOUDCITY_EXPORT_APPLY_COMMAND", ""); cmd != "" {
		c.Export.ApplyCommand = strings.Fields(cmd)
	}
}

func getEnv(key, defaultVal string) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val, exists := os.LookupEnv(key); exists {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val, exists := os.LookupEnv(key); exists {
		return strings.ToLower(val) == "true" || val == "1"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
