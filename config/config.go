// Package config loads service configuration from config.yaml plus a local
// .env for secrets. Environment variables override file values for the
// secret-bearing fields so deployments never write tokens to disk.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Provider  ProviderConfig  `yaml:"provider"`
	Documents DocumentsConfig `yaml:"documents"`
	Closing   ClosingConfig   `yaml:"closing"`
	Queue     QueueConfig     `yaml:"queue"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	APIToken string `yaml:"api_token"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type ProviderConfig struct {
	BaseURL       string        `yaml:"base_url"`
	PhoneNumberID string        `yaml:"phone_number_id"`
	Token         string        `yaml:"token"`
	VerifyToken   string        `yaml:"verify_token"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxRetries    int           `yaml:"max_retries"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
}

type DocumentsConfig struct {
	Dir     string `yaml:"dir"`
	BaseURL string `yaml:"base_url"`
}

type ClosingConfig struct {
	Workers int  `yaml:"workers"`
	Notify  bool `yaml:"notify"`
}

type QueueConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	Workers      int           `yaml:"workers"`
	MaxAttempts  int           `yaml:"max_attempts"`
	BackoffBase  time.Duration `yaml:"backoff_base"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Load reads the yaml file at path, after sourcing .env when present.
func Load(path string) (*Config, error) {
	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PROVIDER_TOKEN"); v != "" {
		c.Provider.Token = v
	}
	if v := os.Getenv("PROVIDER_VERIFY_TOKEN"); v != "" {
		c.Provider.VerifyToken = v
	}
	if v := os.Getenv("API_TOKEN"); v != "" {
		c.Server.APIToken = v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		c.Database.Path = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Database.Path == "" {
		c.Database.Path = "./data/cuentas.db"
	}
	if c.Documents.Dir == "" {
		c.Documents.Dir = "./data/documents"
	}
	if c.Closing.Workers == 0 {
		c.Closing.Workers = 8
	}
	if c.Queue.PollInterval == 0 {
		c.Queue.PollInterval = 5 * time.Second
	}
	if c.Queue.Workers == 0 {
		c.Queue.Workers = 4
	}
	if c.Queue.MaxAttempts == 0 {
		c.Queue.MaxAttempts = 5
	}
	if c.Queue.BackoffBase == 0 {
		c.Queue.BackoffBase = 30 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}
