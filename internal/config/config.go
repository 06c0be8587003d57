package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"readTimeout"`
		WriteTimeout    time.Duration `yaml:"writeTimeout"`
		ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
		AllowedOrigins  []string      `yaml:"allowedOrigins"`
	} `yaml:"server"`

	AI struct {
		APIKey      string `yaml:"apiKey"`
		BaseURL     string `yaml:"baseURL"`
		Model       string `yaml:"model"`
		MaxTokens   int    `yaml:"maxTokens"`
		ImageDetail string `yaml:"imageDetail"`
	} `yaml:"ai"`

	Upload struct {
		MaxBytes     int64    `yaml:"maxBytes"`
		AllowedTypes []string `yaml:"allowedTypes"`
	} `yaml:"upload"`

	Auth struct {
		// client name -> API key; empty disables auth
		APIKeys map[string]string `yaml:"apiKeys"`
	} `yaml:"auth"`

	RateLimit struct {
		Capacity   int `yaml:"capacity"`
		RefillRate int `yaml:"refillRate"`
	} `yaml:"rateLimit"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	var cfg Config
	cfg.Server.Port = 8080
	cfg.Server.ReadTimeout = 30 * time.Second
	// model calls are slow and have no timeout of their own
	cfg.Server.WriteTimeout = 2 * time.Minute
	cfg.Server.ShutdownTimeout = 10 * time.Second
	cfg.AI.BaseURL = "https://api.openai.com/v1"
	cfg.AI.Model = "gpt-4o-mini"
	cfg.AI.MaxTokens = 1024
	cfg.AI.ImageDetail = "auto"
	cfg.Upload.MaxBytes = 10 << 20
	cfg.Upload.AllowedTypes = []string{"image/png", "image/jpeg", "image/webp"}
	cfg.RateLimit.Capacity = 10
	cfg.RateLimit.RefillRate = 1
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	return &cfg
}

// Load reads an optional .env file, the yaml file at path (missing is fine)
// and environment overrides, in that order.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	// API_KEY is accepted for compatibility with the browser build
	for _, key := range []string{"API_KEY", "OPENAI_API_KEY"} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			c.AI.APIKey = v
		}
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		c.AI.BaseURL = v
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		c.AI.Model = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("PORT"); v != "" {
		p, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid PORT: %q", v)
		}
		c.Server.Port = p
	}
	return nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.AI.APIKey == "" {
		return errors.New("missing API credential: set OPENAI_API_KEY")
	}
	if c.AI.Model == "" {
		return errors.New("ai.model must not be empty")
	}
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("upload.maxBytes must be > 0 (got %d)", c.Upload.MaxBytes)
	}
	if len(c.Upload.AllowedTypes) == 0 {
		return errors.New("upload.allowedTypes must not be empty")
	}
	if c.RateLimit.Capacity <= 0 || c.RateLimit.RefillRate <= 0 {
		return fmt.Errorf("rateLimit capacity and refillRate must be > 0 (got %d, %d)",
			c.RateLimit.Capacity, c.RateLimit.RefillRate)
	}
	switch c.AI.ImageDetail {
	case "auto", "low", "high":
	default:
		return fmt.Errorf("ai.imageDetail must be auto, low or high (got %q)", c.AI.ImageDetail)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
