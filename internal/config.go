package internal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Endpoints holds the backend paths for every consumed capability
type Endpoints struct {
	Login          string `yaml:"login" validate:"required,startswith=/"`
	Register       string `yaml:"register" validate:"required,startswith=/"`
	Sessions       string `yaml:"sessions" validate:"required,startswith=/"`
	Chat           string `yaml:"chat" validate:"required,startswith=/"`
	DocumentUpload string `yaml:"document_upload" validate:"required,startswith=/"`
	Documents      string `yaml:"documents" validate:"required,startswith=/"`
	Options        string `yaml:"options" validate:"required,startswith=/"`
	Graph          string `yaml:"graph" validate:"required,startswith=/"`
}

// Config is the client configuration
type Config struct {
	ServerURL          string        `yaml:"server_url" validate:"required,url"`
	RequestTimeout     time.Duration `yaml:"request_timeout" validate:"gt=0"`
	UploadTimeout      time.Duration `yaml:"upload_timeout" validate:"gt=0"`
	HydrateConcurrency int           `yaml:"hydrate_concurrency" validate:"gte=0"`
	Username           string        `yaml:"username,omitempty"`
	LogFile            string        `yaml:"log_file,omitempty"`
	Endpoints          Endpoints     `yaml:"endpoints"`
}

// DefaultConfig returns the built-in configuration
func DefaultConfig() *Config {
	return &Config{
		ServerURL:          "http://localhost:8000",
		RequestTimeout:     2 * time.Minute,
		UploadTimeout:      10 * time.Minute,
		HydrateConcurrency: 0,
		Endpoints: Endpoints{
			Login:          "/login",
			Register:       "/register",
			Sessions:       "/sessions",
			Chat:           "/chat",
			DocumentUpload: "/documents/upload",
			Documents:      "/documents",
			Options:        "/options",
			Graph:          "/graph",
		},
	}
}

// DefaultConfigPath returns ~/.ragulate/config.yaml
func DefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".ragulate", "config.yaml"), nil
}

// LoadConfig layers defaults, the YAML file at path, .env and RAGULATE_*
// environment variables, in that order. A missing file is not an error
// unless the path was given explicitly.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		if p, err := DefaultConfigPath(); err == nil {
			path = p
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
			LogDebug("Loaded config from %s", path)
		case errors.Is(err, os.ErrNotExist) && !explicit:
			LogDebug("No config file at %s, using defaults", path)
		default:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("RAGULATE_SERVER_URL"); v != "" {
		c.ServerURL = v
	}
	if v := os.Getenv("RAGULATE_USERNAME"); v != "" {
		c.Username = v
	}
	if v := os.Getenv("RAGULATE_LOG_FILE"); v != "" {
		c.LogFile = v
	}
	if v := os.Getenv("RAGULATE_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid RAGULATE_REQUEST_TIMEOUT: %w", err)
		}
		c.RequestTimeout = d
	}
	if v := os.Getenv("RAGULATE_HYDRATE_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid RAGULATE_HYDRATE_CONCURRENCY: %w", err)
		}
		c.HydrateConcurrency = n
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration for missing or malformed values
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Save writes the configuration as YAML, creating the parent directory
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}
