// Package config loads khata.yaml, then applies KHATA_* environment
// overrides (optionally from a .env file), and validates the result.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/simonvc/khata/internal/posting"
	"github.com/simonvc/khata/internal/recon"
)

const (
	DefaultPath = "khata.yaml"
	EnvPrefix   = "KHATA"
)

type Config struct {
	Business BusinessConfig `yaml:"business" envconfig:"BUSINESS"`

	DB     string `yaml:"db" envconfig:"DB" validate:"required"`
	Addr   string `yaml:"addr" envconfig:"ADDR" validate:"required"`
	Server string `yaml:"server" envconfig:"SERVER" validate:"required,url"`

	LogFormat string `yaml:"log_format" envconfig:"LOG_FORMAT" validate:"oneof=text json"`
	LogLevel  string `yaml:"log_level" envconfig:"LOG_LEVEL" validate:"oneof=debug info warn error"`

	RequestTimeout time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT" validate:"gt=0"`
	// RateLimit is requests per minute per client IP; 0 disables it.
	RateLimit int `yaml:"rate_limit" envconfig:"RATE_LIMIT" validate:"gte=0"`

	PostRetries int           `yaml:"post_retries" envconfig:"POST_RETRIES" validate:"gte=1,lte=20"`
	PostBackoff time.Duration `yaml:"post_backoff" envconfig:"POST_BACKOFF" validate:"gte=0"`

	Recon recon.Config `yaml:"recon" envconfig:"RECON"`
}

type BusinessConfig struct {
	Name     string `yaml:"name" envconfig:"NAME" validate:"required"`
	Address  string `yaml:"address,omitempty" envconfig:"ADDRESS"`
	GSTIN    string `yaml:"gstin,omitempty" envconfig:"GSTIN" validate:"omitempty,len=15,alphanum"`
	CashCode int    `yaml:"cash_account" envconfig:"CASH_ACCOUNT" validate:"gte=1000,lte=1999"`
}

func Default() *Config {
	return &Config{
		Business: BusinessConfig{
			Name:     "My Business",
			CashCode: 1001,
		},
		DB:             "khata.db",
		Addr:           ":8888",
		Server:         "http://localhost:8888",
		LogFormat:      "text",
		LogLevel:       "info",
		RequestTimeout: 30 * time.Second,
		RateLimit:      600,
		PostRetries:    posting.DefaultRetry.Attempts,
		PostBackoff:    posting.DefaultRetry.Backoff,
		Recon:          recon.DefaultConfig(),
	}
}

// Load builds the configuration from defaults, the YAML file at path and
// the environment. A missing file at the default path is not an error; a
// missing file someone asked for by name is.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if !c.Recon.AmountTolerance.IsPositive() {
		return errors.New("invalid config: recon.amount_tolerance must be positive")
	}
	return nil
}

// Save writes the configuration as YAML.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

func (c *Config) Retry() posting.RetryPolicy {
	return posting.RetryPolicy{Attempts: c.PostRetries, Backoff: c.PostBackoff}
}

// NewLogger returns a logger writing to w in the configured format.
func NewLogger(c *Config, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
