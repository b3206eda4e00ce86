// Package config loads process configuration from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/jrsteele09/go-opencloud-oauth/oauthapp"
	"github.com/rs/zerolog"
)

// Config holds every OPENCLOUD_* setting.
type Config struct {
	ClientID     uint64 `env:"OPENCLOUD_CLIENT_ID" validate:"required"`
	ClientSecret string `env:"OPENCLOUD_CLIENT_SECRET"`
	RedirectURI  string `env:"OPENCLOUD_REDIRECT_URI" envDefault:"http://localhost:8080/callback" validate:"required,url"`

	// Scopes requested by /login. Space separated.
	Scopes  []string `env:"OPENCLOUD_SCOPES" envSeparator:" " envDefault:"openid profile" validate:"min=1,dive,required"`
	BaseURL string   `env:"OPENCLOUD_BASE_URL" envDefault:"https://apis.roblox.com/oauth/" validate:"required,url"`

	ListenAddr string `env:"OPENCLOUD_LISTEN_ADDR" envDefault:":8080" validate:"required"`

	// RedisAddr selects the Redis flow store; empty keeps flows in memory.
	RedisAddr     string `env:"OPENCLOUD_REDIS_ADDR"`
	RedisPassword string `env:"OPENCLOUD_REDIS_PASSWORD"`
	RedisDB       int    `env:"OPENCLOUD_REDIS_DB" envDefault:"0" validate:"gte=0"`

	// BoltPath selects the bbolt token store; empty keeps sessions in memory.
	BoltPath string `env:"OPENCLOUD_BOLT_PATH"`

	FlowTTL        time.Duration `env:"OPENCLOUD_FLOW_TTL" envDefault:"10m" validate:"gt=0"`
	HTTPTimeout    time.Duration `env:"OPENCLOUD_HTTP_TIMEOUT" envDefault:"10s" validate:"gt=0"`
	ResourcePolicy string        `env:"OPENCLOUD_RESOURCE_POLICY" envDefault:"allow-empty" validate:"oneof=allow-empty require-grant"`
	UserAgent      string        `env:"OPENCLOUD_USER_AGENT"`
	LogLevel       string        `env:"OPENCLOUD_LOG_LEVEL" envDefault:"info" validate:"oneof=trace debug info warn error"`
}

// Load reads the given .env files (or ./.env when present), then the
// environment, and validates the result. Real environment variables win over
// .env values.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil {
		if len(files) > 0 || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func (c *Config) Credentials() oauthapp.Credentials {
	return oauthapp.Credentials{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURI:  c.RedirectURI,
	}
}

// AppOptions translates the configuration into oauthapp options.
func (c *Config) AppOptions(logger zerolog.Logger) ([]oauthapp.Option, error) {
	policy, err := oauthapp.ParseResourcePolicy(c.ResourcePolicy)
	if err != nil {
		return nil, err
	}
	return []oauthapp.Option{
		oauthapp.WithEndpoints(oauthapp.EndpointsFromBase(c.BaseURL)),
		oauthapp.WithHTTPClient(&http.Client{Timeout: c.HTTPTimeout}),
		oauthapp.WithUserAgent(c.UserAgent),
		oauthapp.WithResourcePolicy(policy),
		oauthapp.WithLogger(logger),
	}, nil
}

// NewApp builds the configured oauthapp.App.
func (c *Config) NewApp(logger zerolog.Logger) (*oauthapp.App, error) {
	opts, err := c.AppOptions(logger)
	if err != nil {
		return nil, err
	}
	return oauthapp.New(c.Credentials(), opts...)
}

// Level parses LogLevel.
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}
