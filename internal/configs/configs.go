/*
Package configs is responsible for loading and validating the relay's configuration settings.

Settings come from environment variables, optionally pre-loaded from a .env file in the
working directory. They cover the running environment, the relay listener, the admin HTTP
surface, the optional participant journal, and the outbound queue behavior.
*/
package configs

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/samber/lo"
)

// EnvDevelopment is the environment name that enables console logging and relaxed origin checks.
const EnvDevelopment = "development"

// AppConfig contains all configuration parameters required for the relay to run.
type AppConfig struct {
	// General Server Settings
	Environment string `env:"ENVIRONMENT" envDefault:"development" validate:"required"`
	Host        string `env:"HOST"`
	Port        int    `env:"PORT" envDefault:"5000" validate:"min=1024,max=65535"`

	// Admin HTTP Settings
	AdminPort      int      `env:"ADMIN_PORT" envDefault:"8080" validate:"eq=0|min=1024,max=65535"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`

	// Journal Settings
	DatabaseDSN   string `env:"DATABASE_URL"`
	JournalBuffer int    `env:"JOURNAL_BUFFER" envDefault:"1024" validate:"min=1"`

	// Connection Settings
	MaxFrameSize      uint32        `env:"MAX_FRAME_SIZE" envDefault:"0"`
	OutboundQueueSize int           `env:"OUTBOUND_QUEUE_SIZE" envDefault:"256" validate:"min=1"`
	OverflowPolicy    string        `env:"OVERFLOW_POLICY" envDefault:"block" validate:"oneof=block disconnect"`
	WriteTimeout      time.Duration `env:"WRITE_TIMEOUT" envDefault:"0s" validate:"gte=0"`
}

// LoadConfig reads a .env file if one exists, then parses and validates the environment.
func LoadConfig() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	return Parse()
}

// Parse reads the configuration from the process environment without consulting a .env file.
func Parse() (*AppConfig, error) {
	cfg := &AppConfig{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.AllowedOrigins = lo.FilterMap(cfg.AllowedOrigins, func(origin string, _ int) (string, bool) {
		trimmed := strings.TrimSpace(origin)
		return trimmed, trimmed != ""
	})

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// IsDevelopment reports whether the relay runs in the development environment.
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == EnvDevelopment
}

// ListenAddress is the TCP address of the relay listener.
func (c *AppConfig) ListenAddress() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// AdminAddress is the TCP address of the admin HTTP server, or "" when it is disabled.
func (c *AppConfig) AdminAddress() string {
	if c.AdminPort == 0 {
		return ""
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(c.AdminPort))
}

// JournalEnabled reports whether a database was configured for the participant journal.
func (c *AppConfig) JournalEnabled() bool {
	return c.DatabaseDSN != ""
}
