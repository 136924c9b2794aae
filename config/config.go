// Package config loads server settings from the environment.
//
// A .env file in the working directory is loaded first when present; real
// environment variables win over it. Command-line flags are applied on top by
// the CLI.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every runtime setting.
type Config struct {
	Host string `env:"HOST" envDefault:"localhost"`
	Port int    `env:"PORT" envDefault:"8080"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`
	LogFile   string `env:"LOG_FILE"`

	// StoreDriver is one of memory, file, sqlite or postgres.
	StoreDriver string `env:"STORE_DRIVER" envDefault:"file"`
	DataDir     string `env:"DATA_DIR" envDefault:"data"`
	DatabaseURL string `env:"DATABASE_URL"`

	MenuDir string `env:"MENU_DIR" envDefault:"menus"`

	JWTSecret string        `env:"JWT_SECRET"`
	TokenTTL  time.Duration `env:"TOKEN_TTL" envDefault:"12h"`

	SessionTTL   time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	ReapInterval time.Duration `env:"REAP_INTERVAL" envDefault:"1h"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	// AMQPURL enables the cross-instance event relay when set.
	AMQPURL      string `env:"AMQP_URL"`
	AMQPExchange string `env:"AMQP_EXCHANGE" envDefault:"groupcart.events"`

	NgrokEnabled   bool   `env:"NGROK_ENABLED"`
	NgrokAuthToken string `env:"NGROK_AUTHTOKEN"`
	NgrokDomain    string `env:"NGROK_DOMAIN"`

	// MCPBaseURL is the API the stdio MCP server talks to. Empty starts an internal one.
	MCPBaseURL string `env:"MCP_BASE_URL"`
	MCPToken   string `env:"MCP_TOKEN"`
}

var knownDrivers = map[string]bool{"memory": true, "file": true, "sqlite": true, "postgres": true}

// Load reads .env (if present) and parses the environment into a Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return Parse()
}

// Parse reads the current environment without touching .env.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}

// Addr is the host:port the HTTP server binds.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	case !knownDrivers[c.StoreDriver]:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	case c.StoreDriver == "postgres" && c.DatabaseURL == "":
		return errors.New("DATABASE_URL is required for the postgres store")
	case (c.StoreDriver == "file" || c.StoreDriver == "sqlite") && c.DataDir == "":
		return errors.New("DATA_DIR is required for file and sqlite stores")
	case c.SessionTTL <= 0:
		return fmt.Errorf("session ttl must be positive, got %s", c.SessionTTL)
	case c.ReapInterval <= 0:
		return fmt.Errorf("reap interval must be positive, got %s", c.ReapInterval)
	case c.TokenTTL <= 0:
		return fmt.Errorf("token ttl must be positive, got %s", c.TokenTTL)
	}
	return nil
}
