package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"

	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/types"
)

// Storage backends selectable with CHRONICLE_STORAGE.
const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
)

// DefaultFactoryAddress seeds store handle derivation when none is configured.
const DefaultFactoryAddress = "0x0000000000000000000000000000000000c0ffee"

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	HTTPAddr string `env:"CHRONICLE_HTTP_ADDR" envDefault:":8080"`

	Env      string `env:"CHRONICLE_ENV" envDefault:"dev"` // "dev" | "prod"
	LogLevel string `env:"CHRONICLE_LOG_LEVEL" envDefault:"info"`

	// Storage
	Storage string `env:"CHRONICLE_STORAGE" envDefault:"memory"` // "memory" | "sqlite"
	DBPath  string `env:"CHRONICLE_DB_PATH" envDefault:"./data/chronicle.db"`

	FactoryAddress string `env:"CHRONICLE_FACTORY_ADDRESS" envDefault:"0x0000000000000000000000000000000000c0ffee"`
	StrictSchemas  bool   `env:"CHRONICLE_STRICT_SCHEMAS"`

	// DevOwner gets a starter store on boot in dev.
	DevOwner string `env:"CHRONICLE_DEV_OWNER"`

	// OTelEndpoint enables OTLP/HTTP trace export when set.
	OTelEndpoint string `env:"CHRONICLE_OTEL_ENDPOINT"`
}

// FromEnv loads configuration from environment variables.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// BindFlags registers command-line overrides for cfg. Values already loaded
// from the environment become the flag defaults.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.HTTPAddr, "http-addr", c.HTTPAddr, "HTTP listen address")
	fs.StringVar(&c.Env, "env", c.Env, "environment: dev or prod")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level: debug, info, warn or error")
	fs.StringVar(&c.Storage, "storage", c.Storage, "storage backend: memory or sqlite")
	fs.StringVar(&c.DBPath, "db-path", c.DBPath, "SQLite database path")
	fs.StringVar(&c.FactoryAddress, "factory-address", c.FactoryAddress, "address that store handles derive from")
	fs.BoolVar(&c.StrictSchemas, "strict-schemas", c.StrictSchemas, "reject appends of unregistered event types")
	fs.StringVar(&c.DevOwner, "dev-owner", c.DevOwner, "identity that receives a starter store in dev")
	fs.StringVar(&c.OTelEndpoint, "otel-endpoint", c.OTelEndpoint, "OTLP/HTTP trace endpoint")
}

// Validate normalizes enumerations and rejects values the server cannot run
// with.
func (c *Config) Validate() error {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	if c.Env != "dev" && c.Env != "prod" {
		return fmt.Errorf("%w: env %q", ErrInvalidConfig, c.Env)
	}
	c.Storage = strings.ToLower(strings.TrimSpace(c.Storage))
	if c.Storage != StorageMemory && c.Storage != StorageSQLite {
		return fmt.Errorf("%w: storage %q", ErrInvalidConfig, c.Storage)
	}
	if c.Storage == StorageSQLite && strings.TrimSpace(c.DBPath) == "" {
		return fmt.Errorf("%w: sqlite storage needs a db path", ErrInvalidConfig)
	}
	if !common.IsHexAddress(c.FactoryAddress) {
		return fmt.Errorf("%w: factory address %q", ErrInvalidConfig, c.FactoryAddress)
	}
	if c.DevOwner != "" {
		if _, err := types.ParseIdentity(c.DevOwner); err != nil {
			return fmt.Errorf("%w: dev owner: %w", ErrInvalidConfig, err)
		}
	}
	if _, err := c.level(); err != nil {
		return err
	}
	return nil
}

// Factory returns the parsed factory address. Call after Validate.
func (c Config) Factory() common.Address {
	return common.HexToAddress(c.FactoryAddress)
}

// Owner returns the parsed dev owner, if one is configured.
func (c Config) Owner() (types.Identity, bool) {
	if c.DevOwner == "" {
		return "", false
	}
	id, err := types.ParseIdentity(c.DevOwner)
	return id, err == nil
}

func (c Config) level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("%w: log level %q", ErrInvalidConfig, c.LogLevel)
	}
	return l, nil
}

// Logger builds the process logger: text in dev, JSON in prod.
func (c Config) Logger(w io.Writer) *slog.Logger {
	l, err := c.level()
	if err != nil {
		l = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: l}
	if c.Env == "prod" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
