package config_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/Chronicle/internal/config"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := config.FromEnv()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, config.StorageMemory, cfg.Storage)
	assert.Equal(t, config.DefaultFactoryAddress, cfg.FactoryAddress)
	assert.False(t, cfg.StrictSchemas)
	_, ok := cfg.Owner()
	assert.False(t, ok)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("CHRONICLE_HTTP_ADDR", ":9090")
	t.Setenv("CHRONICLE_ENV", "PROD")
	t.Setenv("CHRONICLE_STORAGE", "sqlite")
	t.Setenv("CHRONICLE_STRICT_SCHEMAS", "true")
	t.Setenv("CHRONICLE_DEV_OWNER", "0x00000000000000000000000000000000000000a1")

	cfg, err := config.FromEnv()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "prod", cfg.Env)
	assert.Equal(t, config.StorageSQLite, cfg.Storage)
	assert.True(t, cfg.StrictSchemas)
	owner, ok := cfg.Owner()
	require.True(t, ok)
	assert.Equal(t, common.HexToAddress("0xa1").Hex(), owner.String())
}

func TestFromEnv_BadBool(t *testing.T) {
	t.Setenv("CHRONICLE_STRICT_SCHEMAS", "maybe")
	_, err := config.FromEnv()
	assert.Error(t, err)
}

func TestBindFlags_OverrideEnv(t *testing.T) {
	t.Setenv("CHRONICLE_HTTP_ADDR", ":9090")
	cfg, err := config.FromEnv()
	require.NoError(t, err)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg.BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"--http-addr", ":7070", "--storage", "sqlite"}))

	assert.Equal(t, ":7070", cfg.HTTPAddr)
	assert.Equal(t, "sqlite", cfg.Storage)
}

func TestValidate_Rejects(t *testing.T) {
	base, err := config.FromEnv()
	require.NoError(t, err)

	cases := map[string]func(*config.Config){
		"env":       func(c *config.Config) { c.Env = "staging" },
		"storage":   func(c *config.Config) { c.Storage = "redis" },
		"db path":   func(c *config.Config) { c.Storage = "sqlite"; c.DBPath = " " },
		"factory":   func(c *config.Config) { c.FactoryAddress = "nope" },
		"dev owner": func(c *config.Config) { c.DevOwner = "0x12" },
		"log level": func(c *config.Config) { c.LogLevel = "loud" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base
			mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), config.ErrInvalidConfig)
		})
	}
}

func TestLogger_FormatByEnv(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{Env: "prod", LogLevel: "info"}
	cfg.Logger(&buf).Info("hello", "k", "v")
	assert.True(t, strings.HasPrefix(buf.String(), "{"), buf.String())

	buf.Reset()
	cfg.Env = "dev"
	cfg.Logger(&buf).Debug("hidden")
	assert.Empty(t, buf.String())
}
