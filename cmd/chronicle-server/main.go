package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/schema"
	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/service"
	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/store"
	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/store/memory"
	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/store/sqlite"
	"github.com/BrandonDHaskell/Chronicle/internal/config"
	"github.com/BrandonDHaskell/Chronicle/internal/db"
	"github.com/BrandonDHaskell/Chronicle/internal/httpapi"
	"github.com/BrandonDHaskell/Chronicle/internal/telemetry"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "chronicle-server: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	fs := pflag.NewFlagSet("chronicle-server", pflag.ContinueOnError)
	cfg.BindFlags(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := cfg.Logger(os.Stdout).With("service", "chronicle-server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "chronicle-server", cfg.OTelEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	// Stores
	var provider store.Provider
	switch cfg.Storage {
	case config.StorageSQLite:
		sqlDB, err := db.Open(ctx, db.Config{Path: cfg.DBPath, Env: cfg.Env})
		if err != nil {
			return err
		}
		defer sqlDB.Close()
		writer := db.NewWorker(sqlDB)
		defer writer.Close()
		provider = sqlite.NewProvider(sqlDB, writer)
	default:
		provider = memory.NewProvider()
	}

	// Services
	registry := schema.Default()
	factory, err := service.NewFactory(ctx, provider, registry, service.FactoryConfig{
		Address:       cfg.Factory(),
		StrictSchemas: cfg.StrictSchemas,
	}, logger)
	if err != nil {
		return err
	}
	if owner, ok := cfg.Owner(); ok && cfg.Env == "dev" {
		h, err := service.SeedDev(ctx, factory, owner)
		if err != nil {
			return err
		}
		logger.Info("dev store ready", "owner", owner, "store", h)
	}

	// HTTP
	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:   logger,
		Addr:     cfg.HTTPAddr,
		Executor: service.NewExecutor(factory, logger),
	})

	go func() {
		logger.Info("listening", "addr", cfg.HTTPAddr, "storage", cfg.Storage, "env", cfg.Env)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown", "err", err)
	}
	return nil
}

