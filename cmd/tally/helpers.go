package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/tallyhq/tally/internal/common"
	"github.com/tallyhq/tally/internal/config"
	"github.com/tallyhq/tally/internal/engine"
	"github.com/tallyhq/tally/internal/llm"
	"github.com/tallyhq/tally/internal/notify"
	"github.com/tallyhq/tally/internal/service"
	"github.com/tallyhq/tally/internal/storage"
)

// initStorage opens the configured database and brings the schema current.
// Migrations are idempotent, so every command can call this safely.
func initStorage(ctx context.Context) (service.Storage, error) {
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dbPath = filepath.Join(home, ".local", "share", "tally", "tally.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// initEngine assembles the full engine: storage, per-tenant policy,
// validation gate client, and the default slog notification sink.
func initEngine(ctx context.Context) (*engine.Engine, service.Storage, error) {
	store, err := initStorage(ctx)
	if err != nil {
		return nil, nil, err
	}

	policies, err := config.Load()
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	validator, err := initValidator()
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	notifier := notify.NewEmitter()
	notifier.Subscribe(notify.SlogSink{})

	return engine.New(store, policies, validator, notifier), store, nil
}

// initValidator builds the validation gate client from the validation.*
// config keys. The API key may also come from TALLY_VALIDATION_API_KEY.
func initValidator() (llm.Client, error) {
	viper.SetDefault("validation.provider", "anthropic")

	cfg := llm.Config{
		Provider:    viper.GetString("validation.provider"),
		APIKey:      viper.GetString("validation.api_key"),
		Model:       viper.GetString("validation.model"),
		Temperature: viper.GetFloat64("validation.temperature"),
		MaxTokens:   viper.GetInt("validation.max_tokens"),
		Timeout:     viper.GetDuration("validation.timeout"),
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("TALLY_VALIDATION_API_KEY")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	if cfg.APIKey == "" {
		slog.Warn("No validation API key configured, suggestions will stay pending until validated")
		return llm.Disabled(), nil
	}

	client, err := llm.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create validation client: %w", err)
	}
	return client, nil
}

// requireTenant returns the tenant id from the --tenant flag or TALLY_TENANT.
func requireTenant() (string, error) {
	tenantID := viper.GetString("tenant")
	if tenantID == "" {
		return "", fmt.Errorf("%w: pass --tenant or set TALLY_TENANT", common.ErrTenantRequired)
	}
	return tenantID, nil
}
