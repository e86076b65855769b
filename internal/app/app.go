// Package app assembles the dashboard service from configuration. It is
// shared by the server and the insightctl command.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/insights/internal/chart"
	"github.com/JonMunkholm/insights/internal/config"
	"github.com/JonMunkholm/insights/internal/core"
	"github.com/JonMunkholm/insights/internal/qa"
	"github.com/JonMunkholm/insights/internal/storage"
)

// App holds the assembled service and the resources it owns.
type App struct {
	Service *core.Service
	Store   storage.Store

	pool *pgxpool.Pool
}

// New opens the configured store and builds the service. Questions are
// disabled when no assistant key is configured.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	store, pool, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var asker qa.Asker
	client, err := qa.NewClient(qa.Config{
		BaseURL:   cfg.QA.BaseURL,
		APIKey:    cfg.QA.APIKey,
		Model:     cfg.QA.Model,
		Timeout:   cfg.QA.Timeout,
		MaxTokens: cfg.QA.MaxTokens,
	}, nil)
	switch {
	case errors.Is(err, qa.ErrDisabled):
		slog.Info("questions disabled, no assistant key configured")
	case err != nil:
		if pool != nil {
			pool.Close()
		}
		return nil, fmt.Errorf("create assistant client: %w", err)
	default:
		asker = client
		slog.Info("questions enabled", "model", client.Model())
	}

	service := core.NewService(
		store,
		chart.NewRenderer(cfg.Dashboard.ChartAssetsHost),
		asker,
		core.NewLimiter(cfg.QA.MaxConcurrent, cfg.QA.MaxWait),
		core.Options{
			LenientNumbers:    cfg.Dashboard.LenientNumbers,
			FilterMaxDistinct: cfg.Dashboard.FilterMaxDistinct,
			PieSort:           cfg.Dashboard.PieSort,
			PreviewRows:       cfg.Dashboard.PreviewRows,
			SampleRows:        cfg.QA.SampleRows,
		},
	)

	return &App{Service: service, Store: store, pool: pool}, nil
}

// Close releases the database pool, if any.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, *pgxpool.Pool, error) {
	opts := storage.Options{MaxBytes: cfg.Upload.MaxFileSize}

	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		pool, err := storage.Connect(ctx, storage.PoolConfig{
			URL:             cfg.Storage.DatabaseURL,
			MaxConns:        cfg.Storage.MaxConns,
			MinConns:        cfg.Storage.MinConns,
			MaxConnLifetime: cfg.Storage.MaxConnLifetime,
			MaxConnIdleTime: cfg.Storage.MaxConnIdleTime,
		})
		if err != nil {
			return nil, nil, err
		}
		slog.Info("connected to database", "name", databaseName(cfg.Storage.DatabaseURL))

		store := storage.NewPostgres(pool, opts)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate file table: %w", err)
		}
		return store, pool, nil

	default:
		store, err := storage.NewFS(cfg.Storage.Dir, opts)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("storing files on disk", "dir", store.Dir())
		return store, nil, nil
	}
}

func databaseName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Path, "/")
}
