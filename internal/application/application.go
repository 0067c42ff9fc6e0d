// Package application assembles the import pipeline from configuration.
// Both the HTTP server and whctl build on it.
package application

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/JonMunkholm/warehouse/internal/config"
	"github.com/JonMunkholm/warehouse/internal/credentials"
	"github.com/JonMunkholm/warehouse/internal/geocode"
	"github.com/JonMunkholm/warehouse/internal/importer"
	"github.com/JonMunkholm/warehouse/internal/store"
)

// Application holds the long-lived parts of a running process.
type Application struct {
	Config   *config.Config
	Store    *store.Store
	Service  *importer.Service
	Registry *prometheus.Registry
}

// New connects to the database, applies the schema when configured to, and
// wires the import service against it.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	db, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if cfg.Database.MigrateOnStart {
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Application{
		Config:   cfg,
		Store:    db,
		Service:  NewService(db, cfg, reg),
		Registry: reg,
	}, nil
}

// NewService builds the import service for st. Collectors are registered
// with reg.
func NewService(st importer.Store, cfg *config.Config, reg prometheus.Registerer) *importer.Service {
	metrics := importer.NewMetrics(reg)
	geo := geocode.FromConfig(cfg.Geocode, geocode.WithMetrics(geocode.NewMetrics(reg)))

	exec := importer.NewExecutor(st, geo, credentials.NewHasher(), importer.ExecutorOptions{
		AppID:      cfg.Permission.DefaultAppID,
		ClientRole: cfg.Permission.ClientRole,
		Metrics:    metrics,
	})

	return importer.NewService(
		exec,
		importer.NewPrechecker(st, metrics),
		importer.NewRunLimiter(cfg.Import.MaxConcurrent, cfg.Import.MaxWaitTime),
		metrics,
		importer.ServiceConfig{
			MaxFileSize:  cfg.Import.MaxFileSize,
			MaxRows:      cfg.Import.MaxRows,
			Timeout:      cfg.Import.Timeout,
			RunRetention: cfg.Import.RunRetention,
			Progress: importer.ProgressConfig{
				PerRow:   cfg.Import.ProgressPerRow,
				Floor:    cfg.Import.ProgressFloor,
				Interval: cfg.Import.ProgressInterval,
				Ceiling:  cfg.Import.ProgressCeiling,
			},
		},
	)
}

// Close releases the database pool.
func (a *Application) Close() {
	a.Store.Close()
}
