package main

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"

	"github.com/mtlprog/fxrates/internal/backfill"
	"github.com/mtlprog/fxrates/internal/config"
	"github.com/mtlprog/fxrates/internal/database"
	"github.com/mtlprog/fxrates/internal/metrics"
	"github.com/mtlprog/fxrates/internal/provider"
	"github.com/mtlprog/fxrates/internal/rates"
	"github.com/mtlprog/fxrates/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("Failed to load .env file: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:  "fxrates",
		Usage: "foreign exchange rate resolution and historical backfill",
		Commands: []*cli.Command{
			serveCommand(),
			backfillCommand(),
			exportCommand(),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatalf("fxrates: %v", err)
	}
}

// deps holds the shared components every command is built from.
type deps struct {
	cfg        config.Config
	pool       *pgxpool.Pool
	registry   *prometheus.Registry
	metrics    *metrics.Metrics
	adapters   *provider.Registry
	currencies *store.PgCurrencyRepository
	providers  *store.PgProviderRepository
	rates      *store.PgRateRepository
}

// setup connects to the database, applies migrations and wires the stores and adapters.
// The caller must close the returned pool.
func setup(ctx context.Context) (*deps, error) {
	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	migrationsSub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := database.RunMigrations(ctx, pool, migrationsSub); err != nil {
		pool.Close()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	beacon := provider.NewCurrencyBeaconClient(cfg.CurrencyBeaconURL, cfg.CurrencyBeaconAPIKey, cfg.ProviderTimeout)
	adapters := provider.DefaultRegistry(beacon)
	slog.Info("registered rate providers", "providers", adapters.Names(), "beaconCredential", beacon.HasCredential())

	return &deps{
		cfg:        cfg,
		pool:       pool,
		registry:   reg,
		metrics:    metrics.New(reg),
		adapters:   adapters,
		currencies: store.NewPgCurrencyRepository(pool),
		providers:  store.NewPgProviderRepository(pool),
		rates:      store.NewPgRateRepository(pool),
	}, nil
}

func (d *deps) resolver() *rates.Resolver {
	return rates.NewResolver(d.currencies, d.providers, d.rates, d.adapters, d.cfg.ProviderTimeout, d.metrics)
}

func (d *deps) backfiller(concurrency int) *backfill.Service {
	if concurrency <= 0 {
		concurrency = d.cfg.BackfillConcurrency
	}
	return backfill.NewService(d.currencies, d.rates, d.adapters, backfill.Options{
		Concurrency: concurrency,
		TaskTimeout: d.cfg.ProviderTimeout,
		Metrics:     d.metrics,
	})
}
