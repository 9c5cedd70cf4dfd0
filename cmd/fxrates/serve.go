package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/mtlprog/fxrates/internal/api"
	"github.com/mtlprog/fxrates/internal/worker"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP API and the daily rate worker",
		Action: func(c *cli.Context) error {
			ctx, stop := context.WithCancel(c.Context)
			defer stop()

			d, err := setup(ctx)
			if err != nil {
				return err
			}
			defer d.pool.Close()

			resolver := d.resolver()

			if d.cfg.DailyWorkerInterval > 0 {
				dailyWorker := worker.NewDailyRateWorker(resolver, d.currencies, d.cfg.BaseCurrency, d.cfg.DailyWorkerInterval)
				go dailyWorker.Run(ctx)
			} else {
				slog.Info("DailyRateWorker: disabled")
			}

			if d.cfg.AdminAPIKey == "" {
				slog.Warn("ADMIN_API_KEY not set, backfill endpoint is unprotected")
			}

			handler := api.NewHandler(resolver, d.backfiller(0), d.rates, d.currencies)
			metricsHandler := promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{})
			srv := api.NewServer(d.cfg.HTTPPort, handler, d.cfg.AdminAPIKey, metricsHandler)

			go func() {
				log.Printf("HTTP server listening on :%s", d.cfg.HTTPPort)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Printf("HTTP server error: %v", err)
					stop()
				}
			}()

			<-ctx.Done()
			log.Println("Shutting down...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Printf("HTTP server shutdown error: %v", err)
			}

			log.Println("Shutdown complete")
			return nil
		},
	}
}
