package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/mtlprog/fxrates/internal/backfill"
	"github.com/mtlprog/fxrates/internal/domain"
)

func backfillCommand() *cli.Command {
	return &cli.Command{
		Name:  "backfill",
		Usage: "fetch and store historical rates for a date range",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "source", Usage: "source currency code", Required: true},
			&cli.StringSliceFlag{Name: "targets", Usage: "comma-separated target currency codes", Required: true},
			&cli.StringFlag{Name: "from", Usage: "first date (YYYY-MM-DD)", Required: true},
			&cli.StringFlag{Name: "to", Usage: "last date (YYYY-MM-DD)", Required: true},
			&cli.StringFlag{Name: "provider", Usage: "provider name", Value: domain.ProviderCurrencyBeacon},
			&cli.IntFlag{Name: "concurrency", Usage: "max in-flight requests (default BACKFILL_CONCURRENCY)"},
		},
		Action: func(c *cli.Context) error {
			from, err := domain.ParseDate(c.String("from"))
			if err != nil {
				return err
			}
			to, err := domain.ParseDate(c.String("to"))
			if err != nil {
				return err
			}

			d, err := setup(c.Context)
			if err != nil {
				return err
			}
			defer d.pool.Close()

			stats, err := d.backfiller(c.Int("concurrency")).Run(c.Context, backfill.Request{
				Source:   c.String("source"),
				Targets:  c.StringSlice("targets"),
				DateFrom: from,
				DateTo:   to,
				Provider: c.String("provider"),
			})
			if err != nil {
				return err
			}

			out := c.App.Writer
			fmt.Fprintf(out, "Backfill %s %s via %s\n", stats.DateRange, domain.NormalizeCode(c.String("source")), stats.Provider)
			if stats.Note != "" {
				fmt.Fprintln(out, stats.Note)
			}
			fmt.Fprintf(out, "Total requests: %d\n", stats.Total)
			fmt.Fprintf(out, "Successful: %d\n", stats.Successful)
			fmt.Fprintf(out, "Failed: %d\n", stats.Failed)
			fmt.Fprintf(out, "Saved: %d (skipped %d)\n", stats.Saved, stats.Skipped)
			return nil
		},
	}
}
