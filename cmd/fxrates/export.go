package main

import (
	"errors"
	"log/slog"

	"github.com/urfave/cli/v2"

	"github.com/mtlprog/fxrates/internal/domain"
	"github.com/mtlprog/fxrates/internal/export"
)

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "write stored rates to an XLSX file or Google Sheets",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "source", Usage: "source currency code", Required: true},
			&cli.StringFlag{Name: "from", Usage: "first date (YYYY-MM-DD)", Required: true},
			&cli.StringFlag{Name: "to", Usage: "last date (YYYY-MM-DD)", Required: true},
			&cli.StringFlag{Name: "out", Usage: "XLSX output path", Value: "rates.xlsx"},
			&cli.BoolFlag{Name: "sheets", Usage: "write to GOOGLE_SHEETS_ID instead of a file"},
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

			var writer export.SheetWriter
			if c.Bool("sheets") {
				if d.cfg.GoogleSheetsID == "" || d.cfg.GoogleCredentialsJSON == "" {
					return errors.New("GOOGLE_SHEETS_ID and GOOGLE_CREDENTIALS_JSON are required for --sheets")
				}
				writer, err = export.NewSheetsWriter(c.Context, d.cfg.GoogleSheetsID, d.cfg.GoogleCredentialsJSON)
				if err != nil {
					return err
				}
			} else {
				writer = export.NewXLSXWriter(c.String("out"))
			}

			n, err := export.NewService(d.rates, writer).Export(c.Context, c.String("source"), from, to)
			if err != nil {
				return err
			}
			slog.Info("export completed", "rates", n, "sheets", c.Bool("sheets"), "out", c.String("out"))
			return nil
		},
	}
}
