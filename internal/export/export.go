// Package export writes stored exchange rates to spreadsheet destinations.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/fxrates/internal/domain"
)

// Sheet names written by the exporter.
const (
	SheetRates  = "RATES"
	SheetMatrix = "MATRIX"
)

// Sheet is one named table of cell values; the first row is the header.
type Sheet struct {
	Name string
	Rows [][]any
}

// SheetWriter writes sheets to a spreadsheet destination, replacing previous content.
type SheetWriter interface {
	Write(ctx context.Context, sheets []Sheet) error
}

// RateRangeReader reads stored rates for a source currency over a date interval.
type RateRangeReader interface {
	ListRange(ctx context.Context, sourceCode string, from, to time.Time) ([]domain.ExchangeRate, error)
}

// Service reads stored rates and delegates writing to a SheetWriter.
type Service struct {
	rates  RateRangeReader
	writer SheetWriter
}

// NewService creates a new export Service.
func NewService(rates RateRangeReader, writer SheetWriter) *Service {
	return &Service{rates: rates, writer: writer}
}

// Export writes all stored rates for sourceCode in [from, to]. Returns the number of rates exported.
func (s *Service) Export(ctx context.Context, sourceCode string, from, to time.Time) (int, error) {
	sourceCode = domain.NormalizeCode(sourceCode)
	rates, err := s.rates.ListRange(ctx, sourceCode, domain.Day(from), domain.Day(to))
	if err != nil {
		return 0, fmt.Errorf("reading rates: %w", err)
	}

	sheets := []Sheet{
		{Name: SheetRates, Rows: buildRates(rates)},
		{Name: SheetMatrix, Rows: buildMatrix(rates)},
	}
	if err := s.writer.Write(ctx, sheets); err != nil {
		return 0, fmt.Errorf("writing sheets: %w", err)
	}

	slog.Info("export: rates written", "source", sourceCode, "count", len(rates))
	return len(rates), nil
}

// buildRates builds the RATES sheet: one row per stored record.
// Columns: Date | Source | Target | Provider | Rate
func buildRates(rates []domain.ExchangeRate) [][]any {
	data := make([][]any, 0, len(rates)+1)
	data = append(data, []any{"Date", "Source", "Target", "Provider", "Rate"})
	for _, r := range rates {
		data = append(data, []any{
			domain.FormatDate(r.ValuationDate),
			r.SourceCode,
			r.TargetCode,
			r.Provider,
			toFloat(r.RateValue),
		})
	}
	return data
}

// buildMatrix builds the MATRIX sheet: one row per date, one column per target.
// When several providers stored a rate for the same cell, the first in input order wins.
func buildMatrix(rates []domain.ExchangeRate) [][]any {
	targets := lo.Uniq(lo.Map(rates, func(r domain.ExchangeRate, _ int) string { return r.TargetCode }))
	sort.Strings(targets)

	byDate := lo.GroupBy(rates, func(r domain.ExchangeRate) string { return domain.FormatDate(r.ValuationDate) })
	dates := lo.Keys(byDate)
	sort.Strings(dates)

	header := append([]any{"Date"}, lo.Map(targets, func(t string, _ int) any { return t })...)
	data := [][]any{header}

	for _, d := range dates {
		cells := make(map[string]decimal.Decimal)
		for _, r := range byDate[d] {
			if _, ok := cells[r.TargetCode]; !ok {
				cells[r.TargetCode] = r.RateValue
			}
		}
		row := make([]any, 0, len(targets)+1)
		row = append(row, d)
		for _, t := range targets {
			if v, ok := cells[t]; ok {
				row = append(row, toFloat(v))
			} else {
				row = append(row, nil)
			}
		}
		data = append(data, row)
	}
	return data
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
