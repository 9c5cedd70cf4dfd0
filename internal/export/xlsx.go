package export

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const defaultXLSXSheet = "Sheet1"

// XLSXWriter implements SheetWriter by writing an .xlsx file.
type XLSXWriter struct {
	path string
}

// NewXLSXWriter creates a writer for the given file path. Existing files are overwritten.
func NewXLSXWriter(path string) *XLSXWriter {
	return &XLSXWriter{path: path}
}

// Write creates one worksheet per Sheet and saves the workbook.
func (w *XLSXWriter) Write(_ context.Context, sheets []Sheet) error {
	if len(sheets) == 0 {
		return fmt.Errorf("no sheets to write")
	}

	f := excelize.NewFile()
	defer f.Close()

	for _, sheet := range sheets {
		if _, err := f.NewSheet(sheet.Name); err != nil {
			return fmt.Errorf("creating sheet %s: %w", sheet.Name, err)
		}
		for i, row := range sheet.Rows {
			cell, err := excelize.CoordinatesToCellName(1, i+1)
			if err != nil {
				return fmt.Errorf("computing cell name: %w", err)
			}
			if err := f.SetSheetRow(sheet.Name, cell, &row); err != nil {
				return fmt.Errorf("writing %s row %d: %w", sheet.Name, i+1, err)
			}
		}
	}

	if err := f.DeleteSheet(defaultXLSXSheet); err != nil {
		return fmt.Errorf("removing default sheet: %w", err)
	}
	if idx, err := f.GetSheetIndex(sheets[0].Name); err == nil && idx >= 0 {
		f.SetActiveSheet(idx)
	}

	if err := f.SaveAs(w.path); err != nil {
		return fmt.Errorf("saving %s: %w", w.path, err)
	}
	return nil
}
