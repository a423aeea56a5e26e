// Package spreadsheet writes export tables as .xlsx workbooks.
package spreadsheet

import (
	"fmt"
	"io"

	"confreg/internal/domain/export"

	"github.com/xuri/excelize/v2"
)

// Writer serialises a table into a spreadsheet file.
type Writer interface {
	Write(w io.Writer, t export.Table) error
}

// XLSXWriter streams tables into a single-sheet workbook.
type XLSXWriter struct{}

// NewXLSXWriter creates an XLSXWriter.
func NewXLSXWriter() *XLSXWriter {
	return &XLSXWriter{}
}

// Write encodes t as an .xlsx workbook on w.
// PRE: t.Header is non-empty
// POST: w holds a workbook with one sheet named t.Sheet
func (XLSXWriter) Write(w io.Writer, t export.Table) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := t.Sheet
	if sheet == "" {
		sheet = export.SheetName
	}
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("open stream writer: %w", err)
	}
	if err := sw.SetRow("A1", cells(t.Header), excelize.RowOpts{}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, row := range t.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, cells(row)); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush sheet: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func cells(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

var _ Writer = XLSXWriter{}
