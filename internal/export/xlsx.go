package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// DefaultSheetName names the single sheet of an XLSX export.
const DefaultSheetName = "rows"

// XLSXWriter streams rows into a one-sheet workbook. The workbook is written
// to the underlying writer on Close.
type XLSXWriter struct {
	out   io.Writer
	file  *excelize.File
	sw    *excelize.StreamWriter
	bold  int
	row   int
	sheet string
}

// NewXLSXWriter returns an XLSX sink.
func NewXLSXWriter(w io.Writer, opts Options) (*XLSXWriter, error) {
	sheet := opts.SheetName
	if sheet == "" {
		sheet = DefaultSheetName
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create style: %w", err)
	}
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to open stream writer: %w", err)
	}

	return &XLSXWriter{out: w, file: f, sw: sw, bold: bold, sheet: sheet}, nil
}

// WriteHeader writes the bold header row.
func (x *XLSXWriter) WriteHeader(headers []string) error {
	cells := make([]interface{}, len(headers))
	for i, h := range headers {
		cells[i] = excelize.Cell{StyleID: x.bold, Value: h}
	}
	return x.setRow(cells)
}

// WriteRow writes one row of text cells.
func (x *XLSXWriter) WriteRow(row []string) error {
	cells := make([]interface{}, len(row))
	for i, v := range row {
		cells[i] = v
	}
	return x.setRow(cells)
}

func (x *XLSXWriter) setRow(cells []interface{}) error {
	if x.row >= excelize.TotalRows {
		return fmt.Errorf("sheet %s is full (%d rows)", x.sheet, excelize.TotalRows)
	}
	x.row++
	cell, err := excelize.CoordinatesToCellName(1, x.row)
	if err != nil {
		return err
	}
	if err := x.sw.SetRow(cell, cells); err != nil {
		return fmt.Errorf("failed to write row %d: %w", x.row, err)
	}
	return nil
}

// Close finishes the sheet and writes the workbook.
func (x *XLSXWriter) Close() error {
	defer x.file.Close()

	if err := x.sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush sheet: %w", err)
	}
	if _, err := x.file.WriteTo(x.out); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
