package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// CSVWriter writes rows as delimited text.
type CSVWriter struct {
	w   *csv.Writer
	bom io.WriteCloser
}

// NewCSVWriter returns a CSV sink. With opts.BOM the output starts with a
// UTF-8 byte order mark so spreadsheet programs detect the encoding.
func NewCSVWriter(w io.Writer, opts Options) *CSVWriter {
	cw := &CSVWriter{}
	if opts.BOM {
		cw.bom = transform.NewWriter(w, unicode.UTF8BOM.NewEncoder())
		w = cw.bom
	}
	cw.w = csv.NewWriter(w)
	if opts.Delimiter != 0 {
		cw.w.Comma = opts.Delimiter
	}
	return cw
}

// WriteHeader writes the header row.
func (c *CSVWriter) WriteHeader(headers []string) error {
	return c.WriteRow(headers)
}

// WriteRow writes one row.
func (c *CSVWriter) WriteRow(row []string) error {
	if err := c.w.Write(row); err != nil {
		return fmt.Errorf("failed to write csv row: %w", err)
	}
	return nil
}

// Close flushes buffered output.
func (c *CSVWriter) Close() error {
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	if c.bom != nil {
		return c.bom.Close()
	}
	return nil
}
