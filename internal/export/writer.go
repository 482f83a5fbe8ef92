// =============================================================================
// CFDI Transform - Export Sinks
// =============================================================================
//
// Flat rows and whole records leave the program through the writers in this
// package.
//
// ROW SINKS (RowWriter):
//   csv      : encoding/csv, configurable delimiter, optional UTF-8 BOM
//   xlsx     : excelize stream writer, one sheet, bold header row
//   postgres : COPY into a text-column table created on demand
//
// RECORD SINKS (RecordWriter):
//   json : one JSON object per line, members in catalog order
//   yaml : one YAML document per record
//   xml  : <record> elements under a <records> root
//
// =============================================================================

package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/ginjaninja78/cfdi-transform/internal/flatten"
	"github.com/ginjaninja78/cfdi-transform/internal/record"
)

// Format names an output format.
type Format string

const (
	FormatCSV      Format = "csv"
	FormatXLSX     Format = "xlsx"
	FormatPostgres Format = "postgres"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatXML      Format = "xml"
)

// Formats lists every supported format.
var Formats = []Format{FormatCSV, FormatXLSX, FormatPostgres, FormatJSON, FormatYAML, FormatXML}

// ParseFormat validates a format name (case-insensitive).
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown output format %q", s)
}

// Tabular reports whether the format carries flat rows rather than records.
func (f Format) Tabular() bool {
	switch f {
	case FormatCSV, FormatXLSX, FormatPostgres:
		return true
	}
	return false
}

// Extension returns the file extension, including the dot. Postgres has none.
func (f Format) Extension() string {
	if f == FormatPostgres {
		return ""
	}
	if f == FormatJSON {
		return ".jsonl"
	}
	return "." + string(f)
}

// ContentType returns the HTTP media type of the format.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatJSON:
		return "application/x-ndjson"
	case FormatYAML:
		return "application/yaml"
	case FormatXML:
		return "application/xml"
	}
	return "application/octet-stream"
}

// =============================================================================
// WRITER INTERFACES
// =============================================================================

// RowWriter receives one header row and then any number of data rows.
type RowWriter interface {
	WriteHeader(headers []string) error
	WriteRow(row []string) error
	Close() error
}

// RecordWriter receives whole records.
type RecordWriter interface {
	WriteRecord(rec *record.Record) error
	Close() error
}

// Options configures the file sinks.
type Options struct {
	// Delimiter separates CSV cells. Zero means comma.
	Delimiter rune

	// BOM prefixes CSV output with a UTF-8 byte order mark.
	BOM bool

	// SheetName names the XLSX sheet. Empty means "rows".
	SheetName string

	// Indent is the indentation unit of YAML and XML dumps.
	Indent string
}

// NewRowWriter returns a file row sink for a tabular format. Postgres is not
// a file format; use NewPostgresWriter.
func NewRowWriter(format Format, w io.Writer, opts Options) (RowWriter, error) {
	switch format {
	case FormatCSV:
		return NewCSVWriter(w, opts), nil
	case FormatXLSX:
		return NewXLSXWriter(w, opts)
	}
	return nil, fmt.Errorf("format %s does not write rows to a file", format)
}

// NewRecordWriter returns a record sink.
func NewRecordWriter(format Format, w io.Writer, opts Options) (RecordWriter, error) {
	switch format {
	case FormatJSON:
		return NewJSONWriter(w), nil
	case FormatYAML:
		return NewYAMLWriter(w, opts), nil
	case FormatXML:
		return NewXMLWriter(w, DefaultXMLOptions()), nil
	}
	return nil, fmt.Errorf("format %s does not write records", format)
}

// WriteRows writes a header and rows, then closes rw.
func WriteRows(rw RowWriter, headers []string, rows []flatten.Row) error {
	if err := rw.WriteHeader(headers); err != nil {
		rw.Close()
		return err
	}
	for _, row := range rows {
		if err := rw.WriteRow(row); err != nil {
			rw.Close()
			return err
		}
	}
	return rw.Close()
}
