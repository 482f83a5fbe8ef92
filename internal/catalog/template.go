// =============================================================================
// CFDI Transform - XLSX Column Templates
// =============================================================================
//
// A column specification may be maintained in a workbook instead of YAML, so
// that the people who own the output layout can edit it in a spreadsheet.
//
// TEMPLATE STRUCTURE:
//
//   Sheet "columns":
//   | Column A (Header)    | Column B (Source)                              | Column C (Where) |
//   |----------------------|------------------------------------------------|------------------|
//   | VERSION              | cfdi33.version                                 |                  |
//   | P_IDENTIFICADOR_PAGO | id:CP{pagos10}_P{pagos10.pago}                 |                  |
//   | P_IVATRASLADO        | sum:pagos10.pago.impuestos.traslados.importe   | impuesto=002     |
//
//   Sheet "groups":
//   | Column A (Group)     |
//   |----------------------|
//   | tfd                  |
//   | pagos10              |
//
// A Source without a "path:", "id:" or "sum:" prefix is a path.
//
// =============================================================================

package catalog

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	// ColumnsSheet holds one row per output column.
	ColumnsSheet = "columns"

	// GroupsSheet holds one row per expanded group.
	GroupsSheet = "groups"
)

// TemplateColumns holds the column positions (0-based) of the columns sheet.
type TemplateColumns struct {
	HeaderColumn int
	SourceColumn int
	WhereColumn  int

	// DataStartRow is the first row after the header row (0-based).
	DataStartRow int
}

// DefaultTemplateColumns returns the layout written by WriteTemplate.
func DefaultTemplateColumns() TemplateColumns {
	return TemplateColumns{
		HeaderColumn: 0, // Column A
		SourceColumn: 1, // Column B
		WhereColumn:  2, // Column C
		DataStartRow: 1, // Row 2
	}
}

// ReadTemplate parses an XLSX column template.
//
// PARAMETERS:
//   - r: The workbook contents.
//
// RETURNS:
//   - The export definition (groups and columns; no placeholder).
//   - An error if the workbook cannot be read or a row is malformed.
func ReadTemplate(r io.Reader) (ExportDef, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return ExportDef{}, fmt.Errorf("failed to open template: %w", err)
	}
	defer f.Close()

	return parseTemplate(f, DefaultTemplateColumns())
}

func parseTemplate(f *excelize.File, layout TemplateColumns) (ExportDef, error) {
	var def ExportDef

	rows, err := f.GetRows(ColumnsSheet)
	if err != nil {
		return def, fmt.Errorf("failed to read sheet %q: %w", ColumnsSheet, err)
	}
	for i := layout.DataStartRow; i < len(rows); i++ {
		row := rows[i]
		if isRowEmpty(row) {
			continue
		}
		col, err := parseTemplateRow(row, layout)
		if err != nil {
			return def, fmt.Errorf("sheet %q row %d: %w", ColumnsSheet, i+1, err)
		}
		def.Columns = append(def.Columns, col)
	}

	// The groups sheet is optional: a template may describe a header-only table.
	if idx, _ := f.GetSheetIndex(GroupsSheet); idx >= 0 {
		rows, err := f.GetRows(GroupsSheet)
		if err != nil {
			return def, fmt.Errorf("failed to read sheet %q: %w", GroupsSheet, err)
		}
		for i := layout.DataStartRow; i < len(rows); i++ {
			if len(rows[i]) == 0 || strings.TrimSpace(rows[i][0]) == "" {
				continue
			}
			def.Groups = append(def.Groups, strings.TrimSpace(rows[i][0]))
		}
	}

	return def, nil
}

func parseTemplateRow(row []string, layout TemplateColumns) (ColumnDef, error) {
	getCell := func(index int) string {
		if index < len(row) {
			return strings.TrimSpace(row[index])
		}
		return ""
	}

	col := ColumnDef{Header: getCell(layout.HeaderColumn)}
	source := getCell(layout.SourceColumn)
	if col.Header == "" || source == "" {
		return col, fmt.Errorf("header and source are required")
	}

	kind, value, found := strings.Cut(source, ":")
	if !found {
		kind, value = "path", source
	}
	switch strings.ToLower(kind) {
	case "path":
		col.Path = value
	case "id":
		col.ID = value
	case "sum":
		col.Sum = value
	default:
		return col, fmt.Errorf("unknown source kind %q", kind)
	}

	if where := getCell(layout.WhereColumn); where != "" {
		field, equals, ok := strings.Cut(where, "=")
		if !ok {
			return col, fmt.Errorf("where %q must be field=value", where)
		}
		col.Where = &WhereDef{Field: strings.TrimSpace(field), Equals: strings.TrimSpace(equals)}
	}
	return col, nil
}

// WriteTemplate writes an export definition as an XLSX column template.
func WriteTemplate(w io.Writer, def ExportDef) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ColumnsSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	if _, err := f.NewSheet(GroupsSheet); err != nil {
		return fmt.Errorf("failed to add sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}

	if err := f.SetSheetRow(ColumnsSheet, "A1", &[]string{"Header", "Source", "Where"}); err != nil {
		return err
	}
	for i, c := range def.Columns {
		source := c.Path
		switch {
		case c.ID != "":
			source = "id:" + c.ID
		case c.Sum != "":
			source = "sum:" + c.Sum
		}
		where := ""
		if c.Where != nil {
			where = c.Where.Field + "=" + c.Where.Equals
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(ColumnsSheet, cell, &[]string{c.Header, source, where}); err != nil {
			return err
		}
	}

	if err := f.SetSheetRow(GroupsSheet, "A1", &[]string{"Group"}); err != nil {
		return err
	}
	for i, g := range def.Groups {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetCellStr(GroupsSheet, cell, g); err != nil {
			return err
		}
	}

	for _, sheet := range []string{ColumnsSheet, GroupsSheet} {
		if err := f.SetRowStyle(sheet, 1, 1, bold); err != nil {
			return err
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write template: %w", err)
	}
	return nil
}

// isRowEmpty checks if a row contains only empty cells.
func isRowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
