// =============================================================================
// CFDI Transform - Profiles
// =============================================================================
//
// A profile binds a catalog, a default variant selection and an export
// specification (groups to expand and columns to emit). Profiles are what
// jobs and the HTTP surface refer to.
//
// EXAMPLE:
//   profile: pagos10
//   catalog: cfdi33
//   variants: [pagos10]
//   export:
//     groups: [tfd, pagos10, pagos10.pago, pagos10.pago.docto_relacionado]
//     columns:
//       - { header: VERSION, path: cfdi33.version }
//       - { header: P_IDENTIFICADOR_PAGO, id: "CP{pagos10}_P{pagos10.pago}_DR{pagos10.pago.docto_relacionado}" }
//       - { header: P_IVATRASLADO, sum: pagos10.pago.impuestos.traslados.importe, where: { field: impuesto, equals: "002" } }
//
// =============================================================================

package catalog

import (
	"fmt"

	"github.com/ginjaninja78/cfdi-transform/internal/flatten"
)

// Profile is the YAML form of a transform profile.
type Profile struct {
	Name        string    `yaml:"profile"`
	Description string    `yaml:"description"`
	Catalog     string    `yaml:"catalog"`
	Variants    []string  `yaml:"variants"`
	Export      ExportDef `yaml:"export"`
}

// ExportDef is the YAML form of a flatten specification.
type ExportDef struct {
	Placeholder string      `yaml:"placeholder"`
	Groups      []string    `yaml:"groups"`
	Columns     []ColumnDef `yaml:"columns"`

	// Template names an XLSX column template, relative to the profile file.
	// When set, its groups and columns replace the inline ones.
	Template string `yaml:"template"`
}

// ColumnDef describes one column; exactly one of Path, ID and Sum is set.
type ColumnDef struct {
	Header string    `yaml:"header"`
	Path   string    `yaml:"path"`
	ID     string    `yaml:"id"`
	Sum    string    `yaml:"sum"`
	Where  *WhereDef `yaml:"where"`
}

// WhereDef filters a sum column.
type WhereDef struct {
	Field  string `yaml:"field"`
	Equals string `yaml:"equals"`
}

// Spec converts the export definition into a flatten specification.
func (e ExportDef) Spec() (flatten.Spec, error) {
	spec := flatten.Spec{
		Groups:      append([]string(nil), e.Groups...),
		Placeholder: e.Placeholder,
	}
	for i, c := range e.Columns {
		col, err := c.column()
		if err != nil {
			return flatten.Spec{}, fmt.Errorf("column %d (%s): %w", i+1, c.Header, err)
		}
		spec.Columns = append(spec.Columns, col)
	}
	return spec, nil
}

func (c ColumnDef) column() (flatten.Column, error) {
	if c.Header == "" {
		return flatten.Column{}, fmt.Errorf("missing header")
	}

	var col flatten.Column
	set := 0
	if c.Path != "" {
		col = flatten.PathColumn(c.Header, c.Path)
		set++
	}
	if c.ID != "" {
		col = flatten.IDColumn(c.Header, c.ID)
		set++
	}
	if c.Sum != "" {
		var where *flatten.Where
		if c.Where != nil {
			where = &flatten.Where{Field: c.Where.Field, Equals: c.Where.Equals}
		}
		col = flatten.SumColumn(c.Header, c.Sum, where)
		set++
	}
	if set != 1 {
		return flatten.Column{}, fmt.Errorf("exactly one of path, id or sum is required")
	}
	if c.Where != nil && c.Sum == "" {
		return flatten.Column{}, fmt.Errorf("where is only valid on sum columns")
	}
	return col, nil
}
