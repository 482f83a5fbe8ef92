// =============================================================================
// CFDI Transform - Flatten Specification
// =============================================================================
//
// A Spec tells the flatten engine which groups to expand and which columns to
// emit. Columns come in three kinds:
//
//   path : a scalar field, e.g. "cfdi33.emisor.rfc"
//   id   : a synthetic identifier built from 1-based group counters,
//          e.g. "CP{pagos10}_P{pagos10.pago}_DR{pagos10.pago.docto_relacionado}"
//   sum  : the decimal sum of a scalar across a nested group that is not
//          expanded, optionally filtered on a sibling field
//
// =============================================================================

package flatten

import (
	"fmt"
	"strings"
)

// ColumnKind identifies how a column's cells are computed.
type ColumnKind int

const (
	// ColumnPath copies a scalar field.
	ColumnPath ColumnKind = iota

	// ColumnID formats group counters into an identifier.
	ColumnID

	// ColumnSum totals a scalar across a nested group.
	ColumnSum
)

func (k ColumnKind) String() string {
	switch k {
	case ColumnPath:
		return "path"
	case ColumnID:
		return "id"
	case ColumnSum:
		return "sum"
	default:
		return "unknown"
	}
}

// Where filters the elements a sum column adds up.
type Where struct {
	// Field is a scalar in the same element as the summed field.
	Field string

	// Equals is the value Field must hold.
	Equals string
}

// Column describes one output column.
type Column struct {
	// Header is the column name written by export sinks.
	Header string

	Kind ColumnKind

	// Path is the source field for path and sum columns.
	Path string

	// Pattern is the identifier template for id columns.
	Pattern string

	// Where optionally filters sum columns.
	Where *Where
}

// PathColumn returns a path column.
func PathColumn(header, path string) Column {
	return Column{Header: header, Kind: ColumnPath, Path: path}
}

// IDColumn returns an id column.
func IDColumn(header, pattern string) Column {
	return Column{Header: header, Kind: ColumnID, Pattern: pattern}
}

// SumColumn returns a sum column; where may be nil.
func SumColumn(header, path string, where *Where) Column {
	return Column{Header: header, Kind: ColumnSum, Path: path, Where: where}
}

// Spec is a complete column specification.
type Spec struct {
	Columns []Column

	// Groups lists the group paths to expand, outermost first. A nested
	// group must come after the group that contains it.
	Groups []string

	// Placeholder fills cells sourced from an empty group.
	Placeholder string
}

// WithPlaceholder returns s with Placeholder set to marker when s does not
// define one, so empty-group cells use the same absent marker as the decoder.
func (s Spec) WithPlaceholder(marker string) Spec {
	if s.Placeholder == "" {
		s.Placeholder = marker
	}
	return s
}

// Headers returns the column headers in order.
func (s Spec) Headers() []string {
	headers := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		headers[i] = c.Header
	}
	return headers
}

// =============================================================================
// ERRORS
// =============================================================================

// PreconditionError reports a Spec that cannot be applied to a record.
type PreconditionError struct {
	// Path is the group or column path at fault.
	Path string

	// Reason describes the problem.
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("flatten precondition failed for %q: %s", e.Path, e.Reason)
}

func precondition(path, format string, args ...any) *PreconditionError {
	return &PreconditionError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

// =============================================================================
// ID PATTERNS
// =============================================================================

// idPart is either a literal or a reference to an expanded group counter.
type idPart struct {
	literal string
	group   int
}

// parsePattern splits "CP{a}_P{a.b}" into literals and group references.
func parsePattern(pattern string, groupIndex map[string]int) ([]idPart, error) {
	var parts []idPart
	rest := pattern
	for rest != "" {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			parts = append(parts, idPart{literal: rest, group: -1})
			break
		}
		if open > 0 {
			parts = append(parts, idPart{literal: rest[:open], group: -1})
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			return nil, precondition(pattern, "unterminated '{' in id pattern")
		}
		name := rest[open+1 : open+end]
		g, ok := groupIndex[name]
		if !ok {
			return nil, precondition(pattern, "id counter %q is not an expanded group", name)
		}
		parts = append(parts, idPart{group: g})
		rest = rest[open+end+1:]
	}
	return parts, nil
}
