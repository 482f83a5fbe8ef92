// =============================================================================
// CFDI Transform - Flatten Engine
// =============================================================================
//
// The flatten engine turns a Record with repeating groups into flat rows by an
// ordered nested cross-product over the expanded groups:
//
//   - the first group varies slowest, the last fastest;
//   - a nested group is read from the currently selected element of its
//     parent group;
//   - an empty group contributes exactly one placeholder slot, and every
//     column sourced from it (or from groups below it) gets the placeholder;
//   - every row is built independently from its index vector.
//
// ALGORITHM:
//   STEP 1: Compile the Spec against the record's Shape (validates paths).
//   STEP 2: Walk the index space in lexicographic order.
//   STEP 3: For each index vector, resolve the selected elements and build
//           the row's cells.
//
// =============================================================================

package flatten

import (
	"strconv"
	"strings"

	"github.com/ginjaninja78/cfdi-transform/internal/decimal"
	"github.com/ginjaninja78/cfdi-transform/internal/record"
)

// Row is one output row: one cell per column.
type Row []string

// Flatten expands a record into rows.
func Flatten(rec *record.Record, spec Spec) ([]Row, error) {
	var rows []Row
	err := Each(rec, spec, func(row Row) error {
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Each streams rows to fn in order. It stops at the first error returned by fn.
func Each(rec *record.Record, spec Spec, fn func(Row) error) error {
	p, err := compile(rec.Shape(), spec)
	if err != nil {
		return err
	}
	idx := make([]int, len(p.groups))
	return p.expand(rec.Root(), 0, idx, fn)
}

// Validate checks a Spec against a Shape without flattening anything.
func Validate(shape *record.Shape, spec Spec) error {
	_, err := compile(shape, spec)
	return err
}

// =============================================================================
// PLAN
// =============================================================================

type groupPlan struct {
	path   string
	parent int
	rel    string
}

type columnPlan struct {
	col   Column
	owner int
	rel   string

	// sum columns: relative paths from the owner element to each nested
	// group in turn, then the scalar inside the innermost element
	steps []string

	id []idPart
}

type plan struct {
	groups      []groupPlan
	columns     []columnPlan
	placeholder string
}

func compile(shape *record.Shape, spec Spec) (*plan, error) {
	p := &plan{placeholder: spec.Placeholder}
	groupIndex := make(map[string]int, len(spec.Groups))

	for i, path := range spec.Groups {
		if _, dup := groupIndex[path]; dup {
			return nil, precondition(path, "group listed twice")
		}
		e, crossed, err := shape.Resolve(path)
		if err != nil {
			return nil, precondition(path, "%v", err)
		}
		if e.Kind != record.KindGroup {
			return nil, precondition(path, "not a group (%s)", e.Kind)
		}

		g := groupPlan{path: path, parent: -1, rel: path}
		if len(crossed) > 1 {
			parentPath := crossed[len(crossed)-2]
			parent, ok := groupIndex[parentPath]
			if !ok {
				return nil, precondition(path, "parent group %q must be expanded before it", parentPath)
			}
			g.parent = parent
			g.rel = relative(path, parentPath)
		}
		p.groups = append(p.groups, g)
		groupIndex[path] = i
	}

	for _, c := range spec.Columns {
		cp, err := p.compileColumn(shape, c, groupIndex)
		if err != nil {
			return nil, err
		}
		p.columns = append(p.columns, cp)
	}
	return p, nil
}

func (p *plan) compileColumn(shape *record.Shape, c Column, groupIndex map[string]int) (columnPlan, error) {
	cp := columnPlan{col: c, owner: -1}

	switch c.Kind {
	case ColumnID:
		parts, err := parsePattern(c.Pattern, groupIndex)
		if err != nil {
			return cp, err
		}
		cp.id = parts
		return cp, nil

	case ColumnPath, ColumnSum:
		e, crossed, err := shape.Resolve(c.Path)
		if err != nil {
			return cp, precondition(c.Path, "%v", err)
		}
		if e.Kind != record.KindScalar {
			return cp, precondition(c.Path, "column source is a %s, not a scalar", e.Kind)
		}

		var nested []string
		for _, g := range crossed {
			gi, expanded := groupIndex[g]
			if expanded && len(nested) == 0 {
				cp.owner = gi
				continue
			}
			if c.Kind == ColumnPath {
				return cp, precondition(c.Path, "crosses group %q which is not expanded", g)
			}
			nested = append(nested, g)
		}

		base := ""
		if cp.owner >= 0 {
			base = p.groups[cp.owner].path
		}
		if c.Kind == ColumnPath {
			cp.rel = relative(c.Path, base)
			return cp, nil
		}

		if len(nested) == 0 {
			return cp, precondition(c.Path, "sum column crosses no nested group")
		}
		prev := base
		for _, g := range nested {
			cp.steps = append(cp.steps, relative(g, prev))
			prev = g
		}
		cp.rel = relative(c.Path, prev)

		if c.Where != nil {
			we, _, err := shape.Resolve(prev + "." + c.Where.Field)
			if err != nil || we.Kind != record.KindScalar {
				return cp, precondition(c.Path, "where field %q is not a scalar of %q", c.Where.Field, prev)
			}
		}
		return cp, nil
	}

	return cp, precondition(c.Header, "unknown column kind %d", c.Kind)
}

// =============================================================================
// EXPANSION
// =============================================================================

func (p *plan) expand(root *record.Node, level int, idx []int, fn func(Row) error) error {
	if level == len(p.groups) {
		return fn(p.row(root, idx))
	}

	sel := p.elements(root, idx, level)
	n := 0
	if g := p.group(root, sel, level); g != nil {
		n = g.Len()
	}
	if n == 0 {
		n = 1
	}

	for i := 0; i < n; i++ {
		idx[level] = i
		if err := p.expand(root, level+1, idx, fn); err != nil {
			return err
		}
	}
	idx[level] = 0
	return nil
}

// elements resolves the selected element of the first n groups; nil marks a
// placeholder slot.
func (p *plan) elements(root *record.Node, idx []int, n int) []*record.Node {
	sel := make([]*record.Node, n)
	for i := 0; i < n; i++ {
		g := p.group(root, sel, i)
		if g != nil && idx[i] < g.Len() {
			sel[i] = g.Item(idx[i])
		}
	}
	return sel
}

func (p *plan) group(root *record.Node, sel []*record.Node, i int) *record.Node {
	g := p.groups[i]
	base := root
	if g.parent >= 0 {
		base = sel[g.parent]
		if base == nil {
			return nil
		}
	}
	node, ok := base.Get(g.rel)
	if !ok || node.Kind() != record.KindGroup {
		return nil
	}
	return node
}

// row builds one row from an index vector.
func (p *plan) row(root *record.Node, idx []int) Row {
	sel := p.elements(root, idx, len(p.groups))
	row := make(Row, len(p.columns))
	for i, c := range p.columns {
		row[i] = p.cell(root, sel, idx, c)
	}
	return row
}

func (p *plan) cell(root *record.Node, sel []*record.Node, idx []int, c columnPlan) string {
	if c.col.Kind == ColumnID {
		var b strings.Builder
		for _, part := range c.id {
			if part.group < 0 {
				b.WriteString(part.literal)
				continue
			}
			b.WriteString(strconv.Itoa(idx[part.group] + 1))
		}
		return b.String()
	}

	base := root
	if c.owner >= 0 {
		base = sel[c.owner]
		if base == nil {
			return p.placeholder
		}
	}

	if c.col.Kind == ColumnSum {
		return p.sum(base, c)
	}

	n, ok := base.Get(c.rel)
	if !ok {
		return p.placeholder
	}
	return n.Text()
}

func (p *plan) sum(base *record.Node, c columnPlan) string {
	g, ok := base.Get(c.steps[0])
	if !ok || g.Len() == 0 {
		return p.placeholder
	}
	total := decimal.Zero
	for _, item := range g.Items() {
		total = accumulate(item, c.steps[1:], c.rel, c.col.Where, total)
	}
	return total
}

func accumulate(el *record.Node, steps []string, leaf string, where *Where, total string) string {
	if len(steps) == 0 {
		if where != nil && text(el, where.Field) != where.Equals {
			return total
		}
		return decimal.Sum(total, text(el, leaf))
	}
	g, ok := el.Get(steps[0])
	if !ok {
		return total
	}
	for _, item := range g.Items() {
		total = accumulate(item, steps[1:], leaf, where, total)
	}
	return total
}

func text(n *record.Node, path string) string {
	c, ok := n.Get(path)
	if !ok {
		return ""
	}
	return c.Text()
}

func relative(path, base string) string {
	if base == "" {
		return path
	}
	return strings.TrimPrefix(path, base+".")
}
