// =============================================================================
// CFDI Transform - Field Extractor
// =============================================================================
//
// The extractor applies the dispatch table to each open tag: it decides which
// record node the tag writes into, opens composites and group elements, and
// copies attribute values into fields.
//
// WRITE TARGETS:
//   Rule paths are absolute record paths ("pagos10.pago.docto_relacionado").
//   The extractor keeps a stack of open targets, each tagged with the element
//   depth that opened it. A path is resolved from the open target with the
//   longest matching prefix; the rest of the path may only cross composites.
//   A rule whose path would cross a group with no open element is ignored.
//
// FIELD OPERATIONS:
//   set  : overwrite the field
//   sum  : add to the field with exact decimal arithmetic (validated)
//   join : append to a space-joined list
//
// =============================================================================

package extract

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/ginjaninja78/cfdi-transform/internal/catalog"
	"github.com/ginjaninja78/cfdi-transform/internal/decimal"
	"github.com/ginjaninja78/cfdi-transform/internal/record"
)

// InvalidValueError reports a summed attribute that is not a decimal number.
type InvalidValueError struct {
	Tag   string
	Attr  string
	Field string
	Value string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid decimal %q in %s@%s (field %s)", e.Value, e.Tag, e.Attr, e.Field)
}

type frame struct {
	path  string
	node  *record.Node
	depth int
}

// Extractor captures fields for one document at a time.
type Extractor struct {
	table *catalog.Table
	rec   *record.Record

	frames    []frame
	depth     int
	lineItems []int
}

// New returns an extractor for a compiled table.
func New(table *catalog.Table) *Extractor {
	return &Extractor{table: table}
}

// Reset starts a new document writing into rec.
func (x *Extractor) Reset(rec *record.Record) {
	x.rec = rec
	x.frames = append(x.frames[:0], frame{node: rec.Root()})
	x.depth = 0
	x.lineItems = x.lineItems[:0]
}

// Depth returns the current element depth.
func (x *Extractor) Depth() int {
	return x.depth
}

// InLineItem reports whether the scan is inside a line-item element.
func (x *Extractor) InLineItem() bool {
	return len(x.lineItems) > 0
}

// Open handles an open tag.
func (x *Extractor) Open(el xml.StartElement, inRegion bool) error {
	x.depth++
	if !inRegion && !x.table.LineItem.IsZero() && x.table.LineItem.Matches(el.Name) {
		x.lineItems = append(x.lineItems, x.depth)
	}

	for _, rule := range x.table.Rules(el.Name) {
		if !rule.Applies(inRegion, x.InLineItem()) {
			continue
		}
		node, ok := x.target(rule)
		if !ok {
			continue
		}
		if rule.Kind != catalog.RuleTarget {
			x.frames = append(x.frames, frame{path: rule.Path, node: node, depth: x.depth})
		}
		if err := capture(rule, node, el); err != nil {
			return err
		}
	}
	return nil
}

// Close handles a close tag.
func (x *Extractor) Close(xml.Name) {
	for len(x.frames) > 1 && x.frames[len(x.frames)-1].depth == x.depth {
		x.frames = x.frames[:len(x.frames)-1]
	}
	if n := len(x.lineItems); n > 0 && x.lineItems[n-1] == x.depth {
		x.lineItems = x.lineItems[:n-1]
	}
	x.depth--
}

// AppendList joins value onto the scalar at an absolute path.
func (x *Extractor) AppendList(path, value string) {
	n, ok := x.rec.Get(path)
	if !ok || n.Kind() != record.KindScalar {
		return
	}
	n.SetText(joinList(n.Text(), value))
}

// Finish applies end-of-scan substitutions: with safeNumerics, absent numeric
// fields get their zero text; then, if emptyChar is set, every remaining
// absent field gets emptyChar.
func (x *Extractor) Finish(safeNumerics bool, emptyChar string) {
	x.rec.Walk(func(_ string, n *record.Node) {
		if n.Present() {
			return
		}
		if safeNumerics && n.Field().Numeric {
			zero := n.Field().Zero
			if zero == "" {
				zero = decimal.Zero
			}
			n.SetText(zero)
			return
		}
		if emptyChar != "" {
			n.SetText(emptyChar)
		}
	})
}

// target resolves the node a rule writes into, appending a group element
// for element rules.
func (x *Extractor) target(rule *catalog.Rule) (*record.Node, bool) {
	if rule.Kind != catalog.RuleElement {
		return x.resolve(rule.Path)
	}

	parent, name := rule.Path, ""
	if i := strings.LastIndexByte(parent, '.'); i >= 0 {
		parent, name = parent[:i], parent[i+1:]
	} else {
		parent, name = "", parent
	}
	container, ok := x.resolve(parent)
	if !ok {
		return nil, false
	}
	group, ok := container.Child(name)
	if !ok || group.Kind() != record.KindGroup {
		return nil, false
	}
	return group.Append(), true
}

// resolve finds the composite at path, starting from the open target with
// the longest matching prefix.
func (x *Extractor) resolve(path string) (*record.Node, bool) {
	best := -1
	for i, f := range x.frames {
		if f.path != path && f.path != "" && !strings.HasPrefix(path, f.path+".") {
			continue
		}
		if best < 0 || len(f.path) >= len(x.frames[best].path) {
			best = i
		}
	}
	if best < 0 {
		return nil, false
	}

	f := x.frames[best]
	rest := path
	if f.path != "" {
		rest = strings.TrimPrefix(strings.TrimPrefix(path, f.path), ".")
	}

	node := f.node
	if rest == "" {
		return node, true
	}
	for _, seg := range strings.Split(rest, ".") {
		child, ok := node.Child(seg)
		if !ok || child.Kind() != record.KindComposite {
			return nil, false
		}
		node = child
	}
	return node, true
}

func capture(rule *catalog.Rule, node *record.Node, el xml.StartElement) error {
	for _, f := range rule.Fields {
		value, ok := attr(el, f.Attr)
		if !ok {
			continue
		}
		if f.When != nil {
			guard, ok := attr(el, f.When.Attr)
			if !ok || guard != f.When.Equals {
				continue
			}
		}
		field, ok := node.Child(f.Name)
		if !ok {
			continue
		}

		switch f.Op {
		case catalog.OpSet:
			field.SetText(value)
		case catalog.OpJoin:
			field.SetText(joinList(field.Text(), value))
		case catalog.OpSum:
			value = strings.TrimSpace(value)
			if value == "" {
				// A present but empty operand still makes the total concrete.
				field.SetText(decimal.Sum(field.Text(), ""))
				continue
			}
			if !decimal.Valid(value) {
				return &InvalidValueError{
					Tag:   rule.Tag.String(),
					Attr:  f.Attr.String(),
					Field: rule.Path + "." + f.Name,
					Value: value,
				}
			}
			field.SetText(decimal.Sum(field.Text(), value))
		}
	}
	return nil
}

func attr(el xml.StartElement, tag catalog.Tag) (string, bool) {
	for _, a := range el.Attr {
		if tag.Matches(a.Name) {
			return a.Value, true
		}
	}
	return "", false
}

func joinList(list, value string) string {
	if list == "" {
		return value
	}
	return list + " " + value
}
