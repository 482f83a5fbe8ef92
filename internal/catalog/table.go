// =============================================================================
// CFDI Transform - Compiled Dispatch Table
// =============================================================================
//
// Compile turns a Catalog plus a variant selection into a Table: capture rules
// indexed by tag identity, the record Shape every decoded record is built
// from, and the region configuration.
//
// TAG IDENTITY:
//   A catalog tag "cfdi:Comprobante" is indexed twice: under the namespace URI
//   the prefix is bound to, and under the raw prefix. The XML tokenizer
//   resolves declared prefixes to URIs, and leaves undeclared prefixes as-is,
//   so both forms reach the same rules.
//
// =============================================================================

package catalog

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/ginjaninja78/cfdi-transform/internal/record"
)

// =============================================================================
// TAGS
// =============================================================================

// Tag is a catalog tag reference.
type Tag struct {
	Prefix string
	Local  string

	// Space is the namespace URI bound to Prefix, if declared.
	Space string
}

func parseTag(s string, namespaces map[string]string) (Tag, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Tag{}, fmt.Errorf("empty tag")
	}
	prefix, local, found := strings.Cut(s, ":")
	if !found {
		return Tag{Local: s}, nil
	}
	if prefix == "" || local == "" {
		return Tag{}, fmt.Errorf("malformed tag %q", s)
	}
	return Tag{Prefix: prefix, Local: local, Space: namespaces[prefix]}, nil
}

// Names returns the xml.Name forms this tag matches.
func (t Tag) Names() []xml.Name {
	if t.Prefix == "" {
		return []xml.Name{{Local: t.Local}}
	}
	names := []xml.Name{{Space: t.Prefix, Local: t.Local}}
	if t.Space != "" && t.Space != t.Prefix {
		names = append([]xml.Name{{Space: t.Space, Local: t.Local}}, names...)
	}
	return names
}

// Matches reports whether a tokenizer name refers to this tag.
func (t Tag) Matches(name xml.Name) bool {
	if name.Local != t.Local {
		return false
	}
	if t.Prefix == "" {
		return name.Space == ""
	}
	return name.Space == t.Prefix || (t.Space != "" && name.Space == t.Space)
}

// IsZero reports whether the tag is unset.
func (t Tag) IsZero() bool {
	return t.Local == ""
}

func (t Tag) String() string {
	if t.Prefix == "" {
		return t.Local
	}
	return t.Prefix + ":" + t.Local
}

// =============================================================================
// RULES
// =============================================================================

// RuleKind says how a rule affects the write target.
type RuleKind int

const (
	// RuleObject opens a fixed composite.
	RuleObject RuleKind = iota

	// RuleElement appends a group element.
	RuleElement

	// RuleTarget writes into an existing composite.
	RuleTarget
)

func (k RuleKind) String() string {
	switch k {
	case RuleObject:
		return "object"
	case RuleElement:
		return "element"
	case RuleTarget:
		return "target"
	default:
		return "unknown"
	}
}

// Scope limits where a rule applies relative to regions.
type Scope int

const (
	ScopeDocument Scope = iota
	ScopeRegion
	ScopeAny
)

// Context limits where a rule applies relative to line items.
type Context int

const (
	ContextAny Context = iota
	ContextDocument
	ContextLineItem
)

// Op is a field capture operation.
type Op int

const (
	// OpSet overwrites the field.
	OpSet Op = iota

	// OpSum adds the value to the field with exact decimal arithmetic.
	OpSum

	// OpJoin appends the value to a space-joined list.
	OpJoin
)

func (o Op) String() string {
	switch o {
	case OpSet:
		return "set"
	case OpSum:
		return "sum"
	case OpJoin:
		return "join"
	default:
		return "unknown"
	}
}

// Rule is a compiled capture rule.
type Rule struct {
	Tag     Tag
	Kind    RuleKind
	Path    string
	Scope   Scope
	Context Context
	Fields  []FieldRule
}

// Applies reports whether the rule is active for the current scan state.
func (r *Rule) Applies(inRegion, inLineItem bool) bool {
	switch r.Scope {
	case ScopeDocument:
		if inRegion {
			return false
		}
	case ScopeRegion:
		if !inRegion {
			return false
		}
	}
	switch r.Context {
	case ContextDocument:
		return !inLineItem
	case ContextLineItem:
		return inLineItem
	}
	return true
}

// FieldRule is a compiled field capture.
type FieldRule struct {
	Attr Tag
	Name string
	Op   Op
	When *WhenRule
}

// WhenRule guards a field capture.
type WhenRule struct {
	Attr   Tag
	Equals string
}

// Region is a compiled region kind.
type Region struct {
	Kind      string
	Container Tag
	ListField string
	Known     []string
}

// =============================================================================
// TABLE
// =============================================================================

// Table is the compiled dispatch table for one variant selection.
type Table struct {
	// Catalog is the source catalog name.
	Catalog string

	// Variants are the selected variants, in selection order.
	Variants []string

	Root     Tag
	Required []Tag
	LineItem Tag
	Regions  []Region

	// Shape describes every record decoded with this table.
	Shape *record.Shape

	rules map[xml.Name][]*Rule
}

// Rules returns the rules registered for a tag, in declaration order.
func (t *Table) Rules(name xml.Name) []*Rule {
	return t.rules[name]
}

// =============================================================================
// ERRORS
// =============================================================================

// VariantError reports an unusable variant selection.
type VariantError struct {
	Catalog string
	Variant string

	// Conflict is the already selected variant of the same family, if any.
	Conflict string
	Family   string
}

func (e *VariantError) Error() string {
	if e.Conflict != "" {
		return fmt.Sprintf("catalog %s: variants %q and %q both belong to family %q",
			e.Catalog, e.Conflict, e.Variant, e.Family)
	}
	return fmt.Sprintf("catalog %s: unknown variant %q", e.Catalog, e.Variant)
}

// =============================================================================
// COMPILE
// =============================================================================

// Compile builds the dispatch table for the selected variants.
func (c *Catalog) Compile(variants []string) (*Table, error) {
	// STEP 1: Resolve the variant selection
	selected, err := c.selectVariants(variants)
	if err != nil {
		return nil, err
	}

	namespaces := make(map[string]string, len(c.Namespaces))
	for k, v := range c.Namespaces {
		namespaces[k] = v
	}
	defs := append([]RuleDef(nil), c.Rules...)
	required := append([]string(nil), c.Required...)
	known := make(map[string][]string)
	for _, v := range selected {
		for k, ns := range v.Namespaces {
			namespaces[k] = ns
		}
		defs = append(defs, v.Rules...)
		required = append(required, v.Required...)
		for kind, names := range v.Known {
			known[kind] = append(known[kind], names...)
		}
	}

	t := &Table{
		Catalog: c.Name,
		Shape:   record.NewShape(),
		rules:   make(map[xml.Name][]*Rule),
	}
	for _, v := range selected {
		t.Variants = append(t.Variants, v.Name)
	}

	// STEP 2: Root, required tags and line item
	if t.Root, err = parseTag(c.Root, namespaces); err != nil {
		return nil, fmt.Errorf("catalog %s: root: %w", c.Name, err)
	}
	for _, r := range required {
		tag, err := parseTag(r, namespaces)
		if err != nil {
			return nil, fmt.Errorf("catalog %s: required: %w", c.Name, err)
		}
		t.Required = append(t.Required, tag)
	}
	if c.LineItem != "" {
		if t.LineItem, err = parseTag(c.LineItem, namespaces); err != nil {
			return nil, fmt.Errorf("catalog %s: line_item: %w", c.Name, err)
		}
	}

	// STEP 3: Collect group paths so every path segment gets the right kind
	groups := make(map[string]bool)
	for _, d := range defs {
		if d.Element != "" {
			groups[d.Element] = true
		}
	}

	// STEP 4: Compile rules and declare their fields in the shape
	for i, d := range defs {
		rule, err := compileRule(d, namespaces)
		if err != nil {
			return nil, fmt.Errorf("catalog %s: rule %d (%s): %w", c.Name, i, d.Tag, err)
		}
		if rule.Kind == RuleObject && groups[rule.Path] {
			return nil, fmt.Errorf("catalog %s: rule %d (%s): object path %q is declared as a group elsewhere",
				c.Name, i, d.Tag, rule.Path)
		}
		shape, err := declare(t.Shape, rule.Path, rule.Kind == RuleElement, groups)
		if err != nil {
			return nil, fmt.Errorf("catalog %s: rule %d (%s): %w", c.Name, i, d.Tag, err)
		}
		for _, f := range d.Fields {
			field := record.Field{Name: f.Name, Numeric: f.Numeric || f.Op == "sum", Zero: f.Zero}
			if err := shape.AddField(field); err != nil {
				return nil, fmt.Errorf("catalog %s: rule %d (%s): %w", c.Name, i, d.Tag, err)
			}
		}
		for _, name := range rule.Tag.Names() {
			t.rules[name] = append(t.rules[name], rule)
		}
	}

	// STEP 5: Regions and their list fields
	for _, r := range c.Regions {
		container, err := parseTag(r.Container, namespaces)
		if err != nil {
			return nil, fmt.Errorf("catalog %s: region %s: %w", c.Name, r.Kind, err)
		}
		if r.ListField != "" {
			parent, name := splitLast(r.ListField)
			shape, err := declare(t.Shape, parent, false, groups)
			if err != nil {
				return nil, fmt.Errorf("catalog %s: region %s: %w", c.Name, r.Kind, err)
			}
			if err := shape.AddField(record.Field{Name: name}); err != nil {
				return nil, fmt.Errorf("catalog %s: region %s: %w", c.Name, r.Kind, err)
			}
		}
		t.Regions = append(t.Regions, Region{
			Kind:      r.Kind,
			Container: container,
			ListField: r.ListField,
			Known:     append(append([]string(nil), r.Known...), known[r.Kind]...),
		})
	}

	return t, nil
}

func (c *Catalog) selectVariants(names []string) ([]*VariantDef, error) {
	var selected []*VariantDef
	families := make(map[string]string)
	for _, name := range names {
		v, ok := c.Variant(name)
		if !ok {
			return nil, &VariantError{Catalog: c.Name, Variant: name}
		}
		if v.Family != "" {
			if prev, taken := families[v.Family]; taken {
				return nil, &VariantError{Catalog: c.Name, Variant: name, Conflict: prev, Family: v.Family}
			}
			families[v.Family] = name
		}
		selected = append(selected, v)
	}
	return selected, nil
}

func compileRule(d RuleDef, namespaces map[string]string) (*Rule, error) {
	tag, err := parseTag(d.Tag, namespaces)
	if err != nil {
		return nil, err
	}
	rule := &Rule{Tag: tag}

	set := 0
	for _, k := range []struct {
		path string
		kind RuleKind
	}{
		{d.Object, RuleObject},
		{d.Element, RuleElement},
		{d.Target, RuleTarget},
	} {
		if k.path != "" {
			rule.Kind = k.kind
			rule.Path = k.path
			set++
		}
	}
	if set != 1 {
		return nil, fmt.Errorf("exactly one of object, element or target is required")
	}

	switch d.Scope {
	case "", "document":
		rule.Scope = ScopeDocument
	case "region":
		rule.Scope = ScopeRegion
	case "any":
		rule.Scope = ScopeAny
	default:
		return nil, fmt.Errorf("unknown scope %q", d.Scope)
	}

	switch d.Context {
	case "", "any":
		rule.Context = ContextAny
	case "document":
		rule.Context = ContextDocument
	case "line_item":
		rule.Context = ContextLineItem
	default:
		return nil, fmt.Errorf("unknown context %q", d.Context)
	}

	for _, f := range d.Fields {
		if f.Attr == "" || f.Name == "" {
			return nil, fmt.Errorf("field needs both attr and name")
		}
		if strings.Contains(f.Name, ".") {
			return nil, fmt.Errorf("field name %q must not contain '.'", f.Name)
		}
		attr, err := parseTag(f.Attr, namespaces)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		fr := FieldRule{Attr: attr, Name: f.Name}
		switch f.Op {
		case "", "set":
			fr.Op = OpSet
		case "sum":
			fr.Op = OpSum
		case "join":
			fr.Op = OpJoin
		default:
			return nil, fmt.Errorf("field %s: unknown op %q", f.Name, f.Op)
		}
		if f.When != nil {
			when, err := parseTag(f.When.Attr, namespaces)
			if err != nil {
				return nil, fmt.Errorf("field %s: when: %w", f.Name, err)
			}
			fr.When = &WhenRule{Attr: when, Equals: f.When.Equals}
		}
		rule.Fields = append(rule.Fields, fr)
	}
	return rule, nil
}

// declare walks path from the root shape, declaring composites and groups as
// needed, and returns the shape that receives fields: the composite itself,
// or the element shape when the path is a group.
func declare(root *record.Shape, path string, isGroup bool, groups map[string]bool) (*record.Shape, error) {
	if path == "" {
		if isGroup {
			return nil, fmt.Errorf("empty group path")
		}
		return root, nil
	}

	shape := root
	segments := strings.Split(path, ".")
	for i, seg := range segments {
		if seg == "" {
			return nil, fmt.Errorf("malformed path %q", path)
		}
		prefix := strings.Join(segments[:i+1], ".")
		var err error
		if groups[prefix] || (isGroup && i == len(segments)-1) {
			shape, err = shape.Group(seg)
		} else {
			shape, err = shape.Composite(seg)
		}
		if err != nil {
			return nil, fmt.Errorf("path %q: %w", path, err)
		}
	}
	return shape, nil
}

func splitLast(path string) (string, string) {
	i := strings.LastIndexByte(path, '.')
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}
