// =============================================================================
// CFDI Transform - Catalog Definitions
// =============================================================================
//
// A catalog is the data-only dispatch configuration for one document family:
// which tags start which record nodes, which attributes are captured into
// which fields, and which container tags open skipped regions. Catalogs are
// written in YAML.
//
// EXAMPLE:
//   catalog: cfdi33
//   namespaces:
//     cfdi: http://www.sat.gob.mx/cfd/3
//   root: cfdi:Comprobante
//   line_item: cfdi:Concepto
//   regions:
//     - kind: complemento
//       container: cfdi:Complemento
//       list_field: cfdi33.complementos
//   rules:
//     - tag: cfdi:Comprobante
//       object: cfdi33
//       fields:
//         - { attr: Total, name: total, numeric: true }
//   variants:
//     - name: pagos10
//       family: pagos
//       rules: [...]
//
// =============================================================================

package catalog

// Catalog is the YAML form of a dispatch catalog.
type Catalog struct {
	// Name identifies the catalog; profiles refer to it by this name.
	Name string `yaml:"catalog"`

	// Description is a human-readable summary.
	Description string `yaml:"description"`

	// Namespaces maps tag prefixes to namespace URIs.
	Namespaces map[string]string `yaml:"namespaces"`

	// Root is the required document element, e.g. "cfdi:Comprobante".
	Root string `yaml:"root"`

	// Required lists tags that must appear somewhere in the document.
	Required []string `yaml:"required"`

	// LineItem is the tag whose open/close toggles the line-item context.
	LineItem string `yaml:"line_item"`

	// Regions configures the skipped sub-structures.
	Regions []RegionDef `yaml:"regions"`

	// Rules are always active.
	Rules []RuleDef `yaml:"rules"`

	// Variants are mutually exclusive sub-schema dialects, selected per decode.
	Variants []VariantDef `yaml:"variants"`
}

// RegionDef configures one region kind.
type RegionDef struct {
	// Kind names the region kind, e.g. "complemento".
	Kind string `yaml:"kind"`

	// Container is the tag whose direct children are regions.
	Container string `yaml:"container"`

	// ListField is the scalar that receives the space-joined variant names.
	ListField string `yaml:"list_field"`

	// Known lists the expected variant names.
	Known []string `yaml:"known"`
}

// RuleDef maps one tag to a record node and its captured fields. Exactly one
// of Object, Element and Target is set.
type RuleDef struct {
	Tag string `yaml:"tag"`

	// Object opens a fixed composite at the path.
	Object string `yaml:"object"`

	// Element appends a new element to the group at the path.
	Element string `yaml:"element"`

	// Target captures fields into the composite at the path without
	// opening a new node.
	Target string `yaml:"target"`

	// Scope is "document" (default), "region" or "any".
	Scope string `yaml:"scope"`

	// Context is "any" (default), "document" or "line_item".
	Context string `yaml:"context"`

	Fields []FieldDef `yaml:"fields"`
}

// FieldDef captures one attribute.
type FieldDef struct {
	Attr string `yaml:"attr"`
	Name string `yaml:"name"`

	// Op is "set" (default), "sum" or "join".
	Op string `yaml:"op"`

	// Numeric marks fields zero-filled in safe-numerics mode.
	// Sum fields are always numeric.
	Numeric bool `yaml:"numeric"`

	// Zero overrides the zero text, e.g. "1.00" for exchange rates.
	Zero string `yaml:"zero"`

	When *Condition `yaml:"when"`
}

// Condition guards a field capture on another attribute of the same tag.
type Condition struct {
	Attr   string `yaml:"attr"`
	Equals string `yaml:"equals"`
}

// VariantDef is a selectable sub-schema dialect.
type VariantDef struct {
	Name string `yaml:"name"`

	// Family groups mutually exclusive variants; at most one variant per
	// family may be selected.
	Family string `yaml:"family"`

	Description string `yaml:"description"`

	Namespaces map[string]string `yaml:"namespaces"`

	// Known adds expected region variants per region kind.
	Known map[string][]string `yaml:"known"`

	Required []string  `yaml:"required"`
	Rules    []RuleDef `yaml:"rules"`
}

// Variant returns the variant definition called name.
func (c *Catalog) Variant(name string) (*VariantDef, bool) {
	for i := range c.Variants {
		if c.Variants[i].Name == name {
			return &c.Variants[i], true
		}
	}
	return nil, false
}

// VariantNames lists the catalog's variants in declaration order.
func (c *Catalog) VariantNames() []string {
	names := make([]string, len(c.Variants))
	for i, v := range c.Variants {
		names[i] = v.Name
	}
	return names
}
