// =============================================================================
// CFDI Transform - Record Data Model
// =============================================================================
//
// A Record is the structured result of decoding one document: an ordered
// tree of named nodes. Each node is one of:
//   - Scalar    : a text value, or the absent marker
//   - Composite : a fixed, ordered set of named sub-nodes
//   - Group     : a repeating list of composite elements sharing one Shape
//
// LIFECYCLE:
//   A Record is created from its Shape at scan start (all scalars absent, all
//   groups empty), mutated as fields are captured, and frozen when the scan
//   ends. Mutating a frozen record panics.
//
// PATHS:
//   Get accepts dot-separated paths. Group elements are addressed with an
//   index suffix: "pagos10[0].pago[1].monto".
//
// =============================================================================

package record

import (
	"fmt"
	"strconv"
	"strings"
)

// Record is a decoded document.
type Record struct {
	shape  *Shape
	root   *Node
	frozen bool
}

// New instantiates an empty record from its shape.
func New(shape *Shape) *Record {
	r := &Record{shape: shape}
	r.root = r.instantiate(shape)
	return r
}

// Shape returns the shape the record was built from.
func (r *Record) Shape() *Shape {
	return r.shape
}

// Root returns the top-level composite.
func (r *Record) Root() *Node {
	return r.root
}

// Freeze makes the record immutable.
func (r *Record) Freeze() {
	r.frozen = true
}

// Frozen reports whether Freeze has been called.
func (r *Record) Frozen() bool {
	return r.frozen
}

// Get resolves a path such as "cfdi33.emisor.rfc" or "tfd[0].uuid".
func (r *Record) Get(path string) (*Node, bool) {
	return r.root.Get(path)
}

// Text returns the text at path, or "" when the path does not resolve to a scalar.
func (r *Record) Text(path string) string {
	n, ok := r.Get(path)
	if !ok || n.kind != KindScalar {
		return ""
	}
	return n.text
}

// Walk visits every scalar in document order.
func (r *Record) Walk(fn func(path string, n *Node)) {
	r.root.walk("", fn)
}

func (r *Record) instantiate(shape *Shape) *Node {
	n := &Node{
		kind:     KindComposite,
		owner:    r,
		shape:    shape,
		children: make(map[string]*Node, len(shape.entries)),
	}
	for _, e := range shape.entries {
		var child *Node
		switch e.Kind {
		case KindScalar:
			child = &Node{kind: KindScalar, owner: r, field: e.Field}
		case KindComposite:
			child = r.instantiate(e.Shape)
		case KindGroup:
			child = &Node{kind: KindGroup, owner: r, shape: e.Shape}
		}
		n.names = append(n.names, e.Name)
		n.children[e.Name] = child
	}
	return n
}

// =============================================================================
// NODE
// =============================================================================

// Node is one node of a Record.
type Node struct {
	kind  Kind
	owner *Record

	// scalar
	field   Field
	text    string
	present bool

	// composite, and element shape for groups
	shape    *Shape
	names    []string
	children map[string]*Node

	// group
	items []*Node
}

// Kind returns the node kind.
func (n *Node) Kind() Kind {
	return n.kind
}

// Text returns the scalar text; absent scalars return "".
func (n *Node) Text() string {
	return n.text
}

// Present reports whether a value was captured (or substituted) for the scalar.
func (n *Node) Present() bool {
	return n.present
}

// Field returns the scalar's field description.
func (n *Node) Field() Field {
	return n.field
}

// SetText stores a scalar value.
func (n *Node) SetText(s string) {
	n.mustMutate(KindScalar)
	n.text = s
	n.present = true
}

// Names returns the composite's member names in order.
func (n *Node) Names() []string {
	return n.names
}

// Child returns a composite member.
func (n *Node) Child(name string) (*Node, bool) {
	c, ok := n.children[name]
	return c, ok
}

// Len returns the number of group elements.
func (n *Node) Len() int {
	return len(n.items)
}

// Item returns the i-th group element.
func (n *Node) Item(i int) *Node {
	return n.items[i]
}

// Items returns the group elements in encounter order.
func (n *Node) Items() []*Node {
	return n.items
}

// Append adds a new element, instantiated from the group's element shape.
func (n *Node) Append() *Node {
	n.mustMutate(KindGroup)
	elem := n.owner.instantiate(n.shape)
	n.items = append(n.items, elem)
	return elem
}

// Get resolves a path relative to this node.
func (n *Node) Get(path string) (*Node, bool) {
	if path == "" {
		return n, true
	}

	current := n
	for _, seg := range strings.Split(path, ".") {
		name, index, err := splitIndex(seg)
		if err != nil || current.kind != KindComposite {
			return nil, false
		}
		child, ok := current.children[name]
		if !ok {
			return nil, false
		}
		if index >= 0 {
			if child.kind != KindGroup || index >= len(child.items) {
				return nil, false
			}
			child = child.items[index]
		}
		current = child
	}
	return current, true
}

func (n *Node) walk(prefix string, fn func(path string, n *Node)) {
	switch n.kind {
	case KindScalar:
		fn(prefix, n)
	case KindComposite:
		for _, name := range n.names {
			n.children[name].walk(join(prefix, name), fn)
		}
	case KindGroup:
		for i, item := range n.items {
			item.walk(fmt.Sprintf("%s[%d]", prefix, i), fn)
		}
	}
}

func (n *Node) mustMutate(kind Kind) {
	if n.kind != kind {
		panic(fmt.Sprintf("record: %s operation on %s node", kind, n.kind))
	}
	if n.owner != nil && n.owner.frozen {
		panic("record: mutation of frozen record")
	}
}

// splitIndex parses "name[3]" into ("name", 3); plain names return index -1.
func splitIndex(seg string) (string, int, error) {
	open := strings.IndexByte(seg, '[')
	if open < 0 {
		return seg, -1, nil
	}
	if !strings.HasSuffix(seg, "]") {
		return "", 0, fmt.Errorf("bad segment %q", seg)
	}
	i, err := strconv.Atoi(seg[open+1 : len(seg)-1])
	if err != nil || i < 0 {
		return "", 0, fmt.Errorf("bad index in %q", seg)
	}
	return seg[:open], i, nil
}

func join(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
