package record

import (
	"fmt"
	"strings"
)

// Kind identifies what a record node holds.
type Kind int

const (
	// KindScalar is a single text value.
	KindScalar Kind = iota

	// KindComposite is a fixed, ordered set of named sub-nodes.
	KindComposite

	// KindGroup is a repeating list of composite elements sharing one shape.
	KindGroup
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindComposite:
		return "composite"
	case KindGroup:
		return "group"
	default:
		return "unknown"
	}
}

// Field describes a scalar entry of a shape.
type Field struct {
	// Name is the semantic field name.
	Name string

	// Numeric marks decimal fields that are zero-filled in safe-numerics mode.
	Numeric bool

	// Zero is the text used when a numeric field is zero-filled.
	// Empty means the default "0.00".
	Zero string
}

// Entry is one named member of a Shape.
type Entry struct {
	Name  string
	Kind  Kind
	Field Field

	// Shape is the nested shape for composites, or the element shape for groups.
	Shape *Shape
}

// Shape is the compiled structure of a composite node: every element of a
// group is instantiated from the same Shape, so all elements share one field
// schema.
type Shape struct {
	entries []Entry
	index   map[string]int
}

// NewShape returns an empty composite shape.
func NewShape() *Shape {
	return &Shape{index: make(map[string]int)}
}

// Entries returns the members in declaration order.
func (s *Shape) Entries() []Entry {
	return s.entries
}

// Entry returns the member with the given name.
func (s *Shape) Entry(name string) (Entry, bool) {
	i, ok := s.index[name]
	if !ok {
		return Entry{}, false
	}
	return s.entries[i], true
}

// AddField declares a scalar member. Declaring the same field twice merges
// the numeric flag; declaring it over a composite or group is an error.
func (s *Shape) AddField(f Field) error {
	if i, ok := s.index[f.Name]; ok {
		e := &s.entries[i]
		if e.Kind != KindScalar {
			return fmt.Errorf("field %q already declared as %s", f.Name, e.Kind)
		}
		e.Field.Numeric = e.Field.Numeric || f.Numeric
		if e.Field.Zero == "" {
			e.Field.Zero = f.Zero
		}
		return nil
	}
	s.add(Entry{Name: f.Name, Kind: KindScalar, Field: f})
	return nil
}

// Composite returns the nested composite shape called name, declaring it if needed.
func (s *Shape) Composite(name string) (*Shape, error) {
	return s.nested(name, KindComposite)
}

// Group returns the element shape of the group called name, declaring it if needed.
func (s *Shape) Group(name string) (*Shape, error) {
	return s.nested(name, KindGroup)
}

func (s *Shape) nested(name string, kind Kind) (*Shape, error) {
	if i, ok := s.index[name]; ok {
		e := s.entries[i]
		if e.Kind != kind {
			return nil, fmt.Errorf("%q already declared as %s, not %s", name, e.Kind, kind)
		}
		return e.Shape, nil
	}
	child := NewShape()
	s.add(Entry{Name: name, Kind: kind, Shape: child})
	return child, nil
}

func (s *Shape) add(e Entry) {
	s.index[e.Name] = len(s.entries)
	s.entries = append(s.entries, e)
}

// Resolve walks a dot-separated path from this shape. It returns the entry
// at the end of the path and the paths of the groups crossed on the way
// (the final entry included when it is a group).
func (s *Shape) Resolve(path string) (Entry, []string, error) {
	if path == "" {
		return Entry{}, nil, fmt.Errorf("empty path")
	}

	var groups []string
	current := s
	segments := strings.Split(path, ".")
	for i, seg := range segments {
		e, ok := current.Entry(seg)
		if !ok {
			return Entry{}, nil, fmt.Errorf("path %q: no field %q", path, seg)
		}
		if e.Kind == KindGroup {
			groups = append(groups, strings.Join(segments[:i+1], "."))
		}
		if i == len(segments)-1 {
			return e, groups, nil
		}
		if e.Kind == KindScalar {
			return Entry{}, nil, fmt.Errorf("path %q: %q is a scalar", path, seg)
		}
		current = e.Shape
	}
	return Entry{}, nil, fmt.Errorf("path %q: unresolved", path)
}
