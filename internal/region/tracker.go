// =============================================================================
// CFDI Transform - Region Tracker
// =============================================================================
//
// The tracker classifies, during a single forward scan, whether the parser is
// inside a "region": a sub-structure of unknown shape (a complement or an
// addenda) that is skipped by depth counting instead of being parsed.
//
// STATE MACHINE (per region kind):
//
//   Outside     --open container-->          InContainer
//   InContainer --open tag-->                InRegion(tag, depth=1)   [Entered]
//   InRegion    --open tag-->                depth+1
//   InRegion    --close tag-->               depth-1
//   InRegion    --close at depth 0-->        InContainer              [Exited]
//   InContainer --close-->                   Outside
//
// Only one kind is active at a time. While a region is open, the container
// tags of other kinds are ordinary nested tags.
//
// =============================================================================

package region

import (
	"encoding/xml"
	"strings"
)

// State is the position of the scan relative to one region kind.
type State int

const (
	// Outside means no container of this kind is open.
	Outside State = iota

	// InContainer means the container is open but no region started yet.
	InContainer

	// InRegion means a region of this kind is open.
	InRegion
)

func (s State) String() string {
	switch s {
	case Outside:
		return "outside"
	case InContainer:
		return "in-container"
	case InRegion:
		return "in-region"
	default:
		return "unknown"
	}
}

// Spec configures one region kind.
type Spec struct {
	// Kind names the region kind, e.g. "complemento".
	Kind string

	// Containers lists the names the container tag may resolve to
	// (namespace URI form and raw prefix form).
	Containers []xml.Name

	// Known lists the expected variant names. An empty list disables
	// the unknown-variant check for this kind.
	Known []string
}

// EventType distinguishes region entry from region exit.
type EventType int

const (
	// Entered is emitted when a region starts.
	Entered EventType = iota

	// Exited is emitted when a region closes.
	Exited
)

// Event reports a region boundary.
type Event struct {
	Type    EventType
	Kind    string
	Variant string

	// Known is false when the kind declares known variants and this
	// variant is not one of them.
	Known bool
}

// =============================================================================
// TRACKER
// =============================================================================

type kindState struct {
	spec    Spec
	known   map[string]bool
	state   State
	variant string
	depth   int
	seen    []string
}

// Tracker follows region boundaries for a set of region kinds.
type Tracker struct {
	kinds  []*kindState
	active *kindState
}

// NewTracker builds a tracker for the given region kinds.
func NewTracker(specs []Spec) *Tracker {
	t := &Tracker{}
	for _, spec := range specs {
		ks := &kindState{spec: spec}
		if len(spec.Known) > 0 {
			ks.known = make(map[string]bool, len(spec.Known))
			for _, name := range spec.Known {
				ks.known[name] = true
			}
		}
		t.kinds = append(t.kinds, ks)
	}
	return t
}

// Reset clears all state so the tracker can follow a new document.
func (t *Tracker) Reset() {
	t.active = nil
	for _, ks := range t.kinds {
		ks.state = Outside
		ks.variant = ""
		ks.depth = 0
		ks.seen = nil
	}
}

// Open feeds an open tag. It reports an Entered event when the tag starts a region.
func (t *Tracker) Open(name xml.Name) (Event, bool) {
	if t.active == nil {
		for _, ks := range t.kinds {
			if matches(ks.spec.Containers, name) {
				ks.state = InContainer
				t.active = ks
				break
			}
		}
		return Event{}, false
	}

	ks := t.active
	switch ks.state {
	case InContainer:
		ks.state = InRegion
		ks.variant = VariantName(name)
		ks.depth = 1
		return Event{
			Type:    Entered,
			Kind:    ks.spec.Kind,
			Variant: ks.variant,
			Known:   ks.known == nil || ks.known[ks.variant],
		}, true
	case InRegion:
		ks.depth++
	}
	return Event{}, false
}

// Close feeds a close tag. It reports an Exited event when the tag ends a region.
func (t *Tracker) Close(name xml.Name) (Event, bool) {
	ks := t.active
	if ks == nil {
		return Event{}, false
	}

	switch ks.state {
	case InRegion:
		ks.depth--
		if ks.depth > 0 {
			return Event{}, false
		}
		ev := Event{
			Type:    Exited,
			Kind:    ks.spec.Kind,
			Variant: ks.variant,
			Known:   ks.known == nil || ks.known[ks.variant],
		}
		ks.seen = append(ks.seen, ks.variant)
		ks.state = InContainer
		ks.variant = ""
		return ev, true
	case InContainer:
		ks.state = Outside
		t.active = nil
	}
	return Event{}, false
}

// InRegion reports whether any region is currently open.
func (t *Tracker) InRegion() bool {
	return t.active != nil && t.active.state == InRegion
}

// State returns the current state for a region kind.
func (t *Tracker) State(kind string) State {
	for _, ks := range t.kinds {
		if ks.spec.Kind == kind {
			return ks.state
		}
	}
	return Outside
}

// Depth returns the nesting depth inside the open region, or 0.
func (t *Tracker) Depth() int {
	if !t.InRegion() {
		return 0
	}
	return t.active.depth
}

// Variants returns the space-joined list of variants closed so far for a kind.
func (t *Tracker) Variants(kind string) string {
	for _, ks := range t.kinds {
		if ks.spec.Kind == kind {
			return strings.Join(ks.seen, " ")
		}
	}
	return ""
}

// VariantName derives the variant name of a region from its start tag: the
// local name with any prefix up to the last ':' removed.
func VariantName(name xml.Name) string {
	local := name.Local
	if i := strings.LastIndexByte(local, ':'); i >= 0 {
		local = local[i+1:]
	}
	return local
}

func matches(names []xml.Name, name xml.Name) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
