package region

import (
	"encoding/xml"
	"testing"
)

const cfdiNS = "http://www.sat.gob.mx/cfd/3"

func cfdi(local string) xml.Name {
	return xml.Name{Space: cfdiNS, Local: local}
}

func newTestTracker() *Tracker {
	return NewTracker([]Spec{
		{
			Kind:       "complemento",
			Containers: []xml.Name{cfdi("Complemento"), {Space: "cfdi", Local: "Complemento"}},
			Known:      []string{"TimbreFiscalDigital", "Nomina"},
		},
		{
			Kind:       "addenda",
			Containers: []xml.Name{cfdi("Addenda")},
		},
	})
}

type step struct {
	open bool
	name xml.Name
}

func openTag(n xml.Name) step { return step{open: true, name: n} }
func closeTag(n xml.Name) step { return step{name: n} }

func run(t *Tracker, steps []step) []Event {
	var events []Event
	for _, s := range steps {
		var ev Event
		var ok bool
		if s.open {
			ev, ok = t.Open(s.name)
		} else {
			ev, ok = t.Close(s.name)
		}
		if ok {
			events = append(events, ev)
		}
	}
	return events
}

func TestTrackerSkipsNestedRegions(t *testing.T) {
	nomina := xml.Name{Space: "http://www.sat.gob.mx/nomina12", Local: "Nomina"}
	percepcion := xml.Name{Space: nomina.Space, Local: "Percepcion"}
	tfd := xml.Name{Space: "http://www.sat.gob.mx/TimbreFiscalDigital", Local: "TimbreFiscalDigital"}

	tr := newTestTracker()
	events := run(tr, []step{
		openTag(cfdi("Comprobante")),
		openTag(cfdi("Complemento")),
		openTag(nomina),
		openTag(percepcion),
		openTag(percepcion),
		closeTag(percepcion),
		closeTag(percepcion),
		closeTag(nomina),
		openTag(tfd),
		closeTag(tfd),
		closeTag(cfdi("Complemento")),
		closeTag(cfdi("Comprobante")),
	})

	if len(events) != 4 {
		t.Fatalf("events = %d, want 4", len(events))
	}
	if events[0].Type != Entered || events[0].Variant != "Nomina" {
		t.Errorf("events[0] = %+v, want Entered Nomina", events[0])
	}
	if events[1].Type != Exited || events[1].Variant != "Nomina" {
		t.Errorf("events[1] = %+v, want Exited Nomina", events[1])
	}
	if got := tr.Variants("complemento"); got != "Nomina TimbreFiscalDigital" {
		t.Errorf("Variants = %q, want %q", got, "Nomina TimbreFiscalDigital")
	}
	if got := tr.State("complemento"); got != Outside {
		t.Errorf("State = %v, want outside", got)
	}
}

func TestTrackerStates(t *testing.T) {
	tr := newTestTracker()
	stamp := xml.Name{Space: "tfd", Local: "TimbreFiscalDigital"}

	tr.Open(cfdi("Complemento"))
	if got := tr.State("complemento"); got != InContainer {
		t.Fatalf("after container open: %v, want in-container", got)
	}
	if tr.InRegion() {
		t.Fatal("InRegion true inside bare container")
	}

	tr.Open(stamp)
	if !tr.InRegion() || tr.Depth() != 1 {
		t.Fatalf("InRegion = %v, Depth = %d, want true, 1", tr.InRegion(), tr.Depth())
	}
	tr.Open(xml.Name{Local: "Inner"})
	if tr.Depth() != 2 {
		t.Errorf("Depth = %d, want 2", tr.Depth())
	}
	tr.Close(xml.Name{Local: "Inner"})
	tr.Close(stamp)
	if got := tr.State("complemento"); got != InContainer {
		t.Errorf("after region close: %v, want in-container", got)
	}
}

func TestTrackerUnknownVariant(t *testing.T) {
	tests := []struct {
		name      string
		container xml.Name
		variant   xml.Name
		wantKnown bool
	}{
		{"known complement", cfdi("Complemento"), xml.Name{Local: "Nomina"}, true},
		{"unknown complement", cfdi("Complemento"), xml.Name{Local: "Pagos"}, false},
		{"addenda without known list", cfdi("Addenda"), xml.Name{Local: "Walmart"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTestTracker()
			tr.Open(tt.container)
			ev, ok := tr.Open(tt.variant)
			if !ok {
				t.Fatal("no Entered event")
			}
			if ev.Known != tt.wantKnown {
				t.Errorf("Known = %v, want %v", ev.Known, tt.wantKnown)
			}
		})
	}
}

func TestTrackerSeparateKinds(t *testing.T) {
	tr := newTestTracker()
	run(tr, []step{
		openTag(cfdi("Complemento")),
		openTag(xml.Name{Local: "Nomina"}),
		closeTag(xml.Name{Local: "Nomina"}),
		closeTag(cfdi("Complemento")),
		openTag(cfdi("Addenda")),
		openTag(xml.Name{Local: "A"}),
		closeTag(xml.Name{Local: "A"}),
		openTag(xml.Name{Local: "A"}),
		closeTag(xml.Name{Local: "A"}),
		closeTag(cfdi("Addenda")),
	})

	if got := tr.Variants("complemento"); got != "Nomina" {
		t.Errorf("complemento = %q, want %q", got, "Nomina")
	}
	if got := tr.Variants("addenda"); got != "A A" {
		t.Errorf("addenda = %q, want %q", got, "A A")
	}

	tr.Reset()
	if got := tr.Variants("addenda"); got != "" {
		t.Errorf("after Reset addenda = %q, want empty", got)
	}
}

func TestVariantName(t *testing.T) {
	tests := []struct {
		in   xml.Name
		want string
	}{
		{xml.Name{Space: "urn:x", Local: "Nomina"}, "Nomina"},
		{xml.Name{Local: "a:b:Pagos"}, "Pagos"},
		{xml.Name{Local: "Plain"}, "Plain"},
	}
	for _, tt := range tests {
		if got := VariantName(tt.in); got != tt.want {
			t.Errorf("VariantName(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
