// =============================================================================
// CFDI Transform - Streaming Decoder
// =============================================================================
//
// The decoder makes one forward pass over an XML document and builds a
// Record. It never materializes a document tree: auxiliary state is the
// open-tag stack, the extractor's write targets and the region depth
// counters, all proportional to nesting depth.
//
// PROCESS FLOW:
//   1. New compiles the catalog for the requested variants. Unknown or
//      conflicting variants fail here, before any input is read.
//   2. Decode reads tokens. Each open tag goes to the region tracker first
//      (so a region start is already "inside" its region), then to the
//      extractor. Each close tag goes to the extractor, then the tracker.
//   3. At end of stream the root and required elements are checked,
//      end-of-scan substitutions are applied and the record is frozen.
//
// A Decoder is reusable sequentially. Use one Decoder per goroutine.
//
// =============================================================================

package decoder

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/net/html/charset"

	"github.com/ginjaninja78/cfdi-transform/internal/catalog"
	"github.com/ginjaninja78/cfdi-transform/internal/extract"
	"github.com/ginjaninja78/cfdi-transform/internal/record"
	"github.com/ginjaninja78/cfdi-transform/internal/region"
)

// Options configures a Decoder.
type Options struct {
	// EmptyChar replaces absent fields at end of scan. Empty keeps them absent.
	EmptyChar string

	// SafeNumerics zero-fills absent numeric fields at end of scan.
	SafeNumerics bool

	// Variants selects the catalog's sub-schema dialects.
	Variants []string

	// Logger receives debug output. Nil discards it.
	Logger *slog.Logger

	// OnWarning, if set, is called for each warning as it happens.
	OnWarning func(*UnrecognizedRegionWarning)
}

// Decoder turns XML documents into Records.
type Decoder struct {
	table     *catalog.Table
	opts      Options
	logger    *slog.Logger
	tracker   *region.Tracker
	extractor *extract.Extractor
	regions   map[string]catalog.Region
	warnings  []*UnrecognizedRegionWarning
}

// New compiles cat for the requested variants and returns a Decoder.
func New(cat *catalog.Catalog, opts Options) (*Decoder, error) {
	table, err := cat.Compile(opts.Variants)
	if err != nil {
		var ve *catalog.VariantError
		if errors.As(err, &ve) {
			return nil, &SchemaMismatchError{Catalog: cat.Name, Reason: "unusable variant selection", Err: err}
		}
		return nil, fmt.Errorf("failed to compile catalog %s: %w", cat.Name, err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	d := &Decoder{
		table:     table,
		opts:      opts,
		logger:    logger,
		extractor: extract.New(table),
		regions:   make(map[string]catalog.Region, len(table.Regions)),
	}

	specs := make([]region.Spec, 0, len(table.Regions))
	for _, r := range table.Regions {
		specs = append(specs, region.Spec{
			Kind:       r.Kind,
			Containers: r.Container.Names(),
			Known:      r.Known,
		})
		d.regions[r.Kind] = r
	}
	d.tracker = region.NewTracker(specs)

	return d, nil
}

// Table returns the compiled dispatch table.
func (d *Decoder) Table() *catalog.Table {
	return d.table
}

// Warnings returns the warnings raised by the last Decode.
func (d *Decoder) Warnings() []*UnrecognizedRegionWarning {
	return d.warnings
}

// Decode reads one document and returns its frozen Record.
//
// A document that ends before its root element closes is reported as
// *MalformedInputError, with Tag set to the innermost open element, not as
// *SchemaMismatchError. Reader errors (for example *http.MaxBytesError) are
// also returned as *MalformedInputError and are reachable with errors.As.
func (d *Decoder) Decode(r io.Reader) (*record.Record, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel

	rec := record.New(d.table.Shape)
	d.extractor.Reset(rec)
	d.tracker.Reset()
	d.warnings = nil

	var (
		open     []string
		seenRoot bool
		required = make([]bool, len(d.table.Required))
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, d.malformed(dec, open, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			// STEP 1: Root check on the first element
			if !seenRoot {
				if !d.table.Root.Matches(t.Name) {
					return nil, &SchemaMismatchError{
						Catalog: d.table.Catalog,
						Reason:  fmt.Sprintf("expected root <%s>, found", d.table.Root),
						Tag:     qualified(t.Name),
					}
				}
				seenRoot = true
			}
			open = append(open, qualified(t.Name))
			for i, tag := range d.table.Required {
				if !required[i] && tag.Matches(t.Name) {
					required[i] = true
				}
			}

			// STEP 2: Region tracking, then field capture
			if ev, ok := d.tracker.Open(t.Name); ok && !ev.Known {
				d.warn(dec, ev)
			}
			if err := d.extractor.Open(t, d.tracker.InRegion()); err != nil {
				line, col := dec.InputPos()
				return nil, fmt.Errorf("line %d, column %d: %w", line, col, err)
			}

		case xml.EndElement:
			d.extractor.Close(t.Name)
			if ev, ok := d.tracker.Close(t.Name); ok {
				if r, ok := d.regions[ev.Kind]; ok && r.ListField != "" {
					d.extractor.AppendList(r.ListField, ev.Variant)
				}
				d.logger.Debug("region skipped", "kind", ev.Kind, "variant", ev.Variant)
			}
			open = open[:len(open)-1]
		}
	}

	// STEP 3: End-of-stream checks
	if !seenRoot {
		return nil, &SchemaMismatchError{
			Catalog: d.table.Catalog,
			Reason:  "missing root element",
			Tag:     d.table.Root.String(),
		}
	}
	for i, seen := range required {
		if !seen {
			return nil, &SchemaMismatchError{
				Catalog: d.table.Catalog,
				Reason:  "missing required element",
				Tag:     d.table.Required[i].String(),
			}
		}
	}

	d.extractor.Finish(d.opts.SafeNumerics, d.opts.EmptyChar)
	rec.Freeze()
	return rec, nil
}

func (d *Decoder) warn(dec *xml.Decoder, ev region.Event) {
	line, col := dec.InputPos()
	w := &UnrecognizedRegionWarning{Kind: ev.Kind, Variant: ev.Variant, Line: line, Column: col}
	d.warnings = append(d.warnings, w)
	d.logger.Debug("unrecognized region", "kind", ev.Kind, "variant", ev.Variant, "line", line)
	if d.opts.OnWarning != nil {
		d.opts.OnWarning(w)
	}
}

func (d *Decoder) malformed(dec *xml.Decoder, open []string, err error) error {
	line, col := dec.InputPos()
	e := &MalformedInputError{
		Line:   line,
		Column: col,
		Offset: dec.InputOffset(),
		Err:    err,
	}
	var se *xml.SyntaxError
	if errors.As(err, &se) {
		e.Line = se.Line
	}
	if len(open) > 0 {
		e.Tag = open[len(open)-1]
	}
	return e
}

// qualified renders a name in Clark notation: {space}local.
func qualified(name xml.Name) string {
	if name.Space == "" {
		return name.Local
	}
	return "{" + name.Space + "}" + name.Local
}
