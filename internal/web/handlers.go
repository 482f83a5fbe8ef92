package web

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ginjaninja78/cfdi-transform/internal/catalog"
	"github.com/ginjaninja78/cfdi-transform/internal/decoder"
	"github.com/ginjaninja78/cfdi-transform/internal/export"
	"github.com/ginjaninja78/cfdi-transform/internal/flatten"
	"github.com/ginjaninja78/cfdi-transform/internal/logging"
)

// ProfileInfo describes a profile in GET /api/profiles.
type ProfileInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Catalog     string   `json:"catalog"`
	Variants    []string `json:"variants"`
	Available   []string `json:"available_variants"`
	Columns     []string `json:"columns"`
}

// handleListProfiles lists the registered profiles.
func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles := s.registry.Profiles()
	out := make([]ProfileInfo, 0, len(profiles))

	for _, p := range profiles {
		info := ProfileInfo{
			Name:        p.Name,
			Description: p.Description,
			Catalog:     p.Catalog,
			Variants:    append([]string{}, p.Variants...),
			Available:   []string{},
			Columns:     make([]string, 0, len(p.Export.Columns)),
		}
		if c, ok := s.registry.Catalog(p.Catalog); ok {
			info.Available = c.VariantNames()
		}
		for _, c := range p.Export.Columns {
			info.Columns = append(info.Columns, c.Header)
		}
		out = append(out, info)
	}

	writeJSON(w, http.StatusOK, out)
}

// handleTemplate downloads a profile's columns as an XLSX template.
func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	p, _, err := s.resolve(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := catalog.WriteTemplate(&buf, p.Export); err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", export.FormatXLSX.ContentType())
	w.Header().Set("Content-Disposition", attachment(p.Name+"_columns", ".xlsx"))
	w.Write(buf.Bytes())
}

// handleSchema returns the XSD of the XML record dump for a profile.
func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	p, cat, err := s.resolve(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	table, err := cat.Compile(variantsFor(r, p))
	if err != nil {
		respondError(w, r, &decoder.SchemaMismatchError{Catalog: cat.Name, Reason: "unusable variant selection", Err: err})
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	w.Write(export.GenerateXSD(table.Shape, export.DefaultXMLOptions()))
}

// handleTransform decodes the request body and writes the requested format.
//
// Query parameters:
//   - format: csv (default), xlsx, json, yaml, xml
//   - variant: repeatable; overrides the profile's variants
//   - empty_char: replaces absent fields
//   - safe_numerics: true zero-fills absent numeric fields
func (s *Server) handleTransform(w http.ResponseWriter, r *http.Request) {
	p, cat, err := s.resolve(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	log := logging.WithFields(r.Context(), "profile", p.Name)

	q := r.URL.Query()

	format := export.FormatCSV
	if v := q.Get("format"); v != "" {
		if format, err = export.ParseFormat(v); err != nil {
			respondError(w, r, badRequest(err))
			return
		}
	}
	if format == export.FormatPostgres {
		respondError(w, r, badRequest(errors.New("format postgres is only available to batch jobs")))
		return
	}

	opts := decoder.Options{
		EmptyChar:    s.main.EmptyChar,
		SafeNumerics: s.main.SafeNumerics,
		Logger:       log,
	}
	if q.Has("empty_char") {
		opts.EmptyChar = q.Get("empty_char")
	}
	if v := q.Get("safe_numerics"); v != "" {
		if opts.SafeNumerics, err = strconv.ParseBool(v); err != nil {
			respondError(w, r, badRequest(fmt.Errorf("safe_numerics: %w", err)))
			return
		}
	}
	opts.Variants = variantsFor(r, p)

	dec, err := decoder.New(cat, opts)
	if err != nil {
		respondError(w, r, err)
		return
	}

	body := r.Body
	if s.main.Server.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, s.main.Server.MaxBodyBytes)
	}
	rec, err := dec.Decode(body)
	if err != nil {
		respondError(w, r, err)
		return
	}
	warnings := dec.Warnings()

	var rows []flatten.Row
	var spec flatten.Spec
	if format.Tabular() {
		if spec, err = p.Export.Spec(); err != nil {
			respondError(w, r, err)
			return
		}
		spec = spec.WithPlaceholder(opts.EmptyChar)
		if rows, err = flatten.Flatten(rec, spec); err != nil {
			respondError(w, r, err)
			return
		}
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", attachment(p.Name, format.Extension()))
	w.Header().Set("X-Region-Warnings", strconv.Itoa(len(warnings)))

	writeOpts := export.Options{
		Delimiter: s.main.CSV.DelimiterRune(),
		BOM:       s.main.CSV.BOM,
	}

	if format.Tabular() {
		rw, err := export.NewRowWriter(format, w, writeOpts)
		if err != nil {
			respondError(w, r, err)
			return
		}
		if err := export.WriteRows(rw, spec.Headers(), rows); err != nil {
			log.Error("failed to write response", "error", err)
			return
		}
	} else {
		rw, err := export.NewRecordWriter(format, w, writeOpts)
		if err != nil {
			respondError(w, r, err)
			return
		}
		if err := rw.WriteRecord(rec); err != nil {
			log.Error("failed to write response", "error", err)
			return
		}
		if err := rw.Close(); err != nil {
			log.Error("failed to write response", "error", err)
			return
		}
	}

	log.Info("document transformed", "format", string(format), "rows", len(rows), "warnings", len(warnings))
}

// resolve looks up the {profile} URL parameter.
func (s *Server) resolve(r *http.Request) (*catalog.Profile, *catalog.Catalog, error) {
	name := chi.URLParam(r, "profile")
	p, c, err := s.registry.Resolve(name)
	if err != nil {
		return nil, nil, notFound(err)
	}
	return p, c, nil
}

// variantsFor returns the variant query parameters, or the profile's
// variants when none are given. "variant=" alone selects no variants.
func variantsFor(r *http.Request, p *catalog.Profile) []string {
	values, ok := r.URL.Query()["variant"]
	if !ok {
		return p.Variants
	}
	var out []string
	for _, v := range values {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				out = append(out, name)
			}
		}
	}
	return out
}

func attachment(name, ext string) string {
	return fmt.Sprintf("attachment; filename=%q", name+ext)
}
