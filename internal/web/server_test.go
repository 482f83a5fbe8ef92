package web

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ginjaninja78/cfdi-transform/internal/catalog"
	"github.com/ginjaninja78/cfdi-transform/internal/config"
)

func newTestServer(t *testing.T, maxBody int64) *Server {
	t.Helper()
	reg, err := catalog.Builtin()
	if err != nil {
		t.Fatalf("Builtin: %v", err)
	}
	main := &config.MainConfig{
		CSV: config.CSVSettings{Delimiter: ","},
		Server: config.ServerSettings{
			RequestTimeout: 10 * time.Second,
			MaxBodyBytes:   maxBody,
		},
	}
	return NewServer(main, reg)
}

func fixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "decoder", "testdata", name))
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func do(s *Server, method, target string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestListProfiles(t *testing.T) {
	s := newTestServer(t, 1<<20)
	rec := do(s, http.MethodGet, "/api/profiles", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var profiles []ProfileInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &profiles); err != nil {
		t.Fatal(err)
	}
	if len(profiles) != 3 {
		t.Fatalf("profiles = %d, want 3", len(profiles))
	}
	for _, p := range profiles {
		if p.Catalog != "cfdi33" || len(p.Columns) == 0 || len(p.Available) == 0 {
			t.Errorf("profile = %+v", p)
		}
	}
}

func TestTransformCSV(t *testing.T) {
	s := newTestServer(t, 1<<20)
	rec := do(s, http.MethodPost, "/api/transform/pagos10", fixture(t, "pagos10.xml"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Content-Type = %s", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "pagos10.csv") {
		t.Errorf("Content-Disposition = %s", cd)
	}

	rows, err := csv.NewReader(rec.Body).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}
	if rows[0][0] != "VERSION" {
		t.Errorf("header = %v", rows[0])
	}
	// Payment-level cells are replicated on both related-document rows.
	if rows[1][0] != rows[2][0] {
		t.Errorf("version cells differ: %q vs %q", rows[1][0], rows[2][0])
	}
}

func TestTransformJSON(t *testing.T) {
	s := newTestServer(t, 1<<20)
	rec := do(s, http.MethodPost, "/api/transform/nomina12?format=json", fixture(t, "nomina12.xml"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var doc map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("body is not one JSON object: %v", err)
	}
	if _, ok := doc["cfdi33"]; !ok {
		t.Errorf("record keys = %v", doc)
	}
	if got := rec.Header().Get("X-Region-Warnings"); got != "0" {
		t.Errorf("X-Region-Warnings = %s", got)
	}
}

func TestTransformEmptyCharFillsEmptyGroups(t *testing.T) {
	s := newTestServer(t, 1<<20)

	var kept []string
	for _, line := range strings.Split(string(fixture(t, "pagos10.xml")), "\n") {
		if !strings.Contains(line, "<pago10:DoctoRelacionado") {
			kept = append(kept, line)
		}
	}
	rec := do(s, http.MethodPost, "/api/transform/pagos10?empty_char=N/A", []byte(strings.Join(kept, "\n")))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	rows, err := csv.NewReader(rec.Body).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want header + 1", len(rows))
	}
	for i, h := range rows[0] {
		if h == "P_DR_IDDOCUMENTO" && rows[1][i] != "N/A" {
			t.Errorf("P_DR_IDDOCUMENTO = %q, want N/A", rows[1][i])
		}
	}
}

func TestTransformErrors(t *testing.T) {
	pagos := fixture(t, "pagos10.xml")

	tests := []struct {
		name    string
		target  string
		body    []byte
		maxBody int64
		status  int
		code    string
	}{
		{"unknown profile", "/api/transform/cfdi40", pagos, 1 << 20, http.StatusNotFound, "not_found"},
		{"unknown format", "/api/transform/pagos10?format=parquet", pagos, 1 << 20, http.StatusBadRequest, "bad_request"},
		{"postgres format", "/api/transform/pagos10?format=postgres", pagos, 1 << 20, http.StatusBadRequest, "bad_request"},
		{"bad safe_numerics", "/api/transform/pagos10?safe_numerics=maybe", pagos, 1 << 20, http.StatusBadRequest, "bad_request"},
		{"unknown variant", "/api/transform/pagos10?variant=pagos20", pagos, 1 << 20, http.StatusUnprocessableEntity, "schema_mismatch"},
		{"malformed", "/api/transform/pagos10", []byte(`<cfdi:Comprobante xmlns:cfdi="http://www.sat.gob.mx/cfd/3"><a></b>`), 1 << 20, http.StatusBadRequest, "malformed"},
		{"wrong root", "/api/transform/pagos10", []byte(`<Retenciones/>`), 1 << 20, http.StatusUnprocessableEntity, "schema_mismatch"},
		{"too large", "/api/transform/pagos10", pagos, 64, http.StatusRequestEntityTooLarge, "too_large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.maxBody)
			rec := do(s, http.MethodPost, tt.target, tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
			var resp ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.Code != tt.code || resp.Error == "" || resp.RequestID == "" {
				t.Errorf("response = %+v, want code %s", resp, tt.code)
			}
		})
	}
}

func TestTemplateDownload(t *testing.T) {
	s := newTestServer(t, 1<<20)
	rec := do(s, http.MethodGet, "/api/profiles/pagos10/template", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	def, err := catalog.ReadTemplate(rec.Body)
	if err != nil {
		t.Fatalf("ReadTemplate: %v", err)
	}
	p, _, _ := s.registry.Resolve("pagos10")
	if len(def.Columns) != len(p.Export.Columns) || len(def.Groups) != len(p.Export.Groups) {
		t.Errorf("template = %d columns / %d groups, want %d / %d",
			len(def.Columns), len(def.Groups), len(p.Export.Columns), len(p.Export.Groups))
	}
}

func TestSchema(t *testing.T) {
	s := newTestServer(t, 1<<20)
	rec := do(s, http.MethodGet, "/api/profiles/pagos10/schema", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	for _, want := range []string{"<xs:schema", `name="docto_relacionado"`, `name="records"`} {
		if !strings.Contains(body, want) {
			t.Errorf("schema missing %s", want)
		}
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, 0)
	if rec := do(s, http.MethodGet, "/healthz", nil); rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}
