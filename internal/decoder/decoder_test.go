package decoder

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/ginjaninja78/cfdi-transform/internal/catalog"
	"github.com/ginjaninja78/cfdi-transform/internal/extract"
	"github.com/ginjaninja78/cfdi-transform/internal/flatten"
	"github.com/ginjaninja78/cfdi-transform/internal/record"
)

const cfdiNS = `xmlns:cfdi="http://www.sat.gob.mx/cfd/3"`

func registry(t *testing.T) *catalog.Registry {
	t.Helper()
	reg, err := catalog.Builtin()
	if err != nil {
		t.Fatalf("Builtin: %v", err)
	}
	return reg
}

func newDecoder(t *testing.T, opts Options) *Decoder {
	t.Helper()
	c, ok := registry(t).Catalog("cfdi33")
	if !ok {
		t.Fatal("catalog cfdi33 missing")
	}
	d, err := New(c, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func fixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func decodeFixture(t *testing.T, d *Decoder, name string) *record.Record {
	t.Helper()
	rec, err := d.Decode(bytes.NewReader(fixture(t, name)))
	if err != nil {
		t.Fatalf("Decode(%s): %v", name, err)
	}
	return rec
}

type field struct {
	path string
	want string
}

func checkText(t *testing.T, rec *record.Record, fields []field) {
	t.Helper()
	for _, f := range fields {
		if got := rec.Text(f.path); got != f.want {
			t.Errorf("%s = %q, want %q", f.path, got, f.want)
		}
	}
}

func checkLen(t *testing.T, rec *record.Record, path string, want int) {
	t.Helper()
	n, ok := rec.Get(path)
	if !ok {
		t.Errorf("%s missing", path)
		return
	}
	if n.Len() != want {
		t.Errorf("len(%s) = %d, want %d", path, n.Len(), want)
	}
}

// =============================================================================
// CAPTURE
// =============================================================================

func TestDecodeUnknownComplementIsSkipped(t *testing.T) {
	var hooked []*UnrecognizedRegionWarning
	d := newDecoder(t, Options{OnWarning: func(w *UnrecognizedRegionWarning) {
		hooked = append(hooked, w)
	}})
	rec := decodeFixture(t, d, "nomina12.xml")

	checkText(t, rec, []field{
		{"cfdi33.complementos", "Nomina TimbreFiscalDigital"},
		{"cfdi33.addendas", ""},
		{"cfdi33.emisor.rfc", "AAA010101AAA"},
		{"cfdi33.receptor.uso_cfdi", "P01"},
		{"cfdi33.clave_prod_serv", "84111505"},
		{"cfdi33.conceptos[0].descripcion", "Pago de nómina"},
		{"cfdi33.impuestos.isr_retenido", "1900460.234906"},
		{"cfdi33.impuestos.iva_retenido", "8425580.234906"},
		{"cfdi33.impuestos.ieps_retenido", ""},
		{"cfdi33.impuestos.total_impuestos_retenidos", "10326040.469812"},
		{"tfd[0].uuid", "0A1B2C3D-0000-4000-8000-000000000001"},
	})
	checkLen(t, rec, "cfdi33.impuestos.retenciones", 2)
	if _, ok := rec.Get("nomina12"); ok {
		t.Error("nomina12 captured without the variant selected")
	}

	warnings := d.Warnings()
	if len(warnings) != 1 {
		t.Fatalf("warnings = %d, want 1", len(warnings))
	}
	if w := warnings[0]; w.Kind != "complemento" || w.Variant != "Nomina" || w.Line == 0 {
		t.Errorf("warning = %+v", w)
	}
	if len(hooked) != 1 || hooked[0] != warnings[0] {
		t.Errorf("OnWarning saw %d warnings", len(hooked))
	}
}

func TestDecodeNominaVariant(t *testing.T) {
	d := newDecoder(t, Options{Variants: []string{"nomina12"}})
	rec := decodeFixture(t, d, "nomina12.xml")

	checkText(t, rec, []field{
		{"cfdi33.complementos", "Nomina TimbreFiscalDigital"},
		{"nomina12[0].tipo_nomina", "O"},
		{"nomina12[0].emisor.registro_patronal", "Y5467898101"},
		{"nomina12[0].emisor.entidad_sncf.origen_recurso", ""},
		{"nomina12[0].receptor.antiguedad", "P2Y2D"},
		{"nomina12[0].receptor.subcontratacion[0].rfc_labora", "AAA010101AAA"},
		{"nomina12[0].percepciones.total_sueldos", "6450.00"},
		{"nomina12[0].percepciones.percepcion[1].horas_extra[1].importe_pagado", "250.00"},
		{"nomina12[0].deducciones.deduccion[0].tipo_deduccion", "002"},
		{"nomina12[0].otros_pagos[0].concepto", "Subsidio"},
		{"nomina12[0].subsidio_causado", "0.00"},
	})
	checkLen(t, rec, "nomina12", 1)
	checkLen(t, rec, "nomina12[0].percepciones.percepcion", 2)
	checkLen(t, rec, "nomina12[0].percepciones.percepcion[0].horas_extra", 0)
	checkLen(t, rec, "nomina12[0].percepciones.percepcion[1].horas_extra", 2)
	checkLen(t, rec, "nomina12[0].deducciones.deduccion", 2)

	if len(d.Warnings()) != 0 {
		t.Errorf("warnings = %v", d.Warnings())
	}
}

func TestDecodeLineItemTaxesStayOnConcept(t *testing.T) {
	d := newDecoder(t, Options{})
	rec := decodeFixture(t, d, "implocal.xml")

	checkText(t, rec, []field{
		{"cfdi33.impuestos.total_impuestos_traslados", "206.40"},
		{"cfdi33.impuestos.iva_traslado", "206.400000"},
		{"cfdi33.impuestos.total_impuestos_retenidos", ""},
		{"cfdi33.conceptos[0].traslados[0].base", "1290.00"},
		{"cfdi33.conceptos[0].traslados[0].importe", "206.400000"},
		{"implocal[0].total_traslados_impuestos_locales", "0.000000"},
		{"implocal[0].total_retenciones_impuestos_locales", "77.400000"},
		{"cfdi33.complementos", "ImpuestosLocales"},
	})
	checkLen(t, rec, "cfdi33.impuestos.traslados", 1)
	checkLen(t, rec, "cfdi33.conceptos[0].traslados", 1)
	checkLen(t, rec, "tfd", 0)
	if len(d.Warnings()) != 0 {
		t.Errorf("ImpuestosLocales is a known complement, got %v", d.Warnings())
	}
}

func TestDecodeSubstitutions(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want []field
	}{
		{
			name: "raw",
			want: []field{
				{"cfdi33.descuento", ""},
				{"cfdi33.tipo_cambio", ""},
				{"cfdi33.condiciones_pago", ""},
				{"cfdi33.addendas", ""},
				{"cfdi33.impuestos.total_impuestos_retenidos", ""},
			},
		},
		{
			name: "safe numerics",
			opts: Options{SafeNumerics: true},
			want: []field{
				{"cfdi33.descuento", "0.00"},
				{"cfdi33.tipo_cambio", "1.00"},
				{"cfdi33.condiciones_pago", ""},
				{"cfdi33.addendas", ""},
				{"cfdi33.impuestos.total_impuestos_retenidos", "0.00"},
			},
		},
		{
			name: "empty char",
			opts: Options{SafeNumerics: true, EmptyChar: "-"},
			want: []field{
				{"cfdi33.descuento", "0.00"},
				{"cfdi33.tipo_cambio", "1.00"},
				{"cfdi33.condiciones_pago", "-"},
				{"cfdi33.addendas", "-"},
				{"cfdi33.impuestos.total_impuestos_traslados", "206.40"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := decodeFixture(t, newDecoder(t, tt.opts), "implocal.xml")
			checkText(t, rec, tt.want)
			if !rec.Frozen() {
				t.Error("record not frozen")
			}
		})
	}
}

func TestDecodeCharsetAndUndeclaredPrefix(t *testing.T) {
	doc := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>" +
		"<cfdi:Comprobante Version=\"3.3\">" +
		"<cfdi:Emisor Rfc=\"AAA010101AAA\" Nombre=\"Compa\xf1\xeda\"/>" +
		"<cfdi:Receptor Rfc=\"BBB010101BBB\"/>" +
		"</cfdi:Comprobante>"

	rec, err := newDecoder(t, Options{}).Decode(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	checkText(t, rec, []field{
		{"cfdi33.version", "3.3"},
		{"cfdi33.emisor.nombre", "Compañía"},
	})
}

func TestDecodeDeterministic(t *testing.T) {
	d := newDecoder(t, Options{Variants: []string{"nomina12"}, SafeNumerics: true})

	dump := func(rec *record.Record) []string {
		var out []string
		rec.Walk(func(path string, n *record.Node) {
			out = append(out, path+"="+n.Text())
		})
		return out
	}

	first := dump(decodeFixture(t, d, "nomina12.xml"))
	second := dump(decodeFixture(t, d, "nomina12.xml"))
	if !reflect.DeepEqual(first, second) {
		t.Error("two decodes of the same document differ")
	}
}

func TestDecoderReuse(t *testing.T) {
	d := newDecoder(t, Options{Variants: []string{"pagos10"}})

	decodeFixture(t, d, "pagos10.xml")
	rec := decodeFixture(t, d, "implocal.xml")

	checkLen(t, rec, "pagos10", 0)
	checkLen(t, rec, "tfd", 0)
	checkText(t, rec, []field{{"cfdi33.complementos", "ImpuestosLocales"}})
}

// =============================================================================
// FLATTEN
// =============================================================================

func flattenProfile(t *testing.T, profile, file string) ([]string, []flatten.Row) {
	t.Helper()
	reg := registry(t)
	p, c, err := reg.Resolve(profile)
	if err != nil {
		t.Fatal(err)
	}
	d, err := New(c, Options{Variants: p.Variants})
	if err != nil {
		t.Fatal(err)
	}
	spec, err := p.Export.Spec()
	if err != nil {
		t.Fatal(err)
	}
	rows, err := flatten.Flatten(decodeFixture(t, d, file), spec)
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}
	return spec.Headers(), rows
}

func column(t *testing.T, headers []string, rows []flatten.Row, header string) []string {
	t.Helper()
	for i, h := range headers {
		if h == header {
			out := make([]string, len(rows))
			for j, row := range rows {
				out[j] = row[i]
			}
			return out
		}
	}
	t.Fatalf("no column %s", header)
	return nil
}

func TestPaymentsProfile(t *testing.T) {
	headers, rows := flattenProfile(t, "pagos10", "pagos10.xml")
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}

	tests := []struct {
		header string
		want   []string
	}{
		{"P_IDENTIFICADOR_PAGO", []string{"CP1_P1_DR1", "CP1_P1_DR2"}},
		{"P_MONTO", []string{"1160.00", "1160.00"}},
		{"UUID", []string{"9F8E7D6C-0000-4000-8000-000000000002", "9F8E7D6C-0000-4000-8000-000000000002"}},
		{"P_DR_FOLIO", []string{"10", "11"}},
		{"P_DR_IMPSALDOINSOLUTO", []string{"580.00", "0.00"}},
		{"P_IVATRASLADO", []string{"", ""}},
		{"EMISORRFC", []string{"AAA010101AAA", "AAA010101AAA"}},
	}
	for _, tt := range tests {
		if got := column(t, headers, rows, tt.header); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%s = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestPayrollProfile(t *testing.T) {
	headers, rows := flattenProfile(t, "nomina12", "nomina12.xml")
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}

	tests := []struct {
		header string
		want   []string
	}{
		{"N_IDENTIFICADOR", []string{"N1_P1", "N1_P2"}},
		{"P_CLAVE", []string{"001", "019"}},
		{"D_002_ISR", []string{"900.00", "900.00"}},
		{"D_001_SEGURIDADSOCIAL", []string{"300.00", "300.00"}},
		{"O_002_SUBSIDIOPARAELEMPLEO", []string{"0.00", "0.00"}},
		{"P_HORASEXTRA_IMPORTEPAGADO", []string{"", "450.00"}},
		{"ANTIGUEDAD", []string{"P2Y2D", "P2Y2D"}},
	}
	for _, tt := range tests {
		if got := column(t, headers, rows, tt.header); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%s = %q, want %q", tt.header, got, tt.want)
		}
	}
}

// =============================================================================
// ERRORS
// =============================================================================

func TestDecodeSchemaMismatch(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantTag string
	}{
		{"empty", "", "cfdi:Comprobante"},
		{"whitespace", "  \n", "cfdi:Comprobante"},
		{"wrong root", `<cfdi:Retenciones ` + cfdiNS + `/>`, "{http://www.sat.gob.mx/cfd/3}Retenciones"},
		{"missing receptor", `<cfdi:Comprobante ` + cfdiNS + `><cfdi:Emisor Rfc="A"/></cfdi:Comprobante>`, "cfdi:Receptor"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := newDecoder(t, Options{}).Decode(strings.NewReader(tt.doc))
			if rec != nil {
				t.Error("partial record returned")
			}
			var sme *SchemaMismatchError
			if !errors.As(err, &sme) {
				t.Fatalf("err = %v, want *SchemaMismatchError", err)
			}
			if sme.Tag != tt.wantTag {
				t.Errorf("Tag = %q, want %q", sme.Tag, tt.wantTag)
			}
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantTag string
	}{
		{"mismatched close", `<cfdi:Comprobante ` + cfdiNS + `><cfdi:Emisor></cfdi:Receptor></cfdi:Comprobante>`, "{http://www.sat.gob.mx/cfd/3}Emisor"},
		{"truncated", `<cfdi:Comprobante ` + cfdiNS + `><cfdi:Emisor Rfc="A"/>`, "{http://www.sat.gob.mx/cfd/3}Comprobante"},
		{"bad attribute", `<cfdi:Comprobante ` + cfdiNS + ` Version=3.3/>`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := newDecoder(t, Options{}).Decode(strings.NewReader(tt.doc))
			if rec != nil {
				t.Error("partial record returned")
			}
			var mie *MalformedInputError
			if !errors.As(err, &mie) {
				t.Fatalf("err = %v, want *MalformedInputError", err)
			}
			if mie.Tag != tt.wantTag {
				t.Errorf("Tag = %q, want %q", mie.Tag, tt.wantTag)
			}
			if mie.Line == 0 {
				t.Error("no line reported")
			}
		})
	}
}

func TestDecodeInvalidSum(t *testing.T) {
	doc := `<cfdi:Comprobante ` + cfdiNS + `>` +
		`<cfdi:Emisor Rfc="A"/><cfdi:Receptor Rfc="B"/>` +
		`<cfdi:Impuestos TotalImpuestosTrasladados="12,50"/>` +
		`</cfdi:Comprobante>`

	_, err := newDecoder(t, Options{}).Decode(strings.NewReader(doc))
	var ive *extract.InvalidValueError
	if !errors.As(err, &ive) {
		t.Fatalf("err = %v, want *extract.InvalidValueError", err)
	}
	if ive.Value != "12,50" {
		t.Errorf("Value = %q", ive.Value)
	}
}

func TestDecodeEmptySumAttribute(t *testing.T) {
	doc := `<cfdi:Comprobante ` + cfdiNS + `>` +
		`<cfdi:Emisor Rfc="A"/><cfdi:Receptor Rfc="B"/>` +
		`<cfdi:Impuestos TotalImpuestosTrasladados=""/>` +
		`</cfdi:Comprobante>`

	rec, err := newDecoder(t, Options{EmptyChar: "N/A"}).Decode(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	checkText(t, rec, []field{
		{"cfdi33.impuestos.total_impuestos_traslados", "0.00"},
		{"cfdi33.impuestos.total_impuestos_retenidos", "N/A"},
	})
}

func TestNewRejectsVariants(t *testing.T) {
	c, _ := registry(t).Catalog("cfdi33")
	tests := []struct {
		name     string
		variants []string
	}{
		{"unknown", []string{"pagos20"}},
		{"same family", []string{"nomina11", "nomina12"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(c, Options{Variants: tt.variants})
			var sme *SchemaMismatchError
			if !errors.As(err, &sme) {
				t.Fatalf("err = %v, want *SchemaMismatchError", err)
			}
			var ve *catalog.VariantError
			if !errors.As(err, &ve) {
				t.Errorf("err = %v does not wrap *catalog.VariantError", err)
			}
		})
	}
}
