package extract

import (
	"encoding/xml"
	"errors"
	"io"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/ginjaninja78/cfdi-transform/internal/catalog"
	"github.com/ginjaninja78/cfdi-transform/internal/record"
)

const demoCatalog = `
catalog: demo
namespaces:
  d: urn:demo
root: d:Doc
line_item: d:Item
rules:
  - tag: d:Doc
    object: doc
    fields:
      - { attr: Id, name: id }
      - { attr: Rate, name: rate, numeric: true, zero: "1.00" }
      - { attr: Note, name: note }
  - tag: d:Item
    element: doc.items
    context: line_item
    fields:
      - { attr: Code, name: code }
      - { attr: Amount, name: amount, numeric: true }
  - tag: d:Item
    target: doc
    context: line_item
    fields:
      - { attr: Code, name: codes, op: join }
  - tag: d:Tax
    element: doc.items.taxes
    context: line_item
    fields:
      - { attr: Amount, name: amount, numeric: true }
  - tag: d:Tax
    target: doc
    context: document
    fields:
      - { attr: Amount, name: vat, op: sum, when: { attr: Kind, equals: vat } }
      - { attr: Amount, name: total_tax, op: sum }
  - tag: d:Stamp
    element: stamps
    scope: region
    fields:
      - { attr: Id, name: id }
`

const demoDoc = `<d:Doc xmlns:d="urn:demo" Id="A1">
  <d:Items>
    <d:Item Code="X" Amount="10.00"><d:Tax Amount="1.60"/></d:Item>
    <d:Item Code="Y"/>
  </d:Items>
  <d:Tax Kind="vat" Amount="16.00"/>
  <d:Tax Kind="vat" Amount="0.005"/>
  <d:Tax Kind="local" Amount="3"/>
  <d:Tax Kind="vat" Amount=" "/>
  <d:Stamp Id="outside"/>
  <d:Region>
    <d:Stamp Id="S1"/>
    <d:Tax Kind="vat" Amount="99.00"/>
  </d:Region>
</d:Doc>`

func demoTable(t *testing.T) *catalog.Table {
	t.Helper()
	var c catalog.Catalog
	if err := yaml.Unmarshal([]byte(demoCatalog), &c); err != nil {
		t.Fatalf("unmarshal catalog: %v", err)
	}
	table, err := c.Compile(nil)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return table
}

// run feeds doc through an extractor. Elements named Region stand in for
// a skipped region.
func run(t *testing.T, table *catalog.Table, doc string) (*Extractor, *record.Record, error) {
	t.Helper()
	rec := record.New(table.Shape)
	x := New(table)
	x.Reset(rec)

	dec := xml.NewDecoder(strings.NewReader(doc))
	regionDepth := 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Token: %v", err)
		}
		switch el := tok.(type) {
		case xml.StartElement:
			if el.Name.Local == "Region" || regionDepth > 0 {
				regionDepth++
			}
			if err := x.Open(el, regionDepth > 0); err != nil {
				return x, rec, err
			}
		case xml.EndElement:
			x.Close(el.Name)
			if regionDepth > 0 {
				regionDepth--
			}
		}
	}
	return x, rec, nil
}

func TestExtractorCapture(t *testing.T) {
	x, rec, err := run(t, demoTable(t), demoDoc)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	tests := []struct {
		path string
		want string
	}{
		{"doc.id", "A1"},
		{"doc.codes", "X Y"},
		{"doc.items[0].code", "X"},
		{"doc.items[0].amount", "10.00"},
		{"doc.items[0].taxes[0].amount", "1.60"},
		{"doc.items[1].code", "Y"},
		{"doc.items[1].amount", ""},
		{"doc.vat", "16.005"},
		{"doc.total_tax", "19.005"},
		{"doc.rate", ""},
		{"stamps[0].id", "S1"},
	}
	for _, tt := range tests {
		if got := rec.Text(tt.path); got != tt.want {
			t.Errorf("%s = %q, want %q", tt.path, got, tt.want)
		}
	}

	counts := map[string]int{
		"doc.items":          2,
		"doc.items[0].taxes": 1,
		"doc.items[1].taxes": 0,
		"stamps":             1,
	}
	for path, want := range counts {
		n, ok := rec.Get(path)
		if !ok {
			t.Errorf("%s missing", path)
			continue
		}
		if n.Len() != want {
			t.Errorf("len(%s) = %d, want %d", path, n.Len(), want)
		}
	}

	if x.Depth() != 0 || x.InLineItem() {
		t.Errorf("after scan: depth = %d, in line item = %v", x.Depth(), x.InLineItem())
	}
}

func TestExtractorInvalidSum(t *testing.T) {
	doc := `<d:Doc xmlns:d="urn:demo"><d:Tax Amount="1,50"/></d:Doc>`
	_, _, err := run(t, demoTable(t), doc)

	var ive *InvalidValueError
	if !errors.As(err, &ive) {
		t.Fatalf("err = %v, want *InvalidValueError", err)
	}
	if ive.Value != "1,50" || ive.Field != "doc.total_tax" || ive.Attr != "Amount" {
		t.Errorf("error = %+v", ive)
	}
}

func TestExtractorEmptySumOperand(t *testing.T) {
	doc := `<d:Doc xmlns:d="urn:demo"><d:Tax Kind="vat" Amount=""/></d:Doc>`
	x, rec, err := run(t, demoTable(t), doc)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	x.Finish(false, "N/A")

	for _, path := range []string{"doc.vat", "doc.total_tax"} {
		if got := rec.Text(path); got != "0.00" {
			t.Errorf("%s = %q, want 0.00", path, got)
		}
	}
}

func TestExtractorSetOverwrites(t *testing.T) {
	doc := `<d:Doc xmlns:d="urn:demo"><d:Items><d:Item Code="A"/></d:Items><d:Doc Id="second"/></d:Doc>`
	_, rec, err := run(t, demoTable(t), doc)
	if err != nil {
		t.Fatal(err)
	}
	if got := rec.Text("doc.id"); got != "second" {
		t.Errorf("doc.id = %q, want the last value", got)
	}
}

func TestExtractorFinish(t *testing.T) {
	tests := []struct {
		name         string
		safeNumerics bool
		emptyChar    string
		want         map[string]string
	}{
		{
			name: "none",
			want: map[string]string{"doc.rate": "", "doc.note": "", "doc.items[1].amount": "", "doc.id": "A1"},
		},
		{
			name:         "safe numerics",
			safeNumerics: true,
			want:         map[string]string{"doc.rate": "1.00", "doc.note": "", "doc.items[1].amount": "0.00", "doc.id": "A1"},
		},
		{
			name:      "empty char",
			emptyChar: "-",
			want:      map[string]string{"doc.rate": "-", "doc.note": "-", "doc.items[1].amount": "-", "doc.id": "A1"},
		},
		{
			name:         "both",
			safeNumerics: true,
			emptyChar:    "-",
			want:         map[string]string{"doc.rate": "1.00", "doc.note": "-", "doc.items[1].amount": "0.00", "doc.id": "A1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, rec, err := run(t, demoTable(t), demoDoc)
			if err != nil {
				t.Fatal(err)
			}
			x.Finish(tt.safeNumerics, tt.emptyChar)
			for path, want := range tt.want {
				if got := rec.Text(path); got != want {
					t.Errorf("%s = %q, want %q", path, got, want)
				}
			}
		})
	}
}

func TestExtractorAppendList(t *testing.T) {
	x, rec, err := run(t, demoTable(t), `<d:Doc xmlns:d="urn:demo"/>`)
	if err != nil {
		t.Fatal(err)
	}
	x.AppendList("doc.note", "Nomina")
	x.AppendList("doc.note", "TimbreFiscalDigital")
	x.AppendList("doc.items", "ignored")
	x.AppendList("doc.missing", "ignored")

	if got := rec.Text("doc.note"); got != "Nomina TimbreFiscalDigital" {
		t.Errorf("doc.note = %q", got)
	}
}
