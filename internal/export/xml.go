// =============================================================================
// CFDI Transform - XML Record Dump
// =============================================================================
//
// Records can be written back out as plain, namespace-free XML that mirrors
// the record layout rather than the source document:
//
//   <records>
//     <record>
//       <cfdi33>
//         <version>3.3</version>
//         <emisor>
//           <rfc>AAA010101AAA</rfc>
//         </emisor>
//       </cfdi33>
//       <tfd n="1">                       <!-- one element per group item -->
//         <uuid>0A1B2C3D-...</uuid>
//       </tfd>
//     </record>
//   </records>
//
// GenerateXSD describes the same layout for a record shape.
//
// =============================================================================

package export

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ginjaninja78/cfdi-transform/internal/record"
)

// =============================================================================
// XML GENERATION OPTIONS
// =============================================================================

// XMLOptions contains options for XML dumps.
type XMLOptions struct {
	// Indent is the string used for indentation.
	// Default: "  " (two spaces)
	Indent string

	// IncludeXMLDeclaration determines whether to include the XML declaration.
	// Default: true
	IncludeXMLDeclaration bool

	// RootElement wraps all records.
	// Default: "records"
	RootElement string

	// RecordElement wraps one record.
	// Default: "record"
	RecordElement string

	// IndexAttribute carries the 1-based position of a group item.
	// Default: "n"
	IndexAttribute string

	// OmitAbsent drops absent fields instead of writing empty elements.
	// Default: true
	OmitAbsent bool
}

// DefaultXMLOptions returns the default dump options.
func DefaultXMLOptions() XMLOptions {
	return XMLOptions{
		Indent:                "  ",
		IncludeXMLDeclaration: true,
		RootElement:           "records",
		RecordElement:         "record",
		IndexAttribute:        "n",
		OmitAbsent:            true,
	}
}

// =============================================================================
// XML WRITER
// =============================================================================

// XMLWriter writes records under a single root element. The root is opened
// by the first record (or by Close when there are none).
type XMLWriter struct {
	w       io.Writer
	opts    XMLOptions
	started bool
}

// NewXMLWriter returns an XML record sink.
func NewXMLWriter(w io.Writer, opts XMLOptions) *XMLWriter {
	return &XMLWriter{w: w, opts: opts}
}

// WriteRecord writes one <record> element.
func (x *XMLWriter) WriteRecord(rec *record.Record) error {
	var buffer bytes.Buffer
	if !x.started {
		x.writeStart(&buffer)
	}

	element := buildElement(x.opts.RecordElement, rec.Root(), x.opts)
	writeElement(&buffer, element, x.opts.Indent, 1)

	if _, err := x.w.Write(buffer.Bytes()); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}

// Close writes the closing root tag.
func (x *XMLWriter) Close() error {
	var buffer bytes.Buffer
	if !x.started {
		x.writeStart(&buffer)
	}
	buffer.WriteString("</" + x.opts.RootElement + ">\n")
	_, err := x.w.Write(buffer.Bytes())
	return err
}

func (x *XMLWriter) writeStart(buffer *bytes.Buffer) {
	if x.opts.IncludeXMLDeclaration {
		buffer.WriteString(xml.Header)
	}
	buffer.WriteString("<" + x.opts.RootElement + ">\n")
	x.started = true
}

// MarshalXML renders one record as a standalone document.
func MarshalXML(rec *record.Record, opts XMLOptions) []byte {
	var buffer bytes.Buffer
	if opts.IncludeXMLDeclaration {
		buffer.WriteString(xml.Header)
	}
	writeElement(&buffer, buildElement(opts.RecordElement, rec.Root(), opts), opts.Indent, 0)
	return buffer.Bytes()
}

// =============================================================================
// XML DOCUMENT BUILDING
// =============================================================================

// XMLElement represents a generic XML element.
type XMLElement struct {
	Name       string
	Attributes []xml.Attr
	Value      string
	Children   []XMLElement
}

// buildElement converts a composite node into an element named name.
//
// STRUCTURE:
//   scalar    -> <name>text</name> (absent: omitted or <name/>)
//   composite -> <name>...members...</name>
//   group     -> <name n="1">...</name><name n="2">...</name>
func buildElement(name string, n *record.Node, options XMLOptions) XMLElement {
	element := XMLElement{Name: name}

	for _, member := range n.Names() {
		child, _ := n.Child(member)

		switch child.Kind() {
		case record.KindScalar:
			if !child.Present() && options.OmitAbsent {
				continue
			}
			element.Children = append(element.Children, XMLElement{Name: member, Value: child.Text()})

		case record.KindComposite:
			element.Children = append(element.Children, buildElement(member, child, options))

		case record.KindGroup:
			for i, item := range child.Items() {
				itemElement := buildElement(member, item, options)
				if options.IndexAttribute != "" {
					itemElement.Attributes = []xml.Attr{{
						Name:  xml.Name{Local: options.IndexAttribute},
						Value: strconv.Itoa(i + 1),
					}}
				}
				element.Children = append(element.Children, itemElement)
			}
		}
	}

	return element
}

// writeElement writes an XML element to the buffer with indentation.
func writeElement(buffer *bytes.Buffer, element XMLElement, indent string, level int) {
	buffer.WriteString(strings.Repeat(indent, level))

	buffer.WriteString("<")
	buffer.WriteString(element.Name)
	for _, attr := range element.Attributes {
		buffer.WriteString(" " + attr.Name.Local + "=\"")
		xml.EscapeText(buffer, []byte(attr.Value))
		buffer.WriteString("\"")
	}

	if len(element.Children) == 0 && element.Value == "" {
		buffer.WriteString("/>\n")
		return
	}

	buffer.WriteString(">")
	if len(element.Children) == 0 {
		xml.EscapeText(buffer, []byte(element.Value))
	} else {
		buffer.WriteString("\n")
		for _, child := range element.Children {
			writeElement(buffer, child, indent, level+1)
		}
		buffer.WriteString(strings.Repeat(indent, level))
	}

	buffer.WriteString("</")
	buffer.WriteString(element.Name)
	buffer.WriteString(">\n")
}

// =============================================================================
// XSD GENERATION
// =============================================================================

// GenerateXSD creates an XSD schema describing the dump of records with the
// given shape.
//
// PARAMETERS:
//   - shape: The record shape of a compiled catalog.
//   - options: The dump options (element and attribute names).
//
// RETURNS:
//   - The XSD document as a byte slice.
func GenerateXSD(shape *record.Shape, options XMLOptions) []byte {
	var buffer bytes.Buffer

	buffer.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
`)
	fmt.Fprintf(&buffer, `  <xs:element name="%s">
    <xs:complexType>
      <xs:sequence>
        <xs:element name="%s" minOccurs="0" maxOccurs="unbounded">
          <xs:complexType>
            <xs:sequence>
`, options.RootElement, options.RecordElement)

	writeXSDEntries(&buffer, shape, options, 7)

	buffer.WriteString(`            </xs:sequence>
          </xs:complexType>
        </xs:element>
      </xs:sequence>
    </xs:complexType>
  </xs:element>
</xs:schema>
`)

	return buffer.Bytes()
}

// writeXSDEntries writes one xs:element per shape entry.
func writeXSDEntries(buffer *bytes.Buffer, shape *record.Shape, options XMLOptions, indentLevel int) {
	indent := strings.Repeat("  ", indentLevel)

	for _, e := range shape.Entries() {
		switch e.Kind {
		case record.KindScalar:
			fmt.Fprintf(buffer, "%s<xs:element name=\"%s\" type=\"xs:string\" minOccurs=\"0\"/>\n", indent, e.Name)

		case record.KindComposite:
			fmt.Fprintf(buffer, "%s<xs:element name=\"%s\" minOccurs=\"0\">\n", indent, e.Name)
			fmt.Fprintf(buffer, "%s  <xs:complexType>\n%s    <xs:sequence>\n", indent, indent)
			writeXSDEntries(buffer, e.Shape, options, indentLevel+3)
			fmt.Fprintf(buffer, "%s    </xs:sequence>\n%s  </xs:complexType>\n", indent, indent)
			fmt.Fprintf(buffer, "%s</xs:element>\n", indent)

		case record.KindGroup:
			fmt.Fprintf(buffer, "%s<xs:element name=\"%s\" minOccurs=\"0\" maxOccurs=\"unbounded\">\n", indent, e.Name)
			fmt.Fprintf(buffer, "%s  <xs:complexType>\n%s    <xs:sequence>\n", indent, indent)
			writeXSDEntries(buffer, e.Shape, options, indentLevel+3)
			fmt.Fprintf(buffer, "%s    </xs:sequence>\n", indent)
			if options.IndexAttribute != "" {
				fmt.Fprintf(buffer, "%s    <xs:attribute name=\"%s\" type=\"xs:positiveInteger\" use=\"required\"/>\n", indent, options.IndexAttribute)
			}
			fmt.Fprintf(buffer, "%s  </xs:complexType>\n", indent)
			fmt.Fprintf(buffer, "%s</xs:element>\n", indent)
		}
	}
}
