package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/ginjaninja78/cfdi-transform/internal/record"
)

// =============================================================================
// JSON
// =============================================================================

// MarshalJSON renders a record as one JSON object. Members keep catalog
// order; absent scalars are null and groups are arrays.
func MarshalJSON(rec *record.Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := appendJSON(&buf, rec.Root()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func appendJSON(buf *bytes.Buffer, n *record.Node) error {
	switch n.Kind() {
	case record.KindScalar:
		if !n.Present() {
			buf.WriteString("null")
			return nil
		}
		return appendString(buf, n.Text())

	case record.KindGroup:
		buf.WriteByte('[')
		for i, item := range n.Items() {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := appendJSON(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')

	case record.KindComposite:
		buf.WriteByte('{')
		for i, name := range n.Names() {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := appendString(buf, name); err != nil {
				return err
			}
			buf.WriteByte(':')
			child, _ := n.Child(name)
			if err := appendJSON(buf, child); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	}
	return nil
}

// appendString writes s as a JSON string without HTML escaping.
func appendString(buf *bytes.Buffer, s string) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	buf.Truncate(buf.Len() - 1) // Encode appends a newline
	return nil
}

// JSONWriter writes one record per line.
type JSONWriter struct {
	w io.Writer
}

// NewJSONWriter returns a JSON Lines record sink.
func NewJSONWriter(w io.Writer) *JSONWriter {
	return &JSONWriter{w: w}
}

// WriteRecord writes rec followed by a newline.
func (j *JSONWriter) WriteRecord(rec *record.Record) error {
	b, err := MarshalJSON(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	b = append(b, '\n')
	if _, err := j.w.Write(b); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}

// Close is a no-op.
func (j *JSONWriter) Close() error {
	return nil
}

// =============================================================================
// YAML
// =============================================================================

// YAMLNode renders a record as a YAML node tree with the same layout as
// MarshalJSON.
func YAMLNode(rec *record.Record) *yaml.Node {
	return yamlNode(rec.Root())
}

func yamlNode(n *record.Node) *yaml.Node {
	switch n.Kind() {
	case record.KindScalar:
		if !n.Present() {
			return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: n.Text()}

	case record.KindGroup:
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range n.Items() {
			seq.Content = append(seq.Content, yamlNode(item))
		}
		return seq
	}

	m := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, name := range n.Names() {
		child, _ := n.Child(name)
		m.Content = append(m.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: name},
			yamlNode(child),
		)
	}
	return m
}

// YAMLWriter writes one YAML document per record.
type YAMLWriter struct {
	enc *yaml.Encoder
}

// NewYAMLWriter returns a YAML record sink.
func NewYAMLWriter(w io.Writer, opts Options) *YAMLWriter {
	enc := yaml.NewEncoder(w)
	indent := len(opts.Indent)
	if indent == 0 {
		indent = 2
	}
	enc.SetIndent(indent)
	return &YAMLWriter{enc: enc}
}

// WriteRecord writes rec as a document.
func (y *YAMLWriter) WriteRecord(rec *record.Record) error {
	if err := y.enc.Encode(YAMLNode(rec)); err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	return nil
}

// Close flushes the encoder.
func (y *YAMLWriter) Close() error {
	return y.enc.Close()
}
