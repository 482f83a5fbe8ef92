package decoder

import (
	"fmt"
	"strings"
)

// MalformedInputError reports a tokenizer syntax error. No partial record is
// returned with it.
type MalformedInputError struct {
	Line   int
	Column int
	Offset int64

	// Tag is the innermost element open when the error occurred, if any.
	Tag string

	Err error
}

func (e *MalformedInputError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "malformed input at line %d, column %d (offset %d)", e.Line, e.Column, e.Offset)
	if e.Tag != "" {
		fmt.Fprintf(&b, " inside <%s>", e.Tag)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *MalformedInputError) Unwrap() error {
	return e.Err
}

// SchemaMismatchError reports a document or variant selection that does not
// fit the catalog: a wrong or missing root, a missing required element, or
// an unknown or conflicting variant.
type SchemaMismatchError struct {
	Catalog string
	Reason  string

	// Tag names the element involved, if any.
	Tag string

	Err error
}

func (e *SchemaMismatchError) Error() string {
	msg := fmt.Sprintf("schema mismatch for catalog %s: %s", e.Catalog, e.Reason)
	if e.Tag != "" {
		msg += fmt.Sprintf(" <%s>", e.Tag)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SchemaMismatchError) Unwrap() error {
	return e.Err
}

// UnrecognizedRegionWarning reports a region variant the catalog does not
// list as known. The region is still skipped and recorded.
type UnrecognizedRegionWarning struct {
	Kind    string
	Variant string
	Line    int
	Column  int
}

func (w *UnrecognizedRegionWarning) Error() string {
	return fmt.Sprintf("unrecognized %s %q at line %d, column %d", w.Kind, w.Variant, w.Line, w.Column)
}
