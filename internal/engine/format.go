package engine

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/allinbits/labs/projects/queryengine/internal/value"
)

// FormatHeader renders the `===` rule / header / `===` rule triplet the
// original movieSystemDB's _print_table_header produces: each field name
// left-justified to width, with no truncation (only row values truncate).
func FormatHeader(fields []string, width int) []string {
	header := formatLine(fields, width)
	rule := strings.Repeat("=", len(header))
	return []string{rule, header, rule}
}

// FormatRow renders one row the way _print_row does: each cell is the
// field's string value plus three trailing spaces, truncated with "..."
// plus three trailing spaces when it exceeds width, then every cell is
// left-justified to width and concatenated.
func FormatRow(fields []string, values map[string]string, width int) string {
	cells := make([]string, len(fields))
	for i, f := range fields {
		cell := values[f] + "   "
		if len(cell) > width {
			cell = cell[:width-6] + "...   "
		}
		cells[i] = cell
	}
	return formatLine(cells, width)
}

func formatLine(cells []string, width int) string {
	var b strings.Builder
	for _, c := range cells {
		b.WriteString(leftJustify(c, width))
	}
	return b.String()
}

func leftJustify(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// TabularSink is the relational pretty-printer: FIELD_PRINT_LEN-wide
// columns with the header/rule contract above, written to w.
type TabularSink struct {
	w             io.Writer
	fieldPrintLen int
	fields        []string
}

// NewTabularSink builds a Sink that writes the relational tabular
// format. fieldPrintLen must be >= 6 (spec §6).
func NewTabularSink(w io.Writer, fieldPrintLen int) *TabularSink {
	return &TabularSink{w: w, fieldPrintLen: fieldPrintLen}
}

func (s *TabularSink) Header(fields []string) error {
	s.fields = fields
	for _, line := range FormatHeader(fields, s.fieldPrintLen) {
		if _, err := fmt.Fprintln(s.w, line); err != nil {
			return err
		}
	}
	return nil
}

func (s *TabularSink) Row(rec Record) error {
	values := make(map[string]string, len(rec))
	for k, v := range rec {
		values[k] = v.String()
	}
	_, err := fmt.Fprintln(s.w, FormatRow(s.fields, values, s.fieldPrintLen))
	return err
}

func (s *TabularSink) Diagnostic(kind error, message string) error {
	_, err := fmt.Fprintf(s.w, "%v: %s\n", kind, message)
	return err
}

// DocumentSink is the document-mode pretty-printer: one JSON object per
// record, indented 4 spaces, matching nosql.py's _print_doc.
type DocumentSink struct {
	w io.Writer
}

// NewDocumentSink builds a Sink that writes indent-4 JSON objects.
func NewDocumentSink(w io.Writer) *DocumentSink {
	return &DocumentSink{w: w}
}

func (s *DocumentSink) Header(fields []string) error { return nil }

func (s *DocumentSink) Row(rec Record) error {
	data, err := json.MarshalIndent(map[string]value.Scalar(rec), "", "    ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(s.w, string(data))
	return err
}

func (s *DocumentSink) Diagnostic(kind error, message string) error {
	_, err := fmt.Fprintf(s.w, "%v: %s\n", kind, message)
	return err
}
