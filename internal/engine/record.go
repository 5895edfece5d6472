package engine

import "github.com/allinbits/labs/projects/queryengine/internal/value"

// Record is the sink-facing representation of one emitted record,
// relational row or document alike, keyed by field name.
type Record map[string]value.Scalar

// Sink is the record-sink abstraction spec §4.E operators stream
// through. Every operator reports failures to the sink and returns
// cleanly (spec §4.E, §7) rather than raising.
type Sink interface {
	// Header is called once by relational operators that emit a tabular
	// header line (spec's supplemented pretty-printing contract);
	// among document operators only ShowTables calls it.
	Header(fields []string) error
	// Row emits one record.
	Row(rec Record) error
	// Diagnostic reports an operator failure, classified by one of the
	// errkind sentinels.
	Diagnostic(kind error, message string) error
}

// CollectingSink gathers everything it is given in memory, for tests and
// for embedding the engine in something other than a terminal.
type CollectingSink struct {
	Headers     []string
	Rows        []Record
	Diagnostics []Diagnostic
}

// Diagnostic is one reported operator failure.
type Diagnostic struct {
	Kind    error
	Message string
}

func (s *CollectingSink) Header(fields []string) error {
	s.Headers = fields
	return nil
}

func (s *CollectingSink) Row(rec Record) error {
	s.Rows = append(s.Rows, rec)
	return nil
}

func (s *CollectingSink) Diagnostic(kind error, message string) error {
	s.Diagnostics = append(s.Diagnostics, Diagnostic{Kind: kind, Message: message})
	return nil
}
