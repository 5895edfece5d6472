// Package engine implements the Operator Layer (spec §4.E): projection,
// filter, insert, delete, update, join, order, group and aggregate over
// the Chunked Store, plus the capability interface spec §9 calls for —
// one shared operator surface with a relational and a document variant.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/allinbits/labs/projects/queryengine/internal/errkind"
	"github.com/allinbits/labs/projects/queryengine/internal/store"
)

// Engine is the capability set the excluded query-string front end
// dispatches over: show_tables, create, drop, load, insert, delete,
// update, project, filter, order, join, group, aggregate,
// aggregate_total (spec §9 design notes).
type Engine interface {
	ShowTables(ctx context.Context, sink Sink) error
	CreateTable(ctx context.Context, name string, fields []string, sink Sink) error
	DropTable(ctx context.Context, name string, sink Sink) error
	LoadCSV(ctx context.Context, ingestPath string, sink Sink) error
	Insert(ctx context.Context, table string, assignments map[string]string, sink Sink) error
	Delete(ctx context.Context, table string, cond string, sink Sink) error
	Update(ctx context.Context, table string, cond string, assignments map[string]string, sink Sink) error
	Projection(ctx context.Context, table string, fields []string, sink Sink) error
	Filter(ctx context.Context, table string, fields []string, cond string, sink Sink) error
	Order(ctx context.Context, table string, field string, descending bool, sink Sink) error
	Join(ctx context.Context, left, right, cond string, sink Sink) error
	Group(ctx context.Context, table string, field string, sink Sink) error
	AggregateGrouped(ctx context.Context, table string, fn string, aggField string, groupField string, sink Sink) error
	AggregateTotal(ctx context.Context, table string, fn string, aggField string, sink Sink) error
}

// RelationalEngine implements Engine over store.Relational tables.
type RelationalEngine struct {
	store   *store.Store
	tempDir string
	logger  *slog.Logger
}

// DocumentEngine implements Engine over store.Document tables.
type DocumentEngine struct {
	store   *store.Store
	tempDir string
	logger  *slog.Logger
}

// NewRelationalEngine builds the relational capability variant.
func NewRelationalEngine(s *store.Store, tempDir string, logger *slog.Logger) *RelationalEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &RelationalEngine{store: s, tempDir: tempDir, logger: logger.With("mode", "relational")}
}

// NewDocumentEngine builds the document capability variant.
func NewDocumentEngine(s *store.Store, tempDir string, logger *slog.Logger) *DocumentEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentEngine{store: s, tempDir: tempDir, logger: logger.With("mode", "document")}
}

// opLogger tags one operator invocation with a correlation id, the way a
// server tags a request — useful for correlating the handful of log
// lines one order/join call produces across many chunks.
func opLogger(base *slog.Logger, op, table string) *slog.Logger {
	return base.With("op", op, "table", table, "op_id", uuid.NewString())
}

var _ Engine = (*RelationalEngine)(nil)
var _ Engine = (*DocumentEngine)(nil)

var kinds = []error{
	errkind.ErrNotFound,
	errkind.ErrAlreadyExists,
	errkind.ErrSchemaMismatch,
	errkind.ErrMalformedQuery,
	errkind.ErrEmptyInput,
	errkind.ErrIOFailure,
}

func classify(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return errkind.ErrIOFailure
}

// sinkWriteErr marks an error as having come from the sink itself (e.g. a
// broken output writer) rather than from the store or a predicate. Code
// streaming rows through a callback wraps a failing sink.Row/sink.Header
// call in this so the caller can propagate it directly instead of
// re-classifying and reporting it as a domain failure.
type sinkWriteErr struct{ err error }

func (e *sinkWriteErr) Error() string { return e.err.Error() }
func (e *sinkWriteErr) Unwrap() error { return e.err }

// streamErr resolves an error returned from a row-streaming loop: a
// wrapped sink failure propagates as-is, everything else goes through
// report so it lands as a diagnostic per spec §4.E.
func streamErr(logger *slog.Logger, sink Sink, err error) error {
	if err == nil {
		return nil
	}
	var swe *sinkWriteErr
	if errors.As(err, &swe) {
		return swe.err
	}
	return report(logger, sink, err)
}

// report converts a domain-level operator failure into a sink
// diagnostic and a clean (nil) return, per spec §4.E: "all operators ...
// return success/failure without raising. Failures are reported to the
// sink and the operator returns cleanly." Only a failure to write the
// diagnostic itself propagates as a Go error.
func report(logger *slog.Logger, sink Sink, err error) error {
	kind := classify(err)
	logger.Warn("operator failed", "err", err, "kind", kind)
	if sinkErr := sink.Diagnostic(kind, err.Error()); sinkErr != nil {
		return fmt.Errorf("%w: write diagnostic: %v", errkind.ErrIOFailure, sinkErr)
	}
	return nil
}
