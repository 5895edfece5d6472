// Package errkind holds the sentinel error values for the six error
// kinds spec §7 requires every operator to report: NotFound,
// AlreadyExists, SchemaMismatch, MalformedQuery, EmptyInput, IOFailure.
// It has no dependents among internal/store, internal/predicate,
// internal/sortrun and internal/engine other than being depended on —
// keeping it a leaf avoids an import cycle between store (which raises
// NotFound/SchemaMismatch/IOFailure) and engine (which owns the record
// sink these are ultimately reported through).
package errkind

import "errors"

var (
	// ErrNotFound means a table or field does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists means a create/load target conflicts with an
	// existing table.
	ErrAlreadyExists = errors.New("already exists")
	// ErrSchemaMismatch means row arity, join field types, or a coerced
	// literal disagrees with the schema.
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrMalformedQuery means a condition failed to parse, or an
	// aggregate function/sort direction was unrecognised.
	ErrMalformedQuery = errors.New("malformed query")
	// ErrEmptyInput means sort was invoked on a table with no chunks.
	ErrEmptyInput = errors.New("empty input")
	// ErrIOFailure wraps an underlying file or directory operation
	// failure.
	ErrIOFailure = errors.New("io failure")
)
