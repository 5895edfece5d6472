package store

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/spf13/afero"

	"github.com/allinbits/labs/projects/queryengine/internal/errkind"
	"github.com/allinbits/labs/projects/queryengine/internal/value"
)

// Row is a relational record: a positional list of typed scalars whose
// length equals the owning table's schema arity.
type Row struct {
	Values []value.Scalar
}

// CreateTable makes a new table directory. Relational tables get a
// schema.txt header line with no types yet (spec §4.B); document tables
// ignore fields beyond logging that schema is not enforced.
func (s *Store) CreateTable(mode Mode, name string, fields []string) error {
	dir := s.tableDir(mode, name)
	exists, err := afero.DirExists(s.fs, dir)
	if err != nil {
		return fmt.Errorf("%w: check table %q: %v", errkind.ErrIOFailure, name, err)
	}
	if exists {
		return fmt.Errorf("%w: table %q", errkind.ErrAlreadyExists, name)
	}
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create table dir %q: %v", errkind.ErrIOFailure, name, err)
	}

	if mode == Relational {
		if err := s.writeSchema(name, Schema{Fields: fields}); err != nil {
			return err
		}
		return nil
	}

	if len(fields) > 0 {
		s.logger.Warn("document table schema is not enforced", "table", name, "fields", fields)
	}
	return nil
}

// DropTable removes every file under the table directory, then the
// directory itself.
func (s *Store) DropTable(mode Mode, name string) error {
	dir := s.tableDir(mode, name)
	exists, err := afero.DirExists(s.fs, dir)
	if err != nil {
		return fmt.Errorf("%w: check table %q: %v", errkind.ErrIOFailure, name, err)
	}
	if !exists {
		return fmt.Errorf("%w: table %q", errkind.ErrNotFound, name)
	}
	if err := s.fs.RemoveAll(dir); err != nil {
		return fmt.Errorf("%w: drop table %q: %v", errkind.ErrIOFailure, name, err)
	}
	if mode == Relational {
		s.invalidateSchema(name)
	}
	return nil
}

// targetChunk returns the path to append into and the number of records
// it already holds, opening chunk_0 when the table has none yet.
func (s *Store) targetChunk(mode Mode, table string) (path string, existingCount int, err error) {
	maxN, lastPath, err := s.highestChunk(mode, table)
	if err != nil {
		return "", 0, err
	}
	if maxN < 0 {
		return s.chunkPath(mode, table, 0), 0, nil
	}
	n, err := countLines(s.fs, lastPath)
	if err != nil {
		return "", 0, fmt.Errorf("%w: count chunk %q: %v", errkind.ErrIOFailure, lastPath, err)
	}
	if n < s.chunkSize {
		return lastPath, n, nil
	}
	return s.chunkPath(mode, table, maxN+1), 0, nil
}

// AppendRow appends a relational row, inferring and persisting column
// types from the first row when the schema has none yet (spec §3
// invariant 5), and coercing subsequent rows to the declared types.
func (s *Store) AppendRow(ctx context.Context, table string, row []value.Scalar) error {
	schema, err := s.ReadSchema(table)
	if err != nil {
		return err
	}

	if !schema.HasTypes() {
		if len(row) != len(schema.Fields) {
			return fmt.Errorf("%w: row has %d fields, schema %q declares %d", errkind.ErrSchemaMismatch, len(row), table, len(schema.Fields))
		}
		types, err := inferTypes(row)
		if err != nil {
			return err
		}
		schema.Types = types
		if err := s.writeSchema(table, schema); err != nil {
			return err
		}
		s.logger.Warn("inferred column types from first insert", "table", table, "types", typeTags(schema.Types))
	}

	if len(row) != len(schema.Fields) {
		return fmt.Errorf("%w: row has %d fields, schema %q declares %d", errkind.ErrSchemaMismatch, len(row), table, len(schema.Fields))
	}
	coerced := make([]value.Scalar, len(row))
	for i, v := range row {
		coerced[i] = v.Coerce(schema.Types[i])
	}

	chunkPath, existing, err := s.targetChunk(Relational, table)
	if err != nil {
		return err
	}
	if err := appendCSVLine(s.fs, chunkPath, coerced); err != nil {
		return fmt.Errorf("%w: append to chunk %q: %v", errkind.ErrIOFailure, chunkPath, err)
	}
	if existing+1 >= s.chunkSize {
		s.archiveChunk(ctx, Relational, table, chunkPath)
	}
	return nil
}

func typeTags(types []value.Kind) []string {
	tags := make([]string, len(types))
	for i, t := range types {
		tags[i] = t.TypeTag()
	}
	return tags
}

func appendCSVLine(fs afero.Fs, chunkPath string, values []value.Scalar) error {
	f, err := fs.OpenFile(chunkPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	fields := make([]string, len(values))
	for i, v := range values {
		fields[i] = v.String()
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(fields); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	_, err = f.Write(buf.Bytes())
	return err
}

// ReadChunkRows parses every record in a relational chunk file according
// to schema's declared column types.
func (s *Store) ReadChunkRows(chunkPath string, schema Schema) ([]Row, error) {
	data, err := afero.ReadFile(s.fs, chunkPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read chunk %q: %v", errkind.ErrIOFailure, chunkPath, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = len(schema.Fields)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: parse chunk %q: %v", errkind.ErrSchemaMismatch, chunkPath, err)
	}

	rows := make([]Row, len(records))
	for i, rec := range records {
		values := make([]value.Scalar, len(rec))
		for j, field := range rec {
			values[j] = value.NewText(field).Coerce(schema.Types[j])
		}
		rows[i] = Row{Values: values}
	}
	return rows, nil
}

// StreamChunkRows parses a relational chunk (or sorted run) one line at a
// time and calls fn per row, never holding the whole file in memory. This
// is the primitive Order, Group and AggregateGrouped use to stream the
// final sort run (spec §5: every operator but update, delete and
// join-inner-load must be streaming).
func (s *Store) StreamChunkRows(chunkPath string, schema Schema, fn func(Row) error) error {
	f, err := s.fs.Open(chunkPath)
	if err != nil {
		return fmt.Errorf("%w: open chunk %q: %v", errkind.ErrIOFailure, chunkPath, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		rec, err := csv.NewReader(strings.NewReader(line)).Read()
		if err != nil {
			return fmt.Errorf("%w: parse line of %q: %v", errkind.ErrSchemaMismatch, chunkPath, err)
		}
		values := make([]value.Scalar, len(rec))
		for j, field := range rec {
			values[j] = value.NewText(field).Coerce(schema.Types[j])
		}
		if err := fn(Row{Values: values}); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("%w: scan chunk %q: %v", errkind.ErrIOFailure, chunkPath, err)
	}
	return nil
}

// RewriteChunkRows truncates chunkPath and writes rows in place; atomic
// semantics are not required (spec §4.B), matching the source's
// truncate-then-rewrite behavior.
func (s *Store) RewriteChunkRows(chunkPath string, rows []Row) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, row := range rows {
		fields := make([]string, len(row.Values))
		for i, v := range row.Values {
			fields[i] = v.String()
		}
		if err := w.Write(fields); err != nil {
			return fmt.Errorf("%w: format row for %q: %v", errkind.ErrIOFailure, chunkPath, err)
		}
	}
	w.Flush()
	if err := afero.WriteFile(s.fs, chunkPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("%w: rewrite chunk %q: %v", errkind.ErrIOFailure, chunkPath, err)
	}
	return nil
}

// LoadCSVRelational derives a table name from path's filename stem,
// writes the schema header from the CSV's header row, then appends every
// subsequent row (triggering type inference from the first one).
func (s *Store) LoadCSVRelational(ctx context.Context, ingestPath string) (string, error) {
	table := tableNameFromPath(ingestPath)
	exists, err := s.TableExists(Relational, table)
	if err != nil {
		return "", err
	}
	if exists {
		return "", fmt.Errorf("%w: table %q", errkind.ErrAlreadyExists, table)
	}

	data, err := afero.ReadFile(s.fs, ingestPath)
	if err != nil {
		return "", fmt.Errorf("%w: read ingest file %q: %v", errkind.ErrIOFailure, ingestPath, err)
	}
	r := csv.NewReader(bytes.NewReader(data))
	header, err := r.Read()
	if err != nil {
		return "", fmt.Errorf("%w: read header of %q: %v", errkind.ErrMalformedQuery, ingestPath, err)
	}
	if err := s.CreateTable(Relational, table, header); err != nil {
		return "", err
	}

	for {
		record, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return "", fmt.Errorf("%w: read row of %q: %v", errkind.ErrMalformedQuery, ingestPath, err)
		}
		row := make([]value.Scalar, len(record))
		for i, field := range record {
			row[i] = value.ParseLiteral(field)
		}
		if err := s.AppendRow(ctx, table, row); err != nil {
			return "", err
		}
	}
	return table, nil
}

func tableNameFromPath(p string) string {
	base := path.Base(p)
	if idx := strings.LastIndexByte(base, '.'); idx >= 0 {
		return base[:idx]
	}
	return base
}
