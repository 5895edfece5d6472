package store

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/spf13/afero"

	"github.com/allinbits/labs/projects/queryengine/internal/errkind"
	"github.com/allinbits/labs/projects/queryengine/internal/value"
)

// Schema is the ordered list of field names plus a parallel list of
// types, persisted as the two-line schema.txt sidecar (spec §3).
type Schema struct {
	Fields []string
	Types  []value.Kind
}

// HasTypes reports whether type inference has already happened (spec §3
// invariant 5: schema.txt starts with only the header line).
func (s Schema) HasTypes() bool {
	return len(s.Types) == len(s.Fields) && len(s.Fields) > 0
}

// IndexOf returns the position of field in the schema, or -1.
func (s Schema) IndexOf(field string) int {
	for i, f := range s.Fields {
		if f == field {
			return i
		}
	}
	return -1
}

func (s *Store) schemaPath(table string) string {
	return s.tableDir(Relational, table) + "/schema.txt"
}

// ReadSchema loads and caches table's schema sidecar.
func (s *Store) ReadSchema(table string) (Schema, error) {
	key := s.schemaCacheKey(Relational, table)
	if cached, ok := s.schemas.Get(key); ok {
		return cached, nil
	}

	data, err := afero.ReadFile(s.fs, s.schemaPath(table))
	if err != nil {
		return Schema{}, fmt.Errorf("%w: read schema for %q: %v", errkind.ErrIOFailure, table, err)
	}
	schema, err := parseSchema(data)
	if err != nil {
		return Schema{}, fmt.Errorf("%w: %v", errkind.ErrSchemaMismatch, err)
	}
	s.schemas.Add(key, schema)
	return schema, nil
}

func (s *Store) writeSchema(table string, schema Schema) error {
	data := formatSchema(schema)
	if err := afero.WriteFile(s.fs, s.schemaPath(table), data, 0o644); err != nil {
		return fmt.Errorf("%w: write schema for %q: %v", errkind.ErrIOFailure, table, err)
	}
	s.schemas.Add(s.schemaCacheKey(Relational, table), schema)
	return nil
}

func (s *Store) invalidateSchema(table string) {
	s.schemas.Remove(s.schemaCacheKey(Relational, table))
}

func formatSchema(schema Schema) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(schema.Fields)
	if schema.HasTypes() {
		tags := make([]string, len(schema.Types))
		for i, t := range schema.Types {
			tags[i] = t.TypeTag()
		}
		_ = w.Write(tags)
	}
	w.Flush()
	return buf.Bytes()
}

func parseSchema(data []byte) (Schema, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return Schema{}, fmt.Errorf("parse schema.txt: %w", err)
	}
	if len(records) == 0 {
		return Schema{}, fmt.Errorf("schema.txt has no header line")
	}

	schema := Schema{Fields: records[0]}
	if len(records) >= 2 {
		types := make([]value.Kind, len(records[1]))
		for i, tag := range records[1] {
			k, err := value.ParseTypeTag(tag)
			if err != nil {
				return Schema{}, fmt.Errorf("schema.txt type line: %w", err)
			}
			types[i] = k
		}
		schema.Types = types
	}
	return schema, nil
}

// inferTypes builds the type line from a first inserted row (spec §3
// invariant 5): the row must contain no empty fields.
func inferTypes(row []value.Scalar) ([]value.Kind, error) {
	types := make([]value.Kind, len(row))
	for i, v := range row {
		if v.Kind == value.Text && v.Str == "" {
			return nil, fmt.Errorf("%w: cannot infer type for column %d from an empty field", errkind.ErrSchemaMismatch, i)
		}
		inferred := value.ParseLiteral(v.String())
		types[i] = inferred.Kind
	}
	return types, nil
}
