package engine

import (
	"context"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/allinbits/labs/projects/queryengine/internal/errkind"
	"github.com/allinbits/labs/projects/queryengine/internal/predicate"
	"github.com/allinbits/labs/projects/queryengine/internal/sortrun"
	"github.com/allinbits/labs/projects/queryengine/internal/store"
	"github.com/allinbits/labs/projects/queryengine/internal/value"
)

func rowToRecord(schema store.Schema, row store.Row) Record {
	rec := make(Record, len(schema.Fields))
	for i, f := range schema.Fields {
		rec[f] = row.Values[i]
	}
	return rec
}

// ShowTables enumerates subdirectories of the relational root.
func (e *RelationalEngine) ShowTables(ctx context.Context, sink Sink) error {
	logger := opLogger(e.logger, "show_tables", "")
	tables, err := e.store.ListTables(store.Relational)
	if err != nil {
		return report(logger, sink, err)
	}
	if err := sink.Header([]string{"tables"}); err != nil {
		return err
	}
	for _, t := range tables {
		if err := sink.Row(Record{"tables": value.NewText(t)}); err != nil {
			return err
		}
	}
	return nil
}

func (e *RelationalEngine) CreateTable(ctx context.Context, name string, fields []string, sink Sink) error {
	logger := opLogger(e.logger, "create_table", name)
	if err := e.store.CreateTable(store.Relational, name, fields); err != nil {
		return report(logger, sink, err)
	}
	return nil
}

func (e *RelationalEngine) DropTable(ctx context.Context, name string, sink Sink) error {
	logger := opLogger(e.logger, "drop_table", name)
	if err := e.store.DropTable(store.Relational, name); err != nil {
		return report(logger, sink, err)
	}
	return nil
}

func (e *RelationalEngine) LoadCSV(ctx context.Context, ingestPath string, sink Sink) error {
	logger := opLogger(e.logger, "load_csv", ingestPath)
	if _, err := e.store.LoadCSVRelational(ctx, ingestPath); err != nil {
		return report(logger, sink, err)
	}
	return nil
}

// Insert validates every assignment field against the schema, builds a
// row in schema order (missing columns emit empty text, which coerces
// per 4.A), and appends it.
func (e *RelationalEngine) Insert(ctx context.Context, table string, assignments map[string]string, sink Sink) error {
	logger := opLogger(e.logger, "insert", table)
	schema, err := e.store.ReadSchema(table)
	if err != nil {
		return report(logger, sink, err)
	}
	for field := range assignments {
		if schema.IndexOf(field) < 0 {
			return report(logger, sink, fmt.Errorf("%w: table %q has no field %q", errkind.ErrNotFound, table, field))
		}
	}

	row := make([]value.Scalar, len(schema.Fields))
	for i, f := range schema.Fields {
		if v, ok := assignments[f]; ok {
			row[i] = value.ParseLiteral(v)
		} else {
			row[i] = value.NewText("")
		}
	}
	if err := e.store.AppendRow(ctx, table, row); err != nil {
		return report(logger, sink, err)
	}
	return nil
}

func (e *RelationalEngine) Delete(ctx context.Context, table string, condStr string, sink Sink) error {
	logger := opLogger(e.logger, "delete", table)
	schema, err := e.store.ReadSchema(table)
	if err != nil {
		return report(logger, sink, err)
	}
	cond, err := predicate.Parse(condStr)
	if err != nil {
		return report(logger, sink, err)
	}

	chunks, err := e.store.Chunks(store.Relational, table)
	if err != nil {
		return report(logger, sink, err)
	}
	for _, chunkPath := range chunks {
		rows, err := e.store.ReadChunkRows(chunkPath, schema)
		if err != nil {
			return report(logger, sink, err)
		}
		kept := rows[:0]
		for _, row := range rows {
			matched, err := predicate.EvalRow(cond, schema.Fields, row.Values)
			if err != nil {
				return report(logger, sink, err)
			}
			if !matched {
				kept = append(kept, row)
			}
		}
		if err := e.store.RewriteChunkRows(chunkPath, kept); err != nil {
			return report(logger, sink, err)
		}
	}
	return nil
}

// Update overwrites the listed fields (coerced to column type) on every
// row matching cond.
func (e *RelationalEngine) Update(ctx context.Context, table string, condStr string, assignments map[string]string, sink Sink) error {
	logger := opLogger(e.logger, "update", table)
	schema, err := e.store.ReadSchema(table)
	if err != nil {
		return report(logger, sink, err)
	}
	cond, err := predicate.Parse(condStr)
	if err != nil {
		return report(logger, sink, err)
	}
	for field := range assignments {
		if schema.IndexOf(field) < 0 {
			return report(logger, sink, fmt.Errorf("%w: table %q has no field %q", errkind.ErrNotFound, table, field))
		}
	}

	chunks, err := e.store.Chunks(store.Relational, table)
	if err != nil {
		return report(logger, sink, err)
	}
	for _, chunkPath := range chunks {
		rows, err := e.store.ReadChunkRows(chunkPath, schema)
		if err != nil {
			return report(logger, sink, err)
		}
		for i, row := range rows {
			matched, err := predicate.EvalRow(cond, schema.Fields, row.Values)
			if err != nil {
				return report(logger, sink, err)
			}
			if !matched {
				continue
			}
			for field, literal := range assignments {
				idx := schema.IndexOf(field)
				rows[i].Values[idx] = value.ParseLiteral(literal).Coerce(schema.Types[idx])
			}
		}
		if err := e.store.RewriteChunkRows(chunkPath, rows); err != nil {
			return report(logger, sink, err)
		}
	}
	return nil
}

// resolveFields resolves the `*` wildcard to the full schema.
func resolveFields(schema store.Schema, fields []string) ([]string, error) {
	if len(fields) == 1 && fields[0] == "*" {
		return schema.Fields, nil
	}
	for _, f := range fields {
		if schema.IndexOf(f) < 0 {
			return nil, fmt.Errorf("%w: no such field %q", errkind.ErrNotFound, f)
		}
	}
	return fields, nil
}

func (e *RelationalEngine) Projection(ctx context.Context, table string, fields []string, sink Sink) error {
	return e.streamFiltered(ctx, "projection", table, fields, nil, sink)
}

func (e *RelationalEngine) Filter(ctx context.Context, table string, fields []string, condStr string, sink Sink) error {
	logger := opLogger(e.logger, "filter", table)
	cond, err := predicate.Parse(condStr)
	if err != nil {
		return report(logger, sink, err)
	}
	return e.streamFiltered(ctx, "filter", table, fields, &cond, sink)
}

// streamFiltered implements projection and filter, which share every
// step except whether a predicate is applied.
func (e *RelationalEngine) streamFiltered(ctx context.Context, op, table string, fields []string, cond *predicate.Condition, sink Sink) error {
	logger := opLogger(e.logger, op, table)
	schema, err := e.store.ReadSchema(table)
	if err != nil {
		return report(logger, sink, err)
	}
	outFields, err := resolveFields(schema, fields)
	if err != nil {
		return report(logger, sink, err)
	}
	if err := sink.Header(outFields); err != nil {
		return err
	}

	chunks, err := e.store.Chunks(store.Relational, table)
	if err != nil {
		return report(logger, sink, err)
	}
	for _, chunkPath := range chunks {
		rows, err := e.store.ReadChunkRows(chunkPath, schema)
		if err != nil {
			return report(logger, sink, err)
		}
		for _, row := range rows {
			if cond != nil {
				matched, err := predicate.EvalRow(*cond, schema.Fields, row.Values)
				if err != nil {
					return report(logger, sink, err)
				}
				if !matched {
					continue
				}
			}
			full := rowToRecord(schema, row)
			rec := make(Record, len(outFields))
			for _, f := range outFields {
				rec[f] = full[f]
			}
			if err := sink.Row(rec); err != nil {
				return err
			}
		}
	}
	return nil
}

// relationalLineKeyFunc builds a sortrun.KeyFunc that parses one raw CSV
// line and extracts the mixed key of the column at fieldIdx, coerced to
// its declared type.
func relationalLineKeyFunc(schema store.Schema, fieldIdx int) sortrun.KeyFunc {
	return func(line string) (value.MixedKey, bool) {
		rec, err := csv.NewReader(strings.NewReader(line)).Read()
		if err != nil || fieldIdx >= len(rec) {
			return value.MixedKey{}, false
		}
		scalar := value.NewText(rec[fieldIdx]).Coerce(schema.Types[fieldIdx])
		return value.Mix(scalar), true
	}
}

func (e *RelationalEngine) sortedRun(table, field string, descending bool, schema store.Schema) (string, sortrun.Cleanup, error) {
	idx := schema.IndexOf(field)
	if idx < 0 {
		return "", nil, fmt.Errorf("%w: no such field %q", errkind.ErrNotFound, field)
	}
	chunks, err := e.store.Chunks(store.Relational, table)
	if err != nil {
		return "", nil, err
	}
	keyFunc := relationalLineKeyFunc(schema, idx)
	return sortrun.Sort(e.store.FS(), e.tempDir, chunks, e.store.ChunkSize(), descending, ".csv", keyFunc)
}

func (e *RelationalEngine) Order(ctx context.Context, table string, field string, descending bool, sink Sink) error {
	logger := opLogger(e.logger, "order", table)
	schema, err := e.store.ReadSchema(table)
	if err != nil {
		return report(logger, sink, err)
	}
	runPath, cleanup, err := e.sortedRun(table, field, descending, schema)
	if err != nil {
		return report(logger, sink, err)
	}
	if err := sink.Header(schema.Fields); err != nil {
		return err
	}

	err = e.store.StreamChunkRows(runPath, schema, func(row store.Row) error {
		if err := sink.Row(rowToRecord(schema, row)); err != nil {
			return &sinkWriteErr{err}
		}
		return nil
	})
	if err != nil {
		return streamErr(logger, sink, err)
	}
	return cleanup()
}

func (e *RelationalEngine) Group(ctx context.Context, table string, field string, sink Sink) error {
	logger := opLogger(e.logger, "group", table)
	schema, err := e.store.ReadSchema(table)
	if err != nil {
		return report(logger, sink, err)
	}
	idx := schema.IndexOf(field)
	if idx < 0 {
		return report(logger, sink, fmt.Errorf("%w: no such field %q", errkind.ErrNotFound, field))
	}
	runPath, cleanup, err := e.sortedRun(table, field, false, schema)
	if err != nil {
		return report(logger, sink, err)
	}
	if err := sink.Header([]string{field}); err != nil {
		return err
	}

	var prev *value.Scalar
	err = e.store.StreamChunkRows(runPath, schema, func(row store.Row) error {
		cur := row.Values[idx]
		if prev != nil && value.CompareSameKind(cur, *prev) != 0 {
			if err := sink.Row(Record{field: *prev}); err != nil {
				return &sinkWriteErr{err}
			}
		}
		prev = &cur
		return nil
	})
	if err != nil {
		return streamErr(logger, sink, err)
	}
	if prev != nil {
		if err := sink.Row(Record{field: *prev}); err != nil {
			return err
		}
	}
	return cleanup()
}

func (e *RelationalEngine) AggregateGrouped(ctx context.Context, table string, fnName string, aggField string, groupField string, sink Sink) error {
	logger := opLogger(e.logger, "aggregate_grouped", table)
	fn, err := ParseAggFn(fnName)
	if err != nil {
		return report(logger, sink, err)
	}
	schema, err := e.store.ReadSchema(table)
	if err != nil {
		return report(logger, sink, err)
	}
	groupIdx := schema.IndexOf(groupField)
	aggIdx := schema.IndexOf(aggField)
	if groupIdx < 0 || aggIdx < 0 {
		return report(logger, sink, fmt.Errorf("%w: group or aggregate field not in schema", errkind.ErrNotFound))
	}

	runPath, cleanup, err := e.sortedRun(table, groupField, false, schema)
	if err != nil {
		return report(logger, sink, err)
	}
	outField := AggregateFieldName(fn, aggField)
	if err := sink.Header([]string{groupField, outField}); err != nil {
		return err
	}

	var prevGroup *value.Scalar
	acc := NewAccumulator(fn)
	emit := func(group value.Scalar) error {
		return sink.Row(Record{groupField: group, outField: acc.Finalize()})
	}
	err = e.store.StreamChunkRows(runPath, schema, func(row store.Row) error {
		cur := row.Values[groupIdx]
		if prevGroup != nil && value.CompareSameKind(cur, *prevGroup) != 0 {
			if err := emit(*prevGroup); err != nil {
				return &sinkWriteErr{err}
			}
			acc = NewAccumulator(fn)
		}
		acc.Update(row.Values[aggIdx])
		prevGroup = &cur
		return nil
	})
	if err != nil {
		return streamErr(logger, sink, err)
	}
	if prevGroup != nil {
		if err := emit(*prevGroup); err != nil {
			return err
		}
	}
	return cleanup()
}

func (e *RelationalEngine) AggregateTotal(ctx context.Context, table string, fnName string, aggField string, sink Sink) error {
	logger := opLogger(e.logger, "aggregate_total", table)
	fn, err := ParseAggFn(fnName)
	if err != nil {
		return report(logger, sink, err)
	}
	schema, err := e.store.ReadSchema(table)
	if err != nil {
		return report(logger, sink, err)
	}
	idx := schema.IndexOf(aggField)
	if idx < 0 {
		return report(logger, sink, fmt.Errorf("%w: no such field %q", errkind.ErrNotFound, aggField))
	}

	chunks, err := e.store.Chunks(store.Relational, table)
	if err != nil {
		return report(logger, sink, err)
	}
	acc := NewAccumulator(fn)
	for _, chunkPath := range chunks {
		rows, err := e.store.ReadChunkRows(chunkPath, schema)
		if err != nil {
			return report(logger, sink, err)
		}
		for _, row := range rows {
			acc.Update(row.Values[idx])
		}
	}
	outField := AggregateFieldName(fn, aggField)
	if err := sink.Header([]string{outField}); err != nil {
		return err
	}
	return sink.Row(Record{outField: acc.Finalize()})
}

// Join is a nested-loop join: for each right row, substitute its join
// field value as a literal into the predicate and scan the entire left
// table, exactly mirroring the original's per-right-row re-scan (spec
// §4.E: right is the outer loop so the rewritten predicate preserves the
// user's operator direction).
func (e *RelationalEngine) Join(ctx context.Context, left, right, condStr string, sink Sink) error {
	logger := opLogger(e.logger, "join", left+"+"+right)
	jc, err := predicate.ParseJoin(condStr)
	if err != nil {
		return report(logger, sink, err)
	}
	leftSchema, err := e.store.ReadSchema(left)
	if err != nil {
		return report(logger, sink, err)
	}
	rightSchema, err := e.store.ReadSchema(right)
	if err != nil {
		return report(logger, sink, err)
	}
	li, ri := leftSchema.IndexOf(jc.LeftField), rightSchema.IndexOf(jc.RightField)
	if li < 0 || ri < 0 {
		return report(logger, sink, fmt.Errorf("%w: join field not in schema", errkind.ErrNotFound))
	}
	if leftSchema.Types[li] != rightSchema.Types[ri] {
		return report(logger, sink, fmt.Errorf("%w: join fields have different declared types", errkind.ErrSchemaMismatch))
	}

	outFields := make([]string, 0, len(leftSchema.Fields)+len(rightSchema.Fields))
	for _, f := range leftSchema.Fields {
		outFields = append(outFields, left+"."+f)
	}
	for _, f := range rightSchema.Fields {
		outFields = append(outFields, right+"."+f)
	}
	if err := sink.Header(outFields); err != nil {
		return err
	}

	rightChunks, err := e.store.Chunks(store.Relational, right)
	if err != nil {
		return report(logger, sink, err)
	}
	leftChunks, err := e.store.Chunks(store.Relational, left)
	if err != nil {
		return report(logger, sink, err)
	}

	for _, rc := range rightChunks {
		rightRows, err := e.store.ReadChunkRows(rc, rightSchema)
		if err != nil {
			return report(logger, sink, err)
		}
		for _, rrow := range rightRows {
			cond := predicate.Substitute(predicate.Condition{Field: jc.LeftField, Op: jc.Op}, rrow.Values[ri].String())
			for _, lc := range leftChunks {
				leftRows, err := e.store.ReadChunkRows(lc, leftSchema)
				if err != nil {
					return report(logger, sink, err)
				}
				for _, lrow := range leftRows {
					matched, err := predicate.EvalRow(cond, leftSchema.Fields, lrow.Values)
					if err != nil {
						return report(logger, sink, err)
					}
					if !matched {
						continue
					}
					rec := make(Record, len(outFields))
					for i, f := range leftSchema.Fields {
						rec[left+"."+f] = lrow.Values[i]
					}
					for i, f := range rightSchema.Fields {
						rec[right+"."+f] = rrow.Values[i]
					}
					if err := sink.Row(rec); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}
