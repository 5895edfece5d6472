package engine

import (
	"context"
	"encoding/json"

	"github.com/allinbits/labs/projects/queryengine/internal/predicate"
	"github.com/allinbits/labs/projects/queryengine/internal/sortrun"
	"github.com/allinbits/labs/projects/queryengine/internal/store"
	"github.com/allinbits/labs/projects/queryengine/internal/value"
)

func docToRecord(doc store.Document) Record {
	return Record(doc)
}

func (e *DocumentEngine) ShowTables(ctx context.Context, sink Sink) error {
	logger := opLogger(e.logger, "show_tables", "")
	tables, err := e.store.ListTables(store.Document)
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

func (e *DocumentEngine) CreateTable(ctx context.Context, name string, fields []string, sink Sink) error {
	logger := opLogger(e.logger, "create_table", name)
	if err := e.store.CreateTable(store.Document, name, fields); err != nil {
		return report(logger, sink, err)
	}
	return nil
}

func (e *DocumentEngine) DropTable(ctx context.Context, name string, sink Sink) error {
	logger := opLogger(e.logger, "drop_table", name)
	if err := e.store.DropTable(store.Document, name); err != nil {
		return report(logger, sink, err)
	}
	return nil
}

func (e *DocumentEngine) LoadCSV(ctx context.Context, ingestPath string, sink Sink) error {
	logger := opLogger(e.logger, "load_csv", ingestPath)
	if _, err := e.store.LoadCSVDocument(ctx, ingestPath); err != nil {
		return report(logger, sink, err)
	}
	return nil
}

// Insert parses assignments with literal inference (spec §4.A) and
// appends the resulting document — no schema to validate against.
func (e *DocumentEngine) Insert(ctx context.Context, table string, assignments map[string]string, sink Sink) error {
	logger := opLogger(e.logger, "insert", table)
	doc := make(store.Document, len(assignments))
	for field, literal := range assignments {
		doc[field] = value.ParseLiteral(literal)
	}
	if err := e.store.AppendDocument(ctx, table, doc); err != nil {
		return report(logger, sink, err)
	}
	return nil
}

func (e *DocumentEngine) Delete(ctx context.Context, table string, condStr string, sink Sink) error {
	logger := opLogger(e.logger, "delete", table)
	cond, err := predicate.Parse(condStr)
	if err != nil {
		return report(logger, sink, err)
	}
	chunks, err := e.store.Chunks(store.Document, table)
	if err != nil {
		return report(logger, sink, err)
	}
	for _, chunkPath := range chunks {
		docs, err := e.store.ReadChunkDocs(chunkPath)
		if err != nil {
			return report(logger, sink, err)
		}
		kept := docs[:0]
		for _, doc := range docs {
			if !predicate.EvalDocument(cond, doc) {
				kept = append(kept, doc)
			}
		}
		if err := e.store.RewriteChunkDocs(chunkPath, kept); err != nil {
			return report(logger, sink, err)
		}
	}
	return nil
}

func (e *DocumentEngine) Update(ctx context.Context, table string, condStr string, assignments map[string]string, sink Sink) error {
	logger := opLogger(e.logger, "update", table)
	cond, err := predicate.Parse(condStr)
	if err != nil {
		return report(logger, sink, err)
	}
	chunks, err := e.store.Chunks(store.Document, table)
	if err != nil {
		return report(logger, sink, err)
	}
	for _, chunkPath := range chunks {
		docs, err := e.store.ReadChunkDocs(chunkPath)
		if err != nil {
			return report(logger, sink, err)
		}
		for i, doc := range docs {
			if !predicate.EvalDocument(cond, doc) {
				continue
			}
			for field, literal := range assignments {
				docs[i][field] = value.ParseLiteral(literal)
			}
		}
		if err := e.store.RewriteChunkDocs(chunkPath, docs); err != nil {
			return report(logger, sink, err)
		}
	}
	return nil
}

func (e *DocumentEngine) Projection(ctx context.Context, table string, fields []string, sink Sink) error {
	return e.streamFiltered(ctx, "projection", table, fields, nil, sink)
}

func (e *DocumentEngine) Filter(ctx context.Context, table string, fields []string, condStr string, sink Sink) error {
	logger := opLogger(e.logger, "filter", table)
	cond, err := predicate.Parse(condStr)
	if err != nil {
		return report(logger, sink, err)
	}
	return e.streamFiltered(ctx, "filter", table, fields, &cond, sink)
}

// streamFiltered implements projection and filter. Document mode has no
// schema, so "*" is the only validated shape; named fields simply emit
// whatever a record happens to have (spec §4.E: "sub-record limited to
// fields").
func (e *DocumentEngine) streamFiltered(ctx context.Context, op, table string, fields []string, cond *predicate.Condition, sink Sink) error {
	logger := opLogger(e.logger, op, table)
	wildcard := len(fields) == 1 && fields[0] == "*"

	chunks, err := e.store.Chunks(store.Document, table)
	if err != nil {
		return report(logger, sink, err)
	}
	for _, chunkPath := range chunks {
		docs, err := e.store.ReadChunkDocs(chunkPath)
		if err != nil {
			return report(logger, sink, err)
		}
		for _, doc := range docs {
			if cond != nil && !predicate.EvalDocument(*cond, doc) {
				continue
			}
			if wildcard {
				if err := sink.Row(docToRecord(doc)); err != nil {
					return err
				}
				continue
			}
			rec := make(Record, len(fields))
			for _, f := range fields {
				if v, ok := doc[f]; ok {
					rec[f] = v
				}
			}
			if err := sink.Row(rec); err != nil {
				return err
			}
		}
	}
	return nil
}

// documentLineKeyFunc parses a raw JSON line and extracts the mixed key
// of field, dropping records that lack it (spec §4.D phase 1: "discard
// records missing the sort field").
func documentLineKeyFunc(field string) sortrun.KeyFunc {
	return func(line string) (value.MixedKey, bool) {
		doc := store.Document{}
		if err := json.Unmarshal([]byte(line), &doc); err != nil {
			return value.MixedKey{}, false
		}
		v, ok := doc[field]
		if !ok {
			return value.MixedKey{}, false
		}
		return value.Mix(v), true
	}
}

func (e *DocumentEngine) sortedRun(table, field string, descending bool) (string, sortrun.Cleanup, error) {
	chunks, err := e.store.Chunks(store.Document, table)
	if err != nil {
		return "", nil, err
	}
	return sortrun.Sort(e.store.FS(), e.tempDir, chunks, e.store.ChunkSize(), descending, "", documentLineKeyFunc(field))
}

func (e *DocumentEngine) Order(ctx context.Context, table string, field string, descending bool, sink Sink) error {
	logger := opLogger(e.logger, "order", table)
	runPath, cleanup, err := e.sortedRun(table, field, descending)
	if err != nil {
		return report(logger, sink, err)
	}
	err = e.store.StreamChunkDocs(runPath, func(doc store.Document) error {
		if err := sink.Row(docToRecord(doc)); err != nil {
			return &sinkWriteErr{err}
		}
		return nil
	})
	if err != nil {
		return streamErr(logger, sink, err)
	}
	return cleanup()
}

func (e *DocumentEngine) Group(ctx context.Context, table string, field string, sink Sink) error {
	logger := opLogger(e.logger, "group", table)
	runPath, cleanup, err := e.sortedRun(table, field, false)
	if err != nil {
		return report(logger, sink, err)
	}
	var prev *value.MixedKey
	var prevVal value.Scalar
	err = e.store.StreamChunkDocs(runPath, func(doc store.Document) error {
		v, ok := doc[field]
		if !ok {
			return nil
		}
		cur := value.Mix(v)
		if prev != nil && !value.Equal(cur, *prev) {
			if err := sink.Row(Record{field: prevVal}); err != nil {
				return &sinkWriteErr{err}
			}
		}
		prev = &cur
		prevVal = v
		return nil
	})
	if err != nil {
		return streamErr(logger, sink, err)
	}
	if prev != nil {
		if err := sink.Row(Record{field: prevVal}); err != nil {
			return err
		}
	}
	return cleanup()
}

// aggValue resolves a document's agg_field, defaulting to numeric 0 when
// absent (spec §4.E: "records missing agg_field contribute 0").
func aggValue(doc store.Document, field string) value.Scalar {
	if v, ok := doc[field]; ok {
		return v
	}
	return value.NewInt64(0)
}

func (e *DocumentEngine) AggregateGrouped(ctx context.Context, table string, fnName string, aggField string, groupField string, sink Sink) error {
	logger := opLogger(e.logger, "aggregate_grouped", table)
	fn, err := ParseAggFn(fnName)
	if err != nil {
		return report(logger, sink, err)
	}
	runPath, cleanup, err := e.sortedRun(table, groupField, false)
	if err != nil {
		return report(logger, sink, err)
	}
	outField := AggregateFieldName(fn, aggField)
	var prev *value.MixedKey
	var prevVal value.Scalar
	acc := NewAccumulator(fn)
	emit := func() error {
		return sink.Row(Record{groupField: prevVal, outField: acc.Finalize()})
	}
	err = e.store.StreamChunkDocs(runPath, func(doc store.Document) error {
		groupVal, ok := doc[groupField]
		if !ok {
			return nil
		}
		cur := value.Mix(groupVal)
		if prev != nil && !value.Equal(cur, *prev) {
			if err := emit(); err != nil {
				return &sinkWriteErr{err}
			}
			acc = NewAccumulator(fn)
		}
		acc.Update(aggValue(doc, aggField))
		prev = &cur
		prevVal = groupVal
		return nil
	})
	if err != nil {
		return streamErr(logger, sink, err)
	}
	if prev != nil {
		if err := emit(); err != nil {
			return err
		}
	}
	return cleanup()
}

func (e *DocumentEngine) AggregateTotal(ctx context.Context, table string, fnName string, aggField string, sink Sink) error {
	logger := opLogger(e.logger, "aggregate_total", table)
	fn, err := ParseAggFn(fnName)
	if err != nil {
		return report(logger, sink, err)
	}
	chunks, err := e.store.Chunks(store.Document, table)
	if err != nil {
		return report(logger, sink, err)
	}
	acc := NewAccumulator(fn)
	for _, chunkPath := range chunks {
		docs, err := e.store.ReadChunkDocs(chunkPath)
		if err != nil {
			return report(logger, sink, err)
		}
		for _, doc := range docs {
			acc.Update(aggValue(doc, aggField))
		}
	}
	outField := AggregateFieldName(fn, aggField)
	return sink.Row(Record{outField: acc.Finalize()})
}

// Join mirrors the relational nested-loop join (spec §4.E) but resolves
// fields dynamically from each document rather than a fixed schema.
func (e *DocumentEngine) Join(ctx context.Context, left, right, condStr string, sink Sink) error {
	logger := opLogger(e.logger, "join", left+"+"+right)
	jc, err := predicate.ParseJoin(condStr)
	if err != nil {
		return report(logger, sink, err)
	}

	rightChunks, err := e.store.Chunks(store.Document, right)
	if err != nil {
		return report(logger, sink, err)
	}
	leftChunks, err := e.store.Chunks(store.Document, left)
	if err != nil {
		return report(logger, sink, err)
	}

	for _, rc := range rightChunks {
		rightDocs, err := e.store.ReadChunkDocs(rc)
		if err != nil {
			return report(logger, sink, err)
		}
		for _, rdoc := range rightDocs {
			rv, ok := rdoc[jc.RightField]
			if !ok {
				continue
			}
			cond := predicate.Substitute(predicate.Condition{Field: jc.LeftField, Op: jc.Op}, rv.String())
			for _, lc := range leftChunks {
				leftDocs, err := e.store.ReadChunkDocs(lc)
				if err != nil {
					return report(logger, sink, err)
				}
				for _, ldoc := range leftDocs {
					if !predicate.EvalDocument(cond, ldoc) {
						continue
					}
					rec := make(Record, len(ldoc)+len(rdoc))
					for f, v := range ldoc {
						rec[left+"."+f] = v
					}
					for f, v := range rdoc {
						rec[right+"."+f] = v
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
