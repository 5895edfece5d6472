package store

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"

	"github.com/allinbits/labs/projects/queryengine/internal/errkind"
	"github.com/allinbits/labs/projects/queryengine/internal/value"
)

// Document is an unordered field-name-to-scalar mapping, one per line of
// a document-mode chunk file. Field order is insignificant; json.Marshal
// on a Go map always emits keys sorted, which keeps chunk files
// deterministic without any extra bookkeeping here.
type Document map[string]value.Scalar

// AppendDocument appends a document record, opening a new chunk when the
// current highest-numbered one is full (spec §4.B).
func (s *Store) AppendDocument(ctx context.Context, table string, doc Document) error {
	chunkPath, existing, err := s.targetChunk(Document, table)
	if err != nil {
		return err
	}
	line, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: marshal document: %v", errkind.ErrIOFailure, err)
	}
	f, err := s.fs.OpenFile(chunkPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: open chunk %q: %v", errkind.ErrIOFailure, chunkPath, err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("%w: append to chunk %q: %v", errkind.ErrIOFailure, chunkPath, err)
	}
	if existing+1 >= s.chunkSize {
		s.archiveChunk(ctx, Document, table, chunkPath)
	}
	return nil
}

// ReadChunkDocs parses every line of a document chunk as a JSON object.
func (s *Store) ReadChunkDocs(chunkPath string) ([]Document, error) {
	data, err := afero.ReadFile(s.fs, chunkPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read chunk %q: %v", errkind.ErrIOFailure, chunkPath, err)
	}
	var docs []Document
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		doc := Document{}
		if err := json.Unmarshal(line, &doc); err != nil {
			return nil, fmt.Errorf("%w: parse document in %q: %v", errkind.ErrSchemaMismatch, chunkPath, err)
		}
		docs = append(docs, doc)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: scan chunk %q: %v", errkind.ErrIOFailure, chunkPath, err)
	}
	return docs, nil
}

// StreamChunkDocs parses a document chunk (or sorted run) one line at a
// time and calls fn per document, never holding the whole file in memory.
// This is the primitive Order, Group and AggregateGrouped use to stream
// the final sort run (spec §5's streaming budget).
func (s *Store) StreamChunkDocs(chunkPath string, fn func(Document) error) error {
	f, err := s.fs.Open(chunkPath)
	if err != nil {
		return fmt.Errorf("%w: open chunk %q: %v", errkind.ErrIOFailure, chunkPath, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		doc := Document{}
		if err := json.Unmarshal(line, &doc); err != nil {
			return fmt.Errorf("%w: parse document in %q: %v", errkind.ErrSchemaMismatch, chunkPath, err)
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: scan chunk %q: %v", errkind.ErrIOFailure, chunkPath, err)
	}
	return nil
}

// RewriteChunkDocs truncates chunkPath and writes docs in place.
func (s *Store) RewriteChunkDocs(chunkPath string, docs []Document) error {
	var buf bytes.Buffer
	for _, doc := range docs {
		line, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("%w: marshal document for %q: %v", errkind.ErrIOFailure, chunkPath, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	if err := afero.WriteFile(s.fs, chunkPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("%w: rewrite chunk %q: %v", errkind.ErrIOFailure, chunkPath, err)
	}
	return nil
}

// LoadCSVDocument derives a table name from path's filename stem and
// converts each CSV row to a document keyed by the CSV header.
func (s *Store) LoadCSVDocument(ctx context.Context, ingestPath string) (string, error) {
	table := tableNameFromPath(ingestPath)
	exists, err := s.TableExists(Document, table)
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
	if err := s.CreateTable(Document, table, nil); err != nil {
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
		doc := make(Document, len(header))
		for i, key := range header {
			if i < len(record) {
				doc[key] = value.ParseLiteral(record[i])
			}
		}
		if err := s.AppendDocument(ctx, table, doc); err != nil {
			return "", err
		}
	}
	return table, nil
}
