// Package store implements the Chunked Store (spec §4.B): an append-only
// per-table directory of fixed-capacity chunk files, with a schema
// sidecar for relational tables. Every filesystem touch goes through
// afero.Fs, the way sidechain/internal/storage/disk does it, so tests run
// against afero.NewMemMapFs() with zero real disk I/O.
package store

import (
	"context"
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spf13/afero"

	"github.com/allinbits/labs/projects/queryengine/internal/store/archive"
)

// Mode selects which of the two storage models a table lives in.
type Mode int

const (
	Relational Mode = iota
	Document
)

func (m Mode) String() string {
	if m == Relational {
		return "Relational"
	}
	return "Document"
}

const schemaCacheSize = 64

// Store is the persistence layer shared by both modes. It holds no row
// data in memory beyond what a single operation is streaming; the only
// cache is parsed schemas, bounded and invalidated on every schema
// mutation.
type Store struct {
	fs         afero.Fs
	root       string
	chunkSize  int
	archiver   archive.Archiver
	logger     *slog.Logger
	schemas    *lru.Cache[string, Schema]
}

// Option configures a Store, the functional-options pattern sidechain's
// disk.Provider and s3.Provider both use.
type Option func(*Store)

// WithFS sets a custom filesystem, for tests.
func WithFS(fs afero.Fs) Option {
	return func(s *Store) { s.fs = fs }
}

// WithArchiver wires an optional cold-archive tier; sealed chunks are
// uploaded to it synchronously as soon as the store notices a chunk
// reached capacity. Nil (the default) disables archival entirely.
func WithArchiver(a archive.Archiver) Option {
	return func(s *Store) { s.archiver = a }
}

// WithLogger overrides the default slog.Logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithSchemaCacheSize overrides the default schema LRU capacity.
func WithSchemaCacheSize(n int) Option {
	return func(s *Store) {
		cache, err := lru.New[string, Schema](n)
		if err == nil {
			s.schemas = cache
		}
	}
}

// New builds a Store rooted at root, chunking records chunkSize at a
// time (also the external-sort merge fan-in, per spec §6).
func New(root string, chunkSize int, opts ...Option) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("store requires a non-empty storage root")
	}
	if chunkSize <= 0 {
		return nil, fmt.Errorf("store requires a positive chunk size")
	}

	cache, err := lru.New[string, Schema](schemaCacheSize)
	if err != nil {
		return nil, fmt.Errorf("build schema cache: %w", err)
	}

	s := &Store{
		fs:        afero.NewOsFs(),
		root:      root,
		chunkSize: chunkSize,
		logger:    slog.Default(),
		schemas:   cache,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ChunkSize reports the configured records-per-chunk / merge fan-in.
func (s *Store) ChunkSize() int { return s.chunkSize }

// FS exposes the underlying filesystem, so collaborators (external sort's
// temp workspace) can share it rather than open a second afero.Fs.
func (s *Store) FS() afero.Fs { return s.fs }

func (s *Store) modeRoot(mode Mode) string {
	return s.root + "/" + mode.String()
}

func (s *Store) tableDir(mode Mode, name string) string {
	return s.modeRoot(mode) + "/" + name
}

func (s *Store) schemaCacheKey(mode Mode, name string) string {
	return mode.String() + "/" + name
}

// TableExists reports whether name has a directory under mode's root.
func (s *Store) TableExists(mode Mode, name string) (bool, error) {
	ok, err := afero.DirExists(s.fs, s.tableDir(mode, name))
	if err != nil {
		return false, fmt.Errorf("check table %q exists: %w", name, err)
	}
	return ok, nil
}

// ListTables enumerates subdirectories of mode's root (spec §4.E
// show_tables).
func (s *Store) ListTables(mode Mode) ([]string, error) {
	root := s.modeRoot(mode)
	exists, err := afero.DirExists(s.fs, root)
	if err != nil {
		return nil, fmt.Errorf("check mode root %q: %w", root, err)
	}
	if !exists {
		return nil, nil
	}
	entries, err := afero.ReadDir(s.fs, root)
	if err != nil {
		return nil, fmt.Errorf("list tables under %q: %w", root, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// archiveChunk uploads chunkPath to the cold-archive tier if one is
// configured. It is a no-op otherwise, and failures are logged but never
// propagated: archival is a best-effort adjunct to durable local storage,
// never a precondition for a write to succeed.
func (s *Store) archiveChunk(ctx context.Context, mode Mode, table, chunkPath string) {
	if s.archiver == nil {
		return
	}
	data, err := afero.ReadFile(s.fs, chunkPath)
	if err != nil {
		s.logger.Warn("archive read failed", "table", table, "chunk", chunkPath, "err", err)
		return
	}
	if err := s.archiver.UploadChunk(ctx, mode.String()+"/"+table, chunkPath, data); err != nil {
		s.logger.Warn("archive upload failed", "table", table, "chunk", chunkPath, "err", err)
	}
}
