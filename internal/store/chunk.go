package store

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"github.com/spf13/afero"
)

// chunkNameRe extracts the zero-based integer between the first
// underscore and the file extension (spec §4.B: "chunk names embed a
// zero-based integer between the first underscore and the dot").
var chunkNameRe = regexp.MustCompile(`^chunk_(\d+)(?:\.csv)?$`)

func chunkFileName(mode Mode, n int) string {
	if mode == Relational {
		return fmt.Sprintf("chunk_%d.csv", n)
	}
	return fmt.Sprintf("chunk_%d", n)
}

func (s *Store) chunkPath(mode Mode, table string, n int) string {
	return s.tableDir(mode, table) + "/" + chunkFileName(mode, n)
}

// Chunks returns the ordered list of chunk paths for table, sorted by the
// embedded chunk number.
func (s *Store) Chunks(mode Mode, table string) ([]string, error) {
	dir := s.tableDir(mode, table)
	exists, err := afero.DirExists(s.fs, dir)
	if err != nil {
		return nil, fmt.Errorf("check table dir %q: %w", dir, err)
	}
	if !exists {
		return nil, nil
	}
	entries, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		return nil, fmt.Errorf("list chunks under %q: %w", dir, err)
	}

	type numbered struct {
		n    int
		path string
	}
	var chunks []numbered
	for _, e := range entries {
		m := chunkNameRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		chunks = append(chunks, numbered{n: n, path: dir + "/" + e.Name()})
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].n < chunks[j].n })

	paths := make([]string, len(chunks))
	for i, c := range chunks {
		paths[i] = c.path
	}
	return paths, nil
}

// highestChunk returns the largest chunk number present and its path, or
// (-1, "") if the table has no chunks yet.
func (s *Store) highestChunk(mode Mode, table string) (int, string, error) {
	paths, err := s.Chunks(mode, table)
	if err != nil {
		return -1, "", err
	}
	if len(paths) == 0 {
		return -1, "", nil
	}
	last := paths[len(paths)-1]
	m := chunkNameRe.FindStringSubmatch(baseName(last))
	n, _ := strconv.Atoi(m[1])
	return n, last, nil
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

// countLines counts newline-terminated records already in a chunk file,
// used to decide whether an append target chunk still has room.
func countLines(fs afero.Fs, path string) (int, error) {
	exists, err := afero.Exists(fs, path)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, nil
	}
	count := 0
	for _, b := range data {
		if b == '\n' {
			count++
		}
	}
	if data[len(data)-1] != '\n' {
		count++
	}
	return count, nil
}
