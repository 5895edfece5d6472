// Package sortrun implements the two-phase external merge sort from
// spec §4.D: run generation over each input chunk, then a multiway merge
// with fan-in equal to the configured chunk size, producing one sorted
// run in a scoped temp workspace.
//
// Sortrun never parses record structure itself — callers (internal/store
// chunk readers, by way of internal/engine) own CSV vs document framing
// and hand it a KeyFunc that extracts a value.MixedKey from one raw
// line. This keeps the merge machinery identical across both storage
// modes, matching spec §4.D's "the sort field's key function differs by
// mode; the sort itself does not."
package sortrun

import (
	"bufio"
	"container/heap"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/afero"

	"github.com/allinbits/labs/projects/queryengine/internal/errkind"
	"github.com/allinbits/labs/projects/queryengine/internal/value"
)

// KeyFunc extracts a MixedKey from one raw record line, reporting ok=false
// when the record is missing the sort field (document mode only;
// relational rejects this earlier per spec §4.D).
type KeyFunc func(line string) (key value.MixedKey, ok bool)

// Cleanup clears the temp workspace; call it once the caller has
// finished streaming the final run. Per spec design notes, do not call
// it on failure — leave artifacts for postmortem.
type Cleanup func() error

const scannerBufCap = 16 * 1024 * 1024

// Sort runs the two-phase external merge sort over chunkPaths, keyed by
// keyFunc, with merge fan-in fan. ext is appended to every run file name
// ("" for document mode, ".csv" for relational). Returns the path to the
// single remaining sorted run and a Cleanup to clear the temp workspace.
func Sort(fs afero.Fs, tempDir string, chunkPaths []string, fan int, descending bool, ext string, keyFunc KeyFunc) (string, Cleanup, error) {
	if len(chunkPaths) == 0 {
		return "", nil, fmt.Errorf("%w: no chunks to sort", errkind.ErrEmptyInput)
	}
	if fan <= 0 {
		return "", nil, fmt.Errorf("sort requires a positive fan-in")
	}
	if err := clearDir(fs, tempDir); err != nil {
		return "", nil, err
	}

	cleanup := Cleanup(func() error { return clearDir(fs, tempDir) })

	runs, err := generateRuns(fs, tempDir, chunkPaths, descending, ext, keyFunc)
	if err != nil {
		return "", nil, err
	}

	pass := 0
	for len(runs) > 1 {
		groups := partition(runs, fan)
		next := make([]string, len(groups))
		for g, group := range groups {
			outPath := runPath(tempDir, g, pass+1, ext)
			if err := mergeGroup(fs, group, descending, ext, keyFunc, outPath); err != nil {
				return "", nil, err
			}
			next[g] = outPath
		}
		runs = next
		pass++
	}
	return runs[0], cleanup, nil
}

func runPath(tempDir string, n, pass int, ext string) string {
	return fmt.Sprintf("%s/chunk_%d_pass_%d%s", tempDir, n, pass, ext)
}

func partition(items []string, fan int) [][]string {
	var groups [][]string
	for i := 0; i < len(items); i += fan {
		end := i + fan
		if end > len(items) {
			end = len(items)
		}
		groups = append(groups, items[i:end])
	}
	return groups
}

type keyedLine struct {
	key  value.MixedKey
	line string
}

// generateRuns implements phase 1: sort each input chunk in memory,
// dropping lines the key function rejects, and write it out as pass 0.
func generateRuns(fs afero.Fs, tempDir string, chunkPaths []string, descending bool, ext string, keyFunc KeyFunc) ([]string, error) {
	runs := make([]string, 0, len(chunkPaths))
	for i, chunkPath := range chunkPaths {
		lines, err := readLines(fs, chunkPath)
		if err != nil {
			return nil, fmt.Errorf("%w: read chunk %q for sort: %v", errkind.ErrIOFailure, chunkPath, err)
		}

		kept := make([]keyedLine, 0, len(lines))
		for _, line := range lines {
			if line == "" {
				continue
			}
			key, ok := keyFunc(line)
			if !ok {
				continue
			}
			kept = append(kept, keyedLine{key: key, line: line})
		}
		sort.SliceStable(kept, func(a, b int) bool {
			cmp := value.Compare(kept[a].key, kept[b].key)
			if descending {
				return cmp > 0
			}
			return cmp < 0
		})

		out := make([]string, len(kept))
		for j, k := range kept {
			out[j] = k.line
		}
		path := runPath(tempDir, i, 0, ext)
		if err := writeLines(fs, path, out); err != nil {
			return nil, fmt.Errorf("%w: write run %q: %v", errkind.ErrIOFailure, path, err)
		}
		runs = append(runs, path)
	}
	return runs, nil
}

// mergeGroup implements one group of phase 2: seed a heap with one
// record per run in the group, repeatedly pop the top and pull the next
// record from the popped input, until every run in the group is
// exhausted.
func mergeGroup(fs afero.Fs, group []string, descending bool, ext string, keyFunc KeyFunc, outPath string) error {
	scanners := make([]*bufio.Scanner, len(group))
	files := make([]afero.File, len(group))
	defer func() {
		for _, f := range files {
			if f != nil {
				f.Close()
			}
		}
	}()

	for i, path := range group {
		f, err := fs.Open(path)
		if err != nil {
			return fmt.Errorf("%w: open run %q: %v", errkind.ErrIOFailure, path, err)
		}
		files[i] = f
		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 0, 64*1024), scannerBufCap)
		scanners[i] = sc
	}

	h := &mergeHeap{descending: descending}
	heap.Init(h)
	for i, sc := range scanners {
		advance(sc, i, keyFunc, h)
	}

	out, err := fs.OpenFile(outPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: create run %q: %v", errkind.ErrIOFailure, outPath, err)
	}
	defer out.Close()
	w := bufio.NewWriter(out)

	for h.Len() > 0 {
		top := heap.Pop(h).(heapItem)
		if _, err := w.WriteString(top.line); err != nil {
			return fmt.Errorf("%w: write run %q: %v", errkind.ErrIOFailure, outPath, err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return fmt.Errorf("%w: write run %q: %v", errkind.ErrIOFailure, outPath, err)
		}
		advance(scanners[top.runIdx], top.runIdx, keyFunc, h)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("%w: flush run %q: %v", errkind.ErrIOFailure, outPath, err)
	}
	return nil
}

// advance pulls the next keyed line from scanner sc (run runIdx) and
// pushes it onto the heap, skipping blank lines.
func advance(sc *bufio.Scanner, runIdx int, keyFunc KeyFunc, h *mergeHeap) {
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		key, ok := keyFunc(line)
		if !ok {
			continue
		}
		heap.Push(h, heapItem{key: key, line: line, runIdx: runIdx})
		return
	}
}

func readLines(fs afero.Fs, path string) ([]string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), scannerBufCap)
	var lines []string
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines, sc.Err()
}

func writeLines(fs afero.Fs, path string, lines []string) error {
	f, err := fs.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, line := range lines {
		if _, err := w.WriteString(line); err != nil {
			return err
		}
		if err := w.WriteByte('\n'); err != nil {
			return err
		}
	}
	return w.Flush()
}

// clearDir removes every entry under dir (creating it if absent), the
// scoped-temp-workspace discipline from spec §9: clear on entry, clear on
// exit on success, leave artifacts on failure.
func clearDir(fs afero.Fs, dir string) error {
	exists, err := afero.DirExists(fs, dir)
	if err != nil {
		return fmt.Errorf("%w: check temp dir %q: %v", errkind.ErrIOFailure, dir, err)
	}
	if exists {
		if err := fs.RemoveAll(dir); err != nil {
			return fmt.Errorf("%w: clear temp dir %q: %v", errkind.ErrIOFailure, dir, err)
		}
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create temp dir %q: %v", errkind.ErrIOFailure, dir, err)
	}
	return nil
}
