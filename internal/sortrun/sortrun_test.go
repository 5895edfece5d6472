package sortrun

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/allinbits/labs/projects/queryengine/internal/value"
)

func intKeyFunc(line string) (value.MixedKey, bool) {
	return value.Mix(value.ParseLiteral(line)), true
}

// TestSortAcrossMultiplePasses reproduces scenario S2: CHUNK_SIZE=2,
// nine keys spread across five chunks, sorted ascending must emit 1..9
// and leave the temp workspace empty once cleanup runs.
func TestSortAcrossMultiplePasses(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/Storage/Relational/nums/chunk_0.csv", []byte("5\n2\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/Storage/Relational/nums/chunk_1.csv", []byte("8\n1\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/Storage/Relational/nums/chunk_2.csv", []byte("9\n3\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/Storage/Relational/nums/chunk_3.csv", []byte("7\n4\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/Storage/Relational/nums/chunk_4.csv", []byte("6\n"), 0o644))

	chunkPaths := []string{
		"/Storage/Relational/nums/chunk_0.csv",
		"/Storage/Relational/nums/chunk_1.csv",
		"/Storage/Relational/nums/chunk_2.csv",
		"/Storage/Relational/nums/chunk_3.csv",
		"/Storage/Relational/nums/chunk_4.csv",
	}

	finalPath, cleanup, err := Sort(fs, "/Temp", chunkPaths, 2, false, ".csv", intKeyFunc)
	require.NoError(t, err)

	lines, err := readLines(fs, finalPath)
	require.NoError(t, err)
	require.Equal(t, []string{"1", "2", "3", "4", "5", "6", "7", "8", "9"}, lines)

	require.NoError(t, cleanup())
	entries, err := afero.ReadDir(fs, "/Temp")
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestSortDescending(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/Storage/Relational/nums/chunk_0.csv", []byte("1\n2\n3\n"), 0o644))

	finalPath, _, err := Sort(fs, "/Temp", []string{"/Storage/Relational/nums/chunk_0.csv"}, 2, true, ".csv", intKeyFunc)
	require.NoError(t, err)

	lines, err := readLines(fs, finalPath)
	require.NoError(t, err)
	require.Equal(t, []string{"3", "2", "1"}, lines)
}

func TestSortEmptyInput(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, _, err := Sort(fs, "/Temp", nil, 2, false, ".csv", intKeyFunc)
	require.Error(t, err)
}

func TestSortDropsRecordsMissingKey(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/Storage/Document/events/chunk_0", []byte(`{"k":2}`+"\n"+`{"other":1}`+"\n"+`{"k":1}`+"\n"), 0o644))

	keyFunc := func(line string) (value.MixedKey, bool) {
		if line == `{"other":1}` {
			return value.MixedKey{}, false
		}
		return intKeyFuncFromJSONK(line), true
	}

	finalPath, _, err := Sort(fs, "/Temp", []string{"/Storage/Document/events/chunk_0"}, 10, false, "", keyFunc)
	require.NoError(t, err)
	lines, err := readLines(fs, finalPath)
	require.NoError(t, err)
	require.Len(t, lines, 2)
}

func intKeyFuncFromJSONK(line string) value.MixedKey {
	// minimal stand-in: pull the digit(s) after "k":
	i := len(`{"k":`)
	digits := line[i : len(line)-1]
	return value.Mix(value.ParseLiteral(digits))
}
