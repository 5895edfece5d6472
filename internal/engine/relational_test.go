package engine

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/allinbits/labs/projects/queryengine/internal/store"
	"github.com/allinbits/labs/projects/queryengine/internal/value"
)

func newTestRelationalEngine(t *testing.T, chunkSize int) (*RelationalEngine, *store.Store) {
	t.Helper()
	fs := afero.NewMemMapFs()
	s, err := store.New("/data", chunkSize, store.WithFS(fs))
	require.NoError(t, err)
	return NewRelationalEngine(s, "/tmp/sort", nil), s
}

func seedMovies(t *testing.T, s *store.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.CreateTable(store.Relational, "movies", []string{"id", "genre", "rating"}))
	rows := [][]value.Scalar{
		{value.NewInt64(1), value.NewText("drama"), value.NewInt64(7)},
		{value.NewInt64(2), value.NewText("drama"), value.NewInt64(9)},
		{value.NewInt64(3), value.NewText("comedy"), value.NewInt64(5)},
		{value.NewInt64(4), value.NewText("comedy"), value.NewInt64(8)},
	}
	for _, r := range rows {
		require.NoError(t, s.AppendRow(ctx, "movies", r))
	}
}

func TestRelationalShowTables(t *testing.T) {
	e, s := newTestRelationalEngine(t, 2)
	require.NoError(t, s.CreateTable(store.Relational, "movies", []string{"id"}))
	require.NoError(t, s.CreateTable(store.Relational, "actors", []string{"id"}))

	sink := &CollectingSink{}
	require.NoError(t, e.ShowTables(context.Background(), sink))
	require.Empty(t, sink.Diagnostics)
	require.ElementsMatch(t, []string{"movies", "actors"}, rowsTextField(sink.Rows, "tables"))
}

func rowsTextField(rows []Record, field string) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r[field].Str
	}
	return out
}

func TestRelationalInsertValidatesSchemaFields(t *testing.T) {
	e, s := newTestRelationalEngine(t, 10)
	require.NoError(t, s.CreateTable(store.Relational, "movies", []string{"id", "genre"}))

	sink := &CollectingSink{}
	err := e.Insert(context.Background(), "movies", map[string]string{"nope": "x"}, sink)
	require.NoError(t, err)
	require.Len(t, sink.Diagnostics, 1)
}

func TestRelationalInsertMissingColumnEmitsEmptyText(t *testing.T) {
	e, s := newTestRelationalEngine(t, 10)
	require.NoError(t, s.CreateTable(store.Relational, "movies", []string{"id", "genre"}))

	sink := &CollectingSink{}
	// First insert fixes the schema's inferred types; it must supply every
	// field since type inference rejects an empty field (spec §3 invariant 5).
	require.NoError(t, e.Insert(context.Background(), "movies", map[string]string{"id": "1", "genre": "drama"}, sink))
	require.NoError(t, e.Insert(context.Background(), "movies", map[string]string{"id": "2"}, sink))
	require.Empty(t, sink.Diagnostics)

	schema, err := s.ReadSchema("movies")
	require.NoError(t, err)
	chunks, err := s.Chunks(store.Relational, "movies")
	require.NoError(t, err)
	rows, err := s.ReadChunkRows(chunks[0], schema)
	require.NoError(t, err)
	require.Equal(t, value.NewInt64(2), rows[1].Values[0])
	require.Equal(t, value.NewText(""), rows[1].Values[1])
}

func TestRelationalFilterAndProjection(t *testing.T) {
	e, s := newTestRelationalEngine(t, 2)
	seedMovies(t, s)

	sink := &CollectingSink{}
	require.NoError(t, e.Filter(context.Background(), "movies", []string{"id", "genre"}, "genre=drama", sink))
	require.Equal(t, []string{"id", "genre"}, sink.Headers)
	require.Len(t, sink.Rows, 2)
	for _, r := range sink.Rows {
		require.Equal(t, "drama", r["genre"].Str)
		require.NotContains(t, r, "rating")
	}
}

func TestRelationalDeleteThenInsertReusesChunkSlots(t *testing.T) {
	e, s := newTestRelationalEngine(t, 2)
	seedMovies(t, s)

	sink := &CollectingSink{}
	require.NoError(t, e.Delete(context.Background(), "movies", "genre=comedy", sink))
	require.Empty(t, sink.Diagnostics)

	chunks, err := s.Chunks(store.Relational, "movies")
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	schema, err := s.ReadSchema("movies")
	require.NoError(t, err)
	var total int
	for _, c := range chunks {
		rows, err := s.ReadChunkRows(c, schema)
		require.NoError(t, err)
		total += len(rows)
	}
	require.Equal(t, 2, total)

	require.NoError(t, e.Insert(context.Background(), "movies", map[string]string{
		"id": "5", "genre": "horror", "rating": "6",
	}, sink))
	require.Empty(t, sink.Diagnostics)

	chunks, err = s.Chunks(store.Relational, "movies")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
}

func TestRelationalUpdateCoercesToColumnType(t *testing.T) {
	e, s := newTestRelationalEngine(t, 10)
	seedMovies(t, s)

	sink := &CollectingSink{}
	require.NoError(t, e.Update(context.Background(), "movies", "id=1", map[string]string{"rating": "10"}, sink))

	schema, err := s.ReadSchema("movies")
	require.NoError(t, err)
	chunks, err := s.Chunks(store.Relational, "movies")
	require.NoError(t, err)
	rows, err := s.ReadChunkRows(chunks[0], schema)
	require.NoError(t, err)
	require.Equal(t, value.NewInt64(10), rows[0].Values[2])
}

func TestRelationalOrderDescending(t *testing.T) {
	e, s := newTestRelationalEngine(t, 2)
	seedMovies(t, s)

	sink := &CollectingSink{}
	require.NoError(t, e.Order(context.Background(), "movies", "rating", true, sink))
	var ratings []int64
	for _, r := range sink.Rows {
		ratings = append(ratings, r["rating"].Int)
	}
	require.Equal(t, []int64{9, 8, 7, 5}, ratings)
}

func TestRelationalGroupEmitsDistinctValues(t *testing.T) {
	e, s := newTestRelationalEngine(t, 2)
	seedMovies(t, s)

	sink := &CollectingSink{}
	require.NoError(t, e.Group(context.Background(), "movies", "genre", sink))
	require.ElementsMatch(t, []string{"comedy", "drama"}, rowsTextField(sink.Rows, "genre"))
}

func TestRelationalAggregateGrouped(t *testing.T) {
	e, s := newTestRelationalEngine(t, 2)
	seedMovies(t, s)

	sink := &CollectingSink{}
	require.NoError(t, e.AggregateGrouped(context.Background(), "movies", "sum", "rating", "genre", sink))
	require.Equal(t, []string{"genre", "sum(rating)"}, sink.Headers)

	totals := map[string]int64{}
	for _, r := range sink.Rows {
		totals[r["genre"].Str] = r["sum(rating)"].Int
	}
	require.Equal(t, int64(16), totals["drama"])
	require.Equal(t, int64(13), totals["comedy"])
}

func TestRelationalAggregateTotal(t *testing.T) {
	e, s := newTestRelationalEngine(t, 2)
	seedMovies(t, s)

	sink := &CollectingSink{}
	require.NoError(t, e.AggregateTotal(context.Background(), "movies", "count", "id", sink))
	require.Len(t, sink.Rows, 1)
	require.Equal(t, int64(4), sink.Rows[0]["count(id)"].Int)
}

func TestRelationalJoinNestedLoop(t *testing.T) {
	e, s := newTestRelationalEngine(t, 2)
	ctx := context.Background()
	require.NoError(t, s.CreateTable(store.Relational, "movies", []string{"id", "title"}))
	require.NoError(t, s.AppendRow(ctx, "movies", []value.Scalar{value.NewInt64(1), value.NewText("A")}))
	require.NoError(t, s.AppendRow(ctx, "movies", []value.Scalar{value.NewInt64(2), value.NewText("B")}))

	require.NoError(t, s.CreateTable(store.Relational, "ratings", []string{"movie_id", "score"}))
	require.NoError(t, s.AppendRow(ctx, "ratings", []value.Scalar{value.NewInt64(1), value.NewInt64(9)}))
	require.NoError(t, s.AppendRow(ctx, "ratings", []value.Scalar{value.NewInt64(2), value.NewInt64(7)}))

	sink := &CollectingSink{}
	require.NoError(t, e.Join(ctx, "movies", "ratings", "id=movie_id", sink))
	require.Len(t, sink.Rows, 2)
	for _, r := range sink.Rows {
		require.Equal(t, r["movies.id"].Int, r["ratings.movie_id"].Int)
	}
}

func TestRelationalJoinRejectsMismatchedTypes(t *testing.T) {
	e, s := newTestRelationalEngine(t, 2)
	ctx := context.Background()
	require.NoError(t, s.CreateTable(store.Relational, "movies", []string{"id"}))
	require.NoError(t, s.AppendRow(ctx, "movies", []value.Scalar{value.NewInt64(1)}))
	require.NoError(t, s.CreateTable(store.Relational, "ratings", []string{"movie_id"}))
	require.NoError(t, s.AppendRow(ctx, "ratings", []value.Scalar{value.NewText("x")}))

	sink := &CollectingSink{}
	require.NoError(t, e.Join(ctx, "movies", "ratings", "id=movie_id", sink))
	require.Len(t, sink.Diagnostics, 1)
}
