package predicate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/allinbits/labs/projects/queryengine/internal/value"
)

func TestParse(t *testing.T) {
	cond, err := Parse("age>=18")
	require.NoError(t, err)
	require.Equal(t, "age", cond.Field)
	require.Equal(t, Ge, cond.Op)
	require.Equal(t, "18", cond.Literal)
}

func TestParseMalformed(t *testing.T) {
	_, err := Parse("not a condition")
	require.Error(t, err)
}

func TestEvalRowCoercesLiteralToColumnType(t *testing.T) {
	cond, err := Parse("year>2000")
	require.NoError(t, err)

	fields := []string{"title", "year"}
	values := []value.Scalar{value.NewText("Arrival"), value.NewInt64(2016)}

	matched, err := EvalRow(cond, fields, values)
	require.NoError(t, err)
	require.True(t, matched)
}

func TestEvalRowMissingFieldIsFalse(t *testing.T) {
	cond, err := Parse("missing=1")
	require.NoError(t, err)
	matched, err := EvalRow(cond, []string{"id"}, []value.Scalar{value.NewInt64(1)})
	require.NoError(t, err)
	require.False(t, matched)
}

func TestEvalDocumentTypeMismatchIsFalse(t *testing.T) {
	cond, err := Parse("k=5")
	require.NoError(t, err)
	doc := map[string]value.Scalar{"k": value.NewText("5")}
	require.False(t, EvalDocument(cond, doc))
}

func TestEvalDocumentIntFloatPromotion(t *testing.T) {
	cond, err := Parse("k=5")
	require.NoError(t, err)
	doc := map[string]value.Scalar{"k": value.NewFloat64(5.0)}
	require.True(t, EvalDocument(cond, doc))
}

func TestEvalDocumentMissingFieldIsFalse(t *testing.T) {
	cond, err := Parse("k=5")
	require.NoError(t, err)
	require.False(t, EvalDocument(cond, map[string]value.Scalar{}))
}

func TestParseJoin(t *testing.T) {
	jc, err := ParseJoin("id=rid")
	require.NoError(t, err)
	require.Equal(t, "id", jc.LeftField)
	require.Equal(t, Eq, jc.Op)
	require.Equal(t, "rid", jc.RightField)
}
