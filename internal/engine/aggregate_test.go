package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/allinbits/labs/projects/queryengine/internal/value"
)

func TestAccumulatorSum(t *testing.T) {
	acc := NewAccumulator(SumFn)
	acc.Update(value.NewInt64(2))
	acc.Update(value.NewInt64(3))
	require.Equal(t, value.NewInt64(5), acc.Finalize())
}

func TestAccumulatorAvgRounding(t *testing.T) {
	acc := NewAccumulator(AvgFn)
	acc.Update(value.NewInt64(1))
	acc.Update(value.NewInt64(2))
	acc.Update(value.NewInt64(2))
	got := acc.Finalize()
	require.Equal(t, value.Float64, got.Kind)
	require.InDelta(t, 1.67, got.Float, 0.001)
}

func TestAccumulatorEmptyEmitsNumericZero(t *testing.T) {
	acc := NewAccumulator(SumFn)
	require.Equal(t, value.NewInt64(0), acc.Finalize())

	acc = NewAccumulator(MaxFn)
	require.Equal(t, value.NewInt64(0), acc.Finalize())

	acc = NewAccumulator(AvgFn)
	require.Equal(t, value.NewInt64(0), acc.Finalize())
}

func TestAccumulatorCount(t *testing.T) {
	acc := NewAccumulator(CountFn)
	acc.Update(value.NewText("a"))
	acc.Update(value.NewInt64(4))
	require.Equal(t, value.NewInt64(2), acc.Finalize())
}

func TestAccumulatorMaxMixedCategory(t *testing.T) {
	acc := NewAccumulator(MaxFn)
	acc.Update(value.NewText("zzz"))
	acc.Update(value.NewInt64(5))
	require.Equal(t, value.NewInt64(5), acc.Finalize())
}

func TestParseAggFnRejectsUnknown(t *testing.T) {
	_, err := ParseAggFn("median")
	require.Error(t, err)
}

func TestAggregateFieldName(t *testing.T) {
	require.Equal(t, "avg(rating)", AggregateFieldName(AvgFn, "rating"))
}
