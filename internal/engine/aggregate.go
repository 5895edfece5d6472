package engine

import (
	"fmt"
	"math"

	"github.com/allinbits/labs/projects/queryengine/internal/errkind"
	"github.com/allinbits/labs/projects/queryengine/internal/value"
)

// AggFn is one of the five aggregate functions spec §4.E defines.
type AggFn string

const (
	CountFn AggFn = "count"
	SumFn   AggFn = "sum"
	AvgFn   AggFn = "avg"
	MaxFn   AggFn = "max"
	MinFn   AggFn = "min"
)

// ParseAggFn validates an aggregate function name from the query
// grammar (`<fn> ∈ max, min, sum, avg, count`, spec §6).
func ParseAggFn(s string) (AggFn, error) {
	switch AggFn(s) {
	case CountFn, SumFn, AvgFn, MaxFn, MinFn:
		return AggFn(s), nil
	default:
		return "", fmt.Errorf("%w: unrecognized aggregate function %q", errkind.ErrMalformedQuery, s)
	}
}

// Accumulator implements the accumulator table from spec §4.E: init,
// update and finalize for count/sum/avg/max/min, operating in the
// mixed-key space so the same code serves both storage modes.
type Accumulator struct {
	fn          AggFn
	count       int64
	acc         value.MixedKey
	initialized bool
}

// NewAccumulator builds a fresh accumulator for fn.
func NewAccumulator(fn AggFn) *Accumulator {
	return &Accumulator{fn: fn}
}

// Update folds one value into the accumulator.
func (a *Accumulator) Update(v value.Scalar) {
	a.count++
	k := value.Mix(v)
	switch a.fn {
	case CountFn:
		// count needs only the running count, tracked above.
	case SumFn, AvgFn:
		if !a.initialized {
			a.acc = value.Mix(value.NewInt64(0))
			a.initialized = true
		}
		a.acc = value.AddKeys(a.acc, k)
	case MaxFn:
		if !a.initialized {
			a.acc = k
			a.initialized = true
		} else {
			a.acc = value.Max(a.acc, k)
		}
	case MinFn:
		if !a.initialized {
			a.acc = k
			a.initialized = true
		} else {
			a.acc = value.Min(a.acc, k)
		}
	}
}

// Finalize produces the aggregate's reported value. A group whose
// accumulator never saw a value emits numeric 0 (spec §9 open question,
// resolved in DESIGN.md).
func (a *Accumulator) Finalize() value.Scalar {
	switch a.fn {
	case CountFn:
		return value.NewInt64(a.count)
	case SumFn:
		if !a.initialized {
			return value.NewInt64(0)
		}
		return value.KeyValue(a.acc)
	case AvgFn:
		if !a.initialized || a.count == 0 {
			return value.NewInt64(0)
		}
		avg := value.KeyValue(a.acc).AsFloat() / float64(a.count)
		return value.NewFloat64(math.Round(avg*100) / 100)
	case MaxFn, MinFn:
		if !a.initialized {
			return value.NewInt64(0)
		}
		return value.KeyValue(a.acc)
	default:
		return value.NewInt64(0)
	}
}

// AggregateFieldName is the output column name for an aggregate result,
// e.g. "avg(v)", matching the original's f"{fn}({field})".
func AggregateFieldName(fn AggFn, field string) string {
	return string(fn) + "(" + field + ")"
}
