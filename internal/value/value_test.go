package value

import (
	"sort"
	"testing"
)

func TestParseLiteral(t *testing.T) {
	cases := []struct {
		token string
		kind  Kind
	}{
		{"42", Int64},
		{"3.14", Float64},
		{"hello", Text},
		{"", Text},
		{"3.", Text},
		{".5", Text},
		{"1.2.3", Text},
		{"-5", Text}, // no sign handling: leading '-' is not a digit
	}
	for _, c := range cases {
		got := ParseLiteral(c.token)
		if got.Kind != c.kind {
			t.Errorf("ParseLiteral(%q).Kind = %v, want %v", c.token, got.Kind, c.kind)
		}
	}
}

func TestScalarCoerceEmptyTextToZero(t *testing.T) {
	empty := NewText("")
	if got := empty.Coerce(Int64); got.Int != 0 {
		t.Errorf("empty text coerced to Int64 = %d, want 0", got.Int)
	}
	if got := empty.Coerce(Float64); got.Float != 0 {
		t.Errorf("empty text coerced to Float64 = %f, want 0", got.Float)
	}
}

func TestScalarCoerceNumericText(t *testing.T) {
	got := NewText("7").Coerce(Int64)
	if got.Kind != Int64 || got.Int != 7 {
		t.Errorf("Coerce(%q, Int64) = %+v, want Int64(7)", "7", got)
	}
	gotF := NewText("2.5").Coerce(Float64)
	if gotF.Kind != Float64 || gotF.Float != 2.5 {
		t.Errorf("Coerce(%q, Float64) = %+v, want Float64(2.5)", "2.5", gotF)
	}
}

// TestMixedKeyTotalOrder reproduces the S4 scenario from spec §8:
// {k:"a"}, {k:1}, {k:"b"}, {k:0.5} sorted ascending by k yields
// "a", "b", 0.5, 1 — Text before all numerics, natural order within each.
func TestMixedKeyTotalOrder(t *testing.T) {
	keys := []MixedKey{
		Mix(NewText("a")),
		Mix(NewInt64(1)),
		Mix(NewText("b")),
		Mix(NewFloat64(0.5)),
	}
	sort.SliceStable(keys, func(i, j int) bool {
		return Compare(keys[i], keys[j]) < 0
	})

	want := []string{"a", "b", "0.5", "1"}
	for i, k := range keys {
		if got := KeyValue(k).String(); got != want[i] {
			t.Errorf("position %d = %q, want %q", i, got, want[i])
		}
	}
}

func TestAddKeysSameCategoryNumeric(t *testing.T) {
	sum := AddKeys(Mix(NewInt64(2)), Mix(NewInt64(3)))
	if sum.Category != CategoryNumeric || sum.Value.Kind != Int64 || sum.Value.Int != 5 {
		t.Errorf("AddKeys(2, 3) = %+v, want Int64(5)", sum)
	}

	mixed := AddKeys(Mix(NewInt64(2)), Mix(NewFloat64(1.5)))
	if mixed.Value.Kind != Float64 || mixed.Value.Float != 3.5 {
		t.Errorf("AddKeys(2, 1.5) = %+v, want Float64(3.5)", mixed)
	}
}

func TestAddKeysCrossCategoryDropsText(t *testing.T) {
	sum := AddKeys(Mix(NewText("ignored")), Mix(NewInt64(10)))
	if sum.Category != CategoryNumeric || sum.Value.Int != 10 {
		t.Errorf("AddKeys(text, 10) = %+v, want Numeric(10)", sum)
	}

	sum2 := AddKeys(Mix(NewInt64(10)), Mix(NewText("ignored")))
	if sum2.Category != CategoryNumeric || sum2.Value.Int != 10 {
		t.Errorf("AddKeys(10, text) = %+v, want Numeric(10)", sum2)
	}
}

func TestTypeTagRoundTrip(t *testing.T) {
	for _, k := range []Kind{Int64, Float64, Text} {
		tag := k.TypeTag()
		got, err := ParseTypeTag(tag)
		if err != nil {
			t.Fatalf("ParseTypeTag(%q) error: %v", tag, err)
		}
		if got != k {
			t.Errorf("round trip %v -> %q -> %v", k, tag, got)
		}
	}
}
