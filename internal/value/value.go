// Package value implements the scalar value and mixed-key model shared by
// both storage modes: a tagged union over {Int64, Float64, Text}, literal
// parsing, type coercion, and the mixed-type total order the document mode
// uses for every comparison and sort (spec §4.A).
package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind tags the variant held by a Scalar.
type Kind int

const (
	Int64 Kind = iota
	Float64
	Text
)

func (k Kind) String() string {
	switch k {
	case Int64:
		return "int64"
	case Float64:
		return "float64"
	case Text:
		return "text"
	default:
		return "unknown"
	}
}

// TypeTag renders the bit-exact schema sidecar strings from spec §6 —
// the compatibility surface with existing `schema.txt` data.
func (k Kind) TypeTag() string {
	switch k {
	case Int64:
		return "<class 'int'>"
	case Float64:
		return "<class 'float'>"
	default:
		return "<class 'str'>"
	}
}

// ParseTypeTag parses a schema.txt type tag back into a Kind.
func ParseTypeTag(tag string) (Kind, error) {
	switch tag {
	case "<class 'int'>":
		return Int64, nil
	case "<class 'float'>":
		return Float64, nil
	case "<class 'str'>":
		return Text, nil
	default:
		return Text, fmt.Errorf("unrecognized type tag %q", tag)
	}
}

// Scalar is a tagged union over Int64, Float64 and Text.
type Scalar struct {
	Kind  Kind
	Int   int64
	Float float64
	Str   string
}

// NewInt64 builds an Int64 scalar.
func NewInt64(v int64) Scalar { return Scalar{Kind: Int64, Int: v} }

// NewFloat64 builds a Float64 scalar.
func NewFloat64(v float64) Scalar { return Scalar{Kind: Float64, Float: v} }

// NewText builds a Text scalar.
func NewText(v string) Scalar { return Scalar{Kind: Text, Str: v} }

// Zero returns the zero value of the given kind.
func Zero(k Kind) Scalar {
	switch k {
	case Int64:
		return NewInt64(0)
	case Float64:
		return NewFloat64(0)
	default:
		return NewText("")
	}
}

// String renders the scalar the way it is serialized to CSV/JSON text.
func (s Scalar) String() string {
	switch s.Kind {
	case Int64:
		return strconv.FormatInt(s.Int, 10)
	case Float64:
		return strconv.FormatFloat(s.Float, 'f', -1, 64)
	default:
		return s.Str
	}
}

// AsFloat returns the scalar's numeric value promoted to float64. Text
// scalars that do not parse as numbers return 0, matching the
// empty-text-to-zero rule extended to any non-numeric text used where a
// number is demanded.
func (s Scalar) AsFloat() float64 {
	switch s.Kind {
	case Int64:
		return float64(s.Int)
	case Float64:
		return s.Float
	default:
		f, err := strconv.ParseFloat(s.Str, 64)
		if err != nil {
			return 0
		}
		return f
	}
}

// MarshalJSON renders the scalar as a JSON number or string, letting
// document chunks serialize as plain JSON objects (spec §6).
func (s Scalar) MarshalJSON() ([]byte, error) {
	switch s.Kind {
	case Int64:
		return json.Marshal(s.Int)
	case Float64:
		data, err := json.Marshal(s.Float)
		if err != nil {
			return nil, err
		}
		// Keep a dot on whole floats so UnmarshalJSON reads them back as Float64.
		if !bytes.ContainsAny(data, ".eE") {
			data = append(data, ".0"...)
		}
		return data, nil
	default:
		return json.Marshal(s.Str)
	}
}

// UnmarshalJSON recovers the Int64/Float64/Text distinction JSON's number
// type otherwise erases, by inspecting the raw token.
func (s *Scalar) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		*s = NewText("")
		return nil
	}
	if trimmed[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return fmt.Errorf("unmarshal text scalar: %w", err)
		}
		*s = NewText(str)
		return nil
	}
	token := string(trimmed)
	if strings.ContainsAny(token, ".eE") {
		f, err := strconv.ParseFloat(token, 64)
		if err != nil {
			return fmt.Errorf("unmarshal float scalar %q: %w", token, err)
		}
		*s = NewFloat64(f)
		return nil
	}
	n, err := strconv.ParseInt(token, 10, 64)
	if err != nil {
		return fmt.Errorf("unmarshal int scalar %q: %w", token, err)
	}
	*s = NewInt64(n)
	return nil
}

// isDigits reports whether token is non-empty and consists solely of
// ASCII digits.
func isDigits(token string) bool {
	if token == "" {
		return false
	}
	for _, r := range token {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// isFloatLiteral reports whether token is digits, a single interior dot,
// then more digits — spec §3's "digits with exactly one interior dot".
func isFloatLiteral(token string) bool {
	dot := strings.IndexByte(token, '.')
	if dot <= 0 || dot == len(token)-1 {
		return false
	}
	if strings.IndexByte(token[dot+1:], '.') != -1 {
		return false
	}
	return isDigits(token[:dot]) && isDigits(token[dot+1:])
}

// ParseLiteral chooses Int64 if the token is all digits, Float64 if it is
// digits with exactly one interior dot, Text otherwise (spec §3).
func ParseLiteral(token string) Scalar {
	if isDigits(token) {
		if n, err := strconv.ParseInt(token, 10, 64); err == nil {
			return NewInt64(n)
		}
	}
	if isFloatLiteral(token) {
		if f, err := strconv.ParseFloat(token, 64); err == nil {
			return NewFloat64(f)
		}
	}
	return NewText(token)
}

// Coerce converts s into the target kind, applying the empty-text-to-zero
// rule: empty Text coerces to 0 / 0.0 when a typed slot demands a number.
func (s Scalar) Coerce(k Kind) Scalar {
	if s.Kind == k {
		return s
	}
	switch k {
	case Int64:
		if s.Kind == Text {
			if s.Str == "" {
				return NewInt64(0)
			}
			parsed := ParseLiteral(s.Str)
			if parsed.Kind == Text {
				return NewInt64(0)
			}
			return parsed.Coerce(Int64)
		}
		return NewInt64(int64(s.Float))
	case Float64:
		if s.Kind == Text {
			if s.Str == "" {
				return NewFloat64(0)
			}
			parsed := ParseLiteral(s.Str)
			if parsed.Kind == Text {
				return NewFloat64(0)
			}
			return parsed.Coerce(Float64)
		}
		return NewFloat64(float64(s.Int))
	default:
		return NewText(s.String())
	}
}

// CompareSameKind orders two scalars of identical kind naturally. Callers
// (the relational predicate engine and relational sort) are responsible
// for coercing both sides to a shared declared column type first.
func CompareSameKind(a, b Scalar) int {
	switch a.Kind {
	case Int64:
		switch {
		case a.Int < b.Int:
			return -1
		case a.Int > b.Int:
			return 1
		default:
			return 0
		}
	case Float64:
		switch {
		case a.Float < b.Float:
			return -1
		case a.Float > b.Float:
			return 1
		default:
			return 0
		}
	default:
		return strings.Compare(a.Str, b.Str)
	}
}

// Category distinguishes the two halves of the mixed-key total order:
// Text sorts before all numerics.
type Category int

const (
	CategoryText Category = iota
	CategoryNumeric
)

// MixedKey pairs a category with the scalar driving comparison within it
// (spec §3 "Mixed key").
type MixedKey struct {
	Category Category
	Value    Scalar
}

// Mix wraps a scalar into the mixed-key space: Text scalars land in
// CategoryText, Int64/Float64 scalars land in CategoryNumeric.
func Mix(s Scalar) MixedKey {
	if s.Kind == Text {
		return MixedKey{Category: CategoryText, Value: s}
	}
	return MixedKey{Category: CategoryNumeric, Value: s}
}

// Compare implements the total order on mixed keys: Text sorts before all
// numerics; within a category values compare naturally.
func Compare(a, b MixedKey) int {
	if a.Category != b.Category {
		if a.Category < b.Category {
			return -1
		}
		return 1
	}
	if a.Category == CategoryText {
		return strings.Compare(a.Value.Str, b.Value.Str)
	}
	af, bf := a.Value.AsFloat(), b.Value.AsFloat()
	switch {
	case af < bf:
		return -1
	case af > bf:
		return 1
	default:
		return 0
	}
}

// Equal reports mixed-key equality, used by group detection.
func Equal(a, b MixedKey) bool { return Compare(a, b) == 0 }

// addNumeric adds two numeric scalars, staying Int64 when both summands
// are Int64 and promoting to Float64 otherwise.
func addNumeric(a, b Scalar) Scalar {
	if a.Kind == Int64 && b.Kind == Int64 {
		return NewInt64(a.Int + b.Int)
	}
	return NewFloat64(a.AsFloat() + b.AsFloat())
}

// AddKeys implements the additive monoid used by SUM/AVG (spec §4.A):
// adding two same-category keys preserves the category and adds the
// scalars (Text + Text concatenates, matching the polymorphic `+` the
// original Python engine relies on); adding across categories drops the
// Text summand and the result is numeric.
func AddKeys(a, b MixedKey) MixedKey {
	if a.Category == b.Category {
		if a.Category == CategoryText {
			return MixedKey{Category: CategoryText, Value: NewText(a.Value.Str + b.Value.Str)}
		}
		return MixedKey{Category: CategoryNumeric, Value: addNumeric(a.Value, b.Value)}
	}
	if a.Category == CategoryText {
		return MixedKey{Category: CategoryNumeric, Value: b.Value}
	}
	return MixedKey{Category: CategoryNumeric, Value: a.Value}
}

// KeyValue extracts the scalar a mixed key carries, the inverse of Mix for
// the purposes of emitting an aggregate's final value.
func KeyValue(k MixedKey) Scalar { return k.Value }

// Max returns the larger of two mixed keys under Compare.
func Max(a, b MixedKey) MixedKey {
	if Compare(a, b) >= 0 {
		return a
	}
	return b
}

// Min returns the smaller of two mixed keys under Compare.
func Min(a, b MixedKey) MixedKey {
	if Compare(a, b) <= 0 {
		return a
	}
	return b
}
