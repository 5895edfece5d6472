// Package predicate implements the single-comparison condition language
// from spec §4.C: `field OP literal` where OP is one of =, !=, >, <, >=,
// <=, evaluated against either a relational row (via its schema) or a
// document.
package predicate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/allinbits/labs/projects/queryengine/internal/errkind"
	"github.com/allinbits/labs/projects/queryengine/internal/value"
)

// Op is one of the six comparison operators spec §4.C allows.
type Op int

const (
	Eq Op = iota
	Ne
	Gt
	Lt
	Ge
	Le
)

func (o Op) String() string {
	switch o {
	case Eq:
		return "="
	case Ne:
		return "!="
	case Gt:
		return ">"
	case Lt:
		return "<"
	case Ge:
		return ">="
	case Le:
		return "<="
	default:
		return "?"
	}
}

// Condition is a parsed `field OP literal` clause.
type Condition struct {
	Field   string
	Op      Op
	Literal string
}

// condRe matches the longest operator token first so `>=`/`<=`/`!=` are
// not mis-split into `>`/`<`/`!` plus `=`.
var condRe = regexp.MustCompile(`^\s*([A-Za-z0-9_]+)\s*(!=|>=|<=|=|>|<)\s*(.*?)\s*$`)

// Parse reads a condition string of the form `field OP literal`.
func Parse(cond string) (Condition, error) {
	m := condRe.FindStringSubmatch(cond)
	if m == nil {
		return Condition{}, fmt.Errorf("%w: condition %q does not parse", errkind.ErrMalformedQuery, cond)
	}
	op, err := parseOp(m[2])
	if err != nil {
		return Condition{}, err
	}
	return Condition{Field: m[1], Op: op, Literal: m[3]}, nil
}

func parseOp(token string) (Op, error) {
	switch token {
	case "=":
		return Eq, nil
	case "!=":
		return Ne, nil
	case ">":
		return Gt, nil
	case "<":
		return Lt, nil
	case ">=":
		return Ge, nil
	case "<=":
		return Le, nil
	default:
		return 0, fmt.Errorf("%w: unrecognized operator %q", errkind.ErrMalformedQuery, token)
	}
}

// apply applies Op to the sign of a natural-order comparison
// (negative, zero, positive).
func (o Op) apply(cmp int) bool {
	switch o {
	case Eq:
		return cmp == 0
	case Ne:
		return cmp != 0
	case Gt:
		return cmp > 0
	case Lt:
		return cmp < 0
	case Ge:
		return cmp >= 0
	case Le:
		return cmp <= 0
	default:
		return false
	}
}

// EvalRow evaluates cond against a relational row, coercing the literal
// to the declared type of the field (spec §4.C step 3).
func EvalRow(cond Condition, fields []string, values []value.Scalar) (bool, error) {
	idx := -1
	for i, f := range fields {
		if f == cond.Field {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, nil
	}
	lhs := values[idx]
	rhs := value.ParseLiteral(cond.Literal).Coerce(lhs.Kind)
	return cond.Op.apply(value.CompareSameKind(lhs, rhs)), nil
}

// EvalDocument evaluates cond against a document. Missing field is
// false; a Text/numeric type mismatch is false; Int vs Float promotes
// both to Float and compares (spec §4.C step 4).
func EvalDocument(cond Condition, doc map[string]value.Scalar) bool {
	lhs, ok := doc[cond.Field]
	if !ok {
		return false
	}
	rhs := value.ParseLiteral(cond.Literal)

	if lhs.Kind == value.Text || rhs.Kind == value.Text {
		if lhs.Kind != rhs.Kind {
			return false
		}
		return cond.Op.apply(strings.Compare(lhs.Str, rhs.Str))
	}

	cmp := 0
	switch {
	case lhs.AsFloat() < rhs.AsFloat():
		cmp = -1
	case lhs.AsFloat() > rhs.AsFloat():
		cmp = 1
	}
	return cond.Op.apply(cmp)
}

// JoinCondition is a parsed `leftField OP rightField` join clause (spec
// §4.E join), distinct from Condition because both sides name fields
// rather than a field and a literal.
type JoinCondition struct {
	LeftField  string
	Op         Op
	RightField string
}

var joinCondRe = regexp.MustCompile(`^\s*([A-Za-z0-9_]+)\s*(!=|>=|<=|=|>|<)\s*([A-Za-z0-9_]+)\s*$`)

// ParseJoin reads a join condition of the form `leftField OP rightField`.
func ParseJoin(cond string) (JoinCondition, error) {
	m := joinCondRe.FindStringSubmatch(cond)
	if m == nil {
		return JoinCondition{}, fmt.Errorf("%w: join condition %q does not parse", errkind.ErrMalformedQuery, cond)
	}
	op, err := parseOp(m[2])
	if err != nil {
		return JoinCondition{}, err
	}
	return JoinCondition{LeftField: m[1], Op: op, RightField: m[3]}, nil
}

// Substitute rewrites a condition's literal, used by join to turn
// `lf OP rf` into `lf OP <literal of rf's value>` once the right-hand
// record's value for rf is known (spec §4.E join).
func Substitute(cond Condition, literal string) Condition {
	return Condition{Field: cond.Field, Op: cond.Op, Literal: literal}
}
