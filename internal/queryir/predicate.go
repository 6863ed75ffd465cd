package queryir

import (
	"reflect"
	"strings"

	"github.com/roach88/qdsl/internal/ir"
)

// Predicate is a boolean filter expression.
//
// This is a sealed interface - only types in this package implement it.
// A nil Predicate means "no filter". Predicate types:
//   - *Comparison: left <op> right, or a null check
//   - *Range: expr BETWEEN low AND high
//   - *Membership: expr [NOT] IN (values | subquery)
//   - *Conjunction: left AND right
//   - *Disjunction: left OR right
//   - *Negation: NOT inner
//
// Nodes are immutable; combining predicates builds new nodes and never
// modifies the operands, so a tree is always acyclic.
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// CompareOp is a comparison operator.
type CompareOp string

const (
	OpEq         CompareOp = "eq"
	OpNe         CompareOp = "ne"
	OpLt         CompareOp = "lt"
	OpLte        CompareOp = "lte"
	OpGt         CompareOp = "gt"
	OpGte        CompareOp = "gte"
	OpLike       CompareOp = "like"
	OpStartsWith CompareOp = "startsWith"
	OpIsNull     CompareOp = "isNull"
	OpIsNotNull  CompareOp = "isNotNull"
)

// Comparison compares Left with Right. Right is the zero Expr for
// OpIsNull and OpIsNotNull.
type Comparison struct {
	Left  Expr
	Op    CompareOp
	Right Expr
	err   error
}

func (*Comparison) predicateNode() {}

// Range is Expr BETWEEN Low AND High, both bounds inclusive.
type Range struct {
	Expr      Expr
	Low, High Expr
	err       error
}

func (*Range) predicateNode() {}

// Membership tests Expr against a value list or a single-column subquery.
// An empty value list matches no row (or every row when Negated).
type Membership struct {
	Expr    Expr
	Values  []Expr
	Query   *QueryDescriptor
	Negated bool
	err     error
}

func (*Membership) predicateNode() {}

// Conjunction is Left AND Right.
type Conjunction struct {
	Left, Right Predicate
}

func (*Conjunction) predicateNode() {}

// Disjunction is Left OR Right.
type Disjunction struct {
	Left, Right Predicate
}

func (*Disjunction) predicateNode() {}

// Negation is NOT Inner.
type Negation struct {
	Inner Predicate
}

func (*Negation) predicateNode() {}

// isAbsent treats both a nil interface and a typed nil pointer as absent.
func isAbsent(p Predicate) bool {
	if p == nil {
		return true
	}
	v := reflect.ValueOf(p)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

// And combines two predicates. An absent operand is dropped: And(p, nil)
// returns p unchanged and And(nil, nil) returns nil.
func And(left, right Predicate) Predicate {
	switch {
	case isAbsent(left) && isAbsent(right):
		return nil
	case isAbsent(right):
		return left
	case isAbsent(left):
		return right
	}
	return &Conjunction{Left: left, Right: right}
}

// Or combines two predicates with the same absence rules as And.
func Or(left, right Predicate) Predicate {
	switch {
	case isAbsent(left) && isAbsent(right):
		return nil
	case isAbsent(right):
		return left
	case isAbsent(left):
		return right
	}
	return &Disjunction{Left: left, Right: right}
}

// Not negates p. Not(nil) is nil.
func Not(p Predicate) Predicate {
	if isAbsent(p) {
		return nil
	}
	return &Negation{Inner: p}
}

// AllOf folds preds with And, left to right. Absent entries are skipped.
func AllOf(preds ...Predicate) Predicate {
	var acc Predicate
	for _, p := range preds {
		acc = And(acc, p)
	}
	return acc
}

// AnyOf folds preds with Or, left to right. Absent entries are skipped and
// the result is nil (no filter) when every entry is absent.
func AnyOf(preds ...Predicate) Predicate {
	var acc Predicate
	for _, p := range preds {
		acc = Or(acc, p)
	}
	return acc
}

// PredicateErr returns the first construction error in the tree rooted at
// p. Subqueries are not descended into; their errors surface when the
// enclosing descriptor is built.
func PredicateErr(p Predicate) error {
	switch pred := p.(type) {
	case *Comparison:
		return pred.err
	case *Range:
		return pred.err
	case *Membership:
		return pred.err
	case *Conjunction:
		if err := PredicateErr(pred.Left); err != nil {
			return err
		}
		return PredicateErr(pred.Right)
	case *Disjunction:
		if err := PredicateErr(pred.Left); err != nil {
			return err
		}
		return PredicateErr(pred.Right)
	case *Negation:
		return PredicateErr(pred.Inner)
	}
	return nil
}

func (e Expr) compare(op CompareOp, other any) Predicate {
	r := toExpr(string(op), other)
	c := &Comparison{Left: e, Op: op, Right: r}
	if c.err = firstErr(e, r); c.err != nil {
		return c
	}
	switch {
	case isNullLiteral(r):
		c.err = unsupported(CodeOperandType, string(op), "comparison with null; use IsNull or IsNotNull")
	case !compatible(e.typ, r.typ):
		c.err = unsupported(CodeOperandType, string(op), "cannot compare %s with %s", e.typ, r.typ)
	case op != OpEq && op != OpNe && (!e.typ.isOrdered() || !r.typ.isOrdered()):
		c.err = unsupported(CodeOperandType, string(op), "not applicable to %s", e.typ)
	}
	return c
}

// Eq is e = other. other may be a Go literal, an Expr or a subquery.
func (e Expr) Eq(other any) Predicate { return e.compare(OpEq, other) }

// Ne is e <> other.
func (e Expr) Ne(other any) Predicate { return e.compare(OpNe, other) }

// Lt is e < other.
func (e Expr) Lt(other any) Predicate { return e.compare(OpLt, other) }

// Lte is e <= other.
func (e Expr) Lte(other any) Predicate { return e.compare(OpLte, other) }

// Gt is e > other.
func (e Expr) Gt(other any) Predicate { return e.compare(OpGt, other) }

// Gte is e >= other.
func (e Expr) Gte(other any) Predicate { return e.compare(OpGte, other) }

// Between is low <= e <= high.
func (e Expr) Between(low, high any) Predicate {
	lo, hi := toExpr("between", low), toExpr("between", high)
	r := &Range{Expr: e, Low: lo, High: hi}
	if r.err = firstErr(e, lo, hi); r.err != nil {
		return r
	}
	switch {
	case !e.typ.isOrdered():
		r.err = unsupported(CodeOperandType, "between", "not applicable to %s", e.typ)
	case isNullLiteral(lo) || isNullLiteral(hi):
		r.err = unsupported(CodeOperandType, "between", "bounds cannot be null")
	case !compatible(e.typ, lo.typ) || !compatible(e.typ, hi.typ):
		r.err = unsupported(CodeOperandType, "between", "bounds %s and %s do not match %s", lo.typ, hi.typ, e.typ)
	}
	return r
}

// In tests membership in a list of values. A single subquery argument
// (Subquery or a QueryBuilder) is rendered as IN (SELECT ...). Slices are
// flattened, so In([]int{1, 2}) and In(1, 2) are equivalent.
func (e Expr) In(values ...any) Predicate { return e.membership("in", false, values) }

// NotIn is the negation of In.
func (e Expr) NotIn(values ...any) Predicate { return e.membership("notIn", true, values) }

func (e Expr) membership(op string, negated bool, values []any) Predicate {
	m := &Membership{Expr: e, Negated: negated}
	if m.err = e.err; m.err != nil {
		return m
	}

	if len(values) == 1 {
		sub := toSubquery(values[0])
		if sub.err != nil {
			m.err = sub.err
			return m
		}
		if sq, ok := sub.node.(*ScalarQuery); ok {
			m.Query = sq.Query
			if !compatible(e.typ, sub.typ) {
				m.err = unsupported(CodeOperandType, op, "cannot compare %s with subquery of %s", e.typ, sub.typ)
			}
			return m
		}
	}

	for _, v := range values {
		lit, err := ir.FromGo(v)
		if arr, isArray := lit.(ir.Array); err == nil && isArray {
			for _, elem := range arr {
				m.Values = append(m.Values, toExpr(op, elem))
			}
			continue
		}
		m.Values = append(m.Values, toExpr(op, v))
	}
	for _, v := range m.Values {
		switch {
		case v.err != nil:
			m.err = v.err
		case isNullLiteral(v):
			m.err = unsupported(CodeOperandType, op, "null in value list; use IsNull")
		case !compatible(e.typ, v.typ):
			m.err = unsupported(CodeOperandType, op, "cannot compare %s with %s", e.typ, v.typ)
		}
		if m.err != nil {
			break
		}
	}
	return m
}

// toSubquery returns v as an expression when it is a subquery, or the zero
// Expr otherwise.
func toSubquery(v any) Expr {
	switch val := v.(type) {
	case QueryBuilder:
		return Subquery(val)
	case Expr:
		if _, ok := val.node.(*ScalarQuery); ok || val.err != nil {
			return val
		}
	}
	return Expr{}
}

// IsNull tests e for NULL.
func (e Expr) IsNull() Predicate {
	return &Comparison{Left: e, Op: OpIsNull, err: e.err}
}

// IsNotNull tests e for a non-NULL value.
func (e Expr) IsNotNull() Predicate {
	return &Comparison{Left: e, Op: OpIsNotNull, err: e.err}
}

// Like matches e against a SQL LIKE pattern (% and _ wildcards).
func (e Expr) Like(pattern string) Predicate {
	return e.textMatch(OpLike, pattern)
}

// StartsWith matches strings beginning with prefix. Wildcards in prefix are
// matched literally.
func (e Expr) StartsWith(prefix string) Predicate {
	return e.textMatch(OpStartsWith, prefix)
}

func (e Expr) textMatch(op CompareOp, s string) Predicate {
	c := &Comparison{Left: e, Op: op, Right: Value(s), err: e.err}
	if c.err == nil && !e.typ.isString() {
		c.err = unsupported(CodeOperandType, string(op), "not applicable to %s", e.typ)
	}
	return c
}

// EscapeLike escapes LIKE wildcards in s using backslash as the escape
// character.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
