package queryir

import "strings"

// Policy selects how a PredicateBuilder combines its clauses.
type Policy int

const (
	// MatchAll combines present clauses with And.
	MatchAll Policy = iota

	// MatchAny combines present clauses with Or. When every clause is
	// absent the result is nil, which means no filter (every row matches),
	// the same as MatchAll with no clauses.
	MatchAny
)

func (p Policy) String() string {
	if p == MatchAny {
		return "any"
	}
	return "all"
}

// PredicateBuilder accumulates optional clauses into one predicate.
//
// Absent clauses (nil predicates) contribute nothing, so callers can pass
// the result of When for every optional parameter without branching:
//
//	b := queryir.NewPredicateBuilder(queryir.MatchAll)
//	b.Add(queryir.When(username, m.username.Eq))
//	b.Add(queryir.When(age, m.age.Eq))
//	where := b.Predicate() // nil when both parameters are absent
//
// A PredicateBuilder is a mutable accumulator for a single goroutine. The
// predicates it returns are immutable.
type PredicateBuilder struct {
	policy Policy
	pred   Predicate
}

// NewPredicateBuilder returns an empty builder with the given policy.
func NewPredicateBuilder(policy Policy) *PredicateBuilder {
	return &PredicateBuilder{policy: policy}
}

// Add combines each present predicate into the accumulated one.
func (b *PredicateBuilder) Add(preds ...Predicate) *PredicateBuilder {
	for _, p := range preds {
		if b.policy == MatchAny {
			b.pred = Or(b.pred, p)
		} else {
			b.pred = And(b.pred, p)
		}
	}
	return b
}

// Predicate returns the accumulated predicate, nil when nothing was added.
func (b *PredicateBuilder) Predicate() Predicate {
	return b.pred
}

// HasValue reports whether at least one clause was present.
func (b *PredicateBuilder) HasValue() bool {
	return !isAbsent(b.pred)
}

// Policy returns the builder's combination policy.
func (b *PredicateBuilder) Policy() Policy {
	return b.policy
}

// Combine folds preds with the given policy in one call.
func Combine(policy Policy, preds ...Predicate) Predicate {
	return NewPredicateBuilder(policy).Add(preds...).Predicate()
}

// When returns fn(*v), or nil when v is nil. It turns an optional parameter
// into an optional clause:
//
//	queryir.When(ageCond, m.age.Eq)
func When[T any](v *T, fn func(any) Predicate) Predicate {
	if v == nil {
		return nil
	}
	return fn(*v)
}

// WhenText is When for string parameters where both nil and blank mean
// absent.
func WhenText(v *string, fn func(any) Predicate) Predicate {
	if v == nil || strings.TrimSpace(*v) == "" {
		return nil
	}
	return fn(*v)
}
