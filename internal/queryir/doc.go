// Package queryir provides typed query descriptors and composable predicates.
//
// The package is a pure description layer: nothing in it performs I/O.
// Descriptors are handed to an execution collaborator (see querysql and
// store) which renders them to SQL, runs them and returns rows that the
// mapper package converts into typed results.
//
// PATHS:
//
// An EntityPath names an entity of a schema.Registry under an alias. Its
// fields are Expr values validated against the metadata:
//
//	member := queryir.MustEntityPath(reg, "Member", "")       // alias "member"
//	memberSub := queryir.MustEntityPath(reg, "Member", "ms")  // for subqueries
//	age := member.MustField("age")
//
// EXPRESSIONS AND PREDICATES:
//
// Expr methods build derived expressions (Lower, Concat, Add, Sum, ...) and
// predicates (Eq, Between, In, IsNull, StartsWith, ...). Predicates combine
// with And, Or and Not. A nil Predicate means "no filter" and is absorbed:
//
//	And(p, nil) == p
//	Or(nil, nil) == nil
//
// PredicateBuilder folds optional clauses with a MatchAll or MatchAny policy.
// Both policies return nil when every clause is absent.
//
// DEFERRED ERRORS:
//
// Operators applied to incompatible types (Lower on an integer) cannot fail
// in a fluent chain. The resulting Expr or Predicate carries an
// *UnsupportedOperatorError, and Build of any descriptor containing it
// returns that error.
//
// SEALED INTERFACES:
//
// ExprNode, Predicate and Projection are sealed interfaces using the marker
// method pattern. Only types in this package implement them, which enables
// exhaustive type switches in backend compilers.
//
// BUILDERS:
//
// QueryBuilder and MutationBuilder are values: each method returns an
// updated copy. Build validates the whole descriptor and returns an
// immutable *QueryDescriptor or *MutationDescriptor:
//
//	q, err := queryir.SelectFrom(member).
//		Where(age.Gte(10), age.Lte(30)).
//		OrderBy(age.Desc(), username.Asc().NullsLast()).
//		Offset(1).Limit(2).
//		Build()
//
// Validation covers paging, alias uniqueness, scope of field references,
// joins and fetch joins, aggregate placement, group by agreement and
// projection arity.
package queryir
