package queryir

import (
	"slices"

	"github.com/roach88/qdsl/internal/ir"
)

// JoinKind is the join type.
type JoinKind string

const (
	InnerJoin JoinKind = "inner"
	LeftJoin  JoinKind = "left"
)

// JoinClause joins Target into a query, either along a relation field of an
// entity already in scope (Relation set) or on an arbitrary predicate (On).
// With Relation set, On holds extra conditions appended to the derived
// relation condition.
type JoinClause struct {
	Kind     JoinKind
	Target   EntityPath
	Relation *FieldRef
	On       Predicate
	Fetch    bool
}

// Direction is an ordering direction.
type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// NullOrdering places NULLs first or last. The zero value leaves placement
// to the database.
type NullOrdering string

const (
	NullsDefault NullOrdering = ""
	NullsFirst   NullOrdering = "first"
	NullsLast    NullOrdering = "last"
)

// OrderSpec is one sort key. Earlier keys take precedence over later ones.
type OrderSpec struct {
	Expr      Expr
	Direction Direction
	Nulls     NullOrdering
}

// Asc orders by e ascending.
func (e Expr) Asc() OrderSpec { return OrderSpec{Expr: e, Direction: Ascending} }

// Desc orders by e descending.
func (e Expr) Desc() OrderSpec { return OrderSpec{Expr: e, Direction: Descending} }

// NullsFirst places NULL values before non-null values.
func (o OrderSpec) NullsFirst() OrderSpec {
	o.Nulls = NullsFirst
	return o
}

// NullsLast places NULL values after non-null values.
func (o OrderSpec) NullsLast() OrderSpec {
	o.Nulls = NullsLast
	return o
}

// QueryDescriptor is an immutable query: sources, joins, filter, grouping,
// ordering, paging and projection. It is produced by QueryBuilder.Build and
// is safe for concurrent read-only use. It performs no I/O.
type QueryDescriptor struct {
	from        []EntityPath
	joins       []JoinClause
	where       Predicate
	groupBy     []Expr
	having      Predicate
	orderBy     []OrderSpec
	offset      int64
	limit       int64
	hasOffset   bool
	hasLimit    bool
	distinct    bool
	projection  Projection
	fingerprint string
}

// From returns the from sources in declaration order.
func (d *QueryDescriptor) From() []EntityPath { return slices.Clone(d.from) }

// Joins returns the join clauses in declaration order.
func (d *QueryDescriptor) Joins() []JoinClause { return slices.Clone(d.joins) }

// Where returns the filter, nil when there is none.
func (d *QueryDescriptor) Where() Predicate { return d.where }

// GroupBy returns the grouping expressions.
func (d *QueryDescriptor) GroupBy() []Expr { return slices.Clone(d.groupBy) }

// Having returns the group filter, nil when there is none.
func (d *QueryDescriptor) Having() Predicate { return d.having }

// OrderBy returns the sort keys in precedence order.
func (d *QueryDescriptor) OrderBy() []OrderSpec { return slices.Clone(d.orderBy) }

// Offset returns the number of rows to skip and whether it was set.
func (d *QueryDescriptor) Offset() (int64, bool) { return d.offset, d.hasOffset }

// Limit returns the maximum row count and whether it was set. A limit of
// zero is a request for no rows.
func (d *QueryDescriptor) Limit() (int64, bool) { return d.limit, d.hasLimit }

// Distinct reports whether duplicate rows are removed.
func (d *QueryDescriptor) Distinct() bool { return d.distinct }

// Projection returns the projection.
func (d *QueryDescriptor) Projection() Projection { return d.projection }

// Fingerprint returns a stable hex SHA-256 identity of the descriptor's
// structure. Equal descriptors have equal fingerprints.
func (d *QueryDescriptor) Fingerprint() string { return d.fingerprint }

// Unpaged returns a copy without offset, limit and ordering, used to count
// the rows of a paged query.
func (d *QueryDescriptor) Unpaged() *QueryDescriptor {
	c := *d
	c.offset, c.limit = 0, 0
	c.hasOffset, c.hasLimit = false, false
	c.orderBy = nil
	c.fingerprint = ir.MustFingerprint(ir.DomainQuery, describeQuery(&c))
	return &c
}

// First returns a copy limited to one row. An existing limit of zero is
// kept.
func (d *QueryDescriptor) First() *QueryDescriptor {
	if d.hasLimit && d.limit <= 1 {
		return d
	}
	c := *d
	c.limit, c.hasLimit = 1, true
	c.fingerprint = ir.MustFingerprint(ir.DomainQuery, describeQuery(&c))
	return &c
}

// QueryBuilder accumulates a query. It is a value: every method returns an
// updated copy and leaves the receiver unchanged, so partial builders can
// be shared and extended independently.
type QueryBuilder struct {
	d   QueryDescriptor
	err error
}

// Select starts a query projecting exprs: a single expression yields
// single values, several yield tuples.
func Select(exprs ...Expr) QueryBuilder {
	var b QueryBuilder
	switch len(exprs) {
	case 0:
		b.err = invalidQuery(CodeEmptyProjection, "select needs at least one expression")
	case 1:
		b.d.projection = Single(exprs[0])
	default:
		b.d.projection = Tuple(exprs...)
	}
	return b
}

// SelectFrom starts a query selecting whole entities of p.
func SelectFrom(p EntityPath) QueryBuilder {
	var b QueryBuilder
	b.d.projection = Entity(p)
	return b.From(p)
}

// From adds from sources. Several sources form a cross product, usually
// restricted by Where (a theta join).
func (b QueryBuilder) From(sources ...EntityPath) QueryBuilder {
	b.d.from = append(slices.Clip(b.d.from), sources...)
	return b
}

// Where adds filters, combined with And. Nil predicates are ignored, so
// Where(nil) leaves the query unfiltered.
func (b QueryBuilder) Where(preds ...Predicate) QueryBuilder {
	b.d.where = AllOf(append([]Predicate{b.d.where}, preds...)...)
	return b
}

// Join inner-joins target along relation, e.g. Join(m.team, t).
func (b QueryBuilder) Join(relation Expr, target EntityPath) QueryBuilder {
	return b.joinRelation(InnerJoin, relation, target)
}

// InnerJoin is Join.
func (b QueryBuilder) InnerJoin(relation Expr, target EntityPath) QueryBuilder {
	return b.joinRelation(InnerJoin, relation, target)
}

// LeftJoin left-joins target along relation.
func (b QueryBuilder) LeftJoin(relation Expr, target EntityPath) QueryBuilder {
	return b.joinRelation(LeftJoin, relation, target)
}

// JoinOn inner-joins target on an arbitrary predicate.
func (b QueryBuilder) JoinOn(target EntityPath, on Predicate) QueryBuilder {
	return b.addJoin(JoinClause{Kind: InnerJoin, Target: target, On: on})
}

// LeftJoinOn left-joins target on an arbitrary predicate, e.g. to join an
// unrelated entity.
func (b QueryBuilder) LeftJoinOn(target EntityPath, on Predicate) QueryBuilder {
	return b.addJoin(JoinClause{Kind: LeftJoin, Target: target, On: on})
}

func (b QueryBuilder) joinRelation(kind JoinKind, relation Expr, target EntityPath) QueryBuilder {
	if relation.err != nil {
		return b.fail(relation.err)
	}
	ref, ok := relation.node.(*FieldRef)
	if !ok || !ref.IsRelation() {
		return b.fail(invalidQuery(CodeInvalidJoin, "join path must be a relation field"))
	}
	return b.addJoin(JoinClause{Kind: kind, Target: target, Relation: ref})
}

func (b QueryBuilder) addJoin(j JoinClause) QueryBuilder {
	b.d.joins = append(slices.Clip(b.d.joins), j)
	return b
}

// On adds a condition to the most recent join.
func (b QueryBuilder) On(preds ...Predicate) QueryBuilder {
	return b.updateLastJoin("on", func(j *JoinClause) {
		j.On = AllOf(append([]Predicate{j.On}, preds...)...)
	})
}

// Fetch marks the most recent join as a fetch join: the joined entity is
// materialized together with the projected owner.
func (b QueryBuilder) Fetch() QueryBuilder {
	return b.updateLastJoin("fetch", func(j *JoinClause) { j.Fetch = true })
}

func (b QueryBuilder) updateLastJoin(op string, fn func(*JoinClause)) QueryBuilder {
	if len(b.d.joins) == 0 {
		return b.fail(invalidQuery(CodeInvalidJoin, "%s without a preceding join", op))
	}
	joins := slices.Clone(b.d.joins)
	fn(&joins[len(joins)-1])
	b.d.joins = joins
	return b
}

// GroupBy adds grouping expressions.
func (b QueryBuilder) GroupBy(exprs ...Expr) QueryBuilder {
	b.d.groupBy = append(slices.Clip(b.d.groupBy), exprs...)
	return b
}

// Having adds group filters, combined with And.
func (b QueryBuilder) Having(preds ...Predicate) QueryBuilder {
	b.d.having = AllOf(append([]Predicate{b.d.having}, preds...)...)
	return b
}

// OrderBy appends sort keys. The first key overall is the primary key.
func (b QueryBuilder) OrderBy(specs ...OrderSpec) QueryBuilder {
	b.d.orderBy = append(slices.Clip(b.d.orderBy), specs...)
	return b
}

// Offset skips n rows.
func (b QueryBuilder) Offset(n int64) QueryBuilder {
	b.d.offset, b.d.hasOffset = n, true
	return b
}

// Limit returns at most n rows. Limit(0) requests no rows.
func (b QueryBuilder) Limit(n int64) QueryBuilder {
	b.d.limit, b.d.hasLimit = n, true
	return b
}

// Distinct removes duplicate rows.
func (b QueryBuilder) Distinct() QueryBuilder {
	b.d.distinct = true
	return b
}

// Project replaces the projection.
func (b QueryBuilder) Project(p Projection) QueryBuilder {
	b.d.projection = p
	return b
}

func (b QueryBuilder) fail(err error) QueryBuilder {
	if b.err == nil {
		b.err = err
	}
	return b
}

// Err returns the first error recorded while accumulating, if any. Build
// reports it along with every structural violation.
func (b QueryBuilder) Err() error { return b.err }

// descriptor finalizes the projection without scope validation. Subqueries
// are validated against their enclosing query when that query is built.
func (b QueryBuilder) descriptor() (*QueryDescriptor, error) {
	if b.err != nil {
		return nil, b.err
	}
	d := b.d
	if d.projection == nil {
		return nil, invalidQuery(CodeEmptyProjection, "query has no projection; use Select or SelectFrom")
	}
	if ep, ok := d.projection.(*EntityProjection); ok {
		d.projection = withFetched(ep, d.joins)
	}
	return &d, nil
}

func withFetched(ep *EntityProjection, joins []JoinClause) *EntityProjection {
	out := &EntityProjection{Path: ep.Path}
	for _, j := range joins {
		if j.Fetch && j.Relation != nil && j.Relation.Alias == ep.Path.Alias() {
			out.Fetched = append(out.Fetched, FetchedRelation{Field: j.Relation.Field, Target: j.Target})
		}
	}
	return out
}

// Build validates the accumulated query and returns an immutable
// descriptor. Structural violations are *InvalidQueryError, projection
// arity problems *ProjectionMismatchError and operator misuse
// *UnsupportedOperatorError.
func (b QueryBuilder) Build() (*QueryDescriptor, error) {
	d, err := b.descriptor()
	if err != nil {
		return nil, err
	}
	if err := validateQuery(d, nil); err != nil {
		return nil, err
	}
	d.fingerprint, err = ir.Fingerprint(ir.DomainQuery, describeQuery(d))
	if err != nil {
		return nil, err
	}
	return d, nil
}

// MustBuild is like Build but panics on error.
func (b QueryBuilder) MustBuild() *QueryDescriptor {
	d, err := b.Build()
	if err != nil {
		panic(err)
	}
	return d
}
