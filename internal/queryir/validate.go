package queryir

// scope maps the aliases visible in a query to their entity names. A
// subquery's scope has the enclosing query's scope as parent, which is how
// correlated references are resolved.
type scope struct {
	parent  *scope
	aliases map[string]string
}

func newScope(parent *scope) *scope {
	return &scope{parent: parent, aliases: make(map[string]string)}
}

func (s *scope) lookup(alias string) (string, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if entity, ok := cur.aliases[alias]; ok {
			return entity, true
		}
	}
	return "", false
}

// validator records the first violation found during traversal.
type validator struct {
	err error
}

func (v *validator) fail(err error) {
	if v.err == nil {
		v.err = err
	}
}

// validateQuery checks a descriptor against the build-time rules. outer is
// the enclosing query's scope for subqueries, nil at top level.
//
// validateQuery is a pure function with no side effects.
func validateQuery(d *QueryDescriptor, outer *scope) error {
	v := &validator{}
	v.query(d, outer)
	return v.err
}

func (v *validator) query(d *QueryDescriptor, outer *scope) {
	if err := ProjectionErr(d.projection); err != nil {
		v.fail(err)
		return
	}
	if len(d.from) == 0 {
		v.fail(invalidQuery(CodeMissingSource, "query has no from source"))
		return
	}

	sc := newScope(outer)
	for _, p := range d.from {
		v.declare(sc, p)
	}
	for i, j := range d.joins {
		v.join(sc, d, i, j)
	}
	if v.err != nil {
		return
	}

	cols := d.projection.Columns()
	if len(cols) == 0 {
		v.fail(invalidQuery(CodeEmptyProjection, "projection has no columns"))
	}
	if len(cols) > 0 && allConstant(cols) {
		v.fail(invalidQuery(CodeEmptyProjection, "projection selects only constants"))
	}
	if ep, ok := d.projection.(*EntityProjection); ok {
		if entity, declared := sc.aliases[ep.Path.Alias()]; !declared || entity != ep.Path.Name() {
			v.fail(invalidQuery(CodeOutOfScope, "projected entity %s is not a source of the query", ep.Path))
		}
	}
	for _, c := range cols {
		v.expr(c, sc, true)
	}

	v.predicate(d.where, sc, false)
	for _, g := range d.groupBy {
		v.expr(g, sc, false)
	}
	if !isAbsent(d.having) && len(d.groupBy) == 0 {
		v.fail(invalidQuery(CodeGroupBy, "having requires group by"))
	}
	v.predicate(d.having, sc, true)
	for _, o := range d.orderBy {
		v.expr(o.Expr, sc, true)
	}

	if d.hasOffset && d.offset < 0 {
		v.fail(invalidQuery(CodeInvalidPaging, "offset must be non-negative, got %d", d.offset))
	}
	if d.hasLimit && d.limit < 0 {
		v.fail(invalidQuery(CodeInvalidPaging, "limit must be non-negative, got %d", d.limit))
	}

	if v.err == nil {
		v.grouping(d)
	}
	if v.err == nil && d.distinct {
		v.distinctOrder(d)
	}
}

func (v *validator) declare(sc *scope, p EntityPath) {
	if p.IsZero() {
		v.fail(invalidQuery(CodeUnknownEntity, "zero entity path used as source"))
		return
	}
	if _, taken := sc.lookup(p.Alias()); taken {
		v.fail(invalidQuery(CodeDuplicateAlias, "alias %q is used more than once; give one of the paths a different alias", p.Alias()))
		return
	}
	sc.aliases[p.Alias()] = p.Name()
}

func (v *validator) join(sc *scope, d *QueryDescriptor, i int, j JoinClause) {
	if j.Relation != nil {
		if entity, ok := sc.aliases[j.Relation.Alias]; !ok || entity != j.Relation.Entity {
			v.fail(invalidQuery(CodeOutOfScope, "join %d: relation %s does not belong to a preceding source", i, j.Relation.Key()))
			return
		}
		if !j.Target.IsZero() && j.Relation.Target != j.Target.Name() {
			v.fail(invalidQuery(CodeInvalidJoin, "join %d: relation %s leads to %s, not %s", i, j.Relation.Key(), j.Relation.Target, j.Target.Name()))
			return
		}
	} else if isAbsent(j.On) {
		v.fail(invalidQuery(CodeInvalidJoin, "join %d: needs a relation or an on predicate", i))
		return
	}

	v.declare(sc, j.Target)
	v.predicate(j.On, sc, false)

	if !j.Fetch {
		return
	}
	if j.Relation == nil {
		v.fail(invalidQuery(CodeInvalidFetch, "join %d: fetch requires a relation join", i))
		return
	}
	ep, ok := d.projection.(*EntityProjection)
	if !ok || ep.Path.Alias() != j.Relation.Alias {
		v.fail(invalidQuery(CodeInvalidFetch, "join %d: fetch requires selecting the owning entity %q", i, j.Relation.Alias))
	}
}

// expr checks field scope, deferred errors and aggregate placement.
func (v *validator) expr(e Expr, sc *scope, allowAgg bool) {
	if e.err != nil {
		v.fail(e.err)
		return
	}
	switch n := e.node.(type) {
	case nil:
		v.fail(invalidQuery(CodeInvalidExpression, "zero expression used as operand"))
	case *FieldRef:
		if entity, ok := sc.lookup(n.Alias); !ok || entity != n.Entity {
			v.fail(invalidQuery(CodeOutOfScope, "field %s refers to an entity that is not in scope", n.Key()))
		}
	case *Literal, *ConstantValue:
	case *Unary:
		v.expr(n.Arg, sc, allowAgg)
	case *Binary:
		v.expr(n.Left, sc, allowAgg)
		v.expr(n.Right, sc, allowAgg)
	case *Aggregate:
		if !allowAgg {
			v.fail(invalidQuery(CodeMisplacedAggregate, "aggregate %s is not allowed here", n.Func))
			return
		}
		v.expr(n.Arg, sc, false)
	case *ScalarQuery:
		v.query(n.Query, sc)
	case *CaseExpr:
		if !n.Operand.IsZero() {
			v.expr(n.Operand, sc, allowAgg)
		}
		for _, w := range n.Whens {
			if w.Cond != nil {
				v.predicate(w.Cond, sc, allowAgg)
			} else {
				v.expr(w.Match, sc, allowAgg)
			}
			v.expr(w.Result, sc, allowAgg)
		}
		if !n.Else.IsZero() {
			v.expr(n.Else, sc, allowAgg)
		}
	case *FuncCall:
		for _, a := range n.Args {
			v.expr(a, sc, allowAgg)
		}
	}
}

func (v *validator) predicate(p Predicate, sc *scope, allowAgg bool) {
	if isAbsent(p) {
		return
	}
	switch n := p.(type) {
	case *Comparison:
		if n.err != nil {
			v.fail(n.err)
			return
		}
		v.expr(n.Left, sc, allowAgg)
		if n.Op != OpIsNull && n.Op != OpIsNotNull {
			v.expr(n.Right, sc, allowAgg)
		}
	case *Range:
		if n.err != nil {
			v.fail(n.err)
			return
		}
		v.expr(n.Expr, sc, allowAgg)
		v.expr(n.Low, sc, allowAgg)
		v.expr(n.High, sc, allowAgg)
	case *Membership:
		if n.err != nil {
			v.fail(n.err)
			return
		}
		v.expr(n.Expr, sc, allowAgg)
		for _, val := range n.Values {
			v.expr(val, sc, allowAgg)
		}
		if n.Query != nil {
			v.query(n.Query, sc)
		}
	case *Conjunction:
		v.predicate(n.Left, sc, allowAgg)
		v.predicate(n.Right, sc, allowAgg)
	case *Disjunction:
		v.predicate(n.Left, sc, allowAgg)
		v.predicate(n.Right, sc, allowAgg)
	case *Negation:
		v.predicate(n.Inner, sc, allowAgg)
	}
}

// grouping enforces that projection and grouping agree: every projected
// field outside an aggregate is grouped, and every grouped field is
// referenced by the projection. Without group by, a projection may not mix
// aggregates with bare fields.
func (v *validator) grouping(d *QueryDescriptor) {
	cols := d.projection.Columns()

	if len(d.groupBy) == 0 {
		hasAgg, bare := false, ""
		for _, c := range cols {
			walkExpr(c, false, func(e Expr, inAgg bool) {
				if _, ok := e.node.(*Aggregate); ok {
					hasAgg = true
				}
				if f, ok := e.node.(*FieldRef); ok && !inAgg && bare == "" {
					bare = f.Key()
				}
			})
		}
		if hasAgg && bare != "" {
			v.fail(invalidQuery(CodeGroupBy, "projected field %s must be grouped or aggregated", bare))
		}
		return
	}

	groupKeys := make(map[string]bool)
	groupFields := make(map[string]bool)
	for _, g := range d.groupBy {
		groupKeys[exprKey(g)] = true
		eachField(g, func(f *FieldRef, _ bool) { groupFields[f.Key()] = true })
	}

	ungrouped := func(what string) func(*FieldRef, bool) {
		return func(f *FieldRef, inAgg bool) {
			if !inAgg && !groupFields[f.Key()] {
				v.fail(invalidQuery(CodeGroupBy, "%s field %s is neither grouped nor aggregated", what, f.Key()))
			}
		}
	}

	projected := make(map[string]bool)
	for _, c := range cols {
		eachField(c, func(f *FieldRef, _ bool) { projected[f.Key()] = true })
		if !groupKeys[exprKey(c)] {
			eachField(c, ungrouped("projected"))
		}
	}

	for _, g := range d.groupBy {
		eachField(g, func(f *FieldRef, _ bool) {
			if !projected[f.Key()] {
				v.fail(invalidQuery(CodeGroupBy, "grouped field %s is not referenced by the projection", f.Key()))
			}
		})
	}

	walkPredicate(d.having, false, func(e Expr, inAgg bool) {
		if f, ok := e.node.(*FieldRef); ok {
			ungrouped("having")(f, inAgg)
		}
	})

	for _, o := range d.orderBy {
		if !groupKeys[exprKey(o.Expr)] {
			eachField(o.Expr, ungrouped("ordering"))
		}
	}
}

// distinctOrder requires every sort key of a distinct query to be projected.
func (v *validator) distinctOrder(d *QueryDescriptor) {
	keys := make(map[string]bool)
	for _, c := range d.projection.Columns() {
		keys[exprKey(c)] = true
	}
	for _, o := range d.orderBy {
		if !keys[exprKey(o.Expr)] {
			v.fail(invalidQuery(CodeDistinctOrder, "distinct query cannot be ordered by a column that is not projected"))
			return
		}
	}
}

// walkExpr calls fn for e and every expression nested in it, without
// entering subqueries. inAgg reports whether the expression is inside an
// aggregate argument.
func walkExpr(e Expr, inAgg bool, fn func(Expr, bool)) {
	fn(e, inAgg)
	switch n := e.node.(type) {
	case *Unary:
		walkExpr(n.Arg, inAgg, fn)
	case *Binary:
		walkExpr(n.Left, inAgg, fn)
		walkExpr(n.Right, inAgg, fn)
	case *Aggregate:
		walkExpr(n.Arg, true, fn)
	case *CaseExpr:
		if !n.Operand.IsZero() {
			walkExpr(n.Operand, inAgg, fn)
		}
		for _, w := range n.Whens {
			walkPredicate(w.Cond, inAgg, fn)
			if !w.Match.IsZero() {
				walkExpr(w.Match, inAgg, fn)
			}
			walkExpr(w.Result, inAgg, fn)
		}
		if !n.Else.IsZero() {
			walkExpr(n.Else, inAgg, fn)
		}
	case *FuncCall:
		for _, a := range n.Args {
			walkExpr(a, inAgg, fn)
		}
	}
}

func walkPredicate(p Predicate, inAgg bool, fn func(Expr, bool)) {
	if isAbsent(p) {
		return
	}
	switch n := p.(type) {
	case *Comparison:
		walkExpr(n.Left, inAgg, fn)
		if !n.Right.IsZero() {
			walkExpr(n.Right, inAgg, fn)
		}
	case *Range:
		walkExpr(n.Expr, inAgg, fn)
		walkExpr(n.Low, inAgg, fn)
		walkExpr(n.High, inAgg, fn)
	case *Membership:
		walkExpr(n.Expr, inAgg, fn)
		for _, val := range n.Values {
			walkExpr(val, inAgg, fn)
		}
	case *Conjunction:
		walkPredicate(n.Left, inAgg, fn)
		walkPredicate(n.Right, inAgg, fn)
	case *Disjunction:
		walkPredicate(n.Left, inAgg, fn)
		walkPredicate(n.Right, inAgg, fn)
	case *Negation:
		walkPredicate(n.Inner, inAgg, fn)
	}
}

// eachField calls fn for every field reference in e outside subqueries.
func eachField(e Expr, fn func(f *FieldRef, inAgg bool)) {
	walkExpr(e, false, func(x Expr, inAgg bool) {
		if f, ok := x.node.(*FieldRef); ok {
			fn(f, inAgg)
		}
	})
}

func allConstant(cols []Expr) bool {
	for _, c := range cols {
		if _, ok := c.node.(*ConstantValue); !ok {
			return false
		}
	}
	return true
}
