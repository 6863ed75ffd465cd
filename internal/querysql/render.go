package querysql

import (
	"fmt"
	"slices"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/roach88/qdsl/internal/ir"
	"github.com/roach88/qdsl/internal/queryir"
)

// renderer turns descriptor nodes into squirrel fragments. Every fragment
// uses "?" placeholders; squirrel inlines nested fragments into their
// parent's placeholders.
type renderer struct {
	dialect Dialect

	// target is the UPDATE or DELETE target. Its fields render without
	// qualifier at the top level. Inside subqueries a bare column binds to
	// the innermost scope, so there they are qualified with the table name.
	target mutationTarget
	nested bool

	// renameColumns gives every top-level selected column a positional
	// alias.
	renameColumns bool
}

func (r *renderer) table(p queryir.EntityPath) string {
	return r.dialect.Quote(p.Entity().Table) + " AS " + r.dialect.Quote(p.Alias())
}

// mutationTarget names the table mutated by a statement and the alias its
// fields carry in the descriptor.
type mutationTarget struct {
	alias string
	table string
}

func (r *renderer) column(f *queryir.FieldRef) string {
	if r.target.alias != "" && f.Alias == r.target.alias {
		if r.nested {
			return r.dialect.Quote(r.target.table) + "." + r.dialect.Quote(f.Column)
		}
		return r.dialect.Quote(f.Column)
	}
	return r.dialect.Quote(f.Alias) + "." + r.dialect.Quote(f.Column)
}

func (r *renderer) selectQuery(d *queryir.QueryDescriptor) (sq.SelectBuilder, error) {
	qb := sq.Select()
	rename := r.renameColumns
	r.renameColumns = false
	for i, col := range d.Projection().Columns() {
		if _, constant := col.Node().(*queryir.ConstantValue); constant {
			continue
		}
		s, err := r.expr(col)
		if err != nil {
			return qb, fmt.Errorf("column %d: %w", i, err)
		}
		switch {
		case rename:
			s = sq.Expr(fmt.Sprintf("? AS %s", r.dialect.Quote(fmt.Sprintf("c%d", i))), s)
		case col.Alias() != "":
			s = sq.Expr("? AS "+r.dialect.Quote(col.Alias()), s)
		}
		qb = qb.Column(s)
	}
	if d.Distinct() {
		qb = qb.Distinct()
	}

	qb, err := r.source(qb, d)
	if err != nil {
		return qb, err
	}

	for _, o := range d.OrderBy() {
		clauses, err := r.order(o)
		if err != nil {
			return qb, fmt.Errorf("order by: %w", err)
		}
		for _, c := range clauses {
			qb = qb.OrderByClause(c)
		}
	}

	limit, hasLimit := d.Limit()
	offset, hasOffset := d.Offset()
	switch {
	case hasLimit:
		qb = qb.Limit(uint64(limit))
		if hasOffset {
			qb = qb.Offset(uint64(offset))
		}
	case hasOffset:
		qb = qb.Suffix(r.dialect.offsetOnly(), offset)
	}
	return qb, nil
}

// source adds from, joins, where, group by and having to qb.
func (r *renderer) source(qb sq.SelectBuilder, d *queryir.QueryDescriptor) (sq.SelectBuilder, error) {
	from := d.From()
	qb = qb.From(r.table(from[0]))
	for _, p := range from[1:] {
		qb = qb.CrossJoin(r.table(p))
	}

	for i, j := range d.Joins() {
		on, err := r.joinCondition(j)
		if err != nil {
			return qb, fmt.Errorf("join %d: %w", i, err)
		}
		keyword := "JOIN"
		if j.Kind == queryir.LeftJoin {
			keyword = "LEFT JOIN"
		}
		qb = qb.JoinClause(sq.Expr(keyword+" "+r.table(j.Target)+" ON ?", on))
	}

	if where := d.Where(); where != nil {
		pred, err := r.predicate(where)
		if err != nil {
			return qb, fmt.Errorf("where: %w", err)
		}
		qb = qb.Where(pred)
	}

	for _, g := range d.GroupBy() {
		s, err := r.expr(g)
		if err != nil {
			return qb, fmt.Errorf("group by: %w", err)
		}
		sql, args, err := s.ToSql()
		if err != nil {
			return qb, err
		}
		if len(args) > 0 {
			return qb, fmt.Errorf("group by: expression %s must not contain parameters", sql)
		}
		qb = qb.GroupBy(sql)
	}

	if having := d.Having(); having != nil {
		pred, err := r.predicate(having)
		if err != nil {
			return qb, fmt.Errorf("having: %w", err)
		}
		qb = qb.Having(pred)
	}
	return qb, nil
}

// joinCondition derives the ON clause. A relation join matches the
// relation's foreign key column against the target's primary key, and any
// extra On conditions are appended.
func (r *renderer) joinCondition(j queryir.JoinClause) (sq.Sqlizer, error) {
	var conds sq.And
	if j.Relation != nil {
		pk := j.Target.Entity().PrimaryKey()
		conds = append(conds, sq.Expr(fmt.Sprintf("%s = %s.%s",
			r.column(j.Relation), r.dialect.Quote(j.Target.Alias()), r.dialect.Quote(pk.Column))))
	}
	if j.On != nil {
		on, err := r.predicate(j.On)
		if err != nil {
			return nil, err
		}
		conds = append(conds, on)
	}
	if len(conds) == 1 {
		return conds[0], nil
	}
	return conds, nil
}

func (r *renderer) order(o queryir.OrderSpec) ([]sq.Sqlizer, error) {
	e, err := r.expr(o.Expr)
	if err != nil {
		return nil, err
	}
	dir := "ASC"
	if o.Direction == queryir.Descending {
		dir = "DESC"
	}
	if o.Nulls == queryir.NullsDefault || !o.Expr.Nullable() {
		return []sq.Sqlizer{sq.Expr("? "+dir, e)}, nil
	}

	if r.dialect.nativeNullOrdering() {
		nulls := " NULLS LAST"
		if o.Nulls == queryir.NullsFirst {
			nulls = " NULLS FIRST"
		}
		return []sq.Sqlizer{sq.Expr("? "+dir+nulls, e)}, nil
	}

	// x IS NULL is 0 for values and 1 for NULLs.
	nullKey := sq.Expr("? IS NULL ASC", e)
	if o.Nulls == queryir.NullsFirst {
		nullKey = sq.Expr("? IS NULL DESC", e)
	}
	return []sq.Sqlizer{nullKey, sq.Expr("? "+dir, e)}, nil
}

func (r *renderer) expr(e queryir.Expr) (sq.Sqlizer, error) {
	if err := e.Err(); err != nil {
		return nil, err
	}
	switch n := e.Node().(type) {
	case *queryir.FieldRef:
		return sq.Expr(r.column(n)), nil
	case *queryir.Literal:
		return param(n.Value)
	case *queryir.ConstantValue:
		return param(n.Value)
	case *queryir.Unary:
		arg, err := r.expr(n.Arg)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case queryir.OpLower:
			return sq.Expr("lower(?)", arg), nil
		case queryir.OpUpper:
			return sq.Expr("upper(?)", arg), nil
		case queryir.OpLength:
			return sq.Expr(r.dialect.length("?"), arg), nil
		case queryir.OpStringValue:
			return sq.Expr(r.dialect.castText("?"), arg), nil
		}
		return nil, fmt.Errorf("unsupported function %q", n.Op)
	case *queryir.Binary:
		left, err := r.expr(n.Left)
		if err != nil {
			return nil, err
		}
		right, err := r.expr(n.Right)
		if err != nil {
			return nil, err
		}
		if n.Op == queryir.OpConcat {
			return sq.Expr(r.dialect.concat("?", "?"), left, right), nil
		}
		return sq.Expr("(? "+string(n.Op)+" ?)", left, right), nil
	case *queryir.Aggregate:
		arg, err := r.expr(n.Arg)
		if err != nil {
			return nil, err
		}
		if n.Distinct {
			return sq.Expr(string(n.Func)+"(DISTINCT ?)", arg), nil
		}
		return sq.Expr(string(n.Func)+"(?)", arg), nil
	case *queryir.ScalarQuery:
		sub, err := r.subquery(n.Query)
		if err != nil {
			return nil, err
		}
		return sq.Expr("(?)", sub), nil
	case *queryir.CaseExpr:
		return r.caseExpr(n)
	case *queryir.FuncCall:
		args := make([]any, len(n.Args))
		for i, a := range n.Args {
			s, err := r.expr(a)
			if err != nil {
				return nil, err
			}
			args[i] = s
		}
		return sq.Expr(n.Name+"("+placeholders(len(args))+")", args...), nil
	}
	return nil, fmt.Errorf("unsupported expression node %T", e.Node())
}

// subquery renders a nested query. Correlated references to a mutation
// target resolve through its table name, which no source of the subquery
// may use as its alias.
func (r *renderer) subquery(d *queryir.QueryDescriptor) (sq.SelectBuilder, error) {
	if r.target.table != "" {
		aliases := slices.Clone(d.From())
		for _, j := range d.Joins() {
			aliases = append(aliases, j.Target)
		}
		for _, p := range aliases {
			if p.Alias() == r.target.table {
				return sq.SelectBuilder{}, fmt.Errorf("subquery alias %q shadows the mutated table %s", p.Alias(), r.target.table)
			}
		}
	}
	inner := &renderer{dialect: r.dialect, target: r.target, nested: true}
	return inner.selectQuery(d)
}

func (r *renderer) caseExpr(n *queryir.CaseExpr) (sq.Sqlizer, error) {
	var sql strings.Builder
	var args []any
	sql.WriteString("CASE")
	if !n.Operand.IsZero() {
		op, err := r.expr(n.Operand)
		if err != nil {
			return nil, err
		}
		sql.WriteString(" ?")
		args = append(args, op)
	}
	for _, w := range n.Whens {
		var cond sq.Sqlizer
		var err error
		if w.Cond != nil {
			cond, err = r.predicate(w.Cond)
		} else {
			cond, err = r.expr(w.Match)
		}
		if err != nil {
			return nil, err
		}
		result, err := r.expr(w.Result)
		if err != nil {
			return nil, err
		}
		sql.WriteString(" WHEN ? THEN ?")
		args = append(args, cond, result)
	}
	if !n.Else.IsZero() {
		els, err := r.expr(n.Else)
		if err != nil {
			return nil, err
		}
		sql.WriteString(" ELSE ?")
		args = append(args, els)
	}
	sql.WriteString(" END")
	return sq.Expr(sql.String(), args...), nil
}

var compareOps = map[queryir.CompareOp]string{
	queryir.OpEq:   "=",
	queryir.OpNe:   "<>",
	queryir.OpLt:   "<",
	queryir.OpLte:  "<=",
	queryir.OpGt:   ">",
	queryir.OpGte:  ">=",
	queryir.OpLike: "LIKE",
}

func (r *renderer) predicate(p queryir.Predicate) (sq.Sqlizer, error) {
	if err := queryir.PredicateErr(p); err != nil {
		return nil, err
	}
	switch n := p.(type) {
	case *queryir.Comparison:
		left, err := r.expr(n.Left)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case queryir.OpIsNull:
			return sq.Expr("? IS NULL", left), nil
		case queryir.OpIsNotNull:
			return sq.Expr("? IS NOT NULL", left), nil
		case queryir.OpStartsWith:
			prefix, ok := stringLiteral(n.Right)
			if !ok {
				return nil, fmt.Errorf("startsWith needs a string literal")
			}
			return sq.Expr("? LIKE ? ESCAPE "+r.dialect.likeEscape(), left, queryir.EscapeLike(prefix)+"%"), nil
		}
		right, err := r.expr(n.Right)
		if err != nil {
			return nil, err
		}
		op, ok := compareOps[n.Op]
		if !ok {
			return nil, fmt.Errorf("unsupported comparison %q", n.Op)
		}
		return sq.Expr("? "+op+" ?", left, right), nil
	case *queryir.Range:
		e, err := r.expr(n.Expr)
		if err != nil {
			return nil, err
		}
		low, err := r.expr(n.Low)
		if err != nil {
			return nil, err
		}
		high, err := r.expr(n.High)
		if err != nil {
			return nil, err
		}
		return sq.Expr("? BETWEEN ? AND ?", e, low, high), nil
	case *queryir.Membership:
		return r.membership(n)
	case *queryir.Conjunction:
		left, right, err := r.pair(n.Left, n.Right)
		if err != nil {
			return nil, err
		}
		return sq.And{left, right}, nil
	case *queryir.Disjunction:
		left, right, err := r.pair(n.Left, n.Right)
		if err != nil {
			return nil, err
		}
		return sq.Or{left, right}, nil
	case *queryir.Negation:
		inner, err := r.predicate(n.Inner)
		if err != nil {
			return nil, err
		}
		return sq.Expr("NOT (?)", inner), nil
	}
	return nil, fmt.Errorf("unsupported predicate %T", p)
}

func (r *renderer) pair(a, b queryir.Predicate) (sq.Sqlizer, sq.Sqlizer, error) {
	left, err := r.predicate(a)
	if err != nil {
		return nil, nil, err
	}
	right, err := r.predicate(b)
	if err != nil {
		return nil, nil, err
	}
	return left, right, nil
}

func (r *renderer) membership(n *queryir.Membership) (sq.Sqlizer, error) {
	e, err := r.expr(n.Expr)
	if err != nil {
		return nil, err
	}
	in := " IN "
	if n.Negated {
		in = " NOT IN "
	}

	if n.Query != nil {
		sub, err := r.subquery(n.Query)
		if err != nil {
			return nil, err
		}
		return sq.Expr("?"+in+"(?)", e, sub), nil
	}

	// IN () is not valid SQL. An empty list matches nothing, and its
	// negation matches everything.
	if len(n.Values) == 0 {
		if n.Negated {
			return sq.Expr("1 = 1"), nil
		}
		return sq.Expr("1 = 0"), nil
	}

	args := []any{e}
	for _, v := range n.Values {
		s, err := r.expr(v)
		if err != nil {
			return nil, err
		}
		args = append(args, s)
	}
	return sq.Expr("?"+in+"("+placeholders(len(n.Values))+")", args...), nil
}

func param(v ir.Value) (sq.Sqlizer, error) {
	arg, err := ir.ToGo(v)
	if err != nil {
		return nil, err
	}
	return sq.Expr("?", arg), nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringLiteral(e queryir.Expr) (string, bool) {
	lit, ok := e.Node().(*queryir.Literal)
	if !ok {
		return "", false
	}
	s, ok := lit.Value.(ir.String)
	return string(s), ok
}
