package queryir

import (
	"runtime"

	"github.com/roach88/qdsl/internal/ir"
)

// describeQuery converts a descriptor into the plain map/slice structure
// hashed by ir.Fingerprint.
func describeQuery(d *QueryDescriptor) map[string]any {
	from := make([]any, len(d.from))
	for i, p := range d.from {
		from[i] = describePath(p)
	}

	joins := make([]any, len(d.joins))
	for i, j := range d.joins {
		var relation any
		if j.Relation != nil {
			relation = j.Relation.Key()
		}
		joins[i] = map[string]any{
			"kind":     string(j.Kind),
			"target":   describePath(j.Target),
			"relation": relation,
			"on":       describePredicate(j.On),
			"fetch":    j.Fetch,
		}
	}

	order := make([]any, len(d.orderBy))
	for i, o := range d.orderBy {
		order[i] = map[string]any{
			"expr":  describeExpr(o.Expr),
			"dir":   string(o.Direction),
			"nulls": string(o.Nulls),
		}
	}

	m := map[string]any{
		"from":       from,
		"joins":      joins,
		"where":      describePredicate(d.where),
		"group_by":   describeExprs(d.groupBy),
		"having":     describePredicate(d.having),
		"order_by":   order,
		"offset":     nil,
		"limit":      nil,
		"distinct":   d.distinct,
		"projection": describeProjection(d.projection),
	}
	if d.hasOffset {
		m["offset"] = d.offset
	}
	if d.hasLimit {
		m["limit"] = d.limit
	}
	return m
}

func describePath(p EntityPath) any {
	if p.IsZero() {
		return nil
	}
	return map[string]any{"entity": p.Name(), "table": p.Entity().Table, "alias": p.Alias()}
}

func describeProjection(p Projection) any {
	switch proj := p.(type) {
	case *SingleProjection:
		return map[string]any{"kind": "single", "columns": describeExprs(proj.Columns())}
	case *TupleProjection:
		return map[string]any{"kind": "tuple", "columns": describeExprs(proj.Exprs)}
	case *ConstructorProjection:
		return map[string]any{
			"kind":    "constructor",
			"target":  runtime.FuncForPC(proj.Fn.Pointer()).Name(),
			"columns": describeExprs(proj.Exprs),
		}
	case *FieldProjection:
		return map[string]any{
			"kind":    "fields",
			"target":  proj.Target.PkgPath() + "." + proj.Target.String(),
			"columns": describeExprs(proj.Exprs),
		}
	case *EntityProjection:
		fetched := make([]any, len(proj.Fetched))
		for i, f := range proj.Fetched {
			fetched[i] = map[string]any{"field": f.Field, "target": describePath(f.Target)}
		}
		return map[string]any{"kind": "entity", "path": describePath(proj.Path), "fetched": fetched}
	}
	return nil
}

func describeExprs(exprs []Expr) []any {
	out := make([]any, len(exprs))
	for i, e := range exprs {
		out[i] = describeExpr(e)
	}
	return out
}

// describeExpr includes the alias; describeNode does not.
func describeExpr(e Expr) any {
	n := describeNode(e)
	if e.alias == "" {
		return n
	}
	return map[string]any{"as": e.alias, "expr": n}
}

func describeNode(e Expr) any {
	switch n := e.node.(type) {
	case *FieldRef:
		return map[string]any{"ref": []any{n.Alias, n.Entity, n.Field, n.Column}}
	case *Literal:
		return map[string]any{"lit": n.Value}
	case *ConstantValue:
		return map[string]any{"const": n.Value}
	case *Unary:
		return map[string]any{"fn": string(n.Op), "args": []any{describeExpr(n.Arg)}}
	case *Binary:
		return map[string]any{"fn": string(n.Op), "args": []any{describeExpr(n.Left), describeExpr(n.Right)}}
	case *Aggregate:
		return map[string]any{"agg": string(n.Func), "distinct": n.Distinct, "arg": describeExpr(n.Arg)}
	case *ScalarQuery:
		return map[string]any{"subquery": describeQuery(n.Query)}
	case *CaseExpr:
		whens := make([]any, len(n.Whens))
		for i, w := range n.Whens {
			whens[i] = map[string]any{
				"cond":   describePredicate(w.Cond),
				"match":  describeExpr(w.Match),
				"result": describeExpr(w.Result),
			}
		}
		return map[string]any{"case": describeExpr(n.Operand), "whens": whens, "else": describeExpr(n.Else)}
	case *FuncCall:
		return map[string]any{"call": n.Name, "args": describeExprs(n.Args)}
	}
	return nil
}

func describePredicate(p Predicate) any {
	if isAbsent(p) {
		return nil
	}
	switch n := p.(type) {
	case *Comparison:
		return map[string]any{"cmp": string(n.Op), "left": describeExpr(n.Left), "right": describeExpr(n.Right)}
	case *Range:
		return map[string]any{"between": []any{describeExpr(n.Expr), describeExpr(n.Low), describeExpr(n.High)}}
	case *Membership:
		var query any
		if n.Query != nil {
			query = describeQuery(n.Query)
		}
		return map[string]any{
			"in":     describeExpr(n.Expr),
			"values": describeExprs(n.Values),
			"query":  query,
			"not":    n.Negated,
		}
	case *Conjunction:
		return map[string]any{"and": []any{describePredicate(n.Left), describePredicate(n.Right)}}
	case *Disjunction:
		return map[string]any{"or": []any{describePredicate(n.Left), describePredicate(n.Right)}}
	case *Negation:
		return map[string]any{"not": describePredicate(n.Inner)}
	}
	return nil
}

// exprKey identifies an expression structurally, ignoring its alias. Two
// expressions with equal keys render identical SQL.
func exprKey(e Expr) string {
	b, err := ir.MarshalCanonical(describeNode(e))
	if err != nil {
		return ""
	}
	return string(b)
}

// Key identifies e structurally, ignoring its alias. Tuples use it to look
// up a column by the expression that produced it.
func (e Expr) Key() string { return exprKey(e) }
