package querydoc

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/qdsl/internal/queryir"
	"github.com/roach88/qdsl/internal/schema"
)

// Error reports a malformed node of a document.
type Error struct {
	Line    int
	Column  int
	Message string
}

func (e *Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d column %d: %s", e.Line, e.Column, e.Message)
	}
	return e.Message
}

// Compiled is a compiled document. Exactly one of Query and Mutation is
// set.
type Compiled struct {
	Name     string
	Query    *queryir.QueryDescriptor
	Mutation *queryir.MutationDescriptor
}

// Compile compiles doc against reg. params override the document's own
// parameter defaults.
func Compile(reg *schema.Registry, doc *Document, params map[string]any) (*Compiled, error) {
	merged := doc.MergeParams(params)
	out := &Compiled{Name: doc.Name}
	var err error
	if doc.Query != nil {
		out.Query, err = CompileQuery(reg, doc.Query, merged)
	} else {
		out.Mutation, err = CompileMutation(reg, doc.Mutation, merged)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CompileQuery compiles a query document.
func CompileQuery(reg *schema.Registry, q *Query, params map[string]any) (*queryir.QueryDescriptor, error) {
	c := newCompiler(reg, params)
	b, err := c.query(q)
	if err != nil {
		return nil, err
	}
	return b.Build()
}

// CompileMutation compiles a mutation document.
func CompileMutation(reg *schema.Registry, m *Mutation, params map[string]any) (*queryir.MutationDescriptor, error) {
	c := newCompiler(reg, params)
	b, err := c.mutation(m)
	if err != nil {
		return nil, err
	}
	return b.Build()
}

// compiler resolves the names of one document.
type compiler struct {
	reg    *schema.Registry
	params map[string]any
	paths  map[string]queryir.EntityPath
	first  queryir.EntityPath
}

func newCompiler(reg *schema.Registry, params map[string]any) *compiler {
	return &compiler{reg: reg, params: params, paths: make(map[string]queryir.EntityPath)}
}

// source declares "Entity" or "Entity alias".
func (c *compiler) source(s string) (queryir.EntityPath, error) {
	parts := strings.Fields(s)
	if len(parts) == 0 || len(parts) > 2 {
		return queryir.EntityPath{}, fmt.Errorf("invalid source %q (want \"Entity\" or \"Entity alias\")", s)
	}
	var alias string
	if len(parts) == 2 {
		alias = parts[1]
	}
	p, err := queryir.NewEntityPath(c.reg, parts[0], alias)
	if err != nil {
		return queryir.EntityPath{}, err
	}
	if _, dup := c.paths[p.Alias()]; !dup {
		c.paths[p.Alias()] = p
	}
	if c.first.IsZero() {
		c.first = p
	}
	return p, nil
}

// field resolves "alias.field", or "field" of the first source.
func (c *compiler) field(name string) (queryir.Expr, error) {
	alias, field, ok := strings.Cut(name, ".")
	if !ok {
		if c.first.IsZero() {
			return queryir.Expr{}, fmt.Errorf("field %q has no source", name)
		}
		return c.first.Field(name)
	}
	p, ok := c.paths[alias]
	if !ok {
		return queryir.Expr{}, fmt.Errorf("unknown alias %q in %q", alias, name)
	}
	return p.Field(field)
}

func (c *compiler) query(q *Query) (queryir.QueryBuilder, error) {
	var b queryir.QueryBuilder
	if len(q.From) == 0 {
		return b, fmt.Errorf("query needs at least one from source")
	}

	from := make([]queryir.EntityPath, len(q.From))
	for i, s := range q.From {
		p, err := c.source(s)
		if err != nil {
			return b, err
		}
		from[i] = p
	}
	targets := make([]queryir.EntityPath, len(q.Joins))
	for i, j := range q.Joins {
		p, err := c.source(j.Target)
		if err != nil {
			return b, err
		}
		targets[i] = p
	}

	if len(q.Select) == 0 {
		b = queryir.SelectFrom(from[0]).From(from[1:]...)
	} else {
		exprs, err := c.exprList(q.Select)
		if err != nil {
			return b, err
		}
		b = queryir.Select(exprs...).From(from...)
	}

	for i, j := range q.Joins {
		var err error
		if b, err = c.join(b, j, targets[i]); err != nil {
			return b, err
		}
	}

	where, err := c.predicate(&q.Where)
	if err != nil {
		return b, err
	}
	b = b.Where(where)

	if len(q.GroupBy) > 0 {
		group, err := c.exprList(q.GroupBy)
		if err != nil {
			return b, err
		}
		b = b.GroupBy(group...)
	}

	having, err := c.predicate(&q.Having)
	if err != nil {
		return b, err
	}
	b = b.Having(having)

	for _, o := range q.OrderBy {
		spec, err := c.order(o)
		if err != nil {
			return b, err
		}
		b = b.OrderBy(spec)
	}

	if q.Offset != nil {
		b = b.Offset(*q.Offset)
	}
	if q.Limit != nil {
		b = b.Limit(*q.Limit)
	}
	if q.Distinct {
		b = b.Distinct()
	}
	return b, nil
}

func (c *compiler) join(b queryir.QueryBuilder, j Join, target queryir.EntityPath) (queryir.QueryBuilder, error) {
	var left bool
	switch j.Kind {
	case "", "inner":
	case "left":
		left = true
	default:
		return b, fmt.Errorf("join %s: unknown kind %q (want inner or left)", j.Target, j.Kind)
	}

	on, err := c.predicate(&j.On)
	if err != nil {
		return b, err
	}

	if j.Relation == "" {
		if on == nil {
			return b, fmt.Errorf("join %s needs a relation or an on predicate", j.Target)
		}
		if left {
			b = b.LeftJoinOn(target, on)
		} else {
			b = b.JoinOn(target, on)
		}
	} else {
		rel, err := c.field(j.Relation)
		if err != nil {
			return b, fmt.Errorf("join %s: %w", j.Target, err)
		}
		if left {
			b = b.LeftJoin(rel, target)
		} else {
			b = b.Join(rel, target)
		}
		if on != nil {
			b = b.On(on)
		}
	}

	if j.Fetch {
		b = b.Fetch()
	}
	return b, nil
}

func (c *compiler) order(o Order) (queryir.OrderSpec, error) {
	e, err := c.requiredExpr(&o.Expr, false)
	if err != nil {
		return queryir.OrderSpec{}, err
	}

	var spec queryir.OrderSpec
	switch strings.ToLower(o.Dir) {
	case "", "asc":
		spec = e.Asc()
	case "desc":
		spec = e.Desc()
	default:
		return spec, c.errorf(&o.Expr, "unknown direction %q (want asc or desc)", o.Dir)
	}

	switch strings.ToLower(o.Nulls) {
	case "":
	case "first":
		spec = spec.NullsFirst()
	case "last":
		spec = spec.NullsLast()
	default:
		return spec, c.errorf(&o.Expr, "unknown null ordering %q (want first or last)", o.Nulls)
	}
	return spec, nil
}

func (c *compiler) mutation(m *Mutation) (queryir.MutationBuilder, error) {
	var b queryir.MutationBuilder
	switch {
	case m.Update == "" && m.Delete == "":
		return b, fmt.Errorf("mutation needs update or delete")
	case m.Update != "" && m.Delete != "":
		return b, fmt.Errorf("mutation has both update and delete")
	}

	if m.Delete != "" {
		target, err := c.source(m.Delete)
		if err != nil {
			return b, err
		}
		if m.Set.Kind != 0 {
			return b, c.errorf(&m.Set, "delete does not take set")
		}
		b = queryir.Delete(target)
	} else {
		target, err := c.source(m.Update)
		if err != nil {
			return b, err
		}
		b = queryir.Update(target)
		if b, err = c.assignments(b, &m.Set); err != nil {
			return b, err
		}
	}

	where, err := c.predicate(&m.Where)
	if err != nil {
		return b, err
	}
	return b.Where(where), nil
}

func (c *compiler) assignments(b queryir.MutationBuilder, n *yaml.Node) (queryir.MutationBuilder, error) {
	if n.Kind == 0 {
		return b, nil
	}
	if n.Kind != yaml.MappingNode {
		return b, c.errorf(n, "set must map field names to values")
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i], n.Content[i+1]
		f, err := c.field(key.Value)
		if err != nil {
			return b, c.wrap(key, err)
		}
		if val.Kind == yaml.ScalarNode && val.ShortTag() == "!!null" {
			b = b.SetNull(f)
			continue
		}
		e, err := c.requiredExpr(val, true)
		if err != nil {
			return b, err
		}
		b = b.Set(f, e)
	}
	return b, nil
}

func (c *compiler) errorf(n *yaml.Node, format string, args ...any) error {
	return &Error{Line: n.Line, Column: n.Column, Message: fmt.Sprintf(format, args...)}
}

// wrap attaches n's position to err.
func (c *compiler) wrap(n *yaml.Node, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("line %d column %d: %w", n.Line, n.Column, err)
}
