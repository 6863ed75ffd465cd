package querydoc

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/qdsl/internal/queryir"
)

var unaryOps = map[string]func(queryir.Expr) queryir.Expr{
	"lower":          queryir.Expr.Lower,
	"upper":          queryir.Expr.Upper,
	"length":         queryir.Expr.Length,
	"string":         queryir.Expr.StringValue,
	"count":          queryir.Expr.Count,
	"count_distinct": queryir.Expr.CountDistinct,
	"sum":            queryir.Expr.Sum,
	"avg":            queryir.Expr.Avg,
	"max":            queryir.Expr.Max,
	"min":            queryir.Expr.Min,
}

var binaryOps = map[string]func(queryir.Expr, any) queryir.Expr{
	"add":      queryir.Expr.Add,
	"subtract": queryir.Expr.Subtract,
	"multiply": queryir.Expr.Multiply,
	"concat":   queryir.Expr.Concat,
}

var compareOps = map[string]func(queryir.Expr, any) queryir.Predicate{
	"eq":  queryir.Expr.Eq,
	"ne":  queryir.Expr.Ne,
	"lt":  queryir.Expr.Lt,
	"lte": queryir.Expr.Lte,
	"gt":  queryir.Expr.Gt,
	"gte": queryir.Expr.Gte,
}

func (c *compiler) exprList(nodes []yaml.Node) ([]queryir.Expr, error) {
	out := make([]queryir.Expr, len(nodes))
	for i := range nodes {
		e, err := c.requiredExpr(&nodes[i], false)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

// requiredExpr is expr where a missing parameter is an error.
func (c *compiler) requiredExpr(n *yaml.Node, value bool) (queryir.Expr, error) {
	e, ok, err := c.expr(n, value)
	if err != nil {
		return e, err
	}
	if !ok {
		return e, c.errorf(n, "parameter %s is not set", n.Value)
	}
	return e, nil
}

// expr parses an operand. In value position a bare string is a literal,
// otherwise a field name. ok is false when the operand refers to a
// parameter that is not set.
func (c *compiler) expr(n *yaml.Node, value bool) (e queryir.Expr, ok bool, err error) {
	switch n.Kind {
	case yaml.ScalarNode:
		return c.scalar(n, value)
	case yaml.MappingNode:
	case 0:
		return e, false, &Error{Message: "missing expression"}
	default:
		return e, false, c.errorf(n, "expression must be a scalar or a mapping")
	}

	op, arg, alias, err := c.operator(n)
	if err != nil {
		return e, false, err
	}
	if e, ok, err = c.exprOp(op, arg); err != nil || !ok {
		return e, ok, err
	}
	if alias != "" {
		e = e.As(alias)
	}
	return e, true, nil
}

func (c *compiler) scalar(n *yaml.Node, value bool) (queryir.Expr, bool, error) {
	if n.ShortTag() != "!!str" {
		v, err := decodeScalar(n)
		if err != nil {
			return queryir.Expr{}, false, err
		}
		return queryir.Value(v), true, nil
	}
	if strings.HasPrefix(n.Value, "$") {
		v, ok := c.param(n.Value)
		if !ok {
			return queryir.Expr{}, false, nil
		}
		return queryir.Value(v), true, nil
	}
	if value {
		return queryir.Value(n.Value), true, nil
	}
	e, err := c.field(n.Value)
	return e, true, c.wrap(n, err)
}

func (c *compiler) param(ref string) (any, bool) {
	v, ok := c.params[strings.TrimPrefix(ref, "$")]
	return v, ok
}

func decodeScalar(n *yaml.Node) (any, error) {
	var v any
	if err := n.Decode(&v); err != nil {
		return nil, fmt.Errorf("line %d column %d: %w", n.Line, n.Column, err)
	}
	return v, nil
}

// operator splits a single-operator mapping, with an optional "as" key.
func (c *compiler) operator(n *yaml.Node) (op string, arg *yaml.Node, alias string, err error) {
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i], n.Content[i+1]
		if key.Value == "as" {
			alias = val.Value
			continue
		}
		if op != "" {
			return "", nil, "", c.errorf(key, "expected one operator, got %s and %s", op, key.Value)
		}
		op, arg = key.Value, val
	}
	if op == "" {
		return "", nil, "", c.errorf(n, "missing operator")
	}
	return op, arg, alias, nil
}

func (c *compiler) exprOp(op string, arg *yaml.Node) (queryir.Expr, bool, error) {
	var zero queryir.Expr
	if fn, ok := unaryOps[op]; ok {
		e, present, err := c.expr(arg, false)
		if err != nil || !present {
			return zero, present, err
		}
		return fn(e), true, nil
	}
	if fn, ok := binaryOps[op]; ok {
		args, present, err := c.operands(op, arg, 2)
		if err != nil || !present {
			return zero, present, err
		}
		return fn(args[0], args[1]), true, nil
	}

	switch op {
	case "field":
		e, err := c.field(arg.Value)
		return e, true, c.wrap(arg, err)
	case "value":
		v, err := decodeScalar(arg)
		if err != nil {
			return zero, false, err
		}
		return queryir.Value(v), true, nil
	case "param":
		v, ok := c.param(arg.Value)
		if !ok {
			return zero, false, nil
		}
		return queryir.Value(v), true, nil
	case "const":
		v, err := decodeScalar(arg)
		if err != nil {
			return zero, false, err
		}
		return queryir.Constant(v), true, nil
	case "count_all":
		p, ok := c.paths[arg.Value]
		if !ok {
			return zero, false, c.errorf(arg, "unknown alias %q", arg.Value)
		}
		return p.Count(), true, nil
	case "func":
		return c.function(arg)
	}
	return zero, false, c.errorf(arg, "unknown operator %q", op)
}

// operands parses a sequence of exactly n operands: the first an
// expression, the rest values.
func (c *compiler) operands(op string, n *yaml.Node, count int) ([]queryir.Expr, bool, error) {
	if n.Kind != yaml.SequenceNode || len(n.Content) != count {
		return nil, false, c.errorf(n, "%s takes a list of %d operands", op, count)
	}
	out := make([]queryir.Expr, count)
	for i, item := range n.Content {
		e, ok, err := c.expr(item, i > 0)
		if err != nil || !ok {
			return nil, ok, err
		}
		out[i] = e
	}
	return out, true, nil
}

func (c *compiler) function(n *yaml.Node) (queryir.Expr, bool, error) {
	var spec struct {
		Name string      `yaml:"name"`
		Args []yaml.Node `yaml:"args"`
	}
	if err := n.Decode(&spec); err != nil {
		return queryir.Expr{}, false, c.wrap(n, err)
	}
	args := make([]any, len(spec.Args))
	for i := range spec.Args {
		e, ok, err := c.expr(&spec.Args[i], i > 0)
		if err != nil || !ok {
			return queryir.Expr{}, ok, err
		}
		args[i] = e
	}
	return queryir.Function(spec.Name, args...), true, nil
}

// predicate parses a filter. A missing node, a null, and a predicate over
// an unset parameter all yield nil.
func (c *compiler) predicate(n *yaml.Node) (queryir.Predicate, error) {
	if n.Kind == 0 || (n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null") {
		return nil, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, c.errorf(n, "predicate must be a mapping")
	}
	op, arg, _, err := c.operator(n)
	if err != nil {
		return nil, err
	}

	if fn, ok := compareOps[op]; ok {
		args, present, err := c.operands(op, arg, 2)
		if err != nil || !present {
			return nil, err
		}
		return fn(args[0], args[1]), nil
	}

	switch op {
	case "and", "or":
		if arg.Kind != yaml.SequenceNode {
			return nil, c.errorf(arg, "%s takes a list of predicates", op)
		}
		preds := make([]queryir.Predicate, len(arg.Content))
		for i, item := range arg.Content {
			if preds[i], err = c.predicate(item); err != nil {
				return nil, err
			}
		}
		if op == "and" {
			return queryir.AllOf(preds...), nil
		}
		return queryir.AnyOf(preds...), nil
	case "not":
		p, err := c.predicate(arg)
		if err != nil {
			return nil, err
		}
		return queryir.Not(p), nil
	case "between":
		args, present, err := c.operands(op, arg, 3)
		if err != nil || !present {
			return nil, err
		}
		return args[0].Between(args[1], args[2]), nil
	case "in", "not_in":
		return c.membership(op, arg)
	case "is_null", "is_not_null":
		e, present, err := c.expr(arg, false)
		if err != nil || !present {
			return nil, err
		}
		if op == "is_null" {
			return e.IsNull(), nil
		}
		return e.IsNotNull(), nil
	case "like", "starts_with":
		return c.textMatch(op, arg)
	}
	return nil, c.errorf(arg, "unknown predicate %q", op)
}

func (c *compiler) membership(op string, n *yaml.Node) (queryir.Predicate, error) {
	if n.Kind != yaml.SequenceNode || len(n.Content) != 2 {
		return nil, c.errorf(n, "%s takes an expression and a list of values", op)
	}
	e, present, err := c.expr(n.Content[0], false)
	if err != nil || !present {
		return nil, err
	}

	var values []any
	list := n.Content[1]
	switch {
	case list.Kind == yaml.ScalarNode && strings.HasPrefix(list.Value, "$"):
		v, ok := c.param(list.Value)
		if !ok {
			return nil, nil
		}
		values = []any{v}
	case list.Kind == yaml.SequenceNode:
		for _, item := range list.Content {
			v, ok, err := c.expr(item, true)
			if err != nil || !ok {
				return nil, err
			}
			values = append(values, v)
		}
	default:
		return nil, c.errorf(list, "%s values must be a list or a parameter", op)
	}

	if op == "not_in" {
		return e.NotIn(values...), nil
	}
	return e.In(values...), nil
}

func (c *compiler) textMatch(op string, n *yaml.Node) (queryir.Predicate, error) {
	if n.Kind != yaml.SequenceNode || len(n.Content) != 2 {
		return nil, c.errorf(n, "%s takes an expression and a pattern", op)
	}
	e, present, err := c.expr(n.Content[0], false)
	if err != nil || !present {
		return nil, err
	}

	pattern := n.Content[1]
	s := pattern.Value
	if strings.HasPrefix(s, "$") {
		v, ok := c.param(s)
		if !ok {
			return nil, nil
		}
		if s, ok = v.(string); !ok {
			return nil, c.errorf(pattern, "%s pattern parameter must be a string, got %T", op, v)
		}
	} else if pattern.Kind != yaml.ScalarNode || pattern.ShortTag() != "!!str" {
		return nil, c.errorf(pattern, "%s pattern must be a string", op)
	}

	if op == "like" {
		return e.Like(s), nil
	}
	return e.StartsWith(s), nil
}
