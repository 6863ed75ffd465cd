package queryir

import "github.com/roach88/qdsl/internal/ir"

// ExprNode is a node of an expression tree.
//
// This is a sealed interface - only types in this package implement it.
// Backend compilers switch over the concrete node types:
//   - *FieldRef: a column of an aliased entity
//   - *Literal: a bound parameter value
//   - *ConstantValue: a projected constant, never sent to the database
//   - *Unary: lower, upper, length, string cast
//   - *Binary: arithmetic and concatenation
//   - *Aggregate: count, sum, avg, max, min
//   - *ScalarQuery: a subquery producing one value
//   - *CaseExpr: searched or simple case
//   - *FuncCall: a named database function
type ExprNode interface {
	exprNode() // Marker method - seals interface to this package
}

// Expr is an immutable expression value. The fluent methods return new
// expressions and predicates and never modify the receiver.
//
// An operator applied to an incompatible operand type does not panic: the
// result carries an *UnsupportedOperatorError, reported by Err and by
// Build of every descriptor the expression reaches.
type Expr struct {
	node     ExprNode
	typ      ValueType
	nullable bool
	alias    string
	err      error
}

// Node returns the expression's root node, nil for the zero Expr.
func (e Expr) Node() ExprNode { return e.node }

// Type returns the static result type.
func (e Expr) Type() ValueType { return e.typ }

// Nullable reports whether the expression may evaluate to NULL.
func (e Expr) Nullable() bool { return e.nullable }

// Alias returns the name assigned with As, or "".
func (e Expr) Alias() string { return e.alias }

// Err returns the deferred construction error, if any.
func (e Expr) Err() error { return e.err }

// IsZero reports whether e is the zero Expr.
func (e Expr) IsZero() bool { return e.node == nil && e.err == nil }

// Name returns the name used to bind the expression to a target field: the
// alias when set, otherwise the field name of a plain field reference.
func (e Expr) Name() string {
	if e.alias != "" {
		return e.alias
	}
	if f, ok := e.node.(*FieldRef); ok {
		return f.Field
	}
	return ""
}

// Field returns the referenced field when e is a plain field reference.
func (e Expr) Field() (*FieldRef, bool) {
	f, ok := e.node.(*FieldRef)
	return f, ok
}

// As names the expression. The alias overrides the field name when binding
// to a target type and can be looked up in tuples.
func (e Expr) As(alias string) Expr {
	if e.err == nil && !identPattern.MatchString(alias) {
		e.err = invalidQuery(CodeInvalidAlias, "alias %q is not an identifier", alias)
	}
	e.alias = alias
	return e
}

// Literal is a value bound as a statement parameter.
type Literal struct {
	Value ir.Value
}

func (*Literal) exprNode() {}

// ConstantValue is a projected constant. It is added to each result row by
// the mapper and is not part of the generated SQL.
type ConstantValue struct {
	Value ir.Value
}

func (*ConstantValue) exprNode() {}

// UnaryOp names a single-argument function.
type UnaryOp string

const (
	OpLower       UnaryOp = "lower"
	OpUpper       UnaryOp = "upper"
	OpLength      UnaryOp = "length"
	OpStringValue UnaryOp = "str"
)

// Unary applies a single-argument function.
type Unary struct {
	Op  UnaryOp
	Arg Expr
}

func (*Unary) exprNode() {}

// BinaryOp names an infix operator.
type BinaryOp string

const (
	OpAdd      BinaryOp = "+"
	OpSubtract BinaryOp = "-"
	OpMultiply BinaryOp = "*"
	OpConcat   BinaryOp = "concat"
)

// Binary applies an infix operator.
type Binary struct {
	Op          BinaryOp
	Left, Right Expr
}

func (*Binary) exprNode() {}

// AggFunc names an aggregate function.
type AggFunc string

const (
	AggCount AggFunc = "count"
	AggSum   AggFunc = "sum"
	AggAvg   AggFunc = "avg"
	AggMax   AggFunc = "max"
	AggMin   AggFunc = "min"
)

// Aggregate applies an aggregate function to its argument.
type Aggregate struct {
	Func     AggFunc
	Arg      Expr
	Distinct bool
}

func (*Aggregate) exprNode() {}

// ScalarQuery is a subquery used as a value.
type ScalarQuery struct {
	Query *QueryDescriptor
}

func (*ScalarQuery) exprNode() {}

// CaseExpr is a searched case (Operand zero, When.Cond set) or a simple
// case (Operand set, When.Match set).
type CaseExpr struct {
	Operand Expr
	Whens   []CaseWhen
	Else    Expr // zero means NULL
}

// CaseWhen is one branch of a CaseExpr.
type CaseWhen struct {
	Cond   Predicate
	Match  Expr
	Result Expr
}

func (*CaseExpr) exprNode() {}

// FuncCall calls a database function by name, e.g. replace.
type FuncCall struct {
	Name string
	Args []Expr
}

func (*FuncCall) exprNode() {}

// Value wraps a Go value as a literal expression. Floats are rejected.
func Value(v any) Expr {
	return toExpr("value", v)
}

// Constant returns a projected constant. Constants are added to each row
// by the mapper and are not sent to the database.
func Constant(v any) Expr {
	val, err := ir.FromGo(v)
	if err != nil {
		return Expr{err: unsupported(CodeUnsupportedLiteral, "constant", "%v", err)}
	}
	typ, nullable := literalType(val)
	return Expr{node: &ConstantValue{Value: val}, typ: typ, nullable: nullable}
}

// Function calls a database function by name. Arguments may be expressions
// or Go literals. The result type is TypeAny.
func Function(name string, args ...any) Expr {
	if !identPattern.MatchString(name) {
		return Expr{err: unsupported(CodeInvalidFunction, name, "function name is not an identifier")}
	}
	call := &FuncCall{Name: name, Args: make([]Expr, len(args))}
	for i, a := range args {
		call.Args[i] = toExpr(name, a)
	}
	return Expr{node: call, typ: TypeAny, nullable: true, err: firstErr(call.Args...)}
}

// Subquery turns a query builder into a scalar expression. The subquery
// must project exactly one column; it may reference the enclosing query's
// aliases, which are checked when the enclosing query is built.
func Subquery(b QueryBuilder) Expr {
	d, err := b.descriptor()
	if err != nil {
		return Expr{err: err}
	}
	cols := d.projection.Columns()
	if len(cols) != 1 {
		return Expr{err: invalidQuery(CodeInvalidSubquery, "subquery must project exactly one column, got %d", len(cols))}
	}
	return Expr{node: &ScalarQuery{Query: d}, typ: cols[0].typ, nullable: true}
}

// toExpr converts an operand: an Expr is returned as is, a QueryBuilder
// becomes a subquery, anything else becomes a literal.
func toExpr(op string, v any) Expr {
	switch val := v.(type) {
	case Expr:
		return val
	case QueryBuilder:
		return Subquery(val)
	}
	lit, err := ir.FromGo(v)
	if err != nil {
		return Expr{err: unsupported(CodeUnsupportedLiteral, op, "%v", err)}
	}
	if _, isArray := lit.(ir.Array); isArray {
		return Expr{err: unsupported(CodeUnsupportedLiteral, op, "list literal is only allowed in In and NotIn")}
	}
	typ, nullable := literalType(lit)
	return Expr{node: &Literal{Value: lit}, typ: typ, nullable: nullable}
}

func literalType(v ir.Value) (ValueType, bool) {
	switch v.(type) {
	case ir.String:
		return TypeString, false
	case ir.Int:
		return TypeInteger, false
	case ir.Bool:
		return TypeBoolean, false
	}
	return TypeAny, true
}

func isNullLiteral(e Expr) bool {
	lit, ok := e.node.(*Literal)
	if !ok {
		return false
	}
	_, null := lit.Value.(ir.Null)
	return null
}

// firstErr returns the first construction error among exprs.
func firstErr(exprs ...Expr) error {
	for _, e := range exprs {
		if e.err != nil {
			return e.err
		}
	}
	return nil
}

func (e Expr) unary(op UnaryOp, result ValueType, accept func(ValueType) bool) Expr {
	if e.err != nil {
		return Expr{err: e.err}
	}
	if !accept(e.typ) {
		return Expr{err: unsupported(CodeOperandType, string(op), "not applicable to %s", e.typ)}
	}
	return Expr{node: &Unary{Op: op, Arg: e}, typ: result, nullable: e.nullable}
}

// Lower converts a string expression to lower case.
func (e Expr) Lower() Expr { return e.unary(OpLower, TypeString, ValueType.isString) }

// Upper converts a string expression to upper case.
func (e Expr) Upper() Expr { return e.unary(OpUpper, TypeString, ValueType.isString) }

// Length returns the character length of a string expression.
func (e Expr) Length() Expr { return e.unary(OpLength, TypeInteger, ValueType.isString) }

// StringValue casts any expression to a string.
func (e Expr) StringValue() Expr {
	return e.unary(OpStringValue, TypeString, func(ValueType) bool { return true })
}

func (e Expr) arithmetic(op BinaryOp, other any) Expr {
	r := toExpr(string(op), other)
	if err := firstErr(e, r); err != nil {
		return Expr{err: err}
	}
	if !e.typ.isNumeric() || !r.typ.isNumeric() {
		return Expr{err: unsupported(CodeOperandType, string(op), "operands must be numeric, got %s and %s", e.typ, r.typ)}
	}
	typ := TypeInteger
	if e.typ != TypeInteger || r.typ != TypeInteger {
		typ, _ = merge(e.typ, r.typ)
	}
	return Expr{node: &Binary{Op: op, Left: e, Right: r}, typ: typ, nullable: e.nullable || r.nullable}
}

// Add returns e + other.
func (e Expr) Add(other any) Expr { return e.arithmetic(OpAdd, other) }

// Subtract returns e - other.
func (e Expr) Subtract(other any) Expr { return e.arithmetic(OpSubtract, other) }

// Multiply returns e * other.
func (e Expr) Multiply(other any) Expr { return e.arithmetic(OpMultiply, other) }

// Concat appends a string to a string expression. Non-string operands must
// be cast with StringValue first.
func (e Expr) Concat(other any) Expr {
	r := toExpr(string(OpConcat), other)
	if err := firstErr(e, r); err != nil {
		return Expr{err: err}
	}
	if !e.typ.isString() || !r.typ.isString() {
		return Expr{err: unsupported(CodeOperandType, string(OpConcat), "operands must be strings, got %s and %s", e.typ, r.typ)}
	}
	return Expr{node: &Binary{Op: OpConcat, Left: e, Right: r}, typ: TypeString, nullable: e.nullable || r.nullable}
}

func (e Expr) aggregate(fn AggFunc, distinct bool) Expr {
	if e.err != nil {
		return Expr{err: e.err}
	}
	var typ ValueType
	nullable := true
	switch fn {
	case AggCount:
		typ, nullable = TypeInteger, false
	case AggSum:
		if !e.typ.isNumeric() {
			return Expr{err: unsupported(CodeOperandType, string(fn), "not applicable to %s", e.typ)}
		}
		typ = e.typ
	case AggAvg:
		if !e.typ.isNumeric() {
			return Expr{err: unsupported(CodeOperandType, string(fn), "not applicable to %s", e.typ)}
		}
		typ = TypeFloat
	case AggMax, AggMin:
		if !e.typ.isOrdered() {
			return Expr{err: unsupported(CodeOperandType, string(fn), "not applicable to %s", e.typ)}
		}
		typ = e.typ
	}
	return Expr{node: &Aggregate{Func: fn, Arg: e, Distinct: distinct}, typ: typ, nullable: nullable}
}

// Count counts non-null values of e.
func (e Expr) Count() Expr { return e.aggregate(AggCount, false) }

// CountDistinct counts distinct non-null values of e.
func (e Expr) CountDistinct() Expr { return e.aggregate(AggCount, true) }

// Sum adds up a numeric expression over a group.
func (e Expr) Sum() Expr { return e.aggregate(AggSum, false) }

// Avg averages a numeric expression over a group. The result is a float.
func (e Expr) Avg() Expr { return e.aggregate(AggAvg, false) }

// Max returns the largest value over a group.
func (e Expr) Max() Expr { return e.aggregate(AggMax, false) }

// Min returns the smallest value over a group.
func (e Expr) Min() Expr { return e.aggregate(AggMin, false) }

// CaseBuilder accumulates the branches of a case expression.
type CaseBuilder struct {
	operand Expr
	simple  bool
	whens   []CaseWhen
	err     error
}

// CaseWhenStep is a branch waiting for its result.
type CaseWhenStep struct {
	b    CaseBuilder
	when CaseWhen
}

// Case starts a searched case expression: When takes predicates.
func Case() CaseBuilder {
	return CaseBuilder{}
}

// When starts a simple case expression on e: When takes values compared
// for equality with e.
func (e Expr) When(v any) CaseWhenStep {
	return CaseBuilder{operand: e, simple: true, err: e.err}.When(v)
}

// When adds a branch condition. For a searched case cond must be a
// Predicate; for a simple case it is a value compared with the operand.
func (b CaseBuilder) When(cond any) CaseWhenStep {
	step := CaseWhenStep{b: b}
	if b.simple {
		m := toExpr("when", cond)
		if b.err == nil && m.err != nil {
			step.b.err = m.err
		} else if b.err == nil && !compatible(b.operand.typ, m.typ) {
			step.b.err = unsupported(CodeOperandType, "when", "cannot compare %s with %s", b.operand.typ, m.typ)
		}
		step.when.Match = m
		return step
	}

	p, ok := cond.(Predicate)
	if !ok || isAbsent(p) {
		if b.err == nil {
			step.b.err = unsupported(CodeOperandType, "when", "searched case requires a predicate, got %T", cond)
		}
		return step
	}
	if err := PredicateErr(p); err != nil && b.err == nil {
		step.b.err = err
	}
	step.when.Cond = p
	return step
}

// Then sets the result of the pending branch.
func (s CaseWhenStep) Then(v any) CaseBuilder {
	b := s.b
	r := toExpr("then", v)
	if b.err == nil && r.err != nil {
		b.err = r.err
	}
	s.when.Result = r
	b.whens = append(b.whens[:len(b.whens):len(b.whens)], s.when)
	return b
}

// Otherwise finishes the case expression with a default result.
func (b CaseBuilder) Otherwise(v any) Expr {
	return b.finish(toExpr("otherwise", v))
}

// End finishes the case expression; rows matching no branch yield NULL.
func (b CaseBuilder) End() Expr {
	return b.finish(Expr{})
}

func (b CaseBuilder) finish(def Expr) Expr {
	if b.err != nil {
		return Expr{err: b.err}
	}
	if def.err != nil {
		return Expr{err: def.err}
	}
	if len(b.whens) == 0 {
		return Expr{err: invalidQuery(CodeInvalidExpression, "case expression needs at least one branch")}
	}

	typ := TypeAny
	nullable := def.IsZero() || def.nullable
	results := make([]Expr, 0, len(b.whens)+1)
	for _, w := range b.whens {
		results = append(results, w.Result)
	}
	if !def.IsZero() {
		results = append(results, def)
	}
	for _, r := range results {
		merged, ok := merge(typ, r.typ)
		if !ok {
			return Expr{err: unsupported(CodeOperandType, "case", "branch results %s and %s do not agree", typ, r.typ)}
		}
		typ = merged
		nullable = nullable || r.nullable
	}

	return Expr{
		node:     &CaseExpr{Operand: b.operand, Whens: b.whens, Else: def},
		typ:      typ,
		nullable: nullable,
	}
}
