package queryir

import (
	"reflect"
	"slices"
	"strings"
)

// Projection describes how result columns map to output values.
//
// This is a sealed interface. Projection types:
//   - *SingleProjection: the sole column value
//   - *TupleProjection: a read-only tuple addressed by expression or alias
//   - *ConstructorProjection: a function called with the columns positionally
//   - *FieldProjection: a struct populated by column name
//   - *EntityProjection: a record of every entity field, plus fetched relations
type Projection interface {
	projectionNode() // Marker method - seals interface to this package

	// Columns returns the projected expressions in output order.
	Columns() []Expr
}

// SingleProjection unwraps the sole column of each row.
type SingleProjection struct {
	Expr Expr
}

func (*SingleProjection) projectionNode() {}

func (p *SingleProjection) Columns() []Expr { return []Expr{p.Expr} }

// TupleProjection maps each row to a tuple.
type TupleProjection struct {
	Exprs []Expr
}

func (*TupleProjection) projectionNode() {}

func (p *TupleProjection) Columns() []Expr { return p.Exprs }

// ConstructorProjection calls Fn with one argument per column. Fn returns
// the result, optionally followed by an error.
type ConstructorProjection struct {
	Fn    reflect.Value
	Exprs []Expr
	err   error
}

func (*ConstructorProjection) projectionNode() {}

func (p *ConstructorProjection) Columns() []Expr { return p.Exprs }

// ResultType returns the type of the constructed value.
func (p *ConstructorProjection) ResultType() reflect.Type {
	return p.Fn.Type().Out(0)
}

// FieldProjection populates a struct of type Target. Columns are matched to
// fields by Expr.Name: the `qdsl` tag, otherwise the field name compared
// case-insensitively.
type FieldProjection struct {
	Target reflect.Type
	Exprs  []Expr
	index  [][]int
	err    error
}

func (*FieldProjection) projectionNode() {}

func (p *FieldProjection) Columns() []Expr { return p.Exprs }

// FieldIndex returns the struct field index path bound to column i.
func (p *FieldProjection) FieldIndex(i int) []int { return p.index[i] }

// FetchedRelation is a relation materialized with its owning entity by a
// fetch join.
type FetchedRelation struct {
	Field  string // relation field on the owner, e.g. "team"
	Target EntityPath
}

// EntityProjection selects every field of Path. Relations listed in Fetched
// are selected too and appear as nested records.
type EntityProjection struct {
	Path    EntityPath
	Fetched []FetchedRelation
}

func (*EntityProjection) projectionNode() {}

// Columns returns the owner's fields followed by the fields of each fetched
// relation.
func (p *EntityProjection) Columns() []Expr {
	cols := p.Path.Fields()
	for _, f := range p.Fetched {
		cols = append(cols, f.Target.Fields()...)
	}
	return cols
}

// Single projects one expression.
func Single(e Expr) Projection {
	return &SingleProjection{Expr: e}
}

// Tuple projects several expressions into tuples.
func Tuple(exprs ...Expr) Projection {
	return &TupleProjection{Exprs: slices.Clone(exprs)}
}

// Entity projects every field of p into records.
func Entity(p EntityPath) Projection {
	return &EntityProjection{Path: p}
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Constructor binds columns positionally to fn's parameters. fn must be a
// non-variadic function returning one value, or a value and an error, and
// must take exactly one parameter per column.
func Constructor(fn any, exprs ...Expr) Projection {
	p := &ConstructorProjection{Fn: reflect.ValueOf(fn), Exprs: slices.Clone(exprs)}
	if fn == nil || p.Fn.Kind() != reflect.Func {
		p.err = NewProjectionMismatch(CodeInvalidTarget, -1, "constructor must be a function, got %T", fn)
		return p
	}

	t := p.Fn.Type()
	switch {
	case t.IsVariadic():
		p.err = NewProjectionMismatch(CodeInvalidTarget, -1, "constructor %s must not be variadic", t)
	case t.NumOut() == 0 || t.NumOut() > 2 || (t.NumOut() == 2 && t.Out(1) != errorType):
		p.err = NewProjectionMismatch(CodeInvalidTarget, -1, "constructor %s must return a value and optionally an error", t)
	case t.NumIn() != len(exprs):
		p.err = NewProjectionMismatch(CodeArity, -1, "constructor %s takes %d parameters, projection has %d columns", t, t.NumIn(), len(exprs))
	}
	return p
}

// Fields binds columns by name to the fields of struct type T. Every column
// must match a field; fields without a column keep their zero value.
func Fields[T any](exprs ...Expr) Projection {
	return FieldsOf(reflect.TypeOf((*T)(nil)).Elem(), exprs...)
}

// FieldsOf is Fields with the target type given at run time.
func FieldsOf(target reflect.Type, exprs ...Expr) Projection {
	p := &FieldProjection{Target: target, Exprs: slices.Clone(exprs)}
	if target == nil || target.Kind() != reflect.Struct {
		p.err = NewProjectionMismatch(CodeInvalidTarget, -1, "target must be a struct type, got %v", target)
		return p
	}

	p.index = make([][]int, len(exprs))
	for i, e := range exprs {
		name := e.Name()
		if name == "" {
			p.err = NewProjectionMismatch(CodeUnmatchedColumn, i, "column has no name; use As to name it")
			return p
		}
		idx, ok := lookupField(target, name)
		if !ok {
			p.err = NewProjectionMismatch(CodeUnmatchedColumn, i, "%s has no field matching %q", target, name)
			return p
		}
		p.index[i] = idx
	}
	return p
}

// lookupField finds the exported field bound to name, preferring an exact
// `qdsl` tag over a case-insensitive field name.
func lookupField(t reflect.Type, name string) ([]int, bool) {
	var byName []int
	for _, f := range reflect.VisibleFields(t) {
		if !f.IsExported() || f.Anonymous || !settable(t, f.Index) {
			continue
		}
		tag := f.Tag.Get("qdsl")
		if tag == "-" {
			continue
		}
		if tag == name {
			return f.Index, true
		}
		if tag == "" && byName == nil && strings.EqualFold(f.Name, name) {
			byName = f.Index
		}
	}
	return byName, byName != nil
}

// settable reports whether the field at index can be reached for writing.
// Promoted fields behind an unexported embedded pointer cannot be allocated.
func settable(t reflect.Type, index []int) bool {
	for _, x := range index[:len(index)-1] {
		f := t.Field(x)
		t = f.Type
		if t.Kind() == reflect.Pointer {
			if !f.IsExported() {
				return false
			}
			t = t.Elem()
		}
	}
	return true
}

// ProjectionErr returns the error recorded when p was constructed, such as
// a constructor arity mismatch.
func ProjectionErr(p Projection) error {
	switch proj := p.(type) {
	case *ConstructorProjection:
		return proj.err
	case *FieldProjection:
		return proj.err
	}
	return nil
}
