package mapper

import (
	"fmt"
	"reflect"

	"github.com/roach88/qdsl/internal/ir"
	"github.com/roach88/qdsl/internal/queryir"
)

// Results iterates the projected values of a result set. It is
// single-pass: once Next returns false it keeps returning false.
//
//	res := mapper.Map(q.Projection(), rows)
//	defer res.Close()
//	for res.Next() {
//	    v := res.Value()
//	}
//	if err := res.Err(); err != nil { ... }
type Results struct {
	rows   RowSource
	bind   *binder
	cur    any
	err    error
	done   bool
	closed bool
}

// Map returns the results of mapping rows through p. The returned Results
// owns rows and closes it when exhausted or closed.
func Map(p queryir.Projection, rows RowSource) *Results {
	r := &Results{rows: rows}
	r.bind, r.err = newBinder(p)
	if r.err != nil {
		r.finish()
	}
	return r
}

// Next advances to the next value. It returns false when the rows are
// exhausted or an error occurred; check Err afterwards.
func (r *Results) Next() bool {
	if r.done {
		return false
	}
	if !r.rows.Next() {
		r.err = r.rows.Err()
		r.finish()
		return false
	}
	raw, err := r.rows.Values()
	if err != nil {
		r.err = err
		r.finish()
		return false
	}
	v, err := r.bind.bind(raw)
	if err != nil {
		r.err = err
		r.finish()
		return false
	}
	r.cur = v
	return true
}

// Value returns the current value.
func (r *Results) Value() any { return r.cur }

// Err returns the first error encountered.
func (r *Results) Err() error { return r.err }

// Close stops iteration and releases the rows.
func (r *Results) Close() error {
	r.done = true
	r.cur = nil
	if r.closed {
		return nil
	}
	r.closed = true
	return r.rows.Close()
}

func (r *Results) finish() {
	if err := r.Close(); err != nil && r.err == nil {
		r.err = err
	}
}

// Collect drains r into a slice. Every value must be a T.
func Collect[T any](r *Results) ([]T, error) {
	defer r.Close()

	out := []T{}
	for r.Next() {
		v, ok := r.Value().(T)
		if !ok {
			return nil, queryir.NewProjectionMismatch(queryir.CodeIncompatibleType, -1,
				"result %T is not a %s", r.Value(), reflect.TypeOf((*T)(nil)).Elem())
		}
		out = append(out, v)
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Export converts a projected value into plain data for printing: tuples
// become slices and records maps. Other values are returned unchanged.
func Export(v any) any {
	switch val := v.(type) {
	case *Tuple:
		return val.Values()
	case *Record:
		return val.Map()
	}
	return v
}

// binder maps one raw row to one projected value.
type binder struct {
	cols []queryir.Expr

	// source[i] is the raw row index of column i, or -1 for a constant.
	source    []int
	constants []any
	width     int
	build     func(vals []any) (any, error)
}

func newBinder(p queryir.Projection) (*binder, error) {
	if p == nil {
		return nil, queryir.NewProjectionMismatch(queryir.CodeInvalidTarget, -1, "no projection")
	}
	if err := queryir.ProjectionErr(p); err != nil {
		return nil, err
	}

	b := &binder{cols: p.Columns()}
	b.source = make([]int, len(b.cols))
	b.constants = make([]any, len(b.cols))
	for i, c := range b.cols {
		if cv, ok := c.Node().(*queryir.ConstantValue); ok {
			v, err := ir.ToGo(cv.Value)
			if err != nil {
				return nil, queryir.NewProjectionMismatch(queryir.CodeIncompatibleType, i, "%v", err)
			}
			b.source[i] = -1
			b.constants[i] = v
			continue
		}
		b.source[i] = b.width
		b.width++
	}

	switch proj := p.(type) {
	case *queryir.SingleProjection:
		b.build = func(vals []any) (any, error) { return vals[0], nil }
	case *queryir.TupleProjection:
		layout := newTupleLayout(b.cols)
		b.build = func(vals []any) (any, error) {
			return &Tuple{layout: layout, values: vals}, nil
		}
	case *queryir.EntityProjection:
		layout := newRecordLayout(proj)
		b.build = func(vals []any) (any, error) { return layout.record(vals), nil }
	case *queryir.ConstructorProjection:
		b.build = constructorBuilder(proj)
	case *queryir.FieldProjection:
		b.build = fieldBuilder(proj)
	default:
		return nil, queryir.NewProjectionMismatch(queryir.CodeInvalidTarget, -1, "unsupported projection %T", p)
	}
	return b, nil
}

func (b *binder) bind(raw []any) (any, error) {
	if len(raw) != b.width {
		return nil, queryir.NewProjectionMismatch(queryir.CodeArity, -1,
			"row has %d columns, projection expects %d", len(raw), b.width)
	}
	vals := make([]any, len(b.cols))
	for i, c := range b.cols {
		if b.source[i] < 0 {
			vals[i] = b.constants[i]
			continue
		}
		v, err := normalize(raw[b.source[i]], c.Type(), i)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return b.build(vals)
}

func constructorBuilder(p *queryir.ConstructorProjection) func([]any) (any, error) {
	fnType := p.Fn.Type()
	return func(vals []any) (any, error) {
		args := make([]reflect.Value, len(vals))
		for i, v := range vals {
			arg, err := assignTo(v, fnType.In(i), i)
			if err != nil {
				return nil, err
			}
			args[i] = arg
		}
		out := p.Fn.Call(args)
		if len(out) == 2 && !out[1].IsNil() {
			return nil, fmt.Errorf("construct %s: %w", p.ResultType(), out[1].Interface().(error))
		}
		return out[0].Interface(), nil
	}
}

func fieldBuilder(p *queryir.FieldProjection) func([]any) (any, error) {
	return func(vals []any) (any, error) {
		dst := reflect.New(p.Target).Elem()
		for i, v := range vals {
			f := fieldByIndexAlloc(dst, p.FieldIndex(i))
			fv, err := assignTo(v, f.Type(), i)
			if err != nil {
				return nil, err
			}
			f.Set(fv)
		}
		return dst.Interface(), nil
	}
}

// fieldByIndexAlloc is reflect.Value.FieldByIndex that allocates nil embedded
// struct pointers along the path.
func fieldByIndexAlloc(v reflect.Value, index []int) reflect.Value {
	for i, x := range index {
		if i > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(x)
	}
	return v
}
