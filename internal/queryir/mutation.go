package queryir

import (
	"slices"

	"github.com/roach88/qdsl/internal/ir"
)

// MutationKind is the kind of bulk mutation.
type MutationKind string

const (
	UpdateMutation MutationKind = "update"
	DeleteMutation MutationKind = "delete"
)

// Assignment sets Field to Value in every affected row.
type Assignment struct {
	Field *FieldRef
	Value Expr
}

// MutationDescriptor is an immutable set-based update or delete.
//
// Bulk mutations run directly against the database. Any instance state a
// caller holds for affected rows is stale afterwards and must be reloaded
// by the caller.
type MutationDescriptor struct {
	kind        MutationKind
	target      EntityPath
	assignments []Assignment
	where       Predicate
	fingerprint string
}

// Kind returns update or delete.
func (m *MutationDescriptor) Kind() MutationKind { return m.kind }

// Target returns the mutated entity.
func (m *MutationDescriptor) Target() EntityPath { return m.target }

// Assignments returns the update assignments in declaration order.
func (m *MutationDescriptor) Assignments() []Assignment { return slices.Clone(m.assignments) }

// Where returns the row filter, nil when every row is affected.
func (m *MutationDescriptor) Where() Predicate { return m.where }

// Fingerprint returns a stable hex SHA-256 identity of the descriptor.
func (m *MutationDescriptor) Fingerprint() string { return m.fingerprint }

// MutationBuilder accumulates a mutation. Like QueryBuilder it is a value.
type MutationBuilder struct {
	d   MutationDescriptor
	err error
}

// Update starts a bulk update of target.
func Update(target EntityPath) MutationBuilder {
	return MutationBuilder{d: MutationDescriptor{kind: UpdateMutation, target: target}}
}

// Delete starts a bulk delete of target.
func Delete(target EntityPath) MutationBuilder {
	return MutationBuilder{d: MutationDescriptor{kind: DeleteMutation, target: target}}
}

// Set assigns value to field. value may be a Go literal or an expression
// over the target's fields, e.g. m.age.Add(1).
func (b MutationBuilder) Set(field Expr, value any) MutationBuilder {
	if field.err != nil {
		return b.fail(field.err)
	}
	ref, ok := field.node.(*FieldRef)
	if !ok {
		return b.fail(invalidQuery(CodeInvalidMutation, "assignment target must be a field"))
	}
	a := Assignment{Field: ref, Value: toExpr("set", value)}
	b.d.assignments = append(slices.Clip(b.d.assignments), a)
	return b
}

// SetNull assigns NULL to field.
func (b MutationBuilder) SetNull(field Expr) MutationBuilder {
	return b.Set(field, ir.Null{})
}

// Where adds filters, combined with And. Nil predicates are ignored.
func (b MutationBuilder) Where(preds ...Predicate) MutationBuilder {
	b.d.where = AllOf(append([]Predicate{b.d.where}, preds...)...)
	return b
}

func (b MutationBuilder) fail(err error) MutationBuilder {
	if b.err == nil {
		b.err = err
	}
	return b
}

// Build validates the mutation: assignments must target fields of the
// mutated entity with values of a compatible type, updates need at least
// one assignment and deletes none.
func (b MutationBuilder) Build() (*MutationDescriptor, error) {
	if b.err != nil {
		return nil, b.err
	}
	d := b.d
	if err := validateMutation(&d); err != nil {
		return nil, err
	}
	var err error
	d.fingerprint, err = ir.Fingerprint(ir.DomainMutation, describeMutation(&d))
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// MustBuild is like Build but panics on error.
func (b MutationBuilder) MustBuild() *MutationDescriptor {
	d, err := b.Build()
	if err != nil {
		panic(err)
	}
	return d
}

func validateMutation(d *MutationDescriptor) error {
	if d.target.IsZero() {
		return invalidQuery(CodeInvalidMutation, "mutation has no target entity")
	}
	switch {
	case d.kind == UpdateMutation && len(d.assignments) == 0:
		return invalidQuery(CodeInvalidMutation, "update needs at least one assignment")
	case d.kind == DeleteMutation && len(d.assignments) > 0:
		return invalidQuery(CodeInvalidMutation, "delete cannot have assignments")
	}

	v := &validator{}
	sc := newScope(nil)
	v.declare(sc, d.target)

	seen := make(map[string]bool)
	for _, a := range d.assignments {
		f := a.Field
		if f.Alias != d.target.Alias() || f.Entity != d.target.Name() {
			return invalidQuery(CodeInvalidMutation, "field %s is not a field of %s", f.Key(), d.target)
		}
		if seen[f.Field] {
			return invalidQuery(CodeInvalidMutation, "field %s is assigned more than once", f.Key())
		}
		seen[f.Field] = true
		if f.Field == d.target.Entity().PrimaryKey().Name {
			return invalidQuery(CodeInvalidMutation, "primary key %s cannot be assigned", f.Key())
		}

		if a.Value.err != nil {
			return a.Value.err
		}
		switch {
		case isNullLiteral(a.Value) && !f.Nullable:
			return unsupported(CodeOperandType, "set", "field %s is not nullable", f.Key())
		case !assignable(f.Type, a.Value.typ):
			return unsupported(CodeOperandType, "set", "cannot assign %s to %s field %s", a.Value.typ, f.Type, f.Key())
		}
		v.expr(a.Value, sc, false)
	}
	v.predicate(d.where, sc, false)
	return v.err
}

func describeMutation(d *MutationDescriptor) map[string]any {
	set := make([]any, len(d.assignments))
	for i, a := range d.assignments {
		set[i] = map[string]any{"field": a.Field.Key(), "value": describeExpr(a.Value)}
	}
	return map[string]any{
		"kind":   string(d.kind),
		"target": describePath(d.target),
		"set":    set,
		"where":  describePredicate(d.where),
	}
}
