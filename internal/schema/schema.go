package schema

import (
	"fmt"
	"strings"
	"unicode"
)

// FieldType is the declared type of an entity field.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeInteger FieldType = "integer"
	TypeFloat   FieldType = "float"
	TypeBoolean FieldType = "boolean"
	TypeRef     FieldType = "ref"
)

// Valid reports whether t is one of the known field types.
func (t FieldType) Valid() bool {
	switch t {
	case TypeString, TypeInteger, TypeFloat, TypeBoolean, TypeRef:
		return true
	}
	return false
}

// Field describes one column of an entity.
type Field struct {
	Name       string    `yaml:"name" json:"name"`
	Column     string    `yaml:"column,omitempty" json:"column,omitempty"`
	Type       FieldType `yaml:"type" json:"type"`
	Nullable   bool      `yaml:"nullable,omitempty" json:"nullable,omitempty"`
	PrimaryKey bool      `yaml:"primary_key,omitempty" json:"primary_key,omitempty"`
	Target     string    `yaml:"target,omitempty" json:"target,omitempty"` // ref only
}

// IsRelation reports whether the field is a to-one relation.
func (f Field) IsRelation() bool {
	return f.Type == TypeRef
}

// Entity describes a queryable entity and the table backing it.
type Entity struct {
	Name   string  `yaml:"name" json:"name"`
	Table  string  `yaml:"table,omitempty" json:"table,omitempty"`
	Fields []Field `yaml:"fields" json:"fields"`
}

// Field returns the field with the given name.
func (e *Entity) Field(name string) (Field, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// PrimaryKey returns the primary key field. NewRegistry guarantees that
// every registered entity has exactly one.
func (e *Entity) PrimaryKey() Field {
	for _, f := range e.Fields {
		if f.PrimaryKey {
			return f
		}
	}
	return Field{}
}

// Registry is an immutable set of entities, kept in declaration order.
type Registry struct {
	entities []*Entity
	byName   map[string]*Entity
}

// NewRegistry fills defaults (table and column names), validates the
// entities and returns a Registry. All validation errors are reported
// together.
func NewRegistry(entities ...Entity) (*Registry, error) {
	r := &Registry{byName: make(map[string]*Entity, len(entities))}
	for i := range entities {
		e := normalizeEntity(entities[i])
		r.entities = append(r.entities, &e)
		if _, dup := r.byName[e.Name]; !dup {
			r.byName[e.Name] = &e
		}
	}

	if errs := Validate(r); len(errs) > 0 {
		return nil, &RegistryError{Errors: errs}
	}
	return r, nil
}

// MustRegistry is like NewRegistry but panics on error.
// Use only in tests or for package-level metadata.
func MustRegistry(entities ...Entity) *Registry {
	r, err := NewRegistry(entities...)
	if err != nil {
		panic(err)
	}
	return r
}

// Entity returns the entity with the given name.
func (r *Registry) Entity(name string) (*Entity, bool) {
	e, ok := r.byName[name]
	return e, ok
}

// Entities returns all entities in declaration order.
func (r *Registry) Entities() []*Entity {
	out := make([]*Entity, len(r.entities))
	copy(out, r.entities)
	return out
}

// RelationTarget resolves the target entity of a ref field.
func (r *Registry) RelationTarget(f Field) (*Entity, error) {
	if !f.IsRelation() {
		return nil, fmt.Errorf("field %q is not a relation", f.Name)
	}
	target, ok := r.byName[f.Target]
	if !ok {
		return nil, fmt.Errorf("field %q: unknown target entity %q", f.Name, f.Target)
	}
	return target, nil
}

// ValueType returns the storage type of a field. For a ref field this is
// the type of the target's primary key.
func (r *Registry) ValueType(f Field) FieldType {
	if !f.IsRelation() {
		return f.Type
	}
	target, err := r.RelationTarget(f)
	if err != nil {
		return TypeInteger
	}
	return target.PrimaryKey().Type
}

func normalizeEntity(e Entity) Entity {
	if e.Table == "" {
		e.Table = snakeCase(e.Name)
	}
	fields := make([]Field, len(e.Fields))
	for i, f := range e.Fields {
		if f.Column == "" {
			f.Column = snakeCase(f.Name)
			if f.IsRelation() {
				f.Column += "_id"
			}
		}
		fields[i] = f
	}
	e.Fields = fields
	return e
}

// snakeCase converts "TeamMember" or "teamMember" to "team_member".
func snakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
