package queryir

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/roach88/qdsl/internal/schema"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// EntityPath identifies an entity of the schema under an alias. Two paths
// over the same entity with different aliases (member, memberSub) can be
// used together for self joins and subqueries.
//
// EntityPath is a value: it describes schema, not instances.
type EntityPath struct {
	reg    *schema.Registry
	entity *schema.Entity
	alias  string
}

// NewEntityPath validates entity against reg and returns a path. An empty
// alias defaults to the entity name with a lower-case first letter.
func NewEntityPath(reg *schema.Registry, entity, alias string) (EntityPath, error) {
	if reg == nil {
		return EntityPath{}, invalidQuery(CodeUnknownEntity, "no schema registry for entity %q", entity)
	}
	e, ok := reg.Entity(entity)
	if !ok {
		return EntityPath{}, invalidQuery(CodeUnknownEntity, "unknown entity %q", entity)
	}
	if alias == "" {
		alias = defaultAlias(entity)
	}
	if !identPattern.MatchString(alias) {
		return EntityPath{}, invalidQuery(CodeInvalidAlias, "alias %q is not an identifier", alias)
	}
	return EntityPath{reg: reg, entity: e, alias: alias}, nil
}

// MustEntityPath is like NewEntityPath but panics on error.
// Use only in tests or for package-level path declarations.
func MustEntityPath(reg *schema.Registry, entity, alias string) EntityPath {
	p, err := NewEntityPath(reg, entity, alias)
	if err != nil {
		panic(err)
	}
	return p
}

func defaultAlias(entity string) string {
	r, size := utf8.DecodeRuneInString(entity)
	return string(unicode.ToLower(r)) + entity[size:]
}

// Name returns the entity name.
func (p EntityPath) Name() string { return p.entity.Name }

// Alias returns the alias the entity is referenced by.
func (p EntityPath) Alias() string { return p.alias }

// Entity returns the schema metadata of the entity.
func (p EntityPath) Entity() *schema.Entity { return p.entity }

// Registry returns the registry the path was validated against.
func (p EntityPath) Registry() *schema.Registry { return p.reg }

// IsZero reports whether p is the zero EntityPath.
func (p EntityPath) IsZero() bool { return p.entity == nil }

func (p EntityPath) String() string {
	if p.entity == nil {
		return "<nil>"
	}
	if strings.EqualFold(p.alias, p.entity.Name) {
		return p.entity.Name
	}
	return p.entity.Name + " " + p.alias
}

// Field returns an expression referencing the named field.
func (p EntityPath) Field(name string) (Expr, error) {
	if p.entity == nil {
		return Expr{}, invalidQuery(CodeUnknownEntity, "field %q of zero entity path", name)
	}
	f, ok := p.entity.Field(name)
	if !ok {
		return Expr{}, invalidQuery(CodeUnknownField, "entity %s has no field %q", p.entity.Name, name)
	}
	ref := &FieldRef{
		Alias:    p.alias,
		Entity:   p.entity.Name,
		Field:    f.Name,
		Column:   f.Column,
		Type:     typeOf(p.reg, f),
		Nullable: f.Nullable,
		Target:   f.Target,
	}
	return Expr{node: ref, typ: ref.Type, nullable: f.Nullable}, nil
}

// MustField is like Field but panics on error.
func (p EntityPath) MustField(name string) Expr {
	e, err := p.Field(name)
	if err != nil {
		panic(err)
	}
	return e
}

// Fields returns one expression per entity field, in schema order.
func (p EntityPath) Fields() []Expr {
	out := make([]Expr, len(p.entity.Fields))
	for i, f := range p.entity.Fields {
		out[i] = p.MustField(f.Name)
	}
	return out
}

// PrimaryKey returns an expression for the entity's primary key.
func (p EntityPath) PrimaryKey() Expr {
	return p.MustField(p.entity.PrimaryKey().Name)
}

// Count counts the rows of the entity, like count(member) in JPQL.
func (p EntityPath) Count() Expr {
	return p.PrimaryKey().Count()
}

// FieldRef references one column of an aliased entity.
type FieldRef struct {
	Alias    string
	Entity   string
	Field    string
	Column   string
	Type     ValueType
	Nullable bool

	// Target is the related entity for relation fields, "" otherwise.
	Target string
}

func (*FieldRef) exprNode() {}

// Key identifies the field within a query, e.g. "member.age".
func (f *FieldRef) Key() string { return f.Alias + "." + f.Field }

// IsRelation reports whether the field is a to-one relation.
func (f *FieldRef) IsRelation() bool { return f.Target != "" }
