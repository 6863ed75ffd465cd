package mapper

import (
	"slices"

	"github.com/roach88/qdsl/internal/queryir"
)

// Record is one entity row: every field in schema order. A relation field
// holds the foreign key; when the relation was fetch-joined the related
// row is available from Related as well.
//
// Records are plain values. They are not tracked, and changing the
// database does not change them.
type Record struct {
	entity  string
	fields  []string
	values  []any
	related map[string]*Record
	fetched map[string]bool
	rels    map[string]bool
}

// Entity returns the entity name.
func (r *Record) Entity() string { return r.entity }

// Fields returns the field names in schema order.
func (r *Record) Fields() []string { return slices.Clone(r.fields) }

// Get returns the value of field and whether the entity has such a field.
func (r *Record) Get(field string) (any, bool) {
	i := slices.Index(r.fields, field)
	if i < 0 {
		return nil, false
	}
	return r.values[i], true
}

// Related returns the record fetched for a relation field, or nil when the
// relation was not fetched or has no related row.
func (r *Record) Related(field string) *Record {
	return r.related[field]
}

// Loaded reports whether the value of field is fully materialized: true
// for plain fields and fetch-joined relations, false for relations that
// only carry their foreign key.
func (r *Record) Loaded(field string) bool {
	if !slices.Contains(r.fields, field) {
		return false
	}
	return !r.rels[field] || r.fetched[field]
}

// Map returns the record as a map, with fetched relations as nested maps.
func (r *Record) Map() map[string]any {
	m := make(map[string]any, len(r.fields))
	for i, f := range r.fields {
		m[f] = r.values[i]
		if rel, ok := r.related[f]; ok && rel != nil {
			m[f] = rel.Map()
		}
	}
	return m
}

// recordLayout describes where an entity's fields sit in the row.
type recordLayout struct {
	entity  string
	fields  []string
	rels    map[string]bool
	start   int
	fetched []fetchedLayout
}

type fetchedLayout struct {
	field  string
	layout *recordLayout
}

func newRecordLayout(p *queryir.EntityProjection) *recordLayout {
	l := entityLayout(p.Path, 0)
	next := len(l.fields)
	for _, f := range p.Fetched {
		fl := entityLayout(f.Target, next)
		next += len(fl.fields)
		l.fetched = append(l.fetched, fetchedLayout{field: f.Field, layout: fl})
	}
	return l
}

func entityLayout(p queryir.EntityPath, start int) *recordLayout {
	e := p.Entity()
	l := &recordLayout{entity: e.Name, start: start, rels: make(map[string]bool)}
	for _, f := range e.Fields {
		l.fields = append(l.fields, f.Name)
		if f.IsRelation() {
			l.rels[f.Name] = true
		}
	}
	return l
}

func (l *recordLayout) record(vals []any) *Record {
	r := &Record{
		entity:  l.entity,
		fields:  l.fields,
		values:  slices.Clone(vals[l.start : l.start+len(l.fields)]),
		rels:    l.rels,
		fetched: make(map[string]bool, len(l.fetched)),
		related: make(map[string]*Record, len(l.fetched)),
	}
	for _, f := range l.fetched {
		r.fetched[f.field] = true
		// A left fetch join without a match yields all NULL columns.
		if !allNil(vals[f.layout.start : f.layout.start+len(f.layout.fields)]) {
			r.related[f.field] = f.layout.record(vals)
		}
	}
	return r
}

func allNil(vals []any) bool {
	for _, v := range vals {
		if v != nil {
			return false
		}
	}
	return true
}
