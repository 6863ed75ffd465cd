package querysql

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/roach88/qdsl/internal/queryir"
	"github.com/roach88/qdsl/internal/schema"
)

// Mutation compiles a bulk update or delete. Fields of the target render
// unqualified, since UPDATE and DELETE name a single table, except inside
// subqueries, where they are qualified with the table name.
//
// MySQL rejects a subquery that reads the mutated table; such mutations
// compile but fail at execution there.
func (c *Compiler) Mutation(m *queryir.MutationDescriptor) (Statement, error) {
	target := m.Target()
	r := &renderer{dialect: c.dialect, target: mutationTarget{alias: target.Alias(), table: target.Entity().Table}}
	table := c.dialect.Quote(target.Entity().Table)

	var where sq.Sqlizer
	if m.Where() != nil {
		pred, err := r.predicate(m.Where())
		if err != nil {
			return Statement{}, fmt.Errorf("where: %w", err)
		}
		where = pred
	}

	switch m.Kind() {
	case queryir.UpdateMutation:
		ub := sq.Update(table)
		for _, a := range m.Assignments() {
			v, err := r.expr(a.Value)
			if err != nil {
				return Statement{}, fmt.Errorf("set %s: %w", a.Field.Field, err)
			}
			ub = ub.Set(c.dialect.Quote(a.Field.Column), v)
		}
		if where != nil {
			ub = ub.Where(where)
		}
		return c.statement(ub)
	case queryir.DeleteMutation:
		db := sq.Delete(table)
		if where != nil {
			db = db.Where(where)
		}
		return c.statement(db)
	}
	return Statement{}, fmt.Errorf("unsupported mutation kind %q", m.Kind())
}

// Insert compiles an INSERT of one row of e. values maps field names to
// Go values; fields without a value are omitted.
func (c *Compiler) Insert(e *schema.Entity, values map[string]any) (Statement, error) {
	var cols []string
	var vals []any
	for _, f := range e.Fields {
		v, ok := values[f.Name]
		if !ok {
			continue
		}
		cols = append(cols, c.dialect.Quote(f.Column))
		vals = append(vals, v)
	}
	for name := range values {
		if _, ok := e.Field(name); !ok {
			return Statement{}, fmt.Errorf("insert %s: unknown field %q", e.Name, name)
		}
	}
	if len(cols) == 0 {
		return Statement{}, fmt.Errorf("insert %s: no values", e.Name)
	}
	ib := sq.Insert(c.dialect.Quote(e.Table)).Columns(cols...).Values(vals...)
	return c.statement(ib)
}
