package mapper

import (
	"slices"

	"github.com/roach88/qdsl/internal/queryir"
)

// Tuple is one row of a multi-column projection. It is read-only.
type Tuple struct {
	layout *tupleLayout
	values []any
}

// tupleLayout is shared by every tuple of one result set.
type tupleLayout struct {
	cols    []queryir.Expr
	keys    map[string]int
	aliases map[string]int
}

func newTupleLayout(cols []queryir.Expr) *tupleLayout {
	l := &tupleLayout{
		cols:    cols,
		keys:    make(map[string]int, len(cols)),
		aliases: make(map[string]int),
	}
	for i, c := range cols {
		if _, dup := l.keys[c.Key()]; !dup {
			l.keys[c.Key()] = i
		}
		if a := c.Alias(); a != "" {
			if _, dup := l.aliases[a]; !dup {
				l.aliases[a] = i
			}
		}
	}
	return l
}

// Get returns the value of the column produced by e. e is matched by
// structure, so m.MustField("age") finds a column selected as m.age.
func (t *Tuple) Get(e queryir.Expr) (any, error) {
	i, ok := t.layout.keys[e.Key()]
	if !ok {
		return nil, queryir.NewProjectionMismatch(queryir.CodeUnknownColumn, -1, "expression is not part of the projection")
	}
	return t.values[i], nil
}

// GetAlias returns the value of the column named with As.
func (t *Tuple) GetAlias(name string) (any, error) {
	i, ok := t.layout.aliases[name]
	if !ok {
		return nil, queryir.NewProjectionMismatch(queryir.CodeUnknownColumn, -1, "no column aliased %q", name)
	}
	return t.values[i], nil
}

// At returns the value of column i.
func (t *Tuple) At(i int) any { return t.values[i] }

// Len returns the number of columns.
func (t *Tuple) Len() int { return len(t.values) }

// Values returns a copy of the column values in projection order.
func (t *Tuple) Values() []any { return slices.Clone(t.values) }
