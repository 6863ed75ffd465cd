package querysql

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/roach88/qdsl/internal/queryir"
)

// Statement is a parameterized SQL statement ready for execution.
type Statement struct {
	SQL  string
	Args []any
}

func (s Statement) String() string {
	if len(s.Args) == 0 {
		return s.SQL
	}
	return fmt.Sprintf("%s %v", s.SQL, s.Args)
}

// Compiler renders descriptors to SQL for one dialect.
//
// Every value in a Statement is a placeholder argument; SQL never carries a
// value. Whether the driver then binds or inlines the arguments is up to the
// executor. Statements are built with "?" placeholders and converted to the
// dialect's placeholder format as the last step, so nested subqueries number
// their parameters correctly.
type Compiler struct {
	dialect      Dialect
	placeholders sq.PlaceholderFormat
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithPlaceholders overrides the dialect's placeholder format.
func WithPlaceholders(f sq.PlaceholderFormat) Option {
	return func(c *Compiler) { c.placeholders = f }
}

// NewCompiler returns a compiler for dialect. Postgres uses $1 style
// placeholders, the others "?".
func NewCompiler(dialect Dialect, opts ...Option) *Compiler {
	c := &Compiler{dialect: dialect, placeholders: sq.Question}
	if dialect == Postgres {
		c.placeholders = sq.Dollar
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dialect returns the compiler's dialect.
func (c *Compiler) Dialect() Dialect { return c.dialect }

// ParsePlaceholders returns the placeholder format named s: "question" or
// "dollar".
func ParsePlaceholders(s string) (sq.PlaceholderFormat, error) {
	switch s {
	case "question":
		return sq.Question, nil
	case "dollar":
		return sq.Dollar, nil
	}
	return nil, fmt.Errorf("unknown placeholder format %q (want question or dollar)", s)
}

// Select compiles a query. Projected constants are not selected; the
// mapper adds them to each row.
func (c *Compiler) Select(d *queryir.QueryDescriptor) (Statement, error) {
	r := &renderer{dialect: c.dialect}
	qb, err := r.selectQuery(d)
	if err != nil {
		return Statement{}, err
	}
	return c.statement(qb)
}

// Count compiles a query that counts the rows d would return without
// paging. Ordering is dropped.
func (c *Compiler) Count(d *queryir.QueryDescriptor) (Statement, error) {
	r := &renderer{dialect: c.dialect}
	d = d.Unpaged()

	if !d.Distinct() && len(d.GroupBy()) == 0 {
		qb, err := r.source(sq.Select("count(*)"), d)
		if err != nil {
			return Statement{}, err
		}
		return c.statement(qb)
	}

	// Distinct and grouped queries count their result rows. Columns are
	// renamed so joined entities with equal column names do not clash.
	r.renameColumns = true
	inner, err := r.selectQuery(d)
	if err != nil {
		return Statement{}, err
	}
	return c.statement(sq.Select("count(*)").FromSelect(inner, "counted"))
}

func (c *Compiler) statement(s sq.Sqlizer) (Statement, error) {
	query, args, err := s.ToSql()
	if err != nil {
		return Statement{}, fmt.Errorf("render sql: %w", err)
	}
	query, err = c.placeholders.ReplacePlaceholders(query)
	if err != nil {
		return Statement{}, fmt.Errorf("replace placeholders: %w", err)
	}
	return Statement{SQL: query, Args: args}, nil
}
