package querysql

import (
	"strings"

	"github.com/roach88/qdsl/internal/schema"
)

// CreateTable returns the CREATE TABLE statement for e. Relation columns
// take the type of the target's primary key. Foreign key constraints are
// not declared, so tables can be created and seeded in any order.
func (c *Compiler) CreateTable(reg *schema.Registry, e *schema.Entity) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(c.dialect.Quote(e.Table))
	b.WriteString(" (")
	for i, f := range e.Fields {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(c.dialect.Quote(f.Column))
		b.WriteByte(' ')
		b.WriteString(c.dialect.columnType(reg.ValueType(f)))
		switch {
		case f.PrimaryKey:
			b.WriteString(" PRIMARY KEY")
		case !f.Nullable:
			b.WriteString(" NOT NULL")
		}
	}
	b.WriteString(")")
	return b.String()
}

// DropTable returns the DROP TABLE statement for e.
func (c *Compiler) DropTable(e *schema.Entity) string {
	return "DROP TABLE IF EXISTS " + c.dialect.Quote(e.Table)
}
