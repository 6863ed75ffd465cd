package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/qdsl/internal/schema"
)

// Dialect names a supported SQL database.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
)

// ParseDialect returns the dialect named s. "sqlite3", "postgresql" and
// "pg" are accepted as aliases.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(s) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pg":
		return Postgres, nil
	case "mysql":
		return MySQL, nil
	}
	return "", fmt.Errorf("unknown dialect %q (want sqlite, postgres or mysql)", s)
}

// Quote quotes an identifier.
func (d Dialect) Quote(ident string) string {
	if d == MySQL {
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// concat joins two string operands.
func (d Dialect) concat(l, r string) string {
	if d == MySQL {
		return "concat(" + l + ", " + r + ")"
	}
	return "(" + l + " || " + r + ")"
}

// castText converts an operand to a string.
func (d Dialect) castText(s string) string {
	if d == MySQL {
		return "CAST(" + s + " AS CHAR)"
	}
	return "CAST(" + s + " AS TEXT)"
}

// length returns the character length of a string.
func (d Dialect) length(s string) string {
	if d == MySQL {
		return "char_length(" + s + ")"
	}
	return "length(" + s + ")"
}

// offsetOnly renders an offset without a limit. SQLite and MySQL require
// a LIMIT clause before OFFSET.
func (d Dialect) offsetOnly() string {
	switch d {
	case SQLite:
		return "LIMIT -1 OFFSET ?"
	case MySQL:
		return "LIMIT 18446744073709551615 OFFSET ?"
	}
	return "OFFSET ?"
}

// nativeNullOrdering reports whether NULLS FIRST/LAST is supported.
func (d Dialect) nativeNullOrdering() bool {
	return d != MySQL
}

// columnType returns the column type for a field of type t.
func (d Dialect) columnType(t schema.FieldType) string {
	switch t {
	case schema.TypeString:
		if d == SQLite {
			return "TEXT"
		}
		return "VARCHAR(255)"
	case schema.TypeInteger:
		if d == SQLite {
			return "INTEGER"
		}
		return "BIGINT"
	case schema.TypeFloat:
		switch d {
		case SQLite:
			return "REAL"
		case Postgres:
			return "DOUBLE PRECISION"
		}
		return "DOUBLE"
	case schema.TypeBoolean:
		return "BOOLEAN"
	}
	return "TEXT"
}

// likeEscape returns the ESCAPE clause literal for queryir.EscapeLike
// patterns. MySQL treats backslash as an escape in string literals.
func (d Dialect) likeEscape() string {
	if d == MySQL {
		return `'\\'`
	}
	return `'\'`
}
