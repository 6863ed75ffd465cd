package querydoc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/qdsl/internal/queryir"
	"github.com/roach88/qdsl/internal/schema"
)

var registry = schema.MustRegistry(
	schema.Entity{Name: "Team", Fields: []schema.Field{
		{Name: "id", Type: schema.TypeInteger, PrimaryKey: true},
		{Name: "name", Type: schema.TypeString, Nullable: true},
	}},
	schema.Entity{Name: "Member", Fields: []schema.Field{
		{Name: "id", Type: schema.TypeInteger, PrimaryKey: true},
		{Name: "username", Type: schema.TypeString, Nullable: true},
		{Name: "age", Type: schema.TypeInteger},
		{Name: "team", Type: schema.TypeRef, Target: "Team", Nullable: true},
	}},
)

var (
	member = queryir.MustEntityPath(registry, "Member", "")
	team   = queryir.MustEntityPath(registry, "Team", "")
)

// compileQuery parses src and compiles its query.
func compileQuery(t *testing.T, src string, params map[string]any) (*queryir.QueryDescriptor, error) {
	t.Helper()
	doc, err := Parse([]byte(src))
	require.NoError(t, err)
	require.NotNil(t, doc.Query)
	return CompileQuery(registry, doc.Query, doc.MergeParams(params))
}
