package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/qdsl/internal/queryir"
	"github.com/roach88/qdsl/internal/querysql"
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

type memberPaths struct {
	queryir.EntityPath
	id, username, age, team queryir.Expr
}

type teamPaths struct {
	queryir.EntityPath
	id, name queryir.Expr
}

func newMember(alias string) memberPaths {
	p := queryir.MustEntityPath(registry, "Member", alias)
	return memberPaths{
		EntityPath: p,
		id:         p.MustField("id"),
		username:   p.MustField("username"),
		age:        p.MustField("age"),
		team:       p.MustField("team"),
	}
}

func newTeam(alias string) teamPaths {
	p := queryir.MustEntityPath(registry, "Team", alias)
	return teamPaths{EntityPath: p, id: p.MustField("id"), name: p.MustField("name")}
}

// openTestStore opens an in-memory SQLite store seeded with two teams of
// two members each:
//
//	member1 (10, teamA)  member2 (20, teamA)
//	member3 (30, teamB)  member4 (40, teamB)
func openTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	ctx := context.Background()

	s, err := Open(ctx, Config{Dialect: querysql.SQLite, DSN: MemoryDSN}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.CreateSchema(ctx, registry))
	require.NoError(t, s.Seed(ctx, registry, "Team", []map[string]any{
		{"id": 1, "name": "teamA"},
		{"id": 2, "name": "teamB"},
	}))
	require.NoError(t, s.Seed(ctx, registry, "Member", []map[string]any{
		{"id": 1, "username": "member1", "age": 10, "team": 1},
		{"id": 2, "username": "member2", "age": 20, "team": 1},
		{"id": 3, "username": "member3", "age": 30, "team": 2},
		{"id": 4, "username": "member4", "age": 40, "team": 2},
	}))
	return s
}

func seedMembers(t *testing.T, s *Store, rows ...map[string]any) {
	t.Helper()
	require.NoError(t, s.Seed(context.Background(), registry, "Member", rows))
}
