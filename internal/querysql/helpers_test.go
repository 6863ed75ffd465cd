package querysql

import (
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

const memberColumns = `"member"."id", "member"."username", "member"."age", "member"."team_id"`
