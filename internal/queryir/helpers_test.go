package queryir

import "github.com/roach88/qdsl/internal/schema"

func testRegistry() *schema.Registry {
	return schema.MustRegistry(
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
}

// memberPaths mirrors the generated metamodel a typed query library would
// provide: one struct per alias with its field expressions.
type memberPaths struct {
	EntityPath
	id, username, age, team Expr
}

type teamPaths struct {
	EntityPath
	id, name Expr
}

func newMember(alias string) memberPaths {
	p := MustEntityPath(testRegistry(), "Member", alias)
	return memberPaths{
		EntityPath: p,
		id:         p.MustField("id"),
		username:   p.MustField("username"),
		age:        p.MustField("age"),
		team:       p.MustField("team"),
	}
}

func newTeam(alias string) teamPaths {
	p := MustEntityPath(testRegistry(), "Team", alias)
	return teamPaths{
		EntityPath: p,
		id:         p.MustField("id"),
		name:       p.MustField("name"),
	}
}
