package mapper

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

var (
	member   = queryir.MustEntityPath(registry, "Member", "")
	team     = queryir.MustEntityPath(registry, "Team", "")
	username = member.MustField("username")
	age      = member.MustField("age")
)

// closeTracker records whether the source was closed.
type closeTracker struct {
	*SliceSource
	closed int
}

func (c *closeTracker) Close() error {
	c.closed++
	return c.SliceSource.Close()
}
