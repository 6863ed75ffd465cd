// Package schema holds the entity metadata that query paths are validated
// against.
//
// A Registry maps entity names to an ordered list of fields. Each field has
// a name, a column, a type and flags for nullability and primary key. A
// field of type "ref" is a to-one relation: its column stores the primary
// key of the target entity, and joining along it derives the ON clause.
//
// Metadata is authored in YAML or CUE:
//
//	entities:
//	  - name: Member
//	    fields:
//	      - {name: id, type: integer, primary_key: true}
//	      - {name: username, type: string, nullable: true}
//	      - {name: team, type: ref, target: Team, nullable: true}
//
//	entity: Member: {
//		table: "member"
//		fields: {
//			id:       {type: "integer", primary_key: true}
//			username: {type: "string", nullable: true}
//			age:      int
//			team:     {type: "ref", target: "Team", nullable: true}
//		}
//	}
//
// Both forms go through NewRegistry, which fills defaults and validates the
// result. A Registry is immutable after construction.
package schema
