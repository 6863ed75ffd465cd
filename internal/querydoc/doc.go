// Package querydoc compiles YAML query and mutation documents into
// descriptors.
//
// A query document:
//
//	query:
//	  from: [Member]              # "Entity" or "Entity alias"
//	  joins:
//	    - relation: member.team
//	      target: Team
//	      kind: left              # inner (default) or left
//	      on: {eq: [team.name, teamA]}
//	      fetch: false
//	  select: [member.username, {avg: member.age, as: average}]
//	  where:
//	    and:
//	      - {gte: [member.age, 20]}
//	      - {eq: [member.username, $username]}
//	  group_by: [team.name]
//	  having: {gt: [{count_all: member}, 1]}
//	  order_by: [{expr: member.age, dir: desc, nulls: last}]
//	  offset: 1
//	  limit: 2
//	  distinct: false
//
// An empty select projects whole entities of the first from source.
//
// A mutation document:
//
//	mutation:
//	  update: Member
//	  set:
//	    username: guest
//	    age: {add: [member.age, 1]}
//	  where: {lt: [member.age, 28]}
//
// # Operands
//
// The first operand of an operator is an expression: a bare string names a
// field ("alias.field", or "field" of the first from source). Later operands
// are values: a bare string is a string literal. Either position accepts
// {field: ...}, {value: ...} and the operator forms below.
//
// A string value starting with "$" refers to a parameter. A predicate whose
// parameter is not supplied is absent and filters nothing; a missing
// parameter anywhere else is an error.
//
// # Operators
//
//	expressions: field value const lower upper length string add subtract
//	             multiply concat count count_distinct sum avg max min
//	             count_all func
//	predicates:  and or not eq ne lt lte gt gte between in not_in
//	             is_null is_not_null like starts_with
//
// Subqueries and case expressions are only available through the queryir
// builders.
package querydoc
