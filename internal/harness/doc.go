// Package harness runs query scenarios end to end.
//
// A scenario declares a schema, seeds rows and runs an ordered list of
// query and mutation steps against a fresh in-memory SQLite store. Steps
// are query documents (see package querydoc) written inline or loaded
// from a file, and each may state the outcome it expects.
//
// # Scenario Format
//
//	name: adult-members
//	description: "Members of age are found and aged"
//	schema: ../schema/members.yaml
//	seed:
//	  - entity: Team
//	    rows:
//	      - {id: 1, name: teamA}
//	  - entity: Member
//	    rows:
//	      - {id: 1, username: member1, age: 10, team: 1}
//	params:
//	  minAge: 18
//	steps:
//	  - name: adults
//	    query:
//	      from: [Member m]
//	      select: [m.username]
//	      where: {gte: [m.age, $minAge]}
//	    expect:
//	      count: 0
//	  - name: age everyone
//	    mutation:
//	      update: Member m
//	      set: {age: {add: [m.age, 1]}}
//	    expect:
//	      affected: 1
//
// # Fetch Modes
//
// A query step's fetch field picks the store operation:
//
//   - all: every row (the default)
//   - one: zero or one row; more is a NON_UNIQUE_RESULT error
//   - first: the first row, if any
//   - count: the number of rows, ignoring paging
//   - results: one page plus the unpaged total
//
// # Expectations
//
// count, total, affected and rows are compared with the outcome; error
// names the error code a failing step must produce. Integers and
// integral floats compare equal, so an average of 15 matches 15.
//
// Each scenario's snapshot (rendered SQL, arguments and outcome of every
// step) can be compared against a golden file with RunWithGolden.
package harness
