package querydoc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qdsl/internal/queryir"
)

func TestCompileQueryMatchesBuilder(t *testing.T) {
	username, age, teamRef := member.MustField("username"), member.MustField("age"), member.MustField("team")
	name := team.MustField("name")
	t2 := queryir.MustEntityPath(registry, "Team", "t")

	tests := []struct {
		name string
		src  string
		want queryir.QueryBuilder
	}{
		{
			name: "entities",
			src:  "query:\n  from: [Member]\n",
			want: queryir.SelectFrom(member),
		},
		{
			name: "filter and paging",
			src: `
query:
  from: [Member]
  select: [member.username]
  where:
    and:
      - {gte: [member.age, 20]}
      - {starts_with: [username, mem]}
  order_by: [{expr: age, dir: desc, nulls: first}]
  offset: 1
  limit: 2
`,
			want: queryir.Select(username).From(member).
				Where(age.Gte(20), username.StartsWith("mem")).
				OrderBy(age.Desc().NullsFirst()).
				Offset(1).Limit(2),
		},
		{
			name: "relation join with on",
			src: `
query:
  from: [Member]
  joins:
    - {relation: member.team, target: Team, kind: left, on: {eq: [team.name, teamA]}}
  select: [member.username, team.name]
`,
			want: queryir.Select(username, name).From(member).
				LeftJoin(teamRef, team).On(name.Eq("teamA")),
		},
		{
			name: "fetch join",
			src: `
query:
  from: [Member]
  joins: [{relation: team, target: Team, fetch: true}]
`,
			want: queryir.SelectFrom(member).Join(teamRef, team).Fetch(),
		},
		{
			name: "theta join",
			src: `
query:
  from: [Member, Team t]
  select: [member.username]
  where: {eq: [member.username, {field: t.name}]}
`,
			want: queryir.Select(username).From(member, t2).Where(username.Eq(t2.MustField("name"))),
		},
		{
			name: "join on unrelated entity",
			src: `
query:
  from: [Member]
  joins: [{target: Team, kind: left, on: {eq: [member.username, {field: team.name}]}}]
  select: [member.username, team.name]
`,
			want: queryir.Select(username, name).From(member).LeftJoinOn(team, username.Eq(name)),
		},
		{
			name: "grouping",
			src: `
query:
  from: [Member]
  joins: [{relation: member.team, target: Team}]
  select: [team.name, {avg: member.age}, {count_all: member}]
  group_by: [team.name]
  having: {gt: [{count_all: member}, 1]}
`,
			want: queryir.Select(name, age.Avg(), member.Count()).From(member).
				Join(teamRef, team).
				GroupBy(name).
				Having(member.Count().Gt(1)),
		},
		{
			name: "expressions",
			src: `
query:
  from: [Member]
  select:
    - {concat: [username, "_"], as: tagged}
    - {add: [age, 1]}
    - {const: A}
    - {func: {name: replace, args: [username, member, M]}}
    - {lower: username}
    - {string: age}
  distinct: true
`,
			want: queryir.Select(
				username.Concat("_").As("tagged"),
				age.Add(1),
				queryir.Constant("A"),
				queryir.Function("replace", username, "member", "M"),
				username.Lower(),
				age.StringValue(),
			).From(member).Distinct(),
		},
		{
			name: "predicates",
			src: `
query:
  from: [Member]
  where:
    or:
      - {between: [age, 10, 20]}
      - {in: [age, [30, 40]]}
      - {not: {is_null: username}}
      - {like: [username, "%1"]}
      - {not_in: [username, [a, b]]}
      - {is_not_null: team}
`,
			want: queryir.SelectFrom(member).Where(queryir.AnyOf(
				age.Between(10, 20),
				age.In(30, 40),
				queryir.Not(username.IsNull()),
				username.Like("%1"),
				username.NotIn("a", "b"),
				teamRef.IsNotNull(),
			)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := compileQuery(t, tt.src, nil)
			require.NoError(t, err)
			want := tt.want.MustBuild()
			assert.Equal(t, want.Fingerprint(), got.Fingerprint())
		})
	}
}

func TestCompileQueryParams(t *testing.T) {
	username, age := member.MustField("username"), member.MustField("age")
	src := `
params:
  minAge: 10
query:
  from: [Member]
  where:
    and:
      - {eq: [username, $name]}
      - {gte: [age, $minAge]}
      - {in: [age, $ages]}
      - {starts_with: [username, $prefix]}
`

	tests := []struct {
		name   string
		params map[string]any
		want   queryir.QueryBuilder
	}{
		{
			name: "defaults only",
			want: queryir.SelectFrom(member).Where(age.Gte(10)),
		},
		{
			name:   "all set",
			params: map[string]any{"name": "member1", "minAge": 20, "ages": []any{20, 30}, "prefix": "mem"},
			want: queryir.SelectFrom(member).Where(
				username.Eq("member1"), age.Gte(20), age.In(20, 30), username.StartsWith("mem"),
			),
		},
		{
			name:   "override",
			params: map[string]any{"minAge": 30},
			want:   queryir.SelectFrom(member).Where(age.Gte(30)),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := compileQuery(t, src, tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.want.MustBuild().Fingerprint(), got.Fingerprint())
		})
	}
}

func TestCompileQueryAllParamsAbsent(t *testing.T) {
	got, err := compileQuery(t, "query:\n  from: [Member]\n  where: {eq: [username, $name]}\n", nil)
	require.NoError(t, err)
	assert.Nil(t, got.Where())
}

func TestCompileQueryErrors(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		wantErr  string
		wantCode queryir.ErrorCode
	}{
		{"no from", "query:\n  select: [age]\n", "at least one from source", ""},
		{"bad source", "query:\n  from: [Member a b]\n", "invalid source", ""},
		{"unknown entity", "query:\n  from: [Nobody]\n", "", queryir.CodeUnknownEntity},
		{"unknown alias", "query:\n  from: [Member]\n  select: [x.age]\n", `unknown alias "x"`, ""},
		{"unknown field", "query:\n  from: [Member]\n  select: [member.height]\n", "", queryir.CodeUnknownField},
		{"unknown operator", "query:\n  from: [Member]\n  select: [{cube: age}]\n", `unknown operator "cube"`, ""},
		{"unknown predicate", "query:\n  from: [Member]\n  where: {near: [age, 1]}\n", `unknown predicate "near"`, ""},
		{"two operators", "query:\n  from: [Member]\n  select: [{lower: username, upper: username}]\n", "expected one operator", ""},
		{"operand count", "query:\n  from: [Member]\n  where: {eq: [age]}\n", "eq takes a list of 2 operands", ""},
		{"missing select param", "query:\n  from: [Member]\n  select: [$col]\n", "parameter $col is not set", ""},
		{"join without relation", "query:\n  from: [Member]\n  joins: [{target: Team}]\n", "needs a relation or an on predicate", ""},
		{"join kind", "query:\n  from: [Member]\n  joins: [{relation: team, target: Team, kind: outer}]\n", `unknown kind "outer"`, ""},
		{"direction", "query:\n  from: [Member]\n  order_by: [{expr: age, dir: up}]\n", `unknown direction "up"`, ""},
		{"nulls", "query:\n  from: [Member]\n  order_by: [{expr: age, nulls: middle}]\n", `unknown null ordering "middle"`, ""},
		{"type error", "query:\n  from: [Member]\n  where: {eq: [age, text]}\n", "", queryir.CodeOperandType},
		{"pattern type", "query:\n  from: [Member]\n  where: {like: [username, 1]}\n", "pattern must be a string", ""},
		{"in values", "query:\n  from: [Member]\n  where: {in: [age, 1]}\n", "must be a list or a parameter", ""},
		{"float literal", "query:\n  from: [Member]\n  where: {eq: [age, 1.5]}\n", "", queryir.CodeUnsupportedLiteral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compileQuery(t, tt.src, nil)
			require.Error(t, err)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
			}
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, queryir.Code(err))
			}
		})
	}
}

func TestErrorPosition(t *testing.T) {
	_, err := compileQuery(t, "query:\n  from: [Member]\n  select: [{cube: age}]\n", nil)
	var docErr *Error
	require.ErrorAs(t, err, &docErr)
	assert.Equal(t, 3, docErr.Line)
}

func TestCompileMutation(t *testing.T) {
	username, age, teamRef := member.MustField("username"), member.MustField("age"), member.MustField("team")

	tests := []struct {
		name string
		src  string
		want queryir.MutationBuilder
	}{
		{
			name: "update literal",
			src:  "mutation:\n  update: Member\n  set: {username: guest}\n  where: {lt: [age, 28]}\n",
			want: queryir.Update(member).Set(username, "guest").Where(age.Lt(28)),
		},
		{
			name: "update expression in order",
			src:  "mutation:\n  update: Member\n  set:\n    age: {add: [age, 1]}\n    team: null\n",
			want: queryir.Update(member).Set(age, age.Add(1)).SetNull(teamRef),
		},
		{
			name: "delete",
			src:  "mutation:\n  delete: Member\n  where: {gt: [member.age, 18]}\n",
			want: queryir.Delete(member).Where(age.Gt(18)),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse([]byte(tt.src))
			require.NoError(t, err)
			compiled, err := Compile(registry, doc, nil)
			require.NoError(t, err)
			require.NotNil(t, compiled.Mutation)
			assert.Equal(t, tt.want.MustBuild().Fingerprint(), compiled.Mutation.Fingerprint())
		})
	}
}

func TestCompileMutationErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr string
	}{
		{"neither", "mutation:\n  where: {lt: [age, 1]}\n", "needs update or delete"},
		{"both", "mutation:\n  update: Member\n  delete: Member\n", "both update and delete"},
		{"delete with set", "mutation:\n  delete: Member\n  set: {age: 1}\n", "delete does not take set"},
		{"set not a map", "mutation:\n  update: Member\n  set: [age]\n", "set must map field names"},
		{"unknown field", "mutation:\n  update: Member\n  set: {height: 1}\n", "height"},
		{"no assignments", "mutation:\n  update: Member\n", "INVALID_MUTATION"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse([]byte(tt.src))
			require.NoError(t, err)
			_, err = Compile(registry, doc, nil)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
