package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qdsl/internal/queryir"
)

func TestExecuteUpdate(t *testing.T) {
	s := openTestStore(t)
	m := newMember("")
	ctx := context.Background()

	n, err := s.Execute(ctx, queryir.Update(m.EntityPath).
		Set(m.username, "guest").
		Where(m.age.Lt(28)).
		MustBuild())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	guests, err := s.FetchCount(ctx, queryir.SelectFrom(m.EntityPath).Where(m.username.Eq("guest")).MustBuild())
	require.NoError(t, err)
	assert.Equal(t, int64(2), guests)
}

func TestExecuteUpdateAdd(t *testing.T) {
	s := openTestStore(t)
	m := newMember("")
	ctx := context.Background()

	n, err := s.Execute(ctx, queryir.Update(m.EntityPath).Set(m.age, m.age.Add(1)).MustBuild())
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	sum, err := s.FetchOne(ctx, queryir.Select(m.age.Sum()).From(m.EntityPath).MustBuild())
	require.NoError(t, err)
	assert.Equal(t, int64(104), sum)
}

func TestExecuteUpdateToNull(t *testing.T) {
	s := openTestStore(t)
	m := newMember("")
	ctx := context.Background()

	n, err := s.Execute(ctx, queryir.Update(m.EntityPath).SetNull(m.team).Where(m.username.Eq("member1")).MustBuild())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	orphans, err := s.FetchCount(ctx, queryir.SelectFrom(m.EntityPath).Where(m.team.IsNull()).MustBuild())
	require.NoError(t, err)
	assert.Equal(t, int64(1), orphans)
}

func TestExecuteDelete(t *testing.T) {
	s := openTestStore(t)
	m := newMember("")
	ctx := context.Background()

	n, err := s.Execute(ctx, queryir.Delete(m.EntityPath).Where(m.age.Gt(18)).MustBuild())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	left, err := Fetch[string](ctx, s, queryir.Select(m.username).From(m.EntityPath).MustBuild())
	require.NoError(t, err)
	assert.Equal(t, []string{"member1"}, left)
}

func TestExecuteDeleteWithSubquery(t *testing.T) {
	s := openTestStore(t)
	m, sub := newMember(""), newMember("memberSub")
	ctx := context.Background()

	n, err := s.Execute(ctx, queryir.Delete(m.EntityPath).
		Where(m.age.Lt(queryir.Select(sub.age.Avg()).From(sub.EntityPath))).
		MustBuild())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestExecuteCorrelatedSubquery(t *testing.T) {
	m, sub := newMember(""), newMember("memberSub")
	teamAvg := queryir.Select(sub.age.Avg()).From(sub.EntityPath).Where(sub.team.Eq(m.team))
	teamMax := queryir.Select(sub.age.Max()).From(sub.EntityPath).Where(sub.team.Eq(m.team))

	tests := []struct {
		name     string
		mutation queryir.MutationBuilder
		affected int64
		query    queryir.QueryBuilder
		want     []string
	}{
		{
			name:     "delete below team average",
			mutation: queryir.Delete(m.EntityPath).Where(m.age.Lt(teamAvg)),
			affected: 2,
			query:    queryir.Select(m.username).From(m.EntityPath),
			want:     []string{"member2", "member4"},
		},
		{
			name:     "update oldest per team",
			mutation: queryir.Update(m.EntityPath).Set(m.username, "senior").Where(m.age.Eq(teamMax)),
			affected: 2,
			query:    queryir.Select(m.username).From(m.EntityPath).Where(m.username.Eq("senior")),
			want:     []string{"senior", "senior"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := openTestStore(t)
			ctx := context.Background()

			n, err := s.Execute(ctx, tt.mutation.MustBuild())
			require.NoError(t, err)
			assert.Equal(t, tt.affected, n)

			left, err := Fetch[string](ctx, s, tt.query.MustBuild())
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, left)
		})
	}
}

func TestExecuteEscapesValues(t *testing.T) {
	s := openTestStore(t)
	m := newMember("")
	ctx := context.Background()
	hostile := `O'Brien"; DROP TABLE member; --`

	n, err := s.Execute(ctx, queryir.Update(m.EntityPath).Set(m.username, hostile).Where(m.age.Eq(10)).MustBuild())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := Fetch[string](ctx, s, queryir.Select(m.username).From(m.EntityPath).Where(m.username.Eq(hostile)).MustBuild())
	require.NoError(t, err)
	assert.Equal(t, []string{hostile}, got)

	total, err := s.FetchCount(ctx, queryir.SelectFrom(m.EntityPath).MustBuild())
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
}

func TestExecuteNoMatch(t *testing.T) {
	s := openTestStore(t)
	m := newMember("")

	n, err := s.Execute(context.Background(), queryir.Delete(m.EntityPath).Where(m.age.Gt(100)).MustBuild())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSeedErrors(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.Seed(ctx, registry, "Nope", []map[string]any{{"id": 1}})
	assert.ErrorContains(t, err, `unknown entity "Nope"`)

	err = s.Seed(ctx, registry, "Team", []map[string]any{{"id": 9, "color": "red"}})
	assert.ErrorContains(t, err, `unknown field "color"`)

	// Primary key conflict.
	err = s.Seed(ctx, registry, "Team", []map[string]any{{"id": 1, "name": "again"}})
	assert.ErrorContains(t, err, "seed row 0")
}

func TestDropSchema(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	m := newMember("")

	require.NoError(t, s.DropSchema(ctx, registry))
	_, err := s.FetchAll(ctx, queryir.SelectFrom(m.EntityPath).MustBuild())
	assert.Error(t, err)

	require.NoError(t, s.CreateSchema(ctx, registry))
	n, err := s.FetchCount(ctx, queryir.SelectFrom(m.EntityPath).MustBuild())
	require.NoError(t, err)
	assert.Zero(t, n)
}
