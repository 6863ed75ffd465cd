package store

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qdsl/internal/queryir"
	"github.com/roach88/qdsl/internal/querysql"
)

func TestOpenUnsupportedDialect(t *testing.T) {
	_, err := Open(context.Background(), Config{Dialect: "oracle"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database dialect")
}

func TestOpenDefaultsToMemory(t *testing.T) {
	s, err := Open(context.Background(), Config{Dialect: querysql.SQLite})
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, querysql.SQLite, s.Dialect())
	assert.NotEmpty(t, s.RunID())
	require.NoError(t, s.CreateSchema(context.Background(), registry))
}

func TestStoresAreIsolated(t *testing.T) {
	a := openTestStore(t)
	b := openTestStore(t)
	m := newMember("")

	seedMembers(t, a, map[string]any{"id": 5, "username": "member5", "age": 50})

	na, err := a.FetchCount(context.Background(), queryir.SelectFrom(m.EntityPath).MustBuild())
	require.NoError(t, err)
	nb, err := b.FetchCount(context.Background(), queryir.SelectFrom(m.EntityPath).MustBuild())
	require.NoError(t, err)
	assert.Equal(t, int64(5), na)
	assert.Equal(t, int64(4), nb)
}

func TestCloseIsIdempotentOnZeroStore(t *testing.T) {
	var s Store
	assert.NoError(t, s.Close())
}

func TestLogsCarryRunAndQueryIDs(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	s := openTestStore(t, WithLogger(logger))
	m := newMember("")

	q := queryir.SelectFrom(m.EntityPath).Where(m.age.Lt(25)).MustBuild()
	_, err := s.FetchAll(context.Background(), q)
	require.NoError(t, err)

	var fetched *logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Message == "query fetched" {
			fetched = e
		}
	}
	require.NotNil(t, fetched)
	assert.Equal(t, s.RunID(), fetched.Data["run_id"])
	assert.Equal(t, q.Fingerprint()[:12], fetched.Data["query_id"])
	assert.Equal(t, 2, fetched.Data["rows"])
}

func TestStatementHookLogsFailures(t *testing.T) {
	logger, hook := test.NewNullLogger()
	s := openTestStore(t, WithLogger(logger))

	_, err := s.DB().ExecContext(context.Background(), "SELECT * FROM missing_table")
	require.Error(t, err)

	last := hook.LastEntry()
	require.NotNil(t, last)
	assert.Equal(t, logrus.WarnLevel, last.Level)
	assert.Equal(t, "statement failed", last.Message)
}

func TestCompileCache(t *testing.T) {
	s := openTestStore(t)
	m := newMember("")
	ctx := context.Background()

	q1 := queryir.SelectFrom(m.EntityPath).Where(m.age.Gt(10)).MustBuild()
	q2 := queryir.SelectFrom(newMember("").EntityPath).Where(newMember("").age.Gt(10)).MustBuild()
	require.Equal(t, q1.Fingerprint(), q2.Fingerprint())

	_, err := s.FetchAll(ctx, q1)
	require.NoError(t, err)
	_, err = s.FetchAll(ctx, q2)
	require.NoError(t, err)
	_, err = s.FetchCount(ctx, q1)
	require.NoError(t, err)

	s.mu.RLock()
	defer s.mu.RUnlock()
	assert.Len(t, s.cache, 2)
	assert.Contains(t, s.cache, "select:"+q1.Fingerprint())
	assert.Contains(t, s.cache, "count:"+q1.Fingerprint())
}
