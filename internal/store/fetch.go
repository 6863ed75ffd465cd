package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/roach88/qdsl/internal/mapper"
	"github.com/roach88/qdsl/internal/queryir"
	"github.com/roach88/qdsl/internal/querysql"
)

// ErrNonUniqueResult is returned by FetchOne when more than one row
// matches.
var ErrNonUniqueResult = errors.New("query returned more than one result")

// QueryResults is one page of a query together with the unpaged total.
type QueryResults struct {
	Total  int64
	Offset int64

	// Limit is the page size; HasLimit is false for an unbounded page.
	Limit    int64
	HasLimit bool

	Items []any
}

// Empty reports whether the page holds no items.
func (r *QueryResults) Empty() bool { return len(r.Items) == 0 }

// Query executes d and returns its mapped results. The caller must close
// them.
func (s *Store) Query(ctx context.Context, d *queryir.QueryDescriptor) (*mapper.Results, error) {
	stmt, err := s.compile("select:"+d.Fingerprint(), func() (querysql.Statement, error) {
		return s.compiler.Select(d)
	})
	if err != nil {
		return nil, fmt.Errorf("compile query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("execute query %s: %w", queryID(d.Fingerprint()), err)
	}
	src, err := newRowSource(rows)
	if err != nil {
		return nil, err
	}
	return mapper.Map(d.Projection(), src), nil
}

// FetchAll returns every row of d. The result is empty, not nil, when no
// row matches.
func (s *Store) FetchAll(ctx context.Context, d *queryir.QueryDescriptor) ([]any, error) {
	start := time.Now()
	res, err := s.Query(ctx, d)
	if err != nil {
		return nil, err
	}
	out, err := mapper.Collect[any](res)
	if err != nil {
		return nil, fmt.Errorf("map query %s: %w", queryID(d.Fingerprint()), err)
	}
	s.log.WithFields(logrus.Fields{
		"query_id": queryID(d.Fingerprint()),
		"rows":     len(out),
		"elapsed":  time.Since(start),
	}).Debug("query fetched")
	return out, nil
}

// FetchOne returns the single row of d, nil when there is none and
// ErrNonUniqueResult when there are several.
func (s *Store) FetchOne(ctx context.Context, d *queryir.QueryDescriptor) (any, error) {
	res, err := s.Query(ctx, d)
	if err != nil {
		return nil, err
	}
	defer res.Close()

	if !res.Next() {
		return nil, res.Err()
	}
	v := res.Value()
	if res.Next() {
		return nil, fmt.Errorf("fetch one %s: %w", queryID(d.Fingerprint()), ErrNonUniqueResult)
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	return v, nil
}

// FetchFirst returns the first row of d, or nil when there is none.
func (s *Store) FetchFirst(ctx context.Context, d *queryir.QueryDescriptor) (any, error) {
	return s.FetchOne(ctx, d.First())
}

// FetchCount returns the number of rows d returns, ignoring paging.
func (s *Store) FetchCount(ctx context.Context, d *queryir.QueryDescriptor) (int64, error) {
	stmt, err := s.compile("count:"+d.Fingerprint(), func() (querysql.Statement, error) {
		return s.compiler.Count(d)
	})
	if err != nil {
		return 0, fmt.Errorf("compile count: %w", err)
	}

	var n int64
	if err := s.db.QueryRowContext(ctx, stmt.SQL, stmt.Args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count query %s: %w", queryID(d.Fingerprint()), err)
	}
	return n, nil
}

// FetchResults returns the page of d together with the total number of
// rows without paging. The page query is skipped when the total is zero.
func (s *Store) FetchResults(ctx context.Context, d *queryir.QueryDescriptor) (*QueryResults, error) {
	total, err := s.FetchCount(ctx, d)
	if err != nil {
		return nil, err
	}

	r := &QueryResults{Total: total, Items: []any{}}
	r.Offset, _ = d.Offset()
	r.Limit, r.HasLimit = d.Limit()
	if total == 0 {
		return r, nil
	}
	if r.Items, err = s.FetchAll(ctx, d); err != nil {
		return nil, err
	}
	return r, nil
}

// Fetch runs d and collects its rows as T, for callers that know the
// projection's result type.
func Fetch[T any](ctx context.Context, s *Store, d *queryir.QueryDescriptor) ([]T, error) {
	res, err := s.Query(ctx, d)
	if err != nil {
		return nil, err
	}
	return mapper.Collect[T](res)
}
