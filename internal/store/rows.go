package store

import (
	"database/sql"
	"fmt"
)

// rowSource adapts *sql.Rows to mapper.RowSource.
type rowSource struct {
	rows  *sql.Rows
	width int
}

func newRowSource(rows *sql.Rows) (*rowSource, error) {
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, fmt.Errorf("read columns: %w", err)
	}
	return &rowSource{rows: rows, width: len(cols)}, nil
}

func (r *rowSource) Next() bool { return r.rows.Next() }

func (r *rowSource) Values() ([]any, error) {
	vals := make([]any, r.width)
	ptrs := make([]any, r.width)
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("scan row: %w", err)
	}
	return vals, nil
}

func (r *rowSource) Err() error { return r.rows.Err() }

func (r *rowSource) Close() error { return r.rows.Close() }
