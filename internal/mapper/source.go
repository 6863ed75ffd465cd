package mapper

import "slices"

// RowSource yields raw rows, one value per database column.
//
// Next advances to the next row and reports whether there is one. Values
// returns the current row. Err reports an iteration error after Next has
// returned false. Close releases the underlying resources and is safe to
// call more than once.
type RowSource interface {
	Next() bool
	Values() ([]any, error)
	Err() error
	Close() error
}

// SliceSource is a RowSource over in-memory rows.
type SliceSource struct {
	rows [][]any
	pos  int
}

// NewSliceSource returns a source over rows. The rows are not copied.
func NewSliceSource(rows ...[]any) *SliceSource {
	return &SliceSource{rows: rows}
}

// Next advances to the next row.
func (s *SliceSource) Next() bool {
	if s.pos >= len(s.rows) {
		return false
	}
	s.pos++
	return true
}

// Values returns a copy of the current row.
func (s *SliceSource) Values() ([]any, error) {
	return slices.Clone(s.rows[s.pos-1]), nil
}

// Err always returns nil.
func (s *SliceSource) Err() error { return nil }

// Close exhausts the source.
func (s *SliceSource) Close() error {
	s.pos = len(s.rows)
	return nil
}
