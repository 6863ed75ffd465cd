package queryir

import (
	"errors"
	"fmt"
)

// ErrorCode identifies the specific rule an error violates.
type ErrorCode string

// InvalidQueryError codes.
const (
	// CodeUnknownEntity indicates an entity name missing from the schema.
	CodeUnknownEntity ErrorCode = "UNKNOWN_ENTITY"

	// CodeUnknownField indicates a field name missing from its entity.
	CodeUnknownField ErrorCode = "UNKNOWN_FIELD"

	// CodeInvalidAlias indicates an alias that is not an identifier.
	CodeInvalidAlias ErrorCode = "INVALID_ALIAS"

	// CodeDuplicateAlias indicates two paths in one query share an alias.
	CodeDuplicateAlias ErrorCode = "DUPLICATE_ALIAS"

	// CodeOutOfScope indicates a field of an entity that is not a source of
	// the query (or of an enclosing query).
	CodeOutOfScope ErrorCode = "OUT_OF_SCOPE"

	// CodeMissingSource indicates a query without any from source.
	CodeMissingSource ErrorCode = "MISSING_SOURCE"

	// CodeInvalidJoin indicates a join with neither relation nor ON predicate,
	// or a relation that does not lead to the join target.
	CodeInvalidJoin ErrorCode = "INVALID_JOIN"

	// CodeInvalidFetch indicates a fetch join the projection cannot honor.
	CodeInvalidFetch ErrorCode = "INVALID_FETCH"

	// CodeInvalidPaging indicates a negative offset or limit.
	CodeInvalidPaging ErrorCode = "INVALID_PAGING"

	// CodeGroupBy indicates a projection and grouping that do not agree.
	CodeGroupBy ErrorCode = "GROUP_BY"

	// CodeMisplacedAggregate indicates an aggregate where only row-level
	// expressions are allowed (where, join on, group by, assignments).
	CodeMisplacedAggregate ErrorCode = "MISPLACED_AGGREGATE"

	// CodeDistinctOrder indicates ordering a distinct query by a column that
	// is not projected.
	CodeDistinctOrder ErrorCode = "DISTINCT_ORDER"

	// CodeEmptyProjection indicates a query that selects nothing.
	CodeEmptyProjection ErrorCode = "EMPTY_PROJECTION"

	// CodeInvalidSubquery indicates a subquery that does not project
	// exactly one column.
	CodeInvalidSubquery ErrorCode = "INVALID_SUBQUERY"

	// CodeInvalidExpression indicates a malformed expression, such as a
	// zero Expr used as an operand or a case without branches.
	CodeInvalidExpression ErrorCode = "INVALID_EXPRESSION"

	// CodeInvalidMutation indicates a malformed update or delete.
	CodeInvalidMutation ErrorCode = "INVALID_MUTATION"
)

// ProjectionMismatchError codes.
const (
	// CodeArity indicates a column count that differs from the target's.
	CodeArity ErrorCode = "ARITY"

	// CodeIncompatibleType indicates a value that cannot be assigned or
	// converted to its target parameter or field.
	CodeIncompatibleType ErrorCode = "INCOMPATIBLE_TYPE"

	// CodeUnknownColumn indicates a tuple lookup for an expression that is
	// not part of the projection.
	CodeUnknownColumn ErrorCode = "UNKNOWN_COLUMN"

	// CodeUnmatchedColumn indicates a column with no target field.
	CodeUnmatchedColumn ErrorCode = "UNMATCHED_COLUMN"

	// CodeInvalidTarget indicates a target that is not a function or struct.
	CodeInvalidTarget ErrorCode = "INVALID_TARGET"
)

// UnsupportedOperatorError codes.
const (
	// CodeOperandType indicates an operator applied to an incompatible type.
	CodeOperandType ErrorCode = "OPERAND_TYPE"

	// CodeUnsupportedLiteral indicates a literal that cannot be represented,
	// such as a float.
	CodeUnsupportedLiteral ErrorCode = "UNSUPPORTED_LITERAL"

	// CodeInvalidFunction indicates a function name that is not an identifier.
	CodeInvalidFunction ErrorCode = "INVALID_FUNCTION"
)

// InvalidQueryError represents a structural violation detected while
// building a query or mutation descriptor.
type InvalidQueryError struct {
	// Code identifies the violated rule.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Details contains additional context.
	Details map[string]string
}

func (e *InvalidQueryError) Error() string {
	return fmt.Sprintf("invalid query: %s: %s", e.Code, e.Message)
}

// ProjectionMismatchError represents a result-mapping arity or type mismatch.
type ProjectionMismatchError struct {
	Code    ErrorCode
	Message string

	// Column is the zero-based projection column involved, or -1.
	Column int
}

func (e *ProjectionMismatchError) Error() string {
	if e.Column >= 0 {
		return fmt.Sprintf("projection mismatch: %s: column %d: %s", e.Code, e.Column, e.Message)
	}
	return fmt.Sprintf("projection mismatch: %s: %s", e.Code, e.Message)
}

// UnsupportedOperatorError represents an operator applied to an
// incompatible operand type, e.g. Lower on an integer field.
type UnsupportedOperatorError struct {
	Code     ErrorCode
	Operator string
	Message  string
}

func (e *UnsupportedOperatorError) Error() string {
	return fmt.Sprintf("unsupported operator %s: %s: %s", e.Operator, e.Code, e.Message)
}

func invalidQuery(code ErrorCode, format string, args ...any) *InvalidQueryError {
	return &InvalidQueryError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NewProjectionMismatch creates a ProjectionMismatchError. Column is -1 when
// the mismatch is not tied to one column.
func NewProjectionMismatch(code ErrorCode, column int, format string, args ...any) *ProjectionMismatchError {
	return &ProjectionMismatchError{Code: code, Column: column, Message: fmt.Sprintf(format, args...)}
}

func unsupported(code ErrorCode, op string, format string, args ...any) *UnsupportedOperatorError {
	return &UnsupportedOperatorError{Code: code, Operator: op, Message: fmt.Sprintf(format, args...)}
}

// IsInvalidQueryError returns true if err wraps an InvalidQueryError.
// Uses errors.As to handle wrapped errors.
func IsInvalidQueryError(err error) bool {
	var e *InvalidQueryError
	return errors.As(err, &e)
}

// IsProjectionMismatchError returns true if err wraps a ProjectionMismatchError.
func IsProjectionMismatchError(err error) bool {
	var e *ProjectionMismatchError
	return errors.As(err, &e)
}

// IsUnsupportedOperatorError returns true if err wraps an UnsupportedOperatorError.
func IsUnsupportedOperatorError(err error) bool {
	var e *UnsupportedOperatorError
	return errors.As(err, &e)
}

// Code returns the error code carried by any of this package's error types,
// or "" when err is not one of them.
func Code(err error) ErrorCode {
	var iq *InvalidQueryError
	if errors.As(err, &iq) {
		return iq.Code
	}
	var pm *ProjectionMismatchError
	if errors.As(err, &pm) {
		return pm.Code
	}
	var uo *UnsupportedOperatorError
	if errors.As(err, &uo) {
		return uo.Code
	}
	return ""
}

// Kind returns the error type name ("InvalidQueryError",
// "ProjectionMismatchError" or "UnsupportedOperatorError"), or "".
func Kind(err error) string {
	switch {
	case IsInvalidQueryError(err):
		return "InvalidQueryError"
	case IsProjectionMismatchError(err):
		return "ProjectionMismatchError"
	case IsUnsupportedOperatorError(err):
		return "UnsupportedOperatorError"
	}
	return ""
}
