package qdsl

import (
	"fmt"

	errors "gopkg.in/src-d/go-errors.v1"
)

// ParseError reports malformed query text. Line and Column are 1-based.
type ParseError struct {
	Line   int
	Column int
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at line %d, column %d: %s", e.Line, e.Column, e.Msg)
}

func newParseError(line, col int, format string, args ...any) *ParseError {
	return &ParseError{Line: line, Column: col, Msg: fmt.Sprintf(format, args...)}
}

var (
	// ErrTypeMismatch is returned when a numeric comparison targets a field
	// declared with a non-numeric type.
	ErrTypeMismatch = errors.NewKind("type mismatch: field %q is %s, cannot compare with numeric literal %s")

	// ErrUnresolvedVariable is returned when ${name} has no binding.
	ErrUnresolvedVariable = errors.NewKind("unresolved variable ${%s}")

	// ErrInvalidLiteral is returned when a literal cannot be converted to its value.
	ErrInvalidLiteral = errors.NewKind("invalid %s literal %q")

	// ErrUnsupportedNode is returned by a compiler that meets a node it does not handle.
	ErrUnsupportedNode = errors.NewKind("unsupported query node %T")
)
