// Package apperr defines the error taxonomy shared by the data pipeline and
// its collaborators.
//
// Every failure a user can trigger from the dashboard wraps one of the
// sentinels below, so callers can branch with errors.Is without knowing which
// package produced the error:
//
//	ErrColumnNotFound    - a requested column is absent from the current table
//	ErrInvalidColumnKind - a column has the wrong kind for the operation
//	ErrInvalidChartInput - the data shape does not suit the chart kind
//	ErrExternalService   - file storage or question answering failed
//
// All of them are recoverable: the dashboard keeps its last good view.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrColumnNotFound    = errors.New("column not found")
	ErrInvalidColumnKind = errors.New("invalid column kind")
	ErrInvalidChartInput = errors.New("invalid chart input")
	ErrExternalService   = errors.New("external service error")
)

// ColumnError attaches the offending column to ErrColumnNotFound or
// ErrInvalidColumnKind.
type ColumnError struct {
	Column string
	Detail string
	Err    error
}

func (e *ColumnError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %q (%s)", e.Err, e.Column, e.Detail)
	}
	return fmt.Sprintf("%s: %q", e.Err, e.Column)
}

func (e *ColumnError) Unwrap() error {
	return e.Err
}

// ColumnNotFound reports that column is absent from the table.
func ColumnNotFound(column string) error {
	return &ColumnError{Column: column, Err: ErrColumnNotFound}
}

// InvalidColumnKind reports that column cannot be used as described by detail,
// e.g. "value column must be numeric".
func InvalidColumnKind(column, detail string) error {
	return &ColumnError{Column: column, Detail: detail, Err: ErrInvalidColumnKind}
}

// InvalidChartInput wraps ErrInvalidChartInput with a formatted reason.
func InvalidChartInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidChartInput, fmt.Sprintf(format, args...))
}

// ServiceError is a failure of an external collaborator (file storage or the
// question-answering backend).
type ServiceError struct {
	Service string
	Op      string
	Err     error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", ErrExternalService, e.Service, e.Op, e.Err)
}

func (e *ServiceError) Unwrap() []error {
	return []error{ErrExternalService, e.Err}
}

// External wraps err as an ErrExternalService failure of service during op.
// Returns nil if err is nil.
func External(service, op string, err error) error {
	if err == nil {
		return nil
	}
	return &ServiceError{Service: service, Op: op, Err: err}
}
