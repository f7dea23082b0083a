package optimizer

import (
	"errors"
	"fmt"
)

var (
	// ErrSolverInfeasible решатель не вернул OPTIMAL/FEASIBLE
	ErrSolverInfeasible = errors.New("solver returned no feasible solution")
	// ErrSolverTimeout решатель не уложился в отведенное время
	ErrSolverTimeout = errors.New("solver timed out")
)

// ValidationError некорректные входные данные оптимизации.
// Не повторяется автоматически.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Message
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

func newValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// SolverError неуспешный статус решателя. Всегда совместим с ErrSolverInfeasible,
// для статуса TIMEOUT также с ErrSolverTimeout.
type SolverError struct {
	Status SolverStatus
	Err    error
}

func (e *SolverError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("solver status %s: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("solver status %s", e.Status)
}

func (e *SolverError) Unwrap() []error {
	errs := []error{ErrSolverInfeasible}
	if e.Status == StatusTimeout {
		errs = append(errs, ErrSolverTimeout)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}
