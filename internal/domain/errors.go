package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy for the decision pipeline.
//
//   - ValidationError: caller mistake (bad override status/reason), 4xx.
//   - NotFoundError: no matching record for the tenant, 4xx.
//   - EvaluationError: one rule/watch expression failed; isolated and
//     logged, never fatal to the pass.
//   - EnrichmentError: an external lookup failed or timed out; the input
//     degrades to its default and the pipeline continues.
//   - PersistenceError: a write failed; surfaced to the caller. Earlier
//     side effects are not rolled back.
var (
	ErrValidation  = errors.New("validation error")
	ErrNotFound    = errors.New("not found")
	ErrEvaluation  = errors.New("evaluation error")
	ErrEnrichment  = errors.New("enrichment error")
	ErrPersistence = errors.New("persistence error")
)

// ValidationErrorf wraps ErrValidation with a message.
func ValidationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundErrorf wraps ErrNotFound with a message.
func NotFoundErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// EvaluationErrorf wraps ErrEvaluation with a message.
func EvaluationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrEvaluation, fmt.Sprintf(format, args...))
}

// PersistenceErrorf wraps ErrPersistence with a message.
func PersistenceErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPersistence, fmt.Sprintf(format, args...))
}
