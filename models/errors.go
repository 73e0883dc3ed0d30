package models

import (
	"errors"
	"fmt"
)

// Error taxonomy for the pipeline. Each failure class drives a different
// orchestrator reaction: empty input skips the document, schema violations
// fail the stage immediately, oracle unavailability is retried with backoff,
// and persistence conflicts get one re-fetch-merge-retry.
var (
	ErrEmptyInput          = errors.New("empty input")
	ErrSchemaViolation     = errors.New("oracle response violates schema")
	ErrOracleUnavailable   = errors.New("extraction oracle unavailable")
	ErrPersistenceConflict = errors.New("persistence conflict")
)

// SchemaViolationError wraps the validation failure with the offending
// payload prefix for operator diagnosis.
type SchemaViolationError struct {
	Detail string
	Cause  error
}

func (e *SchemaViolationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("oracle response violates schema: %s: %v", e.Detail, e.Cause)
	}
	return fmt.Sprintf("oracle response violates schema: %s", e.Detail)
}

func (e *SchemaViolationError) Unwrap() error { return ErrSchemaViolation }

// OracleUnavailableError marks transport or timeout failures against the
// extraction oracle. Retryable up to the configured limit.
type OracleUnavailableError struct {
	Cause error
}

func (e *OracleUnavailableError) Error() string {
	return fmt.Sprintf("extraction oracle unavailable: %v", e.Cause)
}

func (e *OracleUnavailableError) Unwrap() error { return ErrOracleUnavailable }
