// Package domerrors defines the error taxonomy shared across the
// validation pipeline. Callers classify failures with errors.Is/errors.As
// rather than string matching.
package domerrors

import (
	"errors"
	"fmt"
)

// Sentinel classes. Wrap these with %w so call sites can test the class
// while keeping the contextual message.
var (
	// ErrSchemaMismatch is fatal: the input does not line up with the
	// loaded schema (wrong header, wrong field count). The run halts
	// immediately and scoring never happens.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrSchemaLoad is fatal: the schema definition itself is unusable
	// (field count off, duplicate names).
	ErrSchemaLoad = errors.New("schema load failed")

	// ErrRecordParse is local to a single record. The record is excluded
	// from the phase and counted; the batch continues.
	ErrRecordParse = errors.New("record parse failed")

	// ErrRuleEvaluation means a rule's own logic is defective, as opposed
	// to the record being invalid. Never swallowed, always fatal.
	ErrRuleEvaluation = errors.New("rule evaluation defect")

	// ErrSourceRead is a failure reading from the record source.
	ErrSourceRead = errors.New("source read failed")

	// ErrPersistence is a transient sink failure, retried with backoff at
	// the sink-call boundary.
	ErrPersistence = errors.New("persistence failed")
)

// PhaseError carries the context the orchestrator surfaces to the user
// when a phase exhausts its retries: which phase, how many attempts, and
// the first contributing error.
type PhaseError struct {
	Phase    string
	Attempts int
	First    error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("phase %s failed after %d attempts: %v", e.Phase, e.Attempts, e.First)
}

func (e *PhaseError) Unwrap() error { return e.First }

// Fatal reports whether err must abort the whole run rather than be
// retried or tallied per record.
func Fatal(err error) bool {
	return errors.Is(err, ErrSchemaMismatch) ||
		errors.Is(err, ErrSchemaLoad) ||
		errors.Is(err, ErrRuleEvaluation)
}

// Transient reports whether err is worth retrying at the call boundary.
func Transient(err error) bool {
	return errors.Is(err, ErrPersistence) || errors.Is(err, ErrSourceRead)
}
