package types

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores when a job does not exist.
var ErrNotFound = errors.New("not found")

// ErrNoTimingData is returned when a job has no word marks to segment.
var ErrNoTimingData = errors.New("no timing data")

// PreconditionError means a required prior stage block is missing. It is a caller error
// and is never retried.
type PreconditionError struct {
	Stage   Stage
	Missing string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition failed for stage %s: missing %s", e.Stage, e.Missing)
}

// ProviderError wraps a failed collaborator call.
type ProviderError struct {
	Provider  string
	Op        string
	Err       error
	Retryable bool
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s failed", e.Provider, e.Op)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ValidationError means downloaded or synthesized media failed a sanity check.
type ValidationError struct {
	Subject string
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Subject, e.Reason)
}

// TimingCoverageError means a segment timeline does not span the narration.
type TimingCoverageError struct {
	Index  int
	Reason string
}

func (e *TimingCoverageError) Error() string {
	return "timing coverage: " + e.Reason
}

// EncodingError means the media-encoding subprocess failed.
type EncodingError struct {
	Op     string
	Err    error
	Stderr string
}

func (e *EncodingError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("encoding %s: %v: %s", e.Op, e.Err, e.Stderr)
	}
	return fmt.Sprintf("encoding %s: %v", e.Op, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// StageError is what callers see when a stage fails. Prior blocks are untouched.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a provider failure worth retrying.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}
