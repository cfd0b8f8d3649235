package download

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

// ErrChecksumMismatch is the sentinel for digest verification failures.
// It surfaces only after retry exhaustion; mid-flight mismatches are
// retried as transient faults.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// ChecksumError reports a digest mismatch for one artifact.
type ChecksumError struct {
	// ID is the artifact id.
	ID string
	// Path is the destination path that was being verified.
	Path string
	// Want and Got are the expected and computed hex digests.
	Want string
	Got  string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("artifact %s: checksum mismatch: want %s, got %s", e.ID, e.Want, e.Got)
}

// Is reports whether the error matches the checksum sentinel.
func (e *ChecksumError) Is(target error) bool {
	return target == ErrChecksumMismatch
}

// PartialFailureError aggregates the tasks that exhausted every
// candidate URL. Sibling tasks are never cancelled by a failure, so the
// error carries the complete failed set for the caller to judge.
type PartialFailureError struct {
	// FailedIDs are the artifact ids that failed, in submission order.
	FailedIDs []string
	// Err is the combined per-task error chain.
	Err error
}

func newPartialFailure(failed []*Task) *PartialFailureError {
	ids := make([]string, 0, len(failed))
	var combined error
	for _, t := range failed {
		ids = append(ids, t.Desc.ID)
		combined = multierr.Append(combined, fmt.Errorf("artifact %s: %w", t.Desc.ID, t.Err))
	}
	return &PartialFailureError{FailedIDs: ids, Err: combined}
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("%d artifact(s) failed: %v", len(e.FailedIDs), e.Err)
}

// Unwrap exposes the combined error chain for errors.Is/As traversal.
func (e *PartialFailureError) Unwrap() error {
	return e.Err
}
