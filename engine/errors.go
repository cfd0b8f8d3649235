package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/craftfall/anvil/adapter"
)

// ErrCancelled marks an installation failed by caller cancellation.
// Cleanup is identical to any other failure.
var ErrCancelled = errors.New("installation cancelled")

// InstallError wraps the cause of a failed installation with the stage
// it failed in.
type InstallError struct {
	// State is the stage the run was in when it failed.
	State State
	// InstallID identifies the failed request.
	InstallID string
	// Err is the underlying cause.
	Err error
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("install %s failed in %s: %v", e.InstallID, e.State, e.Err)
}

func (e *InstallError) Unwrap() error {
	return e.Err
}

// classify wraps a stage failure, mapping context cancellation onto
// ErrCancelled.
func classify(state State, installID string, cause error) error {
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		cause = fmt.Errorf("%w: %v", ErrCancelled, cause)
	}
	return &InstallError{State: state, InstallID: installID, Err: cause}
}

// outcome maps an install result error onto the published event outcome.
func outcome(err error) string {
	switch {
	case err == nil:
		return adapter.OutcomeSuccess
	case errors.Is(err, ErrCancelled):
		return adapter.OutcomeCancelled
	default:
		return adapter.OutcomeFailed
	}
}
