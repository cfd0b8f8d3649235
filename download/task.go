package download

import (
	"fmt"
	"math/rand"
	"os"

	"github.com/craftfall/anvil/types"
)

// Status is the terminal-state machine of one download task.
type Status string

// Task statuses. Tasks move Pending -> InFlight -> Verified | Failed.
const (
	StatusPending  Status = "pending"
	StatusInFlight Status = "in_flight"
	StatusVerified Status = "verified"
	StatusFailed   Status = "failed"
)

// Task wraps an ArtifactDescriptor with its download state. Tasks are
// owned exclusively by the Manager for the duration of one Fetch call;
// callers read them only from the returned Result.
type Task struct {
	// Desc is the immutable descriptor this task downloads.
	Desc types.ArtifactDescriptor
	// Status is the task's current state.
	Status Status
	// Attempts counts transfer attempts across all candidate URLs.
	// Zero for skip-if-valid hits.
	Attempts int
	// Skipped is true when the destination was already present and
	// valid, so no network call was made.
	Skipped bool
	// Err is the terminal error when Status is Failed.
	Err error

	// part is the temp file this task streams into. It carries a
	// random suffix so that tasks from other managers or processes
	// fetching the same artifact never share a write target.
	part string
}

// claimPartial returns the task's private temp path, creating it on
// first use. A partial file a previous run left under the well-known
// <dest>.part name is adopted by rename; rename is atomic, so at most
// one concurrent claimant wins it and the rest start from scratch.
func (t *Task) claimPartial() string {
	if t.part == "" {
		t.part = fmt.Sprintf("%s.part.%08x", t.Desc.Path, rand.Uint32())
		_ = os.Rename(t.Desc.Path+".part", t.part)
	}
	return t.part
}

// releasePartial hands a surviving partial back under the well-known
// name so a later run can resume it with a Range request.
func (t *Task) releasePartial() {
	if t.part == "" {
		return
	}
	_ = os.Rename(t.part, t.Desc.Path+".part")
	t.part = ""
}

// Result aggregates the outcome of one Fetch call. Tasks appear in
// submission order (after dedup); completion order is not recorded.
type Result struct {
	Tasks []*Task
}

// Verified returns the tasks that reached Verified, including skips.
func (r *Result) Verified() []*Task {
	out := make([]*Task, 0, len(r.Tasks))
	for _, t := range r.Tasks {
		if t.Status == StatusVerified {
			out = append(out, t)
		}
	}
	return out
}

// Failed returns the tasks that exhausted every candidate.
func (r *Result) Failed() []*Task {
	var out []*Task
	for _, t := range r.Tasks {
		if t.Status == StatusFailed {
			out = append(out, t)
		}
	}
	return out
}

// Err returns nil when every task verified, otherwise a
// *PartialFailureError aggregating the failed tasks.
func (r *Result) Err() error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}
	return newPartialFailure(failed)
}
