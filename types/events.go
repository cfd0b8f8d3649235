package types

// ProgressKind classifies the checkpoint a progress event reports.
type ProgressKind string

// Progress checkpoints. Purely observational: callbacks never influence
// control flow.
const (
	// ProgressResolved fires once per artifact when its descriptor
	// has been resolved from manifest metadata.
	ProgressResolved ProgressKind = "artifact_resolved"
	// ProgressDownloaded fires when an artifact reaches Verified,
	// including skip-if-valid hits that made no network call.
	ProgressDownloaded ProgressKind = "download_complete"
	// ProgressStep fires when an installer protocol step completes,
	// e.g. a processor transform.
	ProgressStep ProgressKind = "step_complete"
	// ProgressStage fires when the orchestrator transitions state.
	ProgressStage ProgressKind = "stage"
)

// ProgressEvent is one observational checkpoint during an installation.
type ProgressEvent struct {
	// Kind is the checkpoint type.
	Kind ProgressKind
	// ArtifactID identifies the artifact for resolved/downloaded events.
	ArtifactID string
	// Step names the protocol step for step_complete events.
	Step string
	// Stage names the orchestrator state for stage events.
	Stage string
	// Completed and Total report artifact counts when known.
	Completed int
	Total     int
}

// ProgressFunc receives progress checkpoints. A nil ProgressFunc is
// valid and means no reporting.
type ProgressFunc func(ProgressEvent)

// Emit invokes the callback if set. Nil-safe.
func (f ProgressFunc) Emit(ev ProgressEvent) {
	if f != nil {
		f(ev)
	}
}
