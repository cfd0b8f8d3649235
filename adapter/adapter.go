// Package adapter defines the event publication boundary.
//
// Adapters publish install completion notifications to downstream
// systems (a launcher UI, a log monitor, a fleet dashboard). The engine
// owns adapter lifecycle; callers provide configuration only.
package adapter

import "context"

// InstallCompletedEvent is the payload published when an installation
// reaches a terminal state, success or not.
type InstallCompletedEvent struct {
	ContractVersion   string `json:"contract_version"`
	EventType         string `json:"event_type"` // always "install_completed"
	InstallID         string `json:"install_id"`
	GameVersion       string `json:"game_version"`
	Loader            string `json:"loader"`
	LoaderVersion     string `json:"loader_version"`
	ProfileID         string `json:"profile_id,omitempty"`
	ProfilePath       string `json:"profile_path,omitempty"`
	Outcome           string `json:"outcome"`   // success, failed, cancelled
	Timestamp         string `json:"timestamp"` // ISO 8601
	ArtifactsVerified int64  `json:"artifacts_verified"`
	ArtifactsSkipped  int64  `json:"artifacts_skipped"`
	BytesFetched      int64  `json:"bytes_fetched"`
	DurationMs        int64  `json:"duration_ms"`
}

// ContractVersion is the current event payload contract version.
const ContractVersion = "1"

// Outcome values.
const (
	OutcomeSuccess   = "success"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// Adapter publishes install completion events to a downstream system.
// Implementations must be safe for single-use per installation.
type Adapter interface {
	// Publish sends an install completion event to the downstream
	// system. Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *InstallCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}
