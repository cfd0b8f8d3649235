// Package metrics provides per-request metrics collection.
//
// The Collector accumulates counters during a single installation
// request. It is a leaf package with no internal dependencies. Transfer
// counters are recorded live by the download manager; install lifecycle
// counters by the orchestrator.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all collected metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Install lifecycle
	InstallsStarted   int64
	InstallsCompleted int64
	InstallsFailed    int64

	// Transfers
	ArtifactsRequested int64
	ArtifactsSkipped   int64
	ArtifactsVerified  int64
	ArtifactsFailed    int64
	TransferRetries    int64
	BytesFetched       int64

	// Installer protocol
	ProcessorStepsRun    int64
	ProcessorStepsFailed int64

	// Dimensions (informational, set at construction)
	Loader    string
	InstallID string
}

// Collector accumulates metrics during a single installation request.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	installsStarted   int64
	installsCompleted int64
	installsFailed    int64

	artifactsRequested int64
	artifactsSkipped   int64
	artifactsVerified  int64
	artifactsFailed    int64
	transferRetries    int64
	bytesFetched       int64

	processorStepsRun    int64
	processorStepsFailed int64

	loader    string
	installID string
}

// NewCollector creates a Collector with dimension labels. Both dimensions
// are optional.
func NewCollector(loader, installID string) *Collector {
	return &Collector{
		loader:    loader,
		installID: installID,
	}
}

// --- Install lifecycle ---

// IncInstallStarted records an installation request start.
func (c *Collector) IncInstallStarted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.installsStarted++
	c.mu.Unlock()
}

// IncInstallCompleted records a completed installation.
func (c *Collector) IncInstallCompleted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.installsCompleted++
	c.mu.Unlock()
}

// IncInstallFailed records a failed installation.
func (c *Collector) IncInstallFailed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.installsFailed++
	c.mu.Unlock()
}

// --- Transfers ---

// AddArtifactsRequested records descriptors submitted to the download manager.
func (c *Collector) AddArtifactsRequested(n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.artifactsRequested += n
	c.mu.Unlock()
}

// IncArtifactSkipped records a descriptor skipped because its destination
// was already present and valid.
func (c *Collector) IncArtifactSkipped() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.artifactsSkipped++
	c.mu.Unlock()
}

// IncArtifactVerified records a descriptor that reached Verified.
func (c *Collector) IncArtifactVerified() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.artifactsVerified++
	c.mu.Unlock()
}

// IncArtifactFailed records a descriptor that exhausted all candidates.
func (c *Collector) IncArtifactFailed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.artifactsFailed++
	c.mu.Unlock()
}

// IncTransferRetry records one retried transfer attempt.
func (c *Collector) IncTransferRetry() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.transferRetries++
	c.mu.Unlock()
}

// AddBytesFetched records payload bytes read from the network.
func (c *Collector) AddBytesFetched(n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.bytesFetched += n
	c.mu.Unlock()
}

// --- Installer protocol ---

// IncProcessorStepRun records one executed processor step.
func (c *Collector) IncProcessorStepRun() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.processorStepsRun++
	c.mu.Unlock()
}

// IncProcessorStepFailed records a processor step failure.
func (c *Collector) IncProcessorStepFailed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.processorStepsFailed++
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		InstallsStarted:   c.installsStarted,
		InstallsCompleted: c.installsCompleted,
		InstallsFailed:    c.installsFailed,

		ArtifactsRequested: c.artifactsRequested,
		ArtifactsSkipped:   c.artifactsSkipped,
		ArtifactsVerified:  c.artifactsVerified,
		ArtifactsFailed:    c.artifactsFailed,
		TransferRetries:    c.transferRetries,
		BytesFetched:       c.bytesFetched,

		ProcessorStepsRun:    c.processorStepsRun,
		ProcessorStepsFailed: c.processorStepsFailed,

		Loader:    c.loader,
		InstallID: c.installID,
	}
}
