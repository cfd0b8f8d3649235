// Package download executes artifact transfers under a bounded
// concurrency budget with retry, checksum verification and atomic
// destination writes.
//
// The Manager is the single download path of the system: the manifest
// resolver and the installers submit ArtifactDescriptors here rather
// than fetching anything themselves. A Fetch call blocks until every
// task reaches a terminal state; a task failure never cancels its
// siblings.
package download

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/craftfall/anvil/log"
	"github.com/craftfall/anvil/metrics"
	"github.com/craftfall/anvil/types"
)

// Defaults applied by NewManager for zero config fields.
const (
	DefaultConcurrency = 8
	DefaultMaxAttempts = 3
	DefaultBackoffBase = 500 * time.Millisecond
	DefaultBackoffMax  = 10 * time.Second
	DefaultTimeout     = 10 * time.Minute
)

// Config configures a Manager.
type Config struct {
	// Concurrency is the maximum simultaneous transfers.
	Concurrency int
	// MaxAttempts is the retry budget per candidate URL.
	MaxAttempts int
	// BackoffBase and BackoffMax bound the capped exponential backoff
	// between retries.
	BackoffBase time.Duration
	BackoffMax  time.Duration
	// HTTPClient overrides the transport (for tests and proxies).
	HTTPClient *http.Client
	// Logger receives transfer diagnostics. Nil means silent.
	Logger *log.Logger
	// Progress receives download_complete checkpoints. Nil disables.
	Progress types.ProgressFunc
	// Collector receives transfer counters. Nil disables.
	Collector *metrics.Collector
}

// Manager downloads artifact sets. One Manager is safe for concurrent
// Fetch calls; each call owns its task set exclusively.
type Manager struct {
	concurrency int
	maxAttempts int
	backoffBase time.Duration
	backoffMax  time.Duration
	client      *http.Client
	logger      *log.Logger
	progress    types.ProgressFunc
	collector   *metrics.Collector

	// inFlight is the instantaneous transfer gauge; maxInFlight is its
	// high-water mark, kept for the concurrency-bound property.
	inFlight    atomic.Int64
	maxInFlight atomic.Int64
}

// NewManager creates a manager from config, applying defaults.
func NewManager(cfg Config) *Manager {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultBackoffBase
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = DefaultBackoffMax
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &Manager{
		concurrency: cfg.Concurrency,
		maxAttempts: cfg.MaxAttempts,
		backoffBase: cfg.BackoffBase,
		backoffMax:  cfg.BackoffMax,
		client:      cfg.HTTPClient,
		logger:      logger,
		progress:    cfg.Progress,
		collector:   cfg.Collector,
	}
}

// MaxInFlight returns the highest simultaneous transfer count observed
// over the manager's lifetime.
func (m *Manager) MaxInFlight() int64 {
	return m.maxInFlight.Load()
}

// Fetch downloads every descriptor and blocks until all tasks reach a
// terminal state. Descriptors sharing a destination path are
// deduplicated, keeping the first. The returned Result always covers
// every task; the error is Result.Err() for convenience.
//
// Tasks start in submission order but complete unordered.
func (m *Manager) Fetch(ctx context.Context, descs []types.ArtifactDescriptor) (*Result, error) {
	descs = types.DedupeDescriptors(descs)
	m.collector.AddArtifactsRequested(int64(len(descs)))

	tasks := make([]*Task, len(descs))
	for i, d := range descs {
		tasks[i] = &Task{Desc: d, Status: StatusPending}
	}

	sem := make(chan struct{}, m.concurrency)
	var wg sync.WaitGroup
	var completed atomic.Int64

	for _, task := range tasks {
		if err := task.Desc.Validate(); err != nil {
			task.Status = StatusFailed
			task.Err = err
			completed.Add(1)
			continue
		}

		// Acquire a transfer slot. Cancellation fails the remaining
		// queued tasks without waiting for slots.
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			task.Status = StatusFailed
			task.Err = ctx.Err()
			completed.Add(1)
			continue
		}

		wg.Add(1)
		go func(t *Task) {
			defer wg.Done()
			defer func() { <-sem }()

			cur := m.inFlight.Add(1)
			for {
				max := m.maxInFlight.Load()
				if cur <= max || m.maxInFlight.CompareAndSwap(max, cur) {
					break
				}
			}
			defer m.inFlight.Add(-1)

			m.fetchOne(ctx, t)

			done := completed.Add(1)
			if t.Status == StatusVerified {
				m.progress.Emit(types.ProgressEvent{
					Kind:       types.ProgressDownloaded,
					ArtifactID: t.Desc.ID,
					Completed:  int(done),
					Total:      len(tasks),
				})
			}
		}(task)
	}

	wg.Wait()

	result := &Result{Tasks: tasks}
	if failed := result.Failed(); len(failed) > 0 {
		m.logger.Warn("artifact fetch finished with failures", map[string]any{
			"total":  len(tasks),
			"failed": len(failed),
		})
	} else {
		m.logger.Debug("artifact fetch complete", map[string]any{"total": len(tasks)})
	}
	return result, result.Err()
}
