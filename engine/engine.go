// Package engine orchestrates complete installations: metadata
// resolution, concurrent artifact retrieval, the loader installation
// protocol, and atomic profile persistence.
//
// The orchestrator is a forward-only state machine
//
//	Resolving -> Downloading -> Installing -> Complete
//
// with a terminal Failed state reachable from any stage. It is the sole
// writer of the persisted version profile: installers return profiles,
// the engine verifies and persists them.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/craftfall/anvil/adapter"
	"github.com/craftfall/anvil/download"
	"github.com/craftfall/anvil/installer"
	"github.com/craftfall/anvil/iox"
	"github.com/craftfall/anvil/log"
	"github.com/craftfall/anvil/manifest"
	"github.com/craftfall/anvil/metrics"
	"github.com/craftfall/anvil/types"
)

// State is one orchestrator stage.
type State string

// Orchestrator states. Transitions are forward-only; Failed is terminal
// and reachable from every non-terminal state.
const (
	StateResolving   State = "resolving"
	StateDownloading State = "downloading"
	StateInstalling  State = "installing"
	StateComplete    State = "complete"
	StateFailed      State = "failed"
)

// Config configures an Engine.
type Config struct {
	// Dir is the game destination root.
	Dir types.GameDir
	// Resolver fetches remote metadata. Required.
	Resolver *manifest.Resolver
	// Download configures the per-install download manager. Logger,
	// Progress and Collector are bound per install by the engine.
	Download download.Config
	// Logger overrides the per-install context logger. Nil means a
	// logger bound to the install identity is created per request.
	Logger *log.Logger
	// Progress receives checkpoints for all stages. Nil disables.
	Progress types.ProgressFunc
	// Adapters receive the terminal install event. May be empty.
	Adapters []adapter.Adapter
	// JavaPath is the executable for external transforms. Empty means
	// "java" on PATH.
	JavaPath string
	// HTTPClient overrides the metadata and transfer client used when
	// Download.HTTPClient is unset.
	HTTPClient *http.Client
}

// Engine runs installations. Safe for concurrent Install calls; each
// call owns its state exclusively.
type Engine struct {
	cfg Config
}

// New creates an engine. The resolver is required.
func New(cfg Config) (*Engine, error) {
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("engine: resolver is required")
	}
	if cfg.Dir.Root == "" {
		return nil, fmt.Errorf("engine: game dir root is required")
	}
	return &Engine{cfg: cfg}, nil
}

// Request identifies one installation.
type Request struct {
	GameVersion   string
	Loader        types.LoaderKind
	LoaderVersion string
	// InstallID is assigned when empty.
	InstallID string
}

// Result is the outcome of one installation run.
type Result struct {
	Meta        types.InstallMeta
	State       State
	Profile     *types.VersionProfile
	ProfilePath string
	Duration    time.Duration
	Metrics     metrics.Snapshot
}

// Install runs the full state machine for one request. On success the
// returned result carries the persisted profile; on failure the result
// still carries the terminal state and metrics alongside the error.
//
// Cancellation is checked between stages and fails the run with
// ErrCancelled semantics and the same cleanup as any other failure.
func (e *Engine) Install(ctx context.Context, req Request) (*Result, error) {
	meta := types.InstallMeta{
		InstallID:     req.InstallID,
		GameVersion:   req.GameVersion,
		Loader:        req.Loader,
		LoaderVersion: req.LoaderVersion,
	}
	if meta.InstallID == "" {
		meta.InstallID = uuid.NewString()
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}

	run := &installRun{
		engine:    e,
		meta:      meta,
		logger:    e.cfg.Logger,
		collector: metrics.NewCollector(string(meta.Loader), meta.InstallID),
		started:   time.Now(),
	}
	if run.logger == nil {
		run.logger = log.NewLogger(&meta)
	}
	run.collector.IncInstallStarted()

	res, err := run.execute(ctx)
	run.publish(ctx, res, err)
	return res, err
}

// installRun is the per-request state of one state machine execution.
type installRun struct {
	engine    *Engine
	meta      types.InstallMeta
	logger    *log.Logger
	collector *metrics.Collector
	started   time.Time

	state State
	// profileID is known after resolution; cleanup removes its
	// version directory on failure.
	profileID string
	// profileDirExisted is true when the profile's version directory
	// predates this run. Cleanup then leaves it alone so a failed
	// re-install cannot destroy a previously installed profile.
	profileDirExisted bool
	// vanilla is set when the run also installs the base game.
	vanilla *manifest.VanillaManifest
}

func (r *installRun) execute(ctx context.Context) (*Result, error) {
	r.enter(StateResolving)
	m, descs, err := r.resolve(ctx)
	if err != nil {
		return r.fail(err)
	}
	if err := r.checkpoint(ctx); err != nil {
		return r.fail(err)
	}

	r.enter(StateDownloading)
	if err := r.fetch(ctx, descs); err != nil {
		return r.fail(err)
	}
	if err := r.checkpoint(ctx); err != nil {
		return r.fail(err)
	}

	r.enter(StateInstalling)
	profile, err := r.install(ctx, m)
	if err != nil {
		return r.fail(err)
	}
	path, err := r.persist(profile)
	if err != nil {
		return r.fail(err)
	}

	r.enter(StateComplete)
	r.collector.IncInstallCompleted()
	r.logger.Info("installation complete", map[string]any{
		"profile": profile.ID,
		"path":    path,
	})
	return &Result{
		Meta:        r.meta,
		State:       StateComplete,
		Profile:     profile,
		ProfilePath: path,
		Duration:    time.Since(r.started),
		Metrics:     r.collector.Snapshot(),
	}, nil
}

// resolve produces the loader manifest plus the complete descriptor set
// for the downloading stage, including the vanilla base when it is not
// installed yet.
func (r *installRun) resolve(ctx context.Context) (*manifest.LoaderManifest, []types.ArtifactDescriptor, error) {
	dir := r.engine.cfg.Dir

	m, err := r.engine.cfg.Resolver.Resolve(ctx, &r.meta)
	if err != nil {
		return nil, nil, err
	}
	r.profileID = m.ProfileID()
	r.profileDirExisted = dirExists(dir.VersionDir(r.profileID))

	descs, err := m.Descriptors(dir)
	if err != nil {
		return nil, nil, err
	}

	// The loader installs on top of the vanilla version. Resolve the
	// base game only when its profile or client jar is missing.
	if !fileExists(dir.VersionJSON(r.meta.GameVersion)) || !fileExists(dir.VersionJAR(r.meta.GameVersion)) {
		vanilla, err := r.engine.cfg.Resolver.ResolveVanilla(ctx, dir, r.meta.GameVersion)
		if err != nil {
			return nil, nil, err
		}
		r.vanilla = vanilla
		descs = append(descs, vanilla.Descriptors...)
	}

	descs = types.DedupeDescriptors(descs)
	for _, d := range descs {
		r.progress().Emit(types.ProgressEvent{Kind: types.ProgressResolved, ArtifactID: d.ID, Total: len(descs)})
	}
	r.logger.Info("resolution complete", map[string]any{
		"profile":   r.profileID,
		"artifacts": len(descs),
		"vanilla":   r.vanilla != nil,
	})
	return m, descs, nil
}

// fetch retrieves the descriptor set and, when this run installs the
// base game, persists the vanilla version document once its artifact
// set is verified.
func (r *installRun) fetch(ctx context.Context, descs []types.ArtifactDescriptor) error {
	cfg := r.engine.cfg.Download
	cfg.Logger = r.logger
	cfg.Progress = r.progress()
	cfg.Collector = r.collector
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = r.engine.cfg.HTTPClient
	}

	if _, err := download.NewManager(cfg).Fetch(ctx, descs); err != nil {
		return err
	}

	if r.vanilla != nil {
		path := r.engine.cfg.Dir.VersionJSON(r.meta.GameVersion)
		if err := iox.WriteFileAtomic(path, r.vanilla.RawJSON, 0o644); err != nil {
			return fmt.Errorf("persist vanilla profile: %w", err)
		}
		r.logger.Info("vanilla base installed", map[string]any{"version": r.meta.GameVersion})
	}
	return nil
}

// install runs the loader protocol and verifies the produced profile.
func (r *installRun) install(ctx context.Context, m *manifest.LoaderManifest) (*types.VersionProfile, error) {
	cfg := r.engine.cfg
	inst, err := installer.New(r.meta.Loader, installer.Deps{
		Dir:       cfg.Dir,
		Downloads: download.NewManager(r.transferConfig()),
		Logger:    r.logger,
		Progress:  r.progress(),
		Collector: r.collector,
		JavaPath:  cfg.JavaPath,
	})
	if err != nil {
		return nil, err
	}

	profile, err := inst.Install(ctx, m)
	if err != nil {
		return nil, err
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	if err := r.verifyLibraries(profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// transferConfig is the download config for installer-internal fetches,
// bound to this run's logger and counters.
func (r *installRun) transferConfig() download.Config {
	cfg := r.engine.cfg.Download
	cfg.Logger = r.logger
	cfg.Progress = r.progress()
	cfg.Collector = r.collector
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = r.engine.cfg.HTTPClient
	}
	return cfg
}

// verifyLibraries checks that every library the profile references is
// present on disk. The profile must never be persisted ahead of its
// libraries.
func (r *installRun) verifyLibraries(profile *types.VersionProfile) error {
	dir := r.engine.cfg.Dir
	for _, lib := range profile.Libraries {
		path, err := libraryPath(dir, &lib)
		if err != nil {
			return err
		}
		if path == "" {
			continue
		}
		if !fileExists(path) {
			return fmt.Errorf("profile %s: library %s missing at %s", profile.ID, lib.Name, path)
		}
	}
	return nil
}

// libraryPath resolves the on-disk location a profile library should
// occupy. Libraries without any resolvable location are skipped.
func libraryPath(dir types.GameDir, lib *types.Library) (string, error) {
	if lib.Downloads != nil && lib.Downloads.Artifact != nil && lib.Downloads.Artifact.Path != "" {
		return dir.Library(lib.Downloads.Artifact.Path), nil
	}
	if lib.Name == "" {
		return "", nil
	}
	coord, err := types.ParseMaven(lib.Name)
	if err != nil {
		return "", fmt.Errorf("library %q: %w", lib.Name, err)
	}
	return dir.Library(coord.Path()), nil
}

// persist atomically writes the verified profile json.
func (r *installRun) persist(profile *types.VersionProfile) (string, error) {
	data, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode profile %s: %w", profile.ID, err)
	}
	path := r.engine.cfg.Dir.VersionJSON(profile.ID)
	if err := iox.WriteFileAtomic(path, data, 0o644); err != nil {
		return "", fmt.Errorf("persist profile %s: %w", profile.ID, err)
	}
	return path, nil
}

// enter transitions to the next state and emits a stage checkpoint.
func (r *installRun) enter(s State) {
	r.state = s
	r.progress().Emit(types.ProgressEvent{Kind: types.ProgressStage, Stage: string(s)})
	r.logger.Debug("stage", map[string]any{"state": string(s)})
}

// checkpoint fails the run between stages when the context is done.
func (r *installRun) checkpoint(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// fail marks the run terminal, cleans partial profile state, and wraps
// the cause into the install error taxonomy.
func (r *installRun) fail(cause error) (*Result, error) {
	failedIn := r.state
	r.enter(StateFailed)
	r.collector.IncInstallFailed()
	r.cleanup()

	err := classify(failedIn, r.meta.InstallID, cause)
	r.logger.Error("installation failed", map[string]any{
		"state": string(failedIn),
		"error": cause.Error(),
	})
	return &Result{
		Meta:     r.meta,
		State:    StateFailed,
		Duration: time.Since(r.started),
		Metrics:  r.collector.Snapshot(),
	}, err
}

// cleanup removes the loader profile directory this run created. The
// vanilla version and the shared library tree are left alone: their
// artifacts are individually verified and safe to reuse. A version
// directory that predates the run is also left alone, so a failed
// re-install leaves the existing profile intact.
func (r *installRun) cleanup() {
	if r.profileID == "" || r.profileID == r.meta.GameVersion || r.profileDirExisted {
		return
	}
	dir := r.engine.cfg.Dir.VersionDir(r.profileID)
	if err := os.RemoveAll(dir); err != nil {
		r.logger.Warn("partial profile cleanup failed", map[string]any{"dir": dir, "error": err.Error()})
	}
}

// publish sends the terminal event to every configured adapter.
// Publication is best-effort: adapter failures are logged, never
// propagated into the install result.
func (r *installRun) publish(ctx context.Context, res *Result, installErr error) {
	adapters := r.engine.cfg.Adapters
	if len(adapters) == 0 || res == nil {
		return
	}

	snap := res.Metrics
	ev := &adapter.InstallCompletedEvent{
		ContractVersion:   adapter.ContractVersion,
		EventType:         "install_completed",
		InstallID:         r.meta.InstallID,
		GameVersion:       r.meta.GameVersion,
		Loader:            string(r.meta.Loader),
		LoaderVersion:     r.meta.LoaderVersion,
		Outcome:           outcome(installErr),
		Timestamp:         time.Now().UTC().Format(time.RFC3339),
		ArtifactsVerified: snap.ArtifactsVerified,
		ArtifactsSkipped:  snap.ArtifactsSkipped,
		BytesFetched:      snap.BytesFetched,
		DurationMs:        res.Duration.Milliseconds(),
	}
	if res.Profile != nil {
		ev.ProfileID = res.Profile.ID
		ev.ProfilePath = res.ProfilePath
	}

	for _, a := range adapters {
		if err := a.Publish(ctx, ev); err != nil {
			r.logger.Warn("adapter publish failed", map[string]any{"error": err.Error()})
		}
	}
}

func (r *installRun) progress() types.ProgressFunc {
	return r.engine.cfg.Progress
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
