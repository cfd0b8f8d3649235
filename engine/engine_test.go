package engine

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/craftfall/anvil/adapter"
	"github.com/craftfall/anvil/download"
	"github.com/craftfall/anvil/manifest"
	"github.com/craftfall/anvil/types"
)

func sha1hex(b []byte) string {
	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:])
}

var (
	clientJarBytes  = []byte("vanilla client jar bytes")
	vanillaLibBytes = []byte("brigadier library bytes")
	assetBytes      = []byte("icon png bytes")
)

// upstream is a fixture standing in for every remote service an
// installation touches: the version manifest, the fabric meta service,
// the maven repositories and the asset store.
type upstream struct {
	srv *httptest.Server
	// artifactHits counts payload requests, excluding metadata.
	artifactHits atomic.Int64

	mu        sync.Mutex
	corrupted map[string]bool
}

// corrupt makes the payload at path serve garbage that no longer
// matches its advertised digest.
func (u *upstream) corrupt(path string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.corrupted[path] = true
}

func (u *upstream) isCorrupt(path string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.corrupted[path]
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{corrupted: make(map[string]bool)}

	mux := http.NewServeMux()
	mux.HandleFunc("/mc/version_manifest.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"latest":{"release":"1.20.1"},"versions":[
			{"id":"1.20.1","type":"release","url":"%s/mc/1.20.1.json","sha1":""}
		]}`, u.srv.URL)
	})
	mux.HandleFunc("/mc/1.20.1.json", func(w http.ResponseWriter, r *http.Request) {
		assetIndex := u.assetIndexDoc()
		fmt.Fprintf(w, `{
			"id": "1.20.1",
			"mainClass": "net.minecraft.client.main.Main",
			"assets": "5",
			"assetIndex": {"id": "5", "sha1": "%s", "size": %d, "url": "%s/mc/assets5.json"},
			"downloads": {"client": {"sha1": "%s", "size": %d, "url": "%s/files/client.jar"}},
			"libraries": [
				{"name": "com.mojang:brigadier:1.1.8", "downloads": {"artifact": {
					"path": "com/mojang/brigadier/1.1.8/brigadier-1.1.8.jar",
					"sha1": "%s", "size": %d, "url": "%s/files/brigadier.jar"
				}}}
			]
		}`, sha1hex(assetIndex), len(assetIndex), u.srv.URL,
			sha1hex(clientJarBytes), len(clientJarBytes), u.srv.URL,
			sha1hex(vanillaLibBytes), len(vanillaLibBytes), u.srv.URL)
	})
	mux.HandleFunc("/mc/assets5.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(u.assetIndexDoc())
	})
	mux.HandleFunc("/fabric/v2/versions/loader/1.20.1/0.15.0", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{
			"loader": {"maven": "net.fabricmc:fabric-loader:0.15.0", "version": "0.15.0", "stable": true},
			"intermediary": {"maven": "net.fabricmc:intermediary:1.20.1", "version": "1.20.1", "stable": true},
			"launcherMeta": {
				"version": 1,
				"libraries": {
					"client": [],
					"common": [{"name": "org.ow2.asm:asm:9.6", "url": "%s/maven"}],
					"server": []
				},
				"mainClass": {"client": "net.fabricmc.loader.impl.launch.knot.KnotClient", "server": "net.fabricmc.loader.impl.launch.knot.KnotServer"}
			}
		}`, u.srv.URL)
	})
	mux.HandleFunc("/files/client.jar", u.payload(clientJarBytes))
	mux.HandleFunc("/files/brigadier.jar", u.payload(vanillaLibBytes))
	mux.HandleFunc("/assets/", u.payload(assetBytes))
	mux.HandleFunc("/maven/", u.payload([]byte("fabric library jar bytes")))

	u.srv = httptest.NewServer(mux)
	t.Cleanup(u.srv.Close)
	return u
}

func (u *upstream) assetIndexDoc() []byte {
	return []byte(fmt.Sprintf(`{"objects":{"icons/icon.png":{"hash":"%s","size":%d}}}`,
		sha1hex(assetBytes), len(assetBytes)))
}

func (u *upstream) payload(b []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u.artifactHits.Add(1)
		if u.isCorrupt(r.URL.Path) {
			_, _ = w.Write([]byte("corrupted payload"))
			return
		}
		_, _ = w.Write(b)
	}
}

func (u *upstream) endpoints() manifest.Endpoints {
	return manifest.Endpoints{
		VersionManifest: u.srv.URL + "/mc/version_manifest.json",
		AssetsBase:      u.srv.URL + "/assets",
		FabricMeta:      u.srv.URL + "/fabric",
		FabricMaven:     u.srv.URL + "/maven",
		QuiltMeta:       u.srv.URL + "/quilt",
		QuiltMaven:      u.srv.URL + "/maven",
		ForgeList:       u.srv.URL + "/forge",
		ForgeMaven:      u.srv.URL + "/maven",
		OptifineList:    u.srv.URL + "/optifine",
		OptifineHelper:  u.srv.URL + "/maven/net/stevexmh/optifine-installer/0.0.0/optifine-installer.jar",
	}
}

// captureAdapter records published events.
type captureAdapter struct {
	mu     sync.Mutex
	events []*adapter.InstallCompletedEvent
}

func (c *captureAdapter) Publish(_ context.Context, ev *adapter.InstallCompletedEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *captureAdapter) Close() error { return nil }

func (c *captureAdapter) last(t *testing.T) *adapter.InstallCompletedEvent {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) == 0 {
		t.Fatal("no event published")
	}
	return c.events[len(c.events)-1]
}

func testEngine(t *testing.T, u *upstream, root string, opts ...func(*Config)) (*Engine, *captureAdapter) {
	t.Helper()
	capture := &captureAdapter{}
	cfg := Config{
		Dir:      types.NewGameDir(root),
		Resolver: manifest.NewResolver(manifest.Config{Endpoints: u.endpoints()}),
		Download: download.Config{
			Concurrency: 4,
			MaxAttempts: 2,
			BackoffBase: time.Millisecond,
			BackoffMax:  2 * time.Millisecond,
		},
		Adapters: []adapter.Adapter{capture},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	e, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return e, capture
}

func fabricRequest() Request {
	return Request{GameVersion: "1.20.1", Loader: types.LoaderFabric, LoaderVersion: "0.15.0"}
}

func TestInstall_FabricEndToEnd(t *testing.T) {
	u := newUpstream(t)
	root := t.TempDir()

	var stages []string
	e, capture := testEngine(t, u, root, func(cfg *Config) {
		cfg.Progress = func(ev types.ProgressEvent) {
			if ev.Kind == types.ProgressStage {
				stages = append(stages, ev.Stage)
			}
		}
	})

	res, err := e.Install(context.Background(), fabricRequest())
	if err != nil {
		t.Fatalf("Install: %v", err)
	}

	if res.State != StateComplete {
		t.Errorf("state = %s, want complete", res.State)
	}
	if res.Meta.InstallID == "" {
		t.Error("install id not assigned")
	}
	if res.Profile.ID != "1.20.1-fabric0.15.0" {
		t.Errorf("profile id = %q", res.Profile.ID)
	}
	if res.Profile.MainClass != "net.fabricmc.loader.impl.launch.knot.KnotClient" {
		t.Errorf("main class = %q", res.Profile.MainClass)
	}
	if len(res.Profile.Libraries) != 3 {
		t.Errorf("libraries = %d, want 3", len(res.Profile.Libraries))
	}

	dir := types.NewGameDir(root)
	for _, path := range []string{
		res.ProfilePath,
		dir.VersionJSON("1.20.1"),
		dir.VersionJAR("1.20.1"),
		dir.Library("com/mojang/brigadier/1.1.8/brigadier-1.1.8.jar"),
		dir.Library("net/fabricmc/fabric-loader/0.15.0/fabric-loader-0.15.0.jar"),
		dir.AssetIndex("5"),
		dir.AssetObject(sha1hex(assetBytes)),
	} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("missing %s", path)
		}
	}

	want := []string{"resolving", "downloading", "installing", "complete"}
	if len(stages) != len(want) {
		t.Fatalf("stages = %v, want %v", stages, want)
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Errorf("stage[%d] = %s, want %s", i, stages[i], want[i])
		}
	}

	if res.Metrics.InstallsCompleted != 1 || res.Metrics.InstallsFailed != 0 {
		t.Errorf("lifecycle counters = %+v", res.Metrics)
	}
	if res.Metrics.ArtifactsVerified == 0 {
		t.Error("no artifacts counted as verified")
	}

	ev := capture.last(t)
	if ev.Outcome != adapter.OutcomeSuccess {
		t.Errorf("event outcome = %q", ev.Outcome)
	}
	if ev.ProfileID != "1.20.1-fabric0.15.0" {
		t.Errorf("event profile id = %q", ev.ProfileID)
	}
	if ev.InstallID != res.Meta.InstallID {
		t.Errorf("event install id = %q", ev.InstallID)
	}
}

func TestInstall_Idempotent(t *testing.T) {
	u := newUpstream(t)
	root := t.TempDir()
	e, _ := testEngine(t, u, root)

	if _, err := e.Install(context.Background(), fabricRequest()); err != nil {
		t.Fatalf("first install: %v", err)
	}
	firstHits := u.artifactHits.Load()

	res, err := e.Install(context.Background(), fabricRequest())
	if err != nil {
		t.Fatalf("second install: %v", err)
	}
	if res.State != StateComplete {
		t.Errorf("state = %s", res.State)
	}
	if got := u.artifactHits.Load(); got != firstHits {
		t.Errorf("second install fetched %d artifacts, want 0", got-firstHits)
	}
	if res.Metrics.ArtifactsSkipped == 0 {
		t.Error("second install should skip valid artifacts")
	}
}

func TestInstall_ChecksumFailureIsAtomic(t *testing.T) {
	u := newUpstream(t)
	// The metadata keeps advertising the correct digest; the payload
	// never matches it.
	u.corrupt("/files/brigadier.jar")

	root := t.TempDir()
	e, capture := testEngine(t, u, root, func(cfg *Config) {
		cfg.Download.MaxAttempts = 1
	})

	res, err := e.Install(context.Background(), fabricRequest())
	if err == nil {
		t.Fatal("want download failure")
	}

	var ierr *InstallError
	if !errors.As(err, &ierr) {
		t.Fatalf("want *InstallError, got %T", err)
	}
	if ierr.State != StateDownloading {
		t.Errorf("failed state = %s, want downloading", ierr.State)
	}
	if !errors.Is(err, download.ErrChecksumMismatch) {
		t.Errorf("cause = %v, want checksum mismatch", err)
	}
	if res.State != StateFailed {
		t.Errorf("result state = %s", res.State)
	}

	dir := types.NewGameDir(root)
	if _, statErr := os.Stat(dir.VersionJSON("1.20.1-fabric0.15.0")); statErr == nil {
		t.Error("profile persisted despite failed download")
	}
	if _, statErr := os.Stat(dir.VersionJSON("1.20.1")); statErr == nil {
		t.Error("vanilla profile persisted despite failed download")
	}
	if res.Metrics.InstallsFailed != 1 {
		t.Errorf("installs failed = %d", res.Metrics.InstallsFailed)
	}

	ev := capture.last(t)
	if ev.Outcome != adapter.OutcomeFailed {
		t.Errorf("event outcome = %q", ev.Outcome)
	}
}

func TestInstall_FailedReinstallKeepsExistingProfile(t *testing.T) {
	u := newUpstream(t)
	root := t.TempDir()
	e, _ := testEngine(t, u, root, func(cfg *Config) {
		cfg.Download.MaxAttempts = 1
	})

	if _, err := e.Install(context.Background(), fabricRequest()); err != nil {
		t.Fatalf("first install: %v", err)
	}

	dir := types.NewGameDir(root)
	profilePath := dir.VersionJSON("1.20.1-fabric0.15.0")
	before, err := os.ReadFile(profilePath)
	if err != nil {
		t.Fatalf("read persisted profile: %v", err)
	}

	// Send the second run back through the downloading stage and make
	// that download fail its digest check.
	if err := os.Remove(dir.VersionJAR("1.20.1")); err != nil {
		t.Fatalf("remove client jar: %v", err)
	}
	u.corrupt("/files/client.jar")

	res, err := e.Install(context.Background(), fabricRequest())
	if err == nil {
		t.Fatal("want download failure")
	}
	var ierr *InstallError
	if !errors.As(err, &ierr) {
		t.Fatalf("want *InstallError, got %T", err)
	}
	if ierr.State != StateDownloading {
		t.Errorf("failed state = %s, want downloading", ierr.State)
	}
	if res.State != StateFailed {
		t.Errorf("result state = %s", res.State)
	}

	after, err := os.ReadFile(profilePath)
	if err != nil {
		t.Fatalf("failed re-install removed the existing profile: %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Error("failed re-install modified the existing profile")
	}
}

func TestInstall_Cancelled(t *testing.T) {
	u := newUpstream(t)
	e, capture := testEngine(t, u, t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := e.Install(ctx, fabricRequest())
	if err == nil {
		t.Fatal("want cancellation failure")
	}
	if !errors.Is(err, ErrCancelled) {
		t.Errorf("err = %v, want ErrCancelled", err)
	}
	if res.State != StateFailed {
		t.Errorf("state = %s", res.State)
	}
	if capture.last(t).Outcome != adapter.OutcomeCancelled {
		t.Errorf("event outcome = %q", capture.last(t).Outcome)
	}
}

func TestInstall_ValidatesRequest(t *testing.T) {
	u := newUpstream(t)
	e, _ := testEngine(t, u, t.TempDir())

	cases := []Request{
		{GameVersion: "", Loader: types.LoaderFabric, LoaderVersion: "0.15.0"},
		{GameVersion: "1.20.1", Loader: "liteloader", LoaderVersion: "1"},
		{GameVersion: "1.20.1", Loader: types.LoaderFabric, LoaderVersion: ""},
	}
	for _, req := range cases {
		if _, err := e.Install(context.Background(), req); err == nil {
			t.Errorf("request %+v should be rejected", req)
		}
	}
}

func TestNew_RequiresResolver(t *testing.T) {
	if _, err := New(Config{Dir: types.NewGameDir(t.TempDir())}); err == nil {
		t.Error("missing resolver must be rejected")
	}
	if _, err := New(Config{Resolver: manifest.NewResolver(manifest.Config{})}); err == nil {
		t.Error("missing game dir must be rejected")
	}
}

func TestOutcome(t *testing.T) {
	if got := outcome(nil); got != adapter.OutcomeSuccess {
		t.Errorf("outcome(nil) = %q", got)
	}
	cancelled := classify(StateResolving, "id", context.Canceled)
	if got := outcome(cancelled); got != adapter.OutcomeCancelled {
		t.Errorf("outcome(cancelled) = %q", got)
	}
	failed := classify(StateDownloading, "id", errors.New("boom"))
	if got := outcome(failed); got != adapter.OutcomeFailed {
		t.Errorf("outcome(failed) = %q", got)
	}
}
