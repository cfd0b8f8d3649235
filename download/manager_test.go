package download

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/craftfall/anvil/metrics"
	"github.com/craftfall/anvil/types"
)

func sha1hex(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

// fastManager returns a manager with near-zero backoff so retry tests
// run quickly.
func fastManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	if cfg.BackoffBase == 0 {
		cfg.BackoffBase = time.Millisecond
	}
	if cfg.BackoffMax == 0 {
		cfg.BackoffMax = 2 * time.Millisecond
	}
	return NewManager(cfg)
}

func TestFetch_Success(t *testing.T) {
	body := []byte("library bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "libs", "a.jar")
	m := fastManager(t, Config{Concurrency: 2})

	res, err := m.Fetch(context.Background(), []types.ArtifactDescriptor{{
		ID:   "g:a:1",
		URLs: []string{srv.URL + "/a.jar"},
		SHA1: sha1hex(body),
		Size: int64(len(body)),
		Path: dest,
	}})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got := res.Tasks[0].Status; got != StatusVerified {
		t.Fatalf("status = %s, want verified", got)
	}
	if res.Tasks[0].Attempts != 1 {
		t.Errorf("attempts = %d, want 1", res.Tasks[0].Attempts)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read dest: %v", err)
	}
	if string(data) != string(body) {
		t.Errorf("dest content = %q, want %q", data, body)
	}
	if _, err := os.Stat(dest + ".part"); !os.IsNotExist(err) {
		t.Error("temp file should be gone after rename")
	}
}

func TestFetch_ConcurrencyBound(t *testing.T) {
	const budget = 3
	const n = 24

	var cur, peak atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		c := cur.Add(1)
		defer cur.Add(-1)
		for {
			p := peak.Load()
			if c <= p || peak.CompareAndSwap(p, c) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		_, _ = w.Write([]byte("x"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	descs := make([]types.ArtifactDescriptor, n)
	for i := range descs {
		descs[i] = types.ArtifactDescriptor{
			ID:   fmt.Sprintf("a-%d", i),
			URLs: []string{fmt.Sprintf("%s/%d", srv.URL, i)},
			Path: filepath.Join(dir, fmt.Sprintf("%d.jar", i)),
		}
	}

	m := fastManager(t, Config{Concurrency: budget})
	res, err := m.Fetch(context.Background(), descs)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(res.Verified()) != n {
		t.Fatalf("verified = %d, want %d", len(res.Verified()), n)
	}
	if peak.Load() > budget {
		t.Errorf("observed %d simultaneous transfers, budget %d", peak.Load(), budget)
	}
	if m.MaxInFlight() > budget {
		t.Errorf("manager gauge peaked at %d, budget %d", m.MaxInFlight(), budget)
	}
}

func TestFetch_RetryThenSuccess(t *testing.T) {
	const transientFailures = 2
	body := []byte("eventually fine")

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) <= transientFailures {
			http.Error(w, "try later", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	col := metrics.NewCollector("fabric", "ins-test")
	m := fastManager(t, Config{Concurrency: 1, MaxAttempts: 3, Collector: col})

	res, err := m.Fetch(context.Background(), []types.ArtifactDescriptor{{
		ID:   "g:a:1",
		URLs: []string{srv.URL},
		SHA1: sha1hex(body),
		Path: filepath.Join(t.TempDir(), "a.jar"),
	}})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	task := res.Tasks[0]
	if task.Status != StatusVerified {
		t.Fatalf("status = %s, want verified (err %v)", task.Status, task.Err)
	}
	if task.Attempts != transientFailures+1 {
		t.Errorf("attempts = %d, want %d", task.Attempts, transientFailures+1)
	}
	if got := col.Snapshot().TransferRetries; got != transientFailures {
		t.Errorf("retry counter = %d, want %d", got, transientFailures)
	}
}

func TestFetch_ChecksumEnforcement(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("wrong content"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "a.jar")
	m := fastManager(t, Config{Concurrency: 1, MaxAttempts: 2})

	res, err := m.Fetch(context.Background(), []types.ArtifactDescriptor{{
		ID:   "g:a:1",
		URLs: []string{srv.URL},
		SHA1: strings.Repeat("0", 40),
		Path: dest,
	}})
	if err == nil {
		t.Fatal("want failure for wrong checksum")
	}

	task := res.Tasks[0]
	if task.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", task.Status)
	}
	if !errors.Is(task.Err, ErrChecksumMismatch) {
		t.Errorf("task error = %v, want ErrChecksumMismatch", task.Err)
	}
	if task.Attempts != 2 {
		t.Errorf("attempts = %d, want 2 (mismatch is transient until exhaustion)", task.Attempts)
	}

	var pf *PartialFailureError
	if !errors.As(err, &pf) {
		t.Fatalf("want *PartialFailureError, got %T", err)
	}
	if len(pf.FailedIDs) != 1 || pf.FailedIDs[0] != "g:a:1" {
		t.Errorf("failed ids = %v", pf.FailedIDs)
	}
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Error("aggregate error should unwrap to ErrChecksumMismatch")
	}

	// The final path must never hold silently-wrong bytes.
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("final path must be absent after checksum failure")
	}
}

func TestFetch_SkipValidDestination(t *testing.T) {
	body := []byte("already here")
	dest := filepath.Join(t.TempDir(), "a.jar")
	if err := os.WriteFile(dest, body, 0o644); err != nil {
		t.Fatal(err)
	}

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	col := metrics.NewCollector("fabric", "ins-test")
	m := fastManager(t, Config{Concurrency: 1, Collector: col})

	res, err := m.Fetch(context.Background(), []types.ArtifactDescriptor{{
		ID:   "g:a:1",
		URLs: []string{srv.URL},
		SHA1: sha1hex(body),
		Size: int64(len(body)),
		Path: dest,
	}})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	task := res.Tasks[0]
	if task.Status != StatusVerified || !task.Skipped {
		t.Errorf("want verified skip, got status=%s skipped=%v", task.Status, task.Skipped)
	}
	if task.Attempts != 0 {
		t.Errorf("attempts = %d, want 0", task.Attempts)
	}
	if calls.Load() != 0 {
		t.Errorf("network calls = %d, want 0", calls.Load())
	}
	if got := col.Snapshot().ArtifactsSkipped; got != 1 {
		t.Errorf("skipped counter = %d, want 1", got)
	}
}

func TestFetch_StaleDestinationRedownloaded(t *testing.T) {
	body := []byte("fresh content")
	dest := filepath.Join(t.TempDir(), "a.jar")
	if err := os.WriteFile(dest, []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	m := fastManager(t, Config{Concurrency: 1})
	res, err := m.Fetch(context.Background(), []types.ArtifactDescriptor{{
		ID:   "g:a:1",
		URLs: []string{srv.URL},
		SHA1: sha1hex(body),
		Path: dest,
	}})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Tasks[0].Skipped {
		t.Error("stale destination must not be skipped")
	}
	data, _ := os.ReadFile(dest)
	if string(data) != string(body) {
		t.Errorf("dest = %q, want %q", data, body)
	}
}

func TestFetch_CandidateFailover(t *testing.T) {
	body := []byte("from mirror")

	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "broken", http.StatusInternalServerError)
	}))
	defer dead.Close()
	mirror := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(body)
	}))
	defer mirror.Close()

	m := fastManager(t, Config{Concurrency: 1, MaxAttempts: 2})
	res, err := m.Fetch(context.Background(), []types.ArtifactDescriptor{{
		ID:   "g:a:1",
		URLs: []string{dead.URL, mirror.URL},
		SHA1: sha1hex(body),
		Path: filepath.Join(t.TempDir(), "a.jar"),
	}})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	task := res.Tasks[0]
	if task.Status != StatusVerified {
		t.Fatalf("status = %s, want verified (err %v)", task.Status, task.Err)
	}
	// Primary exhausted its retry budget before the mirror was tried.
	if task.Attempts != 3 {
		t.Errorf("attempts = %d, want 3 (2 on primary + 1 on mirror)", task.Attempts)
	}
}

func TestFetch_NotFoundSkipsRetries(t *testing.T) {
	body := []byte("from mirror")

	var primaryCalls atomic.Int64
	gone := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		primaryCalls.Add(1)
		http.NotFound(w, r)
	}))
	defer gone.Close()
	mirror := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(body)
	}))
	defer mirror.Close()

	m := fastManager(t, Config{Concurrency: 1, MaxAttempts: 3})
	res, err := m.Fetch(context.Background(), []types.ArtifactDescriptor{{
		ID:   "g:a:1",
		URLs: []string{gone.URL, mirror.URL},
		SHA1: sha1hex(body),
		Path: filepath.Join(t.TempDir(), "a.jar"),
	}})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if primaryCalls.Load() != 1 {
		t.Errorf("404 candidate called %d times, want 1", primaryCalls.Load())
	}
	if res.Tasks[0].Status != StatusVerified {
		t.Errorf("status = %s, want verified", res.Tasks[0].Status)
	}
}

func TestFetch_AggregateFailure(t *testing.T) {
	good := []byte("ok")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/bad") {
			http.Error(w, "nope", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write(good)
	}))
	defer srv.Close()

	dir := t.TempDir()
	m := fastManager(t, Config{Concurrency: 2, MaxAttempts: 2})
	res, err := m.Fetch(context.Background(), []types.ArtifactDescriptor{
		{ID: "good:a:1", URLs: []string{srv.URL + "/good"}, SHA1: sha1hex(good), Path: filepath.Join(dir, "good.jar")},
		{ID: "bad:b:1", URLs: []string{srv.URL + "/bad"}, Path: filepath.Join(dir, "bad.jar")},
	})
	if err == nil {
		t.Fatal("want aggregate failure")
	}

	// A sibling failure never cancels other tasks.
	if len(res.Verified()) != 1 {
		t.Errorf("verified = %d, want 1", len(res.Verified()))
	}
	var pf *PartialFailureError
	if !errors.As(err, &pf) {
		t.Fatalf("want *PartialFailureError, got %T", err)
	}
	if len(pf.FailedIDs) != 1 || pf.FailedIDs[0] != "bad:b:1" {
		t.Errorf("failed ids = %v", pf.FailedIDs)
	}
	if _, err := os.Stat(filepath.Join(dir, "good.jar")); err != nil {
		t.Error("verified sibling should be on disk")
	}
}

func TestFetch_DedupeByDestination(t *testing.T) {
	body := []byte("shared")
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "a.jar")
	m := fastManager(t, Config{Concurrency: 4})
	res, err := m.Fetch(context.Background(), []types.ArtifactDescriptor{
		{ID: "g:a:1", URLs: []string{srv.URL}, SHA1: sha1hex(body), Path: dest},
		{ID: "g:a:1-dup", URLs: []string{srv.URL}, SHA1: sha1hex(body), Path: dest},
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(res.Tasks) != 1 {
		t.Fatalf("tasks = %d, want 1 after dedup", len(res.Tasks))
	}
	if calls.Load() != 1 {
		t.Errorf("network calls = %d, want 1", calls.Load())
	}
}

func TestFetch_RangeResume(t *testing.T) {
	full := []byte("0123456789abcdef")
	var sawRange atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rng := r.Header.Get("Range")
		if rng == "" {
			_, _ = w.Write(full)
			return
		}
		sawRange.Store(true)
		var offset int64
		if _, err := fmt.Sscanf(rng, "bytes=%d-", &offset); err != nil || offset >= int64(len(full)) {
			http.Error(w, "bad range", http.StatusRequestedRangeNotSatisfiable)
			return
		}
		w.Header().Set("Content-Range",
			"bytes "+strconv.FormatInt(offset, 10)+"-"+strconv.Itoa(len(full)-1)+"/"+strconv.Itoa(len(full)))
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(full[offset:])
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "a.jar")
	// Simulate a crash that left half the payload in the temp file.
	if err := os.WriteFile(dest+".part", full[:8], 0o644); err != nil {
		t.Fatal(err)
	}

	m := fastManager(t, Config{Concurrency: 1})
	res, err := m.Fetch(context.Background(), []types.ArtifactDescriptor{{
		ID:   "g:a:1",
		URLs: []string{srv.URL},
		SHA1: sha1hex(full),
		Size: int64(len(full)),
		Path: dest,
	}})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Tasks[0].Status != StatusVerified {
		t.Fatalf("status = %s (err %v)", res.Tasks[0].Status, res.Tasks[0].Err)
	}
	if !sawRange.Load() {
		t.Error("expected a Range request for the surviving partial file")
	}
	data, _ := os.ReadFile(dest)
	if string(data) != string(full) {
		t.Errorf("dest = %q, want %q", data, full)
	}
}

func TestTask_ClaimPartialAdoptsAndReleases(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "a.jar")
	if err := os.WriteFile(dest+".part", []byte("half"), 0o644); err != nil {
		t.Fatal(err)
	}

	a := &Task{Desc: types.ArtifactDescriptor{Path: dest}}
	b := &Task{Desc: types.ArtifactDescriptor{Path: dest}}

	pa := a.claimPartial()
	pb := b.claimPartial()
	if pa == pb {
		t.Fatalf("tasks share a temp path: %s", pa)
	}
	data, err := os.ReadFile(pa)
	if err != nil || string(data) != "half" {
		t.Errorf("first claimant should adopt the leftover partial, got %q (err %v)", data, err)
	}
	if _, err := os.Stat(pb); !os.IsNotExist(err) {
		t.Error("second claimant must start from scratch")
	}
	if _, err := os.Stat(dest + ".part"); !os.IsNotExist(err) {
		t.Error("well-known partial should be claimed away")
	}

	a.releasePartial()
	data, err = os.ReadFile(dest + ".part")
	if err != nil || string(data) != "half" {
		t.Errorf("release should restore the well-known partial, got %q (err %v)", data, err)
	}
}

func TestFetch_ConcurrentManagersSameArtifact(t *testing.T) {
	body := []byte("shared library payload")
	var inflight sync.WaitGroup
	inflight.Add(2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// Hold both transfers open until they overlap.
		inflight.Done()
		inflight.Wait()
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "libs", "a.jar")
	desc := types.ArtifactDescriptor{
		ID:   "g:a:1",
		URLs: []string{srv.URL + "/a.jar"},
		SHA1: sha1hex(body),
		Size: int64(len(body)),
		Path: dest,
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m := fastManager(t, Config{Concurrency: 1})
			res, err := m.Fetch(context.Background(), []types.ArtifactDescriptor{desc})
			if err == nil {
				err = res.Err()
			}
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("fetch %d: %v", i, err)
		}
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read dest: %v", err)
	}
	if string(data) != string(body) {
		t.Errorf("dest = %q, want %q", data, body)
	}
	if leftovers, _ := filepath.Glob(dest + ".part*"); len(leftovers) != 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
}

func TestFetch_Cancellation(t *testing.T) {
	release := make(chan struct{})
	var once sync.Once
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = w.Write([]byte("late"))
	}))
	defer srv.Close()
	defer once.Do(func() { close(release) })

	ctx, cancel := context.WithCancel(context.Background())
	dir := t.TempDir()

	descs := make([]types.ArtifactDescriptor, 4)
	for i := range descs {
		descs[i] = types.ArtifactDescriptor{
			ID:   fmt.Sprintf("a-%d", i),
			URLs: []string{srv.URL},
			Path: filepath.Join(dir, fmt.Sprintf("%d.jar", i)),
		}
	}

	m := fastManager(t, Config{Concurrency: 1, MaxAttempts: 1})

	done := make(chan *Result, 1)
	go func() {
		res, _ := m.Fetch(ctx, descs)
		done <- res
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	once.Do(func() { close(release) })

	res := <-done
	if len(res.Failed()) == 0 {
		t.Fatal("cancellation should fail queued tasks")
	}
	for _, task := range res.Failed() {
		if !errors.Is(task.Err, context.Canceled) {
			t.Errorf("task %s: err = %v, want context.Canceled", task.Desc.ID, task.Err)
		}
	}
}

func TestBackoffDelay_Capped(t *testing.T) {
	base := 100 * time.Millisecond
	max := 400 * time.Millisecond
	for attempt := 1; attempt <= 10; attempt++ {
		d := backoffDelay(base, max, attempt)
		if d < 0 || d > max {
			t.Errorf("attempt %d: delay %v outside [0, %v]", attempt, d, max)
		}
	}
	// First attempt never exceeds the base.
	if d := backoffDelay(base, max, 1); d > base {
		t.Errorf("attempt 1 delay %v exceeds base %v", d, base)
	}
}
