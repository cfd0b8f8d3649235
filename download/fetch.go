package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/craftfall/anvil/iox"
	"github.com/craftfall/anvil/types"
)

// fetchOne drives a single task to a terminal state: skip-if-valid,
// then per-candidate retry with backoff, checksum mismatch counted as
// transient.
func (m *Manager) fetchOne(ctx context.Context, t *Task) {
	if m.destValid(&t.Desc) {
		t.Status = StatusVerified
		t.Skipped = true
		m.collector.IncArtifactSkipped()
		m.logger.Debug("artifact already valid, skipping", map[string]any{"artifact": t.Desc.ID})
		return
	}

	t.Status = StatusInFlight
	defer func() {
		if t.Status != StatusVerified {
			t.releasePartial()
		}
	}()

	var lastErr error
	for _, url := range t.Desc.URLs {
		for attempt := 1; attempt <= m.maxAttempts; attempt++ {
			if err := ctx.Err(); err != nil {
				t.Status = StatusFailed
				t.Err = err
				return
			}

			t.Attempts++
			err := m.attempt(ctx, t, url)
			if err == nil {
				t.Status = StatusVerified
				m.collector.IncArtifactVerified()
				return
			}
			lastErr = err

			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				t.Status = StatusFailed
				t.Err = err
				return
			}
			if isCandidateGone(err) {
				// This candidate will never serve the artifact;
				// move to the next without burning retries.
				m.logger.Debug("candidate gone, trying next", map[string]any{
					"artifact": t.Desc.ID,
					"url":      url,
				})
				break
			}

			if attempt < m.maxAttempts {
				m.collector.IncTransferRetry()
				m.logger.Debug("transfer retry", map[string]any{
					"artifact": t.Desc.ID,
					"attempt":  attempt,
					"error":    err.Error(),
				})
				if err := sleepCtx(ctx, backoffDelay(m.backoffBase, m.backoffMax, attempt)); err != nil {
					t.Status = StatusFailed
					t.Err = err
					return
				}
			}
		}
	}

	t.Status = StatusFailed
	t.Err = lastErr
	m.collector.IncArtifactFailed()
	m.logger.Warn("artifact exhausted all candidates", map[string]any{
		"artifact": t.Desc.ID,
		"attempts": t.Attempts,
		"error":    fmt.Sprint(lastErr),
	})
}

// goneError marks a candidate URL as permanently unable to serve the
// artifact (404/410). Retrying it is pointless; the next candidate is
// tried instead.
type goneError struct {
	url    string
	status int
}

func (e *goneError) Error() string {
	return fmt.Sprintf("%s: status %d", e.url, e.status)
}

func isCandidateGone(err error) bool {
	var ge *goneError
	return errors.As(err, &ge)
}

// attempt performs one transfer attempt against one candidate URL.
// The body streams into a temp file private to this task; a surviving
// partial file is resumed with a Range request when the server honors
// it. The final path is written only by rename, after verification.
func (m *Manager) attempt(ctx context.Context, t *Task, url string) error {
	desc := &t.Desc

	if err := os.MkdirAll(filepath.Dir(desc.Path), 0o755); err != nil {
		return fmt.Errorf("artifact %s: %w", desc.ID, err)
	}
	part := t.claimPartial()

	f, err := os.OpenFile(part, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("artifact %s: %w", desc.ID, err)
	}
	defer iox.DiscardClose(f)

	offset, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("artifact %s: %w", desc.ID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("artifact %s: %w", desc.ID, err)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("artifact %s: %w", desc.ID, err)
	}
	defer iox.DiscardClose(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		// Server ignored the range (or none was sent): restart.
		if err := f.Truncate(0); err != nil {
			return fmt.Errorf("artifact %s: %w", desc.ID, err)
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("artifact %s: %w", desc.ID, err)
		}
	case http.StatusPartialContent:
		// Appending to the existing partial file.
	case http.StatusNotFound, http.StatusGone:
		_, _ = io.Copy(io.Discard, resp.Body)
		return &goneError{url: url, status: resp.StatusCode}
	default:
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("artifact %s: %s: unexpected status %d", desc.ID, url, resp.StatusCode)
	}

	n, err := io.Copy(f, resp.Body)
	m.collector.AddBytesFetched(n)
	if err != nil {
		// Keep the partial file for range resume on the next attempt.
		return fmt.Errorf("artifact %s: %w", desc.ID, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("artifact %s: %w", desc.ID, err)
	}

	if err := m.verify(desc.ID, part, desc.SHA1, desc.Size); err != nil {
		// A corrupt partial is useless for resume: drop it so the
		// retry starts clean.
		_ = os.Remove(part)
		t.part = ""
		return err
	}

	if err := os.Rename(part, desc.Path); err != nil {
		return fmt.Errorf("artifact %s: %w", desc.ID, err)
	}
	t.part = ""
	return nil
}

// verify checks size and digest of a downloaded file when expectations
// are present. A mismatch is a ChecksumError, retried like any
// transient fault.
func (m *Manager) verify(id, path, wantSHA1 string, wantSize int64) error {
	if wantSize > 0 {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("artifact %s: %w", id, err)
		}
		if info.Size() != wantSize {
			return &ChecksumError{
				ID:   id,
				Path: path,
				Want: fmt.Sprintf("size %d", wantSize),
				Got:  fmt.Sprintf("size %d", info.Size()),
			}
		}
	}
	if wantSHA1 != "" {
		got, err := iox.FileSHA1(path)
		if err != nil {
			return fmt.Errorf("artifact %s: %w", id, err)
		}
		if got != wantSHA1 {
			return &ChecksumError{ID: id, Path: path, Want: wantSHA1, Got: got}
		}
	}
	return nil
}

// destValid reports whether the destination already satisfies the
// descriptor, so the task can be skipped without a network call.
func (m *Manager) destValid(desc *types.ArtifactDescriptor) bool {
	info, err := os.Stat(desc.Path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	if desc.Size > 0 && info.Size() != desc.Size {
		return false
	}
	if desc.SHA1 != "" {
		got, err := iox.FileSHA1(desc.Path)
		if err != nil || got != desc.SHA1 {
			return false
		}
	}
	return true
}
