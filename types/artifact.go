//nolint:revive // types is a common Go package naming convention
package types

import (
	"errors"
	"fmt"
)

// ArtifactDescriptor describes one downloadable unit: a library jar,
// an installer jar, an asset object, or a patch file.
//
// Descriptors are immutable once resolved. Two descriptors with the same
// Path are duplicates; DedupeDescriptors collapses them before download.
type ArtifactDescriptor struct {
	// ID identifies the artifact in results, logs and errors.
	// Usually the maven coordinate or asset hash.
	ID string
	// URLs are the candidate download URLs, tried in order.
	// The next candidate is tried only after the current one is
	// exhausted by retry.
	URLs []string
	// SHA1 is the expected hex-encoded SHA-1 digest. Empty means
	// no checksum verification.
	SHA1 string
	// Size is the expected size in bytes. Zero means unknown.
	Size int64
	// Path is the final destination path on disk.
	Path string
}

// Validate checks that the descriptor carries enough to be downloaded.
func (d *ArtifactDescriptor) Validate() error {
	if d.ID == "" {
		return errors.New("artifact descriptor missing id")
	}
	if len(d.URLs) == 0 {
		return fmt.Errorf("artifact %s: no candidate URLs", d.ID)
	}
	for _, u := range d.URLs {
		if u == "" {
			return fmt.Errorf("artifact %s: empty candidate URL", d.ID)
		}
	}
	if d.Path == "" {
		return fmt.Errorf("artifact %s: no destination path", d.ID)
	}
	return nil
}

// DedupeDescriptors removes descriptors that share a destination path,
// keeping the first occurrence. Submission order is preserved.
func DedupeDescriptors(descs []ArtifactDescriptor) []ArtifactDescriptor {
	seen := make(map[string]struct{}, len(descs))
	out := make([]ArtifactDescriptor, 0, len(descs))
	for _, d := range descs {
		if _, dup := seen[d.Path]; dup {
			continue
		}
		seen[d.Path] = struct{}{}
		out = append(out, d)
	}
	return out
}
