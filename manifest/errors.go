// Package manifest resolves remote version and loader metadata into
// loader manifests and artifact descriptors.
//
// This file defines sentinel errors and a classified wrapper for
// metadata fetch failures. Callers use errors.Is/errors.As for typed
// assertions rather than string matching.
package manifest

import (
	"errors"
	"fmt"
)

// Sentinel errors for manifest failure classification.
// Use errors.Is(err, ErrXxx) for typed assertions.
var (
	// ErrManifestNotFound indicates the requested version/loader
	// combination does not exist upstream (404).
	ErrManifestNotFound = errors.New("manifest not found")

	// ErrManifestParse indicates the metadata document is malformed.
	ErrManifestParse = errors.New("manifest parse error")

	// ErrNetwork wraps an underlying transport failure.
	ErrNetwork = errors.New("network error")
)

// Error wraps an underlying error with manifest failure classification.
// It preserves the original error in the chain for errors.As inspection.
type Error struct {
	// Kind is the sentinel error for classification.
	Kind error
	// Op is the operation that failed (e.g. "fabric loader meta").
	Op string
	// URL is the metadata URL involved.
	URL string
	// Err is the underlying error, if any.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v: %v", e.Op, e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Kind)
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target sentinel.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

func notFoundErr(op, url string) error {
	return &Error{Kind: ErrManifestNotFound, Op: op, URL: url}
}

func parseErr(op, url string, err error) error {
	return &Error{Kind: ErrManifestParse, Op: op, URL: url, Err: err}
}

func networkErr(op, url string, err error) error {
	return &Error{Kind: ErrNetwork, Op: op, URL: url, Err: err}
}
