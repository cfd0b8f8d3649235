package types

import "fmt"

// LoaderKind identifies one of the supported mod loader protocols.
// The set is closed: installers dispatch on it exhaustively.
type LoaderKind string

// Supported loader kinds.
const (
	LoaderForge    LoaderKind = "forge"
	LoaderFabric   LoaderKind = "fabric"
	LoaderQuilt    LoaderKind = "quilt"
	LoaderOptifine LoaderKind = "optifine"
)

// ParseLoaderKind parses a loader kind string, returning an error for
// anything outside the closed set.
func ParseLoaderKind(s string) (LoaderKind, error) {
	switch LoaderKind(s) {
	case LoaderForge, LoaderFabric, LoaderQuilt, LoaderOptifine:
		return LoaderKind(s), nil
	default:
		return "", fmt.Errorf("unknown loader kind %q (must be forge, fabric, quilt, or optifine)", s)
	}
}

// InstallMeta is the identity of a single installation request.
// All log entries and published events carry these fields.
type InstallMeta struct {
	// InstallID is the unique id assigned to this request.
	InstallID string
	// GameVersion is the requested game version, e.g. "1.20.1".
	GameVersion string
	// Loader is the requested loader kind.
	Loader LoaderKind
	// LoaderVersion is the requested loader version, e.g. "0.15.0".
	LoaderVersion string
}

// Validate checks install metadata per the install contract.
func (m *InstallMeta) Validate() error {
	if m == nil {
		return fmt.Errorf("install metadata is nil")
	}
	if m.InstallID == "" {
		return fmt.Errorf("install_id is required")
	}
	if m.GameVersion == "" {
		return fmt.Errorf("game_version is required")
	}
	if _, err := ParseLoaderKind(string(m.Loader)); err != nil {
		return err
	}
	if m.LoaderVersion == "" {
		return fmt.Errorf("loader_version is required")
	}
	return nil
}
