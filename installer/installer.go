// Package installer implements the four loader installation protocols:
// forge, fabric, quilt and optifine.
//
// All variants share one contract: given the resolved manifest and the
// already-downloaded base artifact set, produce a VersionProfile. An
// installer never persists the profile; the orchestrator does, after
// verifying every referenced library. Artifacts a protocol discovers
// mid-install (forge's installer-internal libraries) are resubmitted to
// the download manager, never fetched directly.
package installer

import (
	"context"
	"fmt"

	"github.com/craftfall/anvil/download"
	"github.com/craftfall/anvil/log"
	"github.com/craftfall/anvil/manifest"
	"github.com/craftfall/anvil/metrics"
	"github.com/craftfall/anvil/types"
)

// Deps are the collaborators an installer works against.
type Deps struct {
	// Dir is the destination game directory.
	Dir types.GameDir
	// Downloads is the single download path for mid-install artifacts.
	Downloads *download.Manager
	// Logger receives protocol diagnostics. Nil means silent.
	Logger *log.Logger
	// Progress receives step_complete checkpoints. Nil disables.
	Progress types.ProgressFunc
	// Collector receives processor step counters. Nil disables.
	Collector *metrics.Collector
	// JavaPath is the executable used for external transforms (forge
	// processor steps, the optifine installer helper). Defaults to
	// "java" on PATH.
	JavaPath string
}

func (d *Deps) logger() *log.Logger {
	if d.Logger == nil {
		return log.Nop()
	}
	return d.Logger
}

func (d *Deps) java() string {
	if d.JavaPath == "" {
		return "java"
	}
	return d.JavaPath
}

// Installer drives one loader installation protocol.
type Installer interface {
	// Install consumes the resolved manifest and produces the version
	// profile. The base artifact set named by the manifest must
	// already be on disk.
	Install(ctx context.Context, m *manifest.LoaderManifest) (*types.VersionProfile, error)
}

// New returns the installer for a loader kind. The set of loaders is
// closed; an unknown kind is an error, not a plugin lookup.
func New(kind types.LoaderKind, deps Deps) (Installer, error) {
	switch kind {
	case types.LoaderFabric:
		return &fabricInstaller{deps: deps}, nil
	case types.LoaderQuilt:
		return &quiltInstaller{deps: deps}, nil
	case types.LoaderForge:
		return &forgeInstaller{deps: deps}, nil
	case types.LoaderOptifine:
		return &optifineInstaller{deps: deps}, nil
	default:
		return nil, fmt.Errorf("unknown loader kind %q", kind)
	}
}
