package installer

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/craftfall/anvil/manifest"
	"github.com/craftfall/anvil/types"
)

// optifineInstaller drives the optifine protocol: the downloaded patch
// artifact is applied against an existing vanilla installation by an
// external helper jar, which writes the merged version under
// versions/<id>/. The helper's output profile is read back so the
// orchestrator can verify and persist it like any other.
type optifineInstaller struct {
	deps Deps
}

const optifineHelperMain = "net.stevexmh.OptifineInstaller"

func (in *optifineInstaller) Install(ctx context.Context, m *manifest.LoaderManifest) (*types.VersionProfile, error) {
	om := m.Optifine
	if om == nil {
		return nil, fmt.Errorf("optifine installer: manifest is not an optifine manifest")
	}

	dir := in.deps.Dir

	// The patch transforms the vanilla client jar, so the vanilla
	// version must be installed first.
	vanillaJar := dir.VersionJAR(om.GameVersion)
	if _, err := os.Stat(vanillaJar); err != nil {
		return nil, fmt.Errorf("optifine installer: vanilla %s not installed: %w", om.GameVersion, err)
	}

	patch := dir.Library(om.PatchLibraryPath())
	helper := dir.Library(om.HelperLibraryPath())
	profileID := om.ProfileID()

	classpath := strings.Join([]string{helper, patch}, string(os.PathListSeparator))
	args := []string{"-cp", classpath, optifineHelperMain, dir.Root, profileID}
	if err := in.deps.runTransform(ctx, "optifine-installer", args); err != nil {
		return nil, err
	}

	// The helper writes versions/<id>/<id>.json itself; read it back
	// as the protocol's result.
	profile, err := readProfileJSON(dir.VersionJSON(profileID))
	if err != nil {
		return nil, fmt.Errorf("optifine installer produced no readable profile: %w", err)
	}
	if profile.InheritsFrom == "" {
		profile.InheritsFrom = om.GameVersion
	}

	in.deps.logger().Info("optifine install complete", map[string]any{"profile": profile.ID})
	return profile, nil
}
