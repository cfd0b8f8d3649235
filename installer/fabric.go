package installer

import (
	"context"
	"fmt"

	"github.com/craftfall/anvil/manifest"
	"github.com/craftfall/anvil/types"
)

// fabricInstaller assembles a fabric profile. Fabric has no processor
// steps and no mid-install downloads: the base artifact set already
// holds every library, so installation is pure profile assembly.
type fabricInstaller struct {
	deps Deps
}

func (in *fabricInstaller) Install(_ context.Context, m *manifest.LoaderManifest) (*types.VersionProfile, error) {
	fab := m.Fabric
	if fab == nil {
		return nil, fmt.Errorf("fabric installer: manifest is not a fabric manifest")
	}

	mainClass := fab.LauncherMeta.MainClass.Client
	if mainClass == "" {
		return nil, fmt.Errorf("fabric installer: metadata declares no client main class")
	}

	libs := fab.ProfileLibraries()
	profile := &types.VersionProfile{
		ID:           fab.ProfileID(),
		InheritsFrom: fab.GameVersion,
		MainClass:    mainClass,
		Libraries:    make([]types.Library, 0, len(libs)),
	}
	for _, lib := range libs {
		profile.Libraries = append(profile.Libraries, types.Library{
			Name: lib.Name,
			URL:  lib.URL,
		})
	}

	in.deps.logger().Info("fabric profile assembled", map[string]any{
		"profile":   profile.ID,
		"libraries": len(profile.Libraries),
	})
	in.deps.Progress.Emit(types.ProgressEvent{Kind: types.ProgressStep, Step: "assemble_profile"})
	return profile, nil
}
