package installer

import (
	"context"
	"fmt"

	"github.com/craftfall/anvil/manifest"
	"github.com/craftfall/anvil/types"
)

// quiltInstaller assembles a quilt profile. Quilt's meta service serves
// a complete profile document, so installation carries it over rather
// than reassembling it. A sibling protocol to fabric, kept separate so
// the two can evolve independently.
type quiltInstaller struct {
	deps Deps
}

func (in *quiltInstaller) Install(_ context.Context, m *manifest.LoaderManifest) (*types.VersionProfile, error) {
	q := m.Quilt
	if q == nil {
		return nil, fmt.Errorf("quilt installer: manifest is not a quilt manifest")
	}

	inherits := q.Profile.InheritsFrom
	if inherits == "" {
		inherits = q.GameVersion
	}

	profile := &types.VersionProfile{
		ID:           q.ProfileID(),
		InheritsFrom: inherits,
		MainClass:    q.Profile.MainClass,
		ReleaseTime:  q.Profile.ReleaseTime,
		Time:         q.Profile.Time,
		Type:         q.Profile.Type,
		Libraries:    make([]types.Library, 0, len(q.Profile.Libraries)),
	}
	for _, lib := range q.Profile.Libraries {
		profile.Libraries = append(profile.Libraries, types.Library{
			Name: lib.Name,
			URL:  lib.URL,
		})
	}

	in.deps.logger().Info("quilt profile assembled", map[string]any{
		"profile":   profile.ID,
		"libraries": len(profile.Libraries),
	})
	in.deps.Progress.Emit(types.ProgressEvent{Kind: types.ProgressStep, Step: "assemble_profile"})
	return profile, nil
}
