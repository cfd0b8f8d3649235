package manifest

import (
	"context"
	"fmt"

	"github.com/craftfall/anvil/types"
)

// QuiltManifest is the parsed quilt loader metadata for one
// (game version, loader version) pair. Quilt's meta service serves a
// complete launch profile document, so the manifest carries that
// profile rather than reassembling one.
//
// Quilt is a sibling protocol to fabric with its own metadata endpoint
// and library namespace; the types are deliberately separate so the
// two can evolve independently.
type QuiltManifest struct {
	GameVersion   string       `json:"-" msgpack:"game_version"`
	LoaderVersion string       `json:"-" msgpack:"loader_version"`
	Profile       QuiltProfile `json:"-" msgpack:"profile"`
	// MavenBase is the fallback repository for libraries without
	// an explicit url.
	MavenBase string `json:"-" msgpack:"maven_base"`
}

// QuiltProfile is the profile document served by the quilt meta
// /profile/json endpoint.
type QuiltProfile struct {
	ID           string         `json:"id" msgpack:"id"`
	InheritsFrom string         `json:"inheritsFrom" msgpack:"inherits_from"`
	MainClass    string         `json:"mainClass" msgpack:"main_class"`
	Libraries    []QuiltLibrary `json:"libraries" msgpack:"libraries"`
	Type         string         `json:"type" msgpack:"type"`
	ReleaseTime  string         `json:"releaseTime" msgpack:"release_time"`
	Time         string         `json:"time" msgpack:"time"`
}

// QuiltLibrary is one library reference in a quilt profile.
type QuiltLibrary struct {
	Name string `json:"name" msgpack:"name"`
	URL  string `json:"url" msgpack:"url"`
	SHA1 string `json:"sha1" msgpack:"sha1"`
	Size int64  `json:"size" msgpack:"size"`
}

// QuiltLoaderVersion is one row of the quilt loader list.
type QuiltLoaderVersion struct {
	Version string `json:"version"`
	Build   int    `json:"build"`
}

// QuiltLoaderVersions lists the quilt loader versions available for a
// game version.
func (r *Resolver) QuiltLoaderVersions(ctx context.Context, gameVersion string) ([]QuiltLoaderVersion, error) {
	url := fmt.Sprintf("%s/v3/versions/loader/%s", r.endpoints.QuiltMeta, gameVersion)

	var list []struct {
		Loader QuiltLoaderVersion `json:"loader"`
	}
	if err := r.getJSON(ctx, "quilt loader list", url, &list); err != nil {
		return nil, err
	}
	out := make([]QuiltLoaderVersion, 0, len(list))
	for _, e := range list {
		out = append(out, e.Loader)
	}
	return out, nil
}

// resolveQuilt fetches the quilt profile for the request.
func (r *Resolver) resolveQuilt(ctx context.Context, gameVersion, loaderVersion string) (*QuiltManifest, error) {
	url := fmt.Sprintf("%s/v3/versions/loader/%s/%s/profile/json", r.endpoints.QuiltMeta, gameVersion, loaderVersion)

	var p QuiltProfile
	if err := r.getJSON(ctx, "quilt profile", url, &p); err != nil {
		return nil, err
	}
	if p.ID == "" || p.MainClass == "" {
		return nil, parseErr("quilt profile", url, fmt.Errorf("profile missing id or mainClass"))
	}

	return &QuiltManifest{
		GameVersion:   gameVersion,
		LoaderVersion: loaderVersion,
		Profile:       p,
		MavenBase:     r.endpoints.QuiltMaven,
	}, nil
}

// ProfileID is the version profile id a quilt install produces.
// Quilt names its own profile; fall back to the conventional form if
// upstream omitted it.
func (m *QuiltManifest) ProfileID() string {
	if m.Profile.ID != "" {
		return m.Profile.ID
	}
	return fmt.Sprintf("%s-quilt%s", m.GameVersion, m.LoaderVersion)
}

// descriptors resolves the profile libraries into artifact descriptors.
func (m *QuiltManifest) descriptors(dir types.GameDir) ([]types.ArtifactDescriptor, error) {
	descs := make([]types.ArtifactDescriptor, 0, len(m.Profile.Libraries))
	for _, lib := range m.Profile.Libraries {
		coord, err := types.ParseMaven(lib.Name)
		if err != nil {
			return nil, fmt.Errorf("quilt library: %w", err)
		}
		base := lib.URL
		if base == "" {
			base = m.MavenBase
		}
		mavenPath := coord.Path()
		descs = append(descs, types.ArtifactDescriptor{
			ID:   lib.Name,
			URLs: []string{joinURL(base, mavenPath)},
			SHA1: lib.SHA1,
			Size: lib.Size,
			Path: dir.Library(mavenPath),
		})
	}
	return descs, nil
}
