package manifest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/craftfall/anvil/types"
)

// FabricManifest is the parsed fabric loader metadata for one
// (game version, loader version) pair, from the fabric meta service.
type FabricManifest struct {
	// GameVersion is the game version this loader targets.
	GameVersion string `json:"-" msgpack:"game_version"`
	// Loader is the fabric-loader artifact.
	Loader FabricArtifactVersion `json:"loader" msgpack:"loader"`
	// Intermediary is the intermediary mappings artifact.
	Intermediary FabricArtifactVersion `json:"intermediary" msgpack:"intermediary"`
	// LauncherMeta carries the library list and main class.
	LauncherMeta FabricLauncherMeta `json:"launcherMeta" msgpack:"launcher_meta"`
	// MavenBase is the repository the loader libraries resolve
	// against, recorded at resolution time.
	MavenBase string `json:"-" msgpack:"maven_base"`
}

// FabricArtifactVersion is one versioned fabric artifact.
type FabricArtifactVersion struct {
	Maven   string `json:"maven" msgpack:"maven"`
	Version string `json:"version" msgpack:"version"`
	Stable  bool   `json:"stable" msgpack:"stable"`
}

// FabricLauncherMeta is the launcher section of fabric loader metadata.
type FabricLauncherMeta struct {
	Version   int             `json:"version" msgpack:"version"`
	Libraries FabricLibraries `json:"libraries" msgpack:"libraries"`
	MainClass FabricMainClass `json:"mainClass" msgpack:"main_class"`
}

// FabricLibraries holds the per-side library lists.
type FabricLibraries struct {
	Client []FabricLibrary `json:"client" msgpack:"client"`
	Common []FabricLibrary `json:"common" msgpack:"common"`
	Server []FabricLibrary `json:"server" msgpack:"server"`
}

// FabricLibrary is one library reference in fabric metadata:
// a maven coordinate plus the repository it resolves against.
type FabricLibrary struct {
	Name string `json:"name" msgpack:"name"`
	URL  string `json:"url" msgpack:"url"`
	SHA1 string `json:"sha1" msgpack:"sha1"`
	Size int64  `json:"size" msgpack:"size"`
}

// FabricMainClass is the mainClass field of launcher metadata, which
// upstream serves either as a plain string or as a {client, server}
// object depending on metadata version.
type FabricMainClass struct {
	Client string `msgpack:"client"`
	Server string `msgpack:"server"`
}

// UnmarshalJSON accepts both the string and object encodings.
func (m *FabricMainClass) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		m.Client = s
		m.Server = s
		return nil
	}
	var obj struct {
		Client string `json:"client"`
		Server string `json:"server"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("mainClass: want string or object: %w", err)
	}
	m.Client = obj.Client
	m.Server = obj.Server
	return nil
}

// FabricLoaderVersions lists the fabric loader versions available for
// a game version, newest first as served by the meta service.
func (r *Resolver) FabricLoaderVersions(ctx context.Context, gameVersion string) ([]FabricArtifactVersion, error) {
	url := fmt.Sprintf("%s/v2/versions/loader/%s", r.endpoints.FabricMeta, gameVersion)

	var list []struct {
		Loader FabricArtifactVersion `json:"loader"`
	}
	if err := r.getJSON(ctx, "fabric loader list", url, &list); err != nil {
		return nil, err
	}
	out := make([]FabricArtifactVersion, 0, len(list))
	for _, e := range list {
		out = append(out, e.Loader)
	}
	return out, nil
}

// resolveFabric fetches the fabric loader metadata for the request.
func (r *Resolver) resolveFabric(ctx context.Context, gameVersion, loaderVersion string) (*FabricManifest, error) {
	url := fmt.Sprintf("%s/v2/versions/loader/%s/%s", r.endpoints.FabricMeta, gameVersion, loaderVersion)

	var m FabricManifest
	if err := r.getJSON(ctx, "fabric loader meta", url, &m); err != nil {
		return nil, err
	}
	if m.Loader.Maven == "" || m.Intermediary.Maven == "" {
		return nil, parseErr("fabric loader meta", url, fmt.Errorf("missing loader or intermediary maven coordinate"))
	}
	m.GameVersion = gameVersion
	m.MavenBase = r.endpoints.FabricMaven
	return &m, nil
}

// ProfileID is the version profile id a fabric install produces,
// e.g. "1.20.1-fabric0.15.0".
func (m *FabricManifest) ProfileID() string {
	return fmt.Sprintf("%s-fabric%s", m.GameVersion, m.Loader.Version)
}

// descriptors resolves loader, intermediary and launcher-meta libraries
// into artifact descriptors. Client side only.
func (m *FabricManifest) descriptors(dir types.GameDir) ([]types.ArtifactDescriptor, error) {
	libs := m.ProfileLibraries()

	descs := make([]types.ArtifactDescriptor, 0, len(libs))
	for _, lib := range libs {
		coord, err := types.ParseMaven(lib.Name)
		if err != nil {
			return nil, fmt.Errorf("fabric library: %w", err)
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

// ProfileLibraries returns the ordered library list of the profile:
// loader, intermediary, then common and client launcher-meta libraries.
func (m *FabricManifest) ProfileLibraries() []FabricLibrary {
	libs := []FabricLibrary{
		{Name: m.Loader.Maven, URL: m.MavenBase},
		{Name: m.Intermediary.Maven, URL: m.MavenBase},
	}
	libs = append(libs, m.LauncherMeta.Libraries.Common...)
	libs = append(libs, m.LauncherMeta.Libraries.Client...)
	return libs
}
