package manifest

import (
	"context"
	"fmt"
	"strings"

	"github.com/craftfall/anvil/types"
)

// OptifineManifest is the resolved optifine installation request:
// a single patch artifact plus the external installer helper that
// applies it against an existing vanilla installation.
type OptifineManifest struct {
	GameVersion string `msgpack:"game_version"`
	// Type is the optifine edition, e.g. "HD_U".
	Type string `msgpack:"type"`
	// Patch is the optifine patch level, e.g. "I6".
	Patch string `msgpack:"patch"`
	// PatchURL is the patch artifact download URL.
	PatchURL string `msgpack:"patch_url"`
	// HelperURL is the installer helper jar URL.
	HelperURL string `msgpack:"helper_url"`
}

// OptifineVersionEntry is one row of the optifine version list service.
type OptifineVersionEntry struct {
	MCVersion string `json:"mcversion"`
	Type      string `json:"type"`
	Patch     string `json:"patch"`
	Filename  string `json:"filename"`
	Forge     string `json:"forge"`
}

// OptifineVersions lists the optifine builds available for a game version.
func (r *Resolver) OptifineVersions(ctx context.Context, gameVersion string) ([]OptifineVersionEntry, error) {
	url := fmt.Sprintf("%s/%s", r.endpoints.OptifineList, gameVersion)
	var list []OptifineVersionEntry
	if err := r.getJSON(ctx, "optifine version list", url, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// resolveOptifine checks the requested build exists and produces the
// manifest. The loader version is "<type>_<patch>", e.g. "HD_U_I6":
// the patch is the segment after the last underscore.
func (r *Resolver) resolveOptifine(ctx context.Context, gameVersion, loaderVersion string) (*OptifineManifest, error) {
	sep := strings.LastIndexByte(loaderVersion, '_')
	if sep <= 0 || sep == len(loaderVersion)-1 {
		return nil, parseErr("optifine version", loaderVersion,
			fmt.Errorf("want <type>_<patch>, e.g. HD_U_I6"))
	}
	oType, oPatch := loaderVersion[:sep], loaderVersion[sep+1:]

	list, err := r.OptifineVersions(ctx, gameVersion)
	if err != nil {
		return nil, err
	}

	found := false
	for _, entry := range list {
		if entry.Type == oType && entry.Patch == oPatch {
			found = true
			break
		}
	}
	if !found {
		url := fmt.Sprintf("%s/%s", r.endpoints.OptifineList, gameVersion)
		return nil, notFoundErr(fmt.Sprintf("optifine %s_%s for %s", oType, oPatch, gameVersion), url)
	}

	return &OptifineManifest{
		GameVersion: gameVersion,
		Type:        oType,
		Patch:       oPatch,
		PatchURL:    fmt.Sprintf("%s/%s/%s/%s", r.endpoints.OptifineList, gameVersion, oType, oPatch),
		HelperURL:   r.endpoints.OptifineHelper,
	}, nil
}

// ProfileID is the version profile id an optifine install produces,
// e.g. "1.20.1-Optifine_HD_U_I6".
func (m *OptifineManifest) ProfileID() string {
	return fmt.Sprintf("%s-Optifine_%s_%s", m.GameVersion, m.Type, m.Patch)
}

// PatchLibraryPath is the maven-style path the patch artifact is
// cached at under libraries/.
func (m *OptifineManifest) PatchLibraryPath() string {
	v := fmt.Sprintf("%s-%s-%s", m.GameVersion, m.Type, m.Patch)
	return fmt.Sprintf("net/optifine/%s/Optifine-%s.jar", v, v)
}

// HelperLibraryPath is the maven-style path of the installer helper.
func (m *OptifineManifest) HelperLibraryPath() string {
	return "net/stevexmh/optifine-installer/0.0.0/optifine-installer.jar"
}

// descriptors returns the patch artifact and the installer helper.
func (m *OptifineManifest) descriptors(dir types.GameDir) ([]types.ArtifactDescriptor, error) {
	return []types.ArtifactDescriptor{
		{
			ID:   fmt.Sprintf("optifine:%s:%s_%s", m.GameVersion, m.Type, m.Patch),
			URLs: []string{m.PatchURL},
			Path: dir.Library(m.PatchLibraryPath()),
		},
		{
			ID:   "net.stevexmh:optifine-installer:0.0.0",
			URLs: []string{m.HelperURL},
			Path: dir.Library(m.HelperLibraryPath()),
		},
	}, nil
}
