package manifest

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/craftfall/anvil/types"
)

// ForgeManifest is the resolved forge installation request. Forge's
// protocol discovers most of its artifacts mid-install from inside the
// installer jar, so the manifest carries only the installer descriptor;
// the installer resubmits the internal library list to the download
// manager as it unpacks.
type ForgeManifest struct {
	GameVersion   string `msgpack:"game_version"`
	LoaderVersion string `msgpack:"loader_version"`
	// ForgeVersion is the combined "<game>-<loader>" version string
	// used in forge maven coordinates.
	ForgeVersion string `msgpack:"forge_version"`
	// InstallerSHA1 is the expected installer jar digest when the
	// version list provides one.
	InstallerSHA1 string `msgpack:"installer_sha1"`
	// MavenBase is the forge maven repository.
	MavenBase string `msgpack:"maven_base"`
}

// ForgeVersionEntry is one row of the forge version list service.
type ForgeVersionEntry struct {
	Version   string               `json:"version"`
	MCVersion string               `json:"mcversion"`
	Build     int                  `json:"build"`
	Modified  string               `json:"modified"`
	Files     []ForgeInstallerFile `json:"files"`
}

// ForgeInstallerFile describes one distributed file of a forge build.
type ForgeInstallerFile struct {
	Format   string `json:"format"`
	Category string `json:"category"`
	Hash     string `json:"hash"`
}

// ForgeVersions lists the forge builds available for a game version.
func (r *Resolver) ForgeVersions(ctx context.Context, gameVersion string) ([]ForgeVersionEntry, error) {
	url := fmt.Sprintf("%s/minecraft/%s", r.endpoints.ForgeList, gameVersion)
	var list []ForgeVersionEntry
	if err := r.getJSON(ctx, "forge version list", url, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// resolveForge checks the requested build exists and produces the
// manifest with the installer jar reference.
func (r *Resolver) resolveForge(ctx context.Context, gameVersion, loaderVersion string) (*ForgeManifest, error) {
	list, err := r.ForgeVersions(ctx, gameVersion)
	if err != nil {
		return nil, err
	}

	var entry *ForgeVersionEntry
	for i := range list {
		if list[i].Version == loaderVersion {
			entry = &list[i]
			break
		}
	}
	if entry == nil {
		url := fmt.Sprintf("%s/minecraft/%s", r.endpoints.ForgeList, gameVersion)
		return nil, notFoundErr(fmt.Sprintf("forge %s for %s", loaderVersion, gameVersion), url)
	}

	var sha1 string
	for _, f := range entry.Files {
		if f.Category == "installer" && f.Format == "jar" {
			sha1 = f.Hash
			break
		}
	}

	return &ForgeManifest{
		GameVersion:   gameVersion,
		LoaderVersion: loaderVersion,
		ForgeVersion:  forgeVersionString(gameVersion, loaderVersion),
		InstallerSHA1: sha1,
		MavenBase:     r.endpoints.ForgeMaven,
	}, nil
}

// forgeVersionString builds the combined version used in forge maven
// coordinates. Game versions 1.7.x and 1.8.x use the historical
// triple "<game>-<loader>-<game>" form; everything else uses
// "<game>-<loader>".
func forgeVersionString(gameVersion, loaderVersion string) string {
	parts := strings.Split(gameVersion, ".")
	if len(parts) >= 2 {
		if minor, err := strconv.Atoi(parts[1]); err == nil && minor >= 7 && minor <= 8 {
			return fmt.Sprintf("%s-%s-%s", gameVersion, loaderVersion, gameVersion)
		}
	}
	return fmt.Sprintf("%s-%s", gameVersion, loaderVersion)
}

// ProfileID is the version profile id a forge install produces,
// e.g. "1.20.1-forge-47.0.1".
func (m *ForgeManifest) ProfileID() string {
	return fmt.Sprintf("%s-forge-%s", m.GameVersion, m.LoaderVersion)
}

// InstallerPath is the maven-style path of the installer jar.
func (m *ForgeManifest) InstallerPath() string {
	return fmt.Sprintf("net/minecraftforge/forge/%s/forge-%s-installer.jar", m.ForgeVersion, m.ForgeVersion)
}

// descriptors returns the installer jar descriptor. The installer's
// internal library list is resolved mid-protocol, not here.
func (m *ForgeManifest) descriptors(dir types.GameDir) ([]types.ArtifactDescriptor, error) {
	path := m.InstallerPath()
	return []types.ArtifactDescriptor{{
		ID:   fmt.Sprintf("net.minecraftforge:forge:%s:installer", m.ForgeVersion),
		URLs: []string{joinURL(m.MavenBase, path)},
		SHA1: m.InstallerSHA1,
		Path: dir.Library(path),
	}}, nil
}
