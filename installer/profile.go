package installer

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/craftfall/anvil/types"
)

// argumentList decodes a version-document argument array. Upstream
// documents mix plain strings with rule-bearing objects; only the
// unconditional strings matter to profile assembly, the rest are kept
// by the parent profile the loader inherits from.
type argumentList []string

func (a *argumentList) UnmarshalJSON(data []byte) error {
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	*a = out
	return nil
}

// versionDoc is the version json a loader installer emits or embeds:
// forge's version.json, optifine's generated profile. Field-compatible
// with the vanilla version document.
type versionDoc struct {
	ID           string `json:"id"`
	InheritsFrom string `json:"inheritsFrom"`
	MainClass    string `json:"mainClass"`
	Arguments    struct {
		Game argumentList `json:"game"`
		JVM  argumentList `json:"jvm"`
	} `json:"arguments"`
	// MinecraftArguments is the pre-1.13 flat argument string.
	MinecraftArguments string          `json:"minecraftArguments"`
	Libraries          []types.Library `json:"libraries"`
	AssetIndexID       string          `json:"assets"`
	ReleaseTime        string          `json:"releaseTime"`
	Time               string          `json:"time"`
	Type               string          `json:"type"`
}

// profile converts the document into a VersionProfile.
func (d *versionDoc) profile() *types.VersionProfile {
	game := []string(d.Arguments.Game)
	if len(game) == 0 && d.MinecraftArguments != "" {
		game = strings.Fields(d.MinecraftArguments)
	}
	return &types.VersionProfile{
		ID:           d.ID,
		InheritsFrom: d.InheritsFrom,
		MainClass:    d.MainClass,
		Arguments: types.ProfileArguments{
			Game: game,
			JVM:  []string(d.Arguments.JVM),
		},
		Libraries:    d.Libraries,
		AssetIndexID: d.AssetIndexID,
		ReleaseTime:  d.ReleaseTime,
		Time:         d.Time,
		Type:         d.Type,
	}
}

// parseVersionDoc decodes a version document from raw json.
func parseVersionDoc(raw []byte) (*versionDoc, error) {
	var doc versionDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("version document: %w", err)
	}
	if doc.ID == "" || doc.MainClass == "" {
		return nil, fmt.Errorf("version document: missing id or mainClass")
	}
	return &doc, nil
}

// readProfileJSON loads a persisted version profile from disk.
func readProfileJSON(path string) (*types.VersionProfile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := parseVersionDoc(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc.profile(), nil
}

// libraryDescriptors converts profile library references with resolved
// download sections into artifact descriptors. Libraries without a URL
// are skipped: they were placed on disk by the protocol itself.
func libraryDescriptors(dir types.GameDir, libs []types.Library) ([]types.ArtifactDescriptor, error) {
	descs := make([]types.ArtifactDescriptor, 0, len(libs))
	for _, lib := range libs {
		art := libraryArtifact(&lib)
		if art != nil {
			if art.URL == "" {
				continue
			}
			descs = append(descs, types.ArtifactDescriptor{
				ID:   lib.Name,
				URLs: []string{art.URL},
				SHA1: art.SHA1,
				Size: art.Size,
				Path: dir.Library(art.Path),
			})
			continue
		}

		// Coordinate-plus-repository form.
		if lib.Name == "" {
			continue
		}
		coord, err := types.ParseMaven(lib.Name)
		if err != nil {
			return nil, fmt.Errorf("library %q: %w", lib.Name, err)
		}
		if lib.URL == "" {
			continue
		}
		mavenPath := coord.Path()
		descs = append(descs, types.ArtifactDescriptor{
			ID:   lib.Name,
			URLs: []string{strings.TrimSuffix(lib.URL, "/") + "/" + mavenPath},
			Path: dir.Library(mavenPath),
		})
	}
	return descs, nil
}

func libraryArtifact(lib *types.Library) *types.LibraryArtifact {
	if lib.Downloads == nil {
		return nil
	}
	return lib.Downloads.Artifact
}
