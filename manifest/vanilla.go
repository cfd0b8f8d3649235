package manifest

import (
	"context"
	"fmt"

	"github.com/craftfall/anvil/types"
)

// VersionManifest is the game version index document.
type VersionManifest struct {
	Latest struct {
		Release  string `json:"release"`
		Snapshot string `json:"snapshot"`
	} `json:"latest"`
	Versions []VersionManifestEntry `json:"versions"`
}

// VersionManifestEntry is one version row of the index.
type VersionManifestEntry struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	URL         string `json:"url"`
	SHA1        string `json:"sha1"`
	ReleaseTime string `json:"releaseTime"`
}

// VersionMeta is the full version metadata document of one game version.
type VersionMeta struct {
	ID                 string                 `json:"id"`
	MainClass          string                 `json:"mainClass"`
	Assets             string                 `json:"assets"`
	AssetIndex         *AssetIndexRef         `json:"assetIndex"`
	Downloads          map[string]DownloadRef `json:"downloads"`
	Libraries          []VanillaLibrary       `json:"libraries"`
	Type               string                 `json:"type"`
	ReleaseTime        string                 `json:"releaseTime"`
	Time               string                 `json:"time"`
	MinecraftArguments string                 `json:"minecraftArguments,omitempty"`
}

// AssetIndexRef references the asset index document of a version.
type AssetIndexRef struct {
	ID        string `json:"id"`
	SHA1      string `json:"sha1"`
	Size      int64  `json:"size"`
	TotalSize int64  `json:"totalSize"`
	URL       string `json:"url"`
}

// DownloadRef is one entry of the downloads section (client, server).
type DownloadRef struct {
	SHA1 string `json:"sha1"`
	Size int64  `json:"size"`
	URL  string `json:"url"`
}

// VanillaLibrary is one library of a vanilla version document.
type VanillaLibrary struct {
	Name      string `json:"name"`
	Downloads struct {
		Artifact *types.LibraryArtifact `json:"artifact"`
	} `json:"downloads"`
}

// AssetIndexDoc is the asset index document listing asset objects.
type AssetIndexDoc struct {
	Objects map[string]AssetObject `json:"objects"`
}

// AssetObject is one content-addressed asset.
type AssetObject struct {
	Hash string `json:"hash"`
	Size int64  `json:"size"`
}

// VanillaManifest is the resolved vanilla installation: the parsed
// version metadata plus every descriptor needed for a complete base
// install (client jar, libraries, asset index, asset objects).
type VanillaManifest struct {
	Meta VersionMeta
	// RawJSON is the upstream version document verbatim, persisted
	// as versions/<id>/<id>.json so loaders can inherit from it.
	RawJSON     []byte
	Descriptors []types.ArtifactDescriptor
}

// GameVersions fetches the game version index.
func (r *Resolver) GameVersions(ctx context.Context) (*VersionManifest, error) {
	var m VersionManifest
	if err := r.getJSON(ctx, "version manifest", r.endpoints.VersionManifest, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// ResolveVanilla resolves a game version into its base artifact set.
// Only small metadata documents are fetched here; large artifacts are
// returned as descriptors for the download manager.
func (r *Resolver) ResolveVanilla(ctx context.Context, dir types.GameDir, gameVersion string) (*VanillaManifest, error) {
	index, err := r.GameVersions(ctx)
	if err != nil {
		return nil, err
	}

	var entry *VersionManifestEntry
	for i := range index.Versions {
		if index.Versions[i].ID == gameVersion {
			entry = &index.Versions[i]
			break
		}
	}
	if entry == nil {
		return nil, notFoundErr(fmt.Sprintf("game version %s", gameVersion), r.endpoints.VersionManifest)
	}

	raw, err := r.getRaw(ctx, "version meta", entry.URL)
	if err != nil {
		return nil, err
	}
	var meta VersionMeta
	if err := decodeJSON(raw, &meta); err != nil {
		return nil, parseErr("version meta", entry.URL, err)
	}
	if meta.ID == "" || meta.MainClass == "" {
		return nil, parseErr("version meta", entry.URL, fmt.Errorf("document missing id or mainClass"))
	}

	descs := make([]types.ArtifactDescriptor, 0, len(meta.Libraries)+2)

	if client, ok := meta.Downloads["client"]; ok {
		descs = append(descs, types.ArtifactDescriptor{
			ID:   meta.ID + ":client",
			URLs: []string{client.URL},
			SHA1: client.SHA1,
			Size: client.Size,
			Path: dir.VersionJAR(meta.ID),
		})
	}

	for _, lib := range meta.Libraries {
		art := lib.Downloads.Artifact
		if art == nil || art.URL == "" {
			continue
		}
		descs = append(descs, types.ArtifactDescriptor{
			ID:   lib.Name,
			URLs: []string{art.URL},
			SHA1: art.SHA1,
			Size: art.Size,
			Path: dir.Library(art.Path),
		})
	}

	if meta.AssetIndex != nil {
		assetDescs, err := r.resolveAssets(ctx, dir, meta.AssetIndex)
		if err != nil {
			return nil, err
		}
		descs = append(descs, assetDescs...)
	}

	return &VanillaManifest{
		Meta:        meta,
		RawJSON:     raw,
		Descriptors: types.DedupeDescriptors(descs),
	}, nil
}

// resolveAssets fetches the asset index and expands it into
// content-addressed object descriptors, plus the index itself.
func (r *Resolver) resolveAssets(ctx context.Context, dir types.GameDir, ref *AssetIndexRef) ([]types.ArtifactDescriptor, error) {
	raw, err := r.getRaw(ctx, "asset index", ref.URL)
	if err != nil {
		return nil, err
	}
	var doc AssetIndexDoc
	if err := decodeJSON(raw, &doc); err != nil {
		return nil, parseErr("asset index", ref.URL, err)
	}

	descs := make([]types.ArtifactDescriptor, 0, len(doc.Objects)+1)
	descs = append(descs, types.ArtifactDescriptor{
		ID:   "assets:index:" + ref.ID,
		URLs: []string{ref.URL},
		SHA1: ref.SHA1,
		Size: ref.Size,
		Path: dir.AssetIndex(ref.ID),
	})
	for name, obj := range doc.Objects {
		if len(obj.Hash) < 2 {
			return nil, parseErr("asset index", ref.URL, fmt.Errorf("asset %s: bad hash %q", name, obj.Hash))
		}
		descs = append(descs, types.ArtifactDescriptor{
			ID:   "assets:" + obj.Hash,
			URLs: []string{fmt.Sprintf("%s/%s/%s", r.endpoints.AssetsBase, obj.Hash[:2], obj.Hash)},
			SHA1: obj.Hash,
			Size: obj.Size,
			Path: dir.AssetObject(obj.Hash),
		})
	}
	return descs, nil
}
