package manifest

import (
	"fmt"

	"github.com/craftfall/anvil/types"
)

// LoaderManifest is the parsed remote metadata for one installation
// request. It is a closed tagged variant: exactly one of the protocol
// fields is set, matching Kind. The set of loaders is fixed and small,
// so a sum type with exhaustive dispatch is used instead of an open
// plugin interface.
//
// A LoaderManifest is produced once per request and read-only after.
type LoaderManifest struct {
	Kind types.LoaderKind `msgpack:"kind"`

	Fabric   *FabricManifest   `msgpack:"fabric,omitempty"`
	Quilt    *QuiltManifest    `msgpack:"quilt,omitempty"`
	Forge    *ForgeManifest    `msgpack:"forge,omitempty"`
	Optifine *OptifineManifest `msgpack:"optifine,omitempty"`
}

// Validate checks that exactly the variant named by Kind is present.
func (m *LoaderManifest) Validate() error {
	var set int
	for _, ok := range []bool{m.Fabric != nil, m.Quilt != nil, m.Forge != nil, m.Optifine != nil} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("loader manifest: want exactly one variant, got %d", set)
	}

	switch m.Kind {
	case types.LoaderFabric:
		if m.Fabric == nil {
			return fmt.Errorf("loader manifest: kind fabric without fabric variant")
		}
	case types.LoaderQuilt:
		if m.Quilt == nil {
			return fmt.Errorf("loader manifest: kind quilt without quilt variant")
		}
	case types.LoaderForge:
		if m.Forge == nil {
			return fmt.Errorf("loader manifest: kind forge without forge variant")
		}
	case types.LoaderOptifine:
		if m.Optifine == nil {
			return fmt.Errorf("loader manifest: kind optifine without optifine variant")
		}
	default:
		return fmt.Errorf("loader manifest: unknown kind %q", m.Kind)
	}
	return nil
}

// ProfileID returns the version profile id this manifest installs,
// e.g. "1.20.1-forge-47.0.1". Empty for an invalid manifest.
func (m *LoaderManifest) ProfileID() string {
	switch m.Kind {
	case types.LoaderFabric:
		if m.Fabric != nil {
			return m.Fabric.ProfileID()
		}
	case types.LoaderQuilt:
		if m.Quilt != nil {
			return m.Quilt.ProfileID()
		}
	case types.LoaderForge:
		if m.Forge != nil {
			return m.Forge.ProfileID()
		}
	case types.LoaderOptifine:
		if m.Optifine != nil {
			return m.Optifine.ProfileID()
		}
	}
	return ""
}

// GameVersion returns the game version the manifest targets. Empty for
// an invalid manifest.
func (m *LoaderManifest) GameVersion() string {
	switch m.Kind {
	case types.LoaderFabric:
		if m.Fabric != nil {
			return m.Fabric.GameVersion
		}
	case types.LoaderQuilt:
		if m.Quilt != nil {
			return m.Quilt.GameVersion
		}
	case types.LoaderForge:
		if m.Forge != nil {
			return m.Forge.GameVersion
		}
	case types.LoaderOptifine:
		if m.Optifine != nil {
			return m.Optifine.GameVersion
		}
	}
	return ""
}

// Descriptors derives the loader's base artifact descriptors from the
// manifest. The derivation is pure: same manifest and game dir always
// yield the same descriptor set, which is what makes manifest caching
// sound.
func (m *LoaderManifest) Descriptors(dir types.GameDir) ([]types.ArtifactDescriptor, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	switch m.Kind {
	case types.LoaderFabric:
		return m.Fabric.descriptors(dir)
	case types.LoaderQuilt:
		return m.Quilt.descriptors(dir)
	case types.LoaderForge:
		return m.Forge.descriptors(dir)
	case types.LoaderOptifine:
		return m.Optifine.descriptors(dir)
	}
	return nil, fmt.Errorf("loader manifest: unknown kind %q", m.Kind)
}
