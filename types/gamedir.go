package types

import (
	"fmt"
	"path/filepath"
)

// GameDir resolves paths inside a game destination root.
// All methods return paths relative to the root the launcher owns,
// matching the persisted state layout:
//
//	<root>/versions/<id>/<id>.json
//	<root>/versions/<id>/<id>.jar
//	<root>/libraries/<maven-style path>
//	<root>/assets/indexes/<id>.json
//	<root>/assets/objects/<h2>/<hash>
type GameDir struct {
	Root string
}

// NewGameDir creates a GameDir rooted at root.
func NewGameDir(root string) GameDir {
	return GameDir{Root: root}
}

// VersionsDir returns the versions directory.
func (g GameDir) VersionsDir() string {
	return filepath.Join(g.Root, "versions")
}

// VersionDir returns the directory of one version profile.
func (g GameDir) VersionDir(id string) string {
	return filepath.Join(g.Root, "versions", id)
}

// VersionJSON returns the profile json path of a version.
func (g GameDir) VersionJSON(id string) string {
	return filepath.Join(g.VersionDir(id), id+".json")
}

// VersionJAR returns the client jar path of a version.
func (g GameDir) VersionJAR(id string) string {
	return filepath.Join(g.VersionDir(id), id+".jar")
}

// LibrariesDir returns the shared libraries directory.
func (g GameDir) LibrariesDir() string {
	return filepath.Join(g.Root, "libraries")
}

// Library returns the on-disk path of a maven-style library path.
func (g GameDir) Library(mavenPath string) string {
	return filepath.Join(g.Root, "libraries", filepath.FromSlash(mavenPath))
}

// AssetIndex returns the asset index json path.
func (g GameDir) AssetIndex(id string) string {
	return filepath.Join(g.Root, "assets", "indexes", id+".json")
}

// AssetObject returns the content-addressed asset object path.
func (g GameDir) AssetObject(hash string) string {
	if len(hash) < 2 {
		return filepath.Join(g.Root, "assets", "objects", hash)
	}
	return filepath.Join(g.Root, "assets", "objects", hash[:2], hash)
}

func (g GameDir) String() string {
	return fmt.Sprintf("GameDir(%s)", g.Root)
}
