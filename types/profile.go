package types

import "fmt"

// VersionProfile is the durable output of an installation: a persisted
// description of a runnable game configuration. Field names round-trip
// through the launcher's version json expectations.
//
// A profile is written once, atomically, after every referenced library
// file has been verified on disk. It is never mutated afterwards except
// by a full re-install that replaces it wholesale.
type VersionProfile struct {
	// ID is the profile id, identical to its folder under versions/.
	ID string `json:"id"`
	// InheritsFrom is the parent profile id, usually the vanilla
	// game version a loader installs on top of.
	InheritsFrom string `json:"inheritsFrom,omitempty"`
	// MainClass is the fully qualified launch entry point.
	MainClass string `json:"mainClass"`
	// Arguments are the jvm and game argument lists.
	Arguments ProfileArguments `json:"arguments"`
	// Libraries is the ordered library list of this profile.
	Libraries []Library `json:"libraries"`
	// AssetIndexID is the asset index id, e.g. "5". Empty when
	// inherited from the parent profile.
	AssetIndexID string `json:"assets,omitempty"`
	// ReleaseTime and Time are upstream metadata timestamps,
	// carried through for launcher compatibility.
	ReleaseTime string `json:"releaseTime,omitempty"`
	Time        string `json:"time,omitempty"`
	// Type is the release channel, e.g. "release".
	Type string `json:"type,omitempty"`
}

// ProfileArguments holds launch argument lists.
type ProfileArguments struct {
	Game []string `json:"game"`
	JVM  []string `json:"jvm"`
}

// Library is one library reference inside a profile.
type Library struct {
	// Name is the maven coordinate of the library.
	Name string `json:"name"`
	// URL is the maven repository base URL, set by loader metadata
	// that references libraries by coordinate + repository.
	URL string `json:"url,omitempty"`
	// Downloads carries a fully resolved artifact when upstream
	// metadata provides one.
	Downloads *LibraryDownloads `json:"downloads,omitempty"`
}

// LibraryDownloads is the resolved download section of a library.
type LibraryDownloads struct {
	Artifact *LibraryArtifact `json:"artifact,omitempty"`
}

// LibraryArtifact is a fully resolved library artifact.
type LibraryArtifact struct {
	Path string `json:"path"`
	SHA1 string `json:"sha1"`
	Size int64  `json:"size"`
	URL  string `json:"url"`
}

// Validate checks the profile invariants before persistence.
func (p *VersionProfile) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("version profile missing id")
	}
	if p.MainClass == "" {
		return fmt.Errorf("version profile %s: missing main class", p.ID)
	}
	for i, lib := range p.Libraries {
		if lib.Name == "" && lib.Downloads == nil {
			return fmt.Errorf("version profile %s: library %d has neither name nor downloads", p.ID, i)
		}
	}
	return nil
}
