package types

import (
	"fmt"
	"strings"
)

// MavenCoordinate is a parsed maven artifact name of the form
// <group>:<artifact>:<version>[:<classifier>][@<extension>].
// Loader metadata references libraries by coordinate; the repository
// path is derived from it.
type MavenCoordinate struct {
	Group      string
	Artifact   string
	Version    string
	Classifier string
	// Extension defaults to "jar" when the coordinate has no @ext suffix.
	Extension string
}

// ParseMaven parses a maven coordinate string.
func ParseMaven(name string) (MavenCoordinate, error) {
	ext := "jar"
	if at := strings.LastIndexByte(name, '@'); at >= 0 {
		ext = name[at+1:]
		name = name[:at]
		if ext == "" {
			return MavenCoordinate{}, fmt.Errorf("maven coordinate %q: empty extension", name)
		}
	}

	parts := strings.Split(name, ":")
	if len(parts) < 3 || len(parts) > 4 {
		return MavenCoordinate{}, fmt.Errorf("maven coordinate %q: want group:artifact:version[:classifier]", name)
	}
	for i, p := range parts[:3] {
		if p == "" {
			return MavenCoordinate{}, fmt.Errorf("maven coordinate %q: empty segment %d", name, i)
		}
	}

	c := MavenCoordinate{
		Group:     parts[0],
		Artifact:  parts[1],
		Version:   parts[2],
		Extension: ext,
	}
	if len(parts) == 4 {
		c.Classifier = parts[3]
	}
	return c, nil
}

// Path returns the repository-relative path of the artifact, e.g.
// "net/fabricmc/fabric-loader/0.15.0/fabric-loader-0.15.0.jar".
func (c MavenCoordinate) Path() string {
	file := c.Artifact + "-" + c.Version
	if c.Classifier != "" {
		file += "-" + c.Classifier
	}
	file += "." + c.Extension
	return strings.ReplaceAll(c.Group, ".", "/") + "/" + c.Artifact + "/" + c.Version + "/" + file
}

// String returns the canonical coordinate form.
func (c MavenCoordinate) String() string {
	s := c.Group + ":" + c.Artifact + ":" + c.Version
	if c.Classifier != "" {
		s += ":" + c.Classifier
	}
	if c.Extension != "jar" {
		s += "@" + c.Extension
	}
	return s
}
