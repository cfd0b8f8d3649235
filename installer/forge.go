package installer

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/craftfall/anvil/iox"
	"github.com/craftfall/anvil/manifest"
	"github.com/craftfall/anvil/types"
)

// forgeInstaller drives the forge protocol: open the downloaded
// installer jar, resolve its internal library list through the download
// manager, extract embedded artifacts, run the declared post-processor
// steps, and assemble the profile from the embedded version document.
//
// Two generations of installer jar exist. Modern jars (game 1.13+)
// carry install_profile.json plus a separate version.json and a
// processor pipeline; legacy jars embed the version document in
// install_profile.json and need only the universal jar extracted.
type forgeInstaller struct {
	deps Deps
}

// forgeInstallProfile is install_profile.json inside the installer jar.
type forgeInstallProfile struct {
	Spec       int                       `json:"spec"`
	Profile    string                    `json:"profile"`
	Version    string                    `json:"version"`
	Minecraft  string                    `json:"minecraft"`
	JSON       string                    `json:"json"`
	Data       map[string]forgeDataValue `json:"data"`
	Processors []forgeProcessor          `json:"processors"`
	Libraries  []types.Library           `json:"libraries"`

	// Legacy-generation fields.
	Install     *forgeLegacyInstall `json:"install"`
	VersionInfo json.RawMessage     `json:"versionInfo"`
}

// forgeDataValue is one processor shared variable, per side.
type forgeDataValue struct {
	Client string `json:"client"`
	Server string `json:"server"`
}

// forgeProcessor is one declared post-processor step.
type forgeProcessor struct {
	// Jar is the maven coordinate of the executable jar.
	Jar string `json:"jar"`
	// Classpath lists additional coordinates on the step classpath.
	Classpath []string `json:"classpath"`
	// Args are the step arguments, with {VAR} and [coordinate] forms.
	Args []string `json:"args"`
	// Outputs maps output tokens to expected digest tokens.
	Outputs map[string]string `json:"outputs"`
	// Sides restricts the step; empty means both sides.
	Sides []string `json:"sides"`
}

// forgeLegacyInstall is the install section of a legacy profile.
type forgeLegacyInstall struct {
	// Path is the maven coordinate of the universal jar.
	Path string `json:"path"`
	// FilePath is the universal jar entry name inside the installer.
	FilePath string `json:"filePath"`
}

func (p *forgeProcessor) clientSide() bool {
	if len(p.Sides) == 0 {
		return true
	}
	for _, s := range p.Sides {
		if s == "client" {
			return true
		}
	}
	return false
}

func (in *forgeInstaller) Install(ctx context.Context, m *manifest.LoaderManifest) (*types.VersionProfile, error) {
	fm := m.Forge
	if fm == nil {
		return nil, fmt.Errorf("forge installer: manifest is not a forge manifest")
	}

	jarPath := in.deps.Dir.Library(fm.InstallerPath())
	zr, err := zip.OpenReader(jarPath)
	if err != nil {
		return nil, fmt.Errorf("forge installer jar: %w", err)
	}
	defer iox.DiscardClose(zr)

	rawProfile, found, err := readZipEntry(&zr.Reader, "install_profile.json")
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("forge installer jar: no install_profile.json")
	}
	var prof forgeInstallProfile
	if err := json.Unmarshal(rawProfile, &prof); err != nil {
		return nil, fmt.Errorf("forge install_profile.json: %w", err)
	}

	rawVersion, hasVersion, err := readZipEntry(&zr.Reader, "version.json")
	if err != nil {
		return nil, err
	}
	if !hasVersion {
		return in.installLegacy(ctx, fm, &zr.Reader, &prof)
	}
	return in.installModern(ctx, fm, &zr.Reader, &prof, rawVersion, jarPath)
}

func (in *forgeInstaller) installModern(ctx context.Context, fm *manifest.ForgeManifest, zr *zip.Reader, prof *forgeInstallProfile, rawVersion []byte, jarPath string) (*types.VersionProfile, error) {
	doc, err := parseVersionDoc(rawVersion)
	if err != nil {
		return nil, fmt.Errorf("forge version.json: %w", err)
	}

	dir := in.deps.Dir

	// Embedded maven/ entries become libraries directly; descriptors
	// resolved out of the metadata are resubmitted to the download
	// manager (the installer is never a second download path).
	if err := extractZipPrefix(zr, "maven/", func(rel string) string {
		return dir.Library(rel)
	}); err != nil {
		return nil, err
	}

	// data/ entries back the slash-form processor variables.
	scratch, err := os.MkdirTemp("", "forge-data-*")
	if err != nil {
		return nil, fmt.Errorf("forge installer: %w", err)
	}
	defer func() { _ = os.RemoveAll(scratch) }()
	if err := extractZipPrefix(zr, "data/", func(rel string) string {
		return filepath.Join(scratch, filepath.FromSlash(rel))
	}); err != nil {
		return nil, err
	}

	profileDescs, err := libraryDescriptors(dir, prof.Libraries)
	if err != nil {
		return nil, err
	}
	versionDescs, err := libraryDescriptors(dir, doc.Libraries)
	if err != nil {
		return nil, err
	}
	if _, err := in.deps.Downloads.Fetch(ctx, append(profileDescs, versionDescs...)); err != nil {
		return nil, fmt.Errorf("forge libraries: %w", err)
	}

	vars, err := in.dataVariables(fm, prof, scratch, jarPath)
	if err != nil {
		return nil, err
	}

	for _, proc := range prof.Processors {
		if !proc.clientSide() {
			continue
		}
		if err := in.runProcessor(ctx, &proc, vars); err != nil {
			return nil, err
		}
	}

	in.deps.logger().Info("forge install complete", map[string]any{
		"profile":    doc.ID,
		"processors": len(prof.Processors),
	})
	return doc.profile(), nil
}

// installLegacy handles pre-1.13 installer jars: the version document
// is embedded in the profile and the only artifact is the universal jar
// carried inside the installer itself.
func (in *forgeInstaller) installLegacy(ctx context.Context, fm *manifest.ForgeManifest, zr *zip.Reader, prof *forgeInstallProfile) (*types.VersionProfile, error) {
	if prof.Install == nil || len(prof.VersionInfo) == 0 {
		return nil, fmt.Errorf("forge installer jar: neither modern nor legacy layout")
	}

	doc, err := parseVersionDoc(prof.VersionInfo)
	if err != nil {
		return nil, fmt.Errorf("forge versionInfo: %w", err)
	}

	coord, err := types.ParseMaven(prof.Install.Path)
	if err != nil {
		return nil, fmt.Errorf("forge universal jar coordinate: %w", err)
	}
	dest := in.deps.Dir.Library(coord.Path())
	if err := extractZipEntry(zr, prof.Install.FilePath, dest); err != nil {
		return nil, fmt.Errorf("forge universal jar: %w", err)
	}

	descs, err := libraryDescriptors(in.deps.Dir, doc.Libraries)
	if err != nil {
		return nil, err
	}
	if _, err := in.deps.Downloads.Fetch(ctx, descs); err != nil {
		return nil, fmt.Errorf("forge libraries: %w", err)
	}

	in.deps.logger().Info("legacy forge install complete", map[string]any{"profile": doc.ID})
	return doc.profile(), nil
}

// dataVariables resolves the processor shared variables for the client
// side, plus the builtin variables every forge installer provides.
func (in *forgeInstaller) dataVariables(fm *manifest.ForgeManifest, prof *forgeInstallProfile, scratch, jarPath string) (map[string]string, error) {
	dir := in.deps.Dir
	vars := map[string]string{
		"SIDE":              "client",
		"MINECRAFT_JAR":     dir.VersionJAR(fm.GameVersion),
		"MINECRAFT_VERSION": fm.GameVersion,
		"ROOT":              dir.Root,
		"LIBRARY_DIR":       dir.LibrariesDir(),
		"INSTALLER":         jarPath,
	}
	for name, dv := range prof.Data {
		resolved, err := in.resolveDataValue(dv.Client, scratch)
		if err != nil {
			return nil, fmt.Errorf("forge data %s: %w", name, err)
		}
		vars[name] = resolved
	}
	return vars, nil
}

// resolveDataValue resolves one data value form:
//
//	[group:artifact:version]  library path
//	'literal'                 literal string
//	/data/...                 entry extracted from the installer jar
func (in *forgeInstaller) resolveDataValue(v, scratch string) (string, error) {
	switch {
	case v == "":
		return "", nil
	case strings.HasPrefix(v, "[") && strings.HasSuffix(v, "]"):
		coord, err := types.ParseMaven(v[1 : len(v)-1])
		if err != nil {
			return "", err
		}
		return in.deps.Dir.Library(coord.Path()), nil
	case strings.HasPrefix(v, "'") && strings.HasSuffix(v, "'"):
		return v[1 : len(v)-1], nil
	case strings.HasPrefix(v, "/"):
		// Jar-internal path; data/ entries were unpacked to scratch.
		return filepath.Join(scratch, filepath.FromSlash(strings.TrimPrefix(v, "/data/"))), nil
	default:
		return v, nil
	}
}

var varToken = regexp.MustCompile(`\{([A-Z_]+)\}`)

// resolveToken expands {VAR} and [coordinate] forms in one processor
// argument or output reference.
func (in *forgeInstaller) resolveToken(tok string, vars map[string]string) (string, error) {
	if strings.HasPrefix(tok, "[") && strings.HasSuffix(tok, "]") {
		coord, err := types.ParseMaven(tok[1 : len(tok)-1])
		if err != nil {
			return "", err
		}
		return in.deps.Dir.Library(coord.Path()), nil
	}

	var missing error
	out := varToken.ReplaceAllStringFunc(tok, func(match string) string {
		name := match[1 : len(match)-1]
		v, ok := vars[name]
		if !ok {
			missing = fmt.Errorf("unknown variable %s", match)
			return match
		}
		return v
	})
	if missing != nil {
		return "", missing
	}
	return out, nil
}

// runProcessor executes one post-processor step and verifies its
// declared outputs.
func (in *forgeInstaller) runProcessor(ctx context.Context, proc *forgeProcessor, vars map[string]string) error {
	dir := in.deps.Dir

	jarCoord, err := types.ParseMaven(proc.Jar)
	if err != nil {
		return fmt.Errorf("processor jar %q: %w", proc.Jar, err)
	}
	procJar := dir.Library(jarCoord.Path())

	mainClass, err := readJarMainClass(procJar)
	if err != nil {
		return &ProcessorStepError{Step: proc.Jar, ExitCode: -1, Err: err}
	}

	classpath := make([]string, 0, len(proc.Classpath)+1)
	classpath = append(classpath, procJar)
	for _, c := range proc.Classpath {
		coord, err := types.ParseMaven(c)
		if err != nil {
			return fmt.Errorf("processor classpath %q: %w", c, err)
		}
		classpath = append(classpath, dir.Library(coord.Path()))
	}

	args := make([]string, 0, len(proc.Args)+3)
	args = append(args, "-cp", strings.Join(classpath, string(os.PathListSeparator)), mainClass)
	for _, a := range proc.Args {
		resolved, err := in.resolveToken(a, vars)
		if err != nil {
			return fmt.Errorf("processor %s arg %q: %w", proc.Jar, a, err)
		}
		args = append(args, resolved)
	}

	if err := in.deps.runTransform(ctx, proc.Jar, args); err != nil {
		return err
	}
	return in.verifyOutputs(proc, vars)
}

var hexDigest = regexp.MustCompile(`^[0-9a-fA-F]{40}$`)

// verifyOutputs checks the declared step outputs whose expected value
// resolves to a SHA-1 digest.
func (in *forgeInstaller) verifyOutputs(proc *forgeProcessor, vars map[string]string) error {
	for pathTok, wantTok := range proc.Outputs {
		path, err := in.resolveToken(pathTok, vars)
		if err != nil {
			return fmt.Errorf("processor %s output %q: %w", proc.Jar, pathTok, err)
		}
		want, err := in.resolveToken(wantTok, vars)
		if err != nil {
			return fmt.Errorf("processor %s output %q: %w", proc.Jar, wantTok, err)
		}
		want = strings.Trim(want, "'")
		if !hexDigest.MatchString(want) {
			continue
		}
		got, err := iox.FileSHA1(path)
		if err != nil {
			return &ProcessorStepError{Step: proc.Jar, ExitCode: -1, Err: fmt.Errorf("output %s: %w", path, err)}
		}
		if !strings.EqualFold(got, want) {
			return &ProcessorStepError{
				Step:     proc.Jar,
				ExitCode: -1,
				Err:      fmt.Errorf("output %s: digest %s, want %s", path, got, want),
			}
		}
	}
	return nil
}
