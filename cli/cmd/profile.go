package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/craftfall/anvil/cli/render"
	"github.com/craftfall/anvil/types"
)

// ProfileCommand returns the profile command with subcommands. All
// subcommands are read-only views over the game directory.
func ProfileCommand() *cli.Command {
	return &cli.Command{
		Name:  "profile",
		Usage: "Inspect installed version profiles",
		Subcommands: []*cli.Command{
			profileShowCommand(),
			profileListCommand(),
		},
	}
}

func profileShowCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show one installed version profile",
		ArgsUsage: "<profile-id>",
		Flags: append(ReadOnlyFlags(), ConfigFlag,
			&cli.StringFlag{
				Name:  "root",
				Usage: "Game destination directory",
			},
		),
		Action: profileShowAction,
	}
}

func profileShowAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: profile show <profile-id>", exitUsage)
	}
	id := c.Args().First()

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	dir, err := gameDirFrom(c)
	if err != nil {
		return err
	}

	profile, err := readProfile(dir, id)
	if err != nil {
		return cli.Exit(err.Error(), exitFailed)
	}
	return r.Render(profile)
}

// readProfile loads a persisted version profile from the game directory.
func readProfile(dir types.GameDir, id string) (*types.VersionProfile, error) {
	data, err := os.ReadFile(dir.VersionJSON(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("profile %q not installed under %s", id, dir.VersionsDir())
		}
		return nil, err
	}
	var p types.VersionProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("profile %s: invalid json: %w", id, err)
	}
	return &p, nil
}

func profileListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List installed version profiles",
		Flags: append(ReadOnlyFlags(), ConfigFlag,
			&cli.StringFlag{
				Name:  "root",
				Usage: "Game destination directory",
			},
		),
		Action: profileListAction,
	}
}

// ProfileRow is one row of `profile list` output.
type ProfileRow struct {
	ID           string `json:"id"`
	InheritsFrom string `json:"inherits_from,omitempty"`
	MainClass    string `json:"main_class"`
	Libraries    int    `json:"libraries"`
}

func profileListAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	dir, err := gameDirFrom(c)
	if err != nil {
		return err
	}

	rows, err := listProfiles(dir)
	if err != nil {
		return cli.Exit(err.Error(), exitFailed)
	}
	return r.Render(rows)
}

// listProfiles scans versions/ for persisted profiles. Directories
// without a readable profile json are skipped: they are partial or
// foreign version folders, not installs.
func listProfiles(dir types.GameDir) ([]ProfileRow, error) {
	entries, err := os.ReadDir(dir.VersionsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return []ProfileRow{}, nil
		}
		return nil, err
	}

	rows := make([]ProfileRow, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		p, err := readProfile(dir, e.Name())
		if err != nil {
			continue
		}
		rows = append(rows, ProfileRow{
			ID:           p.ID,
			InheritsFrom: p.InheritsFrom,
			MainClass:    p.MainClass,
			Libraries:    len(p.Libraries),
		})
	}
	return rows, nil
}

// gameDirFrom resolves the game directory from flags or config.
func gameDirFrom(c *cli.Context) (types.GameDir, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return types.GameDir{}, cli.Exit(err.Error(), exitUsage)
	}
	root := resolveString(c, "root", cfg.Root)
	if root == "" {
		return types.GameDir{}, cli.Exit("--root is required (or set root in the config file)", exitUsage)
	}
	return types.NewGameDir(root), nil
}
