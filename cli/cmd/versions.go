package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/craftfall/anvil/cli/render"
	"github.com/craftfall/anvil/manifest"
)

// listWarningThreshold is the number of rows above which we warn about
// using --limit.
const listWarningThreshold = 100

// isStderrTTY returns true if stderr is a TTY.
func isStderrTTY() bool {
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// VersionsCommand returns the versions command with one subcommand per
// upstream version listing.
func VersionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "versions",
		Usage: "List available versions (game, fabric, quilt, forge, optifine)",
		Subcommands: []*cli.Command{
			versionsGameCommand(),
			versionsLoaderCommand("fabric", "List fabric loader versions for a game version"),
			versionsLoaderCommand("quilt", "List quilt loader versions for a game version"),
			versionsLoaderCommand("forge", "List forge builds for a game version"),
			versionsLoaderCommand("optifine", "List optifine builds for a game version"),
		},
	}
}

// limitFlag caps list output.
var limitFlag = &cli.IntFlag{
	Name:  "limit",
	Usage: "Maximum number of rows to return (0 = no limit)",
	Value: 0,
}

func versionsGameCommand() *cli.Command {
	return &cli.Command{
		Name:  "game",
		Usage: "List game versions",
		Flags: append(ReadOnlyFlags(), ConfigFlag, limitFlag,
			&cli.BoolFlag{
				Name:  "releases-only",
				Usage: "Only list release versions (no snapshots)",
			},
		),
		Action: versionsGameAction,
	}
}

// GameVersionRow is one row of `versions game` output.
type GameVersionRow struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	ReleaseTime string `json:"release_time"`
}

func versionsGameAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	res := buildResolver(cfg, cfg.CacheDir)
	vm, err := res.GameVersions(c.Context)
	if err != nil {
		return fmt.Errorf("list game versions: %w", err)
	}

	rows := gameVersionRows(vm, c.Bool("releases-only"), c.Int("limit"))
	warnLargeList(len(rows), c.Int("limit"))
	return r.Render(rows)
}

// gameVersionRows flattens the version manifest into thin rows,
// optionally filtering to releases and capping at limit.
func gameVersionRows(vm *manifest.VersionManifest, releasesOnly bool, limit int) []GameVersionRow {
	rows := make([]GameVersionRow, 0, len(vm.Versions))
	for _, v := range vm.Versions {
		if releasesOnly && v.Type != "release" {
			continue
		}
		rows = append(rows, GameVersionRow{ID: v.ID, Type: v.Type, ReleaseTime: v.ReleaseTime})
		if limit > 0 && len(rows) >= limit {
			break
		}
	}
	return rows
}

// LoaderVersionRow is one row of a loader version listing.
type LoaderVersionRow struct {
	Version string `json:"version"`
	Stable  bool   `json:"stable,omitempty"`
}

func versionsLoaderCommand(loader, usage string) *cli.Command {
	return &cli.Command{
		Name:  loader,
		Usage: usage,
		Flags: append(ReadOnlyFlags(), ConfigFlag, limitFlag,
			&cli.StringFlag{
				Name:     "game-version",
				Usage:    "Game version to list loader versions for",
				Required: true,
			},
		),
		Action: func(c *cli.Context) error {
			return versionsLoaderAction(c, loader)
		},
	}
}

func versionsLoaderAction(c *cli.Context, loader string) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	res := buildResolver(cfg, cfg.CacheDir)
	rows, err := loaderVersionRows(c.Context, res, loader, c.String("game-version"))
	if err != nil {
		return fmt.Errorf("list %s versions: %w", loader, err)
	}

	if limit := c.Int("limit"); limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	warnLargeList(len(rows), c.Int("limit"))
	return r.Render(rows)
}

func loaderVersionRows(ctx context.Context, res *manifest.Resolver, loader, gameVersion string) ([]LoaderVersionRow, error) {
	switch loader {
	case "fabric":
		list, err := res.FabricLoaderVersions(ctx, gameVersion)
		if err != nil {
			return nil, err
		}
		rows := make([]LoaderVersionRow, 0, len(list))
		for _, v := range list {
			rows = append(rows, LoaderVersionRow{Version: v.Version, Stable: v.Stable})
		}
		return rows, nil

	case "quilt":
		list, err := res.QuiltLoaderVersions(ctx, gameVersion)
		if err != nil {
			return nil, err
		}
		rows := make([]LoaderVersionRow, 0, len(list))
		for _, v := range list {
			rows = append(rows, LoaderVersionRow{Version: v.Version})
		}
		return rows, nil

	case "forge":
		list, err := res.ForgeVersions(ctx, gameVersion)
		if err != nil {
			return nil, err
		}
		rows := make([]LoaderVersionRow, 0, len(list))
		for _, v := range list {
			rows = append(rows, LoaderVersionRow{Version: v.Version})
		}
		return rows, nil

	case "optifine":
		list, err := res.OptifineVersions(ctx, gameVersion)
		if err != nil {
			return nil, err
		}
		rows := make([]LoaderVersionRow, 0, len(list))
		for _, v := range list {
			rows = append(rows, LoaderVersionRow{Version: v.Type + "_" + v.Patch})
		}
		return rows, nil

	default:
		return nil, fmt.Errorf("unknown loader %q", loader)
	}
}

// warnLargeList nudges interactive users toward --limit when output is
// large. TTY only to avoid noise in pipelines.
func warnLargeList(n, limit int) {
	if n > listWarningThreshold && limit == 0 && isStderrTTY() {
		fmt.Fprintf(os.Stderr, "Warning: returning %d results. Consider using --limit to reduce output.\n\n", n)
	}
}
