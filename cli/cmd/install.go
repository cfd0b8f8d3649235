package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/craftfall/anvil/cli/render"
	"github.com/craftfall/anvil/download"
	"github.com/craftfall/anvil/engine"
	"github.com/craftfall/anvil/types"
)

// Exit codes for `install`.
const (
	exitSuccess   = 0
	exitFailed    = 1
	exitCancelled = 2
	exitUsage     = 3
)

// InstallCommand returns the install command, the only command that
// writes to the game directory.
func InstallCommand() *cli.Command {
	return &cli.Command{
		Name:  "install",
		Usage: "Install a game version with a mod loader",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "game-version",
				Usage:    "Game version to install, e.g. 1.20.1",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "loader",
				Usage:    "Loader kind: forge, fabric, quilt, optifine",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "loader-version",
				Usage:    "Loader version, e.g. 0.15.0 or HD_U_I6",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "root",
				Usage: "Game destination directory",
			},
			&cli.StringFlag{
				Name:  "cache-dir",
				Usage: "Manifest cache directory (empty disables caching)",
			},
			&cli.StringFlag{
				Name:  "java",
				Usage: "Java executable for installer transforms",
			},
			&cli.IntFlag{
				Name:  "concurrency",
				Usage: "Maximum simultaneous downloads",
			},
			&cli.IntFlag{
				Name:  "max-attempts",
				Usage: "Retry budget per download candidate",
			},
			&cli.DurationFlag{
				Name:  "backoff-base",
				Usage: "Base retry backoff, e.g. 500ms",
			},
			&cli.DurationFlag{
				Name:  "backoff-max",
				Usage: "Maximum retry backoff, e.g. 10s",
			},
			&cli.StringFlag{
				Name:  "install-id",
				Usage: "Install ID (assigned when empty)",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress progress output",
			},
			ConfigFlag,
			FormatFlag,
			NoColorFlag,
		},
		Action: installAction,
	}
}

// InstallResponse is the rendered result of an install command.
type InstallResponse struct {
	InstallID         string `json:"install_id"`
	GameVersion       string `json:"game_version"`
	Loader            string `json:"loader"`
	LoaderVersion     string `json:"loader_version"`
	ProfileID         string `json:"profile_id"`
	ProfilePath       string `json:"profile_path"`
	State             string `json:"state"`
	ArtifactsVerified int64  `json:"artifacts_verified"`
	ArtifactsSkipped  int64  `json:"artifacts_skipped"`
	BytesFetched      int64  `json:"bytes_fetched"`
	DurationMs        int64  `json:"duration_ms"`
}

func installAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	loader, err := types.ParseLoaderKind(c.String("loader"))
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	root := resolveString(c, "root", cfg.Root)
	if root == "" {
		return cli.Exit("--root is required (or set root in the config file)", exitUsage)
	}

	adapters, err := buildAdapters(cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	defer func() {
		for _, a := range adapters {
			_ = a.Close()
		}
	}()

	cacheDir := resolveString(c, "cache-dir", cfg.CacheDir)
	quiet := c.Bool("quiet")

	eng, err := engine.New(engine.Config{
		Dir:      types.NewGameDir(root),
		Resolver: buildResolver(cfg, cacheDir),
		Download: download.Config{
			Concurrency: resolveInt(c, "concurrency", cfg.Download.Concurrency),
			MaxAttempts: resolveInt(c, "max-attempts", cfg.Download.MaxAttempts),
			BackoffBase: resolveDuration(c, "backoff-base", cfg.Download.BackoffBase.Duration),
			BackoffMax:  resolveDuration(c, "backoff-max", cfg.Download.BackoffMax.Duration),
		},
		Adapters: adapters,
		JavaPath: resolveString(c, "java", cfg.JavaPath),
		Progress: progressPrinter(quiet),
	})
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		cancel()
	}()

	res, installErr := eng.Install(ctx, engine.Request{
		GameVersion:   c.String("game-version"),
		Loader:        loader,
		LoaderVersion: c.String("loader-version"),
		InstallID:     c.String("install-id"),
	})
	if installErr != nil {
		code := exitFailed
		if errors.Is(installErr, engine.ErrCancelled) {
			code = exitCancelled
		}
		return cli.Exit(fmt.Sprintf("install failed: %v", installErr), code)
	}

	if !quiet {
		r, err := render.NewRenderer(c)
		if err != nil {
			return cli.Exit(err.Error(), exitUsage)
		}
		if err := r.Render(installResponse(res)); err != nil {
			return err
		}
	}
	return cli.Exit("", exitSuccess)
}

func installResponse(res *engine.Result) InstallResponse {
	return InstallResponse{
		InstallID:         res.Meta.InstallID,
		GameVersion:       res.Meta.GameVersion,
		Loader:            string(res.Meta.Loader),
		LoaderVersion:     res.Meta.LoaderVersion,
		ProfileID:         profileIDOf(res),
		ProfilePath:       res.ProfilePath,
		State:             string(res.State),
		ArtifactsVerified: res.Metrics.ArtifactsVerified,
		ArtifactsSkipped:  res.Metrics.ArtifactsSkipped,
		BytesFetched:      res.Metrics.BytesFetched,
		DurationMs:        res.Duration.Milliseconds(),
	}
}

func profileIDOf(res *engine.Result) string {
	if res.Profile != nil {
		return res.Profile.ID
	}
	return ""
}

// progressPrinter writes stage and download checkpoints to stderr so
// stdout stays machine-parseable.
func progressPrinter(quiet bool) types.ProgressFunc {
	if quiet {
		return nil
	}
	start := time.Now()
	return func(ev types.ProgressEvent) {
		switch ev.Kind {
		case types.ProgressStage:
			fmt.Fprintf(os.Stderr, "[%6.1fs] stage: %s\n", time.Since(start).Seconds(), ev.Stage)
		case types.ProgressDownloaded:
			fmt.Fprintf(os.Stderr, "[%6.1fs] downloaded %s (%d/%d)\n",
				time.Since(start).Seconds(), ev.ArtifactID, ev.Completed, ev.Total)
		case types.ProgressStep:
			fmt.Fprintf(os.Stderr, "[%6.1fs] step: %s\n", time.Since(start).Seconds(), ev.Step)
		}
	}
}
