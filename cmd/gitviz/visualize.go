package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	apperrors "github.com/gitviz/gitviz/internal/errors"
	"github.com/gitviz/gitviz/internal/git"
	"github.com/gitviz/gitviz/internal/identity"
	"github.com/gitviz/gitviz/internal/pipeline"
)

var visualizeCmd = &cobra.Command{
	Use:   "visualize [dir...]",
	Short: "Scan repositories and render a commit history video",
	Long: `Discovers git repositories under the given directories (the current
directory when none are given), scans their history for the configured
date range, unifies committer identities, and renders the combined
timeline into a video.

Examples:
  # Visualize everything under ~/src since 2020
  gitviz visualize ~/src -s 2020-01-01

  # One repository, custom pacing and output
  gitviz visualize ~/src/myproject --seconds-per-day 2 -o myproject.mp4`,
	RunE: runVisualize,
}

func init() {
	visualizeCmd.Flags().StringP("start-date", "s", "", "first day of history to include (YYYY-MM-DD)")
	visualizeCmd.Flags().StringP("end-date", "e", "", "last day of history to include (YYYY-MM-DD, default today)")
	visualizeCmd.Flags().StringP("output", "o", "", "output video path")
	visualizeCmd.Flags().Float64("seconds-per-day", 0, "playback seconds per calendar day")
	visualizeCmd.Flags().Float64("time-scale", 0, "extra playback speed multiplier")
	visualizeCmd.Flags().StringSlice("highlight", nil, "canonical names to highlight")
	visualizeCmd.Flags().Int("scan-workers", 0, "parallel repository scans (0 = auto)")
	visualizeCmd.Flags().Bool("no-scan-cache", false, "bypass the scan cache")
	visualizeCmd.Flags().String("background", "", "background colour (hex, without #)")
	visualizeCmd.Flags().Int("framerate", 0, "output framerate")
	visualizeCmd.Flags().Float64("user-scale", 0, "relative size of drawn users")
	visualizeCmd.Flags().Int("font-size", 0, "font size for the date display")
	visualizeCmd.Flags().Bool("no-repo-prefix", false, "do not prefix file paths with the repository label")
	visualizeCmd.Flags().Bool("keep-log", false, "keep the serialized timeline log and print its path")
}

func runVisualize(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	applyVisualizeFlags(cmd)

	if err := cfg.Validated(); err != nil {
		return err
	}
	for _, warning := range cfg.Validate().Warnings {
		logger.Warn(warning)
	}
	start, end, err := cfg.DateRange()
	if err != nil {
		return err
	}

	if err := pipeline.RequireTools(); err != nil {
		return err
	}

	roots := args
	if len(roots) == 0 {
		roots = []string{"."}
	}
	repos, err := git.Discover(roots)
	if err != nil {
		return err
	}
	if len(repos) == 0 {
		return apperrors.New(apperrors.KindRepositoryAccess,
			fmt.Sprintf("no git repositories found under %v", roots))
	}
	logger.WithField("count", len(repos)).Debug("Discovered repositories")

	store, err := identity.Open(identity.Options{
		Path:        cfg.Store.Path,
		PostgresDSN: cfg.Store.PostgresDSN,
	}, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	state, err := store.Load(ctx)
	if err != nil {
		return err
	}
	resolver := identity.NewResolverFromState(state)

	var cache *git.Cache
	noCache, _ := cmd.Flags().GetBool("no-scan-cache")
	if cfg.Scan.CacheEnabled && !noCache {
		cache, err = git.OpenCache(cfg.Scan.CachePath)
		if err != nil {
			logger.WithError(err).Warn("Scan cache unavailable, scanning without it")
			cache = nil
		} else {
			defer cache.Close()
		}
	}

	keepLog, _ := cmd.Flags().GetBool("keep-log")
	noPrefix, _ := cmd.Flags().GetBool("no-repo-prefix")

	renderer := pipeline.NewGourceRenderer(cfg.Render, cfg.Store.AvatarDir, cfg.Highlight)
	encoder := pipeline.NewFFmpegEncoder(cfg.Encode)

	orch := pipeline.NewOrchestrator(repos, resolver, renderer, encoder, logger, pipeline.Options{
		Start:         start,
		End:           end,
		SecondsPerDay: cfg.SecondsPerDay,
		TimeScale:     cfg.TimeScale,
		Output:        cfg.Output,
		Workers:       cfg.Scan.Workers,
		Cache:         cache,
		PrefixPaths:   cfg.Scan.PrefixPaths && !noPrefix,
		KeepLog:       keepLog,
	})

	result, err := orch.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("✅ Visualization complete: %s\n", result.Output)
	fmt.Printf("   %d repositories, %d events, %d people, %s\n",
		result.Repositories, result.Events, result.People, result.Duration.Round(time.Second))
	if result.LogPath != "" {
		fmt.Printf("   Timeline log: %s\n", result.LogPath)
	}
	return nil
}

// applyVisualizeFlags overlays flags the user actually set onto the
// loaded configuration, leaving file and env values alone otherwise.
func applyVisualizeFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("start-date") {
		cfg.StartDate, _ = flags.GetString("start-date")
	}
	if flags.Changed("end-date") {
		cfg.EndDate, _ = flags.GetString("end-date")
	}
	if flags.Changed("output") {
		cfg.Output, _ = flags.GetString("output")
	}
	if flags.Changed("seconds-per-day") {
		cfg.SecondsPerDay, _ = flags.GetFloat64("seconds-per-day")
	}
	if flags.Changed("time-scale") {
		cfg.TimeScale, _ = flags.GetFloat64("time-scale")
	}
	if flags.Changed("highlight") {
		cfg.Highlight, _ = flags.GetStringSlice("highlight")
	}
	if flags.Changed("scan-workers") {
		cfg.Scan.Workers, _ = flags.GetInt("scan-workers")
	}
	if flags.Changed("background") {
		cfg.Render.Background, _ = flags.GetString("background")
	}
	if flags.Changed("framerate") {
		framerate, _ := flags.GetInt("framerate")
		cfg.Render.Framerate = framerate
		cfg.Encode.Framerate = framerate
	}
	if flags.Changed("user-scale") {
		cfg.Render.UserScale, _ = flags.GetFloat64("user-scale")
	}
	if flags.Changed("font-size") {
		cfg.Render.FontSize, _ = flags.GetInt("font-size")
	}
}
