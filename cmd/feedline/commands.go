package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/five82/feedline/internal/app"
)

// globalFlags are shared by every command.
type globalFlags struct {
	configPath string
	prefsPath  string
	timeline   string
	poll       time.Duration
}

func (g *globalFlags) options() app.Options {
	return app.Options{
		ConfigPath: g.configPath,
		PrefsPath:  g.prefsPath,
		Timeline:   g.timeline,
		PollEvery:  g.poll,
	}
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "feedline",
		Short: "Terminal viewer for paginated timelines",
		Long: `feedline shows a timeline from the configured API and keeps it current.

Pages are fetched on demand as you scroll, the first page is cached locally
for an instant start, and failures are reported without losing what is
already on screen.`,
		Version:       fmt.Sprintf("%s (commit: %s)", Version, Commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.Run(cmd.Context(), flags.options())
		},
	}

	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "config file path (default ~/.config/feedline/config.toml)")
	rootCmd.PersistentFlags().StringVar(&flags.prefsPath, "prefs", "", "viewer preferences path (default ~/.config/feedline/prefs.toml)")
	rootCmd.PersistentFlags().StringVarP(&flags.timeline, "timeline", "t", "", "timeline to show, overrides config")
	rootCmd.PersistentFlags().DurationVar(&flags.poll, "poll", 0, "auto-refresh interval, overrides config (e.g. 30s)")

	rootCmd.AddCommand(newWatchCommand(flags))
	rootCmd.AddCommand(newCacheCommand(flags))
	rootCmd.AddCommand(newLogsCommand(flags))

	return rootCmd
}

func newWatchCommand(flags *globalFlags) *cobra.Command {
	var pages int

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Log timeline states without the viewer",
		Long: `Run the timeline pipeline headless and log every published state and
notice to stderr. With --pages N, keep loading until N pages are in or the
timeline is exhausted; with --pages 0, follow the timeline until interrupted.`,
		Example: `  # Load the first three pages and exit
  feedline watch --pages 3

  # Follow the home timeline, refreshing every 30 seconds
  feedline watch --pages 0 --poll 30s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if pages < 0 {
				return fmt.Errorf("--pages must not be negative")
			}
			return app.Watch(cmd.Context(), flags.options(), pages)
		},
	}
	cmd.Flags().IntVarP(&pages, "pages", "n", 1, "pages to load before exiting (0 follows)")
	return cmd
}

func newCacheCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the first-page cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Drop the cached first page of the timeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := flags.options()
			if err := app.ClearCache(cmd.Context(), opts); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
			return nil
		},
	})
	return cmd
}

func newLogsCommand(flags *globalFlags) *cobra.Command {
	var opts app.LogsOptions

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the end of the log file",
		Example: `  # Last 50 warnings and errors
  feedline logs -n 50 --level warn`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.Logs(cmd.OutOrStdout(), flags.options(), opts)
		},
	}
	cmd.Flags().IntVarP(&opts.Lines, "lines", "n", 200, "lines to show (0 for the whole file)")
	cmd.Flags().StringVar(&opts.Level, "level", "", "minimum level to show (trace, debug, info, warn, error)")
	cmd.Flags().BoolVar(&opts.Color, "color", false, "colorize output")
	return cmd
}
