package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/anstrom/scanfold/internal/ingest"
	"github.com/anstrom/scanfold/internal/watch"
)

var (
	watchDir      string
	watchSchedule string
	watchPatterns string
	watchOnce     bool
)

// watchCmd represents the watch command.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Import new reports from a directory on a schedule",
	Long: `Poll a directory on a cron schedule and import every matching report
whose content has not been imported before. Runs until interrupted, or polls
a single time with --once.`,
	Example: `  scanfold watch --dir /var/spool/nmap
  scanfold watch --dir ./reports --schedule "@every 1m" --patterns "*.xml"
  scanfold watch --dir ./reports --once`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&watchDir, "dir", "", "directory to poll (default from watch.directory)")
	watchCmd.Flags().StringVar(&watchSchedule, "schedule", "", "cron schedule (default from watch.schedule)")
	watchCmd.Flags().StringVar(&watchPatterns, "patterns", "", "comma-separated file globs (default from watch.patterns)")
	watchCmd.Flags().BoolVar(&watchOnce, "once", false, "poll once and exit")
}

func watchConfig(s *session) watch.Config {
	cfg := watch.ConfigFrom(s.config.Watch)
	if watchDir != "" {
		cfg.Directory = watchDir
	}
	if watchSchedule != "" {
		cfg.Schedule = watchSchedule
	}
	if watchPatterns != "" {
		cfg.Patterns = nil
		for _, p := range strings.Split(watchPatterns, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.Patterns = append(cfg.Patterns, p)
			}
		}
	}
	return cfg
}

func runWatch(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return withTracker(ctx, func(ctx context.Context, s *session) error {
		ingestCfg, err := ingest.ConfigFrom(s.config.Import)
		if err != nil {
			return err
		}
		ing := ingest.New(s.tracker, ingestCfg, s.logger, s.recorder())

		w, err := watch.New(watchConfig(s), ing, s.logger)
		if err != nil {
			return err
		}

		if watchOnce {
			report, err := w.RunOnce(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), report)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Scanned %d file(s): %d imported, %d skipped, %d failed\n",
				report.Scanned, report.Imported, report.Skipped, report.Failed)
			return nil
		}

		if err := w.Start(); err != nil {
			return err
		}
		<-ctx.Done()
		w.Stop()
		return nil
	})
}
