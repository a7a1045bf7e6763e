package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mmsops/mms-ingest/internal/archive"
	"github.com/mmsops/mms-ingest/internal/observability"
	"github.com/mmsops/mms-ingest/internal/session"
)

var (
	statusConfigPath string
	statusDBURL      string
	statusPhase      string
	statusFileType   string
	statusArchives   bool
	statusLimit      int
	statusVerbose    bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue occupancy and recent upload sessions",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")
	statusCmd.Flags().StringVar(&statusDBURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")
	statusCmd.Flags().StringVar(&statusPhase, "phase", "", "Filter sessions by phase (started, uploading, uploaded, identified, encoding, encoded, completed, failed)")
	statusCmd.Flags().StringVar(&statusFileType, "file-type", "", "Filter sessions by file type (TDDF, ACH, INTEGRITY)")
	statusCmd.Flags().BoolVar(&statusArchives, "archives", false, "Show archive entries instead of sessions")
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "Maximum rows to fetch")
	statusCmd.Flags().BoolVarP(&statusVerbose, "verbose", "v", false, "Print detailed debug information")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := loadMergedConfig(statusConfigPath, statusVerbose)
	if err != nil {
		return err
	}
	applyCommonOverrides(cmd, &cfg, statusDBURL, statusVerbose)

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	printer := observability.NewPrinter(os.Stdout)

	stats, err := a.queue.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to read queue stats: %w", err)
	}
	printer.PrintQueueStatus(stats, a.cfg.MaxConcurrent)

	if statusArchives {
		entries, err := a.archives.Store().List(ctx, archive.Filter{Limit: statusLimit})
		if err != nil {
			return fmt.Errorf("failed to list archives: %w", err)
		}
		printer.PrintArchives(entries)
		return nil
	}

	sessions, total, err := a.sessions.Store().List(ctx, session.Filter{
		Phase:    session.Phase(statusPhase),
		FileType: statusFileType,
		SortBy:   "date",
		SortDesc: true,
		Limit:    statusLimit,
	})
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	printer.PrintSessions(sessions, total)
	return nil
}
