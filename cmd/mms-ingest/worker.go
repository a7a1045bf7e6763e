package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mmsops/mms-ingest/internal/pipeline"
)

var (
	workerConfigPath string
	workerDBURL      string
	workerCount      int
	workerVerbose    bool
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the file processing worker pool without the API server",
	Long: `Claims queued files and runs them through identification, decoding,
and archiving. Multiple worker processes can share one database; the
queue hands each file to exactly one worker.`,
	RunE: runWorker,
}

func init() {
	workerCmd.Flags().StringVar(&workerConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")
	workerCmd.Flags().StringVar(&workerDBURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")
	workerCmd.Flags().IntVar(&workerCount, "workers", 0, "Worker pool size (0 uses config/default)")
	workerCmd.Flags().BoolVarP(&workerVerbose, "verbose", "v", false, "Print detailed debug information")
	rootCmd.AddCommand(workerCmd)
}

// pipelineRunner adapts an app into a running worker pool.
type pipelineRunner struct {
	app *app
}

func (r *pipelineRunner) run(ctx context.Context) {
	p := &pipeline.Pipeline{
		Sessions: r.app.sessions,
		Queue:    r.app.queue,
		Registry: r.app.registry,
		Records:  r.app.records,
		Objects:  r.app.objects,
		Archives: r.app.archives,
	}
	if err := p.Run(ctx, r.app.cfg.MaxConcurrent); err != nil && ctx.Err() == nil {
		log.Printf("worker pool stopped: %v", err)
	}
}

func runWorker(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadMergedConfig(workerConfigPath, workerVerbose)
	if err != nil {
		return err
	}
	applyCommonOverrides(cmd, &cfg, workerDBURL, workerVerbose)
	if cmd.Flags().Changed("workers") {
		cfg.MaxConcurrent = workerCount
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	log.Printf("starting %d workers", a.cfg.MaxConcurrent)
	r := &pipelineRunner{app: a}
	r.run(ctx)
	log.Printf("shutting down")
	return nil
}
