package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmsops/mms-ingest/internal/server"
)

var (
	serveConfigPath string
	serveAddr       string
	serveAPIKey     string
	serveDBURL      string
	serveWorkers    int
	serveVerbose    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server with embedded workers",
	Long: `Start an HTTP server that accepts file uploads and exposes session,
schema, and archive endpoints. A worker pool processes queued files in
the same process.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "HTTP bind address (default :8080)")
	serveCmd.Flags().StringVar(&serveAPIKey, "api-key", "", "Shared API key (optional, defaults to MMS_API_KEY env var)")
	serveCmd.Flags().StringVar(&serveDBURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")
	serveCmd.Flags().IntVar(&serveWorkers, "workers", 0, "Worker pool size (0 uses config/default)")
	serveCmd.Flags().BoolVarP(&serveVerbose, "verbose", "v", false, "Print detailed debug information")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := loadMergedConfig(serveConfigPath, serveVerbose)
	if err != nil {
		return err
	}
	applyCommonOverrides(cmd, &cfg, serveDBURL, serveVerbose)
	if cmd.Flags().Changed("addr") {
		cfg.ListenAddr = serveAddr
	}
	if cmd.Flags().Changed("api-key") {
		cfg.APIKey = serveAPIKey
	}
	if cmd.Flags().Changed("workers") {
		cfg.MaxConcurrent = serveWorkers
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	p := &pipelineRunner{app: a}
	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go p.run(workerCtx)

	srv := server.New(server.Config{
		Addr:          a.cfg.ListenAddr,
		APIKey:        a.cfg.APIKey,
		Environment:   a.cfg.Environment,
		MaxConcurrent: a.cfg.MaxConcurrent,
	}, server.Deps{
		Sessions:    a.sessions,
		Queue:       a.queue,
		Registry:    a.registry,
		SchemaStore: a.schemas,
		Archives:    a.archives,
		Objects:     a.objects,
	})

	if err := srv.Start(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
