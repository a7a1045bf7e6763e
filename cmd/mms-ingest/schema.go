package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mmsops/mms-ingest/internal/schema"
)

var (
	schemaConfigPath string
	schemaDBURL      string
	schemaImportPath string
	schemaVerbose    bool
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "List registered record schemas or import a new version",
	RunE:  runSchema,
}

func init() {
	schemaCmd.Flags().StringVar(&schemaConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")
	schemaCmd.Flags().StringVar(&schemaDBURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")
	schemaCmd.Flags().StringVar(&schemaImportPath, "import", "", "Path to a schema document JSON file to register")
	schemaCmd.Flags().BoolVarP(&schemaVerbose, "verbose", "v", false, "Print detailed debug information")
	rootCmd.AddCommand(schemaCmd)
}

func runSchema(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := loadMergedConfig(schemaConfigPath, schemaVerbose)
	if err != nil {
		return err
	}
	applyCommonOverrides(cmd, &cfg, schemaDBURL, schemaVerbose)

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	if schemaImportPath != "" {
		doc, err := os.ReadFile(schemaImportPath)
		if err != nil {
			return fmt.Errorf("failed to read schema file: %w", err)
		}
		parsed, err := schema.ParseDocument(doc)
		if err != nil {
			return fmt.Errorf("invalid schema document: %w", err)
		}
		id, err := a.registry.Register(*parsed)
		if err != nil {
			return fmt.Errorf("failed to register schema: %w", err)
		}
		stored, _ := a.registry.Get(id)
		if err := a.schemas.Save(ctx, stored); err != nil {
			return fmt.Errorf("failed to persist schema: %w", err)
		}
		fmt.Fprintf(os.Stdout, "registered %s v%d for %s (id %s)\n", stored.Name, stored.Version, stored.FileType, id)
		return nil
	}

	for _, s := range a.registry.List() {
		active := " "
		if s.IsActive {
			active = "*"
		}
		fmt.Fprintf(os.Stdout, "%s %-10s v%-3d %-30s %d record types\n", active, s.FileType, s.Version, s.Name, len(s.RecordTypes))
	}
	return nil
}
