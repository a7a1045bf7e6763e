// Package main provides the entry point for the transaction file
// ingestion service.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mms-ingest",
	Short: "Transaction file ingestion service",
	Long:  "mms-ingest receives fixed-width transaction files (TDDF, ACH, integrity reports), decodes them against versioned record schemas, and archives them by business day.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
