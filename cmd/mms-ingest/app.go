package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmsops/mms-ingest/internal/archive"
	"github.com/mmsops/mms-ingest/internal/config"
	"github.com/mmsops/mms-ingest/internal/db"
	"github.com/mmsops/mms-ingest/internal/objectstore"
	"github.com/mmsops/mms-ingest/internal/pipeline"
	"github.com/mmsops/mms-ingest/internal/queue"
	"github.com/mmsops/mms-ingest/internal/schema"
	"github.com/mmsops/mms-ingest/internal/session"
)

// app holds the wired service collaborators shared by the serve,
// worker, and status commands.
type app struct {
	database *db.DB
	sessions *session.Manager
	queue    *queue.Queue
	registry *schema.Registry
	schemas  *db.SchemaStore
	records  pipeline.RecordStore
	objects  objectstore.Store
	archives *archive.Coordinator
	cfg      config.Config
}

// loadMergedConfig loads the optional config file, overlays environment
// variables, and validates the result. Flag overrides are applied by
// each command before calling newApp.
func loadMergedConfig(configPath string, verbose bool) (config.Config, error) {
	var cfg config.Config
	if configPath != "" {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return cfg, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = *loaded
		if verbose {
			log.Printf("loaded config from %s", configPath)
		}
	}
	cfg.FromEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// newApp connects to the database and object store and wires the
// service layers together.
func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	cfg = cfg.MergeWithDefaults(config.Config{})

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable or --db-url flag is required")
	}

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := database.Migrate(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	schemas := db.NewSchemaStore(database)
	registry, err := schemas.LoadRegistry(ctx)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to load schema registry: %w", err)
	}

	var objects objectstore.Store
	if cfg.S3Bucket != "" {
		objects, err = objectstore.NewS3Store(objectstore.S3Config{
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
		})
		if err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to create object store: %w", err)
		}
	} else {
		log.Printf("no s3_bucket configured, using in-memory object storage")
		objects = objectstore.NewMemoryStore()
	}

	sessions := session.NewManager(db.NewSessionStore(database))
	q := queue.New(db.NewQueueStore(database), sessions, time.Duration(cfg.ProcessingTimeout)*time.Minute)
	archives := archive.NewCoordinator(db.NewArchiveStore(database), sessions, objects)

	return &app{
		database: database,
		sessions: sessions,
		queue:    q,
		registry: registry,
		schemas:  schemas,
		records:  db.NewRecordStore(database),
		objects:  objects,
		archives: archives,
		cfg:      cfg,
	}, nil
}

func (a *app) close() {
	a.database.Close()
}

// applyCommonOverrides copies shared flag values into cfg, only when
// the flag was explicitly set so config file values survive.
func applyCommonOverrides(cmd *cobra.Command, cfg *config.Config, dbURL string, verbose bool) {
	if cmd.Flags().Changed("db-url") {
		cfg.DatabaseURL = dbURL
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Verbose = verbose
	}
}
