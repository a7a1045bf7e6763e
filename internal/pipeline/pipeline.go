// Package pipeline provides the high-level orchestration for file
// processing: claiming queued files, decoding them against their
// schema, persisting records, and handing finished files to the
// archive.
package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mmsops/mms-ingest/internal/archive"
	"github.com/mmsops/mms-ingest/internal/decoder"
	"github.com/mmsops/mms-ingest/internal/objectstore"
	"github.com/mmsops/mms-ingest/internal/queue"
	"github.com/mmsops/mms-ingest/internal/schema"
	"github.com/mmsops/mms-ingest/internal/session"
)

// DefaultBatchSize is how many decoded records are persisted per store
// write.
const DefaultBatchSize = 500

// idlePollInterval is how long a worker sleeps when the queue is empty.
const idlePollInterval = 2 * time.Second

// Pipeline wires the processing stages together. One Pipeline serves
// any number of workers; all state lives in the stores.
type Pipeline struct {
	Sessions  *session.Manager
	Queue     *queue.Queue
	Registry  *schema.Registry
	Records   RecordStore
	Objects   objectstore.Store
	Archives  *archive.Coordinator
	BatchSize int
}

// errAborted signals that a soft-deleted file was abandoned mid-flight.
// It never reaches a phase transition or the retry policy.
var errAborted = fmt.Errorf("file was deleted during processing")

func (p *Pipeline) batchSize() int {
	if p.BatchSize > 0 {
		return p.BatchSize
	}
	return DefaultBatchSize
}

// Run operates a bounded worker pool until the context is cancelled.
// Each worker repeatedly claims and processes one file; a reaper
// goroutine requeues work abandoned by crashed workers.
func (p *Pipeline) Run(ctx context.Context, workers int) error {
	if workers <= 0 {
		workers = 1
	}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		p.Queue.RunReaper(ctx, time.Minute)
		return nil
	})

	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for {
				claimed, err := p.ProcessNext(ctx)
				if err != nil {
					return err
				}
				if !claimed {
					select {
					case <-ctx.Done():
						return nil
					case <-time.After(idlePollInterval):
					}
				}
			}
		})
	}
	return g.Wait()
}

// ProcessNext claims one queued file and runs it to completion or
// failure. Returns false when the queue was empty. Processing errors
// feed the retry policy and are not returned; only store-level errors
// that leave the queue unusable propagate.
func (p *Pipeline) ProcessNext(ctx context.Context) (bool, error) {
	item, err := p.Queue.DequeueNext(ctx)
	if err != nil {
		return false, err
	}
	if item == nil {
		return false, nil
	}

	if err := p.processFile(ctx, item.FileID); err != nil {
		if err == errAborted {
			// Deleted mid-flight: drop the queue item, leave the
			// session untouched.
			if remErr := p.Queue.Store().Remove(ctx, item.FileID, false); remErr != nil {
				log.Printf("pipeline: failed to drop deleted file %s from queue: %v", item.FileID, remErr)
			}
			return true, nil
		}
		log.Printf("pipeline: processing %s failed: %v", item.FileID, err)
		if failErr := p.Queue.Fail(ctx, item.FileID, err); failErr != nil {
			switch failErr.(type) {
			case *queue.MaxAttemptsExceededError:
				log.Printf("pipeline: %v", failErr)
			case *queue.ErrNotQueued:
				// The reaper removed the item terminally while this
				// worker was still on it. The session outcome is the
				// reaper's; losing the race must not kill the pool.
				log.Printf("pipeline: queue item %s already removed: %v", item.FileID, failErr)
			default:
				return true, failErr
			}
		}
		return true, nil
	}

	if err := p.Queue.Complete(ctx, item.FileID); err != nil {
		log.Printf("pipeline: failed to complete queue item %s: %v", item.FileID, err)
	}
	return true, nil
}

// processFile advances one file from wherever its session currently
// stands to completed. It is written to resume: a retried file skips
// phases already passed and decodes only lines beyond the last durably
// recorded one.
func (p *Pipeline) processFile(ctx context.Context, fileID uuid.UUID) error {
	s, err := p.Sessions.Store().Get(ctx, fileID)
	if err != nil {
		return err
	}
	if deleted, err := p.Sessions.Store().IsDeleted(ctx, fileID); err != nil {
		return err
	} else if deleted {
		return errAborted
	}

	// Reprocessed sessions restart from started with the raw object
	// already uploaded; walk them forward to uploaded first.
	if s.Phase == session.PhaseStarted {
		if s, err = p.Sessions.Advance(ctx, fileID, session.PhaseUploading, session.Update{}); err != nil {
			return err
		}
	}
	if s.Phase == session.PhaseUploading {
		if s, err = p.Sessions.Advance(ctx, fileID, session.PhaseUploaded, session.Update{}); err != nil {
			return err
		}
	}

	if s.Phase == session.PhaseUploaded {
		if s, err = p.identify(ctx, s); err != nil {
			return err
		}
	}

	sch, err := p.Registry.Resolve(s.FileType, s.SchemaVersion)
	if err != nil {
		return err
	}

	if s.Phase == session.PhaseIdentified {
		version := sch.Version
		if s, err = p.Sessions.Advance(ctx, fileID, session.PhaseEncoding, session.Update{SchemaVersion: &version}); err != nil {
			return err
		}
	}

	if s.Phase == session.PhaseEncoding {
		if s, err = p.decode(ctx, s, sch); err != nil {
			return err
		}
	}

	if s.Phase == session.PhaseEncoded {
		if _, err := p.Archives.Archive(ctx, fileID); err != nil {
			return err
		}
		// Auto-encoded files run the enrichment step immediately;
		// everything else waits for a manual batch. The session is
		// already completed, so a step failure only marks the archive
		// entry for retry.
		if s.AutoEncode {
			if _, err := p.Archives.Step6Batch(ctx, []uuid.UUID{fileID}); err != nil {
				log.Printf("post-archive step failed for %s: %v", fileID, err)
			}
		}
	}
	return nil
}

// identify determines the file type from the session or the file
// content and moves the session to identified.
func (p *Pipeline) identify(ctx context.Context, s *session.Session) (*session.Session, error) {
	fileType := s.FileType
	if fileType == "" {
		firstLine, err := p.readFirstLine(ctx, s)
		if err != nil {
			return nil, err
		}
		fileType = IdentifyFileType(s.Filename, firstLine)
		if fileType == "" {
			return nil, fmt.Errorf("cannot identify file type of %s", s.Filename)
		}
	}
	return p.Sessions.Advance(ctx, s.ID, session.PhaseIdentified, session.Update{FileType: &fileType})
}

func (p *Pipeline) readFirstLine(ctx context.Context, s *session.Session) (string, error) {
	rc, err := p.Objects.Get(ctx, storageKey(s))
	if err != nil {
		return "", err
	}
	defer rc.Close()
	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	return "", scanner.Err()
}

// decode streams the raw object line by line, persisting decoded
// records in ascending line order batches, then moves the session to
// encoded with the final counters.
func (p *Pipeline) decode(ctx context.Context, s *session.Session, sch *schema.Schema) (*session.Session, error) {
	resumeAfter, err := p.Records.LastLine(ctx, s.ID)
	if err != nil {
		return nil, err
	}

	rc, err := p.Objects.Get(ctx, storageKey(s))
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var (
		processed int64
		errored   int64
		batch     []*decoder.DecodedRecord
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if deleted, err := p.Sessions.Store().IsDeleted(ctx, s.ID); err != nil {
			return err
		} else if deleted {
			return errAborted
		}
		if err := p.Records.SaveBatch(ctx, s.ID, batch); err != nil {
			return fmt.Errorf("failed to persist record batch for %s: %w", s.ID, err)
		}
		batch = batch[:0]
		return nil
	}

	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := scanner.Text()
		if line == "" {
			continue
		}
		// Lines at or below resumeAfter were persisted by a previous
		// attempt; they still count toward the totals.
		record := decoder.Decode(s.ID, lineNumber, line, sch)
		if len(record.FieldErrors) > 0 {
			errored++
		} else {
			processed++
		}
		if lineNumber <= resumeAfter {
			continue
		}
		batch = append(batch, record)
		if len(batch) >= p.batchSize() {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.ID, err)
	}
	if err := flush(); err != nil {
		return nil, err
	}

	return p.Sessions.Advance(ctx, s.ID, session.PhaseEncoded, session.Update{
		ProcessedRecords: &processed,
		ErrorRecords:     &errored,
	})
}

func storageKey(s *session.Session) string {
	if s.StorageKey != "" {
		return s.StorageKey
	}
	return objectstore.UploadKey(s.ID.String())
}

// IdentifyFileType guesses the settlement file type from the filename
// and the first line. Returns "" when nothing matches.
func IdentifyFileType(filename, firstLine string) string {
	upper := strings.ToUpper(filename)
	switch {
	case strings.Contains(upper, "_TDDF_") || strings.HasSuffix(upper, ".TSYSO"):
		return schema.FileTypeTDDF
	case strings.Contains(upper, "ACH") || (len(firstLine) == 94 && strings.HasPrefix(firstLine, "1")):
		return schema.FileTypeACH
	case strings.HasPrefix(firstLine, "IR"):
		return schema.FileTypeIntegrity
	}
	return ""
}
