package archive

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/mmsops/mms-ingest/internal/objectstore"
	"github.com/mmsops/mms-ingest/internal/session"
)

// Coordinator moves finished files into the permanent archive and
// drives the Step 6 sub-state. It owns the encoded -> completed
// transition: a session reaches completed only once its archive entry
// exists.
type Coordinator struct {
	store    Store
	sessions *session.Manager
	objects  objectstore.Store
}

// NewCoordinator wires the archive ledger to the session manager and
// object storage.
func NewCoordinator(store Store, sessions *session.Manager, objects objectstore.Store) *Coordinator {
	return &Coordinator{store: store, sessions: sessions, objects: objects}
}

// Store exposes the underlying ledger for read paths.
func (c *Coordinator) Store() Store { return c.store }

// Archive copies a finished file into the archive and records the
// entry. Only sessions in encoded or completed may be archived; anything
// earlier returns *ErrArchivePrecondition. Re-archiving an already
// archived file returns the existing entry. The business day is fixed
// here and never changes afterwards.
func (c *Coordinator) Archive(ctx context.Context, fileID uuid.UUID) (*Entry, error) {
	if existing, err := c.store.Get(ctx, fileID); err == nil && existing.ArchiveStatus == StatusArchived {
		return existing, nil
	}

	s, err := c.sessions.Store().Get(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if s.Phase != session.PhaseEncoded && s.Phase != session.PhaseCompleted {
		return nil, &ErrArchivePrecondition{FileID: fileID, Phase: s.Phase}
	}

	businessDay := s.BusinessDay
	if businessDay == "" {
		businessDay = BusinessDayFor(s.Filename, s.CreatedAt)
	}

	entry := &Entry{
		FileID:          fileID,
		ArchiveFilename: s.Filename,
		ArchivePath:     objectstore.ArchiveKey(businessDay, s.Filename),
		ArchiveStatus:   StatusArchived,
		Step6Status:     Step6Pending,
		RecordCount:     s.ProcessedRecords,
		BusinessDay:     businessDay,
		ArchivedAt:      time.Now().UTC(),
	}

	srcKey := s.StorageKey
	if srcKey == "" {
		srcKey = objectstore.UploadKey(fileID.String())
	}
	if err := c.objects.Copy(ctx, srcKey, entry.ArchivePath); err != nil {
		entry.ArchiveStatus = StatusFailed
		entry.Step6Status = ""
		entry.Step6Note = err.Error()
		if saveErr := c.store.Save(ctx, entry); saveErr != nil {
			log.Printf("archive: failed to record failed archive for %s: %v", fileID, saveErr)
		}
		return nil, fmt.Errorf("failed to copy %s into archive: %w", fileID, err)
	}

	if err := c.store.Save(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to save archive entry for %s: %w", fileID, err)
	}

	if s.Phase == session.PhaseEncoded {
		if _, err := c.sessions.Advance(ctx, fileID, session.PhaseCompleted, session.Update{BusinessDay: &businessDay}); err != nil {
			return nil, err
		}
	}
	return entry, nil
}

// StartStep6 claims the enrichment step for a file. Legal from pending
// and from failed (retry); any other current state is an error.
func (c *Coordinator) StartStep6(ctx context.Context, fileID uuid.UUID) (*Entry, error) {
	e, err := c.store.Get(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if e.Step6Status != Step6Pending && e.Step6Status != Step6Failed {
		return nil, &ErrStep6Transition{FileID: fileID, From: e.Step6Status, To: Step6Processing}
	}
	attempts := e.Step6Attempts + 1
	if err := c.store.SetStep6(ctx, fileID, Step6Processing, attempts, ""); err != nil {
		return nil, err
	}
	e.Step6Status = Step6Processing
	e.Step6Attempts = attempts
	e.Step6Note = ""
	return e, nil
}

// FinishStep6 records the outcome of a claimed enrichment step. A
// failed outcome keeps the file retryable; the decoded records are
// untouched either way.
func (c *Coordinator) FinishStep6(ctx context.Context, fileID uuid.UUID, succeeded bool, note string) error {
	e, err := c.store.Get(ctx, fileID)
	if err != nil {
		return err
	}
	if e.Step6Status != Step6Processing {
		target := Step6Completed
		if !succeeded {
			target = Step6Failed
		}
		return &ErrStep6Transition{FileID: fileID, From: e.Step6Status, To: target}
	}
	status := Step6Completed
	if !succeeded {
		status = Step6Failed
	}
	return c.store.SetStep6(ctx, fileID, status, e.Step6Attempts, note)
}

// Step6Batch runs the enrichment step for a set of archived files, as
// triggered by the manual batch action. Files whose sub-state does not
// permit a start are skipped with a logged reason; the batch keeps
// going. Returns the count moved to completed.
func (c *Coordinator) Step6Batch(ctx context.Context, fileIDs []uuid.UUID) (int, error) {
	done := 0
	for _, id := range fileIDs {
		if _, err := c.StartStep6(ctx, id); err != nil {
			log.Printf("archive: skipping step 6 for %s: %v", id, err)
			continue
		}
		if err := c.FinishStep6(ctx, id, true, ""); err != nil {
			return done, err
		}
		done++
	}
	return done, nil
}
