// Package archive records the permanent disposition of processed files:
// the archived copy's location, the settlement business day it belongs
// to, and the Step 6 enrichment sub-state.
package archive

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/mmsops/mms-ingest/internal/calendar"
	"github.com/mmsops/mms-ingest/internal/session"
)

// Status of the archive copy itself.
type Status string

const (
	StatusArchived Status = "archived"
	StatusFailed   Status = "failed"
)

// Step6Status is the enrichment sub-state. It advances independently of
// the owning session; a failed Step 6 is retried without re-decoding
// the file.
type Step6Status string

const (
	Step6Pending    Step6Status = "pending"
	Step6Processing Step6Status = "processing"
	Step6Completed  Step6Status = "completed"
	Step6Failed     Step6Status = "failed"
)

// Entry is one file's archive record.
type Entry struct {
	FileID          uuid.UUID   `json:"file_id"`
	ArchiveFilename string      `json:"archive_filename"`
	ArchivePath     string      `json:"archive_path"`
	ArchiveStatus   Status      `json:"archive_status"`
	Step6Status     Step6Status `json:"step6_status"`
	Step6Attempts   int         `json:"step6_attempts"`
	Step6Note       string      `json:"step6_note,omitempty"`
	RecordCount     int64       `json:"record_count"`
	BusinessDay     string      `json:"business_day"`
	ArchivedAt      time.Time   `json:"archived_at"`
}

// ErrArchivePrecondition reports an archive request against a session
// that has not finished processing.
type ErrArchivePrecondition struct {
	FileID uuid.UUID
	Phase  session.Phase
}

func (e *ErrArchivePrecondition) Error() string {
	return fmt.Sprintf("cannot archive %s in phase %s", e.FileID, e.Phase)
}

// ErrNotArchived reports an operation against a file with no archive
// entry.
type ErrNotArchived struct {
	FileID uuid.UUID
}

func (e *ErrNotArchived) Error() string {
	return fmt.Sprintf("file %s has no archive entry", e.FileID)
}

// ErrStep6Transition reports an illegal Step 6 state change.
type ErrStep6Transition struct {
	FileID uuid.UUID
	From   Step6Status
	To     Step6Status
}

func (e *ErrStep6Transition) Error() string {
	return fmt.Sprintf("illegal step 6 transition %s -> %s for %s", e.From, e.To, e.FileID)
}

// dateToken matches the MMDDYYYY token embedded in settlement
// filenames, e.g. VERMNTSB.6759_TDDF_2400_07112025_003301.TSYSO.
var dateToken = regexp.MustCompile(`_(\d{8})_`)

// BusinessDayFor derives the settlement business day for a file. A
// parseable filename date token is authoritative; otherwise the day is
// the processing day before the upload timestamp, skipping weekends and
// holidays.
func BusinessDayFor(filename string, uploadedAt time.Time) string {
	for _, m := range dateToken.FindAllStringSubmatch(filename, -1) {
		d, err := time.Parse("01022006", m[1])
		if err != nil {
			continue
		}
		return calendar.FormatBusinessDay(d)
	}
	return calendar.FormatBusinessDay(calendar.PreviousProcessingDay(uploadedAt))
}
