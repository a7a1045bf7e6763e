// Package session models one uploaded file's lifecycle and enforces the
// legal phase-transition graph through compare-and-swap updates.
package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Phase is a named state in the upload lifecycle.
type Phase string

const (
	PhaseStarted    Phase = "started"
	PhaseUploading  Phase = "uploading"
	PhaseUploaded   Phase = "uploaded"
	PhaseIdentified Phase = "identified"
	PhaseEncoding   Phase = "encoding"
	PhaseEncoded    Phase = "encoded"
	PhaseCompleted  Phase = "completed"
	PhaseFailed     Phase = "failed"
)

// DefaultMaxAttempts bounds automatic retries per file.
const DefaultMaxAttempts = 3

// DefaultPriority is the queue priority assigned at intake.
const DefaultPriority = 50

// transitions is the legal forward graph. Any phase may additionally
// move to failed, and failed may move back to started via reprocess.
var transitions = map[Phase]Phase{
	PhaseStarted:    PhaseUploading,
	PhaseUploading:  PhaseUploaded,
	PhaseUploaded:   PhaseIdentified,
	PhaseIdentified: PhaseEncoding,
	PhaseEncoding:   PhaseEncoded,
	PhaseEncoded:    PhaseCompleted,
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to Phase) bool {
	if to == PhaseFailed {
		return from != PhaseFailed
	}
	if from == PhaseFailed {
		return to == PhaseStarted
	}
	return transitions[from] == to
}

// Session tracks one file from intake to archival. It is mutated only
// through store transition operations, never by direct field writes
// from the pipeline.
type Session struct {
	ID             uuid.UUID `json:"id"`
	Filename       string    `json:"filename"`
	FileSize       int64     `json:"file_size"`
	FileType       string    `json:"file_type,omitempty"`
	UploadToken    string    `json:"session_id"`
	Phase          Phase     `json:"phase"`
	UploadProgress int       `json:"upload_progress"`
	Attempts       int       `json:"attempts"`
	MaxAttempts    int       `json:"max_attempts"`
	Priority       int       `json:"priority"`
	SchemaVersion  int       `json:"schema_version,omitempty"`
	// BusinessDay is the YYYY-MM-DD settlement date, set at archive
	// time and immutable thereafter.
	BusinessDay      string `json:"business_day,omitempty"`
	ErrorDetails     string `json:"error_details,omitempty"`
	ProcessedRecords int64  `json:"processed_records"`
	ErrorRecords     int64  `json:"error_records"`
	// StorageKey references the raw object held by the external
	// object-storage collaborator; the core never owns the bytes.
	StorageKey  string     `json:"storage_key,omitempty"`
	AutoEncode  bool       `json:"auto_encode"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// Terminal reports whether the session will receive no further
// automatic work.
func (s *Session) Terminal() bool {
	if s.Phase == PhaseCompleted {
		return true
	}
	return s.Phase == PhaseFailed && s.Attempts >= s.MaxAttempts
}

// StaleTransitionError is returned when a CAS transition loses a race:
// the stored phase no longer matches what the caller observed. The
// caller re-reads current state rather than retrying blindly.
type StaleTransitionError struct {
	FileID   uuid.UUID
	Expected Phase
	Target   Phase
}

func (e *StaleTransitionError) Error() string {
	return fmt.Sprintf("stale transition for %s: phase is no longer %s (target %s)", e.FileID, e.Expected, e.Target)
}

// ErrIllegalTransition reports an edge not present in the phase graph.
type ErrIllegalTransition struct {
	From Phase
	To   Phase
}

func (e *ErrIllegalTransition) Error() string {
	return fmt.Sprintf("illegal phase transition %s -> %s", e.From, e.To)
}

// ErrUploadIncomplete guards uploading -> uploaded: progress must reach
// 100 first.
type ErrUploadIncomplete struct {
	FileID   uuid.UUID
	Progress int
}

func (e *ErrUploadIncomplete) Error() string {
	return fmt.Sprintf("upload for %s is at %d%%, cannot mark uploaded", e.FileID, e.Progress)
}

// ErrSessionNotFound reports an unknown or soft-deleted session.
type ErrSessionNotFound struct {
	FileID uuid.UUID
}

func (e *ErrSessionNotFound) Error() string {
	return fmt.Sprintf("upload session not found: %s", e.FileID)
}
