package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mmsops/mms-ingest/internal/archive"
	"github.com/mmsops/mms-ingest/internal/decoder"
	"github.com/mmsops/mms-ingest/internal/objectstore"
	"github.com/mmsops/mms-ingest/internal/queue"
	"github.com/mmsops/mms-ingest/internal/schema"
	"github.com/mmsops/mms-ingest/internal/session"
)

type env struct {
	pipeline *Pipeline
	sessions *session.Manager
	queue    *queue.Queue
	records  RecordStore
	objects  objectstore.Store
	archives *archive.Coordinator
}

func newEnv(t *testing.T) *env {
	t.Helper()
	sessions := session.NewManager(session.NewMemoryStore())
	q := queue.New(queue.NewMemoryStore(), sessions, time.Minute)
	objects := objectstore.NewMemoryStore()
	archives := archive.NewCoordinator(archive.NewMemoryStore(), sessions, objects)
	records := NewMemoryRecordStore()
	e := &env{
		sessions: sessions,
		queue:    q,
		records:  records,
		objects:  objects,
		archives: archives,
	}
	e.pipeline = &Pipeline{
		Sessions: sessions,
		Queue:    q,
		Registry: schema.DefaultRegistry(),
		Records:  records,
		Objects:  objects,
		Archives: archives,
	}
	return e
}

// dtLine builds a valid 120-byte TDDF detail record.
func dtLine(merchant string, amountCents int64) string {
	line := fmt.Sprintf("DT%-16s%s%011d%-16s%-6s%04d%-23s",
		merchant, "20250711", amountCents, "411111******1111", "A1B2C3", 542, "REF0001")
	return line + strings.Repeat(" ", 120-len(line))
}

// badDTLine has a non-numeric amount so decoding records a field error.
func badDTLine(merchant string) string {
	line := fmt.Sprintf("DT%-16s%s%-11s%-16s%-6s%04d%-23s",
		merchant, "20250711", "NOTANUMBER!", "411111******1111", "A1B2C3", 542, "REF0002")
	return line + strings.Repeat(" ", 120-len(line))
}

// uploadedSession creates a session in the uploaded phase with its raw
// content stored and a queue item waiting.
func uploadedSession(t *testing.T, e *env, filename, content string) *session.Session {
	return uploadedSessionOpts(t, e, filename, content, false)
}

func uploadedSessionOpts(t *testing.T, e *env, filename, content string, autoEncode bool) *session.Session {
	t.Helper()
	ctx := context.Background()
	s, err := e.sessions.Start(ctx, filename, int64(len(content)), "", "tok", autoEncode)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.sessions.Advance(ctx, s.ID, session.PhaseUploading, session.Update{}); err != nil {
		t.Fatal(err)
	}
	if err := e.sessions.Store().SetProgress(ctx, s.ID, 100); err != nil {
		t.Fatal(err)
	}
	if _, err := e.sessions.Advance(ctx, s.ID, session.PhaseUploaded, session.Update{}); err != nil {
		t.Fatal(err)
	}
	if err := e.objects.Put(ctx, objectstore.UploadKey(s.ID.String()), strings.NewReader(content)); err != nil {
		t.Fatal(err)
	}
	if err := e.queue.Enqueue(ctx, s.ID, session.DefaultPriority, 3); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestProcessNext_EndToEnd(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	content := strings.Join([]string{
		dtLine("MERCH001", 123456),
		dtLine("MERCH001", 200),
		badDTLine("MERCH002"),
		dtLine("MERCH002", 75),
	}, "\n") + "\n"
	s := uploadedSession(t, e, "VERMNTSB.6759_TDDF_2400_07112025_003301.TSYSO", content)

	claimed, err := e.pipeline.ProcessNext(ctx)
	if err != nil {
		t.Fatalf("ProcessNext: %v", err)
	}
	if !claimed {
		t.Fatal("expected a claimed item")
	}

	got, err := e.sessions.Store().Get(ctx, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Phase != session.PhaseCompleted {
		t.Fatalf("phase = %s (errorDetails=%q), want completed", got.Phase, got.ErrorDetails)
	}
	if got.FileType != schema.FileTypeTDDF {
		t.Errorf("file type = %s, want TDDF", got.FileType)
	}
	if got.SchemaVersion != 1 {
		t.Errorf("schema version = %d, want 1", got.SchemaVersion)
	}
	if got.ProcessedRecords != 3 || got.ErrorRecords != 1 {
		t.Errorf("counters = %d/%d, want 3 processed, 1 errored", got.ProcessedRecords, got.ErrorRecords)
	}
	if got.BusinessDay != "2025-07-11" {
		t.Errorf("business day = %s, want 2025-07-11", got.BusinessDay)
	}

	records, err := e.records.ListByFile(ctx, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 4 {
		t.Fatalf("persisted %d records, want 4", len(records))
	}
	for i, r := range records {
		if r.LineNumber != i+1 {
			t.Errorf("record %d has line number %d", i, r.LineNumber)
		}
	}
	amount, ok := records[0].Fields["transaction_amount"]
	if !ok {
		t.Fatal("first record missing transaction_amount")
	}
	if fmt.Sprint(amount) != "1234.56" {
		t.Errorf("transaction_amount = %v, want 1234.56", amount)
	}

	entry, err := e.archives.Store().Get(ctx, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if entry.RecordCount != 3 {
		t.Errorf("archive record count = %d, want 3", entry.RecordCount)
	}

	stats, _ := e.queue.Stats(ctx)
	if stats.Completed != 1 || stats.Active != 0 || stats.Waiting != 0 {
		t.Errorf("queue stats = %+v", stats)
	}
}

func TestProcessNext_EmptyQueue(t *testing.T) {
	e := newEnv(t)
	claimed, err := e.pipeline.ProcessNext(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if claimed {
		t.Error("claimed from an empty queue")
	}
}

// flakyRecords fails the second SaveBatch once, simulating a transient
// storage outage mid-file.
type flakyRecords struct {
	RecordStore
	calls  int
	failed bool
}

func (f *flakyRecords) SaveBatch(ctx context.Context, fileID uuid.UUID, records []*decoder.DecodedRecord) error {
	f.calls++
	if f.calls == 2 && !f.failed {
		f.failed = true
		return fmt.Errorf("record store unavailable")
	}
	return f.RecordStore.SaveBatch(ctx, fileID, records)
}

func TestProcessNext_ResumesAfterTransientFailure(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	flaky := &flakyRecords{RecordStore: e.records}
	e.pipeline.Records = flaky
	e.pipeline.BatchSize = 2

	content := strings.Join([]string{
		dtLine("MERCH001", 100),
		dtLine("MERCH001", 200),
		dtLine("MERCH001", 300),
		dtLine("MERCH001", 400),
	}, "\n") + "\n"
	s := uploadedSession(t, e, "BANK_TDDF_2400_07112025_001.TSYSO", content)

	// First attempt fails on the second batch.
	if _, err := e.pipeline.ProcessNext(ctx); err != nil {
		t.Fatal(err)
	}
	it, err := e.queue.Store().Get(ctx, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if it.Status != queue.StatusWaiting || it.Attempts != 1 {
		t.Fatalf("after failure: status=%s attempts=%d", it.Status, it.Attempts)
	}
	got, _ := e.sessions.Store().Get(ctx, s.ID)
	if got.Phase != session.PhaseEncoding {
		t.Fatalf("phase after failure = %s, want encoding", got.Phase)
	}
	last, _ := e.records.LastLine(ctx, s.ID)
	if last != 2 {
		t.Fatalf("last persisted line = %d, want 2", last)
	}

	// Retry resumes past the durably recorded lines and completes.
	if _, err := e.pipeline.ProcessNext(ctx); err != nil {
		t.Fatal(err)
	}
	got, _ = e.sessions.Store().Get(ctx, s.ID)
	if got.Phase != session.PhaseCompleted {
		t.Fatalf("phase after retry = %s (errorDetails=%q)", got.Phase, got.ErrorDetails)
	}
	if got.ProcessedRecords != 4 {
		t.Errorf("processed = %d, want 4", got.ProcessedRecords)
	}
	records, _ := e.records.ListByFile(ctx, s.ID)
	if len(records) != 4 {
		t.Errorf("persisted %d records, want 4", len(records))
	}
	// The retry wrote only the lines beyond the first batch: 1 write
	// before the failure, 1 failed, 1 on retry.
	if flaky.calls != 3 {
		t.Errorf("SaveBatch calls = %d, want 3", flaky.calls)
	}
}

func TestProcessNext_SoftDeletedFileAborts(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	s := uploadedSession(t, e, "BANK_TDDF_2400_07112025_002.TSYSO", dtLine("M", 100)+"\n")

	if _, err := e.sessions.Store().SoftDelete(ctx, []uuid.UUID{s.ID}); err != nil {
		t.Fatal(err)
	}

	claimed, err := e.pipeline.ProcessNext(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !claimed {
		t.Fatal("expected the deleted file's item to be claimed and dropped")
	}

	// No phase transition happened and the queue forgot the file.
	if _, err := e.queue.Store().Get(ctx, s.ID); err == nil {
		t.Error("queue item should be removed")
	}
	records, _ := e.records.ListByFile(ctx, s.ID)
	if len(records) != 0 {
		t.Errorf("deleted file persisted %d records", len(records))
	}
}

func TestProcessNext_UnidentifiableFileRetries(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	s := uploadedSession(t, e, "mystery.bin", "???\n")

	if _, err := e.pipeline.ProcessNext(ctx); err != nil {
		t.Fatal(err)
	}
	it, err := e.queue.Store().Get(ctx, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if it.Status != queue.StatusWaiting || it.Attempts != 1 {
		t.Errorf("after failure: status=%s attempts=%d", it.Status, it.Attempts)
	}
	if it.ErrorDetails == "" {
		t.Error("failure cause should be recorded")
	}
}

func TestProcessNext_ReprocessedSessionRunsAgain(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	s := uploadedSession(t, e, "mystery.bin", "???\n")

	// Exhaust all attempts on an unidentifiable file.
	for i := 0; i < 3; i++ {
		if _, err := e.pipeline.ProcessNext(ctx); err != nil {
			t.Fatal(err)
		}
	}
	got, _ := e.sessions.Store().Get(ctx, s.ID)
	if got.Phase != session.PhaseFailed {
		t.Fatalf("phase = %s, want failed", got.Phase)
	}

	// Operator fixes the file type, reprocesses and re-enqueues.
	if _, err := e.sessions.Reprocess(ctx, s.ID); err != nil {
		t.Fatal(err)
	}
	if err := e.objects.Put(ctx, objectstore.UploadKey(s.ID.String()), strings.NewReader(dtLine("M", 100)+"\n")); err != nil {
		t.Fatal(err)
	}
	fileType := schema.FileTypeTDDF
	// Reprocess leaves the session in started; the pipeline walks it
	// forward. Pre-set the file type the operator chose.
	cur, _ := e.sessions.Store().Get(ctx, s.ID)
	if cur.Phase != session.PhaseStarted || cur.Attempts != 0 {
		t.Fatalf("after reprocess: phase=%s attempts=%d", cur.Phase, cur.Attempts)
	}
	if _, err := e.sessions.Advance(ctx, s.ID, session.PhaseUploading, session.Update{FileType: &fileType}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.sessions.Advance(ctx, s.ID, session.PhaseUploaded, session.Update{}); err != nil {
		t.Fatal(err)
	}
	if err := e.queue.Enqueue(ctx, s.ID, session.DefaultPriority, 3); err != nil {
		t.Fatal(err)
	}

	if _, err := e.pipeline.ProcessNext(ctx); err != nil {
		t.Fatal(err)
	}
	got, _ = e.sessions.Store().Get(ctx, s.ID)
	if got.Phase != session.PhaseCompleted {
		t.Errorf("phase = %s (errorDetails=%q), want completed", got.Phase, got.ErrorDetails)
	}
}

func TestIdentifyFileType(t *testing.T) {
	achHeader := "1" + strings.Repeat("0", 93)
	tests := []struct {
		name      string
		filename  string
		firstLine string
		want      string
	}{
		{"tddf by token", "VERMNTSB.6759_TDDF_2400_07112025_003301.TSYSO", "", schema.FileTypeTDDF},
		{"tddf by extension", "daily.tsyso", "", schema.FileTypeTDDF},
		{"ach by name", "ach-settlement.txt", "", schema.FileTypeACH},
		{"ach by header", "settlement.dat", achHeader, schema.FileTypeACH},
		{"integrity by prefix", "report.dat", "IR20250711MERCH", schema.FileTypeIntegrity},
		{"unknown", "mystery.bin", "???", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IdentifyFileType(tt.filename, tt.firstLine); got != tt.want {
				t.Errorf("IdentifyFileType(%q, %q) = %q, want %q", tt.filename, tt.firstLine, got, tt.want)
			}
		})
	}
}

func TestProcessNext_AutoEncodeRunsEnrichment(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	s := uploadedSessionOpts(t, e, "BANK_TDDF_2400_07112025_003.TSYSO", dtLine("M", 100)+"\n", true)

	if _, err := e.pipeline.ProcessNext(ctx); err != nil {
		t.Fatalf("ProcessNext: %v", err)
	}

	entry, err := e.archives.Store().Get(ctx, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if entry.Step6Status != archive.Step6Completed {
		t.Errorf("step6 status = %s, want completed", entry.Step6Status)
	}
	if entry.Step6Attempts != 1 {
		t.Errorf("step6 attempts = %d, want 1", entry.Step6Attempts)
	}
}

// reapedRecords drops the queue item before failing the first
// SaveBatch, simulating a worker that stalled long enough for the
// reaper to remove its item terminally.
type reapedRecords struct {
	RecordStore
	queue *queue.Queue
	raced bool
}

func (r *reapedRecords) SaveBatch(ctx context.Context, fileID uuid.UUID, records []*decoder.DecodedRecord) error {
	if !r.raced {
		r.raced = true
		if err := r.queue.Store().Remove(ctx, fileID, false); err != nil {
			return err
		}
		return fmt.Errorf("worker stalled past the processing timeout")
	}
	return r.RecordStore.SaveBatch(ctx, fileID, records)
}

func TestProcessNext_LostQueueRaceIsBenign(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.pipeline.Records = &reapedRecords{RecordStore: e.records, queue: e.queue}

	s := uploadedSession(t, e, "BANK_TDDF_2400_07112025_004.TSYSO", dtLine("M", 100)+"\n")

	// The attempt fails after the item is already gone; the worker must
	// swallow the lost race instead of surfacing an error that would
	// cancel the whole pool.
	claimed, err := e.pipeline.ProcessNext(ctx)
	if err != nil {
		t.Fatalf("ProcessNext: %v", err)
	}
	if !claimed {
		t.Fatal("expected a claimed item")
	}
	if _, err := e.queue.Store().Get(ctx, s.ID); err == nil {
		t.Error("queue item should remain removed")
	}
}
