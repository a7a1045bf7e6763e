// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/mmsops/mms-ingest/internal/archive"
	"github.com/mmsops/mms-ingest/internal/decoder"
	"github.com/mmsops/mms-ingest/internal/queue"
	"github.com/mmsops/mms-ingest/internal/session"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		// Truncate long lines
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintQueueStatus outputs the current queue occupancy and busy state.
func (p *Printer) PrintQueueStatus(stats queue.Stats, maxConcurrent int) {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Active:     %d / %d workers\n", stats.Active, maxConcurrent))
	sb.WriteString(fmt.Sprintf("Waiting:    %d\n", stats.Waiting))
	sb.WriteString(fmt.Sprintf("Completed:  %d\n", stats.Completed))
	sb.WriteString(fmt.Sprintf("Failed:     %d", stats.Failed))
	if stats.Active >= maxConcurrent && maxConcurrent > 0 {
		sb.WriteString("\n\nQueue is at capacity")
	}

	p.printBox("PROCESSING QUEUE", sb.String())
}

// PrintSessions outputs a summary of upload sessions, truncated to the
// first few.
func (p *Printer) PrintSessions(sessions []*session.Session, total int) {
	if len(sessions) == 0 {
		p.printBox("UPLOAD SESSIONS", "No sessions found")
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Showing %d of %d sessions:\n\n", len(sessions), total))

	count := min(len(sessions), maxItemsToShow)
	for i := 0; i < count; i++ {
		s := sessions[i]
		name := s.Filename
		if len(name) > 40 {
			name = name[:37] + "..."
		}
		sb.WriteString(fmt.Sprintf("• %s\n", name))
		sb.WriteString(fmt.Sprintf("  %s", s.Phase))
		if s.BusinessDay != "" {
			sb.WriteString(fmt.Sprintf("  day=%s", s.BusinessDay))
		}
		if s.ErrorRecords > 0 {
			sb.WriteString(fmt.Sprintf("  errors=%d", s.ErrorRecords))
		}
		sb.WriteString("\n")
		if i < count-1 {
			sb.WriteString("\n")
		}
	}

	if len(sessions) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("\n... and %d more sessions", len(sessions)-maxItemsToShow))
	}

	p.printBox("UPLOAD SESSIONS", sb.String())
}

// PrintDecodeSummary outputs per-record-type counts and the first few
// line errors from a decode run.
func (p *Printer) PrintDecodeSummary(records []*decoder.DecodedRecord) {
	if len(records) == 0 {
		p.printBox("DECODE SUMMARY", "No records decoded")
		return
	}

	byType := map[string]int{}
	var withErrors []*decoder.DecodedRecord
	passthrough := 0
	for _, r := range records {
		byType[r.RecordType]++
		if len(r.FieldErrors) > 0 {
			withErrors = append(withErrors, r)
		}
		if r.Passthrough {
			passthrough++
		}
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Total records: %d\n\n", len(records)))
	for code, n := range byType {
		label := code
		if label == "" {
			label = "(unknown)"
		}
		sb.WriteString(fmt.Sprintf("  %-10s %d\n", label, n))
	}
	if passthrough > 0 {
		sb.WriteString(fmt.Sprintf("\nPassthrough lines: %d\n", passthrough))
	}

	if len(withErrors) > 0 {
		sb.WriteString(fmt.Sprintf("\nLines with field errors: %d\n", len(withErrors)))
		count := min(len(withErrors), 3)
		for i := 0; i < count; i++ {
			r := withErrors[i]
			msg := r.DecodeError()
			if len(msg) > 45 {
				msg = msg[:42] + "..."
			}
			sb.WriteString(fmt.Sprintf("⚠ line %d: %s\n", r.LineNumber, msg))
		}
		if len(withErrors) > 3 {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(withErrors)-3))
		}
	}

	p.printBox("DECODE SUMMARY", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintArchives outputs recent archive entries with their Step 6 state.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintArchives(entries []*archive.Entry) {
	if len(entries) == 0 {
		fmt.Fprintf(p.out, "┌%s┐\n", strings.Repeat("─", boxWidth-2))
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, "NO ARCHIVED FILES")
		fmt.Fprintf(p.out, "└%s┘\n", strings.Repeat("─", boxWidth-2))
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Archived files: %d\n\n", len(entries)))

	count := min(len(entries), maxItemsToShow)
	for i := 0; i < count; i++ {
		e := entries[i]
		name := e.ArchiveFilename
		if len(name) > 40 {
			name = name[:37] + "..."
		}
		sb.WriteString(fmt.Sprintf("• %s\n", name))
		sb.WriteString(fmt.Sprintf("  day=%s records=%d step6=%s\n", e.BusinessDay, e.RecordCount, e.Step6Status))
		if i < count-1 {
			sb.WriteString("\n")
		}
	}

	if len(entries) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("\n... and %d more", len(entries)-maxItemsToShow))
	}

	p.printBox("ARCHIVE", sb.String())
}
