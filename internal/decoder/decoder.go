// Package decoder turns raw fixed-width lines into typed records using
// a schema's field descriptors.
package decoder

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmsops/mms-ingest/internal/schema"
)

// RecordTooShortError reports a line shorter than a field's byte range.
type RecordTooShortError struct {
	Field  string
	Needed int
	Actual int
}

func (e *RecordTooShortError) Error() string {
	return fmt.Sprintf("record too short for field %s: need %d bytes, have %d", e.Field, e.Needed, e.Actual)
}

// FieldDecodeError reports a field whose raw substring failed type
// conversion. The offending raw value is preserved for audit.
type FieldDecodeError struct {
	Field string
	Raw   string
	Cause error
}

func (e *FieldDecodeError) Error() string {
	return fmt.Sprintf("field %s: cannot decode %q: %v", e.Field, e.Raw, e.Cause)
}

func (e *FieldDecodeError) Unwrap() error { return e.Cause }

// DecodedRecord is the result of decoding one line. Records with field
// errors still carry every successfully decoded field; callers decide
// whether to count them as processed or errored. Immutable once
// produced.
type DecodedRecord struct {
	FileID      uuid.UUID
	LineNumber  int
	RecordType  string
	RawLine     string
	Fields      map[string]any
	FieldErrors []error
	// Passthrough marks lines whose discriminator matched no layout
	// (trailers, vendor padding). They are kept raw, never fatal.
	Passthrough bool
}

// DecodeError renders the field errors as a single human-readable
// string, empty when the record decoded cleanly.
func (r *DecodedRecord) DecodeError() string {
	if len(r.FieldErrors) == 0 {
		return ""
	}
	msgs := make([]string, len(r.FieldErrors))
	for i, err := range r.FieldErrors {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Decode decodes a single raw line against a schema. Decoding is
// stateless across lines; the caller owns the line counter, so a
// restart resumes from the last durably recorded line number.
func Decode(fileID uuid.UUID, lineNumber int, line string, s *schema.Schema) *DecodedRecord {
	rec := &DecodedRecord{
		FileID:     fileID,
		LineNumber: lineNumber,
		RawLine:    line,
		Fields:     map[string]any{},
	}

	code, ok := s.RecordType(line)
	if !ok {
		rec.Passthrough = true
		return rec
	}
	rec.RecordType = code

	layout, ok := s.Layout(code)
	if !ok {
		rec.Passthrough = true
		return rec
	}

	for _, f := range layout.Fields {
		if len(line) < f.End() {
			rec.FieldErrors = append(rec.FieldErrors, &RecordTooShortError{
				Field:  f.Name,
				Needed: f.End(),
				Actual: len(line),
			})
			continue
		}
		raw := line[f.Start:f.End()]
		value, err := decodeField(f, raw)
		if err != nil {
			rec.FieldErrors = append(rec.FieldErrors, err)
			continue
		}
		rec.Fields[f.Name] = value
	}
	return rec
}

func decodeField(f schema.FieldDescriptor, raw string) (any, error) {
	switch f.Kind {
	case schema.KindString:
		return strings.TrimSpace(raw), nil

	case schema.KindInteger:
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			return nil, &FieldDecodeError{Field: f.Name, Raw: raw, Cause: fmt.Errorf("empty numeric field")}
		}
		n, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil {
			return nil, &FieldDecodeError{Field: f.Name, Raw: raw, Cause: err}
		}
		return n, nil

	case schema.KindDecimal:
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			return nil, &FieldDecodeError{Field: f.Name, Raw: raw, Cause: fmt.Errorf("empty amount field")}
		}
		d, err := decimal.NewFromString(trimmed)
		if err != nil {
			return nil, &FieldDecodeError{Field: f.Name, Raw: raw, Cause: err}
		}
		return d.Shift(int32(-f.Scale)), nil

	case schema.KindDate:
		layout := f.Format
		if layout == "" {
			layout = schema.DefaultDateFormat
		}
		trimmed := strings.TrimSpace(raw)
		t, err := time.Parse(layout, trimmed)
		if err != nil {
			return nil, &FieldDecodeError{Field: f.Name, Raw: raw, Cause: err}
		}
		return t, nil

	default:
		return nil, &FieldDecodeError{Field: f.Name, Raw: raw, Cause: fmt.Errorf("unknown field kind %s", f.Kind)}
	}
}
