// Package schema holds versioned fixed-width record layouts and the
// registry that resolves them for decoding.
package schema

import (
	"fmt"

	"github.com/google/uuid"
)

// FieldKind selects the decoding rule for a fixed-width field.
type FieldKind string

const (
	KindString  FieldKind = "string"
	KindInteger FieldKind = "integer"
	// KindDecimal is a numeric field with an implied decimal point,
	// e.g. a 9-digit amount with scale 2 stored in cents.
	KindDecimal FieldKind = "fixedDecimal"
	KindDate    FieldKind = "date"
)

// DefaultDateFormat is the fixed date layout used when a date field
// does not specify one (YYYYMMDD).
const DefaultDateFormat = "20060102"

// FieldDescriptor describes one field slice within a record type.
type FieldDescriptor struct {
	Name   string    `json:"name"`
	Start  int       `json:"start"`
	Length int       `json:"length"`
	Kind   FieldKind `json:"kind"`
	// Scale is the implied decimal scale for fixedDecimal fields.
	Scale int `json:"scale,omitempty"`
	// Format is the Go time layout for date fields; empty means
	// DefaultDateFormat.
	Format string `json:"format,omitempty"`
}

// End returns the exclusive end offset of the field slice.
func (f FieldDescriptor) End() int { return f.Start + f.Length }

// RecordLayout is the ordered field list for one record type, plus the
// record's fixed width (0 means unconstrained).
type RecordLayout struct {
	Width  int               `json:"width,omitempty"`
	Fields []FieldDescriptor `json:"fields"`
}

// Discriminator locates the record-type code within a raw line.
type Discriminator struct {
	Offset int `json:"offset"`
	Length int `json:"length"`
}

// Schema is a named, versioned set of record layouts for one file type.
// Schemas are immutable once registered; adding fields requires
// registering a new version (append-only versioning).
type Schema struct {
	ID            uuid.UUID               `json:"id"`
	Name          string                  `json:"name" validate:"required"`
	FileType      string                  `json:"file_type" validate:"required"`
	Version       int                     `json:"version" validate:"min=1"`
	Discriminator Discriminator           `json:"discriminator"`
	RecordTypes   map[string]RecordLayout `json:"record_types" validate:"required,min=1"`
	IsActive      bool                    `json:"is_active"`
}

// RecordType reads the discriminator code from a raw line. Returns
// false if the line is shorter than the discriminator window.
func (s *Schema) RecordType(line string) (string, bool) {
	end := s.Discriminator.Offset + s.Discriminator.Length
	if len(line) < end {
		return "", false
	}
	return line[s.Discriminator.Offset:end], true
}

// Layout returns the field layout for a record type code.
func (s *Schema) Layout(recordType string) (RecordLayout, bool) {
	l, ok := s.RecordTypes[recordType]
	return l, ok
}

// ValidationError reports an invalid schema at registration time.
// Schemas that fail validation never reach decode time.
type ValidationError struct {
	Schema     string
	RecordType string
	Field      string
	Message    string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("schema %s: record type %s: field %s: %s", e.Schema, e.RecordType, e.Field, e.Message)
	}
	if e.RecordType != "" {
		return fmt.Sprintf("schema %s: record type %s: %s", e.Schema, e.RecordType, e.Message)
	}
	return fmt.Sprintf("schema %s: %s", e.Schema, e.Message)
}

// ErrSchemaNotFound indicates no active schema matched a resolve call.
type ErrSchemaNotFound struct {
	FileType string
	Version  int
}

func (e *ErrSchemaNotFound) Error() string {
	if e.Version > 0 {
		return fmt.Sprintf("no schema registered for file type %s version %d", e.FileType, e.Version)
	}
	return fmt.Sprintf("no active schema registered for file type %s", e.FileType)
}
