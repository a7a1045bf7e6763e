package schema

import (
	"sort"
)

// Validate checks the structural invariants of a schema: a usable
// discriminator window, non-empty layouts, in-range field slices, and
// no overlapping field ranges within a record type.
func Validate(s *Schema) error {
	if s.Name == "" {
		return &ValidationError{Schema: s.Name, Message: "name is required"}
	}
	if s.FileType == "" {
		return &ValidationError{Schema: s.Name, Message: "file type is required"}
	}
	if s.Version < 1 {
		return &ValidationError{Schema: s.Name, Message: "version must be >= 1"}
	}
	if s.Discriminator.Offset < 0 || s.Discriminator.Length < 1 {
		return &ValidationError{Schema: s.Name, Message: "discriminator window is invalid"}
	}
	if len(s.RecordTypes) == 0 {
		return &ValidationError{Schema: s.Name, Message: "at least one record type is required"}
	}

	for code, layout := range s.RecordTypes {
		if err := validateLayout(s.Name, code, layout); err != nil {
			return err
		}
	}
	return nil
}

func validateLayout(schemaName, code string, layout RecordLayout) error {
	if len(layout.Fields) == 0 {
		return &ValidationError{Schema: schemaName, RecordType: code, Message: "no fields defined"}
	}

	seen := make(map[string]bool, len(layout.Fields))
	for _, f := range layout.Fields {
		if f.Name == "" {
			return &ValidationError{Schema: schemaName, RecordType: code, Message: "field with empty name"}
		}
		if seen[f.Name] {
			return &ValidationError{Schema: schemaName, RecordType: code, Field: f.Name, Message: "duplicate field name"}
		}
		seen[f.Name] = true

		if f.Start < 0 || f.Length < 1 {
			return &ValidationError{Schema: schemaName, RecordType: code, Field: f.Name, Message: "invalid byte range"}
		}
		if layout.Width > 0 && f.End() > layout.Width {
			return &ValidationError{Schema: schemaName, RecordType: code, Field: f.Name, Message: "field extends past record width"}
		}
		switch f.Kind {
		case KindString, KindInteger, KindDate:
		case KindDecimal:
			if f.Scale < 0 {
				return &ValidationError{Schema: schemaName, RecordType: code, Field: f.Name, Message: "negative decimal scale"}
			}
		default:
			return &ValidationError{Schema: schemaName, RecordType: code, Field: f.Name, Message: "unknown field kind " + string(f.Kind)}
		}
	}

	// Sort by start offset and check adjacent pairs; ranges within one
	// record type must never overlap.
	sorted := make([]FieldDescriptor, len(layout.Fields))
	copy(sorted, layout.Fields)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Start < sorted[i-1].End() {
			return &ValidationError{
				Schema:     schemaName,
				RecordType: code,
				Field:      sorted[i].Name,
				Message:    "overlaps field " + sorted[i-1].Name,
			}
		}
	}
	return nil
}
