package decoder

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmsops/mms-ingest/internal/schema"
)

// EncodeField renders a decoded value back into its fixed-width form:
// strings left-justified and space-padded, numerics right-justified and
// zero-padded, dates in the field's layout. Values wider than the field
// are an error, never silently truncated.
func EncodeField(f schema.FieldDescriptor, value any) (string, error) {
	var body string
	switch f.Kind {
	case schema.KindString:
		s, ok := value.(string)
		if !ok {
			return "", fmt.Errorf("field %s: expected string, got %T", f.Name, value)
		}
		if len(s) > f.Length {
			return "", fmt.Errorf("field %s: value %q exceeds width %d", f.Name, s, f.Length)
		}
		return s + strings.Repeat(" ", f.Length-len(s)), nil

	case schema.KindInteger:
		n, ok := value.(int64)
		if !ok {
			return "", fmt.Errorf("field %s: expected int64, got %T", f.Name, value)
		}
		body = fmt.Sprintf("%0*d", f.Length, n)

	case schema.KindDecimal:
		d, ok := value.(decimal.Decimal)
		if !ok {
			return "", fmt.Errorf("field %s: expected decimal, got %T", f.Name, value)
		}
		body = fmt.Sprintf("%0*d", f.Length, d.Shift(int32(f.Scale)).IntPart())

	case schema.KindDate:
		t, ok := value.(time.Time)
		if !ok {
			return "", fmt.Errorf("field %s: expected time, got %T", f.Name, value)
		}
		layout := f.Format
		if layout == "" {
			layout = schema.DefaultDateFormat
		}
		body = t.Format(layout)

	default:
		return "", fmt.Errorf("field %s: unknown kind %s", f.Name, f.Kind)
	}

	if len(body) > f.Length {
		return "", fmt.Errorf("field %s: encoded value %q exceeds width %d", f.Name, body, f.Length)
	}
	return body, nil
}

// EncodeRecord re-emits a decoded record as a fixed-width line using
// the layout for its record type. Positions not covered by any field
// (or belonging to fields that failed to decode) are space-filled.
func EncodeRecord(rec *DecodedRecord, s *schema.Schema) (string, error) {
	layout, ok := s.Layout(rec.RecordType)
	if !ok {
		return "", fmt.Errorf("record type %s has no layout", rec.RecordType)
	}

	width := layout.Width
	for _, f := range layout.Fields {
		if f.End() > width {
			width = f.End()
		}
	}

	line := []byte(strings.Repeat(" ", width))
	copy(line[s.Discriminator.Offset:], rec.RecordType)
	for _, f := range layout.Fields {
		value, ok := rec.Fields[f.Name]
		if !ok {
			continue
		}
		encoded, err := EncodeField(f, value)
		if err != nil {
			return "", err
		}
		copy(line[f.Start:f.End()], encoded)
	}
	return string(line), nil
}
