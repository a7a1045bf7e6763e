package schema

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// metaSchema constrains schema definition documents submitted through
// the API before they are decoded into a Schema value.
//
//go:embed record_schema.schema.json
var metaSchema string

// ParseDocument validates a JSON schema definition document against the
// embedded meta-schema, decodes it, and runs structural validation.
// The returned schema is not yet registered.
func ParseDocument(doc []byte) (*Schema, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(metaSchema),
		gojsonschema.NewBytesLoader(doc),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to validate schema document: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, fmt.Sprintf("%s: %s", e.Field(), e.Description()))
		}
		return nil, &ValidationError{Schema: "document", Message: strings.Join(msgs, "; ")}
	}

	var s Schema
	if err := json.Unmarshal(doc, &s); err != nil {
		return nil, fmt.Errorf("failed to parse schema document: %w", err)
	}
	if s.Discriminator.Length == 0 {
		s.Discriminator = Discriminator{Offset: 0, Length: 2}
	}
	if err := Validate(&s); err != nil {
		return nil, err
	}
	return &s, nil
}
