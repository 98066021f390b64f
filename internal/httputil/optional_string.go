package httputil

import (
	"bytes"
	"encoding/json"
)

// OptionalString tracks presence and value for JSON merge-patch semantics
// (RFC 7396), which *string alone cannot express:
//   - Present=false: field absent (leave unchanged)
//   - Present=true, Value=nil: field is JSON null (clear)
//   - Present=true, Value set: field has a value
type OptionalString struct {
	Present bool
	Value   *string
}

// UnmarshalJSON is only invoked when the field appears in the payload, so
// its mere execution records presence.
func (o *OptionalString) UnmarshalJSON(data []byte) error {
	o.Present = true

	if string(bytes.TrimSpace(data)) == "null" {
		o.Value = nil
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}
