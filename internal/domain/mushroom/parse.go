package mushroom

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

var requiredFields = []string{"species", "edibility", "description", "confidence"}

// ParseAnalysis turns raw model output into a validated Analysis.
//
// Text that is not exactly one JSON object is a malformed response. A well
// formed object with a missing, mistyped or out-of-range field is a
// validation failure. Field values are returned untouched.
func ParseAnalysis(raw string) (Analysis, error) {
	const op = "mushroom.ParseAnalysis"

	text := strings.TrimSpace(raw)
	if text == "" {
		return Analysis{}, MalformedFailure(op, "empty response", nil)
	}
	if !strings.HasPrefix(text, "{") || !strings.HasSuffix(text, "}") {
		return Analysis{}, MalformedFailure(op, "response is not a single object literal", nil)
	}

	fields, err := decodeObject(text)
	if err != nil {
		return Analysis{}, MalformedFailure(op, "response is not valid JSON", err)
	}

	for _, name := range requiredFields {
		v, ok := fields[name]
		if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return Analysis{}, ValidationFailure(op, fmt.Sprintf("missing field %q", name))
		}
	}

	var a Analysis
	if err := json.Unmarshal(fields["species"], &a.Species); err != nil {
		return Analysis{}, ValidationFailure(op, "species must be a string")
	}
	if err := json.Unmarshal(fields["edibility"], &a.Edibility); err != nil {
		return Analysis{}, ValidationFailure(op, err.Error())
	}
	if err := json.Unmarshal(fields["description"], &a.Description); err != nil {
		return Analysis{}, ValidationFailure(op, "description must be a string")
	}
	if err := json.Unmarshal(fields["confidence"], &a.Confidence); err != nil {
		return Analysis{}, ValidationFailure(op, "confidence must be a number")
	}

	if err := a.Validate(); err != nil {
		return Analysis{}, err
	}
	return a, nil
}

// decodeObject requires exactly one JSON object with nothing after it.
func decodeObject(text string) (map[string]json.RawMessage, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	var fields map[string]json.RawMessage
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("trailing content after object")
	}
	return fields, nil
}
