// Package jsonutil holds small decoding helpers shared by the external HTTP
// clients. Upstream services are inconsistent about whether a list endpoint
// returns the bare array or an object wrapping it in a named field, so every
// client needs the same tolerant decode.
package jsonutil

import (
	"encoding/json"
	"fmt"
)

// DecodeListOrField unmarshals body into a []T, accepting either a bare JSON
// array or a JSON object with field containing the array. This mirrors the
// knowledge-graph and agent-runtime APIs, which return "either the top-level
// response or a named field" depending on endpoint and version.
func DecodeListOrField[T any](body []byte, field string) ([]T, error) {
	var list []T
	if err := json.Unmarshal(body, &list); err == nil {
		return list, nil
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, fmt.Errorf("jsonutil: response is neither a list nor an object: %w", err)
	}

	raw, ok := wrapper[field]
	if !ok {
		// Field absent is not an error: treat as an empty result set.
		return nil, nil
	}

	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("jsonutil: failed to unmarshal field %q: %w", field, err)
	}
	return list, nil
}
