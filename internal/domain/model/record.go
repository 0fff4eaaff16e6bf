package model

import (
	"bytes"
	"encoding/json"
	"fmt"

	"jesusia-companion/internal/domain"
)

// RecordVersion is the schema version written for JSON-valued keys.
const RecordVersion = 1

type record struct {
	V    int             `json:"v"`
	Data json.RawMessage `json:"data"`
}

// EncodeRecord wraps v in the versioned envelope.
func EncodeRecord(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(record{V: RecordVersion, Data: data})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeRecord unwraps raw into out and returns the schema version found.
// Payloads written without an envelope are read as version 0.
func DecodeRecord(raw string, out any) (int, error) {
	b := bytes.TrimSpace([]byte(raw))
	if len(b) > 0 && b[0] == '{' {
		var r record
		if err := json.Unmarshal(b, &r); err == nil && r.V > 0 && r.Data != nil {
			if r.V > RecordVersion {
				return r.V, fmt.Errorf("%w: %d", domain.ErrUnsupportedSchema, r.V)
			}
			return r.V, json.Unmarshal(r.Data, out)
		}
	}
	return 0, json.Unmarshal(b, out)
}
