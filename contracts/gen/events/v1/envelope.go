package v1

import (
	"encoding/json"
	"errors"
	"time"
)

var ErrMalformedEnvelope = errors.New("malformed event envelope")

// Envelope is the canonical, versioned event envelope published by the
// marketplace ledger. Fields are append-only.
type Envelope struct {
	EventID          string          `json:"event_id"`
	EventType        string          `json:"event_type"`
	OccurredAt       time.Time       `json:"occurred_at"`
	SourceService    string          `json:"source_service"`
	TraceID          string          `json:"trace_id,omitempty"`
	SchemaVersion    int             `json:"schema_version"`
	PartitionKeyPath string          `json:"partition_key_path"`
	PartitionKey     string          `json:"partition_key"`
	Data             json.RawMessage `json:"data"`
}

// Decode parses payload and rejects envelopes missing identity fields.
func Decode(payload []byte) (Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return Envelope{}, errors.Join(ErrMalformedEnvelope, err)
	}
	if envelope.EventID == "" || envelope.EventType == "" || envelope.SchemaVersion <= 0 {
		return Envelope{}, ErrMalformedEnvelope
	}
	return envelope, nil
}
