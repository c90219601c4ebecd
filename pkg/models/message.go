package models

import (
	"encoding/json"
	"time"
)

type MessageEnvelope struct {
	ID        string          `json:"id"`
	Source    string          `json:"source"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`  // Business data
	Metadata  Metadata        `json:"metadata"` // Pipeline metadata (trace_id)
}

type Metadata struct {
	TraceID string                 `json:"trace_id,omitempty"`
	Extra   map[string]interface{} `json:"extra,omitempty"`
}
