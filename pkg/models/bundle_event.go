package models

import "time"

// BundleClosedEvent notifies a receiving actor that a bundle became ready to
// peek. Best-effort; the bundle is discoverable through peek either way.
type BundleClosedEvent struct {
	EventType      string    `json:"event_type"` // "bundle_closed"
	BundleID       string    `json:"bundle_id"`
	ReceiverNumber string    `json:"receiver_number"`
	ReceiverRole   string    `json:"receiver_role"`
	DocumentType   string    `json:"document_type"`
	Category       string    `json:"category"`
	MessageCount   int       `json:"message_count"`
	ClosedAt       time.Time `json:"closed_at"`
}

const (
	EventTypeBundleClosed = "bundle_closed"
)
