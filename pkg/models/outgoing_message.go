package models

// OutgoingMessagePayload is the envelope payload carried on the intake topic
// for one outgoing market message. Payload content is the serialized series
// data the sending process produced; it is never inspected here.
type OutgoingMessagePayload struct {
	ReceiverNumber     string `json:"receiver_number"`
	ReceiverRole       string `json:"receiver_role"`
	DocumentType       string `json:"document_type"`
	BusinessReason     string `json:"business_reason"`
	ProcessType        string `json:"process_type"`
	GridAreaCode       string `json:"grid_area_code,omitempty"`
	RelatedToMessageID string `json:"related_to_message_id,omitempty"`
	ExternalID         string `json:"external_id"`
	Content            []byte `json:"content"`
}
