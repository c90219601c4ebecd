package delegation

import (
	"time"

	"github.com/google/uuid"

	"edihub/internal/outbox"
)

// Delegation is a time-bounded grant allowing one actor to receive messages
// on behalf of another for a grid area and process. Grants are owned by the
// master-data collaborator; this core only reads them. Overlapping grants
// are resolved by sequence number, highest wins.
type Delegation struct {
	ID             uuid.UUID
	DelegatedBy    outbox.Receiver
	DelegatedTo    outbox.Receiver
	GridAreaCode   string
	ProcessType    outbox.ProcessType
	StartsAt       time.Time
	StopsAt        time.Time
	SequenceNumber int
}

func (d *Delegation) IsActiveAt(t time.Time) bool {
	return !t.Before(d.StartsAt) && t.Before(d.StopsAt)
}
