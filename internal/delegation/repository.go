package delegation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"edihub/internal/outbox"
)

// Repository looks up an active delegation for a receiver. Absence is a
// normal outcome and reported as (nil, nil).
type Repository interface {
	GetDelegationFor(ctx context.Context, receiver outbox.Receiver, gridArea string, process outbox.ProcessType, at time.Time) (*Delegation, error)
}

type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetDelegationFor(ctx context.Context, receiver outbox.Receiver, gridArea string, process outbox.ProcessType, at time.Time) (*Delegation, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, delegated_by_number, delegated_by_role, delegated_to_number, delegated_to_role,
			grid_area_code, process_type, starts_at, stops_at, sequence_number
		FROM delegations
		WHERE delegated_by_number = $1 AND delegated_by_role = $2
		  AND grid_area_code = $3 AND process_type = $4
		  AND starts_at <= $5 AND stops_at > $5
		ORDER BY sequence_number DESC
		LIMIT 1
	`, receiver.ActorNumber, receiver.ActorRole, gridArea, process, at)

	var d Delegation
	err := row.Scan(&d.ID, &d.DelegatedBy.ActorNumber, &d.DelegatedBy.ActorRole,
		&d.DelegatedTo.ActorNumber, &d.DelegatedTo.ActorRole,
		&d.GridAreaCode, &d.ProcessType, &d.StartsAt, &d.StopsAt, &d.SequenceNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up delegation: %w", err)
	}
	return &d, nil
}
