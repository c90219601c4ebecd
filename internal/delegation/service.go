package delegation

import (
	"context"
	"fmt"
	"time"

	"edihub/internal/logger"
	"edihub/internal/outbox"
	pkgerrors "edihub/pkg/errors"
	"edihub/pkg/metrics"
	"edihub/pkg/tracing"
)

// Delegation grants are configured per producing process; processes outside
// this set always deliver to the original receiver.
var delegableProcesses = map[outbox.ProcessType]bool{
	outbox.ProcessReceiveEnergyResults:    true,
	outbox.ProcessReceiveWholesaleResults: true,
	outbox.ProcessReceiveMeteredData:      true,
	outbox.ProcessMissingMeasurementLog:   true,
}

// Resolver rewrites a message's receiver when an active delegation covers
// its grid area and producing process.
type Resolver struct {
	repo    Repository
	enabled bool
	logger  logger.Logger
	now     func() time.Time
}

func NewResolver(repo Repository, enabled bool, log logger.Logger) *Resolver {
	return &Resolver{
		repo:    repo,
		enabled: enabled,
		logger:  log,
		now:     time.Now,
	}
}

// Resolve returns the receiver the message must be delivered to. The message
// itself is never mutated; the enqueue service applies the returned receiver.
//
// A message answering the actor's own request is exempt: the original
// requester must stay the receiver regardless of any configured grant.
// Finding no delegation is not an error. A delegable message without a grid
// area cannot be matched against grants at all, which is a configuration
// fault upstream and reported as such.
func (r *Resolver) Resolve(ctx context.Context, msg *outbox.OutgoingMessage) (outbox.Receiver, error) {
	if !r.enabled {
		return msg.Receiver, nil
	}

	ctx, span := tracing.GetTracer("outbox-service").Start(ctx, "delegation.resolve")
	defer span.End()

	if msg.IsResponseToOwnRequest() {
		metrics.DelegationLookupsTotal.WithLabelValues("exempt").Inc()
		return msg.Receiver, nil
	}
	if !delegableProcesses[msg.ProcessType] {
		metrics.DelegationLookupsTotal.WithLabelValues("not_delegable").Inc()
		return msg.Receiver, nil
	}
	if msg.GridAreaCode == "" {
		metrics.DelegationLookupsTotal.WithLabelValues("error").Inc()
		return outbox.Receiver{}, pkgerrors.ErrValidation.
			WithDetail("message", fmt.Sprintf("message %s from process %s has no grid area code, cannot evaluate delegation", msg.ID, msg.ProcessType))
	}

	d, err := r.repo.GetDelegationFor(ctx, msg.Receiver, msg.GridAreaCode, msg.ProcessType, r.now())
	if err != nil {
		metrics.DelegationLookupsTotal.WithLabelValues("error").Inc()
		return outbox.Receiver{}, fmt.Errorf("delegation lookup for message %s failed: %w", msg.ID, err)
	}
	if d == nil {
		metrics.DelegationLookupsTotal.WithLabelValues("none").Inc()
		return msg.Receiver, nil
	}

	metrics.DelegationLookupsTotal.WithLabelValues("applied").Inc()
	r.logger.InfowCtx(ctx, "Delegation applied",
		"message_id", msg.ID,
		"delegated_by", d.DelegatedBy.String(),
		"delegated_to", d.DelegatedTo.String(),
		"grid_area", d.GridAreaCode,
		"process_type", d.ProcessType,
	)
	return d.DelegatedTo, nil
}
