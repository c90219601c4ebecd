package outbox

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"edihub/internal/logger"
	"edihub/pkg/metrics"
	"edihub/pkg/tracing"
)

// Scheduler periodically sweeps open bundles and closes the ones that are
// full or whose oldest message has been waiting past the category's flush
// threshold. Closed bundles become visible to Peek.
type Scheduler struct {
	store       Store
	policies    *PolicyTable
	notifier    Notifier
	logger      logger.Logger
	interval    time.Duration
	concurrency int
	now         func() time.Time
}

type SchedulerOption func(*Scheduler)

func WithSchedulerNotifier(notifier Notifier) SchedulerOption {
	return func(s *Scheduler) { s.notifier = notifier }
}

func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

func NewScheduler(store Store, policies *PolicyTable, log logger.Logger, interval time.Duration, concurrency int, opts ...SchedulerOption) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	s := &Scheduler{
		store:       store,
		policies:    policies,
		notifier:    NopNotifier{},
		logger:      log,
		interval:    interval,
		concurrency: concurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes sweeps on the configured interval until the context is
// cancelled. One sweep runs immediately on startup.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Infow("Bundling scheduler started",
		"interval", s.interval.String(),
		"concurrency", s.concurrency,
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Infow("Bundling scheduler stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.sweep(ctx)
}

// sweep lists every open bundle and fans the close decision out across a
// bounded worker group. A failure on one bundle is logged and never cancels
// the siblings; the next tick retries it.
func (s *Scheduler) sweep(ctx context.Context) {
	ctx, span := tracing.GetTracer("outbox-service").Start(ctx, "outbox.scheduler.sweep")
	defer span.End()
	start := s.now()

	refs, err := s.store.ListOpenBundles(ctx)
	if err != nil {
		s.logger.ErrorwCtx(ctx, "Failed to list open bundles", "error", err)
		metrics.SchedulerRunsTotal.WithLabelValues("error").Inc()
		return
	}
	if len(refs) == 0 {
		metrics.SchedulerRunsTotal.WithLabelValues("success").Inc()
		return
	}

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, ref := range refs {
		ref := ref
		g.Go(func() error {
			groupStart := s.now()
			if err := s.closeIfReady(ctx, ref); err != nil {
				s.logger.ErrorwCtx(ctx, "Failed to evaluate open bundle",
					"bundle_id", ref.BundleID,
					"receiver", ref.Receiver.String(),
					"error", err,
				)
			}
			metrics.SchedulerGroupDuration.Observe(s.now().Sub(groupStart).Seconds())
			return nil
		})
	}
	_ = g.Wait()

	metrics.SchedulerRunsTotal.WithLabelValues("success").Inc()
	s.logger.DebugwCtx(ctx, "Bundling sweep finished",
		"open_bundles", len(refs),
		"duration", s.now().Sub(start).String(),
	)
}

func (s *Scheduler) closeIfReady(ctx context.Context, ref OpenBundleRef) error {
	policy, err := s.policies.Lookup(ref.DocumentType)
	if err != nil {
		return err
	}

	var (
		closed *Bundle
		reason CloseReason
	)
	err = s.store.InTx(ctx, func(ctx context.Context, tx StoreTx) error {
		bundle, err := tx.LockBundle(ctx, ref.BundleID)
		if err != nil {
			return err
		}
		// An enqueue rollover or a peek may have closed it since listing.
		if bundle == nil || bundle.State != BundleOpen {
			return nil
		}

		switch {
		case bundle.MessageCount >= policy.MaxSize:
			reason = CloseReasonFull
		case policy.FlushThreshold > 0 && bundle.MessageCount > 0:
			oldest, found, err := tx.OldestMessageCreatedAt(ctx, bundle.ID)
			if err != nil {
				return err
			}
			if !found || s.now().UTC().Sub(oldest) < policy.FlushThreshold {
				return nil
			}
			reason = CloseReasonAged
		default:
			return nil
		}

		if err := tx.CloseBundle(ctx, bundle.ID, s.now().UTC()); err != nil {
			return err
		}
		closed = bundle
		return nil
	})
	if err != nil || closed == nil {
		return err
	}

	metrics.BundlesClosedTotal.WithLabelValues(string(reason)).Inc()
	metrics.BundleSizeMessages.Observe(float64(closed.MessageCount))
	s.logger.InfowCtx(ctx, "Bundle closed",
		"bundle_id", closed.ID,
		"receiver", ref.Receiver.String(),
		"document_type", string(ref.DocumentType),
		"reason", string(reason),
		"message_count", closed.MessageCount,
	)
	if err := s.notifier.BundleClosed(ctx, ref.Receiver, closed); err != nil {
		s.logger.WarnwCtx(ctx, "Failed to publish bundle-closed notification",
			"bundle_id", closed.ID,
			"error", err,
		)
	}
	return nil
}
