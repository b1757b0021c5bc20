package outbox

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sweshisj/HealthcareApp/internal/domain"
)

const publishTimeout = 5 * time.Second

// Recorder counts re-published claims.
type Recorder interface {
	Republished(n int)
}

type nopRecorder struct{}

func (nopRecorder) Republished(int) {}

// Config tunes a Republisher.
type Config struct {
	Interval    time.Duration // Time between sweeps
	GracePeriod time.Duration // Minimum claim age, leaves room for the submit path's own publish
	BatchSize   int           // Claims per sweep
}

// Republisher re-publishes claim-submitted events for Pending claims that
// were stored but never confirmed by the broker.
type Republisher struct {
	claims    domain.ClaimRepository
	txManager domain.TransactionManager
	publisher domain.EventPublisher
	cfg       Config
	clock     domain.Clock
	recorder  Recorder
	logger    *zap.Logger
}

// NewRepublisher creates a new Republisher.
func NewRepublisher(
	claims domain.ClaimRepository,
	txManager domain.TransactionManager,
	publisher domain.EventPublisher,
	cfg Config,
	clock domain.Clock,
	recorder Recorder,
	logger *zap.Logger,
) *Republisher {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 100
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Republisher{
		claims:    claims,
		txManager: txManager,
		publisher: publisher,
		cfg:       cfg,
		clock:     clock,
		recorder:  recorder,
		logger:    logger,
	}
}

// Run sweeps immediately and then every Interval until ctx is cancelled.
func (r *Republisher) Run(ctx context.Context) error {
	r.logger.Info("Republisher started",
		zap.Duration("interval", r.cfg.Interval),
		zap.Duration("grace_period", r.cfg.GracePeriod),
	)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("Republish sweep failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			r.logger.Info("Republisher stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce re-publishes one batch and returns how many claims were published
// and marked.
//
// The batch rows stay locked for the duration of the sweep, so concurrent
// republishers split the backlog instead of publishing it twice. The sweep
// stops at the first publish failure since the broker is most likely down;
// claims marked before it are still committed.
func (r *Republisher) RunOnce(ctx context.Context) (int, error) {
	marked := 0
	cutoff := r.clock.Now().Add(-r.cfg.GracePeriod)

	var publishErr error
	err := r.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		claims, err := r.claims.ListUnpublished(ctx, cutoff, r.cfg.BatchSize)
		if err != nil {
			return err
		}

		for _, claim := range claims {
			if err := r.publish(ctx, claim); err != nil {
				publishErr = fmt.Errorf("failed to republish claim %s: %w", claim.ID, err)
				return nil
			}

			if err := r.claims.MarkPublished(ctx, claim.ID, r.clock.Now()); err != nil {
				return fmt.Errorf("failed to mark claim %s published: %w", claim.ID, err)
			}
			marked++
		}
		return nil
	})
	if err != nil {
		// Nothing from this sweep was committed; the claims come back next time.
		return 0, err
	}

	if marked > 0 {
		r.recorder.Republished(marked)
		r.logger.Info("Republished claim events", zap.Int("count", marked))
	}
	return marked, publishErr
}

func (r *Republisher) publish(ctx context.Context, claim *domain.Claim) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return r.publisher.PublishClaimSubmitted(ctx, domain.NewClaimSubmittedEvent(claim))
}
