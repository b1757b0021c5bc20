package adjudication

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sweshisj/HealthcareApp/internal/domain"
)

// ClaimStore is the part of the claim repository the worker needs.
type ClaimStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Claim, error)
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, expected, next domain.ClaimStatus, reason string, at time.Time) (bool, error)
}

// TransitionRecorder observes status writes that won.
type TransitionRecorder interface {
	ObserveTransition(status domain.ClaimStatus)
}

type nopRecorder struct{}

func (nopRecorder) ObserveTransition(domain.ClaimStatus) {}

// Config tunes a Worker.
type Config struct {
	Threshold         decimal.Decimal
	ProcessingDelay   time.Duration // Simulated adjudication latency
	ProcessingTimeout time.Duration // Deadline for one attempt, delay included
}

// Worker adjudicates claim-submitted events. It is safe for concurrent use.
type Worker struct {
	claims   ClaimStore
	policy   Policy
	delay    time.Duration
	timeout  time.Duration
	clock    domain.Clock
	recorder TransitionRecorder
	logger   *zap.Logger
}

// NewWorker creates a new Worker. A zero timeout disables the per-attempt deadline.
func NewWorker(claims ClaimStore, cfg Config, clock domain.Clock, recorder TransitionRecorder, logger *zap.Logger) *Worker {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		claims:   claims,
		policy:   Policy{Threshold: cfg.Threshold},
		delay:    cfg.ProcessingDelay,
		timeout:  cfg.ProcessingTimeout,
		clock:    clock,
		recorder: recorder,
		logger:   logger,
	}
}

// OnEvent adjudicates the claim referenced by event.
//
// The status write is conditional on the claim still being Pending, so
// duplicate or concurrent deliveries apply at most one transition; the
// losers are acknowledged as no-ops.
func (w *Worker) OnEvent(ctx context.Context, event *domain.ClaimSubmittedEvent) (outcome domain.Outcome) {
	logger := w.logger.With(
		zap.String("claim_id", event.ClaimID.String()),
		zap.String("event_id", event.EventID),
	)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Adjudication panicked", zap.Any("panic", r), zap.Stack("stack"))
			outcome = domain.OutcomeRetry
		}
	}()

	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	claim, err := w.claims.GetByID(ctx, event.ClaimID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logger.Error("Claim referenced by event does not exist")
			return domain.OutcomeDeadLetter
		}
		logger.Warn("Failed to load claim", zap.Error(err))
		return domain.OutcomeRetry
	}

	if claim.Status != domain.ClaimStatusPending {
		logger.Info("Claim already adjudicated, skipping",
			zap.String("status", string(claim.Status)),
		)
		return domain.OutcomeAck
	}

	if err := w.simulateProcessing(ctx); err != nil {
		logger.Warn("Adjudication attempt abandoned", zap.Error(err))
		return domain.OutcomeRetry
	}

	status, reason := w.policy.Decide(event)

	applied, err := w.claims.CompareAndSetStatus(ctx, claim.ID, domain.ClaimStatusPending, status, reason, w.clock.Now())
	if err != nil {
		logger.Warn("Failed to write adjudication result", zap.Error(err))
		return domain.OutcomeRetry
	}
	if !applied {
		logger.Info("Claim adjudicated concurrently, skipping")
		return domain.OutcomeAck
	}

	w.recorder.ObserveTransition(status)
	logger.Info("Claim adjudicated",
		zap.String("status", string(status)),
		zap.String("amount", event.Amount.StringFixed(2)),
		zap.String("reason", reason),
	)
	return domain.OutcomeAck
}

// simulateProcessing blocks for the configured delay on the worker clock.
func (w *Worker) simulateProcessing(ctx context.Context) error {
	if w.delay <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-w.clock.After(w.delay):
		return nil
	}
}
