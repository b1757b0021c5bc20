package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// defaultPublishTimeout bounds the broker hand-off after a claim is stored.
const defaultPublishTimeout = 5 * time.Second

// SubmissionService accepts claims, stores them and hands them to the
// message channel. It never waits on adjudication.
type SubmissionService struct {
	claimRepo      ClaimRepository
	policyRepo     PolicyRepository
	publisher      EventPublisher
	notifier       PublishFailureNotifier
	clock          Clock
	logger         *zap.Logger
	publishTimeout time.Duration
}

// NewSubmissionService creates a new instance of SubmissionService.
// Pass nil for notifier if publish failures should only be logged.
func NewSubmissionService(
	claimRepo ClaimRepository,
	policyRepo PolicyRepository,
	publisher EventPublisher,
	notifier PublishFailureNotifier,
	clock Clock,
	logger *zap.Logger,
) *SubmissionService {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubmissionService{
		claimRepo:      claimRepo,
		policyRepo:     policyRepo,
		publisher:      publisher,
		notifier:       notifier,
		clock:          clock,
		logger:         logger,
		publishTimeout: defaultPublishTimeout,
	}
}

// Submit validates a claim request, persists it as Pending and publishes
// a claim-submitted event.
//
// The claim is committed before the publish is attempted, so every event
// resolves to a stored claim. A failed publish does not undo the write and
// is not reported to the caller: the claim stays Pending with no
// published timestamp, the failure goes to the operator notifier, and the
// republisher picks the claim up later.
//
// Returns a *ValidationError for bad input, or an error wrapping
// ErrPersistence when nothing could be stored.
func (s *SubmissionService) Submit(ctx context.Context, memberID, policyID uuid.UUID, fields ClaimFields) (*Claim, error) {
	if memberID == uuid.Nil {
		return nil, newValidationError(ErrMissingField, "memberId")
	}
	if policyID == uuid.Nil {
		return nil, newValidationError(ErrMissingField, "policyId")
	}

	fields = normalizeFields(fields)
	if err := ValidateClaimFields(fields); err != nil {
		return nil, err
	}

	owned, err := s.policyRepo.IsOwnedPolicy(ctx, policyID, memberID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to look up policy: %w", ErrPersistence, err)
	}
	if !owned {
		return nil, newValidationError(ErrInvalidPolicy, "policyId")
	}

	claim := NewClaim(memberID, policyID, fields, s.clock.Now())

	id, err := s.claimRepo.Create(ctx, claim)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create claim: %w", ErrPersistence, err)
	}
	claim.ID = id

	s.logger.Info("Claim accepted",
		zap.String("claim_id", claim.ID.String()),
		zap.String("member_id", memberID.String()),
		zap.String("policy_id", policyID.String()),
		zap.String("amount", claim.Amount.StringFixed(2)),
	)

	// The write is committed; the hand-off must not depend on the caller
	// staying connected.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()
	s.publish(pubCtx, claim)

	return claim, nil
}

// publish sends the claim's event and records the confirmation.
func (s *SubmissionService) publish(ctx context.Context, claim *Claim) {
	if err := s.publisher.PublishClaimSubmitted(ctx, NewClaimSubmittedEvent(claim)); err != nil {
		err = fmt.Errorf("%w: %w", ErrPublish, err)
		s.logger.Error("Claim stored but submitted event was not published",
			zap.String("claim_id", claim.ID.String()),
			zap.Error(err),
		)
		if s.notifier != nil {
			s.notifier.NotifyPublishFailure(claim, err)
		}
		return
	}

	now := s.clock.Now()
	if err := s.claimRepo.MarkPublished(ctx, claim.ID, now); err != nil {
		// The event is on the channel; a later republish is a duplicate the
		// worker already tolerates.
		s.logger.Warn("Failed to record publish confirmation",
			zap.String("claim_id", claim.ID.String()),
			zap.Error(err),
		)
		return
	}
	claim.PublishedAt = &now
}

// ListClaims returns the member's claims, newest first.
func (s *SubmissionService) ListClaims(ctx context.Context, memberID uuid.UUID) ([]*Claim, error) {
	claims, err := s.claimRepo.ListByMember(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}
	return claims, nil
}

// GetClaim returns a single claim owned by the member. Claims owned by
// someone else are reported as ErrClaimNotFound.
func (s *SubmissionService) GetClaim(ctx context.Context, memberID, claimID uuid.UUID) (*Claim, error) {
	claim, err := s.claimRepo.GetByID(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if claim.MemberID != memberID {
		return nil, ErrClaimNotFound
	}
	return claim, nil
}

func normalizeFields(f ClaimFields) ClaimFields {
	f.ClaimType = strings.TrimSpace(f.ClaimType)
	f.ProviderName = strings.TrimSpace(f.ProviderName)
	f.Description = strings.TrimSpace(f.Description)
	f.DocumentURL = strings.TrimSpace(f.DocumentURL)
	return f
}
