package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ClaimRepository defines the interface for claim data access operations.
// It is the single source of truth for claim status.
type ClaimRepository interface {
	// Create persists a new claim and returns the identifier assigned by the store.
	Create(ctx context.Context, claim *Claim) (uuid.UUID, error)

	// GetByID retrieves a claim by its unique identifier.
	// Returns ErrClaimNotFound if the claim doesn't exist.
	GetByID(ctx context.Context, id uuid.UUID) (*Claim, error)

	// CompareAndSetStatus moves a claim from expected to next in a single
	// conditional write, recording reason and the adjudication timestamp.
	// Returns false without error when the stored status is not expected.
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, expected, next ClaimStatus, reason string, at time.Time) (bool, error)

	// ListByMember returns the member's claims, newest submission first.
	ListByMember(ctx context.Context, memberID uuid.UUID) ([]*Claim, error)

	// MarkPublished records that the claim's submitted event reached the broker.
	MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error

	// ListUnpublished returns Pending claims submitted before olderThan whose
	// event was never confirmed by the broker. Inside a transaction the rows
	// stay locked until commit and rows locked by others are skipped.
	ListUnpublished(ctx context.Context, olderThan time.Time, limit int) ([]*Claim, error)
}

// PolicyRepository is the read-only policy lookup used at submission time.
type PolicyRepository interface {
	// IsOwnedPolicy reports whether policyID exists and belongs to memberID.
	IsOwnedPolicy(ctx context.Context, policyID, memberID uuid.UUID) (bool, error)
}

// TransactionManager defines the interface for managing database transactions.
// This abstraction allows the service layer to work with transactions
// without being coupled to a specific database implementation.
type TransactionManager interface {
	// WithTransaction executes the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	// Otherwise, the transaction is committed.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// EventPublisher hands claim events to the message channel.
type EventPublisher interface {
	// PublishClaimSubmitted returns nil only once the broker has confirmed the message.
	PublishClaimSubmitted(ctx context.Context, event *ClaimSubmittedEvent) error
}

// PublishFailureNotifier surfaces claims that were stored but could not be
// published. Implementations feed the operator alert channel.
type PublishFailureNotifier interface {
	NotifyPublishFailure(claim *Claim, err error)
}
