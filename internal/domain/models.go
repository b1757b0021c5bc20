package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Claim represents a member's request for reimbursement against a policy.
// The Claim Store owns the authoritative Status; any copy carried on the
// message channel is only a snapshot taken at submission time.
type Claim struct {
	ID            uuid.UUID       // Assigned by the claim store on creation
	MemberID      uuid.UUID       // Member who submitted the claim
	PolicyID      uuid.UUID       // Policy the claim is made against
	ClaimType     string          // E.g. "Medical", "Dental", "Optical"
	DateOfService time.Time       // Date the service was provided
	ProviderName  string          // Name of the healthcare provider
	Amount        decimal.Decimal // Claimed amount, non-negative, two fractional digits
	Description   string          // Free-text details about the claim
	DocumentURL   string          // Reference to supporting documents (receipts, reports)
	Status        ClaimStatus     // Current adjudication status
	StatusReason  string          // Optional explanation attached by adjudication
	SubmittedAt   time.Time       // Timestamp when the claim was accepted
	AdjudicatedAt *time.Time      // Timestamp of the winning status transition (nullable)
	PublishedAt   *time.Time      // Timestamp the submitted event reached the broker (nullable)
}

// ClaimStatus represents the adjudication state of a claim.
type ClaimStatus string

const (
	// ClaimStatusPending is the initial status of every claim
	ClaimStatusPending ClaimStatus = "Pending"

	// ClaimStatusUnderReview marks a claim that needs manual review
	ClaimStatusUnderReview ClaimStatus = "UnderReview"

	// ClaimStatusApproved marks an approved claim
	ClaimStatusApproved ClaimStatus = "Approved"

	// ClaimStatusDenied marks a denied claim
	ClaimStatusDenied ClaimStatus = "Denied"
)

// Valid reports whether s is one of the known statuses.
func (s ClaimStatus) Valid() bool {
	switch s {
	case ClaimStatusPending, ClaimStatusUnderReview, ClaimStatusApproved, ClaimStatusDenied:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition may leave s.
func (s ClaimStatus) IsTerminal() bool {
	return s == ClaimStatusApproved || s == ClaimStatusDenied
}

// CanTransition reports whether the automated pipeline may move a claim
// from s to next. Only Pending claims are adjudicated.
func (s ClaimStatus) CanTransition(next ClaimStatus) bool {
	if s != ClaimStatusPending {
		return false
	}
	return next == ClaimStatusUnderReview || next == ClaimStatusApproved || next == ClaimStatusDenied
}

// ClaimFields carries the member-supplied attributes of a new claim.
type ClaimFields struct {
	ClaimType     string
	DateOfService time.Time
	ProviderName  string
	Amount        decimal.Decimal
	Description   string
	DocumentURL   string
}

// NewClaim creates a Pending claim from validated fields.
// The identifier is left empty for the claim store to assign.
func NewClaim(memberID, policyID uuid.UUID, fields ClaimFields, submittedAt time.Time) *Claim {
	return &Claim{
		MemberID:      memberID,
		PolicyID:      policyID,
		ClaimType:     fields.ClaimType,
		DateOfService: fields.DateOfService,
		ProviderName:  fields.ProviderName,
		Amount:        fields.Amount,
		Description:   fields.Description,
		DocumentURL:   fields.DocumentURL,
		Status:        ClaimStatusPending,
		SubmittedAt:   submittedAt.UTC(),
	}
}

// ClaimSubmittedEvent is the denormalized snapshot published once a claim
// has been durably persisted.
type ClaimSubmittedEvent struct {
	EventID     string
	ClaimID     uuid.UUID
	PolicyID    uuid.UUID
	MemberID    uuid.UUID
	ClaimType   string
	Amount      decimal.Decimal
	SubmittedAt time.Time
}

// NewClaimSubmittedEvent snapshots the fields of a persisted claim.
func NewClaimSubmittedEvent(claim *Claim) *ClaimSubmittedEvent {
	return &ClaimSubmittedEvent{
		ClaimID:     claim.ID,
		PolicyID:    claim.PolicyID,
		MemberID:    claim.MemberID,
		ClaimType:   claim.ClaimType,
		Amount:      claim.Amount,
		SubmittedAt: claim.SubmittedAt,
	}
}
