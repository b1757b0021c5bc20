package handlers

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/sweshisj/HealthcareApp/internal/domain"
)

// dateLayout is the wire format of dateOfService.
const dateLayout = "2006-01-02"

// SubmitClaimRequest is the body of POST /api/v1/claims.
// Amount may be sent as a JSON number or a decimal string.
type SubmitClaimRequest struct {
	PolicyID      string          `json:"policyId"`
	ClaimType     string          `json:"claimType"`
	DateOfService string          `json:"dateOfService"`
	ProviderName  string          `json:"providerName"`
	Amount        json.RawMessage `json:"amount"`
	Description   string          `json:"description"`
	DocumentURL   string          `json:"documentUrl"`
}

// ClaimResponse is the JSON representation of a claim.
type ClaimResponse struct {
	ID            uuid.UUID  `json:"id"`
	MemberID      uuid.UUID  `json:"memberId"`
	PolicyID      uuid.UUID  `json:"policyId"`
	ClaimType     string     `json:"claimType"`
	DateOfService string     `json:"dateOfService"`
	ProviderName  string     `json:"providerName"`
	Amount        string     `json:"amount"`
	Description   string     `json:"description"`
	DocumentURL   string     `json:"documentUrl"`
	Status        string     `json:"status"`
	StatusReason  string     `json:"statusReason,omitempty"`
	SubmittedAt   time.Time  `json:"submissionDate"`
	AdjudicatedAt *time.Time `json:"adjudicatedAt,omitempty"`
}

// ListClaimsResponse is the body of GET /api/v1/claims.
type ListClaimsResponse struct {
	Content []ClaimResponse `json:"content"`
}

// BaseError is the error body of every failed request.
type BaseError struct {
	Code        string    `json:"code"`
	Description *string   `json:"description,omitempty"`
	ID          uuid.UUID `json:"id"`
}

func toClaimResponse(claim *domain.Claim) ClaimResponse {
	return ClaimResponse{
		ID:            claim.ID,
		MemberID:      claim.MemberID,
		PolicyID:      claim.PolicyID,
		ClaimType:     claim.ClaimType,
		DateOfService: claim.DateOfService.Format(dateLayout),
		ProviderName:  claim.ProviderName,
		Amount:        claim.Amount.StringFixed(2),
		Description:   claim.Description,
		DocumentURL:   claim.DocumentURL,
		Status:        string(claim.Status),
		StatusReason:  claim.StatusReason,
		SubmittedAt:   claim.SubmittedAt,
		AdjudicatedAt: claim.AdjudicatedAt,
	}
}
