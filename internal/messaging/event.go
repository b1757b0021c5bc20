package messaging

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sweshisj/HealthcareApp/internal/domain"
)

// EventTypeClaimSubmitted is the eventType of claim-submitted messages.
const EventTypeClaimSubmitted = "claim.submitted"

// claimSubmittedMessage is the JSON body of a claim-submitted message.
// Consumers ignore fields they do not know.
type claimSubmittedMessage struct {
	EventID             string `json:"eventId"`
	EventType           string `json:"eventType"`
	ClaimID             string `json:"claimId"`
	PolicyID            string `json:"policyId"`
	MemberID            string `json:"memberId"`
	ClaimType           string `json:"claimType"`
	Amount              string `json:"amount"`
	SubmissionTimestamp string `json:"submissionTimestamp"`
}

// EncodeClaimSubmitted serializes the event into its wire format.
func EncodeClaimSubmitted(event *domain.ClaimSubmittedEvent) ([]byte, error) {
	if event.ClaimID == uuid.Nil {
		return nil, errors.New("claim-submitted event without claim id")
	}

	msg := claimSubmittedMessage{
		EventID:             event.EventID,
		EventType:           EventTypeClaimSubmitted,
		ClaimID:             event.ClaimID.String(),
		PolicyID:            event.PolicyID.String(),
		MemberID:            event.MemberID.String(),
		ClaimType:           event.ClaimType,
		Amount:              event.Amount.StringFixed(2),
		SubmissionTimestamp: event.SubmittedAt.UTC().Format(time.RFC3339),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return body, nil
}

// DecodeClaimSubmitted parses a claim-submitted message body. Every error it
// returns is permanent: redelivering the same bytes cannot fix them.
func DecodeClaimSubmitted(body []byte) (*domain.ClaimSubmittedEvent, error) {
	var msg claimSubmittedMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, domain.Permanent(fmt.Errorf("failed to unmarshal event: %w", err))
	}

	if msg.EventType != "" && msg.EventType != EventTypeClaimSubmitted {
		return nil, domain.Permanent(fmt.Errorf("unexpected event type %q", msg.EventType))
	}
	if msg.ClaimID == "" {
		return nil, domain.Permanent(errors.New("claimId is required"))
	}
	if msg.Amount == "" {
		return nil, domain.Permanent(errors.New("amount is required"))
	}

	event := &domain.ClaimSubmittedEvent{
		EventID:   msg.EventID,
		ClaimType: msg.ClaimType,
	}

	var err error
	if event.ClaimID, err = uuid.Parse(msg.ClaimID); err != nil {
		return nil, domain.Permanent(fmt.Errorf("invalid claimId: %w", err))
	}
	if msg.PolicyID != "" {
		if event.PolicyID, err = uuid.Parse(msg.PolicyID); err != nil {
			return nil, domain.Permanent(fmt.Errorf("invalid policyId: %w", err))
		}
	}
	if msg.MemberID != "" {
		if event.MemberID, err = uuid.Parse(msg.MemberID); err != nil {
			return nil, domain.Permanent(fmt.Errorf("invalid memberId: %w", err))
		}
	}
	if event.Amount, err = decimal.NewFromString(msg.Amount); err != nil {
		return nil, domain.Permanent(fmt.Errorf("invalid amount: %w", err))
	}
	if err := domain.ValidateAmount(event.Amount); err != nil {
		return nil, domain.Permanent(fmt.Errorf("invalid amount %q: %w", msg.Amount, err))
	}
	if msg.SubmissionTimestamp != "" {
		if event.SubmittedAt, err = time.Parse(time.RFC3339, msg.SubmissionTimestamp); err != nil {
			return nil, domain.Permanent(fmt.Errorf("invalid submissionTimestamp: %w", err))
		}
	}

	return event, nil
}
