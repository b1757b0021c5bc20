package adjudication

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/sweshisj/HealthcareApp/internal/domain"
)

// Policy maps a claim-submitted event to its adjudication outcome.
// It has no side effects.
type Policy struct {
	Threshold decimal.Decimal // Highest amount approved without manual review
}

// Decide returns the target status and the reason recorded with it.
func (p Policy) Decide(event *domain.ClaimSubmittedEvent) (domain.ClaimStatus, string) {
	if event.Amount.LessThanOrEqual(p.Threshold) {
		return domain.ClaimStatusApproved, "auto-approved: amount within threshold"
	}
	return domain.ClaimStatusUnderReview,
		fmt.Sprintf("amount %s exceeds auto-approval threshold %s", event.Amount.StringFixed(2), p.Threshold.StringFixed(2))
}
