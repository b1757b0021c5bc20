package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// maxAmount bounds claim amounts to what numeric(12,2) can store.
var maxAmount = decimal.New(1, 10)

// Limits on the decimal representation, checked before any rescaling.
// Trailing zeros such as "1.000" stay within them.
const (
	minAmountExponent = -12
	maxAmountExponent = 10
	maxAmountDigits   = 24
)

// ValidateAmount checks that amount is a non-negative currency value with
// at most two fractional digits.
func ValidateAmount(amount decimal.Decimal) error {
	if exp := amount.Exponent(); exp < minAmountExponent || exp > maxAmountExponent {
		return newValidationError(ErrInvalidAmount, "amount")
	}
	if amount.NumDigits() > maxAmountDigits {
		return newValidationError(ErrInvalidAmount, "amount")
	}
	if amount.IsNegative() {
		return newValidationError(ErrInvalidAmount, "amount")
	}
	if !amount.Equal(amount.Truncate(2)) {
		return newValidationError(ErrInvalidAmount, "amount")
	}
	if amount.GreaterThanOrEqual(maxAmount) {
		return newValidationError(ErrInvalidAmount, "amount")
	}
	return nil
}

// ValidateClaimFields checks presence of required fields and the amount.
// The first problem found is returned.
func ValidateClaimFields(fields ClaimFields) error {
	required := []struct {
		name  string
		value string
	}{
		{"claimType", fields.ClaimType},
		{"providerName", fields.ProviderName},
		{"description", fields.Description},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return newValidationError(ErrMissingField, f.name)
		}
	}
	if fields.DateOfService.IsZero() {
		return newValidationError(ErrMissingField, "dateOfService")
	}
	return ValidateAmount(fields.Amount)
}
