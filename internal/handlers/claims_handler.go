package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sweshisj/HealthcareApp/internal/domain"
)

// maxBodyBytes caps the size of a claim submission body.
const maxBodyBytes = 1 << 20

// ClaimService is what the claims endpoints need from the domain.
type ClaimService interface {
	Submit(ctx context.Context, memberID, policyID uuid.UUID, fields domain.ClaimFields) (*domain.Claim, error)
	ListClaims(ctx context.Context, memberID uuid.UUID) ([]*domain.Claim, error)
	GetClaim(ctx context.Context, memberID, claimID uuid.UUID) (*domain.Claim, error)
}

// SubmissionRecorder counts accepted submissions.
type SubmissionRecorder interface {
	ClaimSubmitted()
}

// ClaimsHandler serves the member-facing claims API.
type ClaimsHandler struct {
	service  ClaimService
	recorder SubmissionRecorder
	logger   *zap.Logger
}

// NewClaimsHandler creates a new ClaimsHandler. recorder may be nil.
func NewClaimsHandler(service ClaimService, recorder SubmissionRecorder, logger *zap.Logger) *ClaimsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClaimsHandler{
		service:  service,
		recorder: recorder,
		logger:   logger,
	}
}

// SubmitClaim handles claim submission requests. It answers as soon as the
// claim is stored; adjudication happens later.
func (h *ClaimsHandler) SubmitClaim(w http.ResponseWriter, r *http.Request) {
	memberID, ok := MemberIDFromContext(r.Context())
	if !ok {
		sendErrorResponse(w, http.StatusUnauthorized, "UNAUTHORIZED", "Member identity is missing")
		return
	}

	// Parse request body
	var req SubmitClaimRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(&req); err != nil {
		sendErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", "Failed to parse request body")
		return
	}

	policyID, fields, err := parseSubmission(req)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	claim, err := h.service.Submit(r.Context(), memberID, policyID, fields)
	if err != nil {
		if !isClientError(err) {
			h.logger.Error("Failed to submit claim",
				zap.String("member_id", memberID.String()),
				zap.Error(err),
			)
		}
		handleServiceError(w, err)
		return
	}

	if h.recorder != nil {
		h.recorder.ClaimSubmitted()
	}

	w.Header().Set("Location", "/api/v1/claims/"+claim.ID.String())
	writeJSON(w, http.StatusCreated, toClaimResponse(claim))
}

// ListClaims returns the authenticated member's claims, newest first.
func (h *ClaimsHandler) ListClaims(w http.ResponseWriter, r *http.Request) {
	memberID, ok := MemberIDFromContext(r.Context())
	if !ok {
		sendErrorResponse(w, http.StatusUnauthorized, "UNAUTHORIZED", "Member identity is missing")
		return
	}

	claims, err := h.service.ListClaims(r.Context(), memberID)
	if err != nil {
		h.logger.Error("Failed to list claims", zap.String("member_id", memberID.String()), zap.Error(err))
		handleServiceError(w, err)
		return
	}

	resp := ListClaimsResponse{Content: make([]ClaimResponse, 0, len(claims))}
	for _, claim := range claims {
		resp.Content = append(resp.Content, toClaimResponse(claim))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetClaim returns one claim, including its current adjudication status.
func (h *ClaimsHandler) GetClaim(w http.ResponseWriter, r *http.Request) {
	memberID, ok := MemberIDFromContext(r.Context())
	if !ok {
		sendErrorResponse(w, http.StatusUnauthorized, "UNAUTHORIZED", "Member identity is missing")
		return
	}

	claimID, err := uuid.Parse(chi.URLParam(r, "claimID"))
	if err != nil {
		sendErrorResponse(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
		return
	}

	claim, err := h.service.GetClaim(r.Context(), memberID, claimID)
	if err != nil {
		if !isClientError(err) {
			h.logger.Error("Failed to get claim", zap.String("claim_id", claimID.String()), zap.Error(err))
		}
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toClaimResponse(claim))
}

// parseSubmission converts the wire request into domain input. Values that
// fail to parse are reported only after the domain's presence checks, so
// a missing field outranks a malformed amount, which outranks a bad policy.
func parseSubmission(req SubmitClaimRequest) (uuid.UUID, domain.ClaimFields, error) {
	fields := domain.ClaimFields{
		ClaimType:    req.ClaimType,
		ProviderName: req.ProviderName,
		Description:  req.Description,
		DocumentURL:  req.DocumentURL,
	}

	if s := strings.TrimSpace(req.DateOfService); s != "" {
		date, err := parseDate(s)
		if err != nil {
			return uuid.Nil, fields, &domain.ValidationError{Reason: domain.ErrValidation, Field: "dateOfService"}
		}
		fields.DateOfService = date
	}

	raw := bytes.TrimSpace(req.Amount)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return uuid.Nil, fields, &domain.ValidationError{Reason: domain.ErrMissingField, Field: "amount"}
	}

	var parseErrs []error
	amount, err := decimal.NewFromString(strings.Trim(string(raw), `"`))
	if err != nil {
		parseErrs = append(parseErrs, &domain.ValidationError{Reason: domain.ErrInvalidAmount, Field: "amount"})
	}
	fields.Amount = amount

	var policyID uuid.UUID
	if s := strings.TrimSpace(req.PolicyID); s != "" {
		if policyID, err = uuid.Parse(s); err != nil {
			parseErrs = append(parseErrs, &domain.ValidationError{Reason: domain.ErrInvalidPolicy, Field: "policyId"})
		}
	}

	if len(parseErrs) > 0 {
		if err := domain.ValidateClaimFields(fields); err != nil {
			return uuid.Nil, fields, err
		}
		return uuid.Nil, fields, parseErrs[0]
	}

	return policyID, fields, nil
}

// parseDate accepts a calendar date or a full RFC 3339 timestamp.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func isClientError(err error) bool {
	return errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrNotFound)
}
