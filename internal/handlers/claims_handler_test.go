package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sweshisj/HealthcareApp/internal/domain"
	"github.com/sweshisj/HealthcareApp/internal/handlers"
)

// mockClaimService implements handlers.ClaimService for testing
type mockClaimService struct {
	submitFunc     func(ctx context.Context, memberID, policyID uuid.UUID, fields domain.ClaimFields) (*domain.Claim, error)
	listClaimsFunc func(ctx context.Context, memberID uuid.UUID) ([]*domain.Claim, error)
	getClaimFunc   func(ctx context.Context, memberID, claimID uuid.UUID) (*domain.Claim, error)
}

func (m *mockClaimService) Submit(ctx context.Context, memberID, policyID uuid.UUID, fields domain.ClaimFields) (*domain.Claim, error) {
	if m.submitFunc != nil {
		return m.submitFunc(ctx, memberID, policyID, fields)
	}
	claim := domain.NewClaim(memberID, policyID, fields, time.Now())
	claim.ID = uuid.New()
	return claim, nil
}

func (m *mockClaimService) ListClaims(ctx context.Context, memberID uuid.UUID) ([]*domain.Claim, error) {
	if m.listClaimsFunc != nil {
		return m.listClaimsFunc(ctx, memberID)
	}
	return nil, nil
}

func (m *mockClaimService) GetClaim(ctx context.Context, memberID, claimID uuid.UUID) (*domain.Claim, error) {
	if m.getClaimFunc != nil {
		return m.getClaimFunc(ctx, memberID, claimID)
	}
	return nil, domain.ErrClaimNotFound
}

type mockSubmissionRecorder struct{ count int }

func (m *mockSubmissionRecorder) ClaimSubmitted() { m.count++ }

var (
	testMemberID = uuid.MustParse("33333333-3333-3333-3333-333333333333")
	testPolicyID = uuid.MustParse("22222222-2222-2222-2222-222222222222")
)

func newTestRouter(service handlers.ClaimService, recorder handlers.SubmissionRecorder, limiter *handlers.MemberLimiter) http.Handler {
	return handlers.NewRouter(handlers.RouterConfig{
		Claims:  handlers.NewClaimsHandler(service, recorder, nil),
		Health:  handlers.NewHealthHandler(nil),
		Limiter: limiter,
	})
}

func newRequest(method, path string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(handlers.MemberIDHeader, testMemberID.String())
	return req
}

func validSubmission() map[string]interface{} {
	return map[string]interface{}{
		"policyId":      testPolicyID.String(),
		"claimType":     "Medical",
		"dateOfService": "2024-02-28",
		"providerName":  "City Clinic",
		"amount":        120,
		"description":   "Consultation",
		"documentUrl":   "https://docs.example.com/receipt.pdf",
	}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) handlers.BaseError {
	t.Helper()
	var errResp handlers.BaseError
	if err := json.NewDecoder(rec.Body).Decode(&errResp); err != nil {
		t.Fatalf("Failed to decode error response: %v", err)
	}
	if errResp.ID == uuid.Nil {
		t.Error("Expected error id to be set")
	}
	return errResp
}

func TestSubmitClaim_Success(t *testing.T) {
	recorder := &mockSubmissionRecorder{}
	service := &mockClaimService{
		submitFunc: func(ctx context.Context, memberID, policyID uuid.UUID, fields domain.ClaimFields) (*domain.Claim, error) {
			if memberID != testMemberID {
				t.Errorf("Expected member %s, got %s", testMemberID, memberID)
			}
			if policyID != testPolicyID {
				t.Errorf("Expected policy %s, got %s", testPolicyID, policyID)
			}
			if !fields.Amount.Equal(decimal.NewFromInt(120)) {
				t.Errorf("Expected amount 120, got %s", fields.Amount)
			}
			if fields.DateOfService.Format("2006-01-02") != "2024-02-28" {
				t.Errorf("Unexpected date of service %v", fields.DateOfService)
			}

			claim := domain.NewClaim(memberID, policyID, fields, time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC))
			claim.ID = uuid.MustParse("11111111-1111-1111-1111-111111111111")
			return claim, nil
		},
	}

	rec := httptest.NewRecorder()
	newTestRouter(service, recorder, nil).ServeHTTP(rec, newRequest(http.MethodPost, "/api/v1/claims", validSubmission()))

	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if loc := rec.Header().Get("Location"); loc != "/api/v1/claims/11111111-1111-1111-1111-111111111111" {
		t.Errorf("Unexpected Location header %q", loc)
	}

	var resp handlers.ClaimResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Status != "Pending" {
		t.Errorf("Expected status Pending, got %s", resp.Status)
	}
	if resp.Amount != "120.00" {
		t.Errorf("Expected amount 120.00, got %s", resp.Amount)
	}
	if resp.DateOfService != "2024-02-28" {
		t.Errorf("Expected dateOfService 2024-02-28, got %s", resp.DateOfService)
	}
	if recorder.count != 1 {
		t.Errorf("Expected one recorded submission, got %d", recorder.count)
	}
}

func TestSubmitClaim_AmountAsString(t *testing.T) {
	var got decimal.Decimal
	service := &mockClaimService{
		submitFunc: func(ctx context.Context, memberID, policyID uuid.UUID, fields domain.ClaimFields) (*domain.Claim, error) {
			got = fields.Amount
			claim := domain.NewClaim(memberID, policyID, fields, time.Now())
			claim.ID = uuid.New()
			return claim, nil
		},
	}

	body := validSubmission()
	body["amount"] = "99.95"

	rec := httptest.NewRecorder()
	newTestRouter(service, nil, nil).ServeHTTP(rec, newRequest(http.MethodPost, "/api/v1/claims", body))

	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", rec.Code)
	}
	if !got.Equal(decimal.RequireFromString("99.95")) {
		t.Errorf("Expected amount 99.95, got %s", got)
	}
}

func TestSubmitClaim_Errors(t *testing.T) {
	tests := []struct {
		name         string
		mutate       func(body map[string]interface{})
		serviceErr   error
		expectedCode int
		expectedErr  string
	}{
		{
			name:         "invalid policy",
			serviceErr:   &domain.ValidationError{Reason: domain.ErrInvalidPolicy, Field: "policyId"},
			expectedCode: http.StatusBadRequest,
			expectedErr:  "INVALID_POLICY",
		},
		{
			name:         "invalid amount",
			serviceErr:   &domain.ValidationError{Reason: domain.ErrInvalidAmount, Field: "amount"},
			expectedCode: http.StatusBadRequest,
			expectedErr:  "INVALID_AMOUNT",
		},
		{
			name:         "missing field",
			serviceErr:   &domain.ValidationError{Reason: domain.ErrMissingField, Field: "description"},
			expectedCode: http.StatusBadRequest,
			expectedErr:  "MISSING_FIELD",
		},
		{
			name:         "persistence failure",
			serviceErr:   fmt.Errorf("%w: %w", domain.ErrPersistence, domain.Transient(errors.New("connection refused"))),
			expectedCode: http.StatusServiceUnavailable,
			expectedErr:  "SERVICE_UNAVAILABLE",
		},
		{
			name:         "unexpected failure",
			serviceErr:   errors.New("boom"),
			expectedCode: http.StatusInternalServerError,
			expectedErr:  "INTERNAL_ERROR",
		},
		{
			name:         "missing amount",
			mutate:       func(b map[string]interface{}) { delete(b, "amount") },
			expectedCode: http.StatusBadRequest,
			expectedErr:  "MISSING_FIELD",
		},
		{
			name:         "non-numeric amount",
			mutate:       func(b map[string]interface{}) { b["amount"] = "twelve" },
			expectedCode: http.StatusBadRequest,
			expectedErr:  "INVALID_AMOUNT",
		},
		{
			name:         "malformed policy id",
			mutate:       func(b map[string]interface{}) { b["policyId"] = "policy-1" },
			expectedCode: http.StatusBadRequest,
			expectedErr:  "INVALID_POLICY",
		},
		{
			name: "missing field outranks malformed policy id",
			mutate: func(b map[string]interface{}) {
				b["policyId"] = "policy-1"
				b["providerName"] = " "
			},
			expectedCode: http.StatusBadRequest,
			expectedErr:  "MISSING_FIELD",
		},
		{
			name: "malformed amount outranks malformed policy id",
			mutate: func(b map[string]interface{}) {
				b["policyId"] = "policy-1"
				b["amount"] = "twelve"
			},
			expectedCode: http.StatusBadRequest,
			expectedErr:  "INVALID_AMOUNT",
		},
		{
			name:         "malformed date",
			mutate:       func(b map[string]interface{}) { b["dateOfService"] = "28/02/2024" },
			expectedCode: http.StatusBadRequest,
			expectedErr:  "INVALID_REQUEST",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			service := &mockClaimService{
				submitFunc: func(ctx context.Context, memberID, policyID uuid.UUID, fields domain.ClaimFields) (*domain.Claim, error) {
					called = true
					if tt.serviceErr != nil {
						return nil, tt.serviceErr
					}
					t.Error("Expected the request to be rejected before reaching the service")
					return nil, errors.New("unexpected call")
				},
			}
			recorder := &mockSubmissionRecorder{}

			body := validSubmission()
			if tt.mutate != nil {
				tt.mutate(body)
			}

			rec := httptest.NewRecorder()
			newTestRouter(service, recorder, nil).ServeHTTP(rec, newRequest(http.MethodPost, "/api/v1/claims", body))

			if rec.Code != tt.expectedCode {
				t.Fatalf("Expected status %d, got %d: %s", tt.expectedCode, rec.Code, rec.Body.String())
			}
			if errResp := decodeError(t, rec); errResp.Code != tt.expectedErr {
				t.Errorf("Expected error code %s, got %s", tt.expectedErr, errResp.Code)
			}
			if tt.serviceErr == nil && called {
				t.Error("Expected service not to be called")
			}
			if recorder.count != 0 {
				t.Errorf("Expected no recorded submission, got %d", recorder.count)
			}
		})
	}
}

func TestSubmitClaim_InvalidJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/claims", bytes.NewBufferString("{invalid json"))
	req.Header.Set(handlers.MemberIDHeader, testMemberID.String())

	rec := httptest.NewRecorder()
	newTestRouter(&mockClaimService{}, nil, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", rec.Code)
	}
	if errResp := decodeError(t, rec); errResp.Code != "INVALID_REQUEST" {
		t.Errorf("Expected error code INVALID_REQUEST, got %s", errResp.Code)
	}
}

func TestClaims_Unauthorized(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not a uuid", "member-42"},
		{"nil uuid", uuid.Nil.String()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newRequest(http.MethodGet, "/api/v1/claims", nil)
			req.Header.Set(handlers.MemberIDHeader, tt.header)

			rec := httptest.NewRecorder()
			newTestRouter(&mockClaimService{}, nil, nil).ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("Expected status 401, got %d", rec.Code)
			}
			if errResp := decodeError(t, rec); errResp.Code != "UNAUTHORIZED" {
				t.Errorf("Expected error code UNAUTHORIZED, got %s", errResp.Code)
			}
		})
	}
}

func TestSubmitClaim_RateLimited(t *testing.T) {
	router := newTestRouter(&mockClaimService{}, nil, handlers.NewMemberLimiter(0.001, 2, time.Minute))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, newRequest(http.MethodPost, "/api/v1/claims", validSubmission()))
		codes = append(codes, rec.Code)
	}

	if codes[0] != http.StatusCreated || codes[1] != http.StatusCreated {
		t.Errorf("Expected the burst to be admitted, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("Expected third request to be rate limited, got %d", codes[2])
	}

	// Reads are not limited.
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, newRequest(http.MethodGet, "/api/v1/claims", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected list to succeed, got %d", rec.Code)
	}
}

func TestListClaims_Success(t *testing.T) {
	newer := &domain.Claim{
		ID: uuid.New(), MemberID: testMemberID, PolicyID: testPolicyID,
		Amount: decimal.RequireFromString("750"), Status: domain.ClaimStatusUnderReview,
		StatusReason: "amount 750.00 exceeds auto-approval threshold 500.00",
	}
	older := &domain.Claim{
		ID: uuid.New(), MemberID: testMemberID, PolicyID: testPolicyID,
		Amount: decimal.RequireFromString("120"), Status: domain.ClaimStatusApproved,
	}

	service := &mockClaimService{
		listClaimsFunc: func(ctx context.Context, memberID uuid.UUID) ([]*domain.Claim, error) {
			if memberID != testMemberID {
				t.Errorf("Expected member %s, got %s", testMemberID, memberID)
			}
			return []*domain.Claim{newer, older}, nil
		},
	}

	rec := httptest.NewRecorder()
	newTestRouter(service, nil, nil).ServeHTTP(rec, newRequest(http.MethodGet, "/api/v1/claims", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var resp handlers.ListClaimsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(resp.Content) != 2 {
		t.Fatalf("Expected 2 claims, got %d", len(resp.Content))
	}
	if resp.Content[0].ID != newer.ID || resp.Content[0].Status != "UnderReview" || resp.Content[0].StatusReason == "" {
		t.Errorf("Unexpected first claim %+v", resp.Content[0])
	}
	if resp.Content[1].Amount != "120.00" {
		t.Errorf("Expected amount 120.00, got %s", resp.Content[1].Amount)
	}
}

func TestListClaims_Empty(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(&mockClaimService{}, nil, nil).ServeHTTP(rec, newRequest(http.MethodGet, "/api/v1/claims", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if body := rec.Body.String(); body != "{\"content\":[]}\n" {
		t.Errorf("Expected empty content array, got %q", body)
	}
}

func TestGetClaim(t *testing.T) {
	claimID := uuid.New()
	adjudicatedAt := time.Date(2024, 3, 1, 9, 30, 5, 0, time.UTC)
	service := &mockClaimService{
		getClaimFunc: func(ctx context.Context, memberID, id uuid.UUID) (*domain.Claim, error) {
			if id != claimID {
				return nil, domain.ErrClaimNotFound
			}
			return &domain.Claim{
				ID: id, MemberID: memberID, PolicyID: testPolicyID,
				Amount: decimal.RequireFromString("120"), Status: domain.ClaimStatusApproved,
				AdjudicatedAt: &adjudicatedAt,
			}, nil
		},
	}
	router := newTestRouter(service, nil, nil)

	tests := []struct {
		name         string
		path         string
		expectedCode int
	}{
		{"found", "/api/v1/claims/" + claimID.String(), http.StatusOK},
		{"unknown", "/api/v1/claims/" + uuid.New().String(), http.StatusNotFound},
		{"malformed id", "/api/v1/claims/not-a-uuid", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, newRequest(http.MethodGet, tt.path, nil))

			if rec.Code != tt.expectedCode {
				t.Fatalf("Expected status %d, got %d", tt.expectedCode, rec.Code)
			}
			if tt.expectedCode != http.StatusOK {
				return
			}

			var resp handlers.ClaimResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if resp.Status != "Approved" || resp.AdjudicatedAt == nil || !resp.AdjudicatedAt.Equal(adjudicatedAt) {
				t.Errorf("Unexpected claim %+v", resp)
			}
		})
	}
}
