package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/sweshisj/HealthcareApp/internal/domain"
)

// handleServiceError converts domain errors to HTTP responses
func handleServiceError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		switch {
		case errors.Is(validationErr.Reason, domain.ErrInvalidPolicy):
			sendErrorResponse(w, http.StatusBadRequest, "INVALID_POLICY", err.Error())
		case errors.Is(validationErr.Reason, domain.ErrInvalidAmount):
			sendErrorResponse(w, http.StatusBadRequest, "INVALID_AMOUNT", err.Error())
		case errors.Is(validationErr.Reason, domain.ErrMissingField):
			sendErrorResponse(w, http.StatusBadRequest, "MISSING_FIELD", err.Error())
		default:
			sendErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		}
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		sendErrorResponse(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
	case errors.Is(err, domain.ErrPersistence), errors.Is(err, domain.ErrTransient):
		sendErrorResponse(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Claim store is temporarily unavailable")
	default:
		sendErrorResponse(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}

// sendErrorResponse sends an error response in the expected format
func sendErrorResponse(w http.ResponseWriter, statusCode int, code, description string) {
	errorResp := BaseError{
		Code:        code,
		Description: &description,
		ID:          uuid.New(),
	}

	writeJSON(w, statusCode, errorResp)
}

func writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}
