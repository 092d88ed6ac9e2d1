package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	apperrors "github.com/skopiLandToken/skopi-sub000/internal/errors"
	"github.com/skopiLandToken/skopi-sub000/internal/logging"
	"github.com/skopiLandToken/skopi-sub000/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	respondJSON(w, statusCode, ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// respondServiceError maps a service error onto its category's status code.
// Internal details of 5xx errors are logged and never returned.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	c := apperrors.Categorize(err)
	if c.StatusCode >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).WithError(err).WithField("code", c.Code).Error("request failed")
	}
	message, details := c.Message, c.Details
	if c.Code == apperrors.CodeInternal {
		message, details = "An internal error occurred", nil
	}
	respondJSON(w, c.StatusCode, ErrorResponse{
		Error: types.ServiceError{Code: c.Code, Message: message, Details: details},
	})
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// respondReason sends a negative allocation or submission result with the
// status its reason code maps to.
func respondReason(w http.ResponseWriter, code types.ReasonCode, retryAfterSeconds int, body interface{}) {
	status := reasonStatus(code)
	if status == http.StatusTooManyRequests && retryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	}
	respondJSON(w, status, body)
}

// reasonStatus maps negative result codes: malformed input is 422, a
// throttled caller is 429 and everything else is a conflict with ledger state.
func reasonStatus(code types.ReasonCode) int {
	switch code {
	case types.ReasonInvalidAmount,
		types.ReasonInvalidWallet,
		types.ReasonInvalidEvidenceURL,
		types.ReasonEvidenceHTTPSRequired,
		types.ReasonEvidenceDomainNotAllowed,
		types.ReasonEvidenceTooShort,
		types.ReasonRejectReasonRequired:
		return http.StatusUnprocessableEntity
	case types.ReasonRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusConflict
	}
}

// parseJSONBody parses JSON request body.
func parseJSONBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

const maxBodyBytes = 1 << 20

// Common error codes
const (
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeNotFound     = "NOT_FOUND"
)
