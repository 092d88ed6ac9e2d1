package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/skopiLandToken/skopi-sub000/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryUserInput represents user input errors (4xx)
	CategoryUserInput ErrorCategory = "user_input"
	// CategorySystem represents system errors (5xx)
	CategorySystem ErrorCategory = "system"
	// CategoryProvider represents chain RPC errors
	CategoryProvider ErrorCategory = "provider"
	// CategoryDatabase represents database errors
	CategoryDatabase ErrorCategory = "database"
	// CategoryCache represents cache errors
	CategoryCache ErrorCategory = "cache"
	// CategoryValidation represents validation errors
	CategoryValidation ErrorCategory = "validation"
	// CategoryAuthorization represents authorization errors
	CategoryAuthorization ErrorCategory = "authorization"
	// CategoryNotFound represents not found errors
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryConflict represents conflict errors
	CategoryConflict ErrorCategory = "conflict"
	// CategoryPrecondition represents operations attempted in the wrong state
	CategoryPrecondition ErrorCategory = "precondition"
	// CategoryRateLimit represents rate limit errors
	CategoryRateLimit ErrorCategory = "rate_limit"
	// CategoryMisconfiguration represents missing or invalid deployment settings
	CategoryMisconfiguration ErrorCategory = "misconfiguration"
)

// Stable error codes
const (
	CodeIntentNotFound          = "INTENT_NOT_FOUND"
	CodeIntentNotConfirmed      = "INTENT_NOT_CONFIRMED"
	CodeIntentNotVerifiable     = "INTENT_NOT_VERIFIABLE"
	CodeSignatureConflict       = "SIGNATURE_CONFLICT"
	CodeTrancheSoldOut          = "TRANCHE_SOLD_OUT"
	CodeTrancheNotFound         = "TRANCHE_NOT_FOUND"
	CodeSubmissionNotFound      = "SUBMISSION_NOT_FOUND"
	CodeSubmissionNotPending    = "SUBMISSION_NOT_PENDING"
	CodeCampaignNotFound        = "CAMPAIGN_NOT_FOUND"
	CodeTaskNotFound            = "TASK_NOT_FOUND"
	CodeCommissionNotFound      = "COMMISSION_NOT_FOUND"
	CodeInvalidStatusTransition = "INVALID_STATUS_TRANSITION"
	CodeChainUnavailable        = "CHAIN_UNAVAILABLE"
	CodeDatabaseError           = "DATABASE_ERROR"
	CodeCacheError              = "CACHE_ERROR"
	CodeAdminNotConfigured      = "ADMIN_NOT_CONFIGURED"
	CodeMisconfigured           = "MISCONFIGURED"
	CodeUnauthorized            = "UNAUTHORIZED"
	CodeInvalidParameter        = "INVALID_PARAMETER"
	CodeCommissionCommitFailed  = "COMMISSION_COMMIT_FAILED"
	CodeRateLimitExceeded       = "RATE_LIMIT_EXCEEDED"
	CodeInternal                = "INTERNAL_ERROR"
	CodeServiceUnavailable      = "SERVICE_UNAVAILABLE"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// HasCode reports whether any categorized error in err's chain carries code
func HasCode(err error, code string) bool {
	for err != nil {
		var catErr *CategorizedError
		if !stderrors.As(err, &catErr) {
			return false
		}
		if catErr.Code == code {
			return true
		}
		err = catErr.Cause
	}
	return false
}

// User Input Errors (4xx)

// NewInvalidParameterError creates an invalid parameter error
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       CodeInvalidParameter,
		Message:    fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryAuthorization,
		StatusCode: http.StatusUnauthorized,
		Code:       CodeUnauthorized,
		Message:    message,
	}
}

// NewNotFoundError creates a not found error with a resource-specific code
func NewNotFoundError(code, resource, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       code,
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewIntentNotFoundError creates an intent not found error
func NewIntentNotFoundError(id string) *CategorizedError {
	return NewNotFoundError(CodeIntentNotFound, "intent", id)
}

// NewConflictError creates a conflict error
func NewConflictError(code, message string, details map[string]interface{}) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       code,
		Message:    message,
		Details:    details,
	}
}

// NewSignatureConflictError reports a transaction signature already credited to another intent
func NewSignatureConflictError(intentID, signature string) *CategorizedError {
	return NewConflictError(CodeSignatureConflict,
		"transaction signature already confirms another intent",
		map[string]interface{}{
			"intentId":  intentID,
			"signature": signature,
		})
}

// NewTrancheSoldOutError reports a tranche that cannot cover the requested tokens
func NewTrancheSoldOutError(trancheID string, requested int64) *CategorizedError {
	return NewConflictError(CodeTrancheSoldOut,
		"tranche cannot cover the requested token amount",
		map[string]interface{}{
			"trancheId": trancheID,
			"requested": requested,
		})
}

// NewPreconditionError creates an error for an operation attempted in the wrong state
func NewPreconditionError(code, message string, details map[string]interface{}) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryPrecondition,
		StatusCode: http.StatusConflict,
		Code:       code,
		Message:    message,
		Details:    details,
	}
}

// NewIntentNotConfirmedError rejects commission computation for an unconfirmed intent
func NewIntentNotConfirmedError(id string, status types.IntentStatus) *CategorizedError {
	return NewPreconditionError(CodeIntentNotConfirmed,
		fmt.Sprintf("intent %s is %s, not confirmed", id, status),
		map[string]interface{}{"intentId": id, "status": status})
}

// NewIntentNotVerifiableError rejects verification of a failed intent
func NewIntentNotVerifiableError(id string, status types.IntentStatus) *CategorizedError {
	return NewPreconditionError(CodeIntentNotVerifiable,
		fmt.Sprintf("intent %s is %s and cannot be verified", id, status),
		map[string]interface{}{"intentId": id, "status": status})
}

// NewInvalidTransitionError rejects an illegal status change
func NewInvalidTransitionError(entity, id string, from, to interface{}) *CategorizedError {
	return NewPreconditionError(CodeInvalidStatusTransition,
		fmt.Sprintf("%s %s cannot move from %v to %v", entity, id, from, to),
		map[string]interface{}{"entity": entity, "id": id, "from": from, "to": to})
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(retryAfter int) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRateLimit,
		StatusCode: http.StatusTooManyRequests,
		Code:       CodeRateLimitExceeded,
		Message:    "rate limit exceeded",
		Details: map[string]interface{}{
			"retryAfter": retryAfter,
		},
	}
}

// System Errors (5xx)

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       CodeInternal,
		Message:    message,
		Cause:      cause,
	}
}

// NewDatabaseError creates a database error
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDatabase,
		StatusCode: http.StatusServiceUnavailable,
		Code:       CodeDatabaseError,
		Message:    fmt.Sprintf("database error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewCacheError creates a cache error
func NewCacheError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryCache,
		StatusCode: http.StatusServiceUnavailable,
		Code:       CodeCacheError,
		Message:    fmt.Sprintf("cache error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewServiceUnavailableError creates a service unavailable error
func NewServiceUnavailableError(service string) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusServiceUnavailable,
		Code:       CodeServiceUnavailable,
		Message:    fmt.Sprintf("service unavailable: %s", service),
		Details: map[string]interface{}{
			"service": service,
		},
	}
}

// NewCommissionCommitError reports that an intent was confirmed but its
// commission rows could not be written. Retryability follows the cause.
func NewCommissionCommitError(intentID string, cause error) *CategorizedError {
	category := CategorySystem
	if c := Categorize(cause); c != nil && c.Category != CategorySystem {
		category = c.Category
	}
	return &CategorizedError{
		Category:   category,
		StatusCode: http.StatusInternalServerError,
		Code:       CodeCommissionCommitFailed,
		Message:    "intent confirmed but commissions were not committed",
		Cause:      cause,
		Details: map[string]interface{}{
			"intentId": intentID,
		},
	}
}

// Misconfiguration

// NewMisconfigurationError reports a required setting that is missing or invalid
func NewMisconfigurationError(setting, message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryMisconfiguration,
		StatusCode: http.StatusServiceUnavailable,
		Code:       CodeMisconfigured,
		Message:    message,
		Details: map[string]interface{}{
			"setting": setting,
		},
	}
}

// NewAdminNotConfiguredError is returned by admin routes when no shared secret is set
func NewAdminNotConfiguredError() *CategorizedError {
	return &CategorizedError{
		Category:   CategoryMisconfiguration,
		StatusCode: http.StatusServiceUnavailable,
		Code:       CodeAdminNotConfigured,
		Message:    "admin access is not configured",
	}
}

// Chain Provider Errors

// NewChainUnavailableError wraps a chain RPC failure. It never means "payment not found".
func NewChainUnavailableError(endpoint string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryProvider,
		StatusCode: http.StatusBadGateway,
		Code:       CodeChainUnavailable,
		Message:    "chain RPC unavailable",
		Cause:      cause,
		Details: map[string]interface{}{
			"endpoint": endpoint,
		},
	}
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr
	}

	var svcErr *types.ServiceError
	if stderrors.As(err, &svcErr) {
		return categorizeServiceError(svcErr)
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return &CategorizedError{
			Category:   CategorySystem,
			StatusCode: http.StatusGatewayTimeout,
			Code:       "TIMEOUT",
			Message:    "operation timed out",
			Cause:      err,
		}
	}

	// Default to internal error
	return NewInternalError("unexpected error", err)
}

// categorizeServiceError categorizes a ServiceError
func categorizeServiceError(err *types.ServiceError) *CategorizedError {
	category, status := CategorySystem, http.StatusInternalServerError
	switch err.Code {
	case CodeInvalidParameter:
		category, status = CategoryValidation, http.StatusBadRequest
	case CodeIntentNotFound, CodeTrancheNotFound, CodeSubmissionNotFound, CodeCampaignNotFound, CodeTaskNotFound, CodeCommissionNotFound:
		category, status = CategoryNotFound, http.StatusNotFound
	case CodeSignatureConflict, CodeTrancheSoldOut:
		category, status = CategoryConflict, http.StatusConflict
	case CodeIntentNotConfirmed, CodeIntentNotVerifiable, CodeSubmissionNotPending, CodeInvalidStatusTransition:
		category, status = CategoryPrecondition, http.StatusConflict
	case CodeUnauthorized:
		category, status = CategoryAuthorization, http.StatusUnauthorized
	case CodeChainUnavailable:
		category, status = CategoryProvider, http.StatusBadGateway
	case CodeAdminNotConfigured, CodeMisconfigured:
		category, status = CategoryMisconfiguration, http.StatusServiceUnavailable
	}
	return &CategorizedError{
		Category:   category,
		StatusCode: status,
		Code:       err.Code,
		Message:    err.Message,
		Details:    err.Details,
	}
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsRetryable determines if an error is retryable
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	switch catErr.Category {
	case CategoryProvider, CategoryDatabase, CategoryCache:
		return true
	case CategorySystem:
		// Some system errors are retryable
		return catErr.StatusCode == http.StatusServiceUnavailable ||
			catErr.StatusCode == http.StatusGatewayTimeout
	default:
		return false
	}
}

// IsUserError determines if an error is a user error (4xx)
func IsUserError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	return catErr.StatusCode >= 400 && catErr.StatusCode < 500
}

// IsSystemError determines if an error is a system error (5xx)
func IsSystemError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	return catErr.StatusCode >= 500
}
