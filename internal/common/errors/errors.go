// Package errors provides the standardized error taxonomy for the service.
package errors

import (
	"fmt"
	"time"
)

// ==========================
// 1. Error Codes
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Validation errors are raised locally, before any network call.
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"

	// Auth errors map to a small set of known user-facing messages.
	ErrCodeInvalidCredentials ErrorCode = "AUTH_INVALID_CREDENTIALS"
	ErrCodeEmailInUse         ErrorCode = "AUTH_EMAIL_IN_USE"
	ErrCodeWeakPassword       ErrorCode = "AUTH_WEAK_PASSWORD"
	ErrCodeAuthUnknown        ErrorCode = "AUTH_UNKNOWN"

	// Subscription errors terminate a catalog subscription but never the view.
	ErrCodeSubscriptionFailed ErrorCode = "SUBSCRIPTION_FAILED"

	// Submission errors carry the backend's rejection of a negotiation.
	ErrCodeSubmissionFailed ErrorCode = "SUBMISSION_FAILED"
)

// ==========================
// 2. Error Types
// ==========================

// ValidationError is a local, field-specific error raised before any
// network call is made.
type ValidationError struct {
	Field     string    `json:"field"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("ValidationError[%s]: %s", e.Field, e.Reason)
}

// AuthError is an authentication failure mapped to a user-facing message.
type AuthError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("AuthError[%s]: %s", e.Code, e.Message)
}

// SubscriptionError describes a terminated catalog subscription. It is
// surfaced as a non-fatal banner; the catalog is unavailable, not empty.
type SubscriptionError struct {
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("SubscriptionError: %s", e.Reason)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }

// SubmissionError carries the backend's message for a rejected negotiation
// submission, or a generic fallback when the backend gave none.
type SubmissionError struct {
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("SubmissionError: %s", e.Message)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// ==========================
// 3. Constructors
// ==========================

// NewValidationError creates a field-specific validation error.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{
		Field:     field,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
}

// authMessages maps known auth codes to user-facing messages. Unknown codes
// fall back to a generic message via NewAuthError.
var authMessages = map[ErrorCode]string{
	ErrCodeInvalidCredentials: "Invalid email or password",
	ErrCodeEmailInUse:         "An account with this email already exists",
	ErrCodeWeakPassword:       "Password does not meet the minimum requirements",
}

const genericAuthMessage = "Authentication failed. Please try again"

// NewAuthError creates an auth error with the mapped user-facing message.
func NewAuthError(code ErrorCode, details string) *AuthError {
	msg, known := authMessages[code]
	if !known {
		code = ErrCodeAuthUnknown
		msg = genericAuthMessage
	}
	return &AuthError{Code: code, Message: msg, Details: details}
}

// NewSubscriptionError wraps a transport or permission failure on a
// catalog subscription.
func NewSubscriptionError(reason string, err error) *SubscriptionError {
	if reason == "" {
		reason = "deal feed unavailable"
	}
	return &SubscriptionError{Reason: reason, Err: err}
}

const genericSubmissionMessage = "Could not submit your proposal. Please try again"

// NewSubmissionError wraps a backend rejection; message falls back to a
// generic one when the backend gave nothing displayable.
func NewSubmissionError(message string, err error) *SubmissionError {
	if message == "" {
		message = genericSubmissionMessage
	}
	return &SubmissionError{Message: message, Err: err}
}

// ==========================
// 4. Classification Helpers
// ==========================

// IsValidation reports whether err is a local validation error.
func IsValidation(err error) bool {
	_, ok := err.(*ValidationError)
	return ok
}

// IsAuth reports whether err is an authentication error.
func IsAuth(err error) bool {
	_, ok := err.(*AuthError)
	return ok
}

// IsSubmission reports whether err is a rejected negotiation submission.
func IsSubmission(err error) bool {
	_, ok := err.(*SubmissionError)
	return ok
}
