// Package errors defines the typed failures surfaced by the assessment engine
// and the certification registry. Every failure carries a stable code; callers
// match on codes with errors.Is against the exported sentinels.
package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// Code identifies a failure kind.
type Code string

const (
	CodeInvalidScore        Code = "INVALID_SCORE"
	CodeFarmNotFound        Code = "FARM_NOT_FOUND"
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeCertificateNotFound Code = "CERTIFICATE_NOT_FOUND"
	CodeAssessmentNotFound  Code = "ASSESSMENT_NOT_FOUND"
	CodeHistoryFull         Code = "HISTORY_FULL"
	CodeBatchTooLarge       Code = "BATCH_TOO_LARGE"
	CodeInvalidInput        Code = "INVALID_INPUT"
	CodeStorage             Code = "STORAGE_ERROR"
)

// ServiceError is the single error type returned across package boundaries.
type ServiceError struct {
	Code    Code
	Message string
	Details map[string]any
	Err     error
}

// Sentinels for errors.Is matching. Matching compares codes only.
var (
	ErrInvalidScore        = &ServiceError{Code: CodeInvalidScore, Message: "score out of range"}
	ErrFarmNotFound        = &ServiceError{Code: CodeFarmNotFound, Message: "farm not found"}
	ErrUnauthorized        = &ServiceError{Code: CodeUnauthorized, Message: "unauthorized"}
	ErrCertificateNotFound = &ServiceError{Code: CodeCertificateNotFound, Message: "certificate not found"}
	ErrAssessmentNotFound  = &ServiceError{Code: CodeAssessmentNotFound, Message: "assessment not found"}
	ErrHistoryFull         = &ServiceError{Code: CodeHistoryFull, Message: "history full"}
	ErrBatchTooLarge       = &ServiceError{Code: CodeBatchTooLarge, Message: "batch too large"}
	ErrInvalidInput        = &ServiceError{Code: CodeInvalidInput, Message: "invalid input"}
	ErrStorage             = &ServiceError{Code: CodeStorage, Message: "storage error"}
)

func (e *ServiceError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Details[k])
		}
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes the underlying cause.
func (e *ServiceError) Unwrap() error { return e.Err }

// Is reports whether target is a ServiceError with the same code.
func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetails returns a copy of the error with an additional detail.
func (e *ServiceError) WithDetails(key string, value any) *ServiceError {
	details := make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	return &ServiceError{Code: e.Code, Message: e.Message, Details: details, Err: e.Err}
}

// Retryable reports whether retrying the same call can succeed. Only storage
// failures qualify; every domain failure is deterministic.
func (e *ServiceError) Retryable() bool { return e.Code == CodeStorage }

// New builds a ServiceError.
func New(code Code, message string) *ServiceError {
	return &ServiceError{Code: code, Message: message}
}

// Wrap builds a ServiceError around a cause.
func Wrap(code Code, message string, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, Err: err}
}

// InvalidScore reports a sub-score outside [0,100].
func InvalidScore(field string, value int) *ServiceError {
	return New(CodeInvalidScore, "score out of range").
		WithDetails("field", field).
		WithDetails("value", value)
}

// FarmNotFound reports a farm without recorded metrics.
func FarmNotFound(farmID uint64) *ServiceError {
	return New(CodeFarmNotFound, "farm metrics not found").WithDetails("farm_id", farmID)
}

// Unauthorized reports a caller that is not the required identity, or a
// lifecycle transition the certificate is not eligible for.
func Unauthorized(reason string) *ServiceError {
	return New(CodeUnauthorized, "unauthorized").WithDetails("reason", reason)
}

// CertificateNotFound reports an unknown certificate id.
func CertificateNotFound(id uint64) *ServiceError {
	return New(CodeCertificateNotFound, "certificate not found").WithDetails("certificate_id", id)
}

// AssessmentNotFound reports an unknown assessment id.
func AssessmentNotFound(id uint64) *ServiceError {
	return New(CodeAssessmentNotFound, "assessment not found").WithDetails("assessment_id", id)
}

// NoAssessments reports a farm whose assessment history is empty.
func NoAssessments(farmID uint64) *ServiceError {
	return New(CodeAssessmentNotFound, "no assessments for farm").WithDetails("farm_id", farmID)
}

// HistoryFull reports a per-farm history at capacity.
func HistoryFull(collection string, farmID uint64, capacity int) *ServiceError {
	return New(CodeHistoryFull, "history full").
		WithDetails("collection", collection).
		WithDetails("farm_id", farmID).
		WithDetails("capacity", capacity)
}

// BatchTooLarge reports a batch above the allowed size.
func BatchTooLarge(size, max int) *ServiceError {
	return New(CodeBatchTooLarge, "batch too large").
		WithDetails("size", size).
		WithDetails("max", max)
}

// InvalidInput reports a malformed argument.
func InvalidInput(field, reason string) *ServiceError {
	return New(CodeInvalidInput, "invalid input").
		WithDetails("field", field).
		WithDetails("reason", reason)
}

// Storage wraps a backend failure.
func Storage(op string, err error) *ServiceError {
	return Wrap(CodeStorage, "storage error", err).WithDetails("op", op)
}

// GetServiceError extracts a ServiceError from an error chain.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se
	}
	return nil
}

// CodeOf returns the code of err, or an empty code for foreign errors.
func CodeOf(err error) Code {
	if se := GetServiceError(err); se != nil {
		return se.Code
	}
	return ""
}

// IsNotFound reports whether err is any of the not-found kinds.
func IsNotFound(err error) bool {
	switch CodeOf(err) {
	case CodeFarmNotFound, CodeCertificateNotFound, CodeAssessmentNotFound:
		return true
	}
	return false
}

// IsUnauthorized reports whether err is an authorization failure.
func IsUnauthorized(err error) bool {
	return CodeOf(err) == CodeUnauthorized
}
