package models

import (
	"errors"
	"fmt"
)

// Error codes used in API responses and internal error handling.
const (
	ErrCodeDistillation  = "DISTILLATION_FAILED"
	ErrCodeTranslation   = "TRANSLATION_FAILED"
	ErrCodeTokenCount    = "TOKEN_COUNT_FAILED"
	ErrCodeCancelled     = "CANCELLED"
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeRateLimited   = "RATE_LIMITED"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeUsageExceeded = "USAGE_LIMIT_EXCEEDED"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeUnavailable   = "SERVICE_UNAVAILABLE"
	ErrCodeInternal      = "INTERNAL_ERROR"

	// Upstream text-generation failures. These are wrapped by a
	// DISTILLATION_FAILED error before leaving the pipeline.
	ErrCodeLLMFailure     = "LLM_FAILURE"
	ErrCodeLLMAuthFailure = "LLM_AUTH_FAILURE"
	ErrCodeLLMRateLimited = "LLM_RATE_LIMITED"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PipelineError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type PipelineError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewPipelineError creates a new PipelineError.
func NewPipelineError(code, message string, err error) *PipelineError {
	return &PipelineError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *PipelineError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// DistillationError reports that the rewriting stage produced nothing usable.
func DistillationError(message string, err error) *PipelineError {
	return NewPipelineError(ErrCodeDistillation, message, err)
}

// TranslationError reports that every translation backend failed.
func TranslationError(message string, err error) *PipelineError {
	return NewPipelineError(ErrCodeTranslation, message, err)
}

// AsPipelineError returns the outermost PipelineError in err's chain, or
// wraps err as INTERNAL_ERROR when there is none.
func AsPipelineError(err error) *PipelineError {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe
	}
	return NewPipelineError(ErrCodeInternal, err.Error(), err)
}

// HasCode reports whether any PipelineError in err's chain carries code.
func HasCode(err error, code string) bool {
	for err != nil {
		var pe *PipelineError
		if !errors.As(err, &pe) {
			return false
		}
		if pe.Code == code {
			return true
		}
		err = pe.Err
	}
	return false
}
