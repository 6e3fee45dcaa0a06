package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrModelNotFound    = errors.New("model not found in catalog")
	ErrProviderNotFound = errors.New("provider not found")
	ErrMissingUser      = errors.New("missing user context")
)

// ErrorKind tags the variants of the gateway error taxonomy.
type ErrorKind string

const (
	KindValidation          ErrorKind = "validation"
	KindUnsupportedVendor   ErrorKind = "unsupported_vendor"
	KindUnsupportedModality ErrorKind = "unsupported_modality"
	KindThrottling          ErrorKind = "throttling"
	KindInvocation          ErrorKind = "invocation"
)

// GatewayError is the typed error every gateway operation returns. It is
// never mutated after construction and is propagated, not retried, by the
// gateway itself; RetryAfterMs is guidance for the caller.
type GatewayError struct {
	Kind         ErrorKind
	Code         string
	Service      string
	Operation    string
	StatusCode   int
	ModelID      string
	Vendor       string
	RetryAfterMs int64
	Message      string
	Cause        error
}

func (e *GatewayError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *GatewayError) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the error onto the status the API surface should return.
func (e *GatewayError) HTTPStatus() int {
	switch e.Kind {
	case KindValidation, KindUnsupportedVendor, KindUnsupportedModality:
		return http.StatusBadRequest
	case KindThrottling:
		return http.StatusTooManyRequests
	default:
		if e.StatusCode >= 400 && e.StatusCode < 600 {
			return e.StatusCode
		}
		return http.StatusBadGateway
	}
}

func NewValidationError(code, message string) *GatewayError {
	return &GatewayError{
		Kind:       KindValidation,
		Code:       code,
		Service:    "gateway",
		StatusCode: http.StatusBadRequest,
		Message:    message,
	}
}

func NewUnsupportedVendorError(vendor, modelID string) *GatewayError {
	return &GatewayError{
		Kind:       KindUnsupportedVendor,
		Code:       "unsupported_vendor",
		Service:    "gateway",
		Operation:  "resolve_vendor",
		StatusCode: http.StatusBadRequest,
		ModelID:    modelID,
		Vendor:     vendor,
		Message:    fmt.Sprintf("unsupported vendor %q", vendor),
	}
}

func NewUnsupportedModalityError(modelID, modality string) *GatewayError {
	return &GatewayError{
		Kind:       KindUnsupportedModality,
		Code:       "unsupported_modality",
		Service:    "gateway",
		Operation:  "validate_request",
		StatusCode: http.StatusBadRequest,
		ModelID:    modelID,
		Message:    fmt.Sprintf("model %s does not support modality %s", modelID, modality),
	}
}

func NewThrottlingError(modelID, vendor string, retryAfterMs int64, cause error) *GatewayError {
	return &GatewayError{
		Kind:         KindThrottling,
		Code:         "throttled",
		Service:      "provider",
		Operation:    "invoke_model",
		StatusCode:   http.StatusTooManyRequests,
		ModelID:      modelID,
		Vendor:       vendor,
		RetryAfterMs: retryAfterMs,
		Message:      "too many requests, retry later",
		Cause:        cause,
	}
}

func NewInvocationError(modelID, vendor string, statusCode int, cause error) *GatewayError {
	if statusCode == 0 {
		statusCode = http.StatusInternalServerError
	}
	return &GatewayError{
		Kind:       KindInvocation,
		Code:       "invocation_failed",
		Service:    "provider",
		Operation:  "invoke_model",
		StatusCode: statusCode,
		ModelID:    modelID,
		Vendor:     vendor,
		Message:    "model invocation failed",
		Cause:      cause,
	}
}

// AsGatewayError unwraps err into a *GatewayError when one is present.
func AsGatewayError(err error) (*GatewayError, bool) {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

// IsKind reports whether err carries a GatewayError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	ge, ok := AsGatewayError(err)
	return ok && ge.Kind == kind
}
