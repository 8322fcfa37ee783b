package conversation

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
)

// ReplyGenerator produces one assistant reply from a fresh chat context seeded
// with history and persona. Implementations make a single attempt and return
// a *GenerationError on failure.
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, history []Turn, message, persona string) (string, error)
}

// ErrorCategory groups backend failures for logging and metrics.
type ErrorCategory string

const (
	CategoryAuth           ErrorCategory = "auth"
	CategoryQuota          ErrorCategory = "quota"
	CategoryUnavailable    ErrorCategory = "unavailable"
	CategoryInvalidRequest ErrorCategory = "invalid_request"
	CategoryBlocked        ErrorCategory = "blocked"
	CategoryTimeout        ErrorCategory = "timeout"
	CategoryNetwork        ErrorCategory = "network"
	CategoryMalformed      ErrorCategory = "malformed"
	CategoryUnknown        ErrorCategory = "unknown"
)

// GenerationError is returned when a backend call fails.
type GenerationError struct {
	Provider   string
	Category   ErrorCategory
	StatusCode int
	Err        error
}

func (e *GenerationError) Error() string {
	msg := fmt.Sprintf("conversation: %s generation failed (%s", e.Provider, e.Category)
	if e.StatusCode > 0 {
		msg += fmt.Sprintf(", status %d", e.StatusCode)
	}
	msg += ")"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// newGenerationError classifies err for provider. An existing *GenerationError is returned as is.
func newGenerationError(provider string, err error) *GenerationError {
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr
	}
	category, status := classifyError(err)
	return &GenerationError{Provider: provider, Category: category, StatusCode: status, Err: err}
}

func malformedResponse(provider string, err error) *GenerationError {
	return &GenerationError{Provider: provider, Category: CategoryMalformed, Err: err}
}

func classifyError(err error) (ErrorCategory, int) {
	if err == nil {
		return CategoryUnknown, 0
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return CategoryTimeout, 0
	}

	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return CategoryBlocked, 0
	}

	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		if code := apiErr.HTTPCode(); code > 0 {
			return categoryForStatus(code), code
		}
		if st := apiErr.GRPCStatus(); st != nil {
			return categoryForCode(st.Code()), 0
		}
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return categoryForStatus(gErr.Code), gErr.Code
	}

	// Smithy (AWS) response errors expose their status this way.
	var httpErr interface{ HTTPStatusCode() int }
	if errors.As(err, &httpErr) {
		code := httpErr.HTTPStatusCode()
		return categoryForStatus(code), code
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return CategoryTimeout, 0
		}
		return CategoryNetwork, 0
	}
	return CategoryUnknown, 0
}

func categoryForStatus(code int) ErrorCategory {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return CategoryAuth
	case code == http.StatusTooManyRequests:
		return CategoryQuota
	case code == http.StatusNotFound:
		return CategoryUnavailable
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return CategoryTimeout
	case code >= 500:
		return CategoryUnavailable
	case code >= 400:
		return CategoryInvalidRequest
	default:
		return CategoryUnknown
	}
}

func categoryForCode(code codes.Code) ErrorCategory {
	switch code {
	case codes.Unauthenticated, codes.PermissionDenied:
		return CategoryAuth
	case codes.ResourceExhausted:
		return CategoryQuota
	case codes.Unavailable, codes.Internal, codes.NotFound, codes.Aborted:
		return CategoryUnavailable
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return CategoryInvalidRequest
	case codes.DeadlineExceeded, codes.Canceled:
		return CategoryTimeout
	default:
		return CategoryUnknown
	}
}
