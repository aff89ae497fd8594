package llm

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
)

// ErrorKind classifies backend failures for the orchestrator.
type ErrorKind int

const (
	// KindFatal covers everything that switching models will not fix.
	KindFatal ErrorKind = iota
	// KindQuotaExceeded is a rate-limit or resource-exhaustion signal.
	KindQuotaExceeded
)

func (k ErrorKind) String() string {
	switch k {
	case KindQuotaExceeded:
		return "quota_exceeded"
	default:
		return "fatal"
	}
}

// Error is the classified error returned by every backend client.
type Error struct {
	Kind       ErrorKind
	Model      string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Model, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Model, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsQuotaExceeded reports whether err carries a quota-exceeded classification.
func IsQuotaExceeded(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindQuotaExceeded
}

func fatalError(model string, err error) *Error {
	return &Error{Kind: KindFatal, Model: model, Err: err}
}

// classifyHTTP maps an OpenAI-compatible error response to an Error.
func classifyHTTP(model string, status int, code string, err error) *Error {
	kind := KindFatal
	if status == http.StatusTooManyRequests || code == "rate_limit_exceeded" {
		kind = KindQuotaExceeded
	}
	return &Error{Kind: kind, Model: model, StatusCode: status, Err: err}
}

// classifyGoogle maps errors surfaced by the Google client libraries.
func classifyGoogle(model string, err error) *Error {
	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		status := apiErr.HTTPCode()
		if status == http.StatusTooManyRequests {
			return &Error{Kind: KindQuotaExceeded, Model: model, StatusCode: status, Err: err}
		}
		if s := apiErr.GRPCStatus(); s != nil && s.Code() == codes.ResourceExhausted {
			return &Error{Kind: KindQuotaExceeded, Model: model, StatusCode: http.StatusTooManyRequests, Err: err}
		}
		if status > 0 {
			return &Error{Kind: KindFatal, Model: model, StatusCode: status, Err: err}
		}
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		kind := KindFatal
		if gErr.Code == http.StatusTooManyRequests {
			kind = KindQuotaExceeded
		}
		return &Error{Kind: kind, Model: model, StatusCode: gErr.Code, Err: err}
	}

	return fatalError(model, err)
}
