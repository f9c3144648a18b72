package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/utafrali/EcommerceGo/taxonomy/pkg/errors"
)

const maxErrorBody = 1 << 20

// StatusError is an upstream answer with a non-2xx status. Code and Message
// are filled from the standard error envelope when the body carries one.
type StatusError struct {
	Status  int
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("upstream status %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("upstream status %d: %s", e.Status, e.Message)
}

// downstreamErrorResponse mirrors the httputil error envelope.
type downstreamErrorResponse struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// readStatusError consumes and closes resp.Body.
func readStatusError(resp *http.Response) *StatusError {
	defer func() { _ = resp.Body.Close() }()

	se := &StatusError{Status: resp.StatusCode}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		se.Message = http.StatusText(resp.StatusCode)
		return se
	}

	var downstream downstreamErrorResponse
	if json.Unmarshal(body, &downstream) == nil && downstream.Error != nil {
		se.Code = downstream.Error.Code
		se.Message = downstream.Error.Message
		return se
	}

	se.Message = strings.TrimSpace(string(body))
	if se.Message == "" {
		se.Message = http.StatusText(resp.StatusCode)
	}
	return se
}

// ParseResponseError reads the body of a non-2xx response and translates it
// into an AppError. The body is consumed and closed.
func ParseResponseError(resp *http.Response, serviceName string) error {
	return MapError(readStatusError(resp), serviceName)
}

// MapError translates any error produced while talking to an upstream into the
// taxonomy error kinds:
//
//	context cancellation    returned unchanged
//	*StatusError 404        NotFound
//	*StatusError 400        InvalidInput
//	*StatusError 409        Conflict
//	*StatusError 422        Validation
//	*StatusError 401/403    Unauthorized / Forbidden
//	*StatusError other      Server
//	anything else           Network
func MapError(err error, serviceName string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return context.Canceled
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var se *StatusError
	if !errors.As(err, &se) {
		return apperrors.Network(fmt.Errorf("%s: %w", serviceName, err))
	}

	qualified := fmt.Sprintf("%s: %s", serviceName, se.Message)
	switch se.Status {
	case http.StatusNotFound:
		return apperrors.NotFound(serviceName, se.Message)
	case http.StatusBadRequest:
		return apperrors.InvalidInput(qualified)
	case http.StatusConflict:
		return apperrors.Conflict(qualified)
	case http.StatusUnprocessableEntity:
		return apperrors.Validation(qualified)
	case http.StatusUnauthorized:
		return apperrors.Unauthorized(qualified)
	case http.StatusForbidden:
		return apperrors.Forbidden(qualified)
	default:
		return apperrors.Server(se.Status, qualified)
	}
}

