package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"linova-go/internal/apperr"
)

var errNoSession = errors.New("no active session")

// RequestError is an HTTP failure reported by the backend.
type RequestError struct {
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed (%d)", e.StatusCode)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.StatusCode)
}

func parseError(op string, statusCode int, body []byte) error {
	reqErr := &RequestError{StatusCode: statusCode}
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		reqErr.Message = payload.Message
	} else {
		reqErr.Message = strings.TrimSpace(string(body))
		if reqErr.Message == "" {
			reqErr.Message = http.StatusText(statusCode)
		}
	}
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return apperr.Auth(op, reqErr)
	case statusCode == http.StatusNotFound:
		return apperr.NotFound(op, reqErr)
	case statusCode >= 500 || statusCode == http.StatusTooManyRequests:
		return apperr.Network(op, reqErr)
	default:
		return apperr.New(apperr.KindUnknown, op, reqErr)
	}
}

// asAuthError reclassifies a request failure from a user-initiated auth flow.
// Transport failures stay network errors.
func asAuthError(op string, err error) error {
	if err == nil || apperr.Is(err, apperr.KindNetwork) {
		return err
	}
	return apperr.Auth(op, err)
}
