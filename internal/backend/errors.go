package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNotSingle is returned when a single-row query matches zero or several rows.
	ErrNotSingle = errors.New("expected exactly one row")
	// ErrNoSession is returned by calls that need a signed-in session.
	ErrNoSession = errors.New("no active session")
)

// APIError is a non-2xx answer from either API surface.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend: %d %s", e.Status, http.StatusText(e.Status))
	}
	return e.Message
}

// parseAPIError understands both the auth API body ({msg|error_description|error})
// and the record API body ({message, code}).
func parseAPIError(status int, raw []byte) error {
	var body struct {
		Code             json.RawMessage `json:"code"`
		ErrorCode        string          `json:"error_code"`
		Msg              string          `json:"msg"`
		Message          string          `json:"message"`
		Error            string          `json:"error"`
		ErrorDescription string          `json:"error_description"`
	}
	_ = json.Unmarshal(raw, &body)

	apiErr := &APIError{Status: status}
	for _, m := range []string{body.Msg, body.Message, body.ErrorDescription, body.Error} {
		if strings.TrimSpace(m) != "" {
			apiErr.Message = m
			break
		}
	}

	apiErr.Code = body.ErrorCode
	if apiErr.Code == "" && len(body.Code) > 0 {
		// GoTrue sends the HTTP status as a number, PostgREST a string code.
		apiErr.Code = strings.Trim(string(body.Code), `"`)
	}
	return apiErr
}
