package objstore

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Provider error codes that change how a failure is handled.
const (
	CodeSendError        = "send_error"
	CodeUnauthorized     = "unauthorized"
	CodeBadAuthToken     = "bad_auth_token"
	CodeExpiredAuthToken = "expired_auth_token"

	// CodeMalformedResponse marks a 200 whose body could not be decoded.
	CodeMalformedResponse = "malformed_response"
)

// Kind is the closed set of failure categories derived from an Error's
// status and code.
type Kind int

const (
	// KindUnexpected is any status/code pair outside the known taxonomy.
	KindUnexpected Kind = iota
	// KindTransport means no response was received.
	KindTransport
	// KindBadRequest is a 400.
	KindBadRequest
	// KindUnauthorized is a 401 "unauthorized": the key lacks a capability.
	KindUnauthorized
	// KindBadAuthToken is a 401 "bad_auth_token".
	KindBadAuthToken
	// KindExpiredAuthToken is a 401 "expired_auth_token".
	KindExpiredAuthToken
	// KindAuthRejected is a 401 with any other code.
	KindAuthRejected
	// KindCapExceeded is a 403: a usage cap was hit.
	KindCapExceeded
	// KindRequestTimeout is a 408.
	KindRequestTimeout
	// KindServiceUnavailable is a 503.
	KindServiceUnavailable
)

var kindNames = map[Kind]string{
	KindUnexpected:         "unexpected",
	KindTransport:          "transport",
	KindBadRequest:         "bad_request",
	KindUnauthorized:       "unauthorized",
	KindBadAuthToken:       "bad_auth_token",
	KindExpiredAuthToken:   "expired_auth_token",
	KindAuthRejected:       "auth_rejected",
	KindCapExceeded:        "cap_exceeded",
	KindRequestTimeout:     "request_timeout",
	KindServiceUnavailable: "service_unavailable",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}

	return fmt.Sprintf("kind(%d)", int(k))
}

// IsAuth reports whether the kind is any flavour of 401.
func (k Kind) IsAuth() bool {
	switch k {
	case KindUnauthorized, KindBadAuthToken, KindExpiredAuthToken, KindAuthRejected:
		return true
	default:
		return false
	}
}

// Error is the decoded failure payload of a provider call. Transport
// failures are reported as an Error with status 0 and code send_error.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`

	cause error
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("sending request: %s", e.Message)
	}

	return fmt.Sprintf("provider returned %d %s: %s", e.Status, e.Code, e.Message)
}

// Unwrap returns the transport or decoding error behind the envelope.
func (e *Error) Unwrap() error {
	return e.cause
}

// Kind classifies the error by status and code.
func (e *Error) Kind() Kind {
	switch e.Status {
	case 0:
		return KindTransport
	case http.StatusBadRequest:
		return KindBadRequest
	case http.StatusUnauthorized:
		switch e.Code {
		case CodeUnauthorized:
			return KindUnauthorized
		case CodeBadAuthToken:
			return KindBadAuthToken
		case CodeExpiredAuthToken:
			return KindExpiredAuthToken
		default:
			return KindAuthRejected
		}
	case http.StatusForbidden:
		return KindCapExceeded
	case http.StatusRequestTimeout:
		return KindRequestTimeout
	case http.StatusServiceUnavailable:
		return KindServiceUnavailable
	default:
		return KindUnexpected
	}
}

// sendError wraps a transport failure in an envelope.
func sendError(err error) *Error {
	return &Error{
		Status:  0,
		Code:    CodeSendError,
		Message: err.Error(),
		cause:   err,
	}
}

// decodeError builds an envelope from a non-200 response body. Bodies that
// are not an envelope keep the HTTP status and carry the raw text.
func decodeError(status int, body []byte) *Error {
	var env Error
	if err := json.Unmarshal(body, &env); err == nil && env.Code != "" {
		if env.Status == 0 {
			env.Status = status
		}

		return &env
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(status)
	}

	return &Error{
		Status:  status,
		Message: msg,
	}
}
