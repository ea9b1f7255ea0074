package letsim

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common failure modes.
var (
	// ErrValidation indicates a request or message failed validation.
	ErrValidation = errors.New("validation error")

	// ErrStreamNotReady indicates Message() was called before Next().
	ErrStreamNotReady = errors.New("stream not ready: call Next() first")

	// ErrStreamClosed indicates an operation on a closed stream.
	ErrStreamClosed = errors.New("stream closed")

	// ErrToolNotFound indicates the requested tool does not exist.
	ErrToolNotFound = errors.New("tool not found")

	// ErrInvalidPath indicates a project path escapes the project root or is empty.
	ErrInvalidPath = errors.New("invalid project path")
)

// UpstreamHTTPError is returned when the chat endpoint answers with a
// non-2xx status. It is raised before any stream decoding happens.
type UpstreamHTTPError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamHTTPError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("upstream returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream returned HTTP %d: %s", e.StatusCode, body)
}

// NetworkError wraps a transport failure while connecting or reading the
// response body.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return "network error: " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error { return e.Err }

// connectivity failure signatures from net/http and the resolver.
var connectivitySignatures = []string{
	"connection refused",
	"no such host",
	"network is unreachable",
	"connection reset",
}

// Hint returns a suggestion when the failure looks like the relay is not
// reachable, or "" otherwise.
func (e *NetworkError) Hint() string {
	return ConnectivityHint(e)
}

// ConnectivityHint returns a hint for errors that match a connectivity
// failure signature anywhere in their chain.
func ConnectivityHint(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range connectivitySignatures {
		if strings.Contains(msg, sig) {
			return "Could not reach the relay. Make sure letsim-relay is running and the relay URL is correct."
		}
	}
	return ""
}
