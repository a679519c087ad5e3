package feed

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var errDecode = errors.New("decode response")

// ErrorKind classifies a transport failure.
type ErrorKind string

const (
	KindNetwork ErrorKind = "network"
	KindTimeout ErrorKind = "timeout"
	KindStatus  ErrorKind = "status"
	KindDecode  ErrorKind = "decode"
)

// TransportError is a failed API call. Either StatusCode or Err is set.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("api %s returned status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("api %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Kind classifies the failure.
func (e *TransportError) Kind() ErrorKind {
	switch {
	case e.StatusCode != 0:
		return KindStatus
	case errors.Is(e.Err, errDecode):
		return KindDecode
	case isTimeout(e.Err):
		return KindTimeout
	default:
		return KindNetwork
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// ErrorMessage describes err for display. It is pure and safe to call from
// any goroutine.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return "Request cancelled"
	}
	var te *TransportError
	if !errors.As(err, &te) {
		if isTimeout(err) {
			return "Request timed out"
		}
		return err.Error()
	}
	switch te.Kind() {
	case KindTimeout:
		return "Request timed out"
	case KindDecode:
		return "Unexpected response from server"
	case KindNetwork:
		return "Network unavailable"
	}
	switch code := te.StatusCode; {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return "Not signed in"
	case code == http.StatusNotFound:
		return "Timeline not found"
	case code == http.StatusTooManyRequests:
		return "Too many requests, try again later"
	case code >= 500:
		return fmt.Sprintf("Server error (%d)", code)
	default:
		return fmt.Sprintf("Request failed (%d)", code)
	}
}
