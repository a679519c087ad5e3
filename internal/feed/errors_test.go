package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestErrorMessage(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"cancelled", fmt.Errorf("wrapped: %w", context.Canceled), "Request cancelled"},
		{"bare deadline", context.DeadlineExceeded, "Request timed out"},
		{"transport deadline", &TransportError{Op: "GET /x", Err: context.DeadlineExceeded}, "Request timed out"},
		{"network", &TransportError{Op: "GET /x", Err: errors.New("connection refused")}, "Network unavailable"},
		{"decode", &TransportError{Op: "GET /x", Err: fmt.Errorf("%w: eof", errDecode)}, "Unexpected response from server"},
		{"unauthorized", &TransportError{Op: "GET /x", StatusCode: http.StatusUnauthorized}, "Not signed in"},
		{"not found", &TransportError{Op: "GET /x", StatusCode: http.StatusNotFound}, "Timeline not found"},
		{"rate limited", &TransportError{Op: "GET /x", StatusCode: http.StatusTooManyRequests}, "Too many requests, try again later"},
		{"server", &TransportError{Op: "GET /x", StatusCode: http.StatusBadGateway}, "Server error (502)"},
		{"other status", &TransportError{Op: "GET /x", StatusCode: http.StatusConflict}, "Request failed (409)"},
		{"plain", errors.New("boom"), "boom"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ErrorMessage(tc.err); got != tc.want {
				t.Fatalf("ErrorMessage(%v) = %q, want %q", tc.err, got, tc.want)
			}
		})
	}
}

func TestTransportErrorUnwraps(t *testing.T) {
	cause := errors.New("dial failed")
	err := fmt.Errorf("fetch: %w", &TransportError{Op: "GET /x", Err: cause})
	if !errors.Is(err, cause) {
		t.Fatalf("errors.Is did not find the cause through TransportError")
	}
}

func TestItemParsedCreatedAt(t *testing.T) {
	cases := []struct {
		in   string
		zero bool
	}{
		{"", true},
		{"garbage", true},
		{"2024-05-01T10:00:00Z", false},
		{"2024-05-01 10:00:00", false},
	}
	for _, tc := range cases {
		got := Item{CreatedAt: tc.in}.ParsedCreatedAt()
		if got.IsZero() != tc.zero {
			t.Fatalf("ParsedCreatedAt(%q) = %v, zero=%v want %v", tc.in, got, got.IsZero(), tc.zero)
		}
	}
	if want := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC); !(Item{CreatedAt: "2024-05-01T10:00:00Z"}).ParsedCreatedAt().Equal(want) {
		t.Fatalf("RFC3339 timestamp parsed incorrectly")
	}
}
