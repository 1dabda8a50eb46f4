package resilience

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/rotisserie/eris"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("bad request"), false},
		{"transient", NewTransientError(errors.New("503"), 503), true},
		{"wrapped transient", eris.Wrap(NewTransientError(errors.New("502"), 502), "fetch"), true},
		{"rate limit", &RateLimitError{Message: "429"}, true},
		{"wrapped rate limit", fmt.Errorf("call: %w", &RateLimitError{}), true},
		{"circuit open", ErrCircuitOpen, false},
		{"reset by peer", errors.New("read: connection reset by peer"), true},
		{"io timeout", errors.New("dial tcp: i/o timeout"), true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsTransient(tc.err); got != tc.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	if d := ParseRetryAfter("5", now); d != 5*time.Second {
		t.Errorf("expected 5s, got %s", d)
	}
	if d := ParseRetryAfter("1.5", now); d != 1500*time.Millisecond {
		t.Errorf("expected 1.5s, got %s", d)
	}
	if d := ParseRetryAfter("", now); d != 0 {
		t.Errorf("expected 0, got %s", d)
	}
	if d := ParseRetryAfter("-3", now); d != 0 {
		t.Errorf("expected 0 for negative, got %s", d)
	}
	date := now.Add(10 * time.Second).Format(http.TimeFormat)
	if d := ParseRetryAfter(date, now); d != 10*time.Second {
		t.Errorf("expected 10s from http date, got %s", d)
	}
	if d := ParseRetryAfter("garbage", now); d != 0 {
		t.Errorf("expected 0 for garbage, got %s", d)
	}
}

func TestFromHTTPStatus(t *testing.T) {
	err := FromHTTPStatus(429, "7", "https://r.jina.ai")
	if !IsRateLimited(err) {
		t.Fatalf("expected rate limit error, got %T", err)
	}
	if RetryAfterOf(err) != 7*time.Second {
		t.Errorf("expected 7s retry-after, got %s", RetryAfterOf(err))
	}

	err = FromHTTPStatus(503, "", "x")
	var te *TransientError
	if !errors.As(err, &te) || te.StatusCode != 503 {
		t.Errorf("expected transient 503, got %v", err)
	}

	err = FromHTTPStatus(404, "", "x")
	if IsTransient(err) {
		t.Errorf("404 should not be transient")
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("expected %d transient", code)
		}
	}
	for _, code := range []int{200, 400, 401, 403, 404} {
		if IsTransientHTTPStatus(code) {
			t.Errorf("expected %d not transient", code)
		}
	}
}

func TestRateLimitError_Message(t *testing.T) {
	e := &RateLimitError{Message: "api", RetryAfter: 2 * time.Second}
	if e.Error() != "rate limited: api (retry after 2s)" {
		t.Errorf("unexpected message %q", e.Error())
	}
}
