package ratelimit

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type failingLimiter struct{}

func (failingLimiter) Check(context.Context, string, int, time.Duration) (Decision, error) {
	return Decision{}, errors.New("backend unavailable")
}

func TestTracker_Allow(t *testing.T) {
	tracker := NewTracker(NewMemoryLimiter(), zerolog.Nop())
	quota := Quota{Operation: "export", MaxRequests: 2, Window: time.Minute}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := tracker.Allow(ctx, quota, "1.2.3.4"); err != nil {
			t.Fatalf("request %d: error = %v", i+1, err)
		}
	}

	err := tracker.Allow(ctx, quota, "1.2.3.4")
	var limited *LimitedError
	if !errors.As(err, &limited) {
		t.Fatalf("error = %v, want *LimitedError", err)
	}
	if limited.Operation != "export" {
		t.Errorf("Operation = %q, want export", limited.Operation)
	}
	if limited.RetryAfter <= 0 {
		t.Errorf("RetryAfter = %v, want > 0", limited.RetryAfter)
	}

	if err := tracker.Allow(ctx, quota, "5.6.7.8"); err != nil {
		t.Errorf("other client: error = %v", err)
	}
}

func TestTracker_FailsOpen(t *testing.T) {
	tracker := NewTracker(failingLimiter{}, zerolog.Nop())

	for i := 0; i < 5; i++ {
		if err := tracker.Allow(context.Background(), ExportQuota, "c"); err != nil {
			t.Fatalf("error = %v, want nil when backend fails", err)
		}
	}
}

func TestClientKey(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"forwarded single", map[string]string{"X-Forwarded-For": "203.0.113.7"}, "203.0.113.7"},
		{"forwarded chain", map[string]string{"X-Forwarded-For": " 203.0.113.7 , 10.0.0.1"}, "203.0.113.7"},
		{"forwarded wins over real ip", map[string]string{"X-Forwarded-For": "1.1.1.1", "X-Real-IP": "2.2.2.2"}, "1.1.1.1"},
		{"real ip", map[string]string{"X-Real-IP": "2.2.2.2"}, "2.2.2.2"},
		{"empty forwarded entry", map[string]string{"X-Forwarded-For": " , 10.0.0.1", "X-Real-IP": "2.2.2.2"}, "2.2.2.2"},
		{"none", nil, UnknownClient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/export", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := ClientKey(req); got != tt.want {
				t.Errorf("ClientKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLimitedError_Message(t *testing.T) {
	err := &LimitedError{Operation: "page", RetryAfter: 1500 * time.Millisecond}
	if got, want := err.Error(), "rate limit exceeded for page, retry after 1.5s"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestEntry_Expired(t *testing.T) {
	now := time.Now()
	e := &Entry{Count: 1, ResetAt: now}
	if !e.Expired(now) {
		t.Error("entry should be expired at ResetAt")
	}
	if e.Expired(now.Add(-time.Second)) {
		t.Error("entry should not be expired before ResetAt")
	}
	if got := e.RetryAfter(now.Add(time.Second)); got != 0 {
		t.Errorf("RetryAfter past reset = %v, want 0", got)
	}
}
