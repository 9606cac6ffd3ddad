package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for inbound rate limiting.
var (
	rateLimitDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docapi_rate_limit_decisions_total",
		Help: "Inbound rate limit decisions by operation and outcome",
	}, []string{"operation", "decision"})

	rateLimitBackendErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docapi_rate_limit_backend_errors_total",
		Help: "Limiter backend failures; requests are admitted when this happens",
	})
)

// UnknownClient is the bucket for requests without any forwarding header.
const UnknownClient = "unknown"

// Tracker gates inbound operations against their quotas.
type Tracker struct {
	limiter Limiter
	logger  zerolog.Logger
}

// NewTracker creates a new tracker over a limiter.
func NewTracker(limiter Limiter, logger zerolog.Logger) *Tracker {
	return &Tracker{
		limiter: limiter,
		logger:  logger,
	}
}

// Allow counts one request of client against quota. It returns a
// *LimitedError when the quota is exhausted. A failing limiter backend admits
// the request.
func (t *Tracker) Allow(ctx context.Context, quota Quota, client string) error {
	decision, err := t.limiter.Check(ctx, Key(quota.Operation, client), quota.MaxRequests, quota.Window)
	if err != nil {
		rateLimitBackendErrorsTotal.Inc()
		rateLimitDecisionsTotal.WithLabelValues(quota.Operation, "error").Inc()
		t.logger.Warn().Err(err).Str("operation", quota.Operation).Msg("Rate limit check failed, admitting request")
		return nil
	}

	if !decision.Allowed {
		rateLimitDecisionsTotal.WithLabelValues(quota.Operation, "denied").Inc()
		t.logger.Warn().
			Str("operation", quota.Operation).
			Str("client_key", client).
			Dur("retry_after", decision.RetryAfter).
			Msg("Request blocked by rate limiter")
		return &LimitedError{Operation: quota.Operation, RetryAfter: decision.RetryAfter}
	}

	rateLimitDecisionsTotal.WithLabelValues(quota.Operation, "allowed").Inc()
	return nil
}

// ClientKey identifies the caller: the first X-Forwarded-For entry, else
// X-Real-IP, else UnknownClient.
func ClientKey(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	return UnknownClient
}

// RemoteHost returns the host part of r.RemoteAddr, for logging.
func RemoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
