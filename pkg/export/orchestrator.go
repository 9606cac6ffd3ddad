// Package export runs whole-entity exports and single-page queries against
// the remote document API.
//
// V1 exports start with a cursor scroll and fall back once to a windowed
// search when a scroll call is rejected by the remote. V2 exports use a paged
// search under a resolved schema and have no fallback.
package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/docapi-export/pkg/docapi"
	"github.com/Sternrassler/docapi-export/pkg/pagination"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for exports.
var (
	exportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docapi_exports_total",
		Help: "Completed exports by version, strategy and outcome",
	}, []string{"version", "strategy", "outcome"})

	exportDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "docapi_export_duration_seconds",
		Help:    "Duration of whole exports",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"version"})

	exportFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docapi_export_fallbacks_total",
		Help: "V1 exports that fell back from scroll to windowed search",
	})

	exportTruncatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docapi_export_truncated_total",
		Help: "Exports that returned a truncated result",
	}, []string{"strategy"})
)

// Request describes one export. Schema is optional.
type Request struct {
	Credentials docapi.Credentials
	Version     docapi.Version
	Entity      string
	Schema      string
}

func (r Request) strategyRequest() pagination.Request {
	return pagination.Request{
		Credentials: r.Credentials,
		Version:     r.Version,
		Entity:      r.Entity,
		Schema:      r.Schema,
	}
}

// Result is the outcome of an export.
type Result = pagination.Result

// Orchestrator selects a strategy by protocol version and escalates to the
// fallback strategy when the primary one is rejected by the remote.
type Orchestrator struct {
	strategies *pagination.Set
	logger     zerolog.Logger
}

// NewOrchestrator creates an orchestrator with one instance of every strategy.
func NewOrchestrator(api pagination.API, resolver pagination.SchemaResolver, cfg pagination.Config) *Orchestrator {
	return &Orchestrator{
		strategies: pagination.NewSet(api, resolver, cfg),
		logger:     log.With().Str("component", "export").Logger(),
	}
}

// Export validates req and retrieves every record of the entity.
//
// Only a *docapi.RemoteError from the V1 scroll triggers the fallback.
// Transport failures and cancellation are returned unchanged. A scroll that
// completes with zero records is returned as is.
func (o *Orchestrator) Export(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	primary, fallback, err := o.strategies.ForVersion(req.Version)
	if err != nil {
		return nil, err
	}

	sreq := req.strategyRequest()
	result, err := primary.Run(ctx, sreq)
	if err != nil && fallback != nil && docapi.IsRemoteError(err) {
		exportFallbacksTotal.Inc()
		o.logger.Info().
			Str("tenant", req.Credentials.TenantID).
			Str("entity", req.Entity).
			Str("version", string(req.Version)).
			Str("from", string(primary.Name())).
			Str("to", string(fallback.Name())).
			Int("status", docapi.StatusCode(err)).
			Msg("Primary strategy rejected, falling back")

		result, err = fallback.Run(ctx, sreq)
	}

	exportDuration.WithLabelValues(string(req.Version)).Observe(time.Since(start).Seconds())

	if err != nil {
		exportsTotal.WithLabelValues(string(req.Version), "", outcome(err)).Inc()
		if !errors.Is(err, context.Canceled) {
			o.logger.Warn().
				Err(err).
				Str("tenant", req.Credentials.TenantID).
				Str("entity", req.Entity).
				Str("version", string(req.Version)).
				Msg("Export failed")
		}
		return nil, fmt.Errorf("export %s/%s: %w", req.Version, req.Entity, err)
	}

	exportsTotal.WithLabelValues(string(req.Version), string(result.Strategy), "success").Inc()
	if result.Truncated {
		exportTruncatedTotal.WithLabelValues(string(result.Strategy)).Inc()
	}

	o.logger.Info().
		Str("tenant", req.Credentials.TenantID).
		Str("entity", req.Entity).
		Str("version", string(req.Version)).
		Str("strategy", string(result.Strategy)).
		Int("records", len(result.Records)).
		Int("batches", result.BatchesIssued).
		Bool("truncated", result.Truncated).
		Dur("duration", time.Since(start)).
		Msg("Export complete")

	return result, nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrNoSchemaAvailable):
		return "no_schema"
	case docapi.IsRemoteError(err):
		return "remote_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}
