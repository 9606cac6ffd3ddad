package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/docapi-export/pkg/docapi"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// PagedSearch requests numbered pages under an explicit schema.
type PagedSearch struct {
	api        API
	resolver   SchemaResolver
	pageSize   int
	maxBatches int
	logger     zerolog.Logger
}

// NewPagedSearch creates a paged strategy.
func NewPagedSearch(api API, resolver SchemaResolver, pageSize, maxBatches int) *PagedSearch {
	return &PagedSearch{
		api:        api,
		resolver:   resolver,
		pageSize:   pageSize,
		maxBatches: maxBatches,
		logger:     log.With().Str("component", "pagination").Str("strategy", string(StrategyPaged)).Logger(),
	}
}

// Name implements Strategy.
func (s *PagedSearch) Name() StrategyName { return StrategyPaged }

// Run implements Strategy. It fails with ErrNoSchemaAvailable before issuing
// any search when no schema can be resolved.
func (s *PagedSearch) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	schemaName, err := s.resolver.Resolve(ctx, req.Credentials, req.Version, req.Entity, req.Schema)
	if err != nil {
		return nil, fmt.Errorf("resolve schema: %w", err)
	}
	if schemaName == "" {
		s.logger.Warn().Str("entity", req.Entity).Msg("No schema resolved for paged search")
		return nil, fmt.Errorf("entity %q: %w", req.Entity, ErrNoSchemaAvailable)
	}

	result := &Result{Strategy: StrategyPaged, Schema: schemaName}

	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("paged search batch %d: %w", page, err)
		}

		records, err := s.api.Search(ctx, req.Credentials, docapi.SearchRequest{
			Version:  req.Version,
			Entity:   req.Entity,
			Schema:   schemaName,
			Page:     page,
			PageSize: s.pageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("paged search batch %d: %w", page, err)
		}
		result.BatchesIssued++
		result.Records = append(result.Records, records...)

		s.logger.Debug().
			Str("entity", req.Entity).
			Str("schema", schemaName).
			Int("batch", result.BatchesIssued).
			Int("batch_records", len(records)).
			Int("records", len(result.Records)).
			Msg("Search page received")

		if len(records) < s.pageSize {
			return s.done(req, result, StopShort, start), nil
		}
		if result.BatchesIssued >= s.maxBatches {
			result.Truncated = true
			return s.done(req, result, StopCap, start), nil
		}
	}
}

func (s *PagedSearch) done(req Request, result *Result, reason StopReason, start time.Time) *Result {
	s.logger.Info().
		Str("entity", req.Entity).
		Str("version", string(req.Version)).
		Str("schema", result.Schema).
		Int("batches", result.BatchesIssued).
		Int("records", len(result.Records)).
		Str("stop_reason", string(reason)).
		Bool("truncated", result.Truncated).
		Dur("duration", time.Since(start)).
		Msg("Paged search complete")
	return finish(result, reason)
}
