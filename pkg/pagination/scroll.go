package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/docapi-export/pkg/docapi"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// CursorScroll follows the remote scroll cursor until it runs dry.
type CursorScroll struct {
	api        API
	pageSize   int
	maxBatches int
	logger     zerolog.Logger
}

// NewCursorScroll creates a scroll strategy.
func NewCursorScroll(api API, pageSize, maxBatches int) *CursorScroll {
	return &CursorScroll{
		api:        api,
		pageSize:   pageSize,
		maxBatches: maxBatches,
		logger:     log.With().Str("component", "pagination").Str("strategy", string(StrategyScroll)).Logger(),
	}
}

// Name implements Strategy.
func (s *CursorScroll) Name() StrategyName { return StrategyScroll }

// Run implements Strategy. Any failed call aborts the run with the call's error.
func (s *CursorScroll) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	result := &Result{Strategy: StrategyScroll, Schema: req.Schema}
	seen := make(map[string]struct{})
	token := ""

	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("scroll batch %d: %w", result.BatchesIssued+1, err)
		}

		page, err := s.api.Scroll(ctx, req.Credentials, docapi.ScrollRequest{
			Version: req.Version,
			Entity:  req.Entity,
			Schema:  req.Schema,
			Size:    s.pageSize,
			Token:   token,
		})
		if err != nil {
			return nil, fmt.Errorf("scroll batch %d: %w", result.BatchesIssued+1, err)
		}
		result.BatchesIssued++
		result.Records = append(result.Records, page.Records...)

		s.logger.Debug().
			Str("entity", req.Entity).
			Int("batch", result.BatchesIssued).
			Int("batch_records", len(page.Records)).
			Int("records", len(result.Records)).
			Msg("Scroll batch received")

		if len(page.Records) == 0 {
			return s.done(req, result, StopEmpty, start), nil
		}
		if page.NextToken == "" {
			return s.done(req, result, StopEnd, start), nil
		}
		if _, repeated := seen[page.NextToken]; repeated {
			s.logger.Warn().
				Str("entity", req.Entity).
				Int("batch", result.BatchesIssued).
				Msg("Scroll token repeated, cursor is not advancing")
			result.Truncated = true
			return s.done(req, result, StopCycle, start), nil
		}
		seen[page.NextToken] = struct{}{}
		token = page.NextToken

		if result.BatchesIssued >= s.maxBatches {
			result.Truncated = true
			return s.done(req, result, StopCap, start), nil
		}
	}
}

func (s *CursorScroll) done(req Request, result *Result, reason StopReason, start time.Time) *Result {
	s.logger.Info().
		Str("entity", req.Entity).
		Str("version", string(req.Version)).
		Int("batches", result.BatchesIssued).
		Int("records", len(result.Records)).
		Str("stop_reason", string(reason)).
		Bool("truncated", result.Truncated).
		Dur("duration", time.Since(start)).
		Msg("Scroll complete")
	return finish(result, reason)
}
