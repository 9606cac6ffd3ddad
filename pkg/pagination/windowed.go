package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/docapi-export/pkg/docapi"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Window is a single windowed batch together with the remote's count hint.
type Window struct {
	Records    []docapi.Record
	Total      int
	TotalKnown bool
}

// WindowedSearch walks explicit item ranges sorted by ascending id.
type WindowedSearch struct {
	api        API
	pageSize   int
	maxBatches int
	logger     zerolog.Logger
}

// NewWindowedSearch creates a windowed strategy.
func NewWindowedSearch(api API, pageSize, maxBatches int) *WindowedSearch {
	return &WindowedSearch{
		api:        api,
		pageSize:   pageSize,
		maxBatches: maxBatches,
		logger:     log.With().Str("component", "pagination").Str("strategy", string(StrategyWindowed)).Logger(),
	}
}

// Name implements Strategy.
func (s *WindowedSearch) Name() StrategyName { return StrategyWindowed }

// FetchPage issues exactly one windowed call for page (1-based) of pageSize items.
func (s *WindowedSearch) FetchPage(ctx context.Context, req Request, page, pageSize int) (*Window, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	from := (page - 1) * pageSize
	resp, err := s.api.Window(ctx, req.Credentials, docapi.WindowRequest{
		Version: req.Version,
		Entity:  req.Entity,
		Schema:  req.Schema,
		From:    from,
		To:      from + pageSize - 1,
	})
	if err != nil {
		return nil, err
	}

	total, known := ExtractTotal(resp.Header)
	return &Window{Records: resp.Records, Total: total, TotalKnown: known}, nil
}

// Run implements Strategy.
func (s *WindowedSearch) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	result := &Result{Strategy: StrategyWindowed, Schema: req.Schema}

	for page := 1; ; page++ {
		window, err := s.FetchPage(ctx, req, page, s.pageSize)
		if err != nil {
			return nil, fmt.Errorf("windowed search batch %d: %w", page, err)
		}
		result.BatchesIssued++
		result.Records = append(result.Records, window.Records...)

		s.logger.Debug().
			Str("entity", req.Entity).
			Int("batch", result.BatchesIssued).
			Int("batch_records", len(window.Records)).
			Int("records", len(result.Records)).
			Bool("total_known", window.TotalKnown).
			Int("total", window.Total).
			Msg("Window received")

		if len(window.Records) < s.pageSize {
			return s.done(req, result, StopShort, start), nil
		}
		if window.TotalKnown && len(result.Records) >= window.Total {
			return s.done(req, result, StopTotal, start), nil
		}
		if result.BatchesIssued >= s.maxBatches {
			result.Truncated = true
			return s.done(req, result, StopCap, start), nil
		}
	}
}

func (s *WindowedSearch) done(req Request, result *Result, reason StopReason, start time.Time) *Result {
	s.logger.Info().
		Str("entity", req.Entity).
		Str("version", string(req.Version)).
		Int("batches", result.BatchesIssued).
		Int("records", len(result.Records)).
		Str("stop_reason", string(reason)).
		Bool("truncated", result.Truncated).
		Dur("duration", time.Since(start)).
		Msg("Windowed search complete")
	return finish(result, reason)
}
