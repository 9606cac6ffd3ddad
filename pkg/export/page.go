package export

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sternrassler/docapi-export/pkg/docapi"
	"github.com/Sternrassler/docapi-export/pkg/pagination"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SchemaLister resolves a single schema and lists all named schemas of an
// entity. *schema.Resolver implements it.
type SchemaLister interface {
	pagination.SchemaResolver
	List(ctx context.Context, creds docapi.Credentials, version docapi.Version, entity string) ([]string, error)
}

// PageRequest asks for one page of an entity.
type PageRequest struct {
	Request
	Page     int
	PageSize int
}

// Pagination describes where a page sits in the record set. Total and
// TotalPages are nil when the remote did not report a total.
type Pagination struct {
	Page        int  `json:"page"`
	PageSize    int  `json:"page_size"`
	Total       *int `json:"total"`
	TotalPages  *int `json:"total_pages"`
	HasPrevious bool `json:"has_previous"`
	HasNext     bool `json:"has_next"`
}

// PageResult is one page of records.
type PageResult struct {
	Records    []docapi.Record `json:"records"`
	Schema     string          `json:"schema,omitempty"`
	Pagination Pagination      `json:"pagination"`
}

// PageQuery fetches exactly one windowed page for interactive browsing.
type PageQuery struct {
	windowed *pagination.WindowedSearch
	schemas  SchemaLister
	logger   zerolog.Logger
}

// NewPageQuery creates a single-page query over the remote API.
func NewPageQuery(api pagination.API, schemas SchemaLister) *PageQuery {
	return &PageQuery{
		windowed: pagination.NewWindowedSearch(api, MaxPageSize, 1),
		schemas:  schemas,
		logger:   log.With().Str("component", "page-query").Logger(),
	}
}

// FetchPage validates req and issues one windowed call. V2 requests resolve a
// schema first. When a V1 request without a schema yields an empty page, the
// same page is retried under each schema of the entity until one returns
// records. An explicitly named V1 schema is never swapped for another.
func (q *PageQuery) FetchPage(ctx context.Context, req PageRequest) (*PageResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	sreq := req.strategyRequest()
	if req.Version == docapi.V2 {
		name, err := q.schemas.Resolve(ctx, req.Credentials, req.Version, req.Entity, req.Schema)
		if err != nil {
			return nil, fmt.Errorf("resolve schema: %w", err)
		}
		if name == "" {
			return nil, fmt.Errorf("entity %q: %w", req.Entity, ErrNoSchemaAvailable)
		}
		sreq.Schema = name
	}

	window, err := q.windowed.FetchPage(ctx, sreq, req.Page, req.PageSize)
	if err != nil {
		return nil, fmt.Errorf("fetch page %d: %w", req.Page, err)
	}

	if req.Version == docapi.V1 && req.Schema == "" && len(window.Records) == 0 {
		probed, name, err := q.probeSchemas(ctx, sreq, req.Page, req.PageSize)
		if err != nil {
			return nil, err
		}
		if probed != nil {
			window = probed
			sreq.Schema = name
		}
	}

	return &PageResult{
		Records:    window.Records,
		Schema:     sreq.Schema,
		Pagination: paginate(req.Page, req.PageSize, window),
	}, nil
}

func (q *PageQuery) probeSchemas(ctx context.Context, sreq pagination.Request, page, pageSize int) (*pagination.Window, string, error) {
	names, err := q.schemas.List(ctx, sreq.Credentials, sreq.Version, sreq.Entity)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, "", ctxErr
		}
		q.logger.Warn().Err(err).Str("entity", sreq.Entity).Msg("Schema listing failed, returning empty page")
		return nil, "", nil
	}

	for _, name := range names {
		if name == sreq.Schema {
			continue
		}
		probe := sreq
		probe.Schema = name

		window, err := q.windowed.FetchPage(ctx, probe, page, pageSize)
		if err != nil {
			var remoteErr *docapi.RemoteError
			if errors.As(err, &remoteErr) {
				q.logger.Debug().
					Str("entity", sreq.Entity).
					Str("schema", name).
					Int("status", remoteErr.StatusCode).
					Msg("Schema probe rejected")
				continue
			}
			return nil, "", fmt.Errorf("probe schema %q: %w", name, err)
		}
		if len(window.Records) > 0 {
			q.logger.Debug().Str("entity", sreq.Entity).Str("schema", name).Msg("Schema probe matched")
			return window, name, nil
		}
	}
	return nil, "", nil
}

func paginate(page, pageSize int, window *pagination.Window) Pagination {
	p := Pagination{
		Page:        page,
		PageSize:    pageSize,
		HasPrevious: page > 1,
	}
	if window.TotalKnown {
		total := window.Total
		totalPages := (total + pageSize - 1) / pageSize
		p.Total = &total
		p.TotalPages = &totalPages
		p.HasNext = page < totalPages
	} else {
		p.HasNext = len(window.Records) == pageSize
	}
	return p
}
