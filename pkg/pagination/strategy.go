package pagination

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sternrassler/docapi-export/pkg/docapi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MaxBatches is the hard cap on remote calls issued by one strategy run.
const MaxBatches = 200

// ErrNoSchemaAvailable is returned when a schema is required but none could be resolved.
var ErrNoSchemaAvailable = errors.New("no schema available")

// Prometheus metrics for strategy runs.
var (
	strategyBatches = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "docapi_export_batches",
		Help:    "Number of remote batches issued per strategy run",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 200},
	}, []string{"strategy"})

	strategyStopsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docapi_export_stops_total",
		Help: "Strategy runs by stop reason",
	}, []string{"strategy", "reason"})
)

// StrategyName identifies a retrieval strategy in results and metrics.
type StrategyName string

const (
	StrategyScroll   StrategyName = "scroll"
	StrategyWindowed StrategyName = "windowed"
	StrategyPaged    StrategyName = "paged"
)

// StopReason tells why a strategy stopped issuing batches.
type StopReason string

const (
	// StopEmpty: the remote returned an empty batch.
	StopEmpty StopReason = "empty"
	// StopEnd: the remote returned no further scroll token.
	StopEnd StopReason = "end"
	// StopCycle: the remote repeated a scroll token (truncated).
	StopCycle StopReason = "cycle"
	// StopCap: MaxBatches was reached (truncated).
	StopCap StopReason = "cap"
	// StopShort: a batch was smaller than the requested size.
	StopShort StopReason = "short"
	// StopTotal: the accumulated records reached the reported total.
	StopTotal StopReason = "total"
)

// Request describes one export. It is not modified by strategies.
type Request struct {
	Credentials docapi.Credentials
	Version     docapi.Version
	Entity      string
	// Schema is optional; empty means "let the remote or the resolver decide".
	Schema string
}

// Result is the outcome of one strategy run.
type Result struct {
	Records       []docapi.Record
	BatchesIssued int
	Truncated     bool
	Strategy      StrategyName
	StopReason    StopReason
	// Schema is the schema the records were fetched under, if any.
	Schema string
}

// Strategy drives a batch loop against the remote API.
type Strategy interface {
	Name() StrategyName
	Run(ctx context.Context, req Request) (*Result, error)
}

// API is the subset of the document API client used by the strategies.
type API interface {
	Scroll(ctx context.Context, creds docapi.Credentials, req docapi.ScrollRequest) (*docapi.ScrollPage, error)
	Window(ctx context.Context, creds docapi.Credentials, req docapi.WindowRequest) (*docapi.WindowPage, error)
	Search(ctx context.Context, creds docapi.Credentials, req docapi.SearchRequest) ([]docapi.Record, error)
}

// SchemaResolver returns the schema to use for an entity, or "" when none exists.
type SchemaResolver interface {
	Resolve(ctx context.Context, creds docapi.Credentials, version docapi.Version, entity, explicit string) (string, error)
}

// Config holds page sizes and the batch cap.
type Config struct {
	ScrollPageSize int
	WindowPageSize int
	SearchPageSize int
	MaxBatches     int
}

// DefaultConfig returns the production page sizes.
func DefaultConfig() Config {
	return Config{
		ScrollPageSize: 1000,
		WindowPageSize: 1000,
		SearchPageSize: 1000,
		MaxBatches:     MaxBatches,
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.ScrollPageSize <= 0 {
		c.ScrollPageSize = def.ScrollPageSize
	}
	if c.WindowPageSize <= 0 {
		c.WindowPageSize = def.WindowPageSize
	}
	if c.SearchPageSize <= 0 {
		c.SearchPageSize = def.SearchPageSize
	}
	if c.MaxBatches <= 0 || c.MaxBatches > MaxBatches {
		c.MaxBatches = MaxBatches
	}
	return c
}

// Set holds one instance of every strategy.
type Set struct {
	Scroll   *CursorScroll
	Windowed *WindowedSearch
	Paged    *PagedSearch
}

// NewSet builds all strategies over the same API client.
func NewSet(api API, resolver SchemaResolver, cfg Config) *Set {
	cfg = cfg.normalized()
	return &Set{
		Scroll:   NewCursorScroll(api, cfg.ScrollPageSize, cfg.MaxBatches),
		Windowed: NewWindowedSearch(api, cfg.WindowPageSize, cfg.MaxBatches),
		Paged:    NewPagedSearch(api, resolver, cfg.SearchPageSize, cfg.MaxBatches),
	}
}

// ForVersion returns the primary strategy for a protocol version and its
// fallback, which is nil when the version has none.
func (s *Set) ForVersion(version docapi.Version) (Strategy, Strategy, error) {
	switch version {
	case docapi.V1:
		return s.Scroll, s.Windowed, nil
	case docapi.V2:
		return s.Paged, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown protocol version %q", version)
	}
}

func finish(result *Result, reason StopReason) *Result {
	result.StopReason = reason
	strategyBatches.WithLabelValues(string(result.Strategy)).Observe(float64(result.BatchesIssued))
	strategyStopsTotal.WithLabelValues(string(result.Strategy), string(reason)).Inc()
	return result
}
