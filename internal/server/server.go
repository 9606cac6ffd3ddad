// Package server exposes exports, page browsing and entity listing over HTTP.
package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/docapi-export/pkg/docapi"
	"github.com/Sternrassler/docapi-export/pkg/export"
	"github.com/Sternrassler/docapi-export/pkg/logging"
	"github.com/Sternrassler/docapi-export/pkg/metrics"
	"github.com/Sternrassler/docapi-export/pkg/ratelimit"
	"github.com/Sternrassler/docapi-export/pkg/schema"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// maxBodyBytes bounds inbound JSON bodies.
const maxBodyBytes = 64 << 10

// Prometheus metrics for the HTTP surface.
var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docapi_http_requests_total",
		Help: "Inbound HTTP requests by route and status",
	}, []string{"route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "docapi_http_request_duration_seconds",
		Help:    "Inbound HTTP request duration by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)

// Exporter runs whole-entity exports. *export.Orchestrator implements it.
type Exporter interface {
	Export(ctx context.Context, req export.Request) (*export.Result, error)
}

// PageFetcher fetches single pages. *export.PageQuery implements it.
type PageFetcher interface {
	FetchPage(ctx context.Context, req export.PageRequest) (*export.PageResult, error)
}

// EntityLister lists entities with their schemas. *schema.Lister implements it.
type EntityLister interface {
	ListEntitiesWithSchemas(ctx context.Context, creds docapi.Credentials, version docapi.Version) ([]schema.EntitySchemas, error)
}

// Config holds the server's quotas and CORS origins.
type Config struct {
	CORSOrigins   []string
	ExportQuota   ratelimit.Quota
	PageQuota     ratelimit.Quota
	EntitiesQuota ratelimit.Quota

	// Ready reports whether backing services are reachable; nil means always ready.
	Ready func(ctx context.Context) error
}

// DefaultConfig returns the production quotas with CORS disabled.
func DefaultConfig() Config {
	return Config{
		ExportQuota:   ratelimit.ExportQuota,
		PageQuota:     ratelimit.PageQuota,
		EntitiesQuota: ratelimit.EntitiesQuota,
	}
}

// Server routes inbound requests to the export components.
type Server struct {
	exporter Exporter
	pages    PageFetcher
	entities EntityLister
	tracker  *ratelimit.Tracker
	cfg      Config
	logger   zerolog.Logger
	handler  http.Handler
}

// New creates a server. limiter is the process-wide counter table.
func New(exporter Exporter, pages PageFetcher, entities EntityLister, limiter ratelimit.Limiter, cfg Config) *Server {
	logger := logging.NewLogger("server")
	s := &Server{
		exporter: exporter,
		pages:    pages,
		entities: entities,
		tracker:  ratelimit.NewTracker(limiter, logger),
		cfg:      cfg,
		logger:   logger,
	}

	r := mux.NewRouter()
	r.Use(s.requestID, s.instrument)

	r.HandleFunc("/health", healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.readyHandler).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/export", s.handleExport).Methods(http.MethodPost)
	r.HandleFunc("/page", s.handlePage).Methods(http.MethodPost)
	r.HandleFunc("/entities", s.handleEntities).Methods(http.MethodPost)

	var h http.Handler = r
	if len(cfg.CORSOrigins) > 0 {
		h = cors.New(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", RequestIDHeader},
			ExposedHeaders: []string{RequestIDHeader, "Retry-After"},
		}).Handler(r)
	}
	s.handler = h

	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.cfg.Ready(ctx); err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Msg("Readiness check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// requestID echoes or generates X-Request-ID and attaches a request-scoped
// logger to the context.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, id)

		logger := s.logger.With().Str("request_id", id).Logger()
		next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context())))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		duration := time.Since(start)
		httpRequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(duration.Seconds())

		zerolog.Ctx(r.Context()).Debug().
			Str("method", r.Method).
			Str("route", route).
			Int("status", rec.status).
			Str("remote", ratelimit.RemoteHost(r)).
			Dur("duration", duration).
			Msg("Request handled")
	})
}
