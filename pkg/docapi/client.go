// Package docapi provides the HTTP client for the remote multi-tenant document
// API: credential headers, per-call timeouts, outbound throttling and typed
// remote errors. Every call is a single attempt; callers decide what a
// failure means.
package docapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Prometheus metrics for remote API operations.
var (
	remoteRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docapi_requests_total",
		Help: "Total remote document API requests by operation and status",
	}, []string{"operation", "status"})

	remoteRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "docapi_request_duration_seconds",
		Help:    "Remote document API request duration in seconds by operation",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"operation"})

	remoteErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docapi_errors_total",
		Help: "Total remote document API errors by class",
	}, []string{"class"})

	throttleWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "docapi_throttle_wait_seconds",
		Help:    "Time spent waiting on the outbound throttle",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
	})
)

// TenantPlaceholder is replaced by the tenant id in Config.BaseURL.
const TenantPlaceholder = "{tenant}"

// Config holds the client configuration.
type Config struct {
	// BaseURL of the document API, e.g. "https://{tenant}.docs.example.com".
	BaseURL string

	// UserAgent sent on every request.
	UserAgent string

	// Timeout bounds every single remote call.
	Timeout time.Duration

	// RequestsPerSecond throttles outbound calls process-wide (0 disables).
	RequestsPerSecond float64
	Burst             int

	// HTTPClient overrides the transport (tests).
	HTTPClient *http.Client
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:           baseURL,
		UserAgent:         "docapi-export/0.1.0",
		Timeout:           30 * time.Second,
		RequestsPerSecond: 20,
		Burst:             5,
	}
}

// Client talks to the remote document API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	timeout    time.Duration
	throttle   *rate.Limiter
	logger     zerolog.Logger
}

// New creates a new document API client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base url is required", ErrInvalidConfig)
	}
	probe := strings.ReplaceAll(cfg.BaseURL, TenantPlaceholder, "tenant")
	if u, err := url.Parse(probe); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: base url %q is not absolute", ErrInvalidConfig, cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("%w: timeout must be > 0 (got %s)", ErrInvalidConfig, cfg.Timeout)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	var throttle *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		throttle = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:  cfg.UserAgent,
		timeout:    cfg.Timeout,
		throttle:   throttle,
		logger:     log.With().Str("component", "docapi-client").Logger(),
	}, nil
}

// ListEntities returns the entities visible to the credentials.
func (c *Client) ListEntities(ctx context.Context, creds Credentials, version Version) ([]EntityInfo, error) {
	body, _, err := c.get(ctx, OpListEntities, creds, entitiesPath(version), nil, nil)
	if err != nil {
		return nil, err
	}
	var entities []EntityInfo
	if err := json.Unmarshal(body, &entities); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", OpListEntities, ErrDecode, err)
	}
	return entities, nil
}

// ListSchemas returns the schemas available for an entity.
func (c *Client) ListSchemas(ctx context.Context, creds Credentials, version Version, entity string) ([]SchemaInfo, error) {
	body, _, err := c.get(ctx, OpListSchemas, creds, entityPath(version, entity, "schemas"), nil, nil)
	if err != nil {
		return nil, err
	}
	var schemas []SchemaInfo
	if err := json.Unmarshal(body, &schemas); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", OpListSchemas, ErrDecode, err)
	}
	return schemas, nil
}

// Scroll fetches one cursor batch.
func (c *Client) Scroll(ctx context.Context, creds Credentials, req ScrollRequest) (*ScrollPage, error) {
	query := url.Values{}
	query.Set("size", strconv.Itoa(req.Size))
	if req.Schema != "" {
		query.Set("schema", req.Schema)
	}
	header := http.Header{}
	if req.Token != "" {
		header.Set(HeaderScrollToken, req.Token)
	}

	body, respHeader, err := c.get(ctx, OpScroll, creds, entityPath(req.Version, req.Entity, "scroll"), query, header)
	if err != nil {
		return nil, err
	}
	records, err := decodeRecords(OpScroll, body)
	if err != nil {
		return nil, err
	}
	return &ScrollPage{
		Records:   records,
		NextToken: respHeader.Get(HeaderNextScrollToken),
	}, nil
}

// Window fetches the records in [req.From, req.To], sorted by ascending id.
func (c *Client) Window(ctx context.Context, creds Credentials, req WindowRequest) (*WindowPage, error) {
	query := url.Values{}
	query.Set("order", "id.asc")
	query.Set("select", "*")
	if req.Schema != "" {
		query.Set("schema", req.Schema)
	}
	header := http.Header{}
	header.Set(HeaderRangeUnit, "items")
	header.Set(HeaderRange, fmt.Sprintf("%d-%d", req.From, req.To))

	body, respHeader, err := c.get(ctx, OpWindow, creds, entityPath(req.Version, req.Entity, "records"), query, header)
	if err != nil {
		return nil, err
	}
	records, err := decodeRecords(OpWindow, body)
	if err != nil {
		return nil, err
	}
	return &WindowPage{Records: records, Header: respHeader}, nil
}

// Search fetches one numbered page. The schema is mandatory on the remote side.
func (c *Client) Search(ctx context.Context, creds Credentials, req SearchRequest) ([]Record, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(req.Page))
	query.Set("page_size", strconv.Itoa(req.PageSize))
	query.Set("fields", "*")
	query.Set("schema", req.Schema)

	body, _, err := c.get(ctx, OpSearch, creds, entityPath(req.Version, req.Entity, "search"), query, nil)
	if err != nil {
		return nil, err
	}
	return decodeRecords(OpSearch, body)
}

// get performs a single GET with throttling, a per-call timeout and status classification.
func (c *Client) get(ctx context.Context, op string, creds Credentials, path string, query url.Values, header http.Header) ([]byte, http.Header, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	if c.throttle != nil {
		waitStart := time.Now()
		if err := c.throttle.Wait(ctx); err != nil {
			return nil, nil, fmt.Errorf("%s: throttle: %w", op, err)
		}
		throttleWaitSeconds.Observe(time.Since(waitStart).Seconds())
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.tenantBase(creds.TenantID) + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: create request: %w", op, err)
	}
	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	req.Header.Set(HeaderAccessKey, creds.AccessKey)
	req.Header.Set(HeaderAccessSecret, creds.AccessSecret)
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	startTime := time.Now()
	defer func() {
		remoteRequestDuration.WithLabelValues(op).Observe(time.Since(startTime).Seconds())
	}()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		remoteErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		remoteRequestsTotal.WithLabelValues(op, "network_error").Inc()
		c.logger.Warn().Err(err).Str("operation", op).Str("tenant", creds.TenantID).Msg("Remote request failed")
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		remoteErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, nil, fmt.Errorf("%s: read body: %w", op, err)
	}

	remoteRequestsTotal.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		class := classifyStatus(resp.StatusCode)
		remoteErrorsTotal.WithLabelValues(string(class)).Inc()
		c.logger.Warn().
			Str("operation", op).
			Str("tenant", creds.TenantID).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Remote request error")
		return nil, nil, &RemoteError{
			Operation:  op,
			StatusCode: resp.StatusCode,
			ErrorClass: class,
			Body:       truncateBody(body),
		}
	}

	c.logger.Debug().
		Str("operation", op).
		Str("tenant", creds.TenantID).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(startTime)).
		Msg("Remote request complete")

	return body, resp.Header, nil
}

func (c *Client) tenantBase(tenant string) string {
	return strings.ReplaceAll(c.baseURL, TenantPlaceholder, url.PathEscape(tenant))
}

func entitiesPath(version Version) string {
	return "/" + string(version) + "/entities"
}

func entityPath(version Version, entity, resource string) string {
	return entitiesPath(version) + "/" + url.PathEscape(entity) + "/" + resource
}

func decodeRecords(op string, body []byte) ([]Record, error) {
	var records []Record
	if len(body) == 0 {
		return records, nil
	}
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ErrDecode, err)
	}
	return records, nil
}
