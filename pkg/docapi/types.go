package docapi

import (
	"net/http"

	"github.com/rs/zerolog"
)

// Version selects the remote protocol generation.
type Version string

const (
	// V1 exposes cursor scrolling and offset windows.
	V1 Version = "v1"

	// V2 exposes page-numbered search and requires a schema on every search.
	V2 Version = "v2"
)

// Valid reports whether v is a known protocol version.
func (v Version) Valid() bool {
	return v == V1 || v == V2
}

// Operation names used for metrics, logs and RemoteError.Operation.
const (
	OpListEntities = "list_entities"
	OpListSchemas  = "list_schemas"
	OpScroll       = "scroll"
	OpWindow       = "window"
	OpSearch       = "search"
)

// Remote API headers.
const (
	HeaderAccessKey       = "X-Access-Key"
	HeaderAccessSecret    = "X-Access-Secret"
	HeaderScrollToken     = "X-Scroll-Token"
	HeaderNextScrollToken = "X-Next-Scroll-Token"
	HeaderTotalCount      = "X-Total-Count"
	HeaderContentRange    = "Content-Range"
	HeaderRange           = "Range"
	HeaderRangeUnit       = "Range-Unit"
)

// Credentials are the caller-supplied secrets for one tenant.
// They are passed through on every remote call and never persisted or logged.
type Credentials struct {
	TenantID     string
	AccessKey    string
	AccessSecret string
}

// String hides the secrets.
func (c Credentials) String() string {
	return "tenant=" + c.TenantID + " key=[redacted]"
}

// MarshalZerologObject logs the tenant only.
func (c Credentials) MarshalZerologObject(e *zerolog.Event) {
	e.Str("tenant", c.TenantID)
}

// Record is one document as returned by the remote API.
type Record = map[string]any

// EntityInfo is an element of the list-entities response.
type EntityInfo struct {
	Name string `json:"name"`
}

// SchemaInfo is an element of the list-schemas response.
type SchemaInfo struct {
	Name string `json:"name"`
}

// ScrollRequest asks for the next cursor batch.
type ScrollRequest struct {
	Version Version
	Entity  string
	Schema  string
	Size    int
	// Token is empty on the first call.
	Token string
}

// ScrollPage is one cursor batch.
type ScrollPage struct {
	Records   []Record
	NextToken string
}

// WindowRequest asks for the inclusive record range [From, To].
type WindowRequest struct {
	Version Version
	Entity  string
	Schema  string
	From    int
	To      int
}

// WindowPage is one windowed batch plus the response headers carrying count hints.
type WindowPage struct {
	Records []Record
	Header  http.Header
}

// SearchRequest asks for one numbered page.
type SearchRequest struct {
	Version  Version
	Entity   string
	Schema   string
	Page     int
	PageSize int
}
