package docapi_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/docapi-export/internal/testutil"
	"github.com/Sternrassler/docapi-export/pkg/docapi"
)

var testCreds = docapi.Credentials{TenantID: "acme", AccessKey: "key-1", AccessSecret: "secret-1"}

func newTestClient(t *testing.T, baseURL string) *docapi.Client {
	t.Helper()

	cfg := docapi.DefaultConfig(baseURL)
	cfg.RequestsPerSecond = 0
	cfg.Timeout = 2 * time.Second
	c, err := docapi.New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      docapi.Config
		expectError bool
		errorMsg    string
	}{
		{
			name:   "valid config",
			config: docapi.DefaultConfig("https://api.example.com"),
		},
		{
			name:   "tenant placeholder",
			config: docapi.DefaultConfig("https://{tenant}.docs.example.com"),
		},
		{
			name:        "empty base url",
			config:      docapi.DefaultConfig(""),
			expectError: true,
			errorMsg:    "base url is required",
		},
		{
			name:        "relative base url",
			config:      docapi.DefaultConfig("/v1"),
			expectError: true,
			errorMsg:    "not absolute",
		},
		{
			name:        "zero timeout",
			config:      docapi.Config{BaseURL: "https://api.example.com"},
			expectError: true,
			errorMsg:    "timeout must be > 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := docapi.New(tt.config)
			if tt.expectError {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !errors.Is(err, docapi.ErrInvalidConfig) {
					t.Errorf("error %v should wrap ErrInvalidConfig", err)
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("error = %q, want substring %q", err.Error(), tt.errorMsg)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestClient_SendsCredentialHeaders(t *testing.T) {
	mock := testutil.NewMockDocAPI()
	defer mock.Close()
	mock.SetSchemas(docapi.V1, "orders", "default")

	c := newTestClient(t, mock.URL())
	if _, err := c.ListSchemas(context.Background(), testCreds, docapi.V1, "orders"); err != nil {
		t.Fatalf("ListSchemas() error = %v", err)
	}

	if got := mock.LastHeader(docapi.HeaderAccessKey); got != "key-1" {
		t.Errorf("access key header = %q, want key-1", got)
	}
	if got := mock.LastHeader(docapi.HeaderAccessSecret); got != "secret-1" {
		t.Errorf("access secret header = %q, want secret-1", got)
	}
	if got := mock.LastHeader("Accept"); got != "application/json" {
		t.Errorf("Accept = %q", got)
	}
}

func TestClient_ListSchemas(t *testing.T) {
	mock := testutil.NewMockDocAPI()
	defer mock.Close()
	mock.SetSchemas(docapi.V2, "orders", "", "sales", "archive")

	c := newTestClient(t, mock.URL())
	schemas, err := c.ListSchemas(context.Background(), testCreds, docapi.V2, "orders")
	if err != nil {
		t.Fatalf("ListSchemas() error = %v", err)
	}

	if len(schemas) != 3 {
		t.Fatalf("len(schemas) = %d, want 3", len(schemas))
	}
	if schemas[0].Name != "" || schemas[1].Name != "sales" {
		t.Errorf("schemas = %+v", schemas)
	}
}

func TestClient_ScrollToken(t *testing.T) {
	mock := testutil.NewMockDocAPI()
	defer mock.Close()
	mock.SetRecords(docapi.V1, "orders", "", 5)

	c := newTestClient(t, mock.URL())
	ctx := context.Background()

	first, err := c.Scroll(ctx, testCreds, docapi.ScrollRequest{Version: docapi.V1, Entity: "orders", Size: 3})
	if err != nil {
		t.Fatalf("Scroll() error = %v", err)
	}
	if len(first.Records) != 3 || first.NextToken == "" {
		t.Fatalf("first page = %d records, token %q", len(first.Records), first.NextToken)
	}
	if got := mock.LastHeader(docapi.HeaderScrollToken); got != "" {
		t.Errorf("first call carried scroll token %q", got)
	}

	second, err := c.Scroll(ctx, testCreds, docapi.ScrollRequest{Version: docapi.V1, Entity: "orders", Size: 3, Token: first.NextToken})
	if err != nil {
		t.Fatalf("Scroll() error = %v", err)
	}
	if got := mock.LastHeader(docapi.HeaderScrollToken); got != first.NextToken {
		t.Errorf("scroll token header = %q, want %q", got, first.NextToken)
	}
	if len(second.Records) != 2 || second.NextToken != "" {
		t.Errorf("second page = %d records, token %q", len(second.Records), second.NextToken)
	}
}

func TestClient_WindowRangeHeader(t *testing.T) {
	mock := testutil.NewMockDocAPI()
	defer mock.Close()
	mock.SetRecords(docapi.V1, "orders", "", 250)

	c := newTestClient(t, mock.URL())
	page, err := c.Window(context.Background(), testCreds, docapi.WindowRequest{
		Version: docapi.V1, Entity: "orders", From: 100, To: 199,
	})
	if err != nil {
		t.Fatalf("Window() error = %v", err)
	}

	if got := mock.LastHeader(docapi.HeaderRange); got != "100-199" {
		t.Errorf("Range = %q, want 100-199", got)
	}
	if got := mock.LastQueryParam("order"); got != "id.asc" {
		t.Errorf("order = %q, want id.asc", got)
	}
	if len(page.Records) != 100 {
		t.Errorf("len(records) = %d, want 100", len(page.Records))
	}
	if got := page.Header.Get(docapi.HeaderTotalCount); got != "250" {
		t.Errorf("X-Total-Count = %q, want 250", got)
	}
}

func TestClient_SearchSendsSchema(t *testing.T) {
	mock := testutil.NewMockDocAPI()
	defer mock.Close()
	mock.SetRecords(docapi.V2, "orders", "sales", 7)

	c := newTestClient(t, mock.URL())
	records, err := c.Search(context.Background(), testCreds, docapi.SearchRequest{
		Version: docapi.V2, Entity: "orders", Schema: "sales", Page: 2, PageSize: 5,
	})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(records) != 2 {
		t.Errorf("len(records) = %d, want 2", len(records))
	}
	if got := mock.LastQueryParam("schema"); got != "sales" {
		t.Errorf("schema = %q, want sales", got)
	}
}

func TestClient_RemoteError(t *testing.T) {
	mock := testutil.NewMockDocAPI()
	defer mock.Close()
	mock.FailOperation(docapi.OpScroll, http.StatusBadGateway)

	c := newTestClient(t, mock.URL())
	_, err := c.Scroll(context.Background(), testCreds, docapi.ScrollRequest{Version: docapi.V1, Entity: "orders", Size: 10})

	var remoteErr *docapi.RemoteError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("error = %v, want *RemoteError", err)
	}
	if remoteErr.StatusCode != http.StatusBadGateway {
		t.Errorf("StatusCode = %d, want 502", remoteErr.StatusCode)
	}
	if remoteErr.ErrorClass != docapi.ErrorClassServer {
		t.Errorf("ErrorClass = %q, want server", remoteErr.ErrorClass)
	}
	if remoteErr.Operation != docapi.OpScroll {
		t.Errorf("Operation = %q, want scroll", remoteErr.Operation)
	}
	if !strings.Contains(remoteErr.Body, "scroll failed") {
		t.Errorf("Body = %q, want diagnostic", remoteErr.Body)
	}
}

func TestClient_Timeout(t *testing.T) {
	mock := testutil.NewMockDocAPI()
	defer mock.Close()
	mock.SetDelay(docapi.OpListSchemas, time.Second)

	cfg := docapi.DefaultConfig(mock.URL())
	cfg.RequestsPerSecond = 0
	cfg.Timeout = 50 * time.Millisecond
	c, err := docapi.New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = c.ListSchemas(context.Background(), testCreds, docapi.V1, "orders")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if docapi.IsRemoteError(err) {
		t.Errorf("timeout should not be a RemoteError: %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", err)
	}
}

func TestClient_CancelledContextIssuesNoCall(t *testing.T) {
	mock := testutil.NewMockDocAPI()
	defer mock.Close()

	c := newTestClient(t, mock.URL())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ListEntities(ctx, testCreds, docapi.V1)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if n := mock.TotalCalls(); n != 0 {
		t.Errorf("remote calls = %d, want 0", n)
	}
}
