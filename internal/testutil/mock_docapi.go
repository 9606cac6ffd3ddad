// Package testutil provides testing utilities for the document API export service.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/docapi-export/pkg/docapi"
)

// TotalMode selects how the mock reports the total record count on windowed searches.
type TotalMode int

const (
	// TotalCountHeader reports X-Total-Count.
	TotalCountHeader TotalMode = iota
	// TotalContentRange reports Content-Range: from-to/total.
	TotalContentRange
	// TotalUnknown reports Content-Range with "*" as total.
	TotalUnknown
	// TotalNone sends no count header at all.
	TotalNone
)

// MockDocAPI is a configurable mock document API server for testing.
// Records are generated on demand: record i of a dataset is {"id": i+1, "schema": <schema>}.
type MockDocAPI struct {
	server *httptest.Server
	mu     sync.RWMutex

	datasets  map[string]int
	schemas   map[string][]string
	entities  map[string][]string
	failures  map[string]int
	delays    map[string]time.Duration
	totalMode TotalMode
	// cycleToken makes every scroll response return the same token.
	cycleToken string

	calls             map[string]int
	LastRequestHeader http.Header
	LastQuery         map[string]string
}

// NewMockDocAPI creates a new mock document API server.
func NewMockDocAPI() *MockDocAPI {
	mock := &MockDocAPI{
		datasets: make(map[string]int),
		schemas:  make(map[string][]string),
		entities: make(map[string][]string),
		failures: make(map[string]int),
		delays:   make(map[string]time.Duration),
		calls:    make(map[string]int),
	}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// URL returns the mock server URL.
func (m *MockDocAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockDocAPI) Close() {
	m.server.Close()
}

// SetRecords sets the number of records stored for an entity under a schema ("" = default).
func (m *MockDocAPI) SetRecords(version docapi.Version, entity, schema string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.datasets[datasetKey(version, entity, schema)] = n
}

// SetSchemas sets the schema list for an entity. An empty name yields an unnamed entry.
func (m *MockDocAPI) SetSchemas(version docapi.Version, entity string, names ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schemas[string(version)+"/"+entity] = names
}

// SetEntities sets the entity list for a version.
func (m *MockDocAPI) SetEntities(version docapi.Version, names ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entities[string(version)] = names
}

// FailOperation makes every call of op answer with status. A zero status clears it.
func (m *MockDocAPI) FailOperation(op string, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if status == 0 {
		delete(m.failures, op)
		return
	}
	m.failures[op] = status
}

// FailEntitySchemas makes list-schemas fail for one entity only.
func (m *MockDocAPI) FailEntitySchemas(entity string, status int) {
	m.FailOperation(docapi.OpListSchemas+":"+entity, status)
}

// SetDelay delays every call of op.
func (m *MockDocAPI) SetDelay(op string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays[op] = d
}

// SetTotalMode selects the count header used on windowed searches.
func (m *MockDocAPI) SetTotalMode(mode TotalMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalMode = mode
}

// SetScrollCycle makes scroll always return token and always serve the first batch.
func (m *MockDocAPI) SetScrollCycle(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycleToken = token
}

// Calls returns the number of requests received for op.
func (m *MockDocAPI) Calls(op string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[op]
}

// TotalCalls returns the number of requests received for all operations.
func (m *MockDocAPI) TotalCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, n := range m.calls {
		total += n
	}
	return total
}

// Reset clears all tracking counters.
func (m *MockDocAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = make(map[string]int)
	m.LastRequestHeader = nil
	m.LastQuery = nil
}

// LastHeader returns a header of the most recent request.
func (m *MockDocAPI) LastHeader(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.LastRequestHeader == nil {
		return ""
	}
	return m.LastRequestHeader.Get(key)
}

// LastQueryParam returns a query parameter of the most recent request.
func (m *MockDocAPI) LastQueryParam(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastQuery[key]
}

func (m *MockDocAPI) handle(w http.ResponseWriter, r *http.Request) {
	// /{version}/entities[/{entity}/{resource}]
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 2 || parts[1] != "entities" {
		http.NotFound(w, r)
		return
	}
	version := docapi.Version(parts[0])

	op, entity := docapi.OpListEntities, ""
	if len(parts) == 4 {
		entity = parts[2]
		switch parts[3] {
		case "schemas":
			op = docapi.OpListSchemas
		case "scroll":
			op = docapi.OpScroll
		case "records":
			op = docapi.OpWindow
		case "search":
			op = docapi.OpSearch
		default:
			http.NotFound(w, r)
			return
		}
	} else if len(parts) != 2 {
		http.NotFound(w, r)
		return
	}

	query := make(map[string]string)
	for key := range r.URL.Query() {
		query[key] = r.URL.Query().Get(key)
	}

	m.mu.Lock()
	m.calls[op]++
	m.LastRequestHeader = r.Header.Clone()
	m.LastQuery = query
	status := m.failures[op]
	if s, ok := m.failures[op+":"+entity]; ok {
		status = s
	}
	delay := m.delays[op]
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if r.Header.Get(docapi.HeaderAccessKey) == "" || r.Header.Get(docapi.HeaderAccessSecret) == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing credentials"})
		return
	}
	if status != 0 {
		writeJSON(w, status, map[string]string{"error": fmt.Sprintf("%s failed", op)})
		return
	}

	switch op {
	case docapi.OpListEntities:
		m.mu.RLock()
		names := m.entities[string(version)]
		m.mu.RUnlock()
		writeJSON(w, http.StatusOK, namedList(names))
	case docapi.OpListSchemas:
		m.mu.RLock()
		names := m.schemas[string(version)+"/"+entity]
		m.mu.RUnlock()
		writeJSON(w, http.StatusOK, namedList(names))
	case docapi.OpScroll:
		m.handleScroll(w, r, version, entity, query)
	case docapi.OpWindow:
		m.handleWindow(w, r, version, entity, query)
	case docapi.OpSearch:
		m.handleSearch(w, version, entity, query)
	}
}

func (m *MockDocAPI) handleScroll(w http.ResponseWriter, r *http.Request, version docapi.Version, entity string, query map[string]string) {
	size, _ := strconv.Atoi(query["size"])
	if size <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "size required"})
		return
	}

	m.mu.RLock()
	total := m.datasets[datasetKey(version, entity, query["schema"])]
	cycle := m.cycleToken
	m.mu.RUnlock()

	offset := 0
	if token := r.Header.Get(docapi.HeaderScrollToken); token != "" && cycle == "" {
		parsed, err := strconv.Atoi(strings.TrimPrefix(token, "tok-"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad scroll token"})
			return
		}
		offset = parsed
	}

	end := min(offset+size, total)
	records := makeRecords(query["schema"], offset, end)

	switch {
	case cycle != "":
		w.Header().Set(docapi.HeaderNextScrollToken, cycle)
	case end < total:
		w.Header().Set(docapi.HeaderNextScrollToken, "tok-"+strconv.Itoa(end))
	}
	writeJSON(w, http.StatusOK, records)
}

func (m *MockDocAPI) handleWindow(w http.ResponseWriter, r *http.Request, version docapi.Version, entity string, query map[string]string) {
	var from, to int
	if _, err := fmt.Sscanf(r.Header.Get(docapi.HeaderRange), "%d-%d", &from, &to); err != nil || to < from {
		writeJSON(w, http.StatusRequestedRangeNotSatisfiable, map[string]string{"error": "bad range"})
		return
	}

	m.mu.RLock()
	total := m.datasets[datasetKey(version, entity, query["schema"])]
	mode := m.totalMode
	m.mu.RUnlock()

	start := min(from, total)
	end := min(to+1, total)
	records := makeRecords(query["schema"], start, end)

	rangeStr := "*"
	if end > start {
		rangeStr = fmt.Sprintf("%d-%d", start, end-1)
	}
	switch mode {
	case TotalCountHeader:
		w.Header().Set(docapi.HeaderTotalCount, strconv.Itoa(total))
	case TotalContentRange:
		w.Header().Set(docapi.HeaderContentRange, fmt.Sprintf("%s/%d", rangeStr, total))
	case TotalUnknown:
		w.Header().Set(docapi.HeaderContentRange, rangeStr+"/*")
	}
	writeJSON(w, http.StatusOK, records)
}

func (m *MockDocAPI) handleSearch(w http.ResponseWriter, version docapi.Version, entity string, query map[string]string) {
	if query["schema"] == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "schema required"})
		return
	}
	page, _ := strconv.Atoi(query["page"])
	pageSize, _ := strconv.Atoi(query["page_size"])
	if page < 1 || pageSize < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad paging"})
		return
	}

	m.mu.RLock()
	total := m.datasets[datasetKey(version, entity, query["schema"])]
	m.mu.RUnlock()

	start := min((page-1)*pageSize, total)
	end := min(start+pageSize, total)
	writeJSON(w, http.StatusOK, makeRecords(query["schema"], start, end))
}

func datasetKey(version docapi.Version, entity, schema string) string {
	return string(version) + "/" + entity + "/" + schema
}

func makeRecords(schema string, start, end int) []map[string]any {
	records := make([]map[string]any, 0, max(end-start, 0))
	for i := start; i < end; i++ {
		records = append(records, map[string]any{"id": i + 1, "schema": schema})
	}
	return records
}

func namedList(names []string) []map[string]string {
	list := make([]map[string]string, 0, len(names))
	for _, name := range names {
		if name == "" {
			list = append(list, map[string]string{})
			continue
		}
		list = append(list, map[string]string{"name": name})
	}
	return list
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
