package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Sternrassler/docapi-export/pkg/docapi"
	"github.com/Sternrassler/docapi-export/pkg/export"
	"github.com/Sternrassler/docapi-export/pkg/ratelimit"
	"github.com/Sternrassler/docapi-export/pkg/schema"
)

type accessBody struct {
	TenantID     string `json:"tenant_id"`
	AccessKey    string `json:"access_key"`
	AccessSecret string `json:"access_secret"`
	Version      string `json:"version"`
}

func (b accessBody) credentials() docapi.Credentials {
	return docapi.Credentials{
		TenantID:     b.TenantID,
		AccessKey:    b.AccessKey,
		AccessSecret: b.AccessSecret,
	}
}

type exportBody struct {
	accessBody
	Entity string `json:"entity"`
	Schema string `json:"schema"`
}

func (b exportBody) request() export.Request {
	return export.Request{
		Credentials: b.credentials(),
		Version:     docapi.Version(b.Version),
		Entity:      b.Entity,
		Schema:      b.Schema,
	}
}

type pageBody struct {
	exportBody
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

type exportResponse struct {
	Records       []docapi.Record `json:"records"`
	BatchesIssued int             `json:"batches_issued"`
	Truncated     bool            `json:"truncated"`
	StrategyUsed  string          `json:"strategy_used"`
	StopReason    string          `json:"stop_reason"`
	Schema        string          `json:"schema,omitempty"`
}

type entitiesResponse struct {
	Entities []schema.EntitySchemas `json:"entities"`
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if err := s.tracker.Allow(r.Context(), s.cfg.ExportQuota, ratelimit.ClientKey(r)); err != nil {
		writeError(w, r, err)
		return
	}

	var body exportBody
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := s.exporter.Export(r.Context(), body.request())
	if err != nil {
		writeError(w, r, err)
		return
	}

	records := result.Records
	if records == nil {
		records = []docapi.Record{}
	}
	writeJSON(w, http.StatusOK, exportResponse{
		Records:       records,
		BatchesIssued: result.BatchesIssued,
		Truncated:     result.Truncated,
		StrategyUsed:  string(result.Strategy),
		StopReason:    string(result.StopReason),
		Schema:        result.Schema,
	})
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	if err := s.tracker.Allow(r.Context(), s.cfg.PageQuota, ratelimit.ClientKey(r)); err != nil {
		writeError(w, r, err)
		return
	}

	var body pageBody
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := s.pages.FetchPage(r.Context(), export.PageRequest{
		Request:  body.request(),
		Page:     body.Page,
		PageSize: body.PageSize,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	if result.Records == nil {
		result.Records = []docapi.Record{}
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	if err := s.tracker.Allow(r.Context(), s.cfg.EntitiesQuota, ratelimit.ClientKey(r)); err != nil {
		writeError(w, r, err)
		return
	}

	var body accessBody
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	creds, version := body.credentials(), docapi.Version(body.Version)
	if err := export.ValidateAccess(creds, version); err != nil {
		writeError(w, r, err)
		return
	}

	entities, err := s.entities.ListEntitiesWithSchemas(r.Context(), creds, version)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entities == nil {
		entities = []schema.EntitySchemas{}
	}
	writeJSON(w, http.StatusOK, entitiesResponse{Entities: entities})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &export.ValidationError{Field: "body", Reason: fmt.Sprintf("malformed JSON: %v", err)}
	}
	return nil
}
