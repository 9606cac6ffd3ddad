package server

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/Sternrassler/docapi-export/pkg/docapi"
	"github.com/Sternrassler/docapi-export/pkg/export"
	"github.com/Sternrassler/docapi-export/pkg/ratelimit"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// errorResponse is the JSON body of every error reply.
type errorResponse struct {
	Error        string `json:"error"`
	Field        string `json:"field,omitempty"`
	RemoteStatus int    `json:"remote_status,omitempty"`
	Details      string `json:"details,omitempty"`
	RetryAfter   int    `json:"retry_after,omitempty"`
}

// writeError maps an error onto an HTTP status and JSON body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	logger := zerolog.Ctx(r.Context())

	var (
		limited    *ratelimit.LimitedError
		validation *export.ValidationError
		remote     *docapi.RemoteError
	)

	switch {
	case errors.As(err, &limited):
		seconds := int(math.Ceil(limited.RetryAfter.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		writeJSON(w, http.StatusTooManyRequests, errorResponse{
			Error:      "rate limit exceeded",
			RetryAfter: seconds,
		})

	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: validation.Error(),
			Field: validation.Field,
		})

	case errors.Is(err, export.ErrNoSchemaAvailable):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no schema available for entity"})

	case errors.As(err, &remote):
		status := remote.StatusCode
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		writeJSON(w, status, errorResponse{
			Error:        "remote " + remote.Operation + " call failed",
			RemoteStatus: remote.StatusCode,
			Details:      remote.Body,
		})

	case errors.Is(err, context.Canceled) && r.Context().Err() != nil:
		// Client went away; nobody is left to read a reply.
		logger.Debug().Err(err).Msg("Request cancelled by client")

	default:
		logger.Error().Err(err).Msg("Unhandled error")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Error encoding response")
	}
}
