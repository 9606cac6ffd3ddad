package docapi

import (
	"errors"
	"fmt"
	"net/http"
)

// MaxErrorBodyBytes bounds the diagnostic body kept on a RemoteError.
const MaxErrorBodyBytes = 512

// Common errors returned by the client.
var (
	// ErrInvalidConfig is returned by New when the configuration cannot be used.
	ErrInvalidConfig = errors.New("invalid docapi config")

	// ErrDecode is returned when a success response carries an unreadable body.
	ErrDecode = errors.New("decode response")
)

// ErrorClass represents a classification of remote HTTP errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassAuth represents 401/403 responses, usually bad credentials.
	ErrorClassAuth ErrorClass = "auth"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// RemoteError is returned when the document API answered with a non-success status.
type RemoteError struct {
	Operation  string
	StatusCode int
	ErrorClass ErrorClass
	// Body is the start of the response body, at most MaxErrorBodyBytes long.
	Body string
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("docapi %s %s error (status %d): %s",
			e.Operation, e.ErrorClass, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("docapi %s %s error (status %d)",
		e.Operation, e.ErrorClass, e.StatusCode)
}

// IsRemoteError reports whether err is (or wraps) a RemoteError.
func IsRemoteError(err error) bool {
	var remoteErr *RemoteError
	return errors.As(err, &remoteErr)
}

// StatusCode returns the remote status carried by err, or 0 when err is not a RemoteError.
func StatusCode(err error) int {
	var remoteErr *RemoteError
	if errors.As(err, &remoteErr) {
		return remoteErr.StatusCode
	}
	return 0
}

func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrorClassAuth
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

func truncateBody(body []byte) string {
	if len(body) > MaxErrorBodyBytes {
		body = body[:MaxErrorBodyBytes]
	}
	return string(body)
}
