package amari

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrEmptyToken is returned by New when no API token is given.
	ErrEmptyToken = errors.New("amari: empty API token")

	// ErrRawPagination is returned when a raw leaderboard is requested with
	// a page; the raw endpoint does not paginate.
	ErrRawPagination = errors.New("amari: raw leaderboard does not support pagination")
)

// APIError is a non-2xx response from the Amari API. It carries a canonical
// status code so that callers and the retry policy can classify it with
// status.FromError / status.Code.
type APIError struct {
	StatusCode int
	Endpoint   string
	Body       string
	retryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("amari: %s: %d %s", e.Endpoint, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("amari: %s: %d %s: %s", e.Endpoint, e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// Code maps the HTTP status to a canonical code.
func (e *APIError) Code() codes.Code {
	switch {
	case e.StatusCode == http.StatusBadRequest:
		return codes.InvalidArgument
	case e.StatusCode == http.StatusUnauthorized:
		return codes.Unauthenticated
	case e.StatusCode == http.StatusForbidden:
		return codes.PermissionDenied
	case e.StatusCode == http.StatusNotFound:
		return codes.NotFound
	case e.StatusCode == http.StatusTooManyRequests:
		return codes.ResourceExhausted
	case e.StatusCode == http.StatusNotImplemented:
		return codes.Unimplemented
	case e.StatusCode >= 500:
		return codes.Unavailable
	default:
		return codes.Unknown
	}
}

// GRPCStatus lets status.FromError see through APIError.
func (e *APIError) GRPCStatus() *status.Status {
	return status.New(e.Code(), e.Error())
}

// RetryAfter is the back-off the server asked for, zero if none.
func (e *APIError) RetryAfter() time.Duration {
	return e.retryAfter
}

// parseRetryAfter reads a Retry-After header given in seconds.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// isProviderFailure reports whether err says the API itself is unhealthy, as
// opposed to a bad request for a missing member.
func isProviderFailure(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code() {
		case codes.Unavailable, codes.ResourceExhausted:
			return true
		default:
			return false
		}
	}
	// Transport errors count, our own cancellations do not.
	return !errors.Is(err, context.Canceled)
}
