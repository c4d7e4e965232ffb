// Package core holds the remote-call pipeline shared by the client: a Call
// describing one API request and an ordered chain of middlewares around the
// handler that sends it.
package core

import (
	"context"
	"net/http"
	"net/url"
)

// Call describes one request to the remote API. Middlewares may add headers;
// the final handler decodes the response body into Out.
type Call struct {
	Endpoint string // logical name used for metrics and spans, e.g. "members"
	Method   string
	Path     string
	Query    url.Values
	Header   http.Header
	Body     any
	Out      any
}

// NewCall returns a Call with an initialised header map.
func NewCall(endpoint, method, path string, out any) *Call {
	return &Call{
		Endpoint: endpoint,
		Method:   method,
		Path:     path,
		Header:   make(http.Header),
		Out:      out,
	}
}

// Handler performs a Call.
type Handler func(ctx context.Context, call *Call) error

// Middleware wraps a Handler with pre/post behaviour.
type Middleware func(Handler) Handler

// Chain composes middlewares from left to right, i.e. Chain(A, B)(h) => A(B(h)).
func Chain(mw ...Middleware) Middleware {
	return func(next Handler) Handler {
		for i := len(mw) - 1; i >= 0; i-- {
			next = mw[i](next)
		}
		return next
	}
}
