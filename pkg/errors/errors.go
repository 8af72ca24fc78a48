// SPDX-FileCopyrightText: qwqVictor and oss-fe-proxy contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package errors is a small taxonomy used by the proxy's request pipeline to
// pick an HTTP status without the handler re-deriving it from sentinel error
// comparisons scattered across packages.
package errors

import "net/http"

// Kind classifies a pipeline failure.
type Kind int

const (
	// NotReady means the cache has not completed its first successful sync.
	NotReady Kind = iota
	// UnknownHost means no Route claims the requested Host header.
	UnknownHost
	// UpstreamMisconfigured means the Route's Upstream or its Secret could not be resolved.
	UpstreamMisconfigured
	// UpstreamTransport means the object-store request could not be dispatched (dial/timeout/TLS).
	UpstreamTransport
	// UpstreamStatus means the object store responded with an unexpected, non-2xx status.
	UpstreamStatus
)

// Error pairs a Kind with the underlying cause.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err under the given Kind. A nil err is allowed for Kinds that
// describe a condition rather than a caught error (e.g. NotReady).
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// StatusFor maps a Kind to the HTTP status the request pipeline must
// respond with.
func (k Kind) StatusFor() int {
	switch k {
	case NotReady:
		return http.StatusServiceUnavailable
	case UnknownHost:
		return http.StatusNotFound
	case UpstreamMisconfigured, UpstreamTransport:
		return http.StatusInternalServerError
	case UpstreamStatus:
		// The object store's actual status varies per request; callers that
		// need the real code should read it off the response, not this Kind.
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func (k Kind) String() string {
	switch k {
	case NotReady:
		return "not ready"
	case UnknownHost:
		return "unknown host"
	case UpstreamMisconfigured:
		return "upstream misconfigured"
	case UpstreamTransport:
		return "upstream transport error"
	case UpstreamStatus:
		return "unexpected upstream status"
	default:
		return "unknown error"
	}
}
