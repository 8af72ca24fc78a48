// SPDX-FileCopyrightText: qwqVictor and oss-fe-proxy contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package proxy implements the request-serving pipeline: one
// client HTTP request becomes one signed upstream GET (plus at most one
// fallback GET for the SPA/error-page dispositions).
package proxy

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	ossfev1 "github.com/qwqVictor/oss-fe-proxy/pkg/apis/ossfe/v1"
	"github.com/qwqVictor/oss-fe-proxy/pkg/cache"
	pipelineerrors "github.com/qwqVictor/oss-fe-proxy/pkg/errors"
	"github.com/qwqVictor/oss-fe-proxy/pkg/metrics"
	"github.com/qwqVictor/oss-fe-proxy/pkg/signer"
)

// hopByHopHeaders are stripped from the upstream response before it is
// passed through to the client.
var hopByHopHeaders = []string{"Connection", "Transfer-Encoding", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization", "Te", "Trailer", "Upgrade"}

const defaultBackoff = 200 * time.Millisecond
const maxBackoff = 2 * time.Second

// MetricsRecorder is the subset of *metrics.Registry the handler depends on.
type MetricsRecorder interface {
	Observe(route, upstream metrics.NamespacedName, duration time.Duration, isError bool)
}

// Handler is the client-facing HTTP handler.
type Handler struct {
	cache    *cache.Cache
	signer   *signer.Signer
	recorder MetricsRecorder
	log      logr.Logger

	clientsMu sync.Mutex
	clients   map[int]*http.Client

	now func() time.Time
}

// New constructs a request handler. recorder may be nil to disable metrics.
func New(c *cache.Cache, s *signer.Signer, recorder MetricsRecorder, log logr.Logger) *Handler {
	return &Handler{
		cache:    c,
		signer:   s,
		recorder: recorder,
		log:      log,
		clients:  make(map[int]*http.Client),
		now:      time.Now,
	}
}

// ServeHTTP runs the full pipeline: readiness gate, host resolution,
// signed upstream GET, response shaping.
func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	start := h.now()
	host := requestHost(req)
	requestID := requestIDFor(req)
	w.Header().Set("X-Request-Id", requestID)

	if !h.cache.IsReady() {
		h.respondPlain(w, http.StatusServiceUnavailable, "not ready")
		h.logAccess(req, host, requestID, http.StatusServiceUnavailable, start, "not-ready")
		return
	}

	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		h.respondPlain(w, http.StatusMethodNotAllowed, "method not allowed")
		h.logAccess(req, host, requestID, http.StatusMethodNotAllowed, start, "method-not-allowed")
		return
	}

	bundle, err := h.cache.ResolveRouteByHost(host)
	if err != nil {
		kind, disposition := classifyResolveError(err)
		status := kind.StatusFor()
		msg := "route misconfigured for host " + host
		if kind == pipelineerrors.UnknownHost {
			msg = "no route configured for host " + host
		} else {
			h.log.Error(err, "route misconfigured", "host", host, "request_id", requestID)
		}
		h.respondPlain(w, status, msg)
		h.logAccess(req, host, requestID, status, start, disposition)
		return
	}

	status, bytesWritten, disposition := h.serve(w, req, bundle, host, requestID)
	h.recordMetrics(bundle, start, status)
	h.logAccessWithBytes(req, host, requestID, status, start, disposition, bytesWritten)
}

// requestIDFor returns the inbound X-Request-Id if the caller (typically an
// ingress) already set one, generating a fresh v4 UUID otherwise so every
// access-log line and error can be correlated back to one request.
func requestIDFor(req *http.Request) string {
	if id := req.Header.Get("X-Request-Id"); id != "" {
		return id
	}
	return uuid.NewString()
}

// serve issues the signed upstream GET and shapes the response once a
// bundle has been resolved.
func (h *Handler) serve(w http.ResponseWriter, req *http.Request, bundle cache.Bundle, host, requestID string) (status int, bytesWritten int64, disposition string) {
	ctx := req.Context()
	key := objectKey(&bundle.Route, req.URL.Path)

	resp, err := h.fetchWithRetry(ctx, bundle, key, req.URL.RawQuery)
	if err != nil {
		perr := pipelineerrors.New(pipelineerrors.UpstreamTransport, err)
		h.log.Error(perr, "upstream unreachable", "host", host, "request_id", requestID)
		status := perr.Kind.StatusFor()
		h.respondPlain(w, status, "upstream transport error")
		return status, 0, "transport-error"
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		n := h.passThrough(w, req, resp, bundle.Route.Spec.Cache)
		return resp.StatusCode, n, "pass-through"

	case resp.StatusCode == http.StatusNotFound && bundle.Route.Spec.SPAApp:
		discard(resp)
		return h.serveSPAFallback(ctx, w, bundle)

	case resp.StatusCode == http.StatusNotFound && bundle.Route.Spec.ErrorPages[statusKey(http.StatusNotFound)] != "":
		discard(resp)
		return h.serveErrorPage(ctx, w, bundle, http.StatusNotFound)

	case resp.StatusCode == http.StatusNotFound:
		discard(resp)
		h.respondPlain(w, http.StatusNotFound, "not found")
		return http.StatusNotFound, 0, "not-found"

	default:
		perr := pipelineerrors.New(pipelineerrors.UpstreamStatus, fmt.Errorf("object store responded %d", resp.StatusCode))
		discard(resp)
		h.log.Info(perr.Error(), "host", host, "request_id", requestID, "upstream_status", resp.StatusCode)
		h.respondPlain(w, resp.StatusCode, http.StatusText(resp.StatusCode))
		return resp.StatusCode, 0, "upstream-status"
	}
}

// classifyResolveError maps a pkg/cache resolution error onto the pipeline's
// error taxonomy: an unknown host is a client-facing 404, while a
// route whose upstream or secret cannot be found is a server misconfiguration.
func classifyResolveError(err error) (pipelineerrors.Kind, string) {
	switch err {
	case cache.ErrUnknownHost:
		return pipelineerrors.UnknownHost, "unknown-host"
	case cache.ErrUpstreamMissing, cache.ErrSecretMissing:
		return pipelineerrors.UpstreamMisconfigured, "upstream-misconfigured"
	default:
		return pipelineerrors.UpstreamMisconfigured, "upstream-misconfigured"
	}
}

// statusKey renders an HTTP status as the 3-digit string key errorPages is
// keyed by.
func statusKey(status int) string {
	return strconv.Itoa(status)
}

func (h *Handler) serveSPAFallback(ctx context.Context, w http.ResponseWriter, bundle cache.Bundle) (int, int64, string) {
	key := objectKey(&bundle.Route, "/")
	resp, err := h.fetchOnce(ctx, bundle, key, "")
	if err != nil || resp.StatusCode != http.StatusOK {
		if resp != nil {
			discard(resp)
		}
		h.respondPlain(w, http.StatusNotFound, "not found")
		return http.StatusNotFound, 0, "spa-fallback-failed"
	}
	defer resp.Body.Close()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if cc := htmlCacheControl(bundle.Route.Spec.Cache); cc != "" {
		w.Header().Set("Cache-Control", cc)
	}
	w.WriteHeader(http.StatusOK)
	n, _ := io.Copy(w, resp.Body)
	return http.StatusOK, n, "spa-fallback"
}

func (h *Handler) serveErrorPage(ctx context.Context, w http.ResponseWriter, bundle cache.Bundle, respondStatus int) (int, int64, string) {
	suffix := bundle.Route.Spec.ErrorPages[statusKey(respondStatus)]
	key := bundle.Route.Spec.Prefix + strings.TrimPrefix(suffix, "/")

	resp, err := h.fetchOnce(ctx, bundle, key, "")
	if err != nil || resp.StatusCode != http.StatusOK {
		if resp != nil {
			discard(resp)
		}
		h.respondPlain(w, respondStatus, "not found")
		return respondStatus, 0, "error-page-failed"
	}
	defer resp.Body.Close()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if cc := htmlCacheControl(bundle.Route.Spec.Cache); cc != "" {
		w.Header().Set("Cache-Control", cc)
	}
	w.WriteHeader(respondStatus)
	n, _ := io.Copy(w, resp.Body)
	return respondStatus, n, "error-page"
}

// passThrough copies a 2xx upstream response to the client, applying the
// cache-control policy and stripping hop-by-hop headers.
func (h *Handler) passThrough(w http.ResponseWriter, req *http.Request, resp *http.Response, cachePolicy *ossfev1.CachePolicy) int64 {
	dst := w.Header()
	for name, values := range resp.Header {
		if isHopByHop(name) {
			continue
		}
		for _, v := range values {
			dst.Add(name, v)
		}
	}

	if cc := cacheControl(cachePolicy, req.URL.Path, resp.Header.Get("Content-Type")); cc != "" {
		dst.Set("Cache-Control", cc)
	}

	w.WriteHeader(resp.StatusCode)
	if req.Method == http.MethodHead {
		discard(resp)
		return 0
	}
	n, _ := io.Copy(w, resp.Body)
	return n
}

func isHopByHop(header string) bool {
	for _, h := range hopByHopHeaders {
		if strings.EqualFold(h, header) {
			return true
		}
	}
	return false
}

// fetchWithRetry issues the primary object GET, retrying on
// transport failures only (never on a non-2xx status, never for a fallback
// request).
func (h *Handler) fetchWithRetry(ctx context.Context, bundle cache.Bundle, key, rawQuery string) (*http.Response, error) {
	retry := bundle.Upstream.Spec.Retry
	attempts := 1
	backoff := defaultBackoff
	if retry != nil {
		attempts += retry.Attempts
		if retry.BackoffMillis > 0 {
			backoff = time.Duration(retry.BackoffMillis) * time.Millisecond
		}
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		resp, err := h.fetchOnce(ctx, bundle, key, rawQuery)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// fetchOnce signs and dispatches a single upstream GET.
func (h *Handler) fetchOnce(ctx context.Context, bundle cache.Bundle, key, rawQuery string) (*http.Response, error) {
	u := buildUpstreamURL(&bundle.Upstream, bundle.Route.Spec.Bucket, key, rawQuery)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Host = u.Host

	creds := signer.Credentials{
		AccessKeyID:     bundle.Credentials.AccessKeyID,
		SecretAccessKey: bundle.Credentials.SecretAccessKey,
	}
	if err := h.signer.Sign(ctx, req, creds, bundle.Upstream.Spec.RegionOrDefault(), h.now()); err != nil {
		return nil, err
	}

	client := h.clientFor(bundle.Upstream.Spec.ConnectTimeoutOrDefault())
	return client.Do(req)
}

// clientFor returns a cached *http.Client whose dial timeout matches
// connectTimeoutSeconds, constructing one on first use.
func (h *Handler) clientFor(connectTimeoutSeconds int) *http.Client {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	if c, ok := h.clients[connectTimeoutSeconds]; ok {
		return c
	}

	dialer := &net.Dialer{Timeout: time.Duration(connectTimeoutSeconds) * time.Second}
	c := &http.Client{
		Transport: &http.Transport{
			DialContext: dialer.DialContext,
		},
	}
	h.clients[connectTimeoutSeconds] = c
	return c
}

func (h *Handler) respondPlain(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, msg)
}

func (h *Handler) recordMetrics(bundle cache.Bundle, start time.Time, status int) {
	if h.recorder == nil {
		return
	}
	route := metrics.NamespacedName{Namespace: bundle.Route.Namespace, Name: bundle.Route.Name}
	upstreamNS := bundle.Route.Spec.UpstreamRef.Namespace
	if upstreamNS == "" {
		upstreamNS = bundle.Route.Namespace
	}
	upstream := metrics.NamespacedName{Namespace: upstreamNS, Name: bundle.Route.Spec.UpstreamRef.Name}
	h.recorder.Observe(route, upstream, h.now().Sub(start), status >= 400)
}

func (h *Handler) logAccess(req *http.Request, host, requestID string, status int, start time.Time, disposition string) {
	h.logAccessWithBytes(req, host, requestID, status, start, disposition, 0)
}

func (h *Handler) logAccessWithBytes(req *http.Request, host, requestID string, status int, start time.Time, disposition string, bytesWritten int64) {
	h.log.Info("request",
		"request_id", requestID,
		"method", req.Method,
		"host", host,
		"path", req.URL.Path,
		"status", status,
		"bytes", bytesWritten,
		"latency", h.now().Sub(start).String(),
		"disposition", disposition,
	)
}

func discard(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

// requestHost extracts the host to resolve a Route by, preferring the Host
// header and stripping any port. net/http always populates req.Host from
// either the Host header or the request line, so no further fallback is
// needed here.
func requestHost(req *http.Request) string {
	host := req.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}
