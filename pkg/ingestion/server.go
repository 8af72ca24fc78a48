// SPDX-FileCopyrightText: qwqVictor and oss-fe-proxy contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package ingestion implements the loopback-only, API-key-gated HTTP surface
// that the watcher uses to push Route/Upstream/Secret changes
// into the proxy's in-memory cache.
package ingestion

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-logr/logr"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	ossfev1 "github.com/qwqVictor/oss-fe-proxy/pkg/apis/ossfe/v1"
	"github.com/qwqVictor/oss-fe-proxy/pkg/cache"
)

// Server implements the ingestion API, bound to one *cache.Cache.
type Server struct {
	cache  *cache.Cache
	apiKey string
	log    logr.Logger
}

// New constructs a Server. apiKey is the shared secret every request's
// X-API-Key header must match.
func New(c *cache.Cache, apiKey string, log logr.Logger) *Server {
	return &Server{cache: c, apiKey: apiKey, log: log}
}

// Router builds the chi router serving the six ingestion endpoints.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(s.authenticate)

	r.Post("/api/routes/update", s.handleRouteUpdate)
	r.Post("/api/routes/delete", s.handleRouteDelete)
	r.Post("/api/upstreams/update", s.handleUpstreamUpdate)
	r.Post("/api/upstreams/delete", s.handleUpstreamDelete)
	r.Post("/api/secrets/update", s.handleSecretUpdate)
	r.Post("/api/secrets/delete", s.handleSecretDelete)

	return r
}

// authenticate enforces the X-API-Key header using a constant-time
// comparison to avoid leaking the key through response-timing side channels.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		provided := req.Header.Get("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(s.apiKey)) != 1 {
			respond(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, req)
	})
}

func (s *Server) handleRouteUpdate(w http.ResponseWriter, req *http.Request) {
	var route ossfev1.OSSProxyRoute
	if err := decode(req, &route); err != nil {
		respond(w, http.StatusBadRequest, "invalid payload: "+err.Error())
		return
	}
	if route.Name == "" || len(route.Spec.Hosts) == 0 || route.Spec.Bucket == "" || route.Spec.UpstreamRef.Name == "" {
		respond(w, http.StatusBadRequest, "route missing required fields")
		return
	}
	s.cache.UpdateRoute(route)
	respond(w, http.StatusOK, "ok")
}

func (s *Server) handleRouteDelete(w http.ResponseWriter, req *http.Request) {
	var payload objectRef
	if err := decode(req, &payload); err != nil {
		respond(w, http.StatusBadRequest, "invalid payload: "+err.Error())
		return
	}
	if payload.Metadata.Name == "" {
		respond(w, http.StatusBadRequest, "missing metadata.name")
		return
	}
	s.cache.DeleteRoute(payload.Metadata.Namespace, payload.Metadata.Name)
	respond(w, http.StatusOK, "ok")
}

func (s *Server) handleUpstreamUpdate(w http.ResponseWriter, req *http.Request) {
	var upstream ossfev1.OSSProxyUpstream
	if err := decode(req, &upstream); err != nil {
		respond(w, http.StatusBadRequest, "invalid payload: "+err.Error())
		return
	}
	if upstream.Name == "" || upstream.Spec.EndpointOrDefault() == "" {
		respond(w, http.StatusBadRequest, "upstream missing required fields")
		return
	}
	s.cache.UpdateUpstream(upstream)
	respond(w, http.StatusOK, "ok")
}

func (s *Server) handleUpstreamDelete(w http.ResponseWriter, req *http.Request) {
	var payload objectRef
	if err := decode(req, &payload); err != nil {
		respond(w, http.StatusBadRequest, "invalid payload: "+err.Error())
		return
	}
	if payload.Metadata.Name == "" {
		respond(w, http.StatusBadRequest, "missing metadata.name")
		return
	}
	s.cache.DeleteUpstream(payload.Metadata.Namespace, payload.Metadata.Name)
	respond(w, http.StatusOK, "ok")
}

func (s *Server) handleSecretUpdate(w http.ResponseWriter, req *http.Request) {
	var payload secretPayload
	if err := decode(req, &payload); err != nil {
		respond(w, http.StatusBadRequest, "invalid payload: "+err.Error())
		return
	}
	if payload.Metadata.Name == "" {
		respond(w, http.StatusBadRequest, "missing metadata.name")
		return
	}
	s.cache.UpdateSecret(payload.Metadata.Namespace, payload.Metadata.Name, payload.Data)
	respond(w, http.StatusOK, "ok")
}

func (s *Server) handleSecretDelete(w http.ResponseWriter, req *http.Request) {
	var payload objectRef
	if err := decode(req, &payload); err != nil {
		respond(w, http.StatusBadRequest, "invalid payload: "+err.Error())
		return
	}
	if payload.Metadata.Name == "" {
		respond(w, http.StatusBadRequest, "missing metadata.name")
		return
	}
	s.cache.DeleteSecret(payload.Metadata.Namespace, payload.Metadata.Name)
	respond(w, http.StatusOK, "ok")
}

// objectRef is the minimal shape a delete push needs: just enough metadata
// to identify the object, even if the rest of the spec arrives stripped.
type objectRef struct {
	Metadata metav1.ObjectMeta `json:"metadata"`
}

// secretPayload decodes Secret.data as raw base64 strings rather than
// corev1.Secret's map[string][]byte, which the encoding/json package would
// silently base64-decode on unmarshal. pkg/cache stores Secret values in
// exactly the base64 form the Kubernetes API itself serves, so this struct
// preserves that contract instead of fighting it.
type secretPayload struct {
	Metadata metav1.ObjectMeta `json:"metadata"`
	Data     map[string]string `json:"data"`
}

func decode(req *http.Request, v interface{}) error {
	defer req.Body.Close()
	dec := json.NewDecoder(req.Body)
	return dec.Decode(v)
}

func respond(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(msg))
}
