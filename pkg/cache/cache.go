// SPDX-FileCopyrightText: qwqVictor and oss-fe-proxy contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package cache implements the shared routing cache:
// a host -> (Route, Upstream, Credentials) map, readable by every proxy
// worker and written by the ingestion handlers fed from the watcher.
package cache

import (
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	ossfev1 "github.com/qwqVictor/oss-fe-proxy/pkg/apis/ossfe/v1"
)

// NamespacedName identifies an object by namespace and name.
type NamespacedName struct {
	Namespace string
	Name      string
}

func (n NamespacedName) String() string {
	return n.Namespace + "/" + n.Name
}

// Credentials are the decoded access key pair used to sign upstream requests.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
}

// Bundle is the fully-resolved (Route, Upstream, Credentials) tuple returned
// by ResolveRouteByHost.
type Bundle struct {
	Route       ossfev1.OSSProxyRoute
	Upstream    ossfev1.OSSProxyUpstream
	Credentials Credentials
}

// Error values returned by ResolveRouteByHost, distinguished so callers
// can pick the right HTTP status.
var (
	ErrUnknownHost    = fmt.Errorf("unknown host")
	ErrUpstreamMissing = fmt.Errorf("upstream not found for route")
	ErrSecretMissing   = fmt.Errorf("secret not found for upstream")
)

// Status is a point-in-time snapshot of the cache's health, used by
// /health, /metrics and diagnostics.
type Status struct {
	Ready           bool
	SyncedOnce      bool
	RouteCount      int
	UpstreamCount   int
	SecretCount     int
	LastSyncEpoch   int64
	ResourceVersion string
}

type routeEntry struct {
	route ossfev1.OSSProxyRoute
}

type upstreamEntry struct {
	upstream ossfev1.OSSProxyUpstream
}

type secretEntry struct {
	// data holds base64-encoded values, exactly as the Kubernetes API serves them.
	data map[string]string
}

// Cache is the shared, concurrency-safe routing cache. The zero value is not
// usable; construct with New.
type Cache struct {
	mu sync.RWMutex

	routesByHost map[string]routeEntry
	// hostsByRoute is the inverse index used to clean up all of a route's
	// hosts on delete even if the delete event arrives with a stripped spec.
	hostsByRoute map[NamespacedName][]string

	upstreams map[NamespacedName]upstreamEntry
	secrets   map[NamespacedName]secretEntry

	ready           bool
	syncedOnce      bool
	lastSyncEpoch   int64
	resourceVersion string

	now func() time.Time
}

// New constructs an empty, not-yet-ready Cache.
func New() *Cache {
	return &Cache{
		routesByHost: make(map[string]routeEntry),
		hostsByRoute: make(map[NamespacedName][]string),
		upstreams:    make(map[NamespacedName]upstreamEntry),
		secrets:      make(map[NamespacedName]secretEntry),
		now:          time.Now,
	}
}

func keyOf(namespace, name string) NamespacedName {
	return NamespacedName{Namespace: namespace, Name: name}
}

// UpdateRoute inserts or replaces a Route, atomically remapping every host
// in its spec. Any host previously owned by this route's (namespace, name)
// but no longer present in the new spec is released. If a host is
// simultaneously claimed by a different route identity, the newest
// write wins (the admission webhook is the real enforcement point; this is
// only the defensive fallback).
func (c *Cache) UpdateRoute(route ossfev1.OSSProxyRoute) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := keyOf(route.Namespace, route.Name)

	for _, oldHost := range c.hostsByRoute[id] {
		if entry, ok := c.routesByHost[oldHost]; ok && sameRoute(entry.route, route) {
			delete(c.routesByHost, oldHost)
		}
	}

	newHosts := make([]string, 0, len(route.Spec.Hosts))
	for _, host := range route.Spec.Hosts {
		if host == "" {
			continue
		}
		c.routesByHost[host] = routeEntry{route: route}
		newHosts = append(newHosts, host)
	}
	c.hostsByRoute[id] = newHosts

	c.markSyncedLocked()
}

// DeleteRoute removes a Route and releases every host it owned, consulting
// the inverse index rather than trusting the deleted object's spec (which
// may arrive stripped on some API servers).
func (c *Cache) DeleteRoute(namespace, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := keyOf(namespace, name)
	for _, host := range c.hostsByRoute[id] {
		if entry, ok := c.routesByHost[host]; ok && entry.route.Namespace == namespace && entry.route.Name == name {
			delete(c.routesByHost, host)
		}
	}
	delete(c.hostsByRoute, id)
}

func sameRoute(a, b ossfev1.OSSProxyRoute) bool {
	return a.Namespace == b.Namespace && a.Name == b.Name
}

// UpdateUpstream inserts or replaces an Upstream.
func (c *Cache) UpdateUpstream(upstream ossfev1.OSSProxyUpstream) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.upstreams[keyOf(upstream.Namespace, upstream.Name)] = upstreamEntry{upstream: upstream}
}

// DeleteUpstream removes an Upstream.
func (c *Cache) DeleteUpstream(namespace, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.upstreams, keyOf(namespace, name))
}

// UpdateSecret inserts or replaces a Secret's base64-encoded key/value data.
func (c *Cache) UpdateSecret(namespace, name string, data map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.secrets[keyOf(namespace, name)] = secretEntry{data: data}
}

// DeleteSecret removes a Secret.
func (c *Cache) DeleteSecret(namespace, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.secrets, keyOf(namespace, name))
}

// ResolveRouteByHost is the hot-path lookup: given a Host header, returns
// the fully-resolved bundle or a specific error. It never returns a torn
// bundle: route, upstream and secret are read from one consistent snapshot
// under a single read lock.
func (c *Cache) ResolveRouteByHost(host string) (Bundle, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	routeEntry, ok := c.routesByHost[host]
	if !ok {
		return Bundle{}, ErrUnknownHost
	}
	route := routeEntry.route

	upstreamNamespace := route.Spec.UpstreamRef.Namespace
	if upstreamNamespace == "" {
		upstreamNamespace = route.Namespace
	}
	upstreamEntry, ok := c.upstreams[keyOf(upstreamNamespace, route.Spec.UpstreamRef.Name)]
	if !ok {
		return Bundle{}, ErrUpstreamMissing
	}
	upstream := upstreamEntry.upstream

	creds, err := c.resolveCredentialsLocked(upstream)
	if err != nil {
		return Bundle{}, err
	}

	return Bundle{Route: route, Upstream: upstream, Credentials: creds}, nil
}

func (c *Cache) resolveCredentialsLocked(upstream ossfev1.OSSProxyUpstream) (Credentials, error) {
	cred := upstream.Spec.Credentials
	if cred.SecretRef == nil {
		return Credentials{AccessKeyID: cred.AccessKeyID, SecretAccessKey: cred.SecretAccessKey}, nil
	}

	secretNamespace := cred.SecretRef.Namespace
	if secretNamespace == "" {
		secretNamespace = upstream.Namespace
	}
	secret, ok := c.secrets[keyOf(secretNamespace, cred.SecretRef.Name)]
	if !ok {
		return Credentials{}, ErrSecretMissing
	}

	accessKeyID, err := decodeBase64(secret.data[cred.SecretRef.AccessKeyIDKey])
	if err != nil {
		return Credentials{}, fmt.Errorf("decoding access key id: %w", err)
	}
	secretAccessKey, err := decodeBase64(secret.data[cred.SecretRef.SecretAccessKeyKey])
	if err != nil {
		return Credentials{}, fmt.Errorf("decoding secret access key: %w", err)
	}

	return Credentials{AccessKeyID: accessKeyID, SecretAccessKey: secretAccessKey}, nil
}

func decodeBase64(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	out, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// markSyncedLocked implements the monotonic readiness latch:
// the first successful ingestion that leaves at least one route in the
// cache flips ready permanently. Must be called with mu held.
func (c *Cache) markSyncedLocked() {
	c.lastSyncEpoch = c.now().Unix()
	if c.ready {
		return
	}
	if len(c.routesByHost) == 0 {
		return
	}
	c.syncedOnce = true
	c.ready = true
}

// SetResourceVersion records the last resourceVersion observed by the
// watcher, surfaced through Status for diagnostics.
func (c *Cache) SetResourceVersion(rv string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resourceVersion = rv
}

// IsReady reports the monotonic readiness latch: once true, always true.
func (c *Cache) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// Get reports the readiness latch under the method name pkg/healthz.Manager
// uses for its status. Cache does not implement the rest of Manager.
func (c *Cache) Get() bool { return c.IsReady() }

// Status returns a point-in-time snapshot for /health, /metrics and diagnostics.
func (c *Cache) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Status{
		Ready:           c.ready,
		SyncedOnce:      c.syncedOnce,
		RouteCount:      len(c.hostsByRoute),
		UpstreamCount:   len(c.upstreams),
		SecretCount:     len(c.secrets),
		LastSyncEpoch:   c.lastSyncEpoch,
		ResourceVersion: c.resourceVersion,
	}
}
