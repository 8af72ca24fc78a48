// SPDX-FileCopyrightText: qwqVictor and oss-fe-proxy contributors
//
// SPDX-License-Identifier: Apache-2.0

package ingestion

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	ossfev1 "github.com/qwqVictor/oss-fe-proxy/pkg/apis/ossfe/v1"
)

func meta(namespace, name string) metav1.ObjectMeta {
	return metav1.ObjectMeta{Namespace: namespace, Name: name}
}

// Client pushes Route/Upstream/Secret changes to a proxy's loopback
// ingestion API. It implements pkg/watcher.Sink, letting the
// watcher binary drive a remote proxy exactly the way tests drive an
// in-process *pkg/cache.Cache directly.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        logr.Logger
}

// NewClient constructs a Client. baseURL is the proxy's loopback address,
// e.g. "http://127.0.0.1:8081".
func NewClient(baseURL, apiKey string, log logr.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		log: log,
	}
}

func (c *Client) post(path string, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		c.log.Error(err, "marshaling ingestion payload", "path", path)
		return
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		c.log.Error(err, "building ingestion request", "path", path)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error(err, "pushing to ingestion api", "path", path)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.Error(fmt.Errorf("unexpected status %d", resp.StatusCode), "ingestion push rejected", "path", path)
	}
}

func (c *Client) UpdateRoute(route ossfev1.OSSProxyRoute) {
	c.post("/api/routes/update", route)
}

func (c *Client) DeleteRoute(namespace, name string) {
	c.post("/api/routes/delete", objectRef{Metadata: meta(namespace, name)})
}

func (c *Client) UpdateUpstream(upstream ossfev1.OSSProxyUpstream) {
	c.post("/api/upstreams/update", upstream)
}

func (c *Client) DeleteUpstream(namespace, name string) {
	c.post("/api/upstreams/delete", objectRef{Metadata: meta(namespace, name)})
}

func (c *Client) UpdateSecret(namespace, name string, data map[string]string) {
	c.post("/api/secrets/update", secretPayload{Metadata: meta(namespace, name), Data: data})
}

func (c *Client) DeleteSecret(namespace, name string) {
	c.post("/api/secrets/delete", objectRef{Metadata: meta(namespace, name)})
}

// SetResourceVersion is a no-op for the HTTP sink: the ingestion API has no
// endpoint for it, since it is purely a diagnostic surfaced by the watcher's
// own in-process cache client in tests.
func (c *Client) SetResourceVersion(string) {}
