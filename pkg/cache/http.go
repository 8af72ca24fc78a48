// SPDX-FileCopyrightText: qwqVictor and oss-fe-proxy contributors
//
// SPDX-License-Identifier: Apache-2.0

package cache

import "net/http"

// ReadinessHandler serves the proxy's `/health`: 200 while IsReady() is
// true, 503 beforehand. Unlike pkg/healthz.HandlerFunc (500/200, reusable
// for any flappable Manager), this always reports 503 for "not yet ready"
// since the proxy's cache readiness is monotonic, never flapping back to
// unhealthy once true.
func (c *Cache) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if c.IsReady() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}
}
