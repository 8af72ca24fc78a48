// SPDX-FileCopyrightText: qwqVictor and oss-fe-proxy contributors
//
// SPDX-License-Identifier: Apache-2.0

package admission

import (
	"net/http"

	"sigs.k8s.io/controller-runtime/pkg/webhook/admission"
)

// NewMux builds the webhook binary's HTTP surface: the
// validating webhook at /validate, and an unauthenticated /health used by
// the kubelet liveness/readiness probes.
func NewMux(validator *RouteValidator) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/validate", &admission.Webhook{Handler: validator})
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}
