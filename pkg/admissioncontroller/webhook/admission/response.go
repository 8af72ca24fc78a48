// SPDX-FileCopyrightText: qwqVictor and oss-fe-proxy contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package admission holds the host-uniqueness validating webhook and the
// small Allowed/Denied/Errored response constructors the handler builds its
// decisions from.
package admission

import (
	"net/http"

	admissionv1 "k8s.io/api/admission/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/webhook/admission"
)

// Allowed builds a 200 admission response, optionally carrying a message.
func Allowed(msg string) admission.Response {
	return admission.Response{
		AdmissionResponse: admissionv1.AdmissionResponse{
			Allowed: true,
			Result:  statusWithMessage(http.StatusOK, msg),
		},
	}
}

// Denied builds a rejecting admission response with the given reason.
func Denied(msg string) admission.Response {
	return admission.Response{
		AdmissionResponse: admissionv1.AdmissionResponse{
			Allowed: false,
			Result:  statusWithMessage(http.StatusForbidden, msg),
		},
	}
}

// Errored builds an admission response reporting an internal failure to
// evaluate the request. Failures deny rather than allow.
func Errored(code int32, err error) admission.Response {
	return admission.Response{
		AdmissionResponse: admissionv1.AdmissionResponse{
			Allowed: false,
			Result:  statusWithMessage(int(code), err.Error()),
		},
	}
}

func statusWithMessage(code int, msg string) *metav1.Status {
	status := &metav1.Status{Code: int32(code)}
	if msg != "" {
		status.Message = msg
	}
	return status
}
