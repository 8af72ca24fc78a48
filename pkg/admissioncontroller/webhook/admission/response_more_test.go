// SPDX-FileCopyrightText: qwqVictor and oss-fe-proxy contributors
//
// SPDX-License-Identifier: Apache-2.0

package admission_test

import (
	"fmt"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	admissionv1 "k8s.io/api/admission/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/webhook/admission"

	. "github.com/qwqVictor/oss-fe-proxy/pkg/admissioncontroller/webhook/admission"
)

var _ = Describe("Denied", func() {
	It("returns a 403 admission response carrying the reason", func() {
		Expect(Denied("host already claimed")).To(Equal(admission.Response{
			AdmissionResponse: admissionv1.AdmissionResponse{
				Allowed: false,
				Result: &metav1.Status{
					Code:    int32(http.StatusForbidden),
					Message: "host already claimed",
				},
			},
		}))
	})
})

var _ = Describe("Errored", func() {
	It("returns the given code with the error's message", func() {
		resp := Errored(http.StatusInternalServerError, fmt.Errorf("listing routes: boom"))
		Expect(resp.Allowed).To(BeFalse())
		Expect(resp.Result.Code).To(Equal(int32(http.StatusInternalServerError)))
		Expect(resp.Result.Message).To(Equal("listing routes: boom"))
	})
})
