// SPDX-FileCopyrightText: qwqVictor and oss-fe-proxy contributors
//
// SPDX-License-Identifier: Apache-2.0

package ingestion_test

import (
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/go-logr/logr"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	ossfev1 "github.com/qwqVictor/oss-fe-proxy/pkg/apis/ossfe/v1"
	"github.com/qwqVictor/oss-fe-proxy/pkg/cache"
	"github.com/qwqVictor/oss-fe-proxy/pkg/ingestion"
)

var _ = Describe("Client", func() {
	const key = "test-key"

	It("round-trips a route/upstream push through a real server into the cache", func() {
		c := cache.New()
		server := httptest.NewServer(ingestion.New(c, key, logr.Discard()).Router())
		defer server.Close()

		client := ingestion.NewClient(server.URL, key, logr.Discard())

		client.UpdateUpstream(ossfev1.OSSProxyUpstream{
			ObjectMeta: metav1.ObjectMeta{Namespace: "default", Name: "up"},
			Spec: ossfev1.OSSProxyUpstreamSpec{
				Endpoint: "objects.example.com",
				Credentials: ossfev1.Credentials{
					AccessKeyID:     "AKIA",
					SecretAccessKey: "secret",
				},
			},
		})
		client.UpdateRoute(ossfev1.OSSProxyRoute{
			ObjectMeta: metav1.ObjectMeta{Namespace: "default", Name: "site"},
			Spec: ossfev1.OSSProxyRouteSpec{
				Hosts:       []string{"example.com"},
				Bucket:      "testbucket",
				UpstreamRef: ossfev1.UpstreamRef{Name: "up"},
			},
		})

		Eventually(func() error {
			_, err := c.ResolveRouteByHost("example.com")
			return err
		}).Should(Succeed())

		client.DeleteRoute("default", "site")

		Eventually(func() error {
			_, err := c.ResolveRouteByHost("example.com")
			return err
		}).Should(Equal(cache.ErrUnknownHost))
	})
})
