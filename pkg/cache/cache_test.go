// SPDX-FileCopyrightText: qwqVictor and oss-fe-proxy contributors
//
// SPDX-License-Identifier: Apache-2.0

package cache_test

import (
	"encoding/base64"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	ossfev1 "github.com/qwqVictor/oss-fe-proxy/pkg/apis/ossfe/v1"
	. "github.com/qwqVictor/oss-fe-proxy/pkg/cache"
)

func b64(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

var _ = Describe("Cache", func() {
	var c *Cache

	BeforeEach(func() {
		c = New()
	})

	Describe("readiness", func() {
		It("starts not ready", func() {
			Expect(c.IsReady()).To(BeFalse())
		})

		It("becomes ready once a route lands", func() {
			c.UpdateRoute(ossfev1.OSSProxyRoute{
				ObjectMeta: metav1.ObjectMeta{Namespace: "ns", Name: "r1"},
				Spec:       ossfev1.OSSProxyRouteSpec{Hosts: []string{"a.example.com"}},
			})
			Expect(c.IsReady()).To(BeTrue())
		})

		It("never becomes unready again, even once every route is deleted", func() {
			c.UpdateRoute(ossfev1.OSSProxyRoute{
				ObjectMeta: metav1.ObjectMeta{Namespace: "ns", Name: "r1"},
				Spec:       ossfev1.OSSProxyRouteSpec{Hosts: []string{"a.example.com"}},
			})
			Expect(c.IsReady()).To(BeTrue())

			c.DeleteRoute("ns", "r1")
			Expect(c.Status().RouteCount).To(Equal(0))
			Expect(c.IsReady()).To(BeTrue())
		})

		It("stays unready while updates carry zero hosts", func() {
			c.UpdateRoute(ossfev1.OSSProxyRoute{
				ObjectMeta: metav1.ObjectMeta{Namespace: "ns", Name: "empty"},
				Spec:       ossfev1.OSSProxyRouteSpec{Hosts: nil},
			})
			Expect(c.IsReady()).To(BeFalse())
		})
	})

	Describe("ResolveRouteByHost", func() {
		It("returns ErrUnknownHost for an unmapped host", func() {
			_, err := c.ResolveRouteByHost("nope.example.com")
			Expect(err).To(MatchError(ErrUnknownHost))
		})

		It("returns ErrUpstreamMissing when the upstream hasn't arrived yet", func() {
			c.UpdateRoute(ossfev1.OSSProxyRoute{
				ObjectMeta: metav1.ObjectMeta{Namespace: "ns", Name: "r1"},
				Spec: ossfev1.OSSProxyRouteSpec{
					Hosts:       []string{"app.example.com"},
					UpstreamRef: ossfev1.UpstreamRef{Name: "up1"},
				},
			})
			_, err := c.ResolveRouteByHost("app.example.com")
			Expect(err).To(MatchError(ErrUpstreamMissing))
		})

		It("returns ErrSecretMissing when the upstream references an absent secret", func() {
			c.UpdateRoute(ossfev1.OSSProxyRoute{
				ObjectMeta: metav1.ObjectMeta{Namespace: "ns", Name: "r1"},
				Spec: ossfev1.OSSProxyRouteSpec{
					Hosts:       []string{"app.example.com"},
					UpstreamRef: ossfev1.UpstreamRef{Name: "up1"},
				},
			})
			c.UpdateUpstream(ossfev1.OSSProxyUpstream{
				ObjectMeta: metav1.ObjectMeta{Namespace: "ns", Name: "up1"},
				Spec: ossfev1.OSSProxyUpstreamSpec{
					Credentials: ossfev1.Credentials{
						SecretRef: &ossfev1.SecretKeySelector{Name: "sec1", AccessKeyIDKey: "id", SecretAccessKeyKey: "key"},
					},
				},
			})
			_, err := c.ResolveRouteByHost("app.example.com")
			Expect(err).To(MatchError(ErrSecretMissing))
		})

		It("resolves a complete bundle with decoded credentials", func() {
			c.UpdateRoute(ossfev1.OSSProxyRoute{
				ObjectMeta: metav1.ObjectMeta{Namespace: "ns", Name: "r1"},
				Spec: ossfev1.OSSProxyRouteSpec{
					Hosts:       []string{"app.example.com"},
					UpstreamRef: ossfev1.UpstreamRef{Name: "up1"},
					Bucket:      "my-bucket",
				},
			})
			c.UpdateUpstream(ossfev1.OSSProxyUpstream{
				ObjectMeta: metav1.ObjectMeta{Namespace: "ns", Name: "up1"},
				Spec: ossfev1.OSSProxyUpstreamSpec{
					Provider: ossfev1.ProviderAWS,
					Region:   "us-east-1",
					Endpoint: "s3.amazonaws.com",
					Credentials: ossfev1.Credentials{
						SecretRef: &ossfev1.SecretKeySelector{Name: "sec1", AccessKeyIDKey: "id", SecretAccessKeyKey: "key"},
					},
				},
			})
			c.UpdateSecret("ns", "sec1", map[string]string{
				"id":  b64("AKIAEXAMPLE"),
				"key": b64("supersecret"),
			})

			bundle, err := c.ResolveRouteByHost("app.example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(bundle.Route.Spec.Bucket).To(Equal("my-bucket"))
			Expect(bundle.Upstream.Spec.Endpoint).To(Equal("s3.amazonaws.com"))
			Expect(bundle.Credentials.AccessKeyID).To(Equal("AKIAEXAMPLE"))
			Expect(bundle.Credentials.SecretAccessKey).To(Equal("supersecret"))
		})

		It("defaults the secret namespace to the upstream's namespace", func() {
			c.UpdateRoute(ossfev1.OSSProxyRoute{
				ObjectMeta: metav1.ObjectMeta{Namespace: "ns", Name: "r1"},
				Spec: ossfev1.OSSProxyRouteSpec{
					Hosts:       []string{"app.example.com"},
					UpstreamRef: ossfev1.UpstreamRef{Name: "up1"},
				},
			})
			c.UpdateUpstream(ossfev1.OSSProxyUpstream{
				ObjectMeta: metav1.ObjectMeta{Namespace: "ns", Name: "up1"},
				Spec: ossfev1.OSSProxyUpstreamSpec{
					Credentials: ossfev1.Credentials{
						SecretRef: &ossfev1.SecretKeySelector{Name: "sec1", AccessKeyIDKey: "id", SecretAccessKeyKey: "key"},
					},
				},
			})
			c.UpdateSecret("ns", "sec1", map[string]string{"id": b64("a"), "key": b64("b")})

			_, err := c.ResolveRouteByHost("app.example.com")
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("host reassignment", func() {
		It("releases a host no longer present on an update (last-writer-wins fallback)", func() {
			c.UpdateRoute(ossfev1.OSSProxyRoute{
				ObjectMeta: metav1.ObjectMeta{Namespace: "ns", Name: "r1"},
				Spec:       ossfev1.OSSProxyRouteSpec{Hosts: []string{"a.example.com", "b.example.com"}},
			})
			c.UpdateRoute(ossfev1.OSSProxyRoute{
				ObjectMeta: metav1.ObjectMeta{Namespace: "ns", Name: "r1"},
				Spec:       ossfev1.OSSProxyRouteSpec{Hosts: []string{"a.example.com"}},
			})

			_, err := c.ResolveRouteByHost("b.example.com")
			Expect(err).To(MatchError(ErrUnknownHost))

			_, err = c.ResolveRouteByHost("a.example.com")
			Expect(err).NotTo(HaveOccurred())
		})

		It("cleans up every host on delete, even one arriving with a stripped spec", func() {
			c.UpdateRoute(ossfev1.OSSProxyRoute{
				ObjectMeta: metav1.ObjectMeta{Namespace: "ns", Name: "r1"},
				Spec:       ossfev1.OSSProxyRouteSpec{Hosts: []string{"a.example.com", "b.example.com"}},
			})

			c.DeleteRoute("ns", "r1")

			_, err := c.ResolveRouteByHost("a.example.com")
			Expect(err).To(MatchError(ErrUnknownHost))
			_, err = c.ResolveRouteByHost("b.example.com")
			Expect(err).To(MatchError(ErrUnknownHost))
		})
	})

	Describe("Status", func() {
		It("reports counts", func() {
			c.UpdateRoute(ossfev1.OSSProxyRoute{
				ObjectMeta: metav1.ObjectMeta{Namespace: "ns", Name: "r1"},
				Spec:       ossfev1.OSSProxyRouteSpec{Hosts: []string{"a.example.com"}},
			})
			c.UpdateUpstream(ossfev1.OSSProxyUpstream{ObjectMeta: metav1.ObjectMeta{Namespace: "ns", Name: "up1"}})
			c.UpdateSecret("ns", "sec1", map[string]string{"id": b64("a")})

			status := c.Status()
			Expect(status.RouteCount).To(Equal(1))
			Expect(status.UpstreamCount).To(Equal(1))
			Expect(status.SecretCount).To(Equal(1))
			Expect(status.Ready).To(BeTrue())
		})
	})
})
