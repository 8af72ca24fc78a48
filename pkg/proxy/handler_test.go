// SPDX-FileCopyrightText: qwqVictor and oss-fe-proxy contributors
//
// SPDX-License-Identifier: Apache-2.0

package proxy_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/go-logr/logr"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	ossfev1 "github.com/qwqVictor/oss-fe-proxy/pkg/apis/ossfe/v1"
	"github.com/qwqVictor/oss-fe-proxy/pkg/cache"
	"github.com/qwqVictor/oss-fe-proxy/pkg/proxy"
	"github.com/qwqVictor/oss-fe-proxy/pkg/signer"
)

var _ = Describe("Handler", func() {
	var (
		objectStore *httptest.Server
		objects     map[string][]byte
		c           *cache.Cache
		handler     *proxy.Handler
	)

	falseVal := false

	newRoute := func(name string, spaApp bool, errorPages map[string]string) ossfev1.OSSProxyRoute {
		return ossfev1.OSSProxyRoute{
			ObjectMeta: metav1.ObjectMeta{Namespace: "default", Name: name},
			Spec: ossfev1.OSSProxyRouteSpec{
				Hosts:       []string{"example.com"},
				UpstreamRef: ossfev1.UpstreamRef{Name: "up"},
				Bucket:      "testbucket",
				SPAApp:      spaApp,
				ErrorPages:  errorPages,
			},
		}
	}

	BeforeEach(func() {
		objects = map[string][]byte{
			"/testbucket/index.html": []byte("<html>home</html>"),
			"/testbucket/404.html":   []byte("<html>not found</html>"),
			"/testbucket/app.js":     []byte("console.log(1)"),
		}

		objectStore = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, ok := objects[r.URL.Path]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			if strings.HasSuffix(r.URL.Path, ".html") {
				w.Header().Set("Content-Type", "text/html")
			} else if strings.HasSuffix(r.URL.Path, ".js") {
				w.Header().Set("Content-Type", "application/javascript")
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(body)
		}))

		endpoint, err := url.Parse(objectStore.URL)
		Expect(err).NotTo(HaveOccurred())

		c = cache.New()
		c.UpdateUpstream(ossfev1.OSSProxyUpstream{
			ObjectMeta: metav1.ObjectMeta{Namespace: "default", Name: "up"},
			Spec: ossfev1.OSSProxyUpstreamSpec{
				Provider:  ossfev1.ProviderGeneric,
				Region:    "test-region",
				Endpoint:  endpoint.Host,
				UseHTTPS:  &falseVal,
				PathStyle: true,
				Credentials: ossfev1.Credentials{
					AccessKeyID:     "AKIAEXAMPLE",
					SecretAccessKey: "secret",
				},
			},
		})

		handler = proxy.New(c, signer.New(), nil, logr.Discard())
	})

	AfterEach(func() {
		objectStore.Close()
	})

	request := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Host = "example.com"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	It("responds 503 before the cache is ready", func() {
		fresh := cache.New()
		h := proxy.New(fresh, signer.New(), nil, logr.Discard())
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Host = "example.com"
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		Expect(rr.Code).To(Equal(http.StatusServiceUnavailable))
	})

	It("responds 405 to a non-GET/HEAD method", func() {
		c.UpdateRoute(newRoute("site", false, nil))
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Host = "example.com"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		Expect(rr.Code).To(Equal(http.StatusMethodNotAllowed))
	})

	It("responds 404 for an unrecognized host", func() {
		c.UpdateRoute(newRoute("site", false, nil))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Host = "nowhere.example.com"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		Expect(rr.Code).To(Equal(http.StatusNotFound))
	})

	It("serves the index document for / and applies the HTML max-age", func() {
		c.UpdateRoute(newRoute("site", false, nil))
		rr := request("/")
		Expect(rr.Code).To(Equal(http.StatusOK))
		Expect(rr.Body.String()).To(Equal("<html>home</html>"))
		Expect(rr.Header().Get("Cache-Control")).To(ContainSubstring("max-age=300"))
	})

	It("applies the static max-age for a registered static extension", func() {
		c.UpdateRoute(newRoute("site", false, nil))
		rr := request("/app.js")
		Expect(rr.Code).To(Equal(http.StatusOK))
		Expect(rr.Header().Get("Cache-Control")).To(ContainSubstring("max-age=86400"))
	})

	It("falls back to the index document on 404 for an spaApp route", func() {
		c.UpdateRoute(newRoute("site", true, nil))
		rr := request("/some/client/route")
		Expect(rr.Code).To(Equal(http.StatusOK))
		Expect(rr.Body.String()).To(Equal("<html>home</html>"))
		Expect(rr.Header().Get("Content-Type")).To(ContainSubstring("text/html"))
	})

	It("serves the configured error page on 404", func() {
		c.UpdateRoute(newRoute("site", false, map[string]string{"404": "404.html"}))
		rr := request("/missing")
		Expect(rr.Code).To(Equal(http.StatusNotFound))
		Expect(rr.Body.String()).To(Equal("<html>not found</html>"))
	})

	It("passes through a bare 404 when there is no spaApp or error page", func() {
		c.UpdateRoute(newRoute("site", false, nil))
		rr := request("/missing")
		Expect(rr.Code).To(Equal(http.StatusNotFound))
	})

	It("downgrades HEAD to a headers-only response", func() {
		c.UpdateRoute(newRoute("site", false, nil))
		req := httptest.NewRequest(http.MethodHead, "/app.js", nil)
		req.Host = "example.com"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		Expect(rr.Code).To(Equal(http.StatusOK))
		Expect(rr.Body.Len()).To(Equal(0))
	})
})
