// SPDX-FileCopyrightText: qwqVictor and oss-fe-proxy contributors
//
// SPDX-License-Identifier: Apache-2.0

package watcher_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	"k8s.io/client-go/kubernetes/fake"

	proxycache "github.com/qwqVictor/oss-fe-proxy/pkg/cache"
	"github.com/qwqVictor/oss-fe-proxy/pkg/watcher"
)

var (
	routeGVR = schema.GroupVersionResource{
		Group: "ossfe.imvictor.tech", Version: "v1", Resource: "ossproxyroutes",
	}
	upstreamGVR = schema.GroupVersionResource{
		Group: "ossfe.imvictor.tech", Version: "v1", Resource: "ossproxyupstreams",
	}
)

func unstructuredRoute(name string, hosts []string, upstreamName string) *unstructured.Unstructured {
	hostsIface := make([]interface{}, len(hosts))
	for i, h := range hosts {
		hostsIface[i] = h
	}
	return &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "ossfe.imvictor.tech/v1",
		"kind":       "OSSProxyRoute",
		"metadata": map[string]interface{}{
			"name":      name,
			"namespace": "default",
		},
		"spec": map[string]interface{}{
			"hosts":  hostsIface,
			"bucket": "testbucket",
			"upstreamRef": map[string]interface{}{
				"name": upstreamName,
			},
		},
	}}
}

func unstructuredUpstream(name string, secretName string) *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "ossfe.imvictor.tech/v1",
		"kind":       "OSSProxyUpstream",
		"metadata": map[string]interface{}{
			"name":      name,
			"namespace": "default",
		},
		"spec": map[string]interface{}{
			"provider": "generic",
			"region":   "test-region",
			"endpoint": "objects.example.com",
			"credentials": map[string]interface{}{
				"secretRef": map[string]interface{}{
					"name":               secretName,
					"accessKeyIdKey":     "accessKeyId",
					"secretAccessKeyKey": "secretAccessKey",
				},
			},
		},
	}}
}

var _ = Describe("Watcher", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
		c      *proxycache.Cache
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		c = proxycache.New()
	})

	AfterEach(func() {
		cancel()
	})

	It("reflects a Route and Upstream into the cache and resolves credentials from a Secret", func() {
		scheme := runtime.NewScheme()
		listKinds := map[schema.GroupVersionResource]string{
			routeGVR:    "OSSProxyRouteList",
			upstreamGVR: "OSSProxyUpstreamList",
		}
		dynamicClient := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(scheme, listKinds,
			unstructuredRoute("site", []string{"example.com"}, "up"),
			unstructuredUpstream("up", "up-creds"),
		)

		clientset := fake.NewSimpleClientset(&corev1.Secret{
			ObjectMeta: metav1.ObjectMeta{Namespace: "default", Name: "up-creds"},
			Data: map[string][]byte{
				"accessKeyId":     []byte("AKIAEXAMPLE"),
				"secretAccessKey": []byte("shh"),
			},
		})

		w := watcher.New(dynamicClient, clientset, c, logr.Discard(), watcher.Options{})
		Expect(w.Start(ctx)).To(Succeed())

		Eventually(func() bool {
			_, err := c.ResolveRouteByHost("example.com")
			return err == nil
		}, 2*time.Second, 10*time.Millisecond).Should(BeTrue())

		bundle, err := c.ResolveRouteByHost("example.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(bundle.Upstream.Name).To(Equal("up"))
		Expect(bundle.Credentials.AccessKeyID).To(Equal("AKIAEXAMPLE"))
		Expect(bundle.Credentials.SecretAccessKey).To(Equal("shh"))
		Expect(c.IsReady()).To(BeTrue())
	})

	It("releases a route's hosts on delete", func() {
		scheme := runtime.NewScheme()
		listKinds := map[schema.GroupVersionResource]string{
			routeGVR:    "OSSProxyRouteList",
			upstreamGVR: "OSSProxyUpstreamList",
		}
		route := unstructuredRoute("site", []string{"example.com"}, "up")
		dynamicClient := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(scheme, listKinds,
			route, unstructuredUpstream("up", "up-creds"),
		)
		clientset := fake.NewSimpleClientset(&corev1.Secret{
			ObjectMeta: metav1.ObjectMeta{Namespace: "default", Name: "up-creds"},
			Data: map[string][]byte{
				"accessKeyId":     []byte("AKIAEXAMPLE"),
				"secretAccessKey": []byte("shh"),
			},
		})

		w := watcher.New(dynamicClient, clientset, c, logr.Discard(), watcher.Options{})
		Expect(w.Start(ctx)).To(Succeed())

		Eventually(func() error {
			_, err := c.ResolveRouteByHost("example.com")
			return err
		}, 2*time.Second, 10*time.Millisecond).Should(Succeed())

		Expect(dynamicClient.Resource(routeGVR).Namespace("default").Delete(ctx, "site", metav1.DeleteOptions{})).To(Succeed())

		Eventually(func() error {
			_, err := c.ResolveRouteByHost("example.com")
			return err
		}, 2*time.Second, 10*time.Millisecond).Should(Equal(proxycache.ErrUnknownHost))
	})
})
