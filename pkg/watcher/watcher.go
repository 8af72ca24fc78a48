// SPDX-FileCopyrightText: qwqVictor and oss-fe-proxy contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package watcher implements the cluster-state reflector: one list+watch
// loop per CRD kind, plus an on-demand and periodically-resynced Secret
// follower, all feeding pkg/cache.
package watcher

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/dynamic/dynamicinformer"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/cache"

	ossfev1 "github.com/qwqVictor/oss-fe-proxy/pkg/apis/ossfe/v1"
	proxycache "github.com/qwqVictor/oss-fe-proxy/pkg/cache"
)

// Group-version-resource identities for the two watched CRD kinds.
var (
	routeGVR = schema.GroupVersionResource{
		Group: ossfev1.GroupName, Version: "v1", Resource: "ossproxyroutes",
	}
	upstreamGVR = schema.GroupVersionResource{
		Group: ossfev1.GroupName, Version: "v1", Resource: "ossproxyupstreams",
	}
)

// Sink receives the decoded Route/Upstream/Secret changes the reflector
// observes. *pkg/cache.Cache satisfies Sink directly for an in-process
// watcher+proxy deployment; cmd/watcher instead wires an HTTP client that
// posts to the proxy's loopback ingestion API, since the two
// binaries normally run as separate containers in one pod.
type Sink interface {
	UpdateRoute(route ossfev1.OSSProxyRoute)
	DeleteRoute(namespace, name string)
	UpdateUpstream(upstream ossfev1.OSSProxyUpstream)
	DeleteUpstream(namespace, name string)
	UpdateSecret(namespace, name string, data map[string]string)
	DeleteSecret(namespace, name string)
	SetResourceVersion(rv string)
}

// Watcher is the cluster-state reflector. It owns two dynamic-client
// informers (Route, Upstream) and a typed clientset used for on-demand
// Secret fetches, and keeps a Sink up to date.
type Watcher struct {
	dynamicClient dynamic.Interface
	clientset     kubernetes.Interface
	cache         Sink
	log           logr.Logger
	namespace     string

	secretResyncInterval time.Duration

	factory dynamicinformer.DynamicSharedInformerFactory

	mu              sync.Mutex
	secretRefsByKey map[proxycache.NamespacedName]secretRef
}

type secretRef struct {
	namespace string
	name      string
}

// Options configures a new Watcher.
type Options struct {
	// Namespace restricts watched Routes/Upstreams to one namespace; empty watches all namespaces.
	Namespace string
	// SecretResyncInterval re-lists and re-pushes every referenced Secret on this
	// cadence, closing the gap where a Secret-only rotation never re-triggers its
	// owning Upstream. 0 disables the resync loop.
	SecretResyncInterval time.Duration
	// ResyncPeriod is the informer factory's full-resync period.
	ResyncPeriod time.Duration
}

// New constructs a Watcher. dynamicClient drives the Route/Upstream informers;
// clientset drives on-demand and resynced Secret reads.
func New(dynamicClient dynamic.Interface, clientset kubernetes.Interface, c Sink, log logr.Logger, opts Options) *Watcher {
	resync := opts.ResyncPeriod
	if resync == 0 {
		resync = 10 * time.Minute
	}

	var factory dynamicinformer.DynamicSharedInformerFactory
	if opts.Namespace == "" {
		factory = dynamicinformer.NewDynamicSharedInformerFactory(dynamicClient, resync)
	} else {
		factory = dynamicinformer.NewFilteredDynamicSharedInformerFactory(dynamicClient, resync, opts.Namespace, nil)
	}

	return &Watcher{
		dynamicClient:        dynamicClient,
		clientset:            clientset,
		cache:                c,
		log:                  log,
		namespace:            opts.Namespace,
		secretResyncInterval: opts.SecretResyncInterval,
		factory:              factory,
		secretRefsByKey:      make(map[proxycache.NamespacedName]secretRef),
	}
}

// Start registers the Route and Upstream informers, starts the factory, and
// blocks until the initial list completes or ctx is done. A failed initial
// sync is fatal: the caller should exit the process rather than run with a
// permanently-unready cache.
func (w *Watcher) Start(ctx context.Context) error {
	routeInformer := w.factory.ForResource(routeGVR).Informer()
	if _, err := routeInformer.AddEventHandler(cache.ResourceEventHandlerFuncs{
		AddFunc:    w.onRouteChange,
		UpdateFunc: func(_, obj interface{}) { w.onRouteChange(obj) },
		DeleteFunc: w.onRouteDelete,
	}); err != nil {
		return fmt.Errorf("registering route event handler: %w", err)
	}

	upstreamInformer := w.factory.ForResource(upstreamGVR).Informer()
	if _, err := upstreamInformer.AddEventHandler(cache.ResourceEventHandlerFuncs{
		AddFunc:    w.onUpstreamChange,
		UpdateFunc: func(_, obj interface{}) { w.onUpstreamChange(obj) },
		DeleteFunc: w.onUpstreamDelete,
	}); err != nil {
		return fmt.Errorf("registering upstream event handler: %w", err)
	}

	w.factory.Start(ctx.Done())

	if !w.WaitForCacheSync(ctx) {
		return fmt.Errorf("initial list of Route/Upstream resources failed to sync")
	}

	if w.secretResyncInterval > 0 {
		go w.runSecretResyncLoop(ctx)
	}

	w.log.Info("watcher started", "namespace", w.namespace)
	return nil
}

// WaitForCacheSync satisfies pkg/healthz.SyncWaiter.
func (w *Watcher) WaitForCacheSync(ctx context.Context) bool {
	for _, synced := range w.factory.WaitForCacheSync(ctx.Done()) {
		if !synced {
			return false
		}
	}
	return true
}

func (w *Watcher) onRouteChange(obj interface{}) {
	u, ok := obj.(*unstructured.Unstructured)
	if !ok {
		return
	}
	var route ossfev1.OSSProxyRoute
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(u.Object, &route); err != nil {
		w.log.Error(err, "decoding route", "name", u.GetName(), "namespace", u.GetNamespace())
		return
	}
	w.cache.UpdateRoute(route)
	w.cache.SetResourceVersion(u.GetResourceVersion())
}

func (w *Watcher) onRouteDelete(obj interface{}) {
	name, namespace, ok := deletedKey(obj)
	if !ok {
		return
	}
	w.cache.DeleteRoute(namespace, name)
}

func (w *Watcher) onUpstreamChange(obj interface{}) {
	u, ok := obj.(*unstructured.Unstructured)
	if !ok {
		return
	}
	var upstream ossfev1.OSSProxyUpstream
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(u.Object, &upstream); err != nil {
		w.log.Error(err, "decoding upstream", "name", u.GetName(), "namespace", u.GetNamespace())
		return
	}
	w.cache.UpdateUpstream(upstream)

	if ref := upstream.Spec.Credentials.SecretRef; ref != nil {
		secretNamespace := ref.Namespace
		if secretNamespace == "" {
			secretNamespace = upstream.Namespace
		}
		key := proxycache.NamespacedName{Namespace: upstream.Namespace, Name: upstream.Name}

		w.mu.Lock()
		w.secretRefsByKey[key] = secretRef{namespace: secretNamespace, name: ref.Name}
		w.mu.Unlock()

		w.fetchAndPushSecret(context.Background(), secretNamespace, ref.Name)
	}
}

func (w *Watcher) onUpstreamDelete(obj interface{}) {
	name, namespace, ok := deletedKey(obj)
	if !ok {
		return
	}
	w.cache.DeleteUpstream(namespace, name)

	w.mu.Lock()
	delete(w.secretRefsByKey, proxycache.NamespacedName{Namespace: namespace, Name: name})
	w.mu.Unlock()
}

// fetchAndPushSecret resolves one Secret on demand and pushes its
// base64-encoded Data into the cache, exactly as the Kubernetes API serves it.
func (w *Watcher) fetchAndPushSecret(ctx context.Context, namespace, name string) {
	secret, err := w.clientset.CoreV1().Secrets(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			w.cache.DeleteSecret(namespace, name)
			return
		}
		w.log.Error(err, "fetching secret", "namespace", namespace, "name", name)
		return
	}
	w.cache.UpdateSecret(namespace, name, encodeSecretData(secret))
}

// encodeSecretData re-encodes a typed Secret's decoded Data back to the
// base64 form pkg/cache expects, matching what the Kubernetes API itself
// would have served from an unstructured/dynamic read.
func encodeSecretData(secret *corev1.Secret) map[string]string {
	out := make(map[string]string, len(secret.Data))
	for k, v := range secret.Data {
		out[k] = base64.StdEncoding.EncodeToString(v)
	}
	return out
}

// runSecretResyncLoop re-fetches every currently-referenced Secret on a fixed
// cadence, closing the gap where a Secret is rotated without its owning
// Upstream being touched.
func (w *Watcher) runSecretResyncLoop(ctx context.Context) {
	ticker := time.NewTicker(w.secretResyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.mu.Lock()
			refs := make([]secretRef, 0, len(w.secretRefsByKey))
			for _, ref := range w.secretRefsByKey {
				refs = append(refs, ref)
			}
			w.mu.Unlock()

			for _, ref := range refs {
				w.fetchAndPushSecret(ctx, ref.namespace, ref.name)
			}
		}
	}
}

func deletedKey(obj interface{}) (name, namespace string, ok bool) {
	u, isUnstructured := obj.(*unstructured.Unstructured)
	if isUnstructured {
		return u.GetName(), u.GetNamespace(), true
	}
	tombstone, isTombstone := obj.(cache.DeletedFinalStateUnknown)
	if !isTombstone {
		return "", "", false
	}
	return deletedKey(tombstone.Obj)
}
