// SPDX-FileCopyrightText: qwqVictor and oss-fe-proxy contributors
//
// SPDX-License-Identifier: Apache-2.0

package admission

import (
	"context"
	"fmt"
	"net/http"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
	"sigs.k8s.io/controller-runtime/pkg/webhook/admission"

	ossfev1 "github.com/qwqVictor/oss-fe-proxy/pkg/apis/ossfe/v1"
)

var routeGVR = schema.GroupVersionResource{
	Group: ossfev1.GroupName, Version: "v1", Resource: "ossproxyroutes",
}

// RouteValidator enforces the global host-uniqueness invariant
// on every OSSProxyRoute create/update.
type RouteValidator struct {
	client  dynamic.Interface
	decoder admission.Decoder
}

// NewRouteValidator constructs a RouteValidator. client is used to list the
// existing Routes a new/updated Route's hosts must not collide with.
func NewRouteValidator(client dynamic.Interface, decoder admission.Decoder) *RouteValidator {
	return &RouteValidator{client: client, decoder: decoder}
}

// Handle implements admission.Handler.
func (v *RouteValidator) Handle(ctx context.Context, req admission.Request) admission.Response {
	if req.Kind.Kind != "OSSProxyRoute" {
		return Allowed("not a Route, nothing to validate")
	}

	var route ossfev1.OSSProxyRoute
	if err := v.decoder.Decode(req, &route); err != nil {
		return Errored(int32(http.StatusBadRequest), err)
	}

	if len(route.Spec.Hosts) == 0 {
		return Denied("spec.hosts must not be empty")
	}

	seen := make(map[string]bool, len(route.Spec.Hosts))
	for _, host := range route.Spec.Hosts {
		if host == "" {
			continue
		}
		if seen[host] {
			return Denied(fmt.Sprintf("host %q is listed more than once", host))
		}
		seen[host] = true
	}

	list, err := v.client.Resource(routeGVR).List(ctx, metav1.ListOptions{})
	if err != nil {
		return Errored(int32(http.StatusInternalServerError), fmt.Errorf("listing existing routes: %w", err))
	}

	for i := range list.Items {
		existing, err := decodeRoute(&list.Items[i])
		if err != nil {
			return Errored(int32(http.StatusInternalServerError), fmt.Errorf("decoding existing route %s/%s: %w", list.Items[i].GetNamespace(), list.Items[i].GetName(), err))
		}
		if existing.Namespace == route.Namespace && existing.Name == route.Name {
			// the route being updated never conflicts with its own prior state.
			continue
		}
		for _, host := range existing.Spec.Hosts {
			if seen[host] {
				return Denied(fmt.Sprintf("host %q is already claimed by route %s/%s", host, existing.Namespace, existing.Name))
			}
		}
	}

	return Allowed("")
}

func decodeRoute(u *unstructured.Unstructured) (ossfev1.OSSProxyRoute, error) {
	var route ossfev1.OSSProxyRoute
	err := runtime.DefaultUnstructuredConverter.FromUnstructured(u.Object, &route)
	return route, err
}
