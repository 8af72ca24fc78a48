// SPDX-FileCopyrightText: qwqVictor and oss-fe-proxy contributors
//
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"fmt"
	"net/url"
	"strings"

	ossfev1 "github.com/qwqVictor/oss-fe-proxy/pkg/apis/ossfe/v1"
)

// objectKey synthesizes the object-store key for a request path: "/" is
// replaced by "/"+indexFile, then the route's prefix is
// prepended to the path with its leading slash stripped.
func objectKey(route *ossfev1.OSSProxyRoute, requestPath string) string {
	if requestPath == "" || requestPath == "/" {
		requestPath = "/" + route.Spec.IndexFileOrDefault()
	}
	return route.Spec.Prefix + strings.TrimPrefix(requestPath, "/")
}

// buildUpstreamURL constructs the scheme/host/path triple for a signed
// object-store GET.
//
//	pathStyle=true:  host = endpoint,          URI = /{bucket}/{key}[?query]
//	pathStyle=false: host = {bucket}.{endpoint}, URI = /{key}[?query]
func buildUpstreamURL(upstream *ossfev1.OSSProxyUpstream, bucket, key, rawQuery string) *url.URL {
	scheme := "http"
	if upstream.Spec.UseHTTPSOrDefault() {
		scheme = "https"
	}

	endpoint := upstream.Spec.EndpointOrDefault()

	var host, path string
	if upstream.Spec.PathStyle {
		host = endpoint
		path = fmt.Sprintf("/%s/%s", bucket, key)
	} else {
		host = fmt.Sprintf("%s.%s", bucket, endpoint)
		path = "/" + key
	}

	return &url.URL{
		Scheme:   scheme,
		Host:     host,
		Path:     path,
		RawQuery: rawQuery,
	}
}
