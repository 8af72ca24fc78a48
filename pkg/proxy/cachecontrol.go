// SPDX-FileCopyrightText: qwqVictor and oss-fe-proxy contributors
//
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"fmt"
	"path"
	"strings"

	ossfev1 "github.com/qwqVictor/oss-fe-proxy/pkg/apis/ossfe/v1"
)

// staticExtensions is the registered set of file extensions that receive
// the static-asset max-age.
var staticExtensions = map[string]bool{
	"js": true, "css": true, "png": true, "jpg": true, "jpeg": true,
	"gif": true, "ico": true, "svg": true, "woff": true, "woff2": true,
	"ttf": true, "eot": true,
}

// cacheControl computes the Cache-Control header value for a response
// (first match wins): html content-type, then a registered static
// extension, then the generic max-age. Returns "" when caching is disabled.
func cacheControl(cache *ossfev1.CachePolicy, requestPath, contentType string) string {
	if !cache.IsEnabled() {
		return ""
	}
	return fmt.Sprintf("public, max-age=%d", maxAgeFor(cache, requestPath, contentType))
}

func maxAgeFor(cache *ossfev1.CachePolicy, requestPath, contentType string) int {
	if isHTML(contentType) {
		return cache.HTMLMaxAgeOrDefault()
	}
	if ext := staticExtension(requestPath); ext != "" {
		return cache.StaticMaxAgeOrDefault()
	}
	return cache.MaxAgeOrDefault()
}

func isHTML(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "text/html")
}

// staticExtension returns the lowercased extension (without the dot) if it
// is a registered static asset extension, or "" otherwise.
func staticExtension(requestPath string) string {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(requestPath)), ".")
	if staticExtensions[ext] {
		return ext
	}
	return ""
}

// htmlCacheControl is the fixed Cache-Control used for SPA-fallback and
// custom-error-page responses, which always use the HTML max-age
// regardless of the requested path's extension.
func htmlCacheControl(cache *ossfev1.CachePolicy) string {
	if !cache.IsEnabled() {
		return ""
	}
	return fmt.Sprintf("public, max-age=%d", cache.HTMLMaxAgeOrDefault())
}
