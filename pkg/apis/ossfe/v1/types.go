// Copyright (c) 2019 qwqVictor. All rights reserved. This file is licensed under the Apache Software License, v. 2 except as noted otherwise in the LICENSE file
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package v1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Provider identifies the S3-compatible object store implementation an
// Upstream talks to. SigV4 signing is identical across all of them; the
// value is carried through only for defaulting and metric labels.
type Provider string

const (
	ProviderAWS     Provider = "aws"
	ProviderAliyun  Provider = "aliyun"
	ProviderTencent Provider = "tencent"
	ProviderMinIO   Provider = "minio"
	ProviderGeneric Provider = "generic"
)

// providerDefault holds the endpoint/region a hosted provider uses when the
// Upstream leaves the corresponding field unset. MinIO and generic have no
// canonical endpoint (they're self-hosted) so only a region default applies.
type providerDefault struct {
	endpoint string
	region   string
}

var providerDefaults = map[Provider]providerDefault{
	ProviderAWS:     {endpoint: "s3.amazonaws.com", region: "us-east-1"},
	ProviderAliyun:  {endpoint: "oss-cn-hangzhou.aliyuncs.com", region: "oss-cn-hangzhou"},
	ProviderTencent: {endpoint: "cos.ap-guangzhou.myqcloud.com", region: "ap-guangzhou"},
	ProviderMinIO:   {region: "us-east-1"},
}

// SecretKeySelector references a key within a Secret, defaulting the
// Secret's namespace to the owning Upstream's when left empty.
type SecretKeySelector struct {
	Name               string `json:"name"`
	Namespace          string `json:"namespace,omitempty"`
	AccessKeyIDKey     string `json:"accessKeyIdKey"`
	SecretAccessKeyKey string `json:"secretAccessKeyKey"`
}

// Credentials holds either inline access keys or a reference to a Secret
// that carries them. Exactly one of the two is expected to be set; inline
// keys take precedence if both are (defensively) populated.
type Credentials struct {
	AccessKeyID     string             `json:"accessKeyId,omitempty"`
	SecretAccessKey string             `json:"secretAccessKey,omitempty"`
	SecretRef       *SecretKeySelector `json:"secretRef,omitempty"`
}

// Timeout groups the dial/read timeouts applied to upstream requests.
type Timeout struct {
	// ConnectSeconds is the connect timeout in seconds. Defaults to 10.
	ConnectSeconds int `json:"connectSeconds,omitempty"`
}

// RetryPolicy governs retries of the primary object GET on transport
// failures only (never on non-2xx responses, never on the SPA/error-page
// fallback request).
type RetryPolicy struct {
	// Attempts is the number of retries after the initial try. 0 disables retrying.
	Attempts int `json:"attempts,omitempty"`
	// BackoffMillis is the initial backoff, doubled per attempt and capped at 2000ms.
	BackoffMillis int `json:"backoffMillis,omitempty"`
}

// UpstreamRef identifies the Upstream a Route is bound to.
type UpstreamRef struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace,omitempty"`
}

// CachePolicy configures the Cache-Control header emitted for successful
// responses.
type CachePolicy struct {
	Enabled      *bool `json:"enabled,omitempty"`
	MaxAge       int   `json:"maxAge,omitempty"`
	HTMLMaxAge   int   `json:"htmlMaxAge,omitempty"`
	StaticMaxAge int   `json:"staticMaxAge,omitempty"`
}

// Defaulted cache-control ages, applied whenever the corresponding field is unset.
const (
	DefaultMaxAge                = 3600
	DefaultHTMLMaxAge            = 300
	DefaultStaticMaxAge          = 86400
	DefaultIndexFile             = "index.html"
	DefaultConnectTimeoutSeconds = 10
)

// IsEnabled reports whether cache-control emission is enabled (default true).
func (c *CachePolicy) IsEnabled() bool {
	if c == nil || c.Enabled == nil {
		return true
	}
	return *c.Enabled
}

// MaxAgeOrDefault returns the configured max-age, or the package default.
func (c *CachePolicy) MaxAgeOrDefault() int {
	if c == nil || c.MaxAge == 0 {
		return DefaultMaxAge
	}
	return c.MaxAge
}

// HTMLMaxAgeOrDefault returns the configured HTML max-age, or the package default.
func (c *CachePolicy) HTMLMaxAgeOrDefault() int {
	if c == nil || c.HTMLMaxAge == 0 {
		return DefaultHTMLMaxAge
	}
	return c.HTMLMaxAge
}

// StaticMaxAgeOrDefault returns the configured static-asset max-age, or the package default.
func (c *CachePolicy) StaticMaxAgeOrDefault() int {
	if c == nil || c.StaticMaxAge == 0 {
		return DefaultStaticMaxAge
	}
	return c.StaticMaxAge
}

// OSSProxyRouteSpec declares one frontend site's host-to-bucket routing.
type OSSProxyRouteSpec struct {
	Hosts       []string          `json:"hosts"`
	UpstreamRef UpstreamRef       `json:"upstreamRef"`
	Bucket      string            `json:"bucket"`
	Prefix      string            `json:"prefix,omitempty"`
	IndexFile   string            `json:"indexFile,omitempty"`
	SPAApp      bool              `json:"spaApp,omitempty"`
	ErrorPages  map[string]string `json:"errorPages,omitempty"`
	Cache       *CachePolicy      `json:"cache,omitempty"`
}

// IndexFileOrDefault returns the configured index document, or "index.html".
func (s *OSSProxyRouteSpec) IndexFileOrDefault() string {
	if s.IndexFile == "" {
		return DefaultIndexFile
	}
	return s.IndexFile
}

// OSSProxyRoute is the custom resource that binds a set of hosts to a
// bucket/prefix served through a named Upstream.
type OSSProxyRoute struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec OSSProxyRouteSpec `json:"spec"`
}

// OSSProxyRouteList is a list of OSSProxyRoute.
type OSSProxyRouteList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`

	Items []OSSProxyRoute `json:"items"`
}

// OSSProxyUpstreamSpec declares one object-store endpoint and its credentials.
type OSSProxyUpstreamSpec struct {
	Provider    Provider     `json:"provider"`
	Region      string       `json:"region"`
	Endpoint    string       `json:"endpoint"`
	UseHTTPS    *bool        `json:"useHTTPS,omitempty"`
	PathStyle   bool         `json:"pathStyle,omitempty"`
	Credentials Credentials  `json:"credentials"`
	Timeout     *Timeout     `json:"timeout,omitempty"`
	Retry       *RetryPolicy `json:"retry,omitempty"`
}

// UseHTTPSOrDefault reports whether TLS should be used to the upstream (default true).
func (s *OSSProxyUpstreamSpec) UseHTTPSOrDefault() bool {
	if s.UseHTTPS == nil {
		return true
	}
	return *s.UseHTTPS
}

// ConnectTimeoutOrDefault returns the configured connect timeout in seconds, or 10.
func (s *OSSProxyUpstreamSpec) ConnectTimeoutOrDefault() int {
	if s.Timeout == nil || s.Timeout.ConnectSeconds == 0 {
		return DefaultConnectTimeoutSeconds
	}
	return s.Timeout.ConnectSeconds
}

// EndpointOrDefault returns the configured endpoint, or the hosted provider's
// conventional endpoint suffix when left unset. Generic and self-hosted
// providers (MinIO) have no canonical endpoint and return "" unconfigured.
func (s *OSSProxyUpstreamSpec) EndpointOrDefault() string {
	if s.Endpoint != "" {
		return s.Endpoint
	}
	return providerDefaults[s.Provider].endpoint
}

// RegionOrDefault returns the configured region, or the provider's one
// canonical region (e.g. MinIO's "us-east-1") when left unset. Generic
// upstreams have no canonical region and return "" unconfigured.
func (s *OSSProxyUpstreamSpec) RegionOrDefault() string {
	if s.Region != "" {
		return s.Region
	}
	return providerDefaults[s.Provider].region
}

// OSSProxyUpstream is the custom resource describing one S3-compatible object store.
type OSSProxyUpstream struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec OSSProxyUpstreamSpec `json:"spec"`
}

// OSSProxyUpstreamList is a list of OSSProxyUpstream.
type OSSProxyUpstreamList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`

	Items []OSSProxyUpstream `json:"items"`
}
