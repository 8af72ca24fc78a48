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
	runtime "k8s.io/apimachinery/pkg/runtime"
)

// DeepCopyInto copies all properties of this object into another object of the same type.
func (in *OSSProxyRouteSpec) DeepCopyInto(out *OSSProxyRouteSpec) {
	*out = *in
	if in.Hosts != nil {
		out.Hosts = make([]string, len(in.Hosts))
		copy(out.Hosts, in.Hosts)
	}
	out.UpstreamRef = in.UpstreamRef
	if in.ErrorPages != nil {
		out.ErrorPages = make(map[string]string, len(in.ErrorPages))
		for k, v := range in.ErrorPages {
			out.ErrorPages[k] = v
		}
	}
	if in.Cache != nil {
		out.Cache = new(CachePolicy)
		*out.Cache = *in.Cache
		if in.Cache.Enabled != nil {
			b := *in.Cache.Enabled
			out.Cache.Enabled = &b
		}
	}
}

// DeepCopy creates a new OSSProxyRouteSpec by deep-copying this one.
func (in *OSSProxyRouteSpec) DeepCopy() *OSSProxyRouteSpec {
	if in == nil {
		return nil
	}
	out := new(OSSProxyRouteSpec)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyInto copies all properties of this object into another object of the same type.
func (in *OSSProxyRoute) DeepCopyInto(out *OSSProxyRoute) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ObjectMeta.DeepCopyInto(&out.ObjectMeta)
	in.Spec.DeepCopyInto(&out.Spec)
}

// DeepCopy creates a new OSSProxyRoute by deep-copying this one.
func (in *OSSProxyRoute) DeepCopy() *OSSProxyRoute {
	if in == nil {
		return nil
	}
	out := new(OSSProxyRoute)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyObject implements runtime.Object.
func (in *OSSProxyRoute) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}
	return nil
}

// DeepCopyInto copies all properties of this object into another object of the same type.
func (in *OSSProxyRouteList) DeepCopyInto(out *OSSProxyRouteList) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ListMeta.DeepCopyInto(&out.ListMeta)
	if in.Items != nil {
		out.Items = make([]OSSProxyRoute, len(in.Items))
		for i := range in.Items {
			in.Items[i].DeepCopyInto(&out.Items[i])
		}
	}
}

// DeepCopy creates a new OSSProxyRouteList by deep-copying this one.
func (in *OSSProxyRouteList) DeepCopy() *OSSProxyRouteList {
	if in == nil {
		return nil
	}
	out := new(OSSProxyRouteList)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyObject implements runtime.Object.
func (in *OSSProxyRouteList) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}
	return nil
}

// DeepCopyInto copies all properties of this object into another object of the same type.
func (in *OSSProxyUpstreamSpec) DeepCopyInto(out *OSSProxyUpstreamSpec) {
	*out = *in
	if in.UseHTTPS != nil {
		b := *in.UseHTTPS
		out.UseHTTPS = &b
	}
	out.Credentials = in.Credentials
	if in.Credentials.SecretRef != nil {
		ref := *in.Credentials.SecretRef
		out.Credentials.SecretRef = &ref
	}
	if in.Timeout != nil {
		t := *in.Timeout
		out.Timeout = &t
	}
	if in.Retry != nil {
		r := *in.Retry
		out.Retry = &r
	}
}

// DeepCopy creates a new OSSProxyUpstreamSpec by deep-copying this one.
func (in *OSSProxyUpstreamSpec) DeepCopy() *OSSProxyUpstreamSpec {
	if in == nil {
		return nil
	}
	out := new(OSSProxyUpstreamSpec)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyInto copies all properties of this object into another object of the same type.
func (in *OSSProxyUpstream) DeepCopyInto(out *OSSProxyUpstream) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ObjectMeta.DeepCopyInto(&out.ObjectMeta)
	in.Spec.DeepCopyInto(&out.Spec)
}

// DeepCopy creates a new OSSProxyUpstream by deep-copying this one.
func (in *OSSProxyUpstream) DeepCopy() *OSSProxyUpstream {
	if in == nil {
		return nil
	}
	out := new(OSSProxyUpstream)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyObject implements runtime.Object.
func (in *OSSProxyUpstream) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}
	return nil
}

// DeepCopyInto copies all properties of this object into another object of the same type.
func (in *OSSProxyUpstreamList) DeepCopyInto(out *OSSProxyUpstreamList) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ListMeta.DeepCopyInto(&out.ListMeta)
	if in.Items != nil {
		out.Items = make([]OSSProxyUpstream, len(in.Items))
		for i := range in.Items {
			in.Items[i].DeepCopyInto(&out.Items[i])
		}
	}
}

// DeepCopy creates a new OSSProxyUpstreamList by deep-copying this one.
func (in *OSSProxyUpstreamList) DeepCopy() *OSSProxyUpstreamList {
	if in == nil {
		return nil
	}
	out := new(OSSProxyUpstreamList)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyObject implements runtime.Object.
func (in *OSSProxyUpstreamList) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}
	return nil
}
