// Copyright (c) 2020 qwqVictor. All rights reserved. This file is licensed under the Apache Software License, v. 2 except as noted otherwise in the LICENSE file
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

package healthz

import "net/http"

// HandlerFunc turns a Manager into an http.HandlerFunc reporting 200 when
// healthy and 500 otherwise. Used for generic, non-monotonic health
// managers; the proxy's routing-cache readiness gate has its own
// handler since it must report 503, not 500, and never flap back unhealthy.
func HandlerFunc(mgr Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if mgr.Get() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}
}
