// SPDX-FileCopyrightText: qwqVictor and oss-fe-proxy contributors
//
// SPDX-License-Identifier: Apache-2.0

package healthz

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"
	crhealthz "sigs.k8s.io/controller-runtime/pkg/healthz"
)

// SyncWaiter is satisfied by a client-go informer or a controller-runtime cache.
type SyncWaiter interface {
	WaitForCacheSync(ctx context.Context) bool
}

// NewCacheSyncHealthz returns a checker that fails until the given informers
// have completed their initial sync. Used by the watcher binary's own
// liveness probe (distinct from the proxy's monotonic readiness latch).
func NewCacheSyncHealthz(waiter SyncWaiter) crhealthz.Checker {
	return func(_ *http.Request) error {
		if !waiter.WaitForCacheSync(context.Background()) {
			return fmt.Errorf("informers not synced")
		}
		return nil
	}
}

// NewCacheSyncHealthzWithDeadline is like NewCacheSyncHealthz, but tolerates
// the informers being momentarily unsynced (e.g. during a watch restart)
// for up to deadline before reporting unhealthy.
func NewCacheSyncHealthzWithDeadline(log logr.Logger, clk clock.Clock, waiter SyncWaiter, deadline time.Duration) crhealthz.Checker {
	var (
		mu           sync.Mutex
		lastSyncedAt = clk.Now()
	)

	return func(_ *http.Request) error {
		mu.Lock()
		defer mu.Unlock()

		if waiter.WaitForCacheSync(context.Background()) {
			lastSyncedAt = clk.Now()
			return nil
		}

		if clk.Now().Sub(lastSyncedAt) >= deadline {
			log.Info("informers not synced past deadline", "deadline", deadline)
			return fmt.Errorf("informers not synced for longer than %s", deadline)
		}
		return nil
	}
}
