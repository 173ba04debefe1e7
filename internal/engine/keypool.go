package engine

import (
	"sync"

	"github.com/zjrosen/warden/internal/fleet"
)

// Allocator hands out credentials round-robin per pool. Each pool has
// a cursor pointing at the next candidate; the cursor advances only
// when an acquisition succeeds, so a full pool cannot be starved by
// repeated failed scans.
type Allocator struct {
	mu      sync.Mutex
	cursors map[string]int
}

func NewAllocator() *Allocator {
	return &Allocator{cursors: make(map[string]int)}
}

// Acquire scans pool from its cursor for the first credential that is
// neither held nor already assigned to a profile. On success the
// cursor moves past the chosen key. inUse maps key name to the
// profile using it, as reported by Store.KeysInUse.
func (a *Allocator) Acquire(pool fleet.KeyPool, inUse map[string]string) (fleet.Credential, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := len(pool.Keys)
	if n == 0 {
		return fleet.Credential{}, false
	}

	cursor := a.cursors[pool.Name] % n
	for i := 0; i < n; i++ {
		idx := (cursor + i) % n
		key := pool.Keys[idx]
		if key.Held {
			continue
		}
		if _, taken := inUse[key.Name]; taken {
			continue
		}
		a.cursors[pool.Name] = (idx + 1) % n
		return key, true
	}
	return fleet.Credential{}, false
}

// Forget drops the cursor for a deleted pool.
func (a *Allocator) Forget(pool string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.cursors, pool)
}
