package engine

import (
	"sort"
	"sync"

	"github.com/roach88/tenantry/internal/model"
)

// partitionLocks serializes version resolution per TenantKey.
//
// Locks are taken before the store transaction begins. The store has a
// single connection, so waiting on a partition lock while holding a
// transaction would block every other writer.
type partitionLocks struct {
	mu    sync.Mutex
	locks map[model.TenantKey]*sync.Mutex
}

func newPartitionLocks() *partitionLocks {
	return &partitionLocks{locks: make(map[model.TenantKey]*sync.Mutex)}
}

func (p *partitionLocks) get(key model.TenantKey) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()

	m, ok := p.locks[key]
	if !ok {
		m = &sync.Mutex{}
		p.locks[key] = m
	}
	return m
}

// lock acquires the locks of every distinct key in sorted order and returns
// a function releasing them.
func (p *partitionLocks) lock(keys ...model.TenantKey) func() {
	uniq := make([]model.TenantKey, 0, len(keys))
	seen := make(map[model.TenantKey]bool, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			uniq = append(uniq, k)
		}
	}
	sort.Slice(uniq, func(i, j int) bool { return uniq[i].Less(uniq[j]) })

	held := make([]*sync.Mutex, 0, len(uniq))
	for _, k := range uniq {
		m := p.get(k)
		m.Lock()
		held = append(held, m)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}
