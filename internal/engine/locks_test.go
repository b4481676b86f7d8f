package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/tenantry/internal/model"
)

func TestPartitionLocks_SerializeOneKey(t *testing.T) {
	locks := newPartitionLocks()
	key := model.NewTenantKey("P", "A")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock(key)
			defer unlock()

			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestPartitionLocks_DuplicateKeysDoNotDeadlock(t *testing.T) {
	locks := newPartitionLocks()
	a := model.NewTenantKey("P", "A")
	b := model.NewTenantKey("P", "B")

	done := make(chan struct{})
	go func() {
		unlock := locks.lock(a, b, a)
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("lock with duplicate keys deadlocked")
	}
}

func TestPartitionLocks_OppositeOrderDoesNotDeadlock(t *testing.T) {
	locks := newPartitionLocks()
	a := model.NewTenantKey("P", "A")
	b := model.NewTenantKey("P", "B")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			locks.lock(a, b)()
		}()
		go func() {
			defer wg.Done()
			locks.lock(b, a)()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("opposite lock orders deadlocked")
	}
}

func TestPartitionLocks_IndependentKeys(t *testing.T) {
	locks := newPartitionLocks()

	unlockA := locks.lock(model.NewTenantKey("P", "A"))
	defer unlockA()

	done := make(chan struct{})
	go func() {
		locks.lock(model.NewTenantKey("P", "B"))()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("lock on another partition blocked")
	}
}
