package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequentialIDs_Predictable(t *testing.T) {
	g := NewSequentialIDs("dep")

	assert.Equal(t, "dep-0001", g.Generate())
	assert.Equal(t, "dep-0002", g.Generate())

	g.Reset()
	assert.Equal(t, "dep-0001", g.Generate())
}

func TestSequentialIDs_DefaultPrefix(t *testing.T) {
	assert.Equal(t, "id-0001", NewSequentialIDs("").Generate())
}

func TestSequentialIDs_ConcurrentUnique(t *testing.T) {
	g := NewSequentialIDs("x")

	const n = 100
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]bool)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := g.Generate()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, seen, n)
}
