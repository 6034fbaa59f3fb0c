package cache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func TestGetOrInsertBuildsOnce(t *testing.T) {
	m := New[*int]()
	var builds atomic.Int32

	const workers = 32
	results := make([]*int, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, _ := m.GetOrInsert("proc", func() *int {
				builds.Inc()
				n := 42
				return &n
			})
			results[i] = v
		}(i)
	}
	wg.Wait()

	require.Equal(t, int32(1), builds.Load())
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}

func TestGetOrInsertCreatedFlag(t *testing.T) {
	m := New[string]()
	v, created := m.GetOrInsert("a", func() string { return "first" })
	assert.True(t, created)
	assert.Equal(t, "first", v)

	v, created = m.GetOrInsert("a", func() string { return "second" })
	assert.False(t, created)
	assert.Equal(t, "first", v)
}

func TestInsertAndKeys(t *testing.T) {
	m := New[int]()
	assert.True(t, m.Insert("b", 2))
	assert.True(t, m.Insert("a", 1))
	assert.False(t, m.Insert("a", 3))

	v, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, []string{"a", "b"}, m.Keys())
	assert.Equal(t, 2, m.Len())
}
