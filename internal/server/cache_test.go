package server

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestArtifactCache_GetPut(t *testing.T) {
	c := NewArtifactCache(10, time.Hour)

	assert.Nil(t, c.Get("composite.png"))
	c.Put("composite.png", []byte("png"))
	assert.Equal(t, []byte("png"), c.Get("composite.png"))
	assert.Nil(t, c.Get("pareto_slope_soil.png"))

	s := c.Stats()
	assert.Equal(t, 1, s.Entries)
	assert.Equal(t, int64(1), s.Hits)
	assert.Equal(t, int64(2), s.Misses)
	assert.InDelta(t, 1.0/3, s.HitRate, 1e-9)
}

func TestArtifactCache_TTL(t *testing.T) {
	c := NewArtifactCache(10, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Put("a", []byte("1"))
	now = now.Add(30 * time.Second)
	assert.NotNil(t, c.Get("a"))

	now = now.Add(2 * time.Minute)
	assert.Nil(t, c.Get("a"))
	assert.Equal(t, 0, c.Stats().Entries)
}

func TestArtifactCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewArtifactCache(3, time.Hour)
	c.Put("a", []byte("1"))
	c.Put("b", []byte("2"))
	c.Put("c", []byte("3"))

	c.Get("a")
	c.Put("d", []byte("4"))

	assert.NotNil(t, c.Get("a"))
	assert.Nil(t, c.Get("b"))
	assert.NotNil(t, c.Get("c"))
	assert.NotNil(t, c.Get("d"))
}

func TestArtifactCache_ReplaceDoesNotEvict(t *testing.T) {
	c := NewArtifactCache(2, time.Hour)
	c.Put("a", []byte("1"))
	c.Put("b", []byte("2"))
	c.Put("a", []byte("3"))

	assert.Equal(t, []byte("3"), c.Get("a"))
	assert.NotNil(t, c.Get("b"))
	assert.Equal(t, 2, c.Stats().Entries)
}

func TestArtifactCache_Purge(t *testing.T) {
	c := NewArtifactCache(5, time.Hour)
	c.Put("a", []byte("1"))
	c.Put("b", []byte("2"))
	c.Purge()

	assert.Nil(t, c.Get("a"))
	assert.Equal(t, 0, c.Stats().Entries)
}

func TestArtifactCache_Concurrent(t *testing.T) {
	c := NewArtifactCache(50, time.Hour)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", (i+j)%80)
				c.Put(key, []byte(key))
				if got := c.Get(key); got != nil {
					assert.Equal(t, key, string(got))
				}
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Stats().Entries, 50)
}
