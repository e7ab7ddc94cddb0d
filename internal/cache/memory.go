package cache

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// MemoryCache is an in-process L1 cache backed by ristretto. Values are
// costed by their length, so maxCostBytes bounds memory use.
type MemoryCache struct {
	c *ristretto.Cache[string, []byte]
}

func NewMemoryCache(maxCostBytes int64) (*MemoryCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: max(maxCostBytes/100*10, 1000),
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &MemoryCache{c: c}, nil
}

func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	val, found := m.c.Get(key)
	if !found {
		return nil, false, nil
	}
	return val, true, nil
}

// Set admits the value asynchronously; a Get right after Set may miss.
func (m *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.c.SetWithTTL(key, value, int64(len(value)), ttl)
	return nil
}

func (m *MemoryCache) Delete(_ context.Context, key string) error {
	m.c.Del(key)
	return nil
}

// Wait blocks until buffered writes have been applied.
func (m *MemoryCache) Wait() {
	m.c.Wait()
}

func (m *MemoryCache) Close() {
	m.c.Close()
}
