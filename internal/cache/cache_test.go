package cache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/fleetledger/internal/cache"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis spins up a Redis container and returns a connected RedisCache.
func setupRedis(t *testing.T) *cache.RedisCache {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	rc, err := cache.NewRedisCache("redis://" + host + ":" + port.Port())
	require.NoError(t, err)
	return rc
}

// setupMiniredis returns a RedisCache backed by an in-process miniredis.
func setupMiniredis(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return cache.NewRedisCacheFromClient(client), mr
}

// --- Redis (container) ---

func TestRedis_PingAndRoundtrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, rc.Ping(ctx))
	require.NoError(t, rc.Set(ctx, "test:key", []byte("hello"), 10*time.Second))

	val, found, err := rc.Get(ctx, "test:key")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("hello"), val)
}

// --- Redis (miniredis) ---

func TestGet_NotFound(t *testing.T) {
	rc, _ := setupMiniredis(t)

	val, found, err := rc.Get(context.Background(), "nonexistent:key")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, val)
}

func TestSet_TTLExpiry(t *testing.T) {
	rc, mr := setupMiniredis(t)
	ctx := context.Background()

	require.NoError(t, rc.Set(ctx, "ttl:key", []byte("v"), time.Second))
	mr.FastForward(2 * time.Second)

	_, found, err := rc.Get(ctx, "ttl:key")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDelete(t *testing.T) {
	rc, _ := setupMiniredis(t)
	ctx := context.Background()

	require.NoError(t, rc.Set(ctx, "del:key", []byte("v"), time.Minute))
	require.NoError(t, rc.Delete(ctx, "del:key"))
	require.NoError(t, rc.Delete(ctx, "never:existed"))

	_, found, err := rc.Get(ctx, "del:key")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestIncr(t *testing.T) {
	rc, _ := setupMiniredis(t)
	ctx := context.Background()

	n, err := rc.Incr(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = rc.Incr(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	raw, found, err := rc.Get(ctx, "counter")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "2", string(raw))
}

func TestIncrWithExpiry_Expires(t *testing.T) {
	rc, mr := setupMiniredis(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		n, err := rc.IncrWithExpiry(ctx, "rl", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(i), n)
	}
	assert.Greater(t, mr.TTL("rl"), time.Duration(0))

	mr.FastForward(2 * time.Minute)
	n, err := rc.IncrWithExpiry(ctx, "rl", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestPing_ServerDown(t *testing.T) {
	rc, mr := setupMiniredis(t)
	mr.Close()
	assert.Error(t, rc.Ping(context.Background()))
}

// --- Memory (ristretto) ---

func TestMemoryCache_SetGetDelete(t *testing.T) {
	mc, err := cache.NewMemoryCache(1 << 20)
	require.NoError(t, err)
	t.Cleanup(mc.Close)
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "k", []byte("v"), time.Minute))
	mc.Wait()

	val, found, err := mc.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v"), val)

	require.NoError(t, mc.Delete(ctx, "k"))
	_, found, _ = mc.Get(ctx, "k")
	assert.False(t, found)
}

// --- Tiered ---

// memKV is a map-backed KV used to observe each level.
type memKV struct {
	data   map[string][]byte
	getErr error
}

func newMemKV() *memKV { return &memKV{data: map[string][]byte{}} }

func (m *memKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memKV) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.data[key] = value
	return nil
}

func (m *memKV) Delete(_ context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func TestTiered_L1Hit(t *testing.T) {
	l1, l2 := newMemKV(), newMemKV()
	c := cache.NewTiered(l1, l2, time.Minute)
	l1.data["k"] = []byte("l1")

	val, found, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "l1", string(val))
}

func TestTiered_L2HitBackfillsL1(t *testing.T) {
	l1, l2 := newMemKV(), newMemKV()
	c := cache.NewTiered(l1, l2, time.Minute)
	l2.data["k"] = []byte("l2")

	val, found, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "l2", string(val))
	assert.Equal(t, []byte("l2"), l1.data["k"])
}

func TestTiered_L1ErrorFallsThrough(t *testing.T) {
	l1, l2 := newMemKV(), newMemKV()
	l1.getErr = errors.New("l1 broken")
	c := cache.NewTiered(l1, l2, time.Minute)
	l2.data["k"] = []byte("l2")

	val, found, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "l2", string(val))
}

func TestTiered_SetAndDeleteBothLevels(t *testing.T) {
	l1, l2 := newMemKV(), newMemKV()
	c := cache.NewTiered(l1, l2, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Hour))
	assert.Contains(t, l1.data, "k")
	assert.Contains(t, l2.data, "k")

	require.NoError(t, c.Delete(ctx, "k"))
	assert.NotContains(t, l1.data, "k")
	assert.NotContains(t, l2.data, "k")
}

// --- Keys ---

func TestSummaryKey_EmbedsVersionAndRange(t *testing.T) {
	tenant := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	from := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t,
		"summary:11111111-1111-1111-1111-111111111111:v3:2025-05-01T00:00:00Z:2025-06-01T00:00:00Z",
		cache.SummaryKey(tenant, 3, from, to))
	assert.NotEqual(t, cache.SummaryKey(tenant, 3, from, to), cache.SummaryKey(tenant, 4, from, to))
	assert.Equal(t, "summary:11111111-1111-1111-1111-111111111111:version", cache.SummaryVersionKey(tenant))
}

func TestRateLimitKey(t *testing.T) {
	assert.Equal(t, "ratelimit:user:abc", cache.RateLimitKey("user:abc"))
}
