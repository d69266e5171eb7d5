package cache

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryL2 struct {
	mu   sync.Mutex
	data map[string][]byte
	gets int
}

func newMemoryL2() *memoryL2 {
	return &memoryL2{data: map[string][]byte{}}
}

func (m *memoryL2) SetWithTTL(_ context.Context, key string, value []byte, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
}

func (m *memoryL2) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	v, ok := m.data[key]
	return v, ok
}

func (m *memoryL2) Delete(_ context.Context, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
}

func (m *memoryL2) Clear(context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = map[string][]byte{}
}

func (m *memoryL2) Close() error { return nil }

type profile struct {
	OwnerID int32   `json:"owner_id"`
	Target  float64 `json:"target"`
}

func TestCache_SetGetExpire(t *testing.T) {
	ctx := context.Background()
	c := New(Config{DefaultTTL: time.Minute})
	defer c.Close()

	c.Set(ctx, "a", 1)
	v, ok := c.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	c.SetWithTTL(ctx, "b", 2, time.Nanosecond)
	time.Sleep(time.Millisecond)
	_, ok = c.Get(ctx, "b")
	assert.False(t, ok)
	assert.Equal(t, int64(1), c.Size())

	c.Delete(ctx, "a")
	assert.Equal(t, int64(0), c.Size())
}

func TestCache_MaxItemsEvicts(t *testing.T) {
	ctx := context.Background()
	var evicted []string
	c := New(Config{
		DefaultTTL: time.Minute,
		MaxItems:   2,
		OnEviction: func(key string, _ any) { evicted = append(evicted, key) },
	})
	defer c.Close()

	c.Set(ctx, "first", 1)
	time.Sleep(time.Millisecond)
	c.Set(ctx, "second", 2)
	c.Set(ctx, "third", 3)

	assert.Equal(t, int64(2), c.Size())
	assert.Equal(t, []string{"first"}, evicted)
	_, ok := c.Get(ctx, "third")
	assert.True(t, ok)
}

func TestTieredCache_ReadThrough(t *testing.T) {
	ctx := context.Background()
	l2 := newMemoryL2()
	tc := NewTieredCacheWithL2(DefaultTieredConfig(), l2)
	defer tc.Close()

	loads := 0
	load := func(context.Context) (*profile, error) {
		loads++
		return &profile{OwnerID: 7, Target: 0.85}, nil
	}

	got, err := Get(ctx, tc, "profile:7", load)
	require.NoError(t, err)
	assert.Equal(t, 0.85, got.Target)

	got, err = Get(ctx, tc, "profile:7", load)
	require.NoError(t, err)
	assert.Equal(t, int32(7), got.OwnerID)
	assert.Equal(t, 1, loads)

	// A fresh L1 is filled from L2 without loading.
	other := NewTieredCacheWithL2(DefaultTieredConfig(), l2)
	defer other.Close()
	got, err = Get(ctx, other, "profile:7", load)
	require.NoError(t, err)
	assert.Equal(t, 0.85, got.Target)
	assert.Equal(t, 1, loads)
}

func TestTieredCache_NilLoadIsNotCached(t *testing.T) {
	ctx := context.Background()
	tc := NewTieredCacheWithL2(nil, newMemoryL2())
	defer tc.Close()

	loads := 0
	load := func(context.Context) (*profile, error) {
		loads++
		return nil, nil
	}
	for i := 0; i < 2; i++ {
		got, err := Get(ctx, tc, "missing", load)
		require.NoError(t, err)
		assert.Nil(t, got)
	}
	assert.Equal(t, 2, loads)
}

func TestTieredCache_Delete(t *testing.T) {
	ctx := context.Background()
	l2 := newMemoryL2()
	tc := NewTieredCacheWithL2(nil, l2)
	defer tc.Close()

	tc.Set(ctx, "k", &profile{OwnerID: 1})
	tc.Delete(ctx, "k")

	got, err := Get[profile](ctx, tc, "k", nil)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, true, tc.Stats()["l2_enabled"])
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("RECALL_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("RECALL_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	config := DefaultRedisConfig()
	config.Addr = addr
	config.KeyPrefix = "recall-test:"

	rc, err := NewRedisCache(config)
	require.NoError(t, err)
	defer rc.Close()
	rc.Clear(ctx)

	rc.SetWithTTL(ctx, "k", []byte(`{"owner_id":3}`), time.Minute)
	v, ok := rc.Get(ctx, "k")
	require.True(t, ok)
	assert.JSONEq(t, `{"owner_id":3}`, string(v))

	rc.Delete(ctx, "k")
	_, ok = rc.Get(ctx, "k")
	assert.False(t, ok)
}
