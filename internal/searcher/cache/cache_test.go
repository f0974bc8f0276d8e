package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samuelharden/xapian/pkg/config"
	"github.com/samuelharden/xapian/pkg/resilience"
)

type memStore struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
	err  error
}

func newMemStore() *memStore {
	return &memStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	v, ok := m.data[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (m *memStore) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.data[key] = string(value.([]byte))
	m.ttls[key] = ttl
	return nil
}

func (m *memStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var n int64
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

type payload struct {
	Terms []string `json:"terms"`
}

func TestGetOrComputeCachesByNamespace(t *testing.T) {
	store := newMemStore()
	c := New(store, config.RedisConfig{CacheTTL: time.Minute}, nil)
	c.SetTTL(NamespaceExpand, 5*time.Minute)
	ctx := context.Background()

	calls := 0
	compute := func() (*payload, error) {
		calls++
		return &payload{Terms: []string{"new york"}}, nil
	}

	got, hit, err := GetOrCompute(ctx, c, NamespaceExpand, "docs=a", compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []string{"new york"}, got.Terms)

	got, hit, err = GetOrCompute(ctx, c, NamespaceExpand, "docs=a", compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []string{"new york"}, got.Terms)
	assert.Equal(t, 1, calls)

	_, hit, err = GetOrCompute(ctx, c, NamespaceSearch, "docs=a", compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, calls)

	assert.Equal(t, 5*time.Minute, store.ttls[BuildKey(NamespaceExpand, "docs=a")])
	assert.Equal(t, time.Minute, store.ttls[BuildKey(NamespaceSearch, "docs=a")])

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(4), misses)

	require.NoError(t, c.Invalidate(ctx))
	assert.Empty(t, store.data)
}

func TestGetOrComputeNilCache(t *testing.T) {
	v, hit, err := GetOrCompute(context.Background(), nil, NamespaceSearch, "q", func() (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 7, v)
}

func TestGetOrComputeDoesNotCacheErrors(t *testing.T) {
	store := newMemStore()
	c := New(store, config.RedisConfig{CacheTTL: time.Minute}, nil)
	boom := errors.New("boom")
	_, _, err := GetOrCompute(context.Background(), c, NamespaceExpand, "x", func() (*payload, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, store.data)
}

func TestBrokenRedisDegradesToCompute(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("connection refused")
	breaker := resilience.NewCircuitBreaker("test-cache", resilience.CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Hour,
	})
	c := New(store, config.RedisConfig{CacheTTL: time.Minute}, breaker)

	for i := 0; i < 3; i++ {
		v, hit, err := GetOrCompute(context.Background(), c, NamespaceSearch, "q", func() (int, error) { return i, nil })
		require.NoError(t, err)
		assert.False(t, hit)
		assert.Equal(t, i, v)
	}
	assert.Equal(t, resilience.StateOpen, breaker.GetState())
	assert.ErrorIs(t, c.Invalidate(context.Background()), resilience.ErrCircuitOpen)
}

func TestRequestNormalisation(t *testing.T) {
	assert.Equal(t,
		SearchRequest("York new", 10),
		SearchRequest("new  YORK", 10))
	assert.NotEqual(t,
		SearchRequest("new york", 10),
		SearchRequest("new OR york", 10))
	assert.Equal(t,
		ExpandRequest([]string{"b", "a"}, "trad", 10, 1, []string{"y z", "new york"}),
		ExpandRequest([]string{"a", "b"}, "trad", 10, 1, []string{"new york", "y z"}))
	assert.NotEqual(t,
		ExpandRequest([]string{"a"}, "trad", 10, 1, nil),
		ExpandRequest([]string{"a"}, "bo1", 10, 1, nil))
	assert.True(t, strings.HasPrefix(BuildKey(NamespaceExpand, "x"), "xs:expand:"))
}

func TestSearchRequestKeepsPhraseBoundaries(t *testing.T) {
	assert.NotEqual(t,
		SearchRequest(`"new york" "city hall"`, 10),
		SearchRequest(`"new hall" "city york"`, 10))
	assert.NotEqual(t,
		SearchRequest(`"new york" city`, 10),
		SearchRequest(`new york city`, 10))
	assert.NotEqual(t,
		SearchRequest(`river -"new york"`, 10),
		SearchRequest(`river "new york"`, 10))
	assert.Equal(t,
		SearchRequest(`"city hall" "new york"`, 10),
		SearchRequest(`"NEW YORK"  "city hall"`, 10))
	assert.Equal(t,
		SearchRequest(`river NOT bank`, 10),
		SearchRequest(`-bank river`, 10))
}
