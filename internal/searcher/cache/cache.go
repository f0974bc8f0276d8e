// Package cache keeps search and expansion responses in Redis. Keys are
// namespaced per endpoint and hashed from a normalised request, and
// concurrent misses for one key are collapsed with singleflight. Redis
// calls go through a circuit breaker so that an unreachable Redis costs
// nothing more than a cache miss.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/samuelharden/xapian/internal/searcher/parser"
	"github.com/samuelharden/xapian/pkg/config"
	pkgredis "github.com/samuelharden/xapian/pkg/redis"
	"github.com/samuelharden/xapian/pkg/resilience"
)

const keyPrefix = "xs:"

// Namespaces of cached responses.
const (
	NamespaceSearch = "search"
	NamespaceExpand = "expand"
)

// Store is the subset of the Redis client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

var errMiss = errors.New("cache miss")

type QueryCache struct {
	client  Store
	ttl     time.Duration
	ttls    map[string]time.Duration
	breaker *resilience.CircuitBreaker
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(client Store, cfg config.RedisConfig, breaker *resilience.CircuitBreaker) *QueryCache {
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker("redis-cache", resilience.CircuitBreakerConfig{})
	}
	return &QueryCache{
		client:  client,
		ttl:     cfg.CacheTTL,
		ttls:    make(map[string]time.Duration),
		breaker: breaker,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// SetTTL overrides the entry lifetime for one namespace. It must be called
// before the cache is shared.
func (c *QueryCache) SetTTL(namespace string, ttl time.Duration) {
	if ttl > 0 {
		c.ttls[namespace] = ttl
	}
}

func (c *QueryCache) ttlFor(namespace string) time.Duration {
	if ttl, ok := c.ttls[namespace]; ok {
		return ttl
	}
	return c.ttl
}

// get decodes the entry at key into v. Failures of any kind count as a
// miss.
func (c *QueryCache) get(ctx context.Context, key string, v any) bool {
	var data string
	err := c.breaker.Execute(func() error {
		var err error
		data, err = c.client.Get(ctx, key)
		if pkgredis.IsNilError(err) {
			// a missing key says nothing about Redis health
			return nil
		}
		return err
	})
	if err == nil && data == "" {
		err = errMiss
	}
	if err != nil {
		if !errors.Is(err, errMiss) && !errors.Is(err, resilience.ErrCircuitOpen) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return false
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return false
	}
	c.hits.Add(1)
	c.logger.Debug("cache hit", "key", key)
	return true
}

func (c *QueryCache) set(ctx context.Context, namespace, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.client.Set(ctx, key, data, c.ttlFor(namespace))
	})
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached value for (namespace, request) or runs
// compute and caches its result. The boolean reports a cache hit. A nil
// cache always computes.
func GetOrCompute[T any](
	ctx context.Context,
	c *QueryCache,
	namespace, request string,
	compute func() (T, error),
) (T, bool, error) {
	if c == nil {
		v, err := compute()
		return v, false, err
	}
	key := BuildKey(namespace, request)
	var cached T
	if c.get(ctx, key, &cached) {
		return cached, true, nil
	}
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		var again T
		if c.get(ctx, key, &again) {
			return again, nil
		}
		result, err := compute()
		if err != nil {
			return nil, err
		}
		c.set(ctx, namespace, key, result)
		return result, nil
	})
	if err != nil {
		var zero T
		return zero, false, err
	}
	return val.(T), false, nil
}

// Invalidate removes every cached response in every namespace.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	pattern := keyPrefix + "*"
	var deleted int64
	err := c.breaker.Execute(func() error {
		var err error
		deleted, err = c.client.FlushByPattern(ctx, pattern)
		return err
	})
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// BuildKey hashes a normalised request into a key under namespace.
func BuildKey(namespace, request string) string {
	hash := sha256.Sum256([]byte(request))
	return fmt.Sprintf("%s%s:%x", keyPrefix, namespace, hash[:16])
}

// SearchRequest normalises a boolean search query and its limit.
func SearchRequest(query string, limit int) string {
	return fmt.Sprintf("%s:limit=%d", normalizeQuery(query), limit)
}

// ExpandRequest normalises an expansion request: the relevant set is
// order-insensitive.
func ExpandRequest(docs []string, scheme string, limit, minRelevant int, exclude []string) string {
	d := append([]string(nil), docs...)
	sort.Strings(d)
	ex := append([]string(nil), exclude...)
	sort.Strings(ex)
	return fmt.Sprintf("docs=%s|scheme=%s|limit=%d|min=%d|exclude=%s",
		strings.Join(d, ","), scheme, limit, minRelevant, strings.Join(ex, ","))
}

// normalizeQuery keys a query by its parsed plan. Word order and case do
// not matter; phrase boundaries do.
func normalizeQuery(query string) string {
	plan := parser.Parse(query)
	parts := []string{
		plan.Mode.String(),
		"terms=" + sortedJoin(plan.Terms),
	}
	if len(plan.ExcludeTerms) > 0 {
		parts = append(parts, "not="+sortedJoin(plan.ExcludeTerms))
	}
	if len(plan.Phrases) > 0 {
		parts = append(parts, "phrases="+phraseKey(plan.Phrases))
	}
	if len(plan.ExcludePhrases) > 0 {
		parts = append(parts, "notphrases="+phraseKey(plan.ExcludePhrases))
	}
	return strings.Join(parts, "|")
}

func sortedJoin(words []string) string {
	w := slices.Clone(words)
	slices.Sort(w)
	return strings.Join(w, ",")
}

// phraseKey renders each phrase as its bigrams, which the parser already
// sorts, and orders the phrases themselves.
func phraseKey(phrases [][]string) string {
	keys := make([]string, len(phrases))
	for i, ph := range phrases {
		keys[i] = "[" + strings.Join(ph, ",") + "]"
	}
	slices.Sort(keys)
	return strings.Join(slices.Compact(keys), ",")
}
