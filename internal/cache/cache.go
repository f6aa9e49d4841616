// Package cache is the content-addressed Cache Layer described in
// spec.md §4.4. It namespaces entries by asset kind (script/audio/
// visual), persists them in Redis with a per-namespace TTL following the
// redis/go-redis/v9 usage in
// _examples/injaneity-brainbot-464/ingestion_service/deduplication, and
// coalesces concurrent identical lookups in-process with
// golang.org/x/sync/singleflight, the same primitive
// MimeLyc-contextual-sub-translator uses to dedupe concurrent runs.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"eduvid/internal/apperr"
	"eduvid/internal/logging"
)

// Namespace partitions keys by asset kind so a script cache flush never
// touches audio or visual entries and vice versa.
type Namespace string

const (
	NamespaceScript Namespace = "script"
	NamespaceAudio  Namespace = "audio"
	NamespaceVisual Namespace = "visual"
)

// Config mirrors the Redis connection and per-namespace TTL knobs of
// spec.md §6.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	TTL map[Namespace]time.Duration
}

// Cache is the process-wide cache layer. One instance is shared across
// the LLM client, TTS client and Asset Router.
type Cache struct {
	rdb *redis.Client
	sf  singleflight.Group
	ttl map[Namespace]time.Duration
	log logging.Logger
}

// New connects to Redis lazily (the client dials on first command) and
// builds an empty Cache ready for use.
func New(cfg Config, log logging.Logger) *Cache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return &Cache{rdb: rdb, ttl: cfg.TTL, log: log.With().Str("component", "cache").Logger()}
}

// Fingerprint derives a content-addressed key from ns and the ordered
// parts that determine the cached value (e.g. narration text + voice for
// audio, visual type + prompt for visual).
func Fingerprint(ns Namespace, parts ...string) string {
	h := sha256.New()
	h.Write([]byte(ns))
	for _, p := range parts {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Cache) redisKey(ns Namespace, fingerprint string) string {
	return fmt.Sprintf("eduvid:%s:%s", ns, fingerprint)
}

// Get returns the cached value for fingerprint, or ok=false on a miss or
// Redis error (a cache-layer outage degrades to "always miss", never to
// a job failure).
func (c *Cache) Get(ctx context.Context, ns Namespace, fingerprint string, out any) (ok bool) {
	raw, err := c.rdb.Get(ctx, c.redisKey(ns, fingerprint)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Debug().Err(err).Str("namespace", string(ns)).Msg("cache get failed, treating as miss")
		}
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		c.log.Warn().Err(err).Msg("cache entry corrupted, treating as miss")
		return false
	}
	return true
}

// Set stores value under fingerprint with the namespace's configured TTL.
func (c *Cache) Set(ctx context.Context, ns Namespace, fingerprint string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return apperr.Wrap(apperr.ErrFatal, err)
	}
	ttl := c.ttl[ns]
	if err := c.rdb.Set(ctx, c.redisKey(ns, fingerprint), raw, ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("namespace", string(ns)).Msg("cache set failed")
		return nil // a failed write degrades to no caching, not a job failure
	}
	return nil
}

// GetOrCompute returns the cached value for fingerprint if present;
// otherwise it calls compute exactly once across all concurrent callers
// sharing the same (ns, fingerprint) key, via singleflight, stores the
// result, and returns it to every waiter.
func (c *Cache) GetOrCompute(ctx context.Context, ns Namespace, fingerprint string, out any, compute func(ctx context.Context) (any, error)) error {
	if c.Get(ctx, ns, fingerprint, out) {
		return nil
	}

	sfKey := string(ns) + ":" + fingerprint
	v, err, shared := c.sf.Do(sfKey, func() (any, error) {
		result, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.Set(ctx, ns, fingerprint, result); err != nil {
			c.log.Warn().Err(err).Msg("failed to persist computed value to cache")
		}
		return result, nil
	})
	if err != nil {
		return err
	}
	if shared {
		c.log.Debug().Str("namespace", string(ns)).Msg("coalesced concurrent identical request")
	}

	raw, merr := json.Marshal(v)
	if merr != nil {
		return apperr.Wrap(apperr.ErrFatal, merr)
	}
	return json.Unmarshal(raw, out)
}

// Invalidate removes one entry.
func (c *Cache) Invalidate(ctx context.Context, ns Namespace, fingerprint string) error {
	return c.rdb.Del(ctx, c.redisKey(ns, fingerprint)).Err()
}

// InvalidateNamespace drops every key under ns using SCAN so it never
// blocks Redis the way KEYS would on a large keyspace.
func (c *Cache) InvalidateNamespace(ctx context.Context, ns Namespace) error {
	pattern := c.redisKey(ns, "*")
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// EvictUntil implements governor.Evictor: it drops the least-durable
// namespace first (visual, then audio, then script) until Redis reports
// used memory at or below targetFraction of maxmemory, or there is
// nothing left to evict. It is invoked by the Resource Governor once
// memory pressure crosses the auto-cleanup ceiling.
func (c *Cache) EvictUntil(ctx context.Context, targetFraction float64) error {
	order := []Namespace{NamespaceVisual, NamespaceAudio, NamespaceScript}

	for _, ns := range order {
		usedFraction, err := c.memoryUsedFraction(ctx)
		if err != nil {
			c.log.Warn().Err(err).Msg("could not read redis memory stats, evicting all namespaces defensively")
			usedFraction = 1
		}
		if usedFraction <= targetFraction {
			return nil
		}
		c.log.Info().Str("namespace", string(ns)).Msg("evicting cache namespace under memory pressure")
		if err := c.InvalidateNamespace(ctx, ns); err != nil {
			return err
		}
	}
	return nil
}

// memoryUsedFraction reads Redis's INFO memory section for used_memory
// and maxmemory. If maxmemory is unset (0, no limit configured), it
// reports 0 so EvictUntil treats the cache as always within budget —
// eviction is then driven purely by the caller's explicit invalidation.
func (c *Cache) memoryUsedFraction(ctx context.Context) (float64, error) {
	info, err := c.rdb.Info(ctx, "memory").Result()
	if err != nil {
		return 0, err
	}
	used, max := parseMemoryInfo(info)
	if max == 0 {
		return 0, nil
	}
	return used / max, nil
}

func parseMemoryInfo(info string) (used, max float64) {
	var usedInt, maxInt int64
	fmt.Sscanf(extractLine(info, "used_memory:"), "used_memory:%d", &usedInt)
	fmt.Sscanf(extractLine(info, "maxmemory:"), "maxmemory:%d", &maxInt)
	return float64(usedInt), float64(maxInt)
}

func extractLine(info, prefix string) string {
	for _, line := range splitLines(info) {
		if len(line) >= len(prefix) && line[:len(prefix)] == prefix {
			return line
		}
	}
	return ""
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			line := s[start:i]
			if len(line) > 0 && line[len(line)-1] == '\r' {
				line = line[:len(line)-1]
			}
			lines = append(lines, line)
			start = i + 1
		}
	}
	return lines
}
