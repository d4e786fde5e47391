package cache

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const (
	verdictKeyPrefix = "proxysieve:verdict:"
	DefaultTTL       = 12 * time.Hour
)

type localEntry struct {
	listed  bool
	expires time.Time
}

// VerdictCache remembers DNSBL verdicts per IP so an address seen again
// within the TTL skips the blocklist round trip. A Redis client makes the
// cache shared across runs and instances; without one the cache is a
// process-local map.
type VerdictCache struct {
	client *redis.Client
	ttl    time.Duration

	mu    sync.Mutex
	local map[string]localEntry
}

func NewVerdictCache(client *redis.Client, ttl time.Duration) *VerdictCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &VerdictCache{
		client: client,
		ttl:    ttl,
		local:  make(map[string]localEntry),
	}
}

// Get returns the cached verdict for ip and whether one was found.
func (c *VerdictCache) Get(ctx context.Context, ip string) (bool, bool) {
	c.mu.Lock()
	entry, found := c.local[ip]
	if found && time.Now().Before(entry.expires) {
		c.mu.Unlock()
		return entry.listed, true
	}
	if found {
		delete(c.local, ip)
	}
	c.mu.Unlock()

	if c.client == nil {
		return false, false
	}

	value, err := c.client.Get(ctx, verdictKeyPrefix+ip).Result()
	if err != nil {
		if err != redis.Nil {
			log.Debug("Verdict cache read failed", "ip", ip, "error", err)
		}
		return false, false
	}

	listed := value == "1"
	c.storeLocal(ip, listed)
	return listed, true
}

// Put records a verdict. Cache write failures are logged and swallowed; the
// cache is an optimization, never a correctness dependency.
func (c *VerdictCache) Put(ctx context.Context, ip string, listed bool) {
	c.storeLocal(ip, listed)

	if c.client == nil {
		return
	}

	value := "0"
	if listed {
		value = "1"
	}
	if err := c.client.Set(ctx, verdictKeyPrefix+ip, value, c.ttl).Err(); err != nil {
		log.Debug("Verdict cache write failed", "ip", ip, "error", err)
	}
}

func (c *VerdictCache) storeLocal(ip string, listed bool) {
	c.mu.Lock()
	c.local[ip] = localEntry{listed: listed, expires: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}
