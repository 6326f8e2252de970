package admins

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/tras-phone/admin-access/internal/platform/cache"
	"github.com/tras-phone/admin-access/internal/rbac"
)

const principalPrefix = "p:"

type cachedResolution struct {
	version    int64
	generation int64
	resolved   rbac.ResolvedPrincipal
}

// stamp identifies the local invalidation state an entry was loaded under.
type stamp struct {
	epoch uint64
	gen   uint64
}

// ResolutionCache memoizes resolved principals in process and in Redis.
// Keys carry the namespace version and a per-admin generation, so
// InvalidateAll drops every entry and InvalidatePrincipal one admin's
// entries on every instance. A resolution that started before an
// invalidation is never cached under the new key. Returned values are
// shared and must be treated as read-only.
type ResolutionCache struct {
	resolver rbac.PrincipalResolver
	versions *cache.Versioned
	local    *expirable.LRU[int64, cachedResolution]
	group    singleflight.Group
	logger   *slog.Logger

	mu    sync.Mutex
	epoch uint64
	gens  map[int64]uint64
}

// NewResolutionCache wraps resolver. size bounds the in-process entries and
// ttl bounds both layers.
func NewResolutionCache(resolver rbac.PrincipalResolver, versions *cache.Versioned, size int, ttl time.Duration, logger *slog.Logger) *ResolutionCache {
	if size <= 0 {
		size = 1024
	}
	return &ResolutionCache{
		resolver: resolver,
		versions: versions,
		local:    expirable.NewLRU[int64, cachedResolution](size, nil, ttl),
		logger:   logger,
		gens:     make(map[int64]uint64),
	}
}

// ResolveByID returns the cached resolution of id or resolves it. Errors are
// never cached. When the version cannot be read the call goes straight to
// the resolver.
func (c *ResolutionCache) ResolveByID(ctx context.Context, id int64) (rbac.ResolvedPrincipal, error) {
	before := c.stamp(id)
	ver, gen, err := c.versions.Versions(ctx, principalFamily(id))
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("resolution cache version", slog.Any("error", err))
		}
		return c.resolver.ResolveByID(ctx, id)
	}
	if entry, ok := c.local.Get(id); ok && entry.version == ver && entry.generation == gen {
		return entry.resolved, nil
	}

	key := c.key(ver, gen, id)
	v, err, _ := c.group.Do(key, func() (any, error) {
		var resolved rbac.ResolvedPrincipal
		err := c.versions.FetchJSON(ctx, key, &resolved, func(ctx context.Context) (any, error) {
			return c.resolver.ResolveByID(ctx, id)
		})
		return resolved, err
	})
	if err != nil {
		return rbac.ResolvedPrincipal{}, err
	}
	resolved := v.(rbac.ResolvedPrincipal)
	c.mu.Lock()
	if c.stampLocked(id) == before {
		c.local.Add(id, cachedResolution{version: ver, generation: gen, resolved: resolved})
	}
	c.mu.Unlock()
	return resolved, nil
}

// InvalidatePrincipal drops the entry of one admin here and, through
// pub/sub, on the other instances.
func (c *ResolutionCache) InvalidatePrincipal(ctx context.Context, id int64) error {
	c.forget(id)
	ver, gen, err := c.versions.Versions(ctx, principalFamily(id))
	if err != nil {
		return err
	}
	if _, err := c.versions.Advance(ctx, principalFamily(id)); err != nil {
		return err
	}
	if err := c.versions.Delete(ctx, c.key(ver, gen, id)); err != nil {
		return err
	}
	return c.versions.Publish(ctx, principalPrefix+strconv.FormatInt(id, 10))
}

// InvalidateAll bumps the namespace version.
func (c *ResolutionCache) InvalidateAll(ctx context.Context) error {
	c.forgetAll()
	_, err := c.versions.Bump(ctx)
	return err
}

// Listen applies invalidations published by other instances until ctx is
// done.
func (c *ResolutionCache) Listen(ctx context.Context) error {
	return c.versions.Listen(ctx, c.apply)
}

// apply handles "p:<id>" for one admin; version bumps and anything
// unrecognised drop everything.
func (c *ResolutionCache) apply(payload string) {
	if raw, ok := strings.CutPrefix(payload, principalPrefix); ok {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			c.forget(id)
			return
		}
	}
	c.forgetAll()
}

// forget drops the local entry of id and marks resolutions of id still in
// flight as stale.
func (c *ResolutionCache) forget(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[id]++
	c.local.Remove(id)
}

func (c *ResolutionCache) forgetAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	clear(c.gens)
	c.local.Purge()
}

func (c *ResolutionCache) stamp(id int64) stamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stampLocked(id)
}

func (c *ResolutionCache) stampLocked(id int64) stamp {
	return stamp{epoch: c.epoch, gen: c.gens[id]}
}

func principalFamily(id int64) string {
	return "principal:" + strconv.FormatInt(id, 10)
}

func (c *ResolutionCache) key(version, generation, id int64) string {
	return c.versions.Key(version, "principal", strconv.FormatInt(id, 10), "g"+strconv.FormatInt(generation, 10))
}
