package admins

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/tras-phone/admin-access/internal/platform/cache"
	"github.com/tras-phone/admin-access/internal/rbac"
)

type countingResolver struct {
	mu    sync.Mutex
	calls map[int64]int
	err   error
}

func newCountingResolver() *countingResolver {
	return &countingResolver{calls: map[int64]int{}}
}

func (c *countingResolver) ResolveByID(_ context.Context, id int64) (rbac.ResolvedPrincipal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[id]++
	if c.err != nil {
		return rbac.ResolvedPrincipal{}, c.err
	}
	return rbac.ResolvedPrincipal{
		Active:       true,
		Permissions:  rbac.NewSet("orders.view"),
		FeatureFlags: rbac.NewSet(),
	}, nil
}

func (c *countingResolver) count(id int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[id]
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func newResolutionCache(client *redis.Client, resolver rbac.PrincipalResolver) *ResolutionCache {
	return NewResolutionCache(resolver, cache.NewVersioned(client, "test:resolution", time.Minute), 16, time.Minute, nil)
}

func TestResolutionCacheHit(t *testing.T) {
	_, client := newRedis(t)
	resolver := newCountingResolver()
	c := newResolutionCache(client, resolver)

	first, err := c.ResolveByID(context.Background(), 7)
	require.NoError(t, err)
	second, err := c.ResolveByID(context.Background(), 7)
	require.NoError(t, err)

	require.Equal(t, 1, resolver.count(7))
	require.True(t, first.Active)
	require.True(t, second.Permissions.Has("orders.view"))
}

func TestResolutionCacheSharedThroughRedis(t *testing.T) {
	_, client := newRedis(t)
	first := newCountingResolver()
	second := newCountingResolver()
	a := newResolutionCache(client, first)
	b := newResolutionCache(client, second)

	_, err := a.ResolveByID(context.Background(), 7)
	require.NoError(t, err)
	resolved, err := b.ResolveByID(context.Background(), 7)
	require.NoError(t, err)

	require.Equal(t, 1, first.count(7))
	require.Zero(t, second.count(7))
	require.True(t, resolved.Permissions.Has("orders.view"))
}

func TestResolutionCacheInvalidateAll(t *testing.T) {
	_, client := newRedis(t)
	resolver := newCountingResolver()
	a := newResolutionCache(client, resolver)
	b := newResolutionCache(client, resolver)

	_, err := a.ResolveByID(context.Background(), 7)
	require.NoError(t, err)
	_, err = b.ResolveByID(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, 1, resolver.count(7))

	require.NoError(t, a.InvalidateAll(context.Background()))

	// b still holds a local entry, but under the old version.
	_, err = b.ResolveByID(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, 2, resolver.count(7))
}

func TestResolutionCacheInvalidatePrincipal(t *testing.T) {
	_, client := newRedis(t)
	resolver := newCountingResolver()
	c := newResolutionCache(client, resolver)

	for _, id := range []int64{7, 8} {
		_, err := c.ResolveByID(context.Background(), id)
		require.NoError(t, err)
	}
	require.NoError(t, c.InvalidatePrincipal(context.Background(), 7))

	for _, id := range []int64{7, 8} {
		_, err := c.ResolveByID(context.Background(), id)
		require.NoError(t, err)
	}
	require.Equal(t, 2, resolver.count(7))
	require.Equal(t, 1, resolver.count(8))
}

func TestResolutionCacheDoesNotCacheErrors(t *testing.T) {
	_, client := newRedis(t)
	resolver := newCountingResolver()
	resolver.err = rbac.ErrRoleNotFound
	c := newResolutionCache(client, resolver)

	_, err := c.ResolveByID(context.Background(), 7)
	require.ErrorIs(t, err, rbac.ErrRoleNotFound)

	resolver.mu.Lock()
	resolver.err = nil
	resolver.mu.Unlock()

	resolved, err := c.ResolveByID(context.Background(), 7)
	require.NoError(t, err)
	require.True(t, resolved.Active)
	require.Equal(t, 2, resolver.count(7))
}

func TestResolutionCacheFallsBackWhenRedisFails(t *testing.T) {
	mr, client := newRedis(t)
	resolver := newCountingResolver()
	c := newResolutionCache(client, resolver)
	mr.SetError("LOADING dataset")

	for i := 0; i < 2; i++ {
		resolved, err := c.ResolveByID(context.Background(), 7)
		require.NoError(t, err)
		require.True(t, resolved.Active)
	}
	require.Equal(t, 2, resolver.count(7))
}

func TestResolutionCacheListenAppliesPeerInvalidations(t *testing.T) {
	_, client := newRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := newResolutionCache(client, newCountingResolver())
	b := newResolutionCache(client, newCountingResolver())
	require.NoError(t, b.Listen(ctx))

	for _, id := range []int64{7, 8} {
		_, err := b.ResolveByID(ctx, id)
		require.NoError(t, err)
	}
	require.True(t, b.local.Contains(7))

	require.NoError(t, a.InvalidatePrincipal(ctx, 7))
	require.Eventually(t, func() bool { return !b.local.Contains(7) }, time.Second, 10*time.Millisecond)
	require.True(t, b.local.Contains(8))

	require.NoError(t, a.InvalidateAll(ctx))
	require.Eventually(t, func() bool { return b.local.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestResolutionCacheApply(t *testing.T) {
	c := NewResolutionCache(newCountingResolver(), nil, 4, time.Minute, nil)
	c.local.Add(1, cachedResolution{version: 1})
	c.local.Add(2, cachedResolution{version: 1})

	c.apply("p:1")
	require.False(t, c.local.Contains(1))
	require.True(t, c.local.Contains(2))

	c.apply("p:garbage")
	require.Zero(t, c.local.Len())
}

func TestResolutionCacheWithoutRedis(t *testing.T) {
	resolver := newCountingResolver()
	c := NewResolutionCache(resolver, nil, 4, time.Minute, nil)

	_, err := c.ResolveByID(context.Background(), 7)
	require.NoError(t, err)
	_, err = c.ResolveByID(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, 1, resolver.count(7))
	require.NoError(t, c.InvalidatePrincipal(context.Background(), 7))
	require.NoError(t, c.InvalidateAll(context.Background()))
	require.NoError(t, c.Listen(context.Background()))
}

// gatedResolver reads the admin's state on entry and, while a gate is set,
// blocks until the gate is closed before answering.
type gatedResolver struct {
	mu      sync.Mutex
	active  bool
	gate    chan struct{}
	entered chan struct{}
}

func newGatedResolver() *gatedResolver {
	return &gatedResolver{active: true, gate: make(chan struct{}), entered: make(chan struct{}, 1)}
}

func (g *gatedResolver) ResolveByID(_ context.Context, _ int64) (rbac.ResolvedPrincipal, error) {
	g.mu.Lock()
	active, gate := g.active, g.gate
	g.mu.Unlock()
	if gate != nil {
		g.entered <- struct{}{}
		<-gate
	}
	if !active {
		return rbac.ResolvedPrincipal{Permissions: rbac.NewSet(), FeatureFlags: rbac.NewSet()}, nil
	}
	return rbac.ResolvedPrincipal{Active: true, Permissions: rbac.NewSet("orders.view"), FeatureFlags: rbac.NewSet()}, nil
}

// deactivate marks the admin inactive and returns the gate of the
// resolution already in flight.
func (g *gatedResolver) deactivate() chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active = false
	gate := g.gate
	g.gate = nil
	return gate
}

func TestResolutionCacheDiscardsResolutionStartedBeforeInvalidation(t *testing.T) {
	for name, peer := range map[string]bool{"same instance": false, "other instance": true} {
		t.Run(name, func(t *testing.T) {
			_, client := newRedis(t)
			resolver := newGatedResolver()
			reader := newResolutionCache(client, resolver)
			writer := reader
			if peer {
				writer = newResolutionCache(client, resolver)
			}
			ctx := context.Background()

			inflight := make(chan rbac.ResolvedPrincipal, 1)
			go func() {
				resolved, _ := reader.ResolveByID(ctx, 7)
				inflight <- resolved
			}()
			<-resolver.entered

			gate := resolver.deactivate()
			require.NoError(t, writer.InvalidatePrincipal(ctx, 7))
			close(gate)
			require.True(t, (<-inflight).Active)

			for _, c := range []*ResolutionCache{reader, writer} {
				resolved, err := c.ResolveByID(ctx, 7)
				require.NoError(t, err)
				require.False(t, resolved.Active)
				require.Zero(t, resolved.Permissions.Len())
			}
		})
	}
}

func TestResolutionCacheInvalidatePrincipalReachesPeersWithoutListener(t *testing.T) {
	_, client := newRedis(t)
	resolver := newCountingResolver()
	a := newResolutionCache(client, resolver)
	b := newResolutionCache(client, resolver)
	ctx := context.Background()

	_, err := b.ResolveByID(ctx, 7)
	require.NoError(t, err)
	require.True(t, b.local.Contains(7))

	require.NoError(t, a.InvalidatePrincipal(ctx, 7))
	_, err = b.ResolveByID(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, 2, resolver.count(7))
}
