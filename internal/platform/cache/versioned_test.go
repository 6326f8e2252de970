package cache

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newVersioned(t *testing.T) (*Versioned, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewVersioned(client, "access:test", time.Minute), mr
}

func TestVersionInitialisesAndBumps(t *testing.T) {
	v, mr := newVersioned(t)
	ctx := context.Background()

	ver, err := v.Version(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), ver)
	got, err := mr.Get("access:test:version")
	require.NoError(t, err)
	require.Equal(t, "1", got)

	ver, err = v.Bump(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), ver)

	key, err := v.BuildKey(ctx, "principal", "7")
	require.NoError(t, err)
	require.Equal(t, "access:test:principal:7:2", key)
}

func TestFetchJSONUsesLoaderOnce(t *testing.T) {
	v, mr := newVersioned(t)
	ctx := context.Background()
	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return map[string]int{"n": 5}, nil
	}

	for i := 0; i < 2; i++ {
		var out map[string]int
		require.NoError(t, v.FetchJSON(ctx, "access:test:k:1", &out, loader))
		require.Equal(t, 5, out["n"])
	}
	require.Equal(t, 1, calls)
	require.Equal(t, time.Minute, mr.TTL("access:test:k:1"))

	require.NoError(t, v.Delete(ctx, "access:test:k:1"))
	require.False(t, mr.Exists("access:test:k:1"))
}

func TestFetchJSONDoesNotStoreLoaderErrors(t *testing.T) {
	v, mr := newVersioned(t)
	boom := errors.New("boom")
	var out map[string]int
	err := v.FetchJSON(context.Background(), "access:test:k:1", &out, func(context.Context) (any, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
	require.False(t, mr.Exists("access:test:k:1"))
}

func TestFetchJSONRequiresLoader(t *testing.T) {
	v, _ := newVersioned(t)
	var out any
	require.Error(t, v.FetchJSON(context.Background(), "k", &out, nil))
}

func TestPublishAndListen(t *testing.T) {
	v, _ := newVersioned(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 4)
	require.NoError(t, v.Listen(ctx, func(payload string) { got <- payload }))

	require.NoError(t, v.Publish(ctx, "p:7"))
	_, err := v.Bump(ctx)
	require.NoError(t, err)

	require.Equal(t, "p:7", <-got)
	require.Equal(t, "v:1", <-got)
}

func TestNilVersionedIsInert(t *testing.T) {
	var v *Versioned
	ctx := context.Background()

	ver, err := v.Version(ctx)
	require.NoError(t, err)
	require.Zero(t, ver)
	require.Equal(t, "cache:a:b:3", v.Key(3, "a", "b"))

	var out int
	require.NoError(t, v.FetchJSON(ctx, "k", &out, func(context.Context) (any, error) { return 9, nil }))
	require.Equal(t, 9, out)

	_, err = v.Bump(ctx)
	require.NoError(t, err)
	ver, gen, err := v.Versions(ctx, "principal:7")
	require.NoError(t, err)
	require.Zero(t, ver)
	require.Zero(t, gen)
	_, err = v.Advance(ctx, "principal:7")
	require.NoError(t, err)
	require.NoError(t, v.Delete(ctx, "k"))
	require.NoError(t, v.Listen(ctx, func(string) {}))
	require.Nil(t, v.WithLogger(nil))
}

func TestNewFailsWhenUnreachable(t *testing.T) {
	_, err := New(context.Background(), "127.0.0.1:1")
	require.Error(t, err)
}

func TestVersionsTracksFamilyGenerations(t *testing.T) {
	v, mr := newVersioned(t)
	ctx := context.Background()

	ver, gen, err := v.Versions(ctx, "principal:7")
	require.NoError(t, err)
	require.Equal(t, int64(1), ver)
	require.Zero(t, gen)

	next, err := v.Advance(ctx, "principal:7")
	require.NoError(t, err)
	require.Equal(t, int64(1), next)
	got, err := mr.Get("access:test:gen:principal:7")
	require.NoError(t, err)
	require.Equal(t, "1", got)

	ver, gen, err = v.Versions(ctx, "principal:7")
	require.NoError(t, err)
	require.Equal(t, int64(1), ver)
	require.Equal(t, int64(1), gen)

	_, gen, err = v.Versions(ctx, "principal:8")
	require.NoError(t, err)
	require.Zero(t, gen)

	mr.SetError("LOADING dataset")
	_, _, err = v.Versions(ctx, "principal:7")
	require.Error(t, err)
}

// rejectWrites fails every SET while letting reads through.
type rejectWrites struct{}

func (rejectWrites) DialHook(next redis.DialHook) redis.DialHook { return next }

func (rejectWrites) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if cmd.Name() == "set" {
			err := errors.New("READONLY You can't write against a read only replica.")
			cmd.SetErr(err)
			return err
		}
		return next(ctx, cmd)
	}
}

func (rejectWrites) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestFetchJSONReturnsLoadedValueWhenStoreFails(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	client.AddHook(rejectWrites{})

	var logs bytes.Buffer
	v := NewVersioned(client, "access:test", time.Minute).WithLogger(slog.New(slog.NewTextHandler(&logs, nil)))

	var out map[string]int
	err := v.FetchJSON(context.Background(), "access:test:k:1", &out, func(context.Context) (any, error) {
		return map[string]int{"n": 5}, nil
	})
	require.NoError(t, err)
	require.Equal(t, 5, out["n"])
	require.False(t, mr.Exists("access:test:k:1"))
	require.Contains(t, logs.String(), "cache store")
}
