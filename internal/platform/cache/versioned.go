package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Versioned wraps Redis caching where one version counter invalidates every
// key of a namespace at once.
//
// Besides the namespace version, each family of keys (for example one
// principal) can carry its own generation counter, so a single family is
// invalidated without touching the others.
type Versioned struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
	logger    *slog.Logger
}

// NewVersioned instantiates the cache helper for namespace.
func NewVersioned(client *redis.Client, namespace string, ttl time.Duration) *Versioned {
	return &Versioned{client: client, namespace: namespace, ttl: ttl}
}

// WithLogger sets the logger used for failures that do not fail the call.
func (c *Versioned) WithLogger(logger *slog.Logger) *Versioned {
	if c != nil {
		c.logger = logger
	}
	return c
}

func (c *Versioned) versionKey() string {
	return c.namespace + ":version"
}

func (c *Versioned) generationKey(parts ...string) string {
	return c.namespace + ":gen:" + strings.Join(parts, ":")
}

// Channel is the pub/sub channel carrying invalidation messages.
func (c *Versioned) Channel() string {
	return c.namespace + ".invalidate"
}

// Version returns the current cache version, initialising when missing.
func (c *Versioned) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, c.versionKey()).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, c.versionKey(), 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, c.versionKey()).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// Versions returns the namespace version and the generation of the key
// family named by parts in one round trip. A family never advanced is at
// generation 0.
func (c *Versioned) Versions(ctx context.Context, parts ...string) (version, generation int64, err error) {
	if c == nil || c.client == nil {
		return 0, 0, nil
	}
	vals, err := c.client.MGet(ctx, c.versionKey(), c.generationKey(parts...)).Result()
	if err != nil {
		return 0, 0, err
	}
	if vals[0] == nil {
		if version, err = c.Version(ctx); err != nil {
			return 0, 0, err
		}
	} else if version, err = parseCounter(vals[0]); err != nil {
		return 0, 0, err
	}
	if vals[1] != nil {
		if generation, err = parseCounter(vals[1]); err != nil {
			return 0, 0, err
		}
	}
	return version, generation, nil
}

// Advance increments the generation of the key family named by parts.
// Keys built with an older generation are never read again.
func (c *Versioned) Advance(ctx context.Context, parts ...string) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	return c.client.Incr(ctx, c.generationKey(parts...)).Result()
}

func parseCounter(v any) (int64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("cache: unexpected counter value %T", v)
	}
	return strconv.ParseInt(s, 10, 64)
}

// Key composes a key under the namespace for an explicit version.
func (c *Versioned) Key(version int64, parts ...string) string {
	namespace := "cache"
	if c != nil && c.namespace != "" {
		namespace = c.namespace
	}
	return fmt.Sprintf("%s:%s:%d", namespace, strings.Join(parts, ":"), version)
}

// BuildKey composes the key with the current version.
func (c *Versioned) BuildKey(ctx context.Context, parts ...string) (string, error) {
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return c.Key(ver, parts...), nil
}

// FetchJSON loads a cached value into dest or populates it using loader.
// A failure to store the loaded value is logged and does not fail the call.
func (c *Versioned) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("cache: loader required")
	}
	if c != nil && c.client != nil {
		payload, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			return json.Unmarshal(payload, dest)
		}
		if !errors.Is(err, redis.Nil) {
			return err
		}
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if c != nil && c.client != nil {
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil && c.logger != nil {
			c.logger.Warn("cache store", slog.String("key", key), slog.Any("error", err))
		}
	}
	return json.Unmarshal(raw, dest)
}

// Delete removes keys.
func (c *Versioned) Delete(ctx context.Context, keys ...string) error {
	if c == nil || c.client == nil || len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// Bump invalidates the namespace by incrementing the version and publishing
// it.
func (c *Versioned) Bump(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Incr(ctx, c.versionKey()).Result()
	if err != nil {
		return 0, err
	}
	return ver, c.Publish(ctx, "v:"+strconv.FormatInt(ver, 10))
}

// Publish sends a raw invalidation message.
func (c *Versioned) Publish(ctx context.Context, payload string) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Publish(ctx, c.Channel(), payload).Err()
}

// Listen subscribes to invalidation messages and calls fn for each payload
// until ctx is done.
func (c *Versioned) Listen(ctx context.Context, fn func(payload string)) error {
	if c == nil || c.client == nil {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, c.Channel())
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				fn(msg.Payload)
			}
		}
	}()
	return nil
}
