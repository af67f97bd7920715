package reports

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultCacheNamespace prefixes every report key and the generation counter.
const DefaultCacheNamespace = "ledger:reports"

// Cache keeps report JSON in Redis. Keys end with a generation number stored
// under <namespace>:generation; every process reading the same Redis sees the
// same generation, so Bump from any of them retires all cached reports.
type Cache struct {
	client    *redis.Client
	ttl       time.Duration
	namespace string
}

// NewCache wraps client. A nil client, like a nil *Cache, builds every report
// directly.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl, namespace: DefaultCacheNamespace}
}

// WithNamespace separates ledgers sharing one Redis.
func (c *Cache) WithNamespace(namespace string) *Cache {
	if c != nil && namespace != "" {
		c.namespace = strings.TrimSuffix(namespace, ":")
	}
	return c
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil
}

func (c *Cache) prefix() string {
	if c == nil || c.namespace == "" {
		return DefaultCacheNamespace
	}
	return c.namespace
}

func (c *Cache) generationKey() string {
	return c.prefix() + ":generation"
}

// Version returns the current generation, starting it at 1.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if !c.enabled() {
		return 0, nil
	}
	gen, err := c.client.Get(ctx, c.generationKey()).Int64()
	if errors.Is(err, redis.Nil) {
		// Another process may win the race; read back whatever stuck.
		if err := c.client.SetNX(ctx, c.generationKey(), 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, c.generationKey()).Int64()
	}
	return gen, err
}

// BuildKey joins parts under the namespace and appends the generation.
func (c *Cache) BuildKey(ctx context.Context, parts ...string) (string, error) {
	key := strings.Join(append([]string{c.prefix()}, parts...), ":")
	if !c.enabled() {
		return key, nil
	}
	gen, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return key + ":" + strconv.FormatInt(gen, 10), nil
}

// FetchJSON decodes the report cached at key into dest, building and storing
// it on a miss. A payload that no longer decodes is rebuilt.
func (c *Cache) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("cache: loader required")
	}
	if !c.enabled() {
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		return roundTrip(value, dest)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if json.Unmarshal(payload, dest) == nil {
			return nil
		}
	case !errors.Is(err, redis.Nil):
		return err
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// Bump advances the generation.
func (c *Cache) Bump(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	return c.client.Incr(ctx, c.generationKey()).Err()
}

func roundTrip(value, dest any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}
