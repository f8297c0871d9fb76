// Package cache is a Redis read-through cache over resolved records. Entries
// carry a short TTL and are invalidated when a settlement touches their name,
// so the cache can only ever serve last-settled data.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"zkns/internal/namekey"
	"zkns/internal/registry/models"
)

const keyPrefix = "zkns:name:"

// entry is the stored wire form of a record.
type entry struct {
	Owner   string `json:"owner"`
	Aux     string `json:"aux"`
	Payload string `json:"payload"`
}

// Redis caches resolved records.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// New wraps an existing client. TTL bounds staleness if an invalidation is
// ever missed.
func New(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func (c *Redis) Get(ctx context.Context, name string) (models.Record, bool, error) {
	raw, err := c.client.Get(ctx, keyPrefix+name).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Record{}, false, nil
	}
	if err != nil {
		return models.Record{}, false, fmt.Errorf("cache get %q: %w", name, err)
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return models.Record{}, false, fmt.Errorf("cache decode %q: %w", name, err)
	}
	rec, err := e.record()
	if err != nil {
		return models.Record{}, false, err
	}
	return rec, true, nil
}

func (c *Redis) Set(ctx context.Context, name string, rec models.Record) error {
	raw, err := json.Marshal(entry{
		Owner:   string(rec.Owner),
		Aux:     namekey.Decode(rec.Aux),
		Payload: namekey.Decode(rec.Payload),
	})
	if err != nil {
		return fmt.Errorf("cache encode %q: %w", name, err)
	}
	if err := c.client.Set(ctx, keyPrefix+name, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set %q: %w", name, err)
	}
	return nil
}

func (c *Redis) Invalidate(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}
	keys := make([]string, len(names))
	for i, n := range names {
		keys[i] = keyPrefix + n
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}

func (e entry) record() (models.Record, error) {
	var rec models.Record
	rec.Owner = models.PublicKey(e.Owner)
	if e.Aux != "" {
		aux, err := namekey.Encode(e.Aux)
		if err != nil {
			return rec, err
		}
		rec.Aux = aux
	}
	if e.Payload != "" {
		payload, err := namekey.Encode(e.Payload)
		if err != nil {
			return rec, err
		}
		rec.Payload = payload
	}
	return rec, nil
}
