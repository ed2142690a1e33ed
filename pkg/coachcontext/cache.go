package coachcontext

import (
	"context"
	stderrors "errors"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xksnk/selfology-core/pkg/shared/errors"
)

// keyPrefix namespaces dossier keys in the shared Redis instance the event
// bus already uses.
const keyPrefix = "selfology:dossier:"

// RedisCache is the production DossierCache: a TTL-bounded JSON blob per
// user, dropped outright on Invalidate rather than updated in place, since
// the next Assemble call regenerates it from the latest profile anyway.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, userID string) (*Dossier, bool, error) {
	body, err := c.client.Get(ctx, keyPrefix+userID).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Transient("get cached dossier", err)
	}

	var d Dossier
	if err := json.Unmarshal(body, &d); err != nil {
		return nil, false, errors.Validation("unmarshal cached dossier", err)
	}
	return &d, true, nil
}

func (c *RedisCache) Set(ctx context.Context, userID string, d Dossier) error {
	body, err := json.Marshal(d)
	if err != nil {
		return errors.Validation("marshal dossier", err)
	}
	if err := c.client.Set(ctx, keyPrefix+userID, body, c.ttl).Err(); err != nil {
		return errors.Transient("set cached dossier", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, keyPrefix+userID).Err(); err != nil {
		return errors.Transient("invalidate cached dossier", err)
	}
	return nil
}
