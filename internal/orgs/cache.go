package orgs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/guardpost/guardpost/internal/guard"
	"github.com/guardpost/guardpost/internal/observability"
)

const grantKeyPrefix = "orgs:grants:"

// GrantLister loads grant names from the source of truth.
type GrantLister interface {
	GrantNamesBySlug(ctx context.Context, slug string) ([]string, error)
}

// Cache serves organization grant sets from Redis, falling back to the
// repository on miss. Concurrent misses for the same slug collapse into a
// single repository load.
type Cache struct {
	client  *redis.Client
	repo    GrantLister
	ttl     time.Duration
	group   singleflight.Group
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewCache instantiates the grant cache. Metrics and logger may be nil.
func NewCache(client *redis.Client, repo GrantLister, ttl time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Cache {
	return &Cache{client: client, repo: repo, ttl: ttl, metrics: metrics, logger: logger}
}

// Grants returns the normalized permission set for the organization slug.
// Unknown or inactive organizations yield an empty set, never an error: the
// decision path treats a missing permission source as "no permissions".
func (c *Cache) Grants(ctx context.Context, slug string) (guard.PermissionSet, error) {
	slug = NormalizeSlug(slug)
	if slug == "" {
		return guard.NewPermissionSet(nil), nil
	}

	if c.client != nil {
		raw, err := c.client.Get(ctx, grantKeyPrefix+slug).Bytes()
		if err == nil {
			var perms []string
			if err := json.Unmarshal(raw, &perms); err == nil {
				c.metrics.ObserveGrantCache("hit")
				return guard.NewPermissionSet(perms), nil
			}
		} else if !errors.Is(err, redis.Nil) && c.logger != nil {
			c.logger.Warn("grant cache read", slog.String("slug", slug), slog.Any("error", err))
		}
	}

	c.metrics.ObserveGrantCache("miss")
	v, err, _ := c.group.Do(slug, func() (any, error) {
		return c.load(ctx, slug)
	})
	if err != nil {
		return nil, err
	}
	return guard.NewPermissionSet(v.([]string)), nil
}

// Refresh rebuilds the cache entry for a slug from the repository.
func (c *Cache) Refresh(ctx context.Context, slug string) error {
	_, err := c.load(ctx, NormalizeSlug(slug))
	return err
}

// Invalidate drops the cache entry for a slug.
func (c *Cache) Invalidate(ctx context.Context, slug string) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, grantKeyPrefix+NormalizeSlug(slug)).Err()
}

func (c *Cache) load(ctx context.Context, slug string) ([]string, error) {
	perms, err := c.repo.GrantNamesBySlug(ctx, slug)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		// Unknown org: cache the empty set so repeated probes stay cheap.
		perms = []string{}
	}
	if perms == nil {
		perms = []string{}
	}

	if c.client != nil {
		raw, err := json.Marshal(perms)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(ctx, grantKeyPrefix+slug, raw, c.ttl).Err(); err != nil && c.logger != nil {
			c.logger.Warn("grant cache write", slog.String("slug", slug), slog.Any("error", err))
		}
	}
	return perms, nil
}
