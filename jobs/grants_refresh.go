package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/guardpost/guardpost/internal/orgs"
)

// SlugLister enumerates organizations eligible for cache warmup.
type SlugLister interface {
	ListActiveSlugs(ctx context.Context) ([]string, error)
}

// NewGrantsRefreshHandler processes TaskGrantsRefresh tasks.
func NewGrantsRefreshHandler(cache *orgs.Cache, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload GrantsRefreshPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if payload.Slug == "" {
			return asynq.SkipRetry
		}
		if err := cache.Refresh(ctx, payload.Slug); err != nil {
			if logger != nil {
				logger.Warn("grants refresh", slog.String("slug", payload.Slug), slog.Any("error", err))
			}
			return err
		}
		return nil
	}
}

// NewGrantsWarmupHandler processes TaskGrantsWarmup tasks by refreshing
// every active organization. Individual failures are logged and skipped so
// one broken tenant does not starve the rest.
func NewGrantsWarmupHandler(repo SlugLister, cache *orgs.Cache, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		slugs, err := repo.ListActiveSlugs(ctx)
		if err != nil {
			return err
		}
		for _, slug := range slugs {
			if err := cache.Refresh(ctx, slug); err != nil && logger != nil {
				logger.Warn("grants warmup", slog.String("slug", slug), slog.Any("error", err))
			}
		}
		return nil
	}
}
