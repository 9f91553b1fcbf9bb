package orgs

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type countingGrantLister struct {
	grants map[string][]string
	calls  int
}

func (l *countingGrantLister) GrantNamesBySlug(ctx context.Context, slug string) ([]string, error) {
	l.calls++
	perms, ok := l.grants[slug]
	if !ok {
		return nil, ErrNotFound
	}
	return perms, nil
}

func newTestCache(t *testing.T, lister GrantLister) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewCache(client, lister, time.Minute, nil, nil)
}

func TestGrantsMissThenHit(t *testing.T) {
	lister := &countingGrantLister{grants: map[string][]string{
		"acme": {"billing.view", "reports.view"},
	}}
	cache := newTestCache(t, lister)

	set, err := cache.Grants(context.Background(), "acme")
	require.NoError(t, err)
	require.True(t, set.Has("billing.view"))
	require.True(t, set.Has("reports.view"))
	require.Equal(t, 1, lister.calls)

	// Second read is served from Redis.
	set, err = cache.Grants(context.Background(), "ACME")
	require.NoError(t, err)
	require.True(t, set.Has("billing.view"))
	require.Equal(t, 1, lister.calls)
}

func TestGrantsUnknownOrgYieldsEmptySet(t *testing.T) {
	lister := &countingGrantLister{grants: map[string][]string{}}
	cache := newTestCache(t, lister)

	set, err := cache.Grants(context.Background(), "ghost")
	require.NoError(t, err)
	require.Empty(t, set.Slice())
	require.Equal(t, 1, lister.calls)

	// The empty set is cached too.
	set, err = cache.Grants(context.Background(), "ghost")
	require.NoError(t, err)
	require.Empty(t, set.Slice())
	require.Equal(t, 1, lister.calls)
}

func TestGrantsEmptySlug(t *testing.T) {
	lister := &countingGrantLister{}
	cache := newTestCache(t, lister)

	set, err := cache.Grants(context.Background(), "  ")
	require.NoError(t, err)
	require.Empty(t, set.Slice())
	require.Zero(t, lister.calls)
}

func TestRefreshRebuildsEntry(t *testing.T) {
	lister := &countingGrantLister{grants: map[string][]string{
		"acme": {"billing.view"},
	}}
	cache := newTestCache(t, lister)

	set, err := cache.Grants(context.Background(), "acme")
	require.NoError(t, err)
	require.False(t, set.Has("billing.edit"))

	lister.grants["acme"] = []string{"billing.view", "billing.edit"}
	require.NoError(t, cache.Refresh(context.Background(), "acme"))

	set, err = cache.Grants(context.Background(), "acme")
	require.NoError(t, err)
	require.True(t, set.Has("billing.edit"))
}

func TestInvalidateDropsEntry(t *testing.T) {
	lister := &countingGrantLister{grants: map[string][]string{
		"acme": {"billing.view"},
	}}
	cache := newTestCache(t, lister)

	_, err := cache.Grants(context.Background(), "acme")
	require.NoError(t, err)
	require.Equal(t, 1, lister.calls)

	require.NoError(t, cache.Invalidate(context.Background(), "acme"))

	_, err = cache.Grants(context.Background(), "acme")
	require.NoError(t, err)
	require.Equal(t, 2, lister.calls)
}
