package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ofircohen205/aura-sub001/apierr"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	issuer := NewTokenIssuer("super-secret", time.Minute, "aura-core")
	return NewStore(client, issuer, time.Hour)
}

func TestStoreCreateIssuesTokenPair(t *testing.T) {
	s := newTestStore(t)
	pair, err := s.Create(context.Background(), "tenant-1", "user-1")

	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, 1, pair.Session.Generation)
}

func TestStoreRefreshRotatesToken(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pair, err := s.Create(ctx, "tenant-1", "user-1")
	require.NoError(t, err)

	rotated, err := s.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)
	assert.Equal(t, 2, rotated.Session.Generation)
}

func TestStoreRefreshRejectsReuse(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pair, err := s.Create(ctx, "tenant-1", "user-1")
	require.NoError(t, err)

	_, err = s.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)

	_, err = s.Refresh(ctx, pair.RefreshToken)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRefreshReused)
	assert.Equal(t, apierr.KindAuthz, apierr.KindOf(err))
}

func TestStoreRevokeIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pair, err := s.Create(ctx, "tenant-1", "user-1")
	require.NoError(t, err)

	require.NoError(t, s.Revoke(ctx, pair.Session.ID))
	require.NoError(t, s.Revoke(ctx, pair.Session.ID))

	_, err = s.Refresh(ctx, pair.RefreshToken)
	require.Error(t, err)
}
