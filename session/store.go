package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ofircohen205/aura-sub001/apierr"
)

// Session is the durable record behind an issued token pair. Generation
// increments on every successful rotation.
type Session struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	UserID     string    `json:"user_id"`
	Generation int       `json:"generation"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Store is the Redis-backed session half of the Session & Quota Store.
// Refresh tokens are single-use: Refresh atomically consumes the
// presented token (via GETDEL) before validating it, so a token can never
// be redeemed twice even under concurrent requests racing on the same
// value — the second racer simply observes no key and fails closed.
type Store struct {
	client     *redis.Client
	issuer     *TokenIssuer
	refreshTTL time.Duration
	prefix     string
}

// NewStore creates a Store. client is expected to already be connected
// (callers share one *redis.Client across session/quota/resultstore).
func NewStore(client *redis.Client, issuer *TokenIssuer, refreshTTL time.Duration) *Store {
	return &Store{client: client, issuer: issuer, refreshTTL: refreshTTL, prefix: "session:"}
}

func digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (s *Store) refreshKey(d string) string { return s.prefix + "refresh:" + d }
func (s *Store) activeKey(id string) string { return s.prefix + "active:" + id }

// TokenPair is what callers hand back to a client after login or rotation.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	Session          Session
}

func (s *Store) persist(ctx context.Context, sess Session, refreshToken string) error {
	d := digest(refreshToken)
	data, err := json.Marshal(sess)
	if err != nil {
		return apierr.Internal(fmt.Errorf("marshal session: %w", err))
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.refreshKey(d), data, s.refreshTTL)
	pipe.Set(ctx, s.activeKey(sess.ID), d, s.refreshTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return apierr.Wrap(apierr.KindTransient, "persist session", err)
	}
	return nil
}

// Create issues a fresh session for (tenantID, userID) and returns the
// first token pair.
func (s *Store) Create(ctx context.Context, tenantID, userID string) (*TokenPair, error) {
	now := time.Now()
	sess := Session{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		UserID:     userID,
		Generation: 1,
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.refreshTTL),
	}

	refreshToken, err := newOpaqueToken()
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("generate refresh token: %w", err))
	}
	if err := s.persist(ctx, sess, refreshToken); err != nil {
		return nil, err
	}

	accessToken, accessExpiry, err := s.issuer.IssueAccessToken(tenantID, userID, sess.ID)
	if err != nil {
		return nil, apierr.Internal(err)
	}

	return &TokenPair{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExpiry,
		RefreshToken:      refreshToken,
		RefreshExpiresAt: sess.ExpiresAt,
		Session:          sess,
	}, nil
}

// Refresh atomically consumes refreshToken and, if it was live and
// unexpired, issues a new token pair bound to the same session with
// Generation incremented. Any reuse — including two concurrent calls with
// the same token — surfaces apierr.KindAuthz on the loser.
func (s *Store) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	d := digest(refreshToken)
	raw, err := s.client.GetDel(ctx, s.refreshKey(d)).Bytes()
	if err == redis.Nil {
		return nil, apierr.Wrap(apierr.KindAuthz, "refresh token invalid or already used", ErrRefreshReused)
	}
	if err != nil {
		return nil, apierr.Wrap(apierr.KindTransient, "read refresh token", err)
	}

	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, apierr.Internal(fmt.Errorf("unmarshal session: %w", err))
	}
	if time.Now().After(sess.ExpiresAt) {
		return nil, apierr.New(apierr.KindAuthz, "session expired")
	}

	sess.Generation++
	sess.IssuedAt = time.Now()
	sess.ExpiresAt = sess.IssuedAt.Add(s.refreshTTL)

	newRefresh, err := newOpaqueToken()
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("generate refresh token: %w", err))
	}
	if err := s.persist(ctx, sess, newRefresh); err != nil {
		return nil, err
	}

	accessToken, accessExpiry, err := s.issuer.IssueAccessToken(sess.TenantID, sess.UserID, sess.ID)
	if err != nil {
		return nil, apierr.Internal(err)
	}

	return &TokenPair{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExpiry,
		RefreshToken:      newRefresh,
		RefreshExpiresAt: sess.ExpiresAt,
		Session:          sess,
	}, nil
}

// Revoke invalidates sessionID's current refresh token, e.g. on logout.
func (s *Store) Revoke(ctx context.Context, sessionID string) error {
	d, err := s.client.GetDel(ctx, s.activeKey(sessionID)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return apierr.Wrap(apierr.KindTransient, "revoke session", err)
	}
	if err := s.client.Del(ctx, s.refreshKey(d)).Err(); err != nil {
		return apierr.Wrap(apierr.KindTransient, "revoke session", err)
	}
	return nil
}
