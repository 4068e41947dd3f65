package tokens

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/AfshinJalili/rentabili/services/api/internal/security"
	"github.com/AfshinJalili/rentabili/services/api/internal/storage"
	"github.com/AfshinJalili/rentabili/services/testutil"
	"github.com/google/uuid"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// memStore mirrors the conditional revoke of the Postgres store.
type memStore struct {
	mu        sync.Mutex
	tokens    map[string]*storage.RefreshToken
	createErr error
	revokeErr error
}

func newMemStore() *memStore {
	return &memStore{tokens: map[string]*storage.RefreshToken{}}
}

func (m *memStore) CreateRefreshToken(_ context.Context, token storage.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	token.ID = uuid.New()
	m.tokens[token.TokenHash] = &token
	return nil
}

func (m *memStore) RotateRefreshToken(_ context.Context, oldHash string, next storage.RefreshToken, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.tokens[oldHash]
	if !ok || old.Revoked || !old.ExpiresAt.After(now) || old.UserID != next.UserID {
		return storage.ErrTokenInactive
	}
	old.Revoked = true
	old.RevokedAt = &now
	next.ID = uuid.New()
	m.tokens[next.TokenHash] = &next
	return nil
}

func (m *memStore) RevokeRefreshToken(_ context.Context, hash string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.revokeErr != nil {
		return m.revokeErr
	}
	if t, ok := m.tokens[hash]; ok && !t.Revoked {
		t.Revoked = true
		t.RevokedAt = &now
	}
	return nil
}

func (m *memStore) get(token string) *storage.RefreshToken {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[security.HashToken(token)]
}

func newTestService(store Store) (*Service, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc := NewService(store, Config{
		Secret:     []byte("test-secret"),
		Issuer:     "rentabili",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
	})
	svc.Clock = clock
	return svc, clock
}

func TestIssueSessionPersistsRefreshToken(t *testing.T) {
	store := newMemStore()
	svc, clock := newTestService(store)
	userID := testutil.DemoUserID

	pair, err := svc.IssueSession(context.Background(), userID, Meta{IP: "10.0.0.1", UserAgent: "test"})
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}

	rec := store.get(pair.RefreshToken)
	if rec == nil {
		t.Fatalf("expected refresh token record")
	}
	if rec.UserID != userID || rec.Revoked || rec.CreatedIP != "10.0.0.1" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if !rec.ExpiresAt.Equal(clock.Now().Add(7 * 24 * time.Hour)) {
		t.Fatalf("unexpected expiry %v", rec.ExpiresAt)
	}

	got, err := svc.VerifyAccessToken(pair.AccessToken)
	if err != nil || got != userID {
		t.Fatalf("expected access token for %s, got %s (%v)", userID, got, err)
	}
	if _, err := svc.VerifyAccessToken(pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh token must not verify as access token")
	}
}

func TestTokensMintedTogetherAreDistinct(t *testing.T) {
	svc, _ := newTestService(newMemStore())
	userID := uuid.New()

	a, _, err := svc.IssueRefreshToken(userID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	b, _, err := svc.IssueRefreshToken(userID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct tokens in the same second")
	}
}

func TestRotateOnce(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	ctx := context.Background()

	first, err := svc.IssueSession(ctx, uuid.New(), Meta{})
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}

	second, err := svc.Rotate(ctx, first.RefreshToken, Meta{})
	if err != nil {
		t.Fatalf("first rotation: %v", err)
	}
	if second.UserID != first.UserID {
		t.Fatalf("rotation changed user")
	}
	if !store.get(first.RefreshToken).Revoked {
		t.Fatalf("expected old token revoked")
	}

	if _, err := svc.Rotate(ctx, first.RefreshToken, Meta{}); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken on second rotation, got %v", err)
	}

	if _, err := svc.Rotate(ctx, second.RefreshToken, Meta{}); err != nil {
		t.Fatalf("new token should rotate: %v", err)
	}
}

func TestRotateAfterRevoke(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	ctx := context.Background()

	pair, err := svc.IssueSession(ctx, uuid.New(), Meta{})
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}

	if err := svc.Revoke(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := svc.Revoke(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("second revoke should succeed: %v", err)
	}
	if err := svc.Revoke(ctx, "never-issued"); err != nil {
		t.Fatalf("unknown token revoke should succeed: %v", err)
	}

	if _, err := svc.Rotate(ctx, pair.RefreshToken, Meta{}); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after logout, got %v", err)
	}
}

func TestRotateExpired(t *testing.T) {
	store := newMemStore()
	svc, clock := newTestService(store)
	ctx := context.Background()

	pair, err := svc.IssueSession(ctx, uuid.New(), Meta{})
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}

	clock.Advance(7*24*time.Hour + time.Second)
	if _, err := svc.Rotate(ctx, pair.RefreshToken, Meta{}); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
	if store.get(pair.RefreshToken).Revoked {
		t.Fatalf("expired token must not be touched")
	}
}

func TestRotateRejectsForeignAndUnpersistedTokens(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	ctx := context.Background()
	userID := uuid.New()

	unpersisted, _, err := svc.IssueRefreshToken(userID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := svc.Rotate(ctx, unpersisted, Meta{}); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for unpersisted token, got %v", err)
	}

	access, _, err := svc.IssueAccessToken(userID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := svc.Rotate(ctx, access, Meta{}); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for access token, got %v", err)
	}

	forged, err := testutil.GenerateJWT(userID, "refresh", []byte("other-secret"), time.Hour, time.Now())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := svc.Rotate(ctx, forged, Meta{}); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for forged token, got %v", err)
	}

	if _, err := svc.Rotate(ctx, "garbage", Meta{}); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for garbage, got %v", err)
	}
}

func TestConcurrentRotationHasOneWinner(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	ctx := context.Background()

	pair, err := svc.IssueSession(ctx, uuid.New(), Meta{})
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.Rotate(ctx, pair.RefreshToken, Meta{})
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	var winners int
	for err := range errs {
		switch {
		case err == nil:
			winners++
		case !errors.Is(err, ErrInvalidToken):
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
}

func TestIssueSessionPersistenceFailure(t *testing.T) {
	store := newMemStore()
	store.createErr = errors.New("db down")
	svc, _ := newTestService(store)

	pair, err := svc.IssueSession(context.Background(), uuid.New(), Meta{})
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if pair != nil {
		t.Fatalf("no pair may be returned on persistence failure")
	}
}

func TestRevokeStoreError(t *testing.T) {
	store := newMemStore()
	store.revokeErr = errors.New("db down")
	svc, _ := newTestService(store)

	if err := svc.Revoke(context.Background(), "token"); err == nil {
		t.Fatalf("expected store error to surface")
	}
}
