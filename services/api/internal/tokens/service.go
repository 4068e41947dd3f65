package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AfshinJalili/rentabili/libs/auth"
	"github.com/AfshinJalili/rentabili/services/api/internal/security"
	"github.com/AfshinJalili/rentabili/services/api/internal/storage"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken covers bad signatures, expiry, wrong token type and
	// refresh tokens that are unknown, revoked or already rotated.
	ErrInvalidToken = errors.New("invalid or revoked token")
	// ErrPersistence means the refresh token store failed; no token may be
	// handed out.
	ErrPersistence = errors.New("token persistence failed")
)

type Store interface {
	CreateRefreshToken(ctx context.Context, token storage.RefreshToken) error
	RotateRefreshToken(ctx context.Context, oldHash string, next storage.RefreshToken, now time.Time) error
	RevokeRefreshToken(ctx context.Context, hash string, now time.Time) error
}

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type Config struct {
	Secret     []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Meta is recorded on each persisted refresh token.
type Meta struct {
	IP        string
	UserAgent string
}

type Pair struct {
	UserID           uuid.UUID
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

type Service struct {
	Store  Store
	Config Config
	Clock  Clock
}

func NewService(store Store, cfg Config) *Service {
	return &Service{Store: store, Config: cfg, Clock: systemClock{}}
}

func (s *Service) sign(userID uuid.UUID, tokenType string, ttl time.Duration, now time.Time) (string, time.Time, error) {
	expires := now.Add(ttl)
	claims := auth.Claims{
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID.String(),
			Issuer:    s.Config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Config.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", tokenType, err)
	}
	return signed, expires, nil
}

func (s *Service) IssueAccessToken(userID uuid.UUID) (string, time.Time, error) {
	return s.sign(userID, auth.TokenTypeAccess, s.Config.AccessTTL, s.Clock.Now())
}

// IssueRefreshToken signs a refresh token without persisting it. A token
// that never went through PersistRefreshToken cannot be rotated.
func (s *Service) IssueRefreshToken(userID uuid.UUID) (string, time.Time, error) {
	return s.sign(userID, auth.TokenTypeRefresh, s.Config.RefreshTTL, s.Clock.Now())
}

func (s *Service) PersistRefreshToken(ctx context.Context, token string, userID uuid.UUID, meta Meta) error {
	record := storage.RefreshToken{
		UserID:    userID,
		TokenHash: security.HashToken(token),
		ExpiresAt: s.Clock.Now().Add(s.Config.RefreshTTL),
		CreatedIP: meta.IP,
		UserAgent: meta.UserAgent,
	}
	if err := s.Store.CreateRefreshToken(ctx, record); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}

// IssueSession mints an access/refresh pair and persists the refresh token.
func (s *Service) IssueSession(ctx context.Context, userID uuid.UUID, meta Meta) (*Pair, error) {
	pair, err := s.newPair(userID, s.Clock.Now())
	if err != nil {
		return nil, err
	}
	if err := s.PersistRefreshToken(ctx, pair.RefreshToken, userID, meta); err != nil {
		return nil, err
	}
	return pair, nil
}

// Rotate exchanges a live refresh token for a new pair. The presented token
// is revoked in the same transaction that stores its replacement, so each
// refresh token rotates at most once.
func (s *Service) Rotate(ctx context.Context, refreshToken string, meta Meta) (*Pair, error) {
	now := s.Clock.Now()
	userID, err := s.verify(refreshToken, auth.TokenTypeRefresh, now)
	if err != nil {
		return nil, err
	}

	pair, err := s.newPair(userID, now)
	if err != nil {
		return nil, err
	}

	next := storage.RefreshToken{
		UserID:    userID,
		TokenHash: security.HashToken(pair.RefreshToken),
		ExpiresAt: pair.RefreshExpiresAt,
		CreatedIP: meta.IP,
		UserAgent: meta.UserAgent,
	}
	err = s.Store.RotateRefreshToken(ctx, security.HashToken(refreshToken), next, now)
	switch {
	case errors.Is(err, storage.ErrTokenInactive):
		return nil, ErrInvalidToken
	case err != nil:
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return pair, nil
}

// Revoke is idempotent: unknown and already revoked tokens succeed.
func (s *Service) Revoke(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	if err := s.Store.RevokeRefreshToken(ctx, security.HashToken(refreshToken), s.Clock.Now()); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

func (s *Service) VerifyAccessToken(token string) (uuid.UUID, error) {
	return s.verify(token, auth.TokenTypeAccess, s.Clock.Now())
}

// ParserOptions are the options the HTTP gate needs to agree with this
// service on issuer and time.
func (s *Service) ParserOptions() []jwt.ParserOption {
	opts := []jwt.ParserOption{jwt.WithTimeFunc(s.Clock.Now)}
	if s.Config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.Config.Issuer))
	}
	return opts
}

func (s *Service) verify(token, tokenType string, now time.Time) (uuid.UUID, error) {
	opts := []jwt.ParserOption{jwt.WithTimeFunc(func() time.Time { return now })}
	if s.Config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.Config.Issuer))
	}
	claims, err := auth.ParseTyped(token, s.Config.Secret, tokenType, opts...)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return userID, nil
}

func (s *Service) newPair(userID uuid.UUID, now time.Time) (*Pair, error) {
	access, accessExp, err := s.sign(userID, auth.TokenTypeAccess, s.Config.AccessTTL, now)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := s.sign(userID, auth.TokenTypeRefresh, s.Config.RefreshTTL, now)
	if err != nil {
		return nil, err
	}
	return &Pair{
		UserID:           userID,
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}
