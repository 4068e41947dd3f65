package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func (s *Store) CreateRefreshToken(ctx context.Context, token RefreshToken) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO refresh_tokens (user_id, token_hash, expires_at, created_at, created_ip, user_agent)
		VALUES ($1, $2, $3, now(), $4, $5)
	`, token.UserID, token.TokenHash, token.ExpiresAt, token.CreatedIP, token.UserAgent)
	return translate(err)
}

// RotateRefreshToken inserts next and revokes the token identified by
// oldHash in one transaction. The revoke only matches an unrevoked,
// unexpired row, so concurrent rotations of the same token serialise on
// the row lock and at most one of them commits. Returns ErrTokenInactive
// when nothing matched.
func (s *Store) RotateRefreshToken(ctx context.Context, oldHash string, next RefreshToken, now time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var oldUserID uuid.UUID
	err = tx.QueryRow(ctx, `
		UPDATE refresh_tokens
		SET revoked = true, revoked_at = $2
		WHERE token_hash = $1 AND NOT revoked AND expires_at > $2
		RETURNING user_id
	`, oldHash, now).Scan(&oldUserID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrTokenInactive
	}
	if err != nil {
		return err
	}
	if oldUserID != next.UserID {
		return ErrTokenInactive
	}

	var newID uuid.UUID
	if err := tx.QueryRow(ctx, `
		INSERT INTO refresh_tokens (user_id, token_hash, expires_at, created_at, created_ip, user_agent)
		VALUES ($1, $2, $3, now(), $4, $5)
		RETURNING id
	`, next.UserID, next.TokenHash, next.ExpiresAt, next.CreatedIP, next.UserAgent).Scan(&newID); err != nil {
		return translate(err)
	}

	if _, err := tx.Exec(ctx, `UPDATE refresh_tokens SET replaced_by = $2 WHERE token_hash = $1`, oldHash, newID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// RevokeRefreshToken marks the token revoked. Unknown or already revoked
// tokens are not an error.
func (s *Store) RevokeRefreshToken(ctx context.Context, hash string, now time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked = true, revoked_at = $2
		WHERE token_hash = $1 AND NOT revoked
	`, hash, now)
	return err
}

func (s *Store) GetRefreshTokenByHash(ctx context.Context, hash string) (*RefreshToken, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, token_hash, expires_at, revoked, revoked_at, created_ip, user_agent
		FROM refresh_tokens
		WHERE token_hash = $1
	`, hash)

	var t RefreshToken
	if err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.Revoked, &t.RevokedAt, &t.CreatedIP, &t.UserAgent); err != nil {
		return nil, translate(err)
	}
	return &t, nil
}
