package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const transactionColumns = `id, wallet_id, user_id, kind, amount::text, description, occurred_at, created_at`

func scanTransaction(row rowScanner) (*Transaction, error) {
	var t Transaction
	var amount string
	if err := row.Scan(&t.ID, &t.WalletID, &t.UserID, &t.Kind, &amount, &t.Description, &t.OccurredAt, &t.CreatedAt); err != nil {
		return nil, translate(err)
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	t.Amount = d
	return &t, nil
}

// CreateTransaction inserts t only when its wallet belongs to t.UserID;
// otherwise ErrNotFound.
func (s *Store) CreateTransaction(ctx context.Context, t Transaction) (*Transaction, error) {
	return scanTransaction(s.pool.QueryRow(ctx, `
		INSERT INTO transactions (wallet_id, user_id, kind, amount, description, occurred_at, created_at)
		SELECT w.id, w.user_id, $3, $4::numeric, $5, $6, now()
		FROM wallets w
		WHERE w.id = $1 AND w.user_id = $2
		RETURNING `+transactionColumns,
		t.WalletID, t.UserID, t.Kind, t.Amount.String(), t.Description, t.OccurredAt))
}

func (s *Store) ListTransactions(ctx context.Context, userID uuid.UUID, walletID *uuid.UUID, limit int) ([]Transaction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE user_id = $1 AND ($2::uuid IS NULL OR wallet_id = $2)
		ORDER BY occurred_at DESC, id
		LIMIT $3
	`, userID, walletID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *t)
	}
	return items, rows.Err()
}

func (s *Store) DeleteTransaction(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM transactions WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
