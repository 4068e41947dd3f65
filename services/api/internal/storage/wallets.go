package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const walletColumns = `id, user_id, name, currency, created_at, updated_at`

func scanWallet(row rowScanner) (*Wallet, error) {
	var w Wallet
	if err := row.Scan(&w.ID, &w.UserID, &w.Name, &w.Currency, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, translate(err)
	}
	return &w, nil
}

func (s *Store) CreateWallet(ctx context.Context, userID uuid.UUID, name, currency string) (*Wallet, error) {
	return scanWallet(s.pool.QueryRow(ctx, `
		INSERT INTO wallets (user_id, name, currency, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		RETURNING `+walletColumns, userID, name, currency))
}

func (s *Store) ListWallets(ctx context.Context, userID uuid.UUID) ([]Wallet, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+walletColumns+`
		FROM wallets
		WHERE user_id = $1
		ORDER BY created_at, id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	wallets := []Wallet{}
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, *w)
	}
	return wallets, rows.Err()
}

// GetWallet only returns wallets owned by userID; anything else is ErrNotFound.
func (s *Store) GetWallet(ctx context.Context, userID, id uuid.UUID) (*Wallet, error) {
	return scanWallet(s.pool.QueryRow(ctx, `
		SELECT `+walletColumns+` FROM wallets WHERE id = $1 AND user_id = $2
	`, id, userID))
}

func (s *Store) UpdateWallet(ctx context.Context, userID, id uuid.UUID, name string) (*Wallet, error) {
	return scanWallet(s.pool.QueryRow(ctx, `
		UPDATE wallets
		SET name = $3, updated_at = now()
		WHERE id = $1 AND user_id = $2
		RETURNING `+walletColumns, id, userID, name))
}

func (s *Store) DeleteWallet(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM wallets WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// WalletBalances returns every wallet of the user with deposits minus
// withdrawals. Wallets without transactions have a zero balance.
func (s *Store) WalletBalances(ctx context.Context, userID uuid.UUID) ([]WalletBalance, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT w.id, w.name, w.currency,
		       COALESCE(SUM(CASE WHEN t.kind = 'deposit' THEN t.amount ELSE -t.amount END), 0)::text,
		       COUNT(t.id)
		FROM wallets w
		LEFT JOIN transactions t ON t.wallet_id = w.id
		WHERE w.user_id = $1
		GROUP BY w.id, w.name, w.currency, w.created_at
		ORDER BY w.created_at, w.id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	balances := []WalletBalance{}
	for rows.Next() {
		var b WalletBalance
		var raw string
		if err := rows.Scan(&b.WalletID, &b.Name, &b.Currency, &raw, &b.TxCount); err != nil {
			return nil, err
		}
		if b.Balance, err = decimal.NewFromString(raw); err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}
