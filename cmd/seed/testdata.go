package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// seedTransactions gives the demo wallets a few months of history so the
// dashboard has something to aggregate.
func seedTransactions(ctx context.Context, pool *pgxpool.Pool) error {
	start := time.Now().UTC().AddDate(0, -3, 0)
	rows := []struct {
		id     uuid.UUID
		wallet uuid.UUID
		kind   string
		amount string
		desc   string
		at     time.Time
	}{
		{uuid.MustParse("20000000-0000-0000-0000-000000000001"), savingsWallet, "deposit", "5000.00", "initial deposit", start},
		{uuid.MustParse("20000000-0000-0000-0000-000000000002"), savingsWallet, "withdrawal", "750.50", "rent", start.AddDate(0, 1, 0)},
		{uuid.MustParse("20000000-0000-0000-0000-000000000003"), brokerWallet, "deposit", "1200.00", "transfer in", start.AddDate(0, 1, 5)},
		{uuid.MustParse("20000000-0000-0000-0000-000000000004"), brokerWallet, "deposit", "300.25", "dividends", start.AddDate(0, 2, 0)},
	}

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO transactions (id, wallet_id, user_id, kind, amount, description, occurred_at, created_at)
			VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, now())
			ON CONFLICT (id) DO NOTHING
		`, r.id, r.wallet, demoUserID, r.kind, decimal.RequireFromString(r.amount).String(), r.desc, r.at)
	}

	results := pool.SendBatch(ctx, batch)
	defer results.Close()
	for _, r := range rows {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("transaction %s: %w", r.id, err)
		}
	}
	return nil
}
