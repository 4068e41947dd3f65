package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/argon2"
)

var (
	demoUserID    = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	savingsWallet = uuid.MustParse("10000000-0000-0000-0000-000000000001")
	brokerWallet  = uuid.MustParse("10000000-0000-0000-0000-000000000002")
)

func main() {
	_ = godotenv.Load()

	env := getEnv("RENTABILI_ENV", "dev")
	if env != "dev" && env != "test" {
		log.Fatalf("refusing to seed: RENTABILI_ENV must be 'dev' or 'test' (got '%s')", env)
	}

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		getEnv("POSTGRES_USER", "rentabili"),
		getEnv("POSTGRES_PASSWORD", "rentabili"),
		getEnv("POSTGRES_HOST", "localhost"),
		getEnv("POSTGRES_PORT", "5432"),
		getEnv("POSTGRES_DB", "rentabili"),
		getEnv("POSTGRES_SSLMODE", "disable"),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("connect db: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("ping db: %v", err)
	}

	fmt.Println("Seeding database...")

	if err := seedUsers(ctx, pool); err != nil {
		log.Fatalf("seed users: %v", err)
	}
	fmt.Println("✓ Users seeded")

	if err := seedWallets(ctx, pool); err != nil {
		log.Fatalf("seed wallets: %v", err)
	}
	fmt.Println("✓ Wallets seeded")

	if os.Getenv("SEED_TESTDATA") == "1" {
		if err := seedTransactions(ctx, pool); err != nil {
			log.Fatalf("seed transactions: %v", err)
		}
		fmt.Println("✓ Transactions seeded")
	}

	fmt.Println("\n=== Seed Complete ===")
	fmt.Println("\nDemo Credentials:")
	fmt.Println("  Email: demo@rentabili.dev")
	fmt.Println("  Password: demo12345")
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

type argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// hashPassword produces the same encoding the API verifies.
func hashPassword(password string, params argon2Params) (string, error) {
	salt := make([]byte, params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, params.Memory, params.Iterations, params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

func seedUsers(ctx context.Context, pool *pgxpool.Pool) error {
	hash, err := hashPassword("demo12345", argon2Params{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (email) DO UPDATE
		SET password_hash = EXCLUDED.password_hash, name = EXCLUDED.name, updated_at = now()
	`, demoUserID, "demo@rentabili.dev", hash, "Demo")
	return err
}

func seedWallets(ctx context.Context, pool *pgxpool.Pool) error {
	wallets := []struct {
		id       uuid.UUID
		name     string
		currency string
	}{
		{savingsWallet, "Savings", "BRL"},
		{brokerWallet, "Broker", "USD"},
	}

	for _, w := range wallets {
		if _, err := pool.Exec(ctx, `
			INSERT INTO wallets (id, user_id, name, currency, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
			ON CONFLICT (id) DO NOTHING
		`, w.id, demoUserID, w.name, w.currency); err != nil {
			return fmt.Errorf("wallet %s: %w", w.name, err)
		}
	}
	return nil
}
