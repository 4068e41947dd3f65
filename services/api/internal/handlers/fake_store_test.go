package handlers

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/AfshinJalili/rentabili/services/api/internal/storage"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// memStore backs handlers, tokens and authn in tests with the same
// sentinel errors as the Postgres store.
type memStore struct {
	mu           sync.Mutex
	users        map[uuid.UUID]*storage.User
	wallets      map[uuid.UUID]*storage.Wallet
	transactions map[uuid.UUID]*storage.Transaction
	tokens       map[string]*storage.RefreshToken
	tokenErr     error
}

func newMemStore() *memStore {
	return &memStore{
		users:        map[uuid.UUID]*storage.User{},
		wallets:      map[uuid.UUID]*storage.Wallet{},
		transactions: map[uuid.UUID]*storage.Transaction{},
		tokens:       map[string]*storage.RefreshToken{},
	}
}

func (m *memStore) CreateUser(_ context.Context, email, passwordHash, name string) (*storage.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return nil, storage.ErrConflict
		}
	}
	now := time.Now().UTC()
	u := &storage.User{ID: uuid.New(), Email: email, PasswordHash: passwordHash, Name: name, CreatedAt: now, UpdatedAt: now}
	m.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*storage.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *memStore) GetUserByID(_ context.Context, id uuid.UUID) (*storage.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) ListUsers(_ context.Context, _, _ int) ([]storage.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]storage.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (m *memStore) UpdateUser(_ context.Context, id uuid.UUID, name, email *string) (*storage.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if email != nil {
		for _, other := range m.users {
			if other.ID != id && other.Email == *email {
				return nil, storage.ErrConflict
			}
		}
		u.Email = *email
	}
	if name != nil {
		u.Name = *name
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) DeleteUser(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return storage.ErrNotFound
	}
	for _, w := range m.wallets {
		if w.UserID == id {
			return storage.ErrHasDependents
		}
	}
	delete(m.users, id)
	return nil
}

func (m *memStore) CreateWallet(_ context.Context, userID uuid.UUID, name, currency string) (*storage.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.wallets {
		if w.UserID == userID && w.Name == name {
			return nil, storage.ErrConflict
		}
	}
	now := time.Now().UTC()
	w := &storage.Wallet{ID: uuid.New(), UserID: userID, Name: name, Currency: currency, CreatedAt: now, UpdatedAt: now}
	m.wallets[w.ID] = w
	cp := *w
	return &cp, nil
}

func (m *memStore) ListWallets(_ context.Context, userID uuid.UUID) ([]storage.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.Wallet
	for _, w := range m.wallets {
		if w.UserID == userID {
			out = append(out, *w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) GetWallet(_ context.Context, userID, id uuid.UUID) (*storage.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[id]
	if !ok || w.UserID != userID {
		return nil, storage.ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (m *memStore) UpdateWallet(_ context.Context, userID, id uuid.UUID, name string) (*storage.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[id]
	if !ok || w.UserID != userID {
		return nil, storage.ErrNotFound
	}
	w.Name = name
	cp := *w
	return &cp, nil
}

func (m *memStore) DeleteWallet(_ context.Context, userID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[id]
	if !ok || w.UserID != userID {
		return storage.ErrNotFound
	}
	for _, tx := range m.transactions {
		if tx.WalletID == id {
			return storage.ErrHasDependents
		}
	}
	delete(m.wallets, id)
	return nil
}

func (m *memStore) WalletBalances(_ context.Context, userID uuid.UUID) ([]storage.WalletBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.WalletBalance
	for _, w := range m.wallets {
		if w.UserID != userID {
			continue
		}
		b := storage.WalletBalance{WalletID: w.ID, Name: w.Name, Currency: w.Currency, Balance: decimal.Zero}
		for _, tx := range m.transactions {
			if tx.WalletID != w.ID {
				continue
			}
			b.TxCount++
			if tx.Kind == storage.KindDeposit {
				b.Balance = b.Balance.Add(tx.Amount)
			} else {
				b.Balance = b.Balance.Sub(tx.Amount)
			}
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) CreateTransaction(_ context.Context, t storage.Transaction) (*storage.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[t.WalletID]
	if !ok || w.UserID != t.UserID {
		return nil, storage.ErrNotFound
	}
	t.ID = uuid.New()
	t.CreatedAt = time.Now().UTC()
	m.transactions[t.ID] = &t
	cp := t
	return &cp, nil
}

func (m *memStore) ListTransactions(_ context.Context, userID uuid.UUID, walletID *uuid.UUID, _ int) ([]storage.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.Transaction
	for _, tx := range m.transactions {
		if tx.UserID != userID || (walletID != nil && tx.WalletID != *walletID) {
			continue
		}
		out = append(out, *tx)
	}
	return out, nil
}

func (m *memStore) DeleteTransaction(_ context.Context, userID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.transactions[id]
	if !ok || tx.UserID != userID {
		return storage.ErrNotFound
	}
	delete(m.transactions, id)
	return nil
}

func (m *memStore) CreateRefreshToken(_ context.Context, token storage.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tokenErr != nil {
		return m.tokenErr
	}
	token.ID = uuid.New()
	m.tokens[token.TokenHash] = &token
	return nil
}

func (m *memStore) RotateRefreshToken(_ context.Context, oldHash string, next storage.RefreshToken, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tokenErr != nil {
		return m.tokenErr
	}
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
	if m.tokenErr != nil {
		return m.tokenErr
	}
	if t, ok := m.tokens[hash]; ok && !t.Revoked {
		t.Revoked = true
		t.RevokedAt = &now
	}
	return nil
}

var errStoreDown = errors.New("store down")
