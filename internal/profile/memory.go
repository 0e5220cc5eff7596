package profile

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore is an in-memory Store for tests and development.
type MemoryStore struct {
	mu    sync.Mutex
	users map[int64]*UserProfile

	// FailReads makes GetUserProfile return the error.
	FailReads error
	// Reads counts GetUserProfile calls.
	Reads int
}

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[int64]*UserProfile)}
}

// Put replaces the stored profile for p.ID.
func (m *MemoryStore) Put(p UserProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := p.Clone()
	m.users[p.ID] = &cp
}

func (m *MemoryStore) GetUserProfile(_ context.Context, userID int64) (UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Reads++
	if m.FailReads != nil {
		return UserProfile{}, m.FailReads
	}
	p, ok := m.users[userID]
	if !ok {
		return UserProfile{}, ErrNotFound
	}
	return p.Clone(), nil
}

func (m *MemoryStore) EnsureUser(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; !ok {
		m.users[userID] = &UserProfile{ID: userID}
	}
	return nil
}

func (m *MemoryStore) SetTermsAccepted(_ context.Context, userID int64, accepted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	p.TermsAccepted = accepted
	return nil
}

func (m *MemoryStore) AddWallet(_ context.Context, userID int64, w Wallet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	p.Wallets = append(p.Wallets, w)
	return nil
}

func (m *MemoryStore) RemoveWallet(_ context.Context, userID int64, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	kept := p.Wallets[:0]
	for _, w := range p.Wallets {
		if !strings.EqualFold(w.Address, address) {
			kept = append(kept, w)
		}
	}
	p.Wallets = kept
	return nil
}

func (m *MemoryStore) SaveSettings(_ context.Context, userID int64, s Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	p.Settings = &s
	return nil
}
