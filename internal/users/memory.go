package users

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/devcoons/software-governance-sub000/internal/models"
)

var ErrNotFound = errors.New("user not found")

// MemoryRepository is an in-memory user directory used for unit tests and
// local development without MongoDB.
type MemoryRepository struct {
	mu    sync.RWMutex
	store map[string]*models.User
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{store: make(map[string]*models.User)}
}

func (m *MemoryRepository) Create(ctx context.Context, u *models.User) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	// login matching is lowercase, so identifiers are stored lowercase
	u.Username = strings.ToLower(strings.TrimSpace(u.Username))
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	cp := *u
	m.store[u.ID] = &cp
	return u, nil
}

func (m *MemoryRepository) FindByLogin(ctx context.Context, identifier string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ident := strings.ToLower(strings.TrimSpace(identifier))
	for _, u := range m.store {
		if u.Email == ident || u.Username == ident {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemoryRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.store[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryRepository) UpdatePassword(ctx context.Context, id, hash string) error {
	return m.mutate(id, func(u *models.User) {
		u.PasswordHash = hash
		u.ForcePasswordChange = false
		u.TempPasswordIssuedAt = nil
	})
}

func (m *MemoryRepository) IssueTempPassword(ctx context.Context, id, hash string) error {
	now := time.Now().UTC()
	return m.mutate(id, func(u *models.User) {
		u.PasswordHash = hash
		u.ForcePasswordChange = true
		u.TempPasswordIssuedAt = &now
	})
}

func (m *MemoryRepository) BurnTemporaryPassword(ctx context.Context, id, unusableHash string) error {
	return m.mutate(id, func(u *models.User) {
		u.PasswordHash = unusableHash
		u.TempPasswordIssuedAt = nil
	})
}

func (m *MemoryRepository) UpdateLastLogin(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return m.mutate(id, func(u *models.User) {
		u.LastLoginAt = &now
	})
}

func (m *MemoryRepository) SetTotpEnabled(ctx context.Context, id string) error {
	return m.mutate(id, func(u *models.User) {
		u.TotpEnabled = true
	})
}

func (m *MemoryRepository) GetTotpSecret(ctx context.Context, id string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.store[id]
	if !ok {
		return "", nil
	}
	return u.TotpSecret, nil
}

func (m *MemoryRepository) UpsertTotpSecret(ctx context.Context, id, secret string) error {
	return m.mutate(id, func(u *models.User) {
		u.TotpSecret = secret
	})
}

func (m *MemoryRepository) mutate(id string, fn func(*models.User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.store[id]
	if !ok {
		return ErrNotFound
	}
	fn(u)
	u.UpdatedAt = time.Now().UTC()
	return nil
}
