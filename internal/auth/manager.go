package auth

import (
	"context"
	"time"

	"scriptd/internal/errors"
	"scriptd/internal/logging"
	"scriptd/internal/storage"
)

// Actor is the authenticated principal attached to a request
type Actor struct {
	UserID string
	Role   string
}

// IsAdmin reports whether the actor has the admin role
func (a *Actor) IsAdmin() bool {
	return a.Role == storage.RoleAdmin
}

// Manager handles API key authentication against the main store
type Manager struct {
	db     *storage.DB
	keys   *KeyStore
	users  *storage.UserRepository
	logger *logging.Logger
}

// NewManager creates a new auth manager
func NewManager(db *storage.DB, logger *logging.Logger) *Manager {
	return &Manager{
		db:     db,
		keys:   NewKeyStore(db, logger),
		users:  storage.NewUserRepository(db),
		logger: logger,
	}
}

// Issue creates a new API key for a user. The raw token is returned once
// and never stored.
func (m *Manager) Issue(ctx context.Context, userID string) (*storage.APIKey, string, error) {
	user, err := m.users.Get(m.db, userID)
	if err != nil {
		return nil, "", errors.Wrap(errors.StoreFailure, "failed to look up user", err)
	}
	if user == nil {
		return nil, "", errors.New(errors.NotFound, "user not found")
	}

	keyID, err := GenerateKeyID()
	if err != nil {
		return nil, "", errors.Wrap(errors.Internal, "failed to generate key ID", err)
	}
	token, prefix, err := GenerateToken()
	if err != nil {
		return nil, "", errors.Wrap(errors.Internal, "failed to generate token", err)
	}
	hash, err := HashToken(token)
	if err != nil {
		return nil, "", errors.Wrap(errors.Internal, "failed to hash token", err)
	}

	key := &storage.APIKey{
		KeyID:       keyID,
		TokenPrefix: prefix,
		TokenHash:   hash,
		UserID:      userID,
		CreatedAt:   time.Now().UTC(),
	}
	if err := m.keys.Save(key); err != nil {
		return nil, "", err
	}

	m.logger.Info("API key issued", map[string]interface{}{
		"key_id":  keyID,
		"user_id": userID,
	})

	return key, token, nil
}

// Authenticate resolves a bearer token to its owning user. Returns a
// NotAuthorized error for unknown, revoked, or malformed tokens.
func (m *Manager) Authenticate(ctx context.Context, token string) (*Actor, error) {
	if !IsValidTokenFormat(token) {
		return nil, errors.New(errors.NotAuthorized, "invalid API token")
	}

	candidates, err := m.keys.FindByPrefix(ExtractTokenPrefix(token))
	if err != nil {
		return nil, errors.Wrap(errors.StoreFailure, "failed to look up API key", err)
	}

	for _, key := range candidates {
		if key.RevokedAt != nil {
			continue
		}
		if !VerifyToken(token, key.TokenHash) {
			continue
		}

		user, err := m.users.Get(m.db, key.UserID)
		if err != nil {
			return nil, errors.Wrap(errors.StoreFailure, "failed to look up user", err)
		}
		if user == nil {
			// Key survived its user somehow; treat as unauthorized
			return nil, errors.New(errors.NotAuthorized, "invalid API token")
		}

		if err := m.keys.TouchLastUsed(key.KeyID); err != nil {
			m.logger.Warn("Failed to record key use", map[string]interface{}{
				"key_id": key.KeyID,
				"error":  err.Error(),
			})
		}

		return &Actor{UserID: user.ID, Role: user.Role}, nil
	}

	return nil, errors.New(errors.NotAuthorized, "invalid API token")
}

// Revoke permanently disables an API key
func (m *Manager) Revoke(ctx context.Context, keyID string) error {
	if err := m.keys.Revoke(keyID); err != nil {
		return err
	}

	m.logger.Info("API key revoked", map[string]interface{}{
		"key_id": keyID,
	})
	return nil
}

// ListKeys returns a user's API keys, hashes omitted by the model's JSON tags
func (m *Manager) ListKeys(ctx context.Context, userID string) ([]*storage.APIKey, error) {
	return m.keys.ListByUser(userID)
}
