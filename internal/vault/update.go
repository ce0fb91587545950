package vault

import (
	"context"

	"github.com/connkeep/connkeep/internal/secure"
	"github.com/connkeep/connkeep/pkg/backend"
)

// CredentialUpdate is a partial update applied to existing credentials,
// used for changing the username or password across a group of entries.
// Nil fields keep the existing value.
type CredentialUpdate struct {
	Username      *string
	Password      *secure.Secret
	Domain        *string
	ClearPassword bool
}

// NewCredentialUpdate creates an update with no changes.
func NewCredentialUpdate() *CredentialUpdate {
	return &CredentialUpdate{}
}

// WithUsername sets the new username.
func (u *CredentialUpdate) WithUsername(username string) *CredentialUpdate {
	u.Username = &username
	return u
}

// WithPassword sets the new password.
func (u *CredentialUpdate) WithPassword(password string) *CredentialUpdate {
	u.Password = secure.NewSecret(password)
	return u
}

// WithDomain sets the new domain.
func (u *CredentialUpdate) WithDomain(domain string) *CredentialUpdate {
	u.Domain = &domain
	return u
}

// WithClearPassword marks the password for removal.
func (u *CredentialUpdate) WithClearPassword() *CredentialUpdate {
	u.ClearPassword = true
	return u
}

// Apply merges the update into existing credentials, returning a new
// credential. The existing value is left untouched; the key passphrase
// always carries over.
func (u *CredentialUpdate) Apply(existing *backend.Credential) (*backend.Credential, error) {
	if existing == nil {
		existing = backend.Empty()
	}

	username := existing.Username
	if u.Username != nil {
		username = *u.Username
	}

	domain := existing.Domain
	if u.Domain != nil {
		domain = *u.Domain
	}

	password := ""
	switch {
	case u.ClearPassword:
		// stays empty
	case u.Password != nil && !u.Password.IsZero():
		revealed, err := u.Password.Reveal()
		if err != nil {
			return nil, err
		}
		password = revealed
	default:
		revealed, err := existing.Password.Reveal()
		if err != nil {
			return nil, err
		}
		password = revealed
	}

	passphrase, err := existing.KeyPassphrase.Reveal()
	if err != nil {
		return nil, err
	}

	return backend.New(username, password, domain, passphrase), nil
}

// UpdateBulk applies the same partial update to every key, reading the
// existing entry (missing entries start empty), merging, and storing the
// result.
func (m *Manager) UpdateBulk(ctx context.Context, lookupKeys []string, update *CredentialUpdate) *BulkResult {
	result := &BulkResult{}

	for _, key := range lookupKeys {
		existing, err := m.Retrieve(ctx, key)
		if err != nil {
			result.recordFailure(key, err)
			continue
		}

		updated, err := update.Apply(existing)
		if err != nil {
			result.recordFailure(key, err)
			continue
		}

		if err := m.Store(ctx, key, updated); err != nil {
			result.recordFailure(key, err)
			continue
		}
		result.recordSuccess()
	}

	return result
}
