package backend

import (
	"encoding/json"
	"fmt"

	"github.com/connkeep/connkeep/internal/secure"
)

// Credential is the value stored in and retrieved from secret backends.
// The password and key passphrase live in protected memory and are wiped
// by Zeroize; they never format into logs.
type Credential struct {
	Username      string
	Password      *secure.Secret
	Domain        string
	KeyPassphrase *secure.Secret
}

// Empty returns a credential with no fields set.
func Empty() *Credential {
	return &Credential{}
}

// New builds a credential from plaintext parts, sealing the secret fields.
func New(username, password, domain, keyPassphrase string) *Credential {
	return &Credential{
		Username:      username,
		Password:      secure.NewSecret(password),
		Domain:        domain,
		KeyPassphrase: secure.NewSecret(keyPassphrase),
	}
}

// IsEmpty reports whether the credential carries no information.
func (c *Credential) IsEmpty() bool {
	if c == nil {
		return true
	}
	return c.Username == "" && c.Domain == "" &&
		c.Password.IsZero() && c.KeyPassphrase.IsZero()
}

// Zeroize wipes the secret fields. The credential is unusable afterwards.
func (c *Credential) Zeroize() {
	if c == nil {
		return
	}
	c.Password.Destroy()
	c.KeyPassphrase.Destroy()
}

// Clone returns an independent copy. The copy owns its own enclaves, so
// zeroizing one credential does not affect the other.
func (c *Credential) Clone() (*Credential, error) {
	if c == nil {
		return nil, nil
	}
	password, err := c.Password.Reveal()
	if err != nil {
		return nil, fmt.Errorf("clone credential: %w", err)
	}
	passphrase, err := c.KeyPassphrase.Reveal()
	if err != nil {
		return nil, fmt.Errorf("clone credential: %w", err)
	}
	return New(c.Username, password, c.Domain, passphrase), nil
}

// String implements fmt.Stringer without exposing secret fields.
func (c *Credential) String() string {
	if c == nil {
		return "Credential(nil)"
	}
	return fmt.Sprintf("Credential(username=%q domain=%q password=[REDACTED] key_passphrase=[REDACTED])",
		c.Username, c.Domain)
}

// wireCredential is the single-string serialization used by backends whose
// entries hold one value (keyring items, Secret Service attributes,
// cloud secret versions).
type wireCredential struct {
	Username      string `json:"username,omitempty"`
	Password      string `json:"password,omitempty"`
	Domain        string `json:"domain,omitempty"`
	KeyPassphrase string `json:"key_passphrase,omitempty"`
}

// Encode serializes the credential to the single-string wire form.
// The result contains plaintext secrets; hand it straight to the backend
// and drop it.
func Encode(c *Credential) (string, error) {
	if c == nil {
		return "", fmt.Errorf("encode credential: nil credential")
	}
	password, err := c.Password.Reveal()
	if err != nil {
		return "", fmt.Errorf("encode credential: %w", err)
	}
	passphrase, err := c.KeyPassphrase.Reveal()
	if err != nil {
		return "", fmt.Errorf("encode credential: %w", err)
	}
	raw, err := json.Marshal(wireCredential{
		Username:      c.Username,
		Password:      password,
		Domain:        c.Domain,
		KeyPassphrase: passphrase,
	})
	if err != nil {
		return "", fmt.Errorf("encode credential: %w", err)
	}
	return string(raw), nil
}

// Decode parses the wire form back into a credential. Inputs that are not
// wire-form JSON are treated as a bare password, which keeps entries
// written by other tools (or older releases) readable.
func Decode(value string) (*Credential, error) {
	var wire wireCredential
	if err := json.Unmarshal([]byte(value), &wire); err != nil {
		return New("", value, "", ""), nil
	}
	return New(wire.Username, wire.Password, wire.Domain, wire.KeyPassphrase), nil
}
