// Package secure provides in-memory protection for credential material.
//
// Secret values live inside a memguard enclave: encrypted at rest in
// process memory, mlocked where the platform allows it, and wiped when
// destroyed. The zero Secret is usable and represents "no value".
package secure

import (
	"sync"

	"github.com/awnumar/memguard"
)

// Secret holds a sensitive string inside an encrypted enclave.
// It formats as "[REDACTED]" so it can never leak through logging.
type Secret struct {
	mu        sync.RWMutex
	enclave   *memguard.Enclave
	destroyed bool
}

// NewSecret seals value into a protected enclave. The caller's copy of the
// string is outside our control; callers holding plaintext buffers should
// zero them after sealing.
func NewSecret(value string) *Secret {
	if value == "" {
		return &Secret{}
	}
	return &Secret{enclave: memguard.NewEnclave([]byte(value))}
}

// IsZero reports whether the secret holds no value.
func (s *Secret) IsZero() bool {
	if s == nil {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enclave == nil || s.destroyed
}

// Reveal decrypts and returns the plaintext. The returned string is a
// regular Go string; use it promptly and do not retain it.
func (s *Secret) Reveal() (string, error) {
	if s == nil {
		return "", nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.enclave == nil || s.destroyed {
		return "", nil
	}

	locked, err := s.enclave.Open()
	if err != nil {
		return "", err
	}
	defer locked.Destroy()

	return string(locked.Bytes()), nil
}

// Use opens the enclave and passes the plaintext bytes to fn. The buffer
// is wiped when fn returns, so fn must not retain it.
func (s *Secret) Use(fn func(plaintext []byte) error) error {
	if s == nil {
		return fn(nil)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.enclave == nil || s.destroyed {
		return fn(nil)
	}

	locked, err := s.enclave.Open()
	if err != nil {
		return err
	}
	defer locked.Destroy()

	return fn(locked.Bytes())
}

// Destroy marks the secret as destroyed. Idempotent; Reveal afterwards
// returns an empty string. The enclave ciphertext is left for the GC, which
// is safe since it is encrypted. Call memguard.Purge() at process exit for
// full cleanup.
func (s *Secret) Destroy() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return
	}
	s.enclave = nil
	s.destroyed = true
}

// String implements fmt.Stringer and always redacts.
func (s *Secret) String() string {
	return "[REDACTED]"
}

// GoString redacts %#v formatting as well.
func (s *Secret) GoString() string {
	return "[REDACTED]"
}

// Equal compares two secrets by plaintext. Intended for tests and the
// verification flows; it briefly materializes both plaintexts.
func Equal(a, b *Secret) bool {
	av, errA := a.Reveal()
	bv, errB := b.Reveal()
	if errA != nil || errB != nil {
		return false
	}
	return av == bv
}
