// Package envelope implements at-rest encryption for backend master
// secrets that the user opts to keep in local settings instead of the
// system keyring (a vault unlock password, an API token).
//
// Secrets are sealed with AES-256-GCM under a key derived via Argon2id
// from a machine fingerprint rather than a user passphrase: unlocking is
// transparent, and the blob is useless on any other machine. A fresh random
// nonce and KDF salt are generated per encryption. Decryption failure is a
// soft state: the secret reads as "not configured" and the user is asked
// to re-enter it, never a startup-blocking error.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/argon2"

	ckerrors "github.com/connkeep/connkeep/internal/errors"
)

// Argon2id parameters. Memory-hard enough to make brute-forcing a copied
// blob expensive while keeping interactive unlock fast.
const (
	kdfTime    = 1
	kdfMemory  = 64 * 1024
	kdfThreads = 4
	kdfKeyLen  = 32
	saltLen    = 16
)

// legacyPrefix marks values written by the old reversible obfuscation
// scheme. They are migrated to the envelope on first load.
const legacyPrefix = "obf0:"

// legacyPad is the fixed pad of the old scheme, kept only to read blobs
// written before the envelope existed.
var legacyPad = []byte("connkeep-settings-obfuscation-pad")

// Blob is the persisted envelope: all fields base64, stored by the
// settings layer alongside the rest of the configuration.
type Blob struct {
	Ciphertext string `yaml:"ciphertext" json:"ciphertext"`
	Nonce      string `yaml:"nonce" json:"nonce"`
	KDFSalt    string `yaml:"kdf_salt" json:"kdf_salt"`
}

// IsZero reports whether the blob holds no data.
func (b Blob) IsZero() bool {
	return b.Ciphertext == "" && b.Nonce == "" && b.KDFSalt == ""
}

// Sealer encrypts and decrypts envelopes bound to one machine.
type Sealer struct {
	fingerprint []byte
}

// NewSealer creates a sealer keyed to the current machine.
func NewSealer() *Sealer {
	return &Sealer{fingerprint: machineFingerprint()}
}

// NewSealerWithFingerprint creates a sealer with an explicit fingerprint.
// Used by tests and by migration tooling that must open blobs from a known
// machine identity.
func NewSealerWithFingerprint(fingerprint []byte) *Sealer {
	return &Sealer{fingerprint: fingerprint}
}

// Seal encrypts plaintext into a fresh envelope. Each call draws a new
// salt and nonce, so sealing the same plaintext twice yields different
// ciphertexts that both open to the same value.
func (s *Sealer) Seal(plaintext []byte) (Blob, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return Blob{}, fmt.Errorf("generate kdf salt: %w", err)
	}

	aead, err := s.aead(salt)
	if err != nil {
		return Blob{}, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return Blob{}, fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := aead.Seal(nil, nonce, plaintext, nil)
	return Blob{
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		KDFSalt:    base64.StdEncoding.EncodeToString(salt),
	}, nil
}

// Open decrypts an envelope. Any failure (corrupt fields, wrong machine,
// tampered ciphertext) comes back as DecryptionFailedError, which callers
// map to "secret not configured".
func (s *Sealer) Open(blob Blob) ([]byte, error) {
	salt, err := base64.StdEncoding.DecodeString(blob.KDFSalt)
	if err != nil {
		return nil, ckerrors.DecryptionFailedError{Err: fmt.Errorf("decode kdf salt: %w", err)}
	}
	nonce, err := base64.StdEncoding.DecodeString(blob.Nonce)
	if err != nil {
		return nil, ckerrors.DecryptionFailedError{Err: fmt.Errorf("decode nonce: %w", err)}
	}
	ciphertext, err := base64.StdEncoding.DecodeString(blob.Ciphertext)
	if err != nil {
		return nil, ckerrors.DecryptionFailedError{Err: fmt.Errorf("decode ciphertext: %w", err)}
	}

	aead, err := s.aead(salt)
	if err != nil {
		return nil, ckerrors.DecryptionFailedError{Err: err}
	}
	if len(nonce) != aead.NonceSize() {
		return nil, ckerrors.DecryptionFailedError{Err: fmt.Errorf("nonce length %d", len(nonce))}
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ckerrors.DecryptionFailedError{Err: err}
	}
	return plaintext, nil
}

// IsLegacy reports whether a persisted value uses the old reversible
// obfuscation scheme.
func IsLegacy(value string) bool {
	return strings.HasPrefix(value, legacyPrefix)
}

// MigrateLegacy decodes a legacy value and reseals it as an envelope. The
// settings layer overwrites the legacy value with the returned blob, so
// the weak form survives at most one load.
func (s *Sealer) MigrateLegacy(value string) ([]byte, Blob, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, legacyPrefix))
	if err != nil {
		return nil, Blob{}, ckerrors.DecryptionFailedError{Err: fmt.Errorf("decode legacy value: %w", err)}
	}

	plaintext := make([]byte, len(raw))
	for i, b := range raw {
		plaintext[i] = b ^ legacyPad[i%len(legacyPad)]
	}

	blob, err := s.Seal(plaintext)
	if err != nil {
		return nil, Blob{}, err
	}
	return plaintext, blob, nil
}

// EncodeLegacy produces a value in the old scheme. Retained for tests of
// the migration path.
func EncodeLegacy(plaintext []byte) string {
	obfuscated := make([]byte, len(plaintext))
	for i, b := range plaintext {
		obfuscated[i] = b ^ legacyPad[i%len(legacyPad)]
	}
	return legacyPrefix + base64.StdEncoding.EncodeToString(obfuscated)
}

func (s *Sealer) aead(salt []byte) (cipher.AEAD, error) {
	key := argon2.IDKey(s.fingerprint, salt, kdfTime, kdfMemory, kdfThreads, kdfKeyLen)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return aead, nil
}

// machineFingerprint builds a stable per-machine identifier from the
// machine-id and hostname. It deliberately contains no user secret.
func machineFingerprint() []byte {
	var parts []string

	for _, path := range []string{"/etc/machine-id", "/var/lib/dbus/machine-id"} {
		if data, err := os.ReadFile(path); err == nil {
			if id := strings.TrimSpace(string(data)); id != "" {
				parts = append(parts, id)
				break
			}
		}
	}

	if hostname, err := os.Hostname(); err == nil {
		parts = append(parts, hostname)
	}

	if len(parts) == 0 {
		parts = append(parts, "connkeep-fallback-fingerprint")
	}

	return []byte(strings.Join(parts, ":"))
}
