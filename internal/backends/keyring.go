package backends

import (
	"context"
	"errors"
	"os"
	"runtime"

	"github.com/zalando/go-keyring"

	"github.com/connkeep/connkeep/pkg/backend"
)

// keyringService is the service name all entries are registered under in
// the OS keyring.
const keyringService = "connkeep"

// keyringAPI is the slice of the go-keyring surface this backend uses,
// extracted so tests can swap in a fake without a Secret Service daemon.
type keyringAPI interface {
	Set(service, account, password string) error
	Get(service, account string) (string, error)
	Delete(service, account string) error
}

type systemKeyring struct{}

func (systemKeyring) Set(service, account, password string) error {
	return keyring.Set(service, account, password)
}

func (systemKeyring) Get(service, account string) (string, error) {
	return keyring.Get(service, account)
}

func (systemKeyring) Delete(service, account string) error {
	return keyring.Delete(service, account)
}

// Keyring stores credentials in the OS keyring (Secret Service on Linux,
// Keychain on macOS, Credential Manager on Windows) through zalando's
// go-keyring. Keys are flat strings; the account field carries the lookup
// key and the value carries the encoded credential.
type Keyring struct {
	api  keyringAPI
	goos string
}

// NewKeyring creates a backend over the real OS keyring.
func NewKeyring() *Keyring {
	return &Keyring{api: systemKeyring{}, goos: runtime.GOOS}
}

// NewKeyringWithAPI creates a backend over a custom keyring API, for tests.
func NewKeyringWithAPI(api keyringAPI) *Keyring {
	return &Keyring{api: api, goos: runtime.GOOS}
}

// ID implements backend.Backend.
func (k *Keyring) ID() string { return "keyring" }

// Descriptor implements backend.Describer.
func (k *Keyring) Descriptor() backend.Descriptor {
	return backend.Descriptor{ID: k.ID(), Flags: backend.FlagPersistent}
}

// IsAvailable probes the keyring with a read of a sentinel account. Every
// failure mode other than "not found" means the daemon is unreachable;
// none of them escape as errors.
func (k *Keyring) IsAvailable(_ context.Context) bool {
	// Headless Linux sessions have no Secret Service to talk to. Keychain
	// and Credential Manager need no session bus, so only Linux gets the
	// environment check.
	if k.goos == "linux" &&
		os.Getenv("DISPLAY") == "" && os.Getenv("WAYLAND_DISPLAY") == "" && os.Getenv("DBUS_SESSION_BUS_ADDRESS") == "" {
		return false
	}
	_, err := k.api.Get(keyringService, "connkeep-availability-check")
	if err == nil || errors.Is(err, keyring.ErrNotFound) {
		return true
	}
	return false
}

// Store implements backend.Backend.
func (k *Keyring) Store(_ context.Context, key string, cred *backend.Credential) error {
	encoded, err := backend.Encode(cred)
	if err != nil {
		return err
	}
	return k.api.Set(keyringService, key, encoded)
}

// Retrieve implements backend.Backend.
func (k *Keyring) Retrieve(_ context.Context, key string) (*backend.Credential, error) {
	value, err := k.api.Get(keyringService, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return backend.Decode(value)
}

// Delete implements backend.Backend.
func (k *Keyring) Delete(_ context.Context, key string) error {
	err := k.api.Delete(keyringService, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}
