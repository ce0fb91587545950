package backends

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/connkeep/connkeep/pkg/backend"
)

// fakeKeyring is an in-memory keyringAPI.
type fakeKeyring struct {
	entries map[string]string
	broken  bool
}

func newFakeKeyring() *fakeKeyring {
	return &fakeKeyring{entries: make(map[string]string)}
}

func (f *fakeKeyring) key(service, account string) string { return service + "\x00" + account }

func (f *fakeKeyring) Set(service, account, password string) error {
	if f.broken {
		return errors.New("no secret service daemon")
	}
	f.entries[f.key(service, account)] = password
	return nil
}

func (f *fakeKeyring) Get(service, account string) (string, error) {
	if f.broken {
		return "", errors.New("no secret service daemon")
	}
	value, ok := f.entries[f.key(service, account)]
	if !ok {
		return "", keyring.ErrNotFound
	}
	return value, nil
}

func (f *fakeKeyring) Delete(service, account string) error {
	if f.broken {
		return errors.New("no secret service daemon")
	}
	k := f.key(service, account)
	if _, ok := f.entries[k]; !ok {
		return keyring.ErrNotFound
	}
	delete(f.entries, k)
	return nil
}

func TestKeyring_StoreRetrieveDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fake := newFakeKeyring()
	kr := NewKeyringWithAPI(fake)

	cred := backend.New("admin", "hunter2", "corp", "")
	require.NoError(t, kr.Store(ctx, "db (ssh)", cred))

	got, err := kr.Retrieve(ctx, "db (ssh)")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "admin", got.Username)

	password, err := got.Password.Reveal()
	require.NoError(t, err)
	assert.Equal(t, "hunter2", password)

	require.NoError(t, kr.Delete(ctx, "db (ssh)"))
	gone, err := kr.Retrieve(ctx, "db (ssh)")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestKeyring_MissingEntryIsNilNil(t *testing.T) {
	t.Parallel()

	kr := NewKeyringWithAPI(newFakeKeyring())
	cred, err := kr.Retrieve(context.Background(), "absent")
	require.NoError(t, err)
	assert.Nil(t, cred)
}

func TestKeyring_DeleteAbsentKeyIsNotAnError(t *testing.T) {
	t.Parallel()

	kr := NewKeyringWithAPI(newFakeKeyring())
	assert.NoError(t, kr.Delete(context.Background(), "absent"))
}

func TestKeyring_EntriesScopedToService(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fake := newFakeKeyring()
	kr := NewKeyringWithAPI(fake)
	require.NoError(t, kr.Store(ctx, "db (ssh)", backend.New("admin", "pw", "", "")))

	_, ok := fake.entries["connkeep\x00db (ssh)"]
	assert.True(t, ok, "entries must be registered under the connkeep service")
}

func TestKeyring_AvailabilityCheckAbsorbsFailures(t *testing.T) {
	fake := newFakeKeyring()
	fake.broken = true
	kr := NewKeyringWithAPI(fake)

	t.Setenv("DBUS_SESSION_BUS_ADDRESS", "unix:path=/run/user/1000/bus")
	assert.False(t, kr.IsAvailable(context.Background()))
}

func TestKeyring_SessionEnvCheckOnlyAppliesOnLinux(t *testing.T) {
	// Clear every session variable the Linux check inspects.
	t.Setenv("DISPLAY", "")
	t.Setenv("WAYLAND_DISPLAY", "")
	t.Setenv("DBUS_SESSION_BUS_ADDRESS", "")

	kr := NewKeyringWithAPI(newFakeKeyring())

	kr.goos = "linux"
	assert.False(t, kr.IsAvailable(context.Background()),
		"a headless Linux session has no Secret Service to reach")

	// Keychain and Credential Manager do not depend on a session bus, so
	// the same empty environment must not mark them unavailable.
	kr.goos = "darwin"
	assert.True(t, kr.IsAvailable(context.Background()))

	kr.goos = "windows"
	assert.True(t, kr.IsAvailable(context.Background()))
}
