package vault_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/connkeep/connkeep/internal/backends"
	"github.com/connkeep/connkeep/internal/vault"
	"github.com/connkeep/connkeep/pkg/backend"
)

func TestManager_StoreBulk(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mem := backends.NewMemory()
	m := newManager(t, cachedOptions(), mem)

	result := m.StoreBulk(ctx, map[string]*backend.Credential{
		"k1": backend.New("a", "p1", "", ""),
		"k2": backend.New("b", "p2", "", ""),
	})
	assert.True(t, result.IsSuccess())
	assert.Equal(t, 2, result.SuccessCount)
	assert.Equal(t, 2, mem.Len())
}

func TestManager_DeleteBulk(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mem := backends.NewMemory()
	m := newManager(t, cachedOptions(), mem)
	require.NoError(t, m.Store(ctx, "k1", backend.New("a", "p", "", "")))
	require.NoError(t, m.Store(ctx, "k2", backend.New("b", "p", "", "")))

	result := m.DeleteBulk(ctx, []string{"k1", "k2", "absent"})
	assert.Equal(t, 3, result.SuccessCount, "deleting an absent key is not a failure")
	assert.Equal(t, 0, mem.Len())
}

func TestManager_CopyCredentials(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mem := backends.NewMemory()
	m := newManager(t, cachedOptions(), mem)
	require.NoError(t, m.Store(ctx, "src", backend.New("admin", "pw", "corp", "")))

	result, err := m.CopyCredentials(ctx, "src", []string{"dst1", "dst2"})
	require.NoError(t, err)
	assert.True(t, result.IsSuccess())
	assert.Equal(t, 2, result.SuccessCount)

	for _, key := range []string{"src", "dst1", "dst2"} {
		cred, err := mem.Retrieve(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, cred, key)
		assert.Equal(t, "admin", cred.Username)
	}
}

func TestManager_CopyCredentialsMissingSource(t *testing.T) {
	t.Parallel()

	m := newManager(t, cachedOptions(), backends.NewMemory())
	_, err := m.CopyCredentials(context.Background(), "absent", []string{"dst"})
	assert.Error(t, err)
}

func TestManager_KeysWithCredentials(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	m := newManager(t, cachedOptions(), backends.NewMemory())
	require.NoError(t, m.Store(ctx, "k1", backend.New("a", "p", "", "")))

	found := m.KeysWithCredentials(ctx, []string{"k1", "absent"})
	assert.Equal(t, []string{"k1"}, found)
}

func TestManager_PurgeSecretsIsBestEffort(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	stub := newStubBackend("stub")
	stub.failDeleteKey = "stuck"
	m := newManager(t, cachedOptions(), stub)
	require.NoError(t, m.Store(ctx, "k1", backend.New("a", "p", "", "")))
	require.NoError(t, m.Store(ctx, "stuck", backend.New("b", "p", "", "")))

	report := m.PurgeSecrets(ctx, []string{"k1", "stuck", "absent"})
	assert.Equal(t, 2, report.Deleted)
	assert.Equal(t, []string{"stuck"}, report.Failed)
}

func TestCredentialUpdate_Apply(t *testing.T) {
	t.Parallel()

	existing := backend.New("admin", "old-pass", "corp", "key-pass")

	tests := []struct {
		name         string
		update       *vault.CredentialUpdate
		wantUsername string
		wantPassword string
		wantDomain   string
	}{
		{
			name:         "empty update keeps everything",
			update:       vault.NewCredentialUpdate(),
			wantUsername: "admin",
			wantPassword: "old-pass",
			wantDomain:   "corp",
		},
		{
			name:         "username only",
			update:       vault.NewCredentialUpdate().WithUsername("root"),
			wantUsername: "root",
			wantPassword: "old-pass",
			wantDomain:   "corp",
		},
		{
			name:         "password replacement",
			update:       vault.NewCredentialUpdate().WithPassword("new-pass"),
			wantUsername: "admin",
			wantPassword: "new-pass",
			wantDomain:   "corp",
		},
		{
			name:         "clear password wins over existing",
			update:       vault.NewCredentialUpdate().WithClearPassword(),
			wantUsername: "admin",
			wantPassword: "",
			wantDomain:   "corp",
		},
		{
			name:         "domain change",
			update:       vault.NewCredentialUpdate().WithDomain("lab"),
			wantUsername: "admin",
			wantPassword: "old-pass",
			wantDomain:   "lab",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			updated, err := tt.update.Apply(existing)
			require.NoError(t, err)

			assert.Equal(t, tt.wantUsername, updated.Username)
			assert.Equal(t, tt.wantDomain, updated.Domain)

			password, err := updated.Password.Reveal()
			require.NoError(t, err)
			assert.Equal(t, tt.wantPassword, password)

			passphrase, err := updated.KeyPassphrase.Reveal()
			require.NoError(t, err)
			assert.Equal(t, "key-pass", passphrase, "key passphrase always carries over")
		})
	}
}

func TestManager_UpdateBulk(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mem := backends.NewMemory()
	m := newManager(t, cachedOptions(), mem)
	require.NoError(t, m.Store(ctx, "k1", backend.New("a", "p1", "", "")))
	require.NoError(t, m.Store(ctx, "k2", backend.New("b", "p2", "", "")))

	result := m.UpdateBulk(ctx, []string{"k1", "k2"}, vault.NewCredentialUpdate().WithUsername("shared"))
	assert.True(t, result.IsSuccess())

	for _, key := range []string{"k1", "k2"} {
		cred, err := mem.Retrieve(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, cred, key)
		assert.Equal(t, "shared", cred.Username)
	}
}
