package backend_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/connkeep/connkeep/internal/secure"
	"github.com/connkeep/connkeep/pkg/backend"
)

func TestCredential_NewAndIsEmpty(t *testing.T) {
	t.Parallel()

	cred := backend.New("admin", "hunter2", "CORP", "")
	assert.False(t, cred.IsEmpty())

	assert.True(t, backend.Empty().IsEmpty())

	var nilCred *backend.Credential
	assert.True(t, nilCred.IsEmpty())
}

func TestCredential_CloneIsIndependent(t *testing.T) {
	t.Parallel()

	original := backend.New("admin", "hunter2", "CORP", "passphrase")
	clone, err := original.Clone()
	require.NoError(t, err)

	original.Zeroize()

	password, err := clone.Password.Reveal()
	require.NoError(t, err)
	assert.Equal(t, "hunter2", password)

	passphrase, err := clone.KeyPassphrase.Reveal()
	require.NoError(t, err)
	assert.Equal(t, "passphrase", passphrase)
}

func TestCredential_CloneNil(t *testing.T) {
	t.Parallel()

	var nilCred *backend.Credential
	clone, err := nilCred.Clone()
	require.NoError(t, err)
	assert.Nil(t, clone)
}

func TestCredential_ZeroizeWipesSecrets(t *testing.T) {
	t.Parallel()

	cred := backend.New("admin", "hunter2", "", "passphrase")
	cred.Zeroize()

	assert.True(t, cred.Password.IsZero())
	assert.True(t, cred.KeyPassphrase.IsZero())
	assert.Equal(t, "admin", cred.Username)
}

func TestCredential_StringRedacts(t *testing.T) {
	t.Parallel()

	cred := backend.New("admin", "hunter2", "CORP", "passphrase")
	formatted := fmt.Sprintf("%v %s", cred, cred)
	assert.Contains(t, formatted, "admin")
	assert.NotContains(t, formatted, "hunter2")
	assert.NotContains(t, formatted, "passphrase")

	var nilCred *backend.Credential
	assert.Equal(t, "Credential(nil)", nilCred.String())
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	t.Parallel()

	encoded, err := backend.Encode(backend.New("admin", "hunter2", "CORP", "passphrase"))
	require.NoError(t, err)

	decoded, err := backend.Decode(encoded)
	require.NoError(t, err)

	assert.Equal(t, "admin", decoded.Username)
	assert.Equal(t, "CORP", decoded.Domain)
	assert.True(t, secure.Equal(decoded.Password, secure.NewSecret("hunter2")))
	assert.True(t, secure.Equal(decoded.KeyPassphrase, secure.NewSecret("passphrase")))
}

func TestEncode_NilCredential(t *testing.T) {
	t.Parallel()

	_, err := backend.Encode(nil)
	assert.Error(t, err)
}

func TestDecode_BarePasswordFallback(t *testing.T) {
	t.Parallel()

	decoded, err := backend.Decode("just-a-password")
	require.NoError(t, err)

	assert.Empty(t, decoded.Username)
	password, err := decoded.Password.Reveal()
	require.NoError(t, err)
	assert.Equal(t, "just-a-password", password)
}
