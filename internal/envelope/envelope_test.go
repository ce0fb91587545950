package envelope_test

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/connkeep/connkeep/internal/envelope"

	ckerrors "github.com/connkeep/connkeep/internal/errors"
)

func testSealer() *envelope.Sealer {
	return envelope.NewSealerWithFingerprint([]byte("test-machine:host-a"))
}

func TestSealer_RoundTrip(t *testing.T) {
	t.Parallel()

	s := testSealer()
	blob, err := s.Seal([]byte("master-secret"))
	require.NoError(t, err)
	assert.False(t, blob.IsZero())

	plaintext, err := s.Open(blob)
	require.NoError(t, err)
	assert.Equal(t, "master-secret", string(plaintext))
}

func TestSealer_FreshNonceAndSaltPerSeal(t *testing.T) {
	t.Parallel()

	s := testSealer()
	first, err := s.Seal([]byte("same-value"))
	require.NoError(t, err)
	second, err := s.Seal([]byte("same-value"))
	require.NoError(t, err)

	assert.NotEqual(t, first.Nonce, second.Nonce)
	assert.NotEqual(t, first.KDFSalt, second.KDFSalt)
	assert.NotEqual(t, first.Ciphertext, second.Ciphertext)

	for _, blob := range []envelope.Blob{first, second} {
		plaintext, err := s.Open(blob)
		require.NoError(t, err)
		assert.Equal(t, "same-value", string(plaintext))
	}
}

func TestSealer_TamperedCiphertextFailsSoft(t *testing.T) {
	t.Parallel()

	s := testSealer()
	blob, err := s.Seal([]byte("master-secret"))
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(blob.Ciphertext)
	require.NoError(t, err)
	raw[0] ^= 0xff
	blob.Ciphertext = base64.StdEncoding.EncodeToString(raw)

	_, err = s.Open(blob)
	require.Error(t, err)
	assert.True(t, ckerrors.IsNotConfigured(err), "tampering reads as 'not configured', never a crash")
}

func TestSealer_WrongMachineFailsSoft(t *testing.T) {
	t.Parallel()

	blob, err := testSealer().Seal([]byte("master-secret"))
	require.NoError(t, err)

	other := envelope.NewSealerWithFingerprint([]byte("different-machine:host-b"))
	_, err = other.Open(blob)
	require.Error(t, err)
	assert.True(t, ckerrors.IsNotConfigured(err))
}

func TestSealer_CorruptFieldsFailSoft(t *testing.T) {
	t.Parallel()

	s := testSealer()
	tests := []struct {
		name string
		blob envelope.Blob
	}{
		{"bad salt", envelope.Blob{Ciphertext: "AA==", Nonce: "AA==", KDFSalt: "not base64!"}},
		{"bad nonce", envelope.Blob{Ciphertext: "AA==", Nonce: "@@@", KDFSalt: "AA=="}},
		{"bad ciphertext", envelope.Blob{Ciphertext: "@@@", Nonce: "AA==", KDFSalt: "AA=="}},
		{"short nonce", envelope.Blob{Ciphertext: "AA==", Nonce: "AA==", KDFSalt: "AA=="}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := s.Open(tt.blob)
			assert.True(t, ckerrors.IsNotConfigured(err))
		})
	}
}

func TestMigrateLegacy(t *testing.T) {
	t.Parallel()

	legacy := envelope.EncodeLegacy([]byte("old-secret"))
	require.True(t, envelope.IsLegacy(legacy))
	assert.False(t, envelope.IsLegacy("plain-value"))

	s := testSealer()
	plaintext, blob, err := s.MigrateLegacy(legacy)
	require.NoError(t, err)
	assert.Equal(t, "old-secret", string(plaintext))

	reopened, err := s.Open(blob)
	require.NoError(t, err)
	assert.Equal(t, "old-secret", string(reopened))
}

func TestMigrateLegacy_CorruptValue(t *testing.T) {
	t.Parallel()

	_, _, err := testSealer().MigrateLegacy("obf0:not-base64!!")
	assert.True(t, ckerrors.IsNotConfigured(err))
}

func TestBlob_IsZero(t *testing.T) {
	t.Parallel()

	assert.True(t, envelope.Blob{}.IsZero())
	assert.False(t, envelope.Blob{Ciphertext: "x"}.IsZero())
}
