package errors_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	ckerrors "github.com/connkeep/connkeep/internal/errors"
)

func TestErrorMessages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "backend unavailable without reason",
			err:  ckerrors.BackendUnavailableError{},
			want: "no secret backend available",
		},
		{
			name: "backend unavailable with reason",
			err:  ckerrors.BackendUnavailableError{Reason: "keyring locked"},
			want: "no secret backend available: keyring locked",
		},
		{
			name: "backend timeout",
			err:  ckerrors.BackendTimeoutError{Backend: "keyring", Timeout: 5 * time.Second},
			want: "backend 'keyring' timed out after 5s",
		},
		{
			name: "variable not found",
			err:  ckerrors.VariableNotFoundError{Name: "DB_PASS"},
			want: "variable 'DB_PASS' is not defined",
		},
		{
			name: "cycle detected",
			err:  ckerrors.CycleDetectedError{Chain: []string{"a", "b", "a"}},
			want: "credential inheritance cycle detected: a -> b -> a",
		},
		{
			name: "no credential in chain",
			err:  ckerrors.NoCredentialInChainError{Entity: "db-prod"},
			want: "no credential found in group chain for 'db-prod'",
		},
		{
			name: "rename mismatch",
			err:  ckerrors.RenameKeyMismatchError{OldKey: "old", NewKey: "new", Reason: "source missing"},
			want: "rename from 'old' to 'new' failed: source missing",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestPredicatesMatchWrappedErrors(t *testing.T) {
	t.Parallel()

	wrap := func(err error) error { return fmt.Errorf("resolve: %w", err) }

	assert.True(t, ckerrors.IsBackendUnavailable(wrap(ckerrors.BackendUnavailableError{})))
	assert.True(t, ckerrors.IsTimeout(wrap(ckerrors.BackendTimeoutError{Backend: "keyring"})))
	assert.True(t, ckerrors.IsCycle(wrap(ckerrors.CycleDetectedError{})))
	assert.True(t, ckerrors.IsNotConfigured(wrap(ckerrors.DecryptionFailedError{})))

	assert.False(t, ckerrors.IsTimeout(ckerrors.BackendUnavailableError{}))
	assert.False(t, ckerrors.IsCycle(nil))
}

func TestOpError_WrapsCause(t *testing.T) {
	t.Parallel()

	cause := fmt.Errorf("connection refused")
	err := ckerrors.OpError{Backend: "aws.secretsmanager", Op: ckerrors.OpStore, Key: "connkeep/db (ssh)", Err: cause}

	assert.Contains(t, err.Error(), "store failed on backend 'aws.secretsmanager'")
	assert.Contains(t, err.Error(), "connkeep/db (ssh)")
	assert.ErrorIs(t, err, cause)
}

func TestUserError_Rendering(t *testing.T) {
	t.Parallel()

	err := ckerrors.UserError{
		Message:    "settings file is invalid",
		Suggestion: "check backend names",
		Details:    "unknown backend 'floppy-disk'",
	}
	rendered := err.Error()
	assert.Contains(t, rendered, "settings file is invalid")
	assert.Contains(t, rendered, "Details: unknown backend 'floppy-disk'")
	assert.Contains(t, rendered, "Try: check backend names")

	fromCause := ckerrors.UserError{Err: fmt.Errorf("boom")}
	assert.Equal(t, "boom", fromCause.Error())
}
