// Package errors defines the typed error taxonomy for credential
// resolution and vault operations. Every fallible manager/resolver path
// returns one of these types; nothing in this package panics or aborts.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// BackendUnavailableError indicates that no secret backend in the chain
// answered its availability probe.
type BackendUnavailableError struct {
	Reason string
}

func (e BackendUnavailableError) Error() string {
	if e.Reason == "" {
		return "no secret backend available"
	}
	return "no secret backend available: " + e.Reason
}

// BackendTimeoutError indicates a backend call exceeded its deadline.
type BackendTimeoutError struct {
	Backend string
	Timeout time.Duration
}

func (e BackendTimeoutError) Error() string {
	return fmt.Sprintf("backend '%s' timed out after %s", e.Backend, e.Timeout)
}

// VariableNotFoundError indicates a PasswordSource referenced a global
// variable that is not defined. Callers render an empty credential for
// this; it must not crash resolution.
type VariableNotFoundError struct {
	Name string
}

func (e VariableNotFoundError) Error() string {
	return fmt.Sprintf("variable '%s' is not defined", e.Name)
}

// CycleDetectedError indicates the group hierarchy loops back on itself
// during inherited credential resolution. Chain holds the group ids in
// visit order, ending with the repeated id.
type CycleDetectedError struct {
	Chain []string
}

func (e CycleDetectedError) Error() string {
	return "credential inheritance cycle detected: " + strings.Join(e.Chain, " -> ")
}

// NoCredentialInChainError indicates the ancestry walk ran out of parents
// without finding a concrete password source.
type NoCredentialInChainError struct {
	Entity string
}

func (e NoCredentialInChainError) Error() string {
	return fmt.Sprintf("no credential found in group chain for '%s'", e.Entity)
}

// RenameKeyMismatchError indicates a vault rename could not complete as a
// move: the secret under the old key was missing or the new key could not
// be written.
type RenameKeyMismatchError struct {
	OldKey string
	NewKey string
	Reason string
}

func (e RenameKeyMismatchError) Error() string {
	return fmt.Sprintf("rename from '%s' to '%s' failed: %s", e.OldKey, e.NewKey, e.Reason)
}

// DecryptionFailedError indicates an at-rest envelope could not be opened,
// typically after a machine or install change. This is a soft state:
// callers treat it as "secret not configured" and prompt for re-entry.
type DecryptionFailedError struct {
	Err error
}

func (e DecryptionFailedError) Error() string {
	if e.Err == nil {
		return "decryption failed"
	}
	return "decryption failed: " + e.Err.Error()
}

func (e DecryptionFailedError) Unwrap() error {
	return e.Err
}

// Op names a backend operation for OpError.
type Op string

// Backend operations wrapped by OpError.
const (
	OpStore    Op = "store"
	OpRetrieve Op = "retrieve"
	OpDelete   Op = "delete"
	OpRename   Op = "rename"
	OpCopy     Op = "copy"
)

// OpError wraps a backend-reported failure with the backend id, the
// operation, and the lookup key involved. The key is an opaque locator,
// never the secret itself, so it is safe to log.
type OpError struct {
	Backend string
	Op      Op
	Key     string
	Err     error
}

func (e OpError) Error() string {
	return fmt.Sprintf("%s failed on backend '%s' for key '%s': %v", e.Op, e.Backend, e.Key, e.Err)
}

func (e OpError) Unwrap() error {
	return e.Err
}

// UserError is shown to the user with actionable context.
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// IsBackendUnavailable reports whether err is a BackendUnavailableError.
func IsBackendUnavailable(err error) bool {
	var target BackendUnavailableError
	return errors.As(err, &target)
}

// IsTimeout reports whether err is a BackendTimeoutError.
func IsTimeout(err error) bool {
	var target BackendTimeoutError
	return errors.As(err, &target)
}

// IsCycle reports whether err is a CycleDetectedError.
func IsCycle(err error) bool {
	var target CycleDetectedError
	return errors.As(err, &target)
}

// IsNotConfigured reports whether err represents the soft
// "secret not configured" state produced by a failed envelope decryption.
func IsNotConfigured(err error) bool {
	var target DecryptionFailedError
	return errors.As(err, &target)
}
