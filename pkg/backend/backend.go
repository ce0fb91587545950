// Package backend defines the capability contract implemented by every
// secret store, together with the credential value type and the normalized
// vault operation descriptor used for dispatch.
//
// A backend is any pluggable secret store: the system keyring, a Secret
// Service daemon, an encrypted local file, a cloud secrets manager. The
// vault manager orders backends by priority and talks to them only through
// this contract; each backend's own wire protocol stays inside its
// implementation.
//
// Implementations must be safe for concurrent calls on distinct keys.
package backend

import (
	"context"
)

// Backend is the contract every secret store satisfies.
type Backend interface {
	// ID returns the backend's stable, lowercase identifier, e.g.
	// "keyring", "secret-service", "local-file", "aws.secretsmanager".
	ID() string

	// Store persists a credential under the given lookup key, replacing
	// any previous value.
	Store(ctx context.Context, key string, cred *Credential) error

	// Retrieve returns the credential stored under key, or (nil, nil)
	// when no entry exists. An error means the backend could not answer,
	// not that the key is absent.
	Retrieve(ctx context.Context, key string) (*Credential, error)

	// Delete removes the credential stored under key. Deleting an absent
	// key is not an error.
	Delete(ctx context.Context, key string) error

	// IsAvailable is a cheap liveness probe. Any internal failure during
	// the probe is absorbed and reported as false, never as an error.
	IsAvailable(ctx context.Context) bool
}

// Renamer is implemented by backends that can move an entry to a new key
// natively. Backends without it are renamed by the manager as
// retrieve → store-new → delete-old.
type Renamer interface {
	Rename(ctx context.Context, oldKey, newKey string) error
}

// Flags describes backend capabilities as a bitmask.
type Flags uint8

const (
	// FlagHierarchical marks backends that organize entries in a folder
	// tree and accept path-shaped lookup keys.
	FlagHierarchical Flags = 1 << iota
	// FlagPersistent marks backends whose entries survive the process.
	FlagPersistent
	// FlagRemote marks backends reached over the network or a subprocess,
	// whose calls must be bounded by the manager timeout.
	FlagRemote
)

// Has reports whether all bits of want are set.
func (f Flags) Has(want Flags) bool {
	return f&want == want
}

// Descriptor identifies a configured backend within the fallback chain.
type Descriptor struct {
	// ID matches Backend.ID().
	ID string
	// Rank is the priority position, 0 = most preferred.
	Rank int
	// Flags carries the backend's capability bits.
	Flags Flags
}

// Describer is implemented by backends that advertise capability flags.
type Describer interface {
	Descriptor() Descriptor
}

// DescriptorOf returns the backend's descriptor, or a bare one carrying
// only the id when the backend does not advertise capabilities.
func DescriptorOf(b Backend) Descriptor {
	if d, ok := b.(Describer); ok {
		return d.Descriptor()
	}
	return Descriptor{ID: b.ID()}
}

// OpKind enumerates the normalized vault operations.
type OpKind int

// Vault operation kinds.
const (
	OpStore OpKind = iota
	OpRetrieve
	OpDelete
	OpRename
	OpCopy
)

func (k OpKind) String() string {
	switch k {
	case OpStore:
		return "store"
	case OpRetrieve:
		return "retrieve"
	case OpDelete:
		return "delete"
	case OpRename:
		return "rename"
	case OpCopy:
		return "copy"
	default:
		return "unknown"
	}
}

// VaultOp is a normalized request descriptor. All backend-bound branching
// in the resolver funnels into one dispatch path keyed on this struct
// instead of repeating per-backend switches at every call site.
type VaultOp struct {
	Kind OpKind
	// Key is the lookup key the operation targets.
	Key string
	// NewKey is the destination key for Rename and Copy.
	NewKey string
	// Credential carries the value for Store.
	Credential *Credential
	// BackendOverride pins the operation to a specific backend id,
	// bypassing the priority chain. Empty means "first available".
	BackendOverride string
}
