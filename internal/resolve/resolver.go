// Package resolve turns a declared password source into an actual
// credential. It interprets the per-entity policy (prompt, vault,
// variable, inheritance), builds lookup keys, and drives the vault
// manager. Resolution never blocks the caller's foreground thread; the
// async driver in this package runs it on background workers with
// cancellation.
package resolve

import (
	"context"

	"github.com/google/uuid"

	"github.com/connkeep/connkeep/internal/entity"
	"github.com/connkeep/connkeep/internal/keys"
	"github.com/connkeep/connkeep/internal/logging"
	"github.com/connkeep/connkeep/internal/vars"
	"github.com/connkeep/connkeep/internal/vault"
	"github.com/connkeep/connkeep/pkg/backend"

	ckerrors "github.com/connkeep/connkeep/internal/errors"
)

// Result is the outcome of one resolution.
type Result struct {
	// Credential is the resolved value. nil means nothing is stored for
	// the entity; the caller falls back to an interactive prompt.
	Credential *backend.Credential
	// NeedsPrompt signals that the declared policy is interactive input.
	// Prompt results are never cached.
	NeedsPrompt bool
}

// Found reports whether the result carries a credential.
func (r *Result) Found() bool {
	return r != nil && r.Credential != nil
}

// Resolver interprets password sources. It reads entity metadata and
// ancestry from the directory, variables from the variable store, and
// secrets through the manager. One instance is shared and passed through
// the call graph explicitly.
type Resolver struct {
	dir       entity.Directory
	variables vars.Store
	manager   *vault.Manager
	keys      *keys.Builder
	logger    *logging.Logger
}

// New creates a resolver.
func New(dir entity.Directory, variables vars.Store, manager *vault.Manager, logger *logging.Logger) *Resolver {
	return &Resolver{
		dir:       dir,
		variables: variables,
		manager:   manager,
		keys:      keys.NewBuilder(dir),
		logger:    logger,
	}
}

// Manager exposes the underlying vault manager for callers that issue raw
// vault operations (CLI, bulk tooling).
func (r *Resolver) Manager() *vault.Manager {
	return r.manager
}

// Resolve resolves credentials for a connection according to its declared
// password source. Every failure comes back as a typed error; nothing here
// panics or blocks indefinitely.
func (r *Resolver) Resolve(ctx context.Context, conn *entity.Connection) (*Result, error) {
	switch conn.Source.Kind {
	case entity.SourcePrompt:
		return &Result{NeedsPrompt: true}, nil

	case entity.SourceNone:
		return &Result{Credential: backend.Empty()}, nil

	case entity.SourceVariable:
		return r.resolveVariable(ctx, conn.Source.Variable)

	case entity.SourceVault:
		key, err := r.ConnectionKey(ctx, conn)
		if err != nil {
			return nil, err
		}
		cred, err := r.dispatchVaultOp(ctx, backend.VaultOp{Kind: backend.OpRetrieve, Key: key})
		if err != nil {
			return nil, err
		}
		return &Result{Credential: cred}, nil

	case entity.SourceInherit:
		return r.resolveInherited(ctx, conn)

	default:
		return &Result{Credential: backend.Empty()}, nil
	}
}

// resolveVariable resolves the named global variable. Secret variables
// live in the vault under a variable-scoped key; plain ones carry their
// value inline. An undefined variable is a typed, non-fatal error; the
// caller renders an empty credential rather than crashing.
func (r *Resolver) resolveVariable(ctx context.Context, name string) (*Result, error) {
	variable, ok := r.variables.Get(name)
	if !ok {
		return nil, ckerrors.VariableNotFoundError{Name: name}
	}

	if variable.IsSecret {
		cred, err := r.dispatchVaultOp(ctx, backend.VaultOp{
			Kind: backend.OpRetrieve,
			Key:  keys.VariableKey(name),
		})
		if err != nil {
			return nil, err
		}
		return &Result{Credential: cred}, nil
	}

	return &Result{Credential: backend.New("", variable.Value, "", "")}, nil
}

// resolveInherited walks the parent chain looking for the first group that
// declares a concrete source. Each visited group id goes into a visited
// set exactly once; seeing an id twice means the hierarchy is cyclic, and
// the walk stops with CycleDetected. The walk therefore terminates within
// chain-length steps no matter how the groups are misconfigured.
func (r *Resolver) resolveInherited(ctx context.Context, conn *entity.Connection) (*Result, error) {
	if conn.GroupID == nil {
		r.logger.Warn("connection '%s' inherits credentials but has no parent group", conn.DisplayName())
		return &Result{Credential: nil}, nil
	}

	visited := make(map[uuid.UUID]bool)
	var chain []string

	currentID := conn.GroupID
	for currentID != nil {
		if visited[*currentID] {
			err := ckerrors.CycleDetectedError{Chain: append(chain, currentID.String())}
			r.logger.Error("%v", err)
			return nil, err
		}
		visited[*currentID] = true
		chain = append(chain, currentID.String())

		group, ok := r.dir.Group(*currentID)
		if !ok {
			break
		}

		switch group.Source.Kind {
		case entity.SourceInherit, entity.SourceNone:
			// Nothing concrete declared here; keep climbing.
			currentID = group.ParentID

		case entity.SourcePrompt:
			return &Result{NeedsPrompt: true}, nil

		case entity.SourceVariable:
			return r.resolveVariable(ctx, group.Source.Variable)

		case entity.SourceVault:
			return r.resolveGroupVault(ctx, group)

		default:
			currentID = group.ParentID
		}
	}

	r.logger.Warn("no group in the ancestry of '%s' declares a credential source", conn.DisplayName())
	return nil, ckerrors.NoCredentialInChainError{Entity: conn.DisplayName()}
}

// resolveGroupVault retrieves a group's own stored credential. Flat
// backends use the id-scoped group key through the unified dispatch path.
// Tree-capable backends take a separate branch with a path-shaped key; see
// the note on dispatchVaultOp for why the two are not merged.
func (r *Resolver) resolveGroupVault(ctx context.Context, group *entity.Group) (*Result, error) {
	if r.preferredIsHierarchical(ctx) {
		// Hierarchical-key branch, kept apart from dispatchVaultOp on
		// purpose: the key is a tree path derived from ancestry, not a
		// flat string, and collapsing the two obscures both.
		cred, err := r.manager.Retrieve(ctx, r.keys.GroupPath(group))
		if err != nil {
			return nil, err
		}
		return &Result{Credential: cred}, nil
	}

	cred, err := r.dispatchVaultOp(ctx, backend.VaultOp{
		Kind: backend.OpRetrieve,
		Key:  r.keys.GroupFlatKey(group, false),
	})
	if err != nil {
		return nil, err
	}
	return &Result{Credential: cred}, nil
}

// dispatchVaultOp is the single funnel for flat-key vault operations. All
// per-backend branching for the Vault source and the flat-backend side of
// Inherit collapses into this one call; only the hierarchical Inherit
// branch above stays separate.
func (r *Resolver) dispatchVaultOp(ctx context.Context, op backend.VaultOp) (*backend.Credential, error) {
	return r.manager.Dispatch(ctx, op)
}

// ConnectionKey builds the lookup key for a connection, choosing the key
// style the preferred backend understands: tree paths for hierarchical
// backends, bare "<name> (<protocol>)" keys for the system keyring (which
// scopes entries by service itself), and namespaced flat keys everywhere
// else. The key is a pure function of name, ancestry, and protocol, so it
// is stable across calls.
func (r *Resolver) ConnectionKey(ctx context.Context, conn *entity.Connection) (string, error) {
	b, err := r.manager.AvailableBackend(ctx)
	if err != nil {
		return "", err
	}
	desc := backend.DescriptorOf(b)
	switch {
	case desc.Flags.Has(backend.FlagHierarchical):
		return r.keys.ConnectionPath(conn), nil
	case desc.ID == "keyring":
		return r.keys.FlatKey(conn), nil
	default:
		return r.keys.NamespacedKey(conn), nil
	}
}

func (r *Resolver) preferredIsHierarchical(ctx context.Context) bool {
	b, err := r.manager.AvailableBackend(ctx)
	if err != nil {
		return false
	}
	return backend.DescriptorOf(b).Flags.Has(backend.FlagHierarchical)
}

// StoreForConnection writes a credential for a connection under its
// current lookup key.
func (r *Resolver) StoreForConnection(ctx context.Context, conn *entity.Connection, cred *backend.Credential) error {
	key, err := r.ConnectionKey(ctx, conn)
	if err != nil {
		return err
	}
	_, err = r.dispatchVaultOp(ctx, backend.VaultOp{Kind: backend.OpStore, Key: key, Credential: cred})
	return err
}

// DeleteForConnection removes a connection's stored credential.
func (r *Resolver) DeleteForConnection(ctx context.Context, conn *entity.Connection) error {
	key, err := r.ConnectionKey(ctx, conn)
	if err != nil {
		return err
	}
	_, err = r.dispatchVaultOp(ctx, backend.VaultOp{Kind: backend.OpDelete, Key: key})
	return err
}

// RekeyConnection moves a connection's vault entry after a rename or a
// group move. It reads the key for the previous state and the key for the
// current state and issues one rename operation, never an independent
// delete+store pair.
func (r *Resolver) RekeyConnection(ctx context.Context, previous, current *entity.Connection) error {
	oldKey, err := r.ConnectionKey(ctx, previous)
	if err != nil {
		return err
	}
	newKey, err := r.ConnectionKey(ctx, current)
	if err != nil {
		return err
	}
	_, err = r.dispatchVaultOp(ctx, backend.VaultOp{Kind: backend.OpRename, Key: oldKey, NewKey: newKey})
	return err
}

// PurgeConnections deletes the vault entries of permanently purged
// connections, best-effort. Failures are logged inside the manager and
// summarized in the report; they never abort the purge.
func (r *Resolver) PurgeConnections(ctx context.Context, conns []*entity.Connection) *vault.PurgeReport {
	lookupKeys := make([]string, 0, len(conns))
	for _, conn := range conns {
		key, err := r.ConnectionKey(ctx, conn)
		if err != nil {
			r.logger.Warn("purge: no backend available to delete secret for '%s'", conn.DisplayName())
			continue
		}
		lookupKeys = append(lookupKeys, key)
	}
	return r.manager.PurgeSecrets(ctx, lookupKeys)
}

// InvalidateOnMutation clears the resolution cache. Call after any
// connection or group CRUD mutation.
func (r *Resolver) InvalidateOnMutation() {
	r.manager.InvalidateCache()
}
