package vault

import (
	"context"
	"errors"
	"time"

	"github.com/connkeep/connkeep/internal/logging"
	"github.com/connkeep/connkeep/internal/metrics"
	"github.com/connkeep/connkeep/pkg/backend"

	ckerrors "github.com/connkeep/connkeep/internal/errors"
)

// DefaultBackendTimeout bounds every backend call. Backends that shell out
// or cross the network fail with BackendTimeout instead of stalling a
// worker.
const DefaultBackendTimeout = 5 * time.Second

// Options configures a Manager.
type Options struct {
	// CacheTTL is the resolution cache validity window.
	// Zero means DefaultCacheTTL.
	CacheTTL time.Duration
	// BackendTimeout bounds individual backend calls.
	// Zero means DefaultBackendTimeout.
	BackendTimeout time.Duration
	// CacheEnabled toggles the resolution cache.
	CacheEnabled bool
}

// Manager owns the backend priority chain and the resolution cache.
//
// The chain is an immutable snapshot: RebuildFromSettings swaps in a new
// slice for subsequent calls while any operation already in flight keeps
// iterating the snapshot it started with.
type Manager struct {
	chain atomicChain

	cache        *Cache
	cacheEnabled bool
	timeout      time.Duration
	logger       *logging.Logger
	metrics      *metrics.VaultMetrics
}

// NewManager creates a manager with an empty backend chain.
func NewManager(logger *logging.Logger, opts Options) *Manager {
	timeout := opts.BackendTimeout
	if timeout <= 0 {
		timeout = DefaultBackendTimeout
	}
	m := &Manager{
		cache:        NewCache(opts.CacheTTL),
		cacheEnabled: opts.CacheEnabled,
		timeout:      timeout,
		logger:       logger,
		metrics:      metrics.NewVaultMetrics(),
	}
	m.chain.store(nil)
	return m
}

// Chain returns the current backend snapshot in priority order.
func (m *Manager) Chain() []backend.Backend {
	return m.chain.load()
}

// AvailableBackend returns the first backend in priority order whose
// availability probe answers true.
func (m *Manager) AvailableBackend(ctx context.Context) (backend.Backend, error) {
	for _, b := range m.chain.load() {
		if b.IsAvailable(ctx) {
			return b, nil
		}
	}
	return nil, ckerrors.BackendUnavailableError{}
}

// AvailableBackends returns the ids of all backends currently answering
// their availability probe, in priority order.
func (m *Manager) AvailableBackends(ctx context.Context) []string {
	var ids []string
	for _, b := range m.chain.load() {
		if b.IsAvailable(ctx) {
			ids = append(ids, b.ID())
		}
	}
	return ids
}

// IsAvailable reports whether any backend in the chain is reachable.
func (m *Manager) IsAvailable(ctx context.Context) bool {
	_, err := m.AvailableBackend(ctx)
	return err == nil
}

// Retrieve returns the credential stored under key, consulting the cache
// first. Cache entries past their TTL are never served. A backend miss
// returns (nil, nil).
func (m *Manager) Retrieve(ctx context.Context, key string) (*backend.Credential, error) {
	if m.cacheEnabled {
		if cred, ok := m.cache.Get(key); ok {
			m.metrics.RecordCacheHit()
			return cred, nil
		}
		m.metrics.RecordCacheMiss()
	}

	b, err := m.AvailableBackend(ctx)
	if err != nil {
		return nil, err
	}

	cred, err := m.retrieveFrom(ctx, b, key)
	if err != nil {
		return nil, err
	}
	if cred != nil && m.cacheEnabled {
		m.cache.Put(key, cred)
	}
	return cred, nil
}

// Store persists a credential under key on the selected backend and
// refreshes the cache entry.
func (m *Manager) Store(ctx context.Context, key string, cred *backend.Credential) error {
	b, err := m.AvailableBackend(ctx)
	if err != nil {
		return err
	}

	if err := m.storeOn(ctx, b, key, cred); err != nil {
		return err
	}
	if m.cacheEnabled {
		m.cache.Put(key, cred)
	}
	return nil
}

// Delete removes the credential under key from the selected backend and
// drops the cache entry.
func (m *Manager) Delete(ctx context.Context, key string) error {
	m.cache.Remove(key)

	b, err := m.AvailableBackend(ctx)
	if err != nil {
		return err
	}
	return m.deleteOn(ctx, b, key)
}

// Rename moves the entry under oldKey to newKey. Backends with a native
// move get one call; others are moved by writing the new key before the
// old one is cleared, so the secret is never unreachable. Either way the
// end state has exactly one entry, under newKey.
func (m *Manager) Rename(ctx context.Context, oldKey, newKey string) error {
	if oldKey == newKey {
		return nil
	}

	b, err := m.AvailableBackend(ctx)
	if err != nil {
		return err
	}

	if renamer, ok := b.(backend.Renamer); ok {
		if err := m.callBounded(ctx, b.ID(), "rename", func(callCtx context.Context) error {
			return renamer.Rename(callCtx, oldKey, newKey)
		}); err != nil {
			return ckerrors.OpError{Backend: b.ID(), Op: ckerrors.OpRename, Key: oldKey, Err: err}
		}
	} else {
		cred, err := m.retrieveFrom(ctx, b, oldKey)
		if err != nil {
			return err
		}
		if cred == nil {
			return ckerrors.RenameKeyMismatchError{
				OldKey: oldKey,
				NewKey: newKey,
				Reason: "no entry under old key",
			}
		}
		if err := m.storeOn(ctx, b, newKey, cred); err != nil {
			return ckerrors.RenameKeyMismatchError{
				OldKey: oldKey,
				NewKey: newKey,
				Reason: "writing new key failed: " + err.Error(),
			}
		}
		if err := m.deleteOn(ctx, b, oldKey); err != nil {
			// Undo the new entry so we do not leave a duplicate behind.
			if undoErr := m.deleteOn(ctx, b, newKey); undoErr != nil {
				m.logger.Error("rename rollback failed for key '%s': %v", newKey, undoErr)
			}
			return ckerrors.RenameKeyMismatchError{
				OldKey: oldKey,
				NewKey: newKey,
				Reason: "clearing old key failed: " + err.Error(),
			}
		}
	}

	if m.cacheEnabled {
		if cred, ok := m.cache.Get(oldKey); ok {
			m.cache.Put(newKey, cred)
		}
	}
	m.cache.Remove(oldKey)
	return nil
}

// Copy duplicates the entry under srcKey to dstKey, leaving the source in
// place.
func (m *Manager) Copy(ctx context.Context, srcKey, dstKey string) error {
	b, err := m.AvailableBackend(ctx)
	if err != nil {
		return err
	}

	cred, err := m.retrieveFrom(ctx, b, srcKey)
	if err != nil {
		return err
	}
	if cred == nil {
		return ckerrors.OpError{
			Backend: b.ID(),
			Op:      ckerrors.OpCopy,
			Key:     srcKey,
			Err:     errors.New("source entry not found"),
		}
	}

	if err := m.storeOn(ctx, b, dstKey, cred); err != nil {
		return err
	}
	if m.cacheEnabled {
		m.cache.Put(dstKey, cred)
	}
	return nil
}

// Dispatch executes a normalized vault operation. This is the single
// funnel for all backend-bound branching: callers describe what they want
// in a VaultOp and never switch on backend kinds themselves.
func (m *Manager) Dispatch(ctx context.Context, op backend.VaultOp) (*backend.Credential, error) {
	if op.BackendOverride != "" {
		return m.dispatchPinned(ctx, op)
	}

	switch op.Kind {
	case backend.OpRetrieve:
		return m.Retrieve(ctx, op.Key)
	case backend.OpStore:
		return nil, m.Store(ctx, op.Key, op.Credential)
	case backend.OpDelete:
		return nil, m.Delete(ctx, op.Key)
	case backend.OpRename:
		return nil, m.Rename(ctx, op.Key, op.NewKey)
	case backend.OpCopy:
		return nil, m.Copy(ctx, op.Key, op.NewKey)
	default:
		return nil, errors.New("unknown vault operation")
	}
}

// dispatchPinned routes an operation to one specific backend, bypassing
// the priority chain. Used when a policy names the backend explicitly.
func (m *Manager) dispatchPinned(ctx context.Context, op backend.VaultOp) (*backend.Credential, error) {
	b, ok := m.backendByID(op.BackendOverride)
	if !ok {
		return nil, ckerrors.BackendUnavailableError{Reason: "backend '" + op.BackendOverride + "' not configured"}
	}
	if !b.IsAvailable(ctx) {
		return nil, ckerrors.BackendUnavailableError{Reason: "backend '" + op.BackendOverride + "' not available"}
	}

	switch op.Kind {
	case backend.OpRetrieve:
		cred, err := m.retrieveFrom(ctx, b, op.Key)
		if err != nil {
			return nil, err
		}
		if cred != nil && m.cacheEnabled {
			m.cache.Put(op.Key, cred)
		}
		return cred, nil
	case backend.OpStore:
		if err := m.storeOn(ctx, b, op.Key, op.Credential); err != nil {
			return nil, err
		}
		if m.cacheEnabled {
			m.cache.Put(op.Key, op.Credential)
		}
		return nil, nil
	case backend.OpDelete:
		m.cache.Remove(op.Key)
		return nil, m.deleteOn(ctx, b, op.Key)
	default:
		return nil, errors.New("operation not supported with a backend override")
	}
}

// RebuildFromSettings atomically replaces the backend priority chain and
// unconditionally clears the cache. Operations already in flight keep the
// snapshot they started with.
func (m *Manager) RebuildFromSettings(ctx context.Context, chain []backend.Backend) {
	before := len(m.chain.load())

	snapshot := make([]backend.Backend, len(chain))
	copy(snapshot, chain)
	m.chain.store(snapshot)

	m.cache.InvalidateAll()

	preferred := "none"
	if b, err := m.AvailableBackend(ctx); err == nil {
		preferred = b.ID()
	}
	m.logger.Info("backend chain rebuilt: %d -> %d backends, preferred: %s",
		before, len(snapshot), preferred)
	m.metrics.RecordRebuild(len(snapshot))
}

// InvalidateCache drops every cached credential. Called on any connection
// or group mutation.
func (m *Manager) InvalidateCache() {
	m.cache.InvalidateAll()
}

func (m *Manager) backendByID(id string) (backend.Backend, bool) {
	for _, b := range m.chain.load() {
		if b.ID() == id {
			return b, true
		}
	}
	return nil, false
}

func (m *Manager) retrieveFrom(ctx context.Context, b backend.Backend, key string) (*backend.Credential, error) {
	var cred *backend.Credential
	err := m.callBounded(ctx, b.ID(), "retrieve", func(callCtx context.Context) error {
		var innerErr error
		cred, innerErr = b.Retrieve(callCtx, key)
		return innerErr
	})
	if err != nil {
		if ckerrors.IsTimeout(err) {
			return nil, err
		}
		return nil, ckerrors.OpError{Backend: b.ID(), Op: ckerrors.OpRetrieve, Key: key, Err: err}
	}
	return cred, nil
}

func (m *Manager) storeOn(ctx context.Context, b backend.Backend, key string, cred *backend.Credential) error {
	err := m.callBounded(ctx, b.ID(), "store", func(callCtx context.Context) error {
		return b.Store(callCtx, key, cred)
	})
	if err != nil {
		if ckerrors.IsTimeout(err) {
			return err
		}
		return ckerrors.OpError{Backend: b.ID(), Op: ckerrors.OpStore, Key: key, Err: err}
	}
	return nil
}

func (m *Manager) deleteOn(ctx context.Context, b backend.Backend, key string) error {
	err := m.callBounded(ctx, b.ID(), "delete", func(callCtx context.Context) error {
		return b.Delete(callCtx, key)
	})
	if err != nil {
		if ckerrors.IsTimeout(err) {
			return err
		}
		return ckerrors.OpError{Backend: b.ID(), Op: ckerrors.OpDelete, Key: key, Err: err}
	}
	return nil
}

// callBounded runs one backend call under the manager timeout and records
// its outcome.
func (m *Manager) callBounded(ctx context.Context, backendID, operation string, fn func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := fn(callCtx)
	switch {
	case err == nil:
		m.metrics.RecordBackendOp(backendID, operation, "success")
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		m.metrics.RecordBackendOp(backendID, operation, "timeout")
		return ckerrors.BackendTimeoutError{Backend: backendID, Timeout: m.timeout}
	default:
		m.metrics.RecordBackendOp(backendID, operation, "error")
		return err
	}
}
