package resolve_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/connkeep/connkeep/internal/backends"
	"github.com/connkeep/connkeep/internal/entity"
	"github.com/connkeep/connkeep/internal/logging"
	"github.com/connkeep/connkeep/internal/resolve"
	"github.com/connkeep/connkeep/internal/vars"
	"github.com/connkeep/connkeep/internal/vault"
	"github.com/connkeep/connkeep/pkg/backend"
)

// gateBackend wraps Memory and holds every Retrieve until the gate opens,
// so tests can keep a resolution in flight deliberately.
type gateBackend struct {
	*backends.Memory
	gate    chan struct{}
	mu      sync.Mutex
	arrived int
}

func newGateBackend() *gateBackend {
	return &gateBackend{Memory: backends.NewMemory(), gate: make(chan struct{})}
}

func (g *gateBackend) Retrieve(ctx context.Context, key string) (*backend.Credential, error) {
	g.mu.Lock()
	g.arrived++
	g.mu.Unlock()
	<-g.gate
	return g.Memory.Retrieve(ctx, key)
}

func (g *gateBackend) arrivals() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.arrived
}

func newAsyncFixture(t *testing.T, b backend.Backend) (*resolve.AsyncResolver, *entity.MemoryDirectory) {
	t.Helper()
	manager := vault.NewManager(logging.New(false, true), vault.Options{CacheEnabled: false})
	manager.RebuildFromSettings(context.Background(), []backend.Backend{b})
	dir := entity.NewMemoryDirectory()
	resolver := resolve.New(dir, vars.NewMemoryStore(), manager, logging.New(false, true))
	return resolve.NewAsync(resolver), dir
}

func vaultConnection(dir *entity.MemoryDirectory, name string) *entity.Connection {
	conn := &entity.Connection{ID: uuid.New(), Name: name, Protocol: "ssh", Source: entity.Vault()}
	dir.PutConnection(conn)
	return conn
}

func TestAsync_SuccessDeliversCredential(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mem := backends.NewMemory()
	async, dir := newAsyncFixture(t, mem)
	conn := vaultConnection(dir, "box")
	require.NoError(t, mem.Store(ctx, "connkeep/box (ssh)", backend.New("admin", "pw", "", "")))

	outcome := async.Submit(ctx, conn).Wait()
	require.Equal(t, resolve.StatusSuccess, outcome.Status)
	require.True(t, outcome.Result.Found())
	assert.Equal(t, "admin", outcome.Result.Credential.Username)
}

func TestAsync_CancelBeforeCompletion(t *testing.T) {
	t.Parallel()

	gate := newGateBackend()
	defer close(gate.gate)

	async, dir := newAsyncFixture(t, gate)
	conn := vaultConnection(dir, "box")

	pending := async.Submit(context.Background(), conn)

	// Let the resolution reach the backend before cancelling.
	require.Eventually(t, func() bool { return gate.arrivals() == 1 },
		time.Second, 5*time.Millisecond)
	pending.Cancel()

	outcome := pending.Wait()
	assert.Equal(t, resolve.StatusCancelled, outcome.Status)
	assert.Error(t, outcome.Err)
}

func TestAsync_CancelAfterCompletionIsNoop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mem := backends.NewMemory()
	async, dir := newAsyncFixture(t, mem)
	conn := vaultConnection(dir, "box")
	require.NoError(t, mem.Store(ctx, "connkeep/box (ssh)", backend.New("admin", "pw", "", "")))

	pending := async.Submit(ctx, conn)
	outcome := pending.Wait()
	require.Equal(t, resolve.StatusSuccess, outcome.Status)

	// A completed resolution keeps its outcome.
	pending.Cancel()
	assert.Equal(t, resolve.StatusSuccess, outcome.Status)
}

func TestAsync_ParentContextCancellation(t *testing.T) {
	t.Parallel()

	gate := newGateBackend()
	defer close(gate.gate)

	async, dir := newAsyncFixture(t, gate)
	conn := vaultConnection(dir, "box")

	ctx, cancel := context.WithCancel(context.Background())
	pending := async.Submit(ctx, conn)
	require.Eventually(t, func() bool { return gate.arrivals() == 1 },
		time.Second, 5*time.Millisecond)
	cancel()

	outcome := pending.Wait()
	assert.Equal(t, resolve.StatusCancelled, outcome.Status)
}

func TestAsync_CoalescesConcurrentLookups(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	gate := newGateBackend()
	require.NoError(t, gate.Memory.Store(ctx, "connkeep/box (ssh)", backend.New("admin", "pw", "", "")))

	async, dir := newAsyncFixture(t, gate)
	conn := vaultConnection(dir, "box")

	first := async.Submit(ctx, conn)
	require.Eventually(t, func() bool { return gate.arrivals() == 1 },
		time.Second, 5*time.Millisecond)

	second := async.Submit(ctx, conn)
	// Give the second submission time to join the in-flight lookup.
	time.Sleep(50 * time.Millisecond)
	close(gate.gate)

	out1 := first.Wait()
	out2 := second.Wait()
	require.Equal(t, resolve.StatusSuccess, out1.Status)
	require.Equal(t, resolve.StatusSuccess, out2.Status)
	assert.Equal(t, 1, gate.arrivals(), "identical lookups share one backend flight")

	// Shared flights hand out independent copies.
	out1.Result.Credential.Zeroize()
	password, err := out2.Result.Credential.Password.Reveal()
	require.NoError(t, err)
	assert.Equal(t, "pw", password)
}

func TestAsync_FailureStatus(t *testing.T) {
	t.Parallel()

	mem := backends.NewMemory()
	async, dir := newAsyncFixture(t, mem)

	conn := &entity.Connection{ID: uuid.New(), Name: "box", Protocol: "ssh", Source: entity.Variable("missing")}
	dir.PutConnection(conn)

	outcome := async.Submit(context.Background(), conn).Wait()
	assert.Equal(t, resolve.StatusFailure, outcome.Status)
	assert.Error(t, outcome.Err)
}

func TestAsync_SubmitFuncInvokesCallbackOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mem := backends.NewMemory()
	async, dir := newAsyncFixture(t, mem)
	conn := vaultConnection(dir, "box")

	done := make(chan resolve.AsyncResult, 1)
	async.SubmitFunc(ctx, conn, func(res resolve.AsyncResult) {
		done <- res
	})

	select {
	case res := <-done:
		assert.Equal(t, resolve.StatusSuccess, res.Status)
	case <-time.After(time.Second):
		t.Fatal("callback was not invoked")
	}
}
