package resolve

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/connkeep/connkeep/internal/entity"
)

// Status classifies the terminal state of an async resolution. Exactly one
// of the three is delivered per submission.
type Status int

const (
	// StatusSuccess means resolution completed and the outcome (credential,
	// prompt signal, or nothing stored) is in Result.
	StatusSuccess Status = iota
	// StatusFailure means resolution failed with a typed error.
	StatusFailure
	// StatusCancelled means the caller cancelled before completion.
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// AsyncResult is the single terminal outcome of a submission.
type AsyncResult struct {
	Status Status
	Result *Result
	Err    error
}

// Pending is the caller's handle on an in-flight resolution. Wait blocks
// for the outcome; Cancel requests cooperative cancellation and is a no-op
// once the outcome has been delivered.
type Pending struct {
	done      chan AsyncResult
	cancel    context.CancelFunc
	deliverMu sync.Once
}

// Wait blocks until the resolution reaches a terminal state and returns it.
// It is safe to call from exactly one goroutine.
func (p *Pending) Wait() AsyncResult {
	return <-p.done
}

// Cancel requests cancellation. The resolution observes it at the next
// checkpoint between steps; a resolution that already completed keeps its
// original outcome.
func (p *Pending) Cancel() {
	p.cancel()
}

func (p *Pending) deliver(res AsyncResult) {
	p.deliverMu.Do(func() {
		p.done <- res
		close(p.done)
	})
}

// AsyncResolver runs resolutions on background goroutines so the caller's
// foreground path never blocks on a slow backend. Concurrent submissions
// for the same vault key are coalesced into one backend flight; each
// waiter still gets its own outcome and its own cancellation.
type AsyncResolver struct {
	resolver *Resolver
	flights  singleflight.Group
}

// NewAsync wraps a resolver with the async driver.
func NewAsync(resolver *Resolver) *AsyncResolver {
	return &AsyncResolver{resolver: resolver}
}

// Submit starts resolving the connection's credentials in the background
// and returns a handle immediately. The parent context bounds the work;
// Pending.Cancel cancels this submission alone.
func (a *AsyncResolver) Submit(ctx context.Context, conn *entity.Connection) *Pending {
	taskCtx, cancel := context.WithCancel(ctx)
	p := &Pending{done: make(chan AsyncResult, 1), cancel: cancel}

	go func() {
		defer cancel()
		p.deliver(a.run(taskCtx, conn))
	}()

	return p
}

// SubmitFunc is like Submit but invokes fn with the terminal outcome
// instead of handing back a waitable handle. fn runs on the background
// goroutine and is called exactly once.
func (a *AsyncResolver) SubmitFunc(ctx context.Context, conn *entity.Connection, fn func(AsyncResult)) *Pending {
	taskCtx, cancel := context.WithCancel(ctx)
	p := &Pending{done: make(chan AsyncResult, 1), cancel: cancel}

	go func() {
		defer cancel()
		res := a.run(taskCtx, conn)
		p.deliver(res)
		fn(res)
	}()

	return p
}

// run executes one resolution, coalescing identical lookups. The flight
// itself runs detached from any single caller's context so that one
// cancelled waiter cannot poison the shared result; each waiter races its
// own context against flight completion instead.
func (a *AsyncResolver) run(ctx context.Context, conn *entity.Connection) AsyncResult {
	if err := ctx.Err(); err != nil {
		return AsyncResult{Status: StatusCancelled, Err: err}
	}

	key, coalesce := a.coalesceKey(ctx, conn)
	if !coalesce {
		res, err := a.resolver.Resolve(ctx, conn)
		return a.classify(ctx, res, err, false)
	}

	flightCtx := context.WithoutCancel(ctx)
	ch := a.flights.DoChan(key, func() (interface{}, error) {
		return a.resolver.Resolve(flightCtx, conn)
	})

	select {
	case <-ctx.Done():
		return AsyncResult{Status: StatusCancelled, Err: ctx.Err()}
	case fr := <-ch:
		var res *Result
		if fr.Val != nil {
			res = fr.Val.(*Result)
		}
		return a.classify(ctx, res, fr.Err, fr.Shared)
	}
}

// coalesceKey returns the dedup key for a submission. Only vault-backed
// sources share flights; prompt, none, and inherit resolutions are cheap
// or entity-specific and get a unique key each.
func (a *AsyncResolver) coalesceKey(ctx context.Context, conn *entity.Connection) (string, bool) {
	switch conn.Source.Kind {
	case entity.SourceVault:
		key, err := a.resolver.ConnectionKey(ctx, conn)
		if err != nil {
			return uuid.NewString(), false
		}
		return key, true
	case entity.SourceVariable:
		return "var:" + conn.Source.Variable, true
	default:
		return uuid.NewString(), false
	}
}

// classify maps a resolver outcome onto the terminal status, cloning the
// credential when the flight was shared so one waiter's Zeroize cannot
// reach another's copy.
func (a *AsyncResolver) classify(ctx context.Context, res *Result, err error, shared bool) AsyncResult {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return AsyncResult{Status: StatusCancelled, Err: ctxErr}
	}
	if err != nil {
		return AsyncResult{Status: StatusFailure, Err: err}
	}
	if shared && res != nil && res.Credential != nil {
		clone, cerr := res.Credential.Clone()
		if cerr != nil {
			return AsyncResult{Status: StatusFailure, Err: cerr}
		}
		res = &Result{Credential: clone, NeedsPrompt: res.NeedsPrompt}
	}
	return AsyncResult{Status: StatusSuccess, Result: res}
}
