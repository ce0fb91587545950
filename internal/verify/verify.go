// Package verify tracks whether a stored credential has been confirmed to
// work against its endpoint. Resolution only proves a credential exists;
// a client that authenticates with it reports the outcome here so later
// sessions know whether to connect automatically or fall back to a prompt.
package verify

import (
	"encoding/json"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the verification record for one connection's credential. The
// zero value means never verified, which is the state every connection
// starts in.
type Status struct {
	Verified     bool      `json:"verified"`
	VerifiedAt   time.Time `json:"verified_at,omitzero"`
	FailedAt     time.Time `json:"failed_at,omitzero"`
	FailureCount uint32    `json:"failure_count,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
}

// RequiresVerification reports whether the credential still needs to be
// confirmed before it can be used without asking the user.
func (s Status) RequiresVerification() bool { return !s.Verified }

// HasFailures reports whether any authentication attempt has failed since
// the last successful verification.
func (s Status) HasFailures() bool { return s.FailureCount > 0 }

// Tracker holds verification state keyed by connection id. Safe for
// concurrent use.
type Tracker struct {
	mu       sync.RWMutex
	statuses map[uuid.UUID]Status
	now      func() time.Time
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		statuses: make(map[uuid.UUID]Status),
		now:      time.Now,
	}
}

// Status returns the record for the given connection. Unknown connections
// report the unverified zero value.
func (t *Tracker) Status(id uuid.UUID) Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.statuses[id]
}

// IsVerified reports whether the connection's credential is currently
// verified.
func (t *Tracker) IsVerified(id uuid.UUID) bool {
	return t.Status(id).Verified
}

// MarkVerified records a successful authentication. The failure history is
// reset: a credential that works now is trusted regardless of how often an
// earlier value failed.
func (t *Tracker) MarkVerified(id uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.statuses[id]
	s.Verified = true
	s.VerifiedAt = t.now()
	s.FailureCount = 0
	s.LastError = ""
	t.statuses[id] = s
}

// MarkUnverified records a failed authentication with the given reason.
// The failure count saturates rather than wrapping.
func (t *Tracker) MarkUnverified(id uuid.UUID, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.statuses[id]
	s.Verified = false
	s.FailedAt = t.now()
	if s.FailureCount < math.MaxUint32 {
		s.FailureCount++
	}
	s.LastError = reason
	t.statuses[id] = s
}

// Remove drops the record for a connection, for when the connection itself
// is deleted.
func (t *Tracker) Remove(id uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.statuses, id)
}

// Clear drops every record.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.statuses = make(map[uuid.UUID]Status)
}

// Len returns the number of tracked connections.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.statuses)
}

// Verified returns the ids of all currently verified connections.
func (t *Tracker) Verified() []uuid.UUID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var ids []uuid.UUID
	for id, s := range t.statuses {
		if s.Verified {
			ids = append(ids, id)
		}
	}
	return ids
}

// Failed returns the ids of all connections with at least one recorded
// authentication failure.
func (t *Tracker) Failed() []uuid.UUID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var ids []uuid.UUID
	for id, s := range t.statuses {
		if s.FailureCount > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

// Snapshot serializes the tracker state so it can be persisted alongside
// the settings file. Only verification metadata is recorded; no secret
// material ever passes through here.
func (t *Tracker) Snapshot() ([]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return json.Marshal(t.statuses)
}

// Restore replaces the tracker state with a previously snapshotted one.
func (t *Tracker) Restore(data []byte) error {
	statuses := make(map[uuid.UUID]Status)
	if err := json.Unmarshal(data, &statuses); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.statuses = statuses
	return nil
}
