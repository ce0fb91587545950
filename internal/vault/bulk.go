package vault

import (
	"context"

	"github.com/connkeep/connkeep/pkg/backend"

	ckerrors "github.com/connkeep/connkeep/internal/errors"
)

// BulkResult tallies a multi-key credential operation.
type BulkResult struct {
	SuccessCount int
	FailureCount int
	FailedKeys   []string
	Errors       []string
}

// IsSuccess reports whether every operation succeeded.
func (r *BulkResult) IsSuccess() bool {
	return r.FailureCount == 0
}

// Total returns the number of operations attempted.
func (r *BulkResult) Total() int {
	return r.SuccessCount + r.FailureCount
}

func (r *BulkResult) recordSuccess() {
	r.SuccessCount++
}

func (r *BulkResult) recordFailure(key string, err error) {
	r.FailureCount++
	r.FailedKeys = append(r.FailedKeys, key)
	r.Errors = append(r.Errors, err.Error())
}

// StoreBulk stores credentials for multiple keys, continuing past
// individual failures.
func (m *Manager) StoreBulk(ctx context.Context, creds map[string]*backend.Credential) *BulkResult {
	result := &BulkResult{}
	for key, cred := range creds {
		if err := m.Store(ctx, key, cred); err != nil {
			result.recordFailure(key, err)
		} else {
			result.recordSuccess()
		}
	}
	return result
}

// DeleteBulk deletes the entries for multiple keys, continuing past
// individual failures.
func (m *Manager) DeleteBulk(ctx context.Context, keys []string) *BulkResult {
	result := &BulkResult{}
	for _, key := range keys {
		if err := m.Delete(ctx, key); err != nil {
			result.recordFailure(key, err)
		} else {
			result.recordSuccess()
		}
	}
	return result
}

// CopyCredentials copies the entry under srcKey to each destination key.
func (m *Manager) CopyCredentials(ctx context.Context, srcKey string, dstKeys []string) (*BulkResult, error) {
	b, err := m.AvailableBackend(ctx)
	if err != nil {
		return nil, err
	}
	source, err := m.retrieveFrom(ctx, b, srcKey)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return nil, ckerrors.OpError{
			Backend: b.ID(),
			Op:      ckerrors.OpCopy,
			Key:     srcKey,
			Err:     ckerrors.UserError{Message: "source credentials not found"},
		}
	}

	result := &BulkResult{}
	for _, dst := range dstKeys {
		if err := m.Store(ctx, dst, source); err != nil {
			result.recordFailure(dst, err)
		} else {
			result.recordSuccess()
		}
	}
	return result, nil
}

// KeysWithCredentials returns the subset of keys that currently have a
// stored entry. Lookup errors count as "no entry".
func (m *Manager) KeysWithCredentials(ctx context.Context, keys []string) []string {
	var found []string
	for _, key := range keys {
		if cred, err := m.Retrieve(ctx, key); err == nil && cred != nil {
			found = append(found, key)
			cred.Zeroize()
		}
	}
	return found
}

// PurgeReport summarizes a best-effort purge of vault secrets.
type PurgeReport struct {
	Deleted int
	Failed  []string
}

// PurgeSecrets deletes the entries for the given keys as part of
// permanently purging deleted entities. Individual failures are logged and
// recorded but never propagated: one unreachable backend must not prevent
// the trash from emptying.
func (m *Manager) PurgeSecrets(ctx context.Context, lookupKeys []string) *PurgeReport {
	report := &PurgeReport{}
	for _, key := range lookupKeys {
		if err := m.Delete(ctx, key); err != nil {
			m.logger.Warn("purge: could not delete vault entry for key '%s': %v", key, err)
			report.Failed = append(report.Failed, key)
			continue
		}
		report.Deleted++
	}
	return report
}
