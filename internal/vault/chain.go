package vault

import (
	"sync/atomic"

	"github.com/connkeep/connkeep/pkg/backend"
)

// atomicChain holds the backend priority list as an immutable snapshot.
// Readers load the slice once and iterate it without further
// synchronization; writers install a fresh slice wholesale.
type atomicChain struct {
	ptr atomic.Pointer[[]backend.Backend]
}

func (c *atomicChain) load() []backend.Backend {
	p := c.ptr.Load()
	if p == nil {
		return nil
	}
	return *p
}

func (c *atomicChain) store(chain []backend.Backend) {
	c.ptr.Store(&chain)
}
