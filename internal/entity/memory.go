package entity

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryDirectory is a thread-safe in-memory Directory with soft-delete
// trash semantics. Deleting a connection moves it to the trash where it can
// be restored; only EmptyTrash removes entries for good, handing the purged
// connections back to the caller so their vault secrets can be cleaned up
// best-effort.
type MemoryDirectory struct {
	mu          sync.RWMutex
	connections map[uuid.UUID]*Connection
	groups      map[uuid.UUID]*Group
	trash       map[uuid.UUID]*Connection
}

// NewMemoryDirectory creates an empty directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		connections: make(map[uuid.UUID]*Connection),
		groups:      make(map[uuid.UUID]*Group),
		trash:       make(map[uuid.UUID]*Connection),
	}
}

// Connection implements Directory. Trashed connections are still visible;
// soft deletion must not break restore-then-resolve.
func (d *MemoryDirectory) Connection(id uuid.UUID) (*Connection, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if conn, ok := d.connections[id]; ok {
		return conn, true
	}
	conn, ok := d.trash[id]
	return conn, ok
}

// Group implements Directory.
func (d *MemoryDirectory) Group(id uuid.UUID) (*Group, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	group, ok := d.groups[id]
	return group, ok
}

// PutConnection inserts or replaces a connection.
func (d *MemoryDirectory) PutConnection(conn *Connection) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connections[conn.ID] = conn
}

// PutGroup inserts or replaces a group.
func (d *MemoryDirectory) PutGroup(group *Group) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.groups[group.ID] = group
}

// SoftDelete moves a connection to the trash. Its vault secret is left
// untouched so a restore keeps working credentials.
func (d *MemoryDirectory) SoftDelete(id uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	conn, ok := d.connections[id]
	if !ok {
		return fmt.Errorf("connection %s not found", id)
	}
	delete(d.connections, id)
	d.trash[id] = conn
	return nil
}

// Restore moves a connection out of the trash.
func (d *MemoryDirectory) Restore(id uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	conn, ok := d.trash[id]
	if !ok {
		return fmt.Errorf("connection %s not in trash", id)
	}
	delete(d.trash, id)
	d.connections[id] = conn
	return nil
}

// Trashed returns the connections currently in the trash.
func (d *MemoryDirectory) Trashed() []*Connection {
	d.mu.RLock()
	defer d.mu.RUnlock()

	result := make([]*Connection, 0, len(d.trash))
	for _, conn := range d.trash {
		result = append(result, conn)
	}
	return result
}

// EmptyTrash permanently removes all trashed connections and returns them.
// The caller is expected to purge their vault secrets best-effort.
func (d *MemoryDirectory) EmptyTrash() []*Connection {
	d.mu.Lock()
	defer d.mu.Unlock()

	purged := make([]*Connection, 0, len(d.trash))
	for id, conn := range d.trash {
		purged = append(purged, conn)
		delete(d.trash, id)
	}
	return purged
}
