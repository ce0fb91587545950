// Package entity holds the connection/group model consumed by credential
// resolution: stable ids, the parent-group tree, and each entity's declared
// password source. Connection and group CRUD storage itself lives
// elsewhere; this package only defines the lookup contract the key builder
// and resolver depend on, plus an in-memory directory used by tests and
// the CLI.
package entity

import (
	"github.com/google/uuid"
)

// SourceKind enumerates the declared strategies for obtaining a
// credential.
type SourceKind int

const (
	// SourceNone resolves to an empty credential.
	SourceNone SourceKind = iota
	// SourcePrompt defers to interactive input; never resolved or cached.
	SourcePrompt
	// SourceVault reads the credential from the secret backend chain.
	SourceVault
	// SourceVariable reads the credential password from a named global
	// variable.
	SourceVariable
	// SourceInherit delegates to the parent group's own source,
	// recursively.
	SourceInherit
)

func (k SourceKind) String() string {
	switch k {
	case SourceNone:
		return "none"
	case SourcePrompt:
		return "prompt"
	case SourceVault:
		return "vault"
	case SourceVariable:
		return "variable"
	case SourceInherit:
		return "inherit"
	default:
		return "unknown"
	}
}

// PasswordSource is the tagged policy attached to a connection or group.
type PasswordSource struct {
	Kind SourceKind
	// Variable is the global variable name when Kind is SourceVariable.
	Variable string
}

// None is the default password source.
func None() PasswordSource { return PasswordSource{Kind: SourceNone} }

// Prompt declares interactive input.
func Prompt() PasswordSource { return PasswordSource{Kind: SourcePrompt} }

// Vault declares backend-stored credentials.
func Vault() PasswordSource { return PasswordSource{Kind: SourceVault} }

// Variable declares resolution from the named global variable.
func Variable(name string) PasswordSource {
	return PasswordSource{Kind: SourceVariable, Variable: name}
}

// Inherit declares delegation to the parent group.
func Inherit() PasswordSource { return PasswordSource{Kind: SourceInherit} }

// Connection is an endpoint entry. GroupID is nil for top-level
// connections.
type Connection struct {
	ID       uuid.UUID
	Name     string
	Host     string
	Protocol string
	GroupID  *uuid.UUID
	Source   PasswordSource
}

// DisplayName returns the connection name, falling back to the host when
// the name is blank, so every connection yields a non-empty lookup key.
func (c *Connection) DisplayName() string {
	if c.Name == "" {
		return c.Host
	}
	return c.Name
}

// Group is a node in the connection tree. ParentID is nil at the root
// level.
type Group struct {
	ID       uuid.UUID
	Name     string
	ParentID *uuid.UUID
	Source   PasswordSource
}

// Directory is the ancestry-lookup contract consumed by the key builder
// and the resolver. The backing store owns mutation; resolution only ever
// reads.
type Directory interface {
	// Connection returns the connection with the given id.
	Connection(id uuid.UUID) (*Connection, bool)
	// Group returns the group with the given id.
	Group(id uuid.UUID) (*Group, bool)
}

// Ancestry returns the chain of groups from the root down to and including
// the group with the given id. Unknown ids terminate the walk. The walk is
// bounded by the number of distinct groups visited, so a cyclic hierarchy
// cannot loop it.
func Ancestry(dir Directory, groupID uuid.UUID) []*Group {
	var chain []*Group
	seen := make(map[uuid.UUID]bool)

	current := &groupID
	for current != nil {
		if seen[*current] {
			break
		}
		seen[*current] = true

		group, ok := dir.Group(*current)
		if !ok {
			break
		}
		chain = append([]*Group{group}, chain...)
		current = group.ParentID
	}

	return chain
}
