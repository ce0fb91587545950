// Package keys builds backend lookup keys from an entity and its group
// ancestry.
//
// Two key styles exist. Tree-capable backends get hierarchical paths that
// mirror the connection tree; flat backends get single-string keys. Both
// are pure functions of name, ancestry, and protocol, so a previously
// stored secret stays retrievable for as long as those inputs are
// unchanged. Renames must go through the manager's rename operation rather
// than delete+store, so no window exists where an entry is unreachable or
// duplicated.
package keys

import (
	"fmt"
	"strings"

	"github.com/connkeep/connkeep/internal/entity"
)

// RootGroup is the top-level folder all hierarchical entries live under.
const RootGroup = "ConnKeep"

// GroupsFolder is the subfolder beneath RootGroup holding the group tree.
const GroupsFolder = "Groups"

// PathSeparator joins hierarchical path segments.
const PathSeparator = "/"

// Namespace prefixes flat keys on backends that have no native
// application scoping of their own.
const Namespace = "connkeep"

// Builder derives lookup keys using the directory's ancestry data.
type Builder struct {
	dir entity.Directory
}

// NewBuilder creates a key builder over the given directory.
func NewBuilder(dir entity.Directory) *Builder {
	return &Builder{dir: dir}
}

// entryName renders the "<name> (<protocol>)" leaf segment.
func entryName(name, protocol string) string {
	if protocol == "" {
		return name
	}
	return fmt.Sprintf("%s (%s)", name, protocol)
}

// ConnectionPath returns the hierarchical path for a connection:
// ConnKeep/Groups/<ancestry…>/<name> (<protocol>).
func (b *Builder) ConnectionPath(conn *entity.Connection) string {
	parts := []string{RootGroup, GroupsFolder}
	if conn.GroupID != nil {
		for _, group := range entity.Ancestry(b.dir, *conn.GroupID) {
			parts = append(parts, group.Name)
		}
	}
	parts = append(parts, entryName(conn.DisplayName(), conn.Protocol))
	return strings.Join(parts, PathSeparator)
}

// GroupPath returns the hierarchical path for a group's own credential:
// ConnKeep/Groups/<ancestry…>.
func (b *Builder) GroupPath(group *entity.Group) string {
	parts := []string{RootGroup, GroupsFolder}
	for _, ancestor := range entity.Ancestry(b.dir, group.ID) {
		parts = append(parts, ancestor.Name)
	}
	return strings.Join(parts, PathSeparator)
}

// FlatKey returns the system-keyring style key "<name> (<protocol>)".
func (b *Builder) FlatKey(conn *entity.Connection) string {
	return entryName(conn.DisplayName(), conn.Protocol)
}

// NamespacedKey returns the "<namespace>/<name>" key used by flat backends
// other than the system keyring.
func (b *Builder) NamespacedKey(conn *entity.Connection) string {
	return Namespace + PathSeparator + entryName(conn.DisplayName(), conn.Protocol)
}

// GroupFlatKey returns the flat lookup key for a group's credential. When
// usePath is true the key embeds the sanitized ancestry path for
// readability; otherwise it uses the stable group id.
func (b *Builder) GroupFlatKey(group *entity.Group, usePath bool) string {
	if usePath {
		names := make([]string, 0, 4)
		for _, ancestor := range entity.Ancestry(b.dir, group.ID) {
			names = append(names, ancestor.Name)
		}
		sanitized := strings.ReplaceAll(strings.Join(names, PathSeparator), PathSeparator, "-")
		return "group:" + sanitized
	}
	return "group:" + group.ID.String()
}

// VariableKey returns the backend lookup key for a secret global variable.
func VariableKey(name string) string {
	return Namespace + "/var/" + name
}

// GroupPaths returns every folder path that must exist for the given entry
// path, ordered root to leaf and excluding the entry itself. For
// "ConnKeep/Groups/A/entry" it returns ["ConnKeep", "ConnKeep/Groups",
// "ConnKeep/Groups/A"].
func GroupPaths(entryPath string) []string {
	parts := strings.Split(entryPath, PathSeparator)
	if len(parts) < 2 {
		return nil
	}

	paths := make([]string, 0, len(parts)-1)
	current := ""
	for _, part := range parts[:len(parts)-1] {
		if current != "" {
			current += PathSeparator
		}
		current += part
		paths = append(paths, current)
	}
	return paths
}

// MissingGroups returns the folder paths that must be created before the
// given entry path can be written, ordered root to leaf.
func MissingGroups(entryPath string, existing map[string]bool) []string {
	var missing []string
	for _, path := range GroupPaths(entryPath) {
		if !existing[path] {
			missing = append(missing, path)
		}
	}
	return missing
}

// EntryName returns the last segment of a hierarchical path.
func EntryName(path string) string {
	idx := strings.LastIndex(path, PathSeparator)
	if idx < 0 {
		return path
	}
	return path[idx+1:]
}

// ParentPath returns the folder part of a hierarchical path, or "" when
// the path has no parent.
func ParentPath(path string) string {
	idx := strings.LastIndex(path, PathSeparator)
	if idx <= 0 {
		return ""
	}
	return path[:idx]
}
