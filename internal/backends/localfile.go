package backends

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/connkeep/connkeep/internal/envelope"
	"github.com/connkeep/connkeep/pkg/backend"
)

// localFileVersion is the on-disk format version.
const localFileVersion = 1

// localFileDoc is the YAML document persisted to disk. Entries map lookup
// keys to sealed envelopes; Legacy holds values from installs that predate
// envelope encryption and is drained into Entries on first load.
type localFileDoc struct {
	Version int                      `yaml:"version"`
	Entries map[string]envelope.Blob `yaml:"entries"`
	Legacy  map[string]string        `yaml:"legacy_entries,omitempty"`
}

// LocalFile stores credentials in a single YAML file, each value sealed
// with the machine-bound envelope. Keys may be tree paths, so this backend
// serves as the hierarchical fallback when no keyring daemon is running.
type LocalFile struct {
	mu     sync.Mutex
	path   string
	sealer *envelope.Sealer

	loaded  bool
	entries map[string]envelope.Blob
}

// NewLocalFile creates a file-backed store at path. The file is created
// lazily on first write with 0600 permissions.
func NewLocalFile(path string, sealer *envelope.Sealer) *LocalFile {
	if sealer == nil {
		sealer = envelope.NewSealer()
	}
	return &LocalFile{path: path, sealer: sealer}
}

// ID implements backend.Backend.
func (l *LocalFile) ID() string { return "local-file" }

// Descriptor implements backend.Describer.
func (l *LocalFile) Descriptor() backend.Descriptor {
	return backend.Descriptor{
		ID:    l.ID(),
		Flags: backend.FlagHierarchical | backend.FlagPersistent,
	}
}

// IsAvailable reports whether the store's directory is writable. Probe
// failures are absorbed.
func (l *LocalFile) IsAvailable(_ context.Context) bool {
	dir := filepath.Dir(l.path)
	info, err := os.Stat(dir)
	if err != nil {
		return os.MkdirAll(dir, 0o700) == nil
	}
	return info.IsDir()
}

// Store implements backend.Backend.
func (l *LocalFile) Store(_ context.Context, key string, cred *backend.Credential) error {
	encoded, err := backend.Encode(cred)
	if err != nil {
		return err
	}
	blob, err := l.sealer.Seal([]byte(encoded))
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.load(); err != nil {
		return err
	}
	l.entries[key] = blob
	return l.save()
}

// Retrieve implements backend.Backend. A missing key is (nil, nil); an
// envelope that no longer opens surfaces as DecryptionFailed from the
// sealer, which callers treat as "not configured".
func (l *LocalFile) Retrieve(_ context.Context, key string) (*backend.Credential, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.load(); err != nil {
		return nil, err
	}

	blob, ok := l.entries[key]
	if !ok {
		return nil, nil
	}
	plaintext, err := l.sealer.Open(blob)
	if err != nil {
		return nil, err
	}
	return backend.Decode(string(plaintext))
}

// Delete implements backend.Backend.
func (l *LocalFile) Delete(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.load(); err != nil {
		return err
	}
	if _, ok := l.entries[key]; !ok {
		return nil
	}
	delete(l.entries, key)
	return l.save()
}

// Rename implements backend.Renamer as a single in-file move, so the
// manager never has to fall back to retrieve/store/delete here.
func (l *LocalFile) Rename(_ context.Context, oldKey, newKey string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.load(); err != nil {
		return err
	}
	blob, ok := l.entries[oldKey]
	if !ok {
		return fmt.Errorf("no entry under key '%s'", oldKey)
	}
	l.entries[newKey] = blob
	delete(l.entries, oldKey)
	return l.save()
}

// load reads and caches the file, migrating any legacy-obfuscated values
// into sealed envelopes on the way. Callers hold l.mu.
func (l *LocalFile) load() error {
	if l.loaded {
		return nil
	}

	l.entries = make(map[string]envelope.Blob)
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			l.loaded = true
			return nil
		}
		return err
	}

	var doc localFileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing %s: %w", l.path, err)
	}
	for key, blob := range doc.Entries {
		l.entries[key] = blob
	}

	migrated := false
	for key, value := range doc.Legacy {
		if !envelope.IsLegacy(value) {
			continue
		}
		_, blob, err := l.sealer.MigrateLegacy(value)
		if err != nil {
			continue
		}
		l.entries[key] = blob
		migrated = true
	}

	l.loaded = true
	if migrated {
		return l.save()
	}
	return nil
}

// save writes the document atomically: temp file in the same directory,
// fsync-free rename. Callers hold l.mu.
func (l *LocalFile) save() error {
	doc := localFileDoc{Version: localFileVersion, Entries: l.entries}
	data, err := yaml.Marshal(&doc)
	if err != nil {
		return err
	}

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".connkeep-secrets-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, l.path)
}
