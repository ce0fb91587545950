package backends

import (
	"context"
	"fmt"
	"strings"

	"github.com/connkeep/connkeep/pkg/backend"
	"github.com/connkeep/connkeep/pkg/exec"
)

const secretToolBinary = "secret-tool"

// SecretTool talks to the freedesktop Secret Service through the
// secret-tool CLI. It covers setups where the D-Bus API is fenced off but
// the CLI still works (Flatpak, some sandboxes). Entries are tagged with
// an application attribute so purge and lookup never touch foreign items.
type SecretTool struct {
	executor exec.CommandExecutor
	lookPath func(string) bool
}

// NewSecretTool creates a backend that shells out to secret-tool.
func NewSecretTool(executor exec.CommandExecutor) *SecretTool {
	if executor == nil {
		executor = exec.DefaultExecutor()
	}
	return &SecretTool{executor: executor, lookPath: exec.LookPath}
}

// ID implements backend.Backend.
func (s *SecretTool) ID() string { return "secret-service" }

// Descriptor implements backend.Describer.
func (s *SecretTool) Descriptor() backend.Descriptor {
	return backend.Descriptor{ID: s.ID(), Flags: backend.FlagPersistent | backend.FlagRemote}
}

// IsAvailable reports whether the binary exists and the daemon answers.
// A failed search for a nonexistent attribute still proves the daemon is
// up; only a transport error marks the backend unavailable.
func (s *SecretTool) IsAvailable(ctx context.Context) bool {
	if !s.lookPath(secretToolBinary) {
		return false
	}
	_, stderr, err := s.executor.Execute(ctx, secretToolBinary,
		"search", "application", "connkeep")
	if err != nil && strings.Contains(string(stderr), "Cannot create an item in a locked collection") {
		return false
	}
	if err != nil && strings.Contains(strings.ToLower(string(stderr)), "error") {
		return false
	}
	return true
}

// Store implements backend.Backend. The encoded credential goes through
// stdin so it never shows up in a process listing.
func (s *SecretTool) Store(ctx context.Context, key string, cred *backend.Credential) error {
	encoded, err := backend.Encode(cred)
	if err != nil {
		return err
	}
	_, _, err = s.executor.ExecuteWithInput(ctx, []byte(encoded), secretToolBinary,
		"store", "--label="+key,
		"application", "connkeep",
		"key", key)
	return err
}

// Retrieve implements backend.Backend. secret-tool exits nonzero with a
// silent stderr when no item matches, which maps to (nil, nil). A nonzero
// exit that writes to stderr means the daemon could not answer, and that
// is an error, not an absence.
func (s *SecretTool) Retrieve(ctx context.Context, key string) (*backend.Credential, error) {
	stdout, stderr, err := s.executor.Execute(ctx, secretToolBinary,
		"lookup",
		"application", "connkeep",
		"key", key)
	if err != nil {
		if msg := strings.TrimSpace(string(stderr)); msg != "" {
			return nil, fmt.Errorf("secret-tool lookup failed: %s: %w", msg, err)
		}
		return nil, nil
	}
	value := strings.TrimRight(string(stdout), "\n")
	if value == "" {
		return nil, nil
	}
	return backend.Decode(value)
}

// Delete implements backend.Backend. secret-tool clear exits zero even
// when nothing matched, so any failure here is a real one and must reach
// the caller; swallowing it would let a rename report success while the
// old item is still live.
func (s *SecretTool) Delete(ctx context.Context, key string) error {
	_, stderr, err := s.executor.Execute(ctx, secretToolBinary,
		"clear",
		"application", "connkeep",
		"key", key)
	if err != nil {
		if msg := strings.TrimSpace(string(stderr)); msg != "" {
			return fmt.Errorf("secret-tool clear failed: %s: %w", msg, err)
		}
		return fmt.Errorf("secret-tool clear failed: %w", err)
	}
	return nil
}
