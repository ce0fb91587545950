// Package commands implements the connkeep CLI surface on top of the vault
// manager. Commands stay thin: flag parsing, settings loading, and output
// formatting live here; all semantics live in internal/vault.
package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/connkeep/connkeep/internal/config"
	"github.com/connkeep/connkeep/internal/logging"
	"github.com/connkeep/connkeep/internal/vault"
	"github.com/connkeep/connkeep/pkg/exec"
)

// App carries the state shared by all commands, populated by the root
// command's PersistentPreRun.
type App struct {
	SettingsPath string
	Logger       *logging.Logger
	Executor     exec.CommandExecutor

	settings *config.Settings
	manager  *vault.Manager
}

// Settings loads the settings file once and caches it.
func (a *App) Settings() (*config.Settings, error) {
	if a.settings != nil {
		return a.settings, nil
	}
	path := a.SettingsPath
	if path == "" {
		path = config.DefaultPath()
	}
	settings, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	a.settings = settings
	return settings, nil
}

// Manager builds the vault manager from settings once and caches it.
func (a *App) Manager(ctx context.Context) (*vault.Manager, error) {
	if a.manager != nil {
		return a.manager, nil
	}
	settings, err := a.Settings()
	if err != nil {
		return nil, err
	}
	executor := a.Executor
	if executor == nil {
		executor = exec.DefaultExecutor()
	}
	chain, err := settings.BuildChain(ctx, executor)
	if err != nil {
		return nil, err
	}
	manager := vault.NewManager(a.Logger, settings.ManagerOptions())
	manager.RebuildFromSettings(ctx, chain)
	a.manager = manager
	return a.manager, nil
}

// readSecretLine reads one line from the reader, for password input piped
// through stdin. The trailing newline is stripped; interior whitespace is
// preserved.
func readSecretLine(prompt string) (string, error) {
	if prompt != "" {
		fmt.Fprint(os.Stderr, prompt)
	}
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
