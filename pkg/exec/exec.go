// Package exec abstracts subprocess execution so CLI-backed secret
// backends can be exercised in tests without the real binaries installed.
package exec

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
)

// CommandExecutor runs external commands. Secret backends that shell out
// (secret-tool and friends) depend on this interface rather than os/exec
// directly.
type CommandExecutor interface {
	// Execute runs a command and returns stdout, stderr, and any error.
	Execute(ctx context.Context, name string, args ...string) (stdout []byte, stderr []byte, err error)

	// ExecuteWithInput runs a command with the given bytes piped to its
	// stdin. Used for commands that read secrets from stdin so the value
	// never appears in an argument list.
	ExecuteWithInput(ctx context.Context, input []byte, name string, args ...string) (stdout []byte, stderr []byte, err error)
}

// RealCommandExecutor executes actual subprocesses. Production
// implementation.
type RealCommandExecutor struct{}

// Execute implements CommandExecutor.
func (r *RealCommandExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	return r.run(ctx, nil, name, args...)
}

// ExecuteWithInput implements CommandExecutor.
func (r *RealCommandExecutor) ExecuteWithInput(ctx context.Context, input []byte, name string, args ...string) ([]byte, []byte, error) {
	return r.run(ctx, input, name, args...)
}

func (r *RealCommandExecutor) run(ctx context.Context, input []byte, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if input != nil {
		cmd.Stdin = bytes.NewReader(input)
	}
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// DefaultExecutor returns the standard production executor.
func DefaultExecutor() CommandExecutor {
	return &RealCommandExecutor{}
}

// LookPath reports whether a binary is resolvable on PATH. Thin wrapper so
// callers in this module avoid importing os/exec alongside this package.
func LookPath(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// MockCall records one invocation made against a MockExecutor.
type MockCall struct {
	Name  string
	Args  []string
	Input []byte
}

// MockResult scripts one response from a MockExecutor.
type MockResult struct {
	Stdout []byte
	Stderr []byte
	Err    error
}

// MockExecutor is a scriptable CommandExecutor for tests. Responses are
// keyed by "name arg0 arg1 …"; unkeyed commands fall back to Default.
type MockExecutor struct {
	Responses map[string]MockResult
	Default   MockResult
	Calls     []MockCall
}

// NewMockExecutor creates an empty mock.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{Responses: make(map[string]MockResult)}
}

// Execute implements CommandExecutor.
func (m *MockExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	return m.ExecuteWithInput(ctx, nil, name, args...)
}

// ExecuteWithInput implements CommandExecutor.
func (m *MockExecutor) ExecuteWithInput(_ context.Context, input []byte, name string, args ...string) ([]byte, []byte, error) {
	m.Calls = append(m.Calls, MockCall{Name: name, Args: args, Input: input})

	key := name
	if len(args) > 0 {
		key += " " + strings.Join(args, " ")
	}
	if result, ok := m.Responses[key]; ok {
		return result.Stdout, result.Stderr, result.Err
	}
	return m.Default.Stdout, m.Default.Stderr, m.Default.Err
}
