// Package config loads and validates the connkeep settings file. The file
// is YAML, checked against an embedded JSON schema before use, and drives
// which backends enter the fallback chain and in what order.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/connkeep/connkeep/internal/backends"
	"github.com/connkeep/connkeep/internal/envelope"
	"github.com/connkeep/connkeep/internal/vault"
	"github.com/connkeep/connkeep/pkg/backend"
	"github.com/connkeep/connkeep/pkg/exec"

	ckerrors "github.com/connkeep/connkeep/internal/errors"
)

// Known backend ids accepted in backend_order and preferred_backend.
const (
	BackendKeyring       = "keyring"
	BackendSecretService = "secret-service"
	BackendLocalFile     = "local-file"
	BackendMemory        = "memory"
	BackendAWS           = "aws.secretsmanager"
)

// CacheSettings controls the credential resolution cache.
type CacheSettings struct {
	Enabled    bool `yaml:"enabled" json:"enabled"`
	TTLSeconds int  `yaml:"ttl_seconds" json:"ttl_seconds"`
}

// LocalFileSettings configures the encrypted file backend.
type LocalFileSettings struct {
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
}

// AWSSettings configures the AWS Secrets Manager backend. Disabled by
// default; the cloud vault only joins the chain when asked for.
type AWSSettings struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Region  string `yaml:"region,omitempty" json:"region,omitempty"`
	Prefix  string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
}

// BackendSettings groups per-backend parameters.
type BackendSettings struct {
	LocalFile LocalFileSettings `yaml:"local_file,omitempty" json:"local_file,omitempty"`
	AWS       AWSSettings       `yaml:"aws,omitempty" json:"aws,omitempty"`
}

// Settings is the root configuration document.
type Settings struct {
	// PreferredBackend pins the chain head. Empty means the first entry
	// of BackendOrder.
	PreferredBackend string `yaml:"preferred_backend,omitempty" json:"preferred_backend,omitempty"`
	// FallbackEnabled allows the chain to continue past an unavailable
	// preferred backend. With fallback off the chain is just the head.
	FallbackEnabled bool `yaml:"fallback_enabled" json:"fallback_enabled"`
	// BackendOrder is the priority order, most preferred first.
	BackendOrder []string `yaml:"backend_order" json:"backend_order"`

	Cache                 CacheSettings   `yaml:"cache" json:"cache"`
	BackendTimeoutSeconds int             `yaml:"backend_timeout_seconds" json:"backend_timeout_seconds"`
	Backends              BackendSettings `yaml:"backends,omitempty" json:"backends,omitempty"`
}

// settingsSchema validates the settings document shape before any value is
// trusted.
const settingsSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "preferred_backend": {
      "type": "string",
      "enum": ["", "keyring", "secret-service", "local-file", "memory", "aws.secretsmanager"]
    },
    "fallback_enabled": {"type": "boolean"},
    "backend_order": {
      "type": "array",
      "items": {
        "type": "string",
        "enum": ["keyring", "secret-service", "local-file", "memory", "aws.secretsmanager"]
      },
      "minItems": 1,
      "uniqueItems": true
    },
    "cache": {
      "type": "object",
      "properties": {
        "enabled": {"type": "boolean"},
        "ttl_seconds": {"type": "integer", "minimum": 1, "maximum": 86400}
      }
    },
    "backend_timeout_seconds": {"type": "integer", "minimum": 1, "maximum": 300},
    "backends": {
      "type": "object",
      "properties": {
        "local_file": {
          "type": "object",
          "properties": {"path": {"type": "string"}}
        },
        "aws": {
          "type": "object",
          "properties": {
            "enabled": {"type": "boolean"},
            "region": {"type": "string"},
            "prefix": {"type": "string"}
          }
        }
      }
    }
  },
  "required": ["backend_order"]
}`

// Default returns the settings used when no file exists: every local
// backend in the standard order, fallback on, cache on at five minutes.
func Default() *Settings {
	return &Settings{
		FallbackEnabled: true,
		BackendOrder: []string{
			BackendKeyring,
			BackendSecretService,
			BackendLocalFile,
			BackendMemory,
		},
		Cache:                 CacheSettings{Enabled: true, TTLSeconds: int(vault.DefaultCacheTTL / time.Second)},
		BackendTimeoutSeconds: int(vault.DefaultBackendTimeout / time.Second),
	}
}

// DefaultPath returns the standard settings location under the user config
// directory.
func DefaultPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, "connkeep", "settings.yaml")
}

// DefaultSecretsPath returns the standard location of the encrypted local
// secrets file.
func DefaultSecretsPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, "connkeep", "secrets.yaml")
}

// Load reads the settings file. A missing file yields the defaults; an
// unparseable or schema-invalid file is an error with enough context to
// fix it.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read settings file %s: %w", path, err)
	}

	settings := Default()
	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, ckerrors.UserError{
			Message:    fmt.Sprintf("settings file %s is not valid YAML", path),
			Suggestion: "fix the syntax error or delete the file to start from defaults",
			Err:        err,
		}
	}

	if err := validateSchema(settings); err != nil {
		return nil, ckerrors.UserError{
			Message:    fmt.Sprintf("settings file %s failed validation", path),
			Suggestion: "check backend names and value ranges against the documentation",
			Err:        err,
		}
	}
	return settings, nil
}

// validateSchema checks the document against the embedded JSON schema.
func validateSchema(settings *Settings) error {
	doc, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings for validation: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(settingsSchema),
		gojsonschema.NewBytesLoader(doc),
	)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		var messages []string
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}
		return fmt.Errorf("schema validation failed:\n  - %s", strings.Join(messages, "\n  - "))
	}
	return nil
}

// Save writes the settings file with private permissions.
func Save(path string, settings *Settings) error {
	if err := validateSchema(settings); err != nil {
		return err
	}
	data, err := yaml.Marshal(settings)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// ManagerOptions maps settings onto vault manager options.
func (s *Settings) ManagerOptions() vault.Options {
	return vault.Options{
		CacheEnabled:   s.Cache.Enabled,
		CacheTTL:       time.Duration(s.Cache.TTLSeconds) * time.Second,
		BackendTimeout: time.Duration(s.BackendTimeoutSeconds) * time.Second,
	}
}

// orderedIDs returns the effective chain order: the preferred backend
// first, then the rest of backend_order, or the head alone when fallback
// is off.
func (s *Settings) orderedIDs() []string {
	order := make([]string, 0, len(s.BackendOrder))
	if s.PreferredBackend != "" {
		order = append(order, s.PreferredBackend)
	}
	for _, id := range s.BackendOrder {
		if s.PreferredBackend != "" && id == s.PreferredBackend {
			continue
		}
		order = append(order, id)
	}
	if !s.FallbackEnabled && len(order) > 1 {
		order = order[:1]
	}
	return order
}

// BuildChain constructs the backend instances named by the settings, in
// priority order. Unknown ids were already rejected by the schema; the AWS
// backend is skipped unless enabled, and a failed AWS client setup skips
// that entry rather than sinking the whole chain.
func (s *Settings) BuildChain(ctx context.Context, executor exec.CommandExecutor) ([]backend.Backend, error) {
	sealer := envelope.NewSealer()

	var chain []backend.Backend
	for _, id := range s.orderedIDs() {
		switch id {
		case BackendKeyring:
			chain = append(chain, backends.NewKeyring())
		case BackendSecretService:
			chain = append(chain, backends.NewSecretTool(executor))
		case BackendLocalFile:
			path := s.Backends.LocalFile.Path
			if path == "" {
				path = DefaultSecretsPath()
			}
			chain = append(chain, backends.NewLocalFile(path, sealer))
		case BackendMemory:
			chain = append(chain, backends.NewMemory())
		case BackendAWS:
			if !s.Backends.AWS.Enabled {
				continue
			}
			var opts []backends.AWSOption
			if s.Backends.AWS.Prefix != "" {
				opts = append(opts, backends.WithAWSPrefix(s.Backends.AWS.Prefix))
			}
			aws, err := backends.NewAWSSecretsManager(ctx, s.Backends.AWS.Region, opts...)
			if err != nil {
				continue
			}
			chain = append(chain, aws)
		}
	}

	if len(chain) == 0 {
		return nil, ckerrors.BackendUnavailableError{Reason: "no backends configured"}
	}
	return chain, nil
}
