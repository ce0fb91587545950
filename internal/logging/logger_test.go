package logging_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/connkeep/connkeep/internal/logging"
)

func TestSecret_FormattingRedacts(t *testing.T) {
	t.Parallel()

	s := logging.Secret("hunter2")
	out := fmt.Sprintf("password is %v (%s) %#v", s, s, s)
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "[REDACTED]")
}

func TestRedact(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		secrets []string
		want    string
	}{
		{
			name:    "single occurrence",
			input:   "stored hunter2 in keyring",
			secrets: []string{"hunter2"},
			want:    "stored [REDACTED] in keyring",
		},
		{
			name:    "multiple secrets",
			input:   "hunter2 and passphrase99",
			secrets: []string{"hunter2", "passphrase99"},
			want:    "[REDACTED] and [REDACTED]",
		},
		{
			name:    "short values left alone",
			input:   "key a stored in slot a",
			secrets: []string{"a"},
			want:    "key a stored in slot a",
		},
		{
			name:    "empty secret list",
			input:   "nothing to hide",
			secrets: nil,
			want:    "nothing to hide",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, logging.Redact(tt.input, tt.secrets))
		})
	}
}
