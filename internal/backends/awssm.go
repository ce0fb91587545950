package backends

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	"github.com/connkeep/connkeep/pkg/backend"
)

// SecretsManagerAPI is the slice of the AWS Secrets Manager client this
// backend uses. Extracted for mocking in tests.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	CreateSecret(ctx context.Context, params *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error)
	PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
	DeleteSecret(ctx context.Context, params *secretsmanager.DeleteSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DeleteSecretOutput, error)
	ListSecrets(ctx context.Context, params *secretsmanager.ListSecretsInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.ListSecretsOutput, error)
}

// AWSSecretsManager stores credentials in AWS Secrets Manager, for teams
// that share connection credentials through a cloud vault. It is always
// last in the default chain and only used when explicitly configured.
type AWSSecretsManager struct {
	client SecretsManagerAPI
	region string
	prefix string
}

// AWSOption configures the backend.
type AWSOption func(*AWSSecretsManager)

// WithAWSClient injects a custom client, for tests and LocalStack.
func WithAWSClient(client SecretsManagerAPI) AWSOption {
	return func(a *AWSSecretsManager) {
		a.client = client
	}
}

// WithAWSPrefix overrides the secret-name prefix, default "connkeep".
func WithAWSPrefix(prefix string) AWSOption {
	return func(a *AWSSecretsManager) {
		a.prefix = prefix
	}
}

// NewAWSSecretsManager creates the backend. Without an injected client it
// loads the default AWS config chain for the given region.
func NewAWSSecretsManager(ctx context.Context, region string, opts ...AWSOption) (*AWSSecretsManager, error) {
	if region == "" {
		region = "us-east-1"
	}
	a := &AWSSecretsManager{region: region, prefix: "connkeep"}
	for _, opt := range opts {
		opt(a)
	}

	if a.client == nil {
		cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		a.client = secretsmanager.NewFromConfig(cfg)
	}
	return a, nil
}

// ID implements backend.Backend.
func (a *AWSSecretsManager) ID() string { return "aws.secretsmanager" }

// Descriptor implements backend.Describer.
func (a *AWSSecretsManager) Descriptor() backend.Descriptor {
	return backend.Descriptor{
		ID:    a.ID(),
		Flags: backend.FlagPersistent | backend.FlagRemote,
	}
}

// IsAvailable verifies credentials with a one-item list call.
func (a *AWSSecretsManager) IsAvailable(ctx context.Context) bool {
	_, err := a.client.ListSecrets(ctx, &secretsmanager.ListSecretsInput{MaxResults: aws.Int32(1)})
	return err == nil
}

// Store implements backend.Backend. Creation and update are distinct API
// calls in Secrets Manager, so an existing-secret error on create falls
// through to PutSecretValue.
func (a *AWSSecretsManager) Store(ctx context.Context, key string, cred *backend.Credential) error {
	encoded, err := backend.Encode(cred)
	if err != nil {
		return err
	}
	name := a.secretName(key)

	_, err = a.client.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
		Name:         aws.String(name),
		SecretString: aws.String(encoded),
	})
	if err == nil {
		return nil
	}
	var exists *types.ResourceExistsException
	if !errors.As(err, &exists) {
		return fmt.Errorf("creating secret '%s': %w", name, err)
	}

	_, err = a.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:     aws.String(name),
		SecretString: aws.String(encoded),
	})
	if err != nil {
		return fmt.Errorf("updating secret '%s': %w", name, err)
	}
	return nil
}

// Retrieve implements backend.Backend.
func (a *AWSSecretsManager) Retrieve(ctx context.Context, key string) (*backend.Credential, error) {
	name := a.secretName(key)
	result, err := a.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		if isAWSNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading secret '%s': %w", name, err)
	}

	var value string
	switch {
	case result.SecretString != nil:
		value = *result.SecretString
	case result.SecretBinary != nil:
		value = string(result.SecretBinary)
	default:
		return nil, nil
	}
	return backend.Decode(value)
}

// Delete implements backend.Backend. Deletion is immediate; the recovery
// window is skipped because a purged credential must not resurface.
func (a *AWSSecretsManager) Delete(ctx context.Context, key string) error {
	name := a.secretName(key)
	_, err := a.client.DeleteSecret(ctx, &secretsmanager.DeleteSecretInput{
		SecretId:                   aws.String(name),
		ForceDeleteWithoutRecovery: aws.Bool(true),
	})
	if err != nil && !isAWSNotFound(err) {
		return fmt.Errorf("deleting secret '%s': %w", name, err)
	}
	return nil
}

// secretName maps a lookup key onto the Secrets Manager name alphabet
// (alphanumeric plus /_+=.@-). Disallowed bytes become underscores; the
// mapping only has to be stable, not reversible.
func (a *AWSSecretsManager) secretName(key string) string {
	var b strings.Builder
	b.WriteString(a.prefix)
	b.WriteByte('/')
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case strings.ContainsRune("/_+=.@-", r):
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func isAWSNotFound(err error) bool {
	var notFound *types.ResourceNotFoundException
	return errors.As(err, &notFound)
}
