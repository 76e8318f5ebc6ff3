package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"
)

// SecretsManagerAPI is the subset of the Secrets Manager client the vault uses
type SecretsManagerAPI interface {
	CreateSecret(ctx context.Context, params *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error)
	PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
}

// CredentialVault stores credentials an operator must be able to recover
type CredentialVault interface {
	StoreCredentials(ctx context.Context, name string, creds Credentials) (string, error)
}

// Credentials is the secret payload for a temporary login
type Credentials struct {
	Username          string `json:"username"`
	TemporaryPassword string `json:"temporary_password"`
	SignInURL         string `json:"sign_in_url,omitempty"`
}

// Manager handles AWS Secrets Manager writes
type Manager struct {
	client SecretsManagerAPI
	prefix string
	logger *slog.Logger
}

// NewManager creates a new secrets manager writing below prefix
func NewManager(client SecretsManagerAPI, prefix string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		client: client,
		prefix: strings.TrimSuffix(prefix, "/"),
		logger: logger,
	}
}

// SecretName returns the full secret name for a key below the prefix
func (m *Manager) SecretName(name string) string {
	if m.prefix == "" {
		return name
	}
	return m.prefix + "/" + name
}

// StoreCredentials writes the credentials as a JSON secret and returns its ARN.
// An existing secret gets a new version.
func (m *Manager) StoreCredentials(ctx context.Context, name string, creds Credentials) (string, error) {
	if creds.Username == "" || creds.TemporaryPassword == "" {
		return "", fmt.Errorf("credentials missing required fields (username, temporary_password)")
	}

	payload, err := json.Marshal(creds)
	if err != nil {
		return "", fmt.Errorf("failed to marshal credentials: %w", err)
	}

	secretName := m.SecretName(name)
	created, err := m.client.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
		Name:         aws.String(secretName),
		Description:  aws.String("Temporary credentials for " + creds.Username),
		SecretString: aws.String(string(payload)),
	})
	if err == nil {
		// SECURITY: Never log the secret value
		m.logger.InfoContext(ctx, "credentials stored",
			slog.String("secret_arn", aws.ToString(created.ARN)),
		)
		return aws.ToString(created.ARN), nil
	}

	if !isResourceExists(err) {
		return "", fmt.Errorf("failed to create secret: %w", err)
	}

	updated, err := m.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:     aws.String(secretName),
		SecretString: aws.String(string(payload)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to update secret: %w", err)
	}

	m.logger.InfoContext(ctx, "credentials stored as new secret version",
		slog.String("secret_arn", aws.ToString(updated.ARN)),
	)

	return aws.ToString(updated.ARN), nil
}

func isResourceExists(err error) bool {
	var api smithy.APIError
	return errors.As(err, &api) && api.ErrorCode() == "ResourceExistsException"
}
