// Package awssecrets resolves store credentials from AWS Secrets Manager.
package awssecrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"

	"github.com/valyc0/fraudM/internal/platform/logger"
)

const (
	resourceNotFoundException = "ResourceNotFoundException"
	accessDeniedException     = "AccessDeniedException"
)

var (
	ErrSecretNotFound = errors.New("secret not found")
	ErrSecretEmpty    = errors.New("secret value is empty")
	ErrAccessDenied   = errors.New("access denied to secret")
	ErrMalformed      = errors.New("secret is not a username/password JSON object")
)

// ManagerAPI is the subset of the Secrets Manager client used here.
type ManagerAPI interface {
	GetSecretValue(
		ctx context.Context,
		params *secretsmanager.GetSecretValueInput,
		optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.GetSecretValueOutput, error)
}

// Credentials is the username/password pair stored in the secret.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type Client struct {
	api ManagerAPI
	log *logger.Logger
}

// NewClient loads the default AWS configuration chain.
func NewClient(ctx context.Context, log *logger.Logger) (*Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return NewWithAPI(secretsmanager.NewFromConfig(cfg), log), nil
}

func NewWithAPI(api ManagerAPI, log *logger.Logger) *Client {
	return &Client{api: api, log: log.With("client", "AWSSecretsManager")}
}

// Credentials fetches secretID and decodes it as {"username","password"}.
func (c *Client) Credentials(ctx context.Context, secretID string) (Credentials, error) {
	raw, err := c.secretString(ctx, secretID)
	if err != nil {
		return Credentials{}, err
	}
	var creds Credentials
	if err := json.Unmarshal([]byte(raw), &creds); err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if strings.TrimSpace(creds.Username) == "" {
		return Credentials{}, ErrMalformed
	}
	c.log.Info("Loaded store credentials from secret", "secret_id", secretID, "username", creds.Username)
	return creds, nil
}

func (c *Client) secretString(ctx context.Context, secretID string) (string, error) {
	out, err := c.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case resourceNotFoundException:
				return "", fmt.Errorf("get secret %q: %w", secretID, ErrSecretNotFound)
			case accessDeniedException:
				return "", fmt.Errorf("get secret %q: %w", secretID, ErrAccessDenied)
			}
		}
		c.log.Error("Failed to retrieve secret", "secret_id", secretID, "error", err)
		return "", fmt.Errorf("get secret %q: %w", secretID, err)
	}
	switch {
	case out.SecretString != nil && *out.SecretString != "":
		return *out.SecretString, nil
	case len(out.SecretBinary) > 0:
		return string(out.SecretBinary), nil
	default:
		return "", fmt.Errorf("get secret %q: %w", secretID, ErrSecretEmpty)
	}
}
