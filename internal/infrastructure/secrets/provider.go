// Package secrets reads the external-provider credentials used for the
// optional wallet address check.
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/go-wallet-auth/internal/config"
	"github.com/go-wallet-auth/internal/infrastructure/awsclient"
)

// SkipValidation stored as the secret value turns the address check off.
const SkipValidation = "SKIP_VALIDATION"

// Credentials authenticate against the JSON-RPC provider.
type Credentials struct {
	ProjectID     string `json:"projectId"`
	ProjectSecret string `json:"projectSecret"`
}

type secretsAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Provider fetches Credentials from AWS Secrets Manager.
type Provider struct {
	client secretsAPI
}

func NewClient(ctx context.Context, cfg *config.Config) (*secretsmanager.Client, error) {
	awsCfg, err := awsclient.Load(ctx, cfg, "")
	if err != nil {
		return nil, err
	}
	return secretsmanager.NewFromConfig(awsCfg, func(o *secretsmanager.Options) {
		o.BaseEndpoint = awsclient.BaseEndpoint(cfg)
	}), nil
}

func NewProvider(client secretsAPI) *Provider {
	return &Provider{client: client}
}

// Credentials returns nil, nil when validation is disabled: no secret id,
// no such secret, or the secret holds SkipValidation.
func (p *Provider) Credentials(ctx context.Context, secretID string) (*Credentials, error) {
	if secretID == "" {
		return nil, nil
	}
	out, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		var nf *types.ResourceNotFoundException
		if errors.As(err, &nf) {
			return nil, nil
		}
		return nil, fmt.Errorf("get secret %s: %w", secretID, err)
	}
	return parseCredentials(aws.ToString(out.SecretString))
}

func parseCredentials(raw string) (*Credentials, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == SkipValidation {
		return nil, nil
	}
	var c Credentials
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, fmt.Errorf("parse validation secret: %w", err)
	}
	if c.ProjectID == "" || c.ProjectID == SkipValidation {
		return nil, nil
	}
	return &c, nil
}
