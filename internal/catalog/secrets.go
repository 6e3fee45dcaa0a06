package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/synaptiq/model-gateway/internal/domain"
)

// SecretsAPI is the slice of the Secrets Manager client the loader needs.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsLoader fetches a JSON catalog document from AWS Secrets Manager.
// Operators keep fleet-specific model entries there; the document overlays
// the compiled-in defaults at boot.
type SecretsLoader struct {
	client SecretsAPI
}

func NewSecretsLoader(cfg aws.Config) *SecretsLoader {
	return &SecretsLoader{client: secretsmanager.NewFromConfig(cfg)}
}

func NewSecretsLoaderWithClient(client SecretsAPI) *SecretsLoader {
	return &SecretsLoader{client: client}
}

// Load fetches and decodes the catalog document. The secret value must be a
// JSON array of model config entries.
func (l *SecretsLoader) Load(ctx context.Context, secretName string) ([]domain.ModelConfig, error) {
	out, err := l.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretName),
	})
	if err != nil {
		return nil, fmt.Errorf("get catalog secret: %w", err)
	}
	if out.SecretString == nil {
		return nil, fmt.Errorf("catalog secret %s has no string value", secretName)
	}

	var models []domain.ModelConfig
	if err := json.Unmarshal([]byte(*out.SecretString), &models); err != nil {
		return nil, fmt.Errorf("unmarshal catalog secret: %w", err)
	}
	return models, nil
}
