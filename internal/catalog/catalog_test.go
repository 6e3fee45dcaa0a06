package catalog

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/synaptiq/model-gateway/internal/domain"
)

func TestGetModel_Known(t *testing.T) {
	c := NewDefault()

	mc, err := c.GetModel(context.Background(), "anthropic.claude-3-haiku-20240307-v1:0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mc.Vendor != "anthropic" || mc.Provider != "bedrock" {
		t.Errorf("unexpected entry: %+v", mc)
	}
}

func TestGetModel_NotFoundIsValidationError(t *testing.T) {
	c := NewDefault()

	_, err := c.GetModel(context.Background(), "acme.frontier-1")
	ge, ok := domain.AsGatewayError(err)
	if !ok || ge.Kind != domain.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if ge.ModelID != "acme.frontier-1" {
		t.Errorf("modelID = %q", ge.ModelID)
	}
}

func TestListModels_Sorted(t *testing.T) {
	c := NewDefault()

	models, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(models) == 0 {
		t.Fatal("expected non-empty default catalog")
	}
	for i := 1; i < len(models); i++ {
		if models[i-1].ModelID > models[i].ModelID {
			t.Fatalf("models not sorted: %s > %s", models[i-1].ModelID, models[i].ModelID)
		}
	}
}

func TestOverlay_ReplacesAndAdds(t *testing.T) {
	base := NewStatic([]domain.ModelConfig{
		{ModelID: "anthropic.a", Vendor: "anthropic", CostPerToken: 1},
	})

	merged := base.Overlay([]domain.ModelConfig{
		{ModelID: "anthropic.a", Vendor: "anthropic", CostPerToken: 2},
		{ModelID: "meta.b", Vendor: "meta"},
	})

	a, err := merged.GetModel(context.Background(), "anthropic.a")
	if err != nil || a.CostPerToken != 2 {
		t.Errorf("overlay did not replace entry: %+v err=%v", a, err)
	}
	if _, err := merged.GetModel(context.Background(), "meta.b"); err != nil {
		t.Errorf("overlay did not add entry: %v", err)
	}
	if orig, _ := base.GetModel(context.Background(), "anthropic.a"); orig.CostPerToken != 1 {
		t.Error("overlay mutated the base catalog")
	}
}

type fakeSecrets struct {
	value string
	err   error
}

func (f *fakeSecrets) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(f.value)}, nil
}

func TestSecretsLoader_Load(t *testing.T) {
	loader := NewSecretsLoaderWithClient(&fakeSecrets{
		value: `[{"modelId":"anthropic.custom-v1","provider":"bedrock","vendor":"anthropic"}]`,
	})

	models, err := loader.Load(context.Background(), "gateway/catalog")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(models) != 1 || models[0].ModelID != "anthropic.custom-v1" {
		t.Errorf("models = %+v", models)
	}
}

func TestSecretsLoader_BadJSON(t *testing.T) {
	loader := NewSecretsLoaderWithClient(&fakeSecrets{value: `not json`})
	if _, err := loader.Load(context.Background(), "gateway/catalog"); err == nil {
		t.Error("expected error for malformed catalog document")
	}
}
