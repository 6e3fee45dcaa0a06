// Package catalog is the read-only model catalog the gateway consults. It
// ships a compiled-in default table and can overlay entries from a JSON
// document kept in AWS Secrets Manager.
package catalog

import (
	"context"
	"fmt"
	"sort"

	"github.com/synaptiq/model-gateway/internal/domain"
)

// Catalog is the lookup the gateway depends on. A missing model surfaces as
// a typed error, never a panic.
type Catalog interface {
	GetModel(ctx context.Context, modelID string) (*domain.ModelConfig, error)
	ListModels(ctx context.Context) ([]domain.ModelConfig, error)
}

// Static is an immutable in-memory catalog. It is built once at startup and
// safe for concurrent reads.
type Static struct {
	models map[string]domain.ModelConfig
}

func NewStatic(models []domain.ModelConfig) *Static {
	m := make(map[string]domain.ModelConfig, len(models))
	for _, mc := range models {
		m[mc.ModelID] = mc
	}
	return &Static{models: m}
}

// NewDefault returns the built-in catalog of hosted Bedrock models.
func NewDefault() *Static {
	return NewStatic(defaultModels())
}

func (s *Static) GetModel(ctx context.Context, modelID string) (*domain.ModelConfig, error) {
	mc, ok := s.models[modelID]
	if !ok {
		ge := domain.NewValidationError("unknown_model", fmt.Sprintf("model %s not found in catalog", modelID))
		ge.ModelID = modelID
		return nil, ge
	}
	return &mc, nil
}

func (s *Static) ListModels(ctx context.Context) ([]domain.ModelConfig, error) {
	out := make([]domain.ModelConfig, 0, len(s.models))
	for _, mc := range s.models {
		out = append(out, mc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModelID < out[j].ModelID })
	return out, nil
}

// Overlay returns a new catalog with extra entries layered on top of the
// receiver's; overlapping model IDs take the overlay's definition.
func (s *Static) Overlay(models []domain.ModelConfig) *Static {
	merged := make([]domain.ModelConfig, 0, len(s.models)+len(models))
	for _, mc := range s.models {
		merged = append(merged, mc)
	}
	merged = append(merged, models...)
	return NewStatic(merged)
}

func textToText(streaming bool) domain.Capabilities {
	return domain.Capabilities{
		Modalities: domain.Modalities{
			Input:  []string{"text"},
			Output: []string{"text"},
		},
		Streaming: streaming,
		InferenceTypes: domain.InferenceTypes{
			OnDemand:  true,
			Streaming: streaming,
		},
	}
}

func defaultModels() []domain.ModelConfig {
	onDemand := domain.Access{OnDemand: true}
	provisionable := domain.Access{OnDemand: true, Provisionable: true}

	return []domain.ModelConfig{
		{
			ModelID:      "anthropic.claude-3-5-sonnet-20241022-v2:0",
			Provider:     "bedrock",
			Vendor:       "anthropic",
			Capabilities: textToText(true),
			Access:       provisionable,
			CostPerToken: 0.000003,
		},
		{
			ModelID:      "anthropic.claude-3-5-haiku-20241022-v1:0",
			Provider:     "bedrock",
			Vendor:       "anthropic",
			Capabilities: textToText(true),
			Access:       provisionable,
			CostPerToken: 0.000001,
		},
		{
			ModelID:      "anthropic.claude-3-haiku-20240307-v1:0",
			Provider:     "bedrock",
			Vendor:       "anthropic",
			Capabilities: textToText(true),
			Access:       onDemand,
			CostPerToken: 0.00000025,
		},
		{
			ModelID:      "amazon.titan-text-express-v1",
			Provider:     "bedrock",
			Vendor:       "amazon",
			Capabilities: textToText(true),
			Access:       provisionable,
			CostPerToken: 0.0000002,
		},
		{
			ModelID:      "amazon.titan-text-lite-v1",
			Provider:     "bedrock",
			Vendor:       "amazon",
			Capabilities: textToText(false),
			Access:       onDemand,
			CostPerToken: 0.00000015,
		},
		{
			ModelID:      "meta.llama3-70b-instruct-v1:0",
			Provider:     "bedrock",
			Vendor:       "meta",
			Capabilities: textToText(true),
			Access:       onDemand,
			CostPerToken: 0.00000265,
		},
		{
			ModelID:      "meta.llama3-8b-instruct-v1:0",
			Provider:     "bedrock",
			Vendor:       "meta",
			Capabilities: textToText(true),
			Access:       onDemand,
			CostPerToken: 0.0000003,
		},
		{
			ModelID:      "mistral.mistral-7b-instruct-v0:2",
			Provider:     "bedrock",
			Vendor:       "mistral",
			Capabilities: textToText(true),
			Access:       onDemand,
			CostPerToken: 0.00000015,
		},
	}
}
