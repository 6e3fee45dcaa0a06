// Package modality gates requests on a model's declared input/output
// capabilities. The same check runs before every invocation regardless of
// vendor, so vendor code never needs its own precondition logic.
package modality

import (
	"strings"

	"github.com/synaptiq/model-gateway/internal/domain"
)

// Handler validates a request against one required modality, expressed as
// the input and output content types the call needs.
type Handler struct {
	inputTypes  []string
	outputTypes []string
}

// NewTextHandler covers the text-to-text modality.
func NewTextHandler() *Handler {
	return &Handler{
		inputTypes:  []string{"text"},
		outputTypes: []string{"text"},
	}
}

func New(inputTypes, outputTypes []string) *Handler {
	return &Handler{inputTypes: inputTypes, outputTypes: outputTypes}
}

// SupportsModality reports whether every required input type is declared by
// the model's input modalities and every required output type by its output
// modalities. Comparison is case-insensitive; a single missing type fails
// the whole check.
func (h *Handler) SupportsModality(model *domain.ModelConfig) bool {
	return subset(h.inputTypes, model.Capabilities.Modalities.Input) &&
		subset(h.outputTypes, model.Capabilities.Modalities.Output)
}

func subset(required, declared []string) bool {
	have := make(map[string]struct{}, len(declared))
	for _, d := range declared {
		have[strings.ToLower(d)] = struct{}{}
	}
	for _, r := range required {
		if _, ok := have[strings.ToLower(r)]; !ok {
			return false
		}
	}
	return true
}

// ValidateRequest runs the cross-cutting preconditions shared by all
// providers: modality support, presence of content, and parameter ranges.
func (h *Handler) ValidateRequest(req domain.Request, model *domain.ModelConfig) error {
	if !h.SupportsModality(model) {
		return domain.NewUnsupportedModalityError(model.ModelID, req.Modality)
	}
	if len(req.Messages) == 0 && req.Prompt == "" {
		return domain.NewValidationError("missing_content", "either messages or prompt is required")
	}
	if req.MaxTokens != nil && *req.MaxTokens < 1 {
		return domain.NewValidationError("invalid_max_tokens", "maxTokens must be at least 1")
	}
	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > 1) {
		return domain.NewValidationError("invalid_temperature", "temperature must be between 0 and 1")
	}
	return nil
}
