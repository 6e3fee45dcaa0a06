// Package processor validates and normalizes raw caller requests into the
// canonical shape before they reach a provider.
package processor

import (
	"github.com/synaptiq/model-gateway/internal/domain"
)

// Validate checks the structural invariants of a request. It returns a typed
// ValidationError identifying the first missing field; it has no side effects
// and never panics across the gateway boundary.
func Validate(req domain.Request) error {
	if req.ModelID == "" {
		return domain.NewValidationError("missing_model_id", "specify which model to use")
	}
	if req.Provider == "" {
		return domain.NewValidationError("missing_provider", "provider is required")
	}
	if len(req.Messages) == 0 && req.Prompt == "" && req.ConversationID == "" {
		return domain.NewValidationError("missing_content", "one of messages, prompt, or conversationId is required")
	}
	if req.ConversationID != "" && req.UserID == "" {
		return domain.NewValidationError("missing_user_id", "userId is required when conversationId is set")
	}
	return nil
}

// Normalize rewrites shorthand fields to their canonical values and returns
// a derived copy, leaving the input untouched. It is pure and idempotent:
// Normalize(Normalize(req)) == Normalize(req).
func Normalize(req domain.Request) domain.Request {
	out := req
	if out.Modality == domain.ModalityShorthandText {
		out.Modality = domain.ModalityTextToText
	}
	return out
}
