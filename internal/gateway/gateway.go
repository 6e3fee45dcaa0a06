// Package gateway orchestrates the model-invocation pipeline: request
// processing, catalog lookup, conversation resolution, the modality gate,
// provider invocation, and fire-and-forget usage tracking.
package gateway

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/synaptiq/model-gateway/internal/catalog"
	"github.com/synaptiq/model-gateway/internal/conversation"
	"github.com/synaptiq/model-gateway/internal/domain"
	"github.com/synaptiq/model-gateway/internal/metrics"
	"github.com/synaptiq/model-gateway/internal/modality"
	"github.com/synaptiq/model-gateway/internal/notifications"
	"github.com/synaptiq/model-gateway/internal/processor"
	"github.com/synaptiq/model-gateway/internal/telemetry"
	"github.com/synaptiq/model-gateway/internal/usage"
	"github.com/synaptiq/model-gateway/internal/vendor"
)

// Provider performs the actual model invocation for one hosting platform.
type Provider interface {
	Name() string
	Chat(ctx context.Context, req domain.Request, model *domain.ModelConfig) (*domain.Response, error)
	StreamChat(ctx context.Context, req domain.Request, model *domain.ModelConfig) (<-chan *domain.Response, <-chan error)
}

type Config struct {
	Catalog       catalog.Catalog
	Providers     map[string]Provider
	Usage         *usage.Manager
	Conversations conversation.Store
	Notifier      notifications.Notifier
	Source        string
}

type Gateway struct {
	catalog       catalog.Catalog
	providers     map[string]Provider
	usage         *usage.Manager
	conversations conversation.Store
	notifier      notifications.Notifier
	modality      *modality.Handler
	source        string
}

func New(cfg Config) *Gateway {
	source := cfg.Source
	if source == "" {
		source = "api"
	}
	return &Gateway{
		catalog:       cfg.Catalog,
		providers:     cfg.Providers,
		usage:         cfg.Usage,
		conversations: cfg.Conversations,
		notifier:      cfg.Notifier,
		modality:      modality.NewTextHandler(),
		source:        source,
	}
}

// Chat runs one synchronous invocation end to end. Every error out of here
// is a typed *domain.GatewayError; usage tracking never delays or fails the
// call.
func (g *Gateway) Chat(ctx context.Context, userCtx domain.UserContext, req domain.Request) (*domain.Response, error) {
	norm, model, err := g.prepare(ctx, userCtx, req)
	if err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "gateway.chat")
	defer span.End()
	telemetry.AddInvocationAttributes(span, requestID(norm), model.ModelID, model.Vendor, model.Provider)

	start := time.Now()
	resp, err := g.providers[model.Provider].Chat(ctx, norm, model)
	if err != nil {
		telemetry.AddErrorAttribute(span, err)
		g.recordFailure(norm, err, start, model)
		return nil, err
	}

	if resp.Usage != nil {
		telemetry.AddTokenAttributes(span, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}
	g.usage.TrackUsage(norm, resp, g.source, start, model)
	g.appendConversation(ctx, norm, resp.Content)

	return resp, nil
}

// StreamChat validates up front, including the model's streaming capability
// before any network call, then returns the provider's lazy chunk sequence.
// Usage for the whole stream is tracked once the sequence ends.
func (g *Gateway) StreamChat(ctx context.Context, userCtx domain.UserContext, req domain.Request) (<-chan *domain.Response, <-chan error, error) {
	norm, model, err := g.prepare(ctx, userCtx, req)
	if err != nil {
		return nil, nil, err
	}

	if !model.Capabilities.Streaming || !model.Capabilities.InferenceTypes.Streaming {
		ge := domain.NewValidationError("streaming_not_supported", "model does not support streaming invocation")
		ge.ModelID = model.ModelID
		return nil, nil, ge
	}

	ctx, span := telemetry.StartSpan(ctx, "gateway.stream_chat")
	telemetry.AddInvocationAttributes(span, requestID(norm), model.ModelID, model.Vendor, model.Provider)

	start := time.Now()
	srcChunks, srcErrs := g.providers[model.Provider].StreamChat(ctx, norm, model)

	chunks := make(chan *domain.Response)
	errs := make(chan error, 1)
	metrics.IncrementActiveStreams()

	go func() {
		defer close(chunks)
		defer close(errs)
		defer metrics.DecrementActiveStreams()
		defer span.End()

		var content string
		var streamUsage *domain.Usage

		for srcChunks != nil || srcErrs != nil {
			select {
			case chunk, ok := <-srcChunks:
				if !ok {
					srcChunks = nil
					continue
				}
				content += chunk.Content
				if chunk.Usage != nil {
					streamUsage = chunk.Usage
				}
				select {
				case chunks <- chunk:
				case <-ctx.Done():
					return
				}

			case err, ok := <-srcErrs:
				if !ok {
					srcErrs = nil
					continue
				}
				if err != nil {
					telemetry.AddErrorAttribute(span, err)
					g.recordFailure(norm, err, start, model)
					errs <- err
					return
				}

			case <-ctx.Done():
				return
			}
		}

		final := &domain.Response{Content: content, Usage: streamUsage}
		if streamUsage != nil {
			telemetry.AddTokenAttributes(span, streamUsage.PromptTokens, streamUsage.CompletionTokens)
		}
		g.usage.TrackUsage(norm, final, g.source, start, model)
		g.appendConversation(context.WithoutCancel(ctx), norm, content)
	}()

	return chunks, errs, nil
}

// prepare runs the shared front half: normalize, validate, catalog lookup,
// conversation resolution, and the modality gate.
func (g *Gateway) prepare(ctx context.Context, userCtx domain.UserContext, req domain.Request) (domain.Request, *domain.ModelConfig, error) {
	if userCtx.UserID == "" {
		return domain.Request{}, nil, domain.NewValidationError("missing_user_context", "user context with userId is required")
	}

	norm := processor.Normalize(req)
	if norm.UserID == "" {
		norm.UserID = userCtx.UserID
	}

	id := userCtx.RequestID
	if id == "" {
		id = uuid.New().String()
	}
	md := make(map[string]any, len(norm.Metadata)+1)
	for k, v := range norm.Metadata {
		md[k] = v
	}
	md["requestId"] = id
	norm.Metadata = md

	if err := processor.Validate(norm); err != nil {
		return domain.Request{}, nil, err
	}

	model, err := g.catalog.GetModel(ctx, norm.ModelID)
	if err != nil {
		return domain.Request{}, nil, err
	}

	if _, ok := g.providers[model.Provider]; !ok {
		ge := domain.NewValidationError("unknown_provider", "no provider registered for model")
		ge.ModelID = model.ModelID
		return domain.Request{}, nil, ge
	}

	if norm.Vendor == "" {
		norm.Vendor = vendor.VendorOf(norm.ModelID)
	}

	if norm.ConversationID != "" && len(norm.Messages) == 0 {
		resolved, err := g.resolveConversation(ctx, norm)
		if err != nil {
			return domain.Request{}, nil, err
		}
		norm = resolved
	}

	if err := g.modality.ValidateRequest(norm, model); err != nil {
		return domain.Request{}, nil, err
	}

	return norm, model, nil
}

// resolveConversation loads prior turns as message history. A trailing
// prompt becomes the newest user turn.
func (g *Gateway) resolveConversation(ctx context.Context, req domain.Request) (domain.Request, error) {
	turns, err := g.conversations.Turns(ctx, req.UserID, req.ConversationID)
	if err != nil {
		ge := domain.NewInvocationError(req.ModelID, req.Vendor, 0, err)
		ge.Service = "conversation_store"
		ge.Operation = "load_turns"
		return domain.Request{}, ge
	}

	messages := make([]domain.Message, 0, len(turns)+1)
	for _, turn := range turns {
		messages = append(messages, domain.Message{Role: turn.Role, Content: turn.Content})
	}
	if req.Prompt != "" {
		messages = append(messages, domain.Message{Role: "user", Content: req.Prompt})
	}

	req.Messages = messages
	req.Prompt = ""
	return req, nil
}

// appendConversation persists the exchange after a successful call. Append
// failures are logged, never surfaced: the caller already has its answer.
func (g *Gateway) appendConversation(ctx context.Context, req domain.Request, reply string) {
	if req.ConversationID == "" || g.conversations == nil {
		return
	}

	now := time.Now()
	turns := make([]domain.Turn, 0, 2)
	if n := len(req.Messages); n > 0 && req.Messages[n-1].Role == "user" {
		turns = append(turns, domain.Turn{Role: "user", Content: req.Messages[n-1].Content, Timestamp: now})
	}
	turns = append(turns, domain.Turn{Role: "assistant", Content: reply, Timestamp: now})

	if err := g.conversations.Append(ctx, req.UserID, req.ConversationID, turns...); err != nil {
		slog.Warn("failed to append conversation turns",
			"error", err,
			"conversation_id", req.ConversationID,
		)
	}
}

// recordFailure fans a provider error out to usage tracking, metrics, and
// the operator alert topic. All three paths are best-effort.
func (g *Gateway) recordFailure(req domain.Request, err error, start time.Time, model *domain.ModelConfig) {
	g.usage.TrackError(req, err, g.source, start, model)

	ge, ok := domain.AsGatewayError(err)
	if !ok {
		metrics.RecordProviderError(model.Provider, model.Vendor, "unknown")
		return
	}

	metrics.RecordProviderError(model.Provider, model.Vendor, string(ge.Kind))

	if g.notifier == nil {
		return
	}
	var alert notifications.Alert
	switch ge.Kind {
	case domain.KindThrottling:
		metrics.RecordThrottle(model.Provider, model.ModelID)
		alert = notifications.Alert{
			Type:    notifications.AlertThrottleDetected,
			ModelID: ge.ModelID,
			Vendor:  ge.Vendor,
			Message: "provider throttled invocation",
			Data:    map[string]any{"retryAfterMs": ge.RetryAfterMs},
		}
	case domain.KindInvocation:
		alert = notifications.Alert{
			Type:    notifications.AlertProviderFault,
			ModelID: ge.ModelID,
			Vendor:  ge.Vendor,
			Message: ge.Message,
			Data:    map[string]any{"statusCode": ge.StatusCode},
		}
	default:
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := g.notifier.Send(ctx, alert); err != nil {
			slog.Warn("failed to publish alert", "error", err, "type", alert.Type)
		}
	}()
}

func requestID(req domain.Request) string {
	if v, ok := req.Metadata["requestId"].(string); ok {
		return v
	}
	return ""
}
