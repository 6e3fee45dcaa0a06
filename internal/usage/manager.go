// Package usage derives telemetry from completed or failed exchanges and
// dispatches it off the caller's path. Nothing in this package may block or
// fail a chat call: records ride a bounded queue drained by a background
// goroutine, and every internal failure is logged and swallowed.
package usage

import (
	"context"
	"log/slog"
	"time"

	"github.com/synaptiq/model-gateway/internal/domain"
	"github.com/synaptiq/model-gateway/internal/metrics"
	"github.com/synaptiq/model-gateway/internal/usage/sink"
)

const (
	defaultQueueSize   = 1024
	sinkEnqueueTimeout = 5 * time.Second
)

// Aliases under which vendors and intermediate layers report token counts.
var (
	promptTokenAliases     = []string{"promptTokens", "prompt_tokens", "inputTokens", "input_tokens"}
	completionTokenAliases = []string{"completionTokens", "completion_tokens", "outputTokens", "output_tokens"}
)

type Manager struct {
	sink  sink.Sink
	queue chan domain.UsageMetadata
	done  chan struct{}
}

type Option func(*Manager)

func WithQueueSize(n int) Option {
	return func(m *Manager) {
		m.queue = make(chan domain.UsageMetadata, n)
	}
}

func NewManager(s sink.Sink, opts ...Option) *Manager {
	m := &Manager{
		sink:  s,
		queue: make(chan domain.UsageMetadata, defaultQueueSize),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	go m.dispatch()
	return m
}

// dispatch drains the queue until Close. Sink failures are logged and
// counted, never propagated.
func (m *Manager) dispatch() {
	defer close(m.done)
	for md := range m.queue {
		metrics.UsageQueueDepth.Set(float64(len(m.queue)))

		ctx, cancel := context.WithTimeout(context.Background(), sinkEnqueueTimeout)
		err := m.sink.Enqueue(ctx, md)
		cancel()

		if err != nil {
			metrics.UsageSinkErrors.Inc()
			slog.Warn("usage sink enqueue failed",
				"error", err,
				"request_id", md.RequestID,
				"model_id", md.ModelID,
			)
		}
	}
}

// Close stops accepting records and waits for the queue to drain, bounded
// by ctx.
func (m *Manager) Close(ctx context.Context) error {
	close(m.queue)
	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DetermineConnectionType resolves on-demand vs provisioned access. An
// explicit provisioned request against a model without provisioned capacity
// falls back to on-demand with a warning, not an error.
func (m *Manager) DetermineConnectionType(model *domain.ModelConfig, req *domain.Request) domain.ConnectionType {
	if req == nil || req.ConnectionType != domain.ConnectionProvisioned {
		return domain.ConnectionOnDemand
	}
	if model != nil && model.Access.Provisionable {
		return domain.ConnectionProvisioned
	}
	slog.Warn("provisioned connection requested but model is not provisionable, using on-demand",
		"model_id", req.ModelID,
	)
	return domain.ConnectionOnDemand
}

// TrackUsage records a successful exchange. It never blocks and never
// returns an error; a full queue drops the record with a log line.
func (m *Manager) TrackUsage(req domain.Request, resp *domain.Response, source string, start time.Time, model *domain.ModelConfig) {
	defer m.recoverTrack("track_usage")

	tokensIn, tokensOut := m.tokenCounts(req, resp)
	md := m.buildRecord(req, source, start, model)
	md.TokensIn = tokensIn
	md.TokensOut = tokensOut
	md.Success = true
	if model != nil {
		md.EstimatedCost = float64(tokensIn+tokensOut) * model.CostPerToken
	}

	metrics.RecordRequest(md.Provider, vendorLabel(model), md.ModelID, "success", float64(md.DurationMs)/1000)
	metrics.RecordTokens(md.Provider, vendorLabel(model), md.ModelID, tokensIn, tokensOut)

	m.enqueue(md)
}

// TrackError records a failed attempt: zero tokens, the error message
// attached. Same non-blocking, never-throws contract as TrackUsage.
func (m *Manager) TrackError(req domain.Request, callErr error, source string, start time.Time, model *domain.ModelConfig) {
	defer m.recoverTrack("track_error")

	md := m.buildRecord(req, source, start, model)
	md.Success = false
	if callErr != nil {
		md.Error = callErr.Error()
	}

	metrics.RecordRequest(md.Provider, vendorLabel(model), md.ModelID, "error", float64(md.DurationMs)/1000)

	m.enqueue(md)
}

func (m *Manager) buildRecord(req domain.Request, source string, start time.Time, model *domain.ModelConfig) domain.UsageMetadata {
	end := time.Now()
	requestID := ""
	if v, ok := req.Metadata["requestId"].(string); ok {
		requestID = v
	}
	return domain.UsageMetadata{
		RequestID:      requestID,
		UserID:         req.UserID,
		ConversationID: req.ConversationID,
		ModelID:        req.ModelID,
		Provider:       req.Provider,
		ConnectionType: m.DetermineConnectionType(model, &req),
		StartTime:      start,
		EndTime:        end,
		DurationMs:     end.Sub(start).Milliseconds(),
		Source:         source,
		Tags:           []string{"modelgateway"},
	}
}

func (m *Manager) enqueue(md domain.UsageMetadata) {
	select {
	case m.queue <- md:
		metrics.UsageQueueDepth.Set(float64(len(m.queue)))
	default:
		metrics.UsageRecordsDropped.Inc()
		slog.Warn("usage queue full, dropping record",
			"request_id", md.RequestID,
			"model_id", md.ModelID,
		)
	}
}

// tokenCounts pulls token usage from the response, falling back to the
// metadata aliases vendors and middle layers use, then to zero.
func (m *Manager) tokenCounts(req domain.Request, resp *domain.Response) (int, int) {
	if resp == nil {
		return 0, 0
	}
	if resp.Usage != nil {
		return resp.Usage.PromptTokens, resp.Usage.CompletionTokens
	}

	tokensIn, okIn := metadataInt(resp.Metadata, promptTokenAliases)
	tokensOut, okOut := metadataInt(resp.Metadata, completionTokenAliases)
	if !okIn || !okOut {
		slog.Warn("token counts missing from response, defaulting to zero",
			"model_id", req.ModelID,
		)
	}
	return tokensIn, tokensOut
}

func metadataInt(md map[string]any, aliases []string) (int, bool) {
	for _, key := range aliases {
		v, ok := md[key]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case int:
			return n, true
		case int64:
			return int(n), true
		case float64:
			return int(n), true
		}
	}
	return 0, false
}

func (m *Manager) recoverTrack(op string) {
	if r := recover(); r != nil {
		slog.Error("usage tracking panicked", "operation", op, "panic", r)
	}
}

func vendorLabel(model *domain.ModelConfig) string {
	if model == nil {
		return "unknown"
	}
	return model.Vendor
}
