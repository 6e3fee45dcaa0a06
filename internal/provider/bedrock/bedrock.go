// Package bedrock invokes hosted models through the AWS Bedrock runtime.
// Vendor wire formats are delegated to the vendor registry; this package
// owns the network call and the provider-level error taxonomy.
package bedrock

import (
	"context"
	"errors"
	"math/rand"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	"github.com/synaptiq/model-gateway/internal/domain"
	"github.com/synaptiq/model-gateway/internal/vendor"
)

const (
	throttleBaseDelayMs = 15000
	throttleJitterMs    = 5000
)

// StreamEvents is the slice of the Bedrock event stream the provider
// consumes, small enough to fake in tests.
type StreamEvents interface {
	Events() <-chan types.ResponseStream
	Close() error
	Err() error
}

// Invoker abstracts the Bedrock runtime client.
type Invoker interface {
	InvokeModel(ctx context.Context, in *bedrockruntime.InvokeModelInput) (*bedrockruntime.InvokeModelOutput, error)
	InvokeModelStream(ctx context.Context, in *bedrockruntime.InvokeModelWithResponseStreamInput) (StreamEvents, error)
}

type sdkInvoker struct {
	client *bedrockruntime.Client
}

func (s *sdkInvoker) InvokeModel(ctx context.Context, in *bedrockruntime.InvokeModelInput) (*bedrockruntime.InvokeModelOutput, error) {
	return s.client.InvokeModel(ctx, in)
}

func (s *sdkInvoker) InvokeModelStream(ctx context.Context, in *bedrockruntime.InvokeModelWithResponseStreamInput) (StreamEvents, error) {
	out, err := s.client.InvokeModelWithResponseStream(ctx, in)
	if err != nil {
		return nil, err
	}
	return out.GetStream(), nil
}

// Provider routes a canonical request to the right vendor adapter and runs
// the Bedrock invocation. The underlying client is constructed once at
// process start and holds no per-request state, so one Provider serves all
// concurrent calls without locking.
type Provider struct {
	invoker  Invoker
	registry *vendor.Registry
	region   string

	// jitter returns the random component of retry-after guidance, in
	// [0, throttleJitterMs). Injectable so tests can pin it.
	jitter func() int64
}

func New(cfg aws.Config, registry *vendor.Registry) *Provider {
	return &Provider{
		invoker:  &sdkInvoker{client: bedrockruntime.NewFromConfig(cfg)},
		registry: registry,
		region:   cfg.Region,
		jitter:   func() int64 { return rand.Int63n(throttleJitterMs) },
	}
}

// NewWithInvoker builds a provider around a custom invoker and jitter
// source. A nil jitter keeps the default.
func NewWithInvoker(invoker Invoker, registry *vendor.Registry, jitter func() int64) *Provider {
	if jitter == nil {
		jitter = func() int64 { return rand.Int63n(throttleJitterMs) }
	}
	return &Provider{invoker: invoker, registry: registry, jitter: jitter}
}

func (p *Provider) Name() string {
	return "bedrock"
}

// Chat runs one synchronous invocation: resolve vendor, format, invoke,
// parse. The sequence is one logical unit; no partial state escapes.
func (p *Provider) Chat(ctx context.Context, req domain.Request, model *domain.ModelConfig) (*domain.Response, error) {
	adapter, err := p.registry.Resolve(model.ModelID)
	if err != nil {
		return nil, err
	}

	body, err := adapter.FormatRequest(requestParams(req))
	if err != nil {
		ge := domain.NewInvocationError(model.ModelID, adapter.Name, 0, err)
		ge.Operation = "format_request"
		return nil, ge
	}

	out, err := p.invoker.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(model.ModelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, p.classify(err, model.ModelID, adapter.Name)
	}

	resp, err := adapter.ParseResponse(out.Body)
	if err != nil {
		ge := domain.NewInvocationError(model.ModelID, adapter.Name, 0, err)
		ge.Operation = "parse_response"
		return nil, ge
	}
	return resp, nil
}

// StreamChat starts a streaming invocation and returns a lazy, finite,
// non-restartable sequence of response fragments. The terminal fragment may
// carry usage totals. Cancelling ctx (the consumer walking away) closes the
// underlying event stream.
func (p *Provider) StreamChat(ctx context.Context, req domain.Request, model *domain.ModelConfig) (<-chan *domain.Response, <-chan error) {
	chunks := make(chan *domain.Response)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		adapter, err := p.registry.Resolve(model.ModelID)
		if err != nil {
			errs <- err
			return
		}

		body, err := adapter.FormatRequest(requestParams(req))
		if err != nil {
			ge := domain.NewInvocationError(model.ModelID, adapter.Name, 0, err)
			ge.Operation = "format_request"
			errs <- ge
			return
		}

		stream, err := p.invoker.InvokeModelStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
			ModelId:     aws.String(model.ModelID),
			ContentType: aws.String("application/json"),
			Accept:      aws.String("application/json"),
			Body:        body,
		})
		if err != nil {
			errs <- p.classify(err, model.ModelID, adapter.Name)
			return
		}
		defer stream.Close()

		var pendingUsage *domain.Usage

		for event := range stream.Events() {
			part, ok := event.(*types.ResponseStreamMemberChunk)
			if !ok {
				continue
			}

			chunk, err := adapter.ParseChunk(part.Value.Bytes)
			if err != nil {
				// A single undecodable event does not kill the stream.
				continue
			}

			if chunk.Usage != nil {
				pendingUsage = chunk.Usage
			}

			if chunk.Content != "" {
				select {
				case chunks <- &domain.Response{Content: chunk.Content}:
				case <-ctx.Done():
					return
				}
			}

			if chunk.Done {
				break
			}
		}

		if err := stream.Err(); err != nil {
			errs <- p.classify(err, model.ModelID, adapter.Name)
			return
		}

		if pendingUsage != nil {
			select {
			case chunks <- &domain.Response{Usage: pendingUsage}:
			case <-ctx.Done():
			}
		}
	}()

	return chunks, errs
}

// classify maps a provider fault into the typed taxonomy. Throttling gets
// retry-after guidance; everything else becomes an invocation error with the
// provider's status code when it supplied one.
func (p *Provider) classify(err error, modelID, vendorName string) error {
	if isThrottle(err) {
		return domain.NewThrottlingError(modelID, vendorName, throttleBaseDelayMs+p.jitter(), err)
	}

	statusCode := 0
	var re *awshttp.ResponseError
	if errors.As(err, &re) {
		statusCode = re.HTTPStatusCode()
	}
	return domain.NewInvocationError(modelID, vendorName, statusCode, err)
}

func isThrottle(err error) bool {
	var te *types.ThrottlingException
	if errors.As(err, &te) {
		return true
	}

	var ae smithy.APIError
	if errors.As(err, &ae) {
		code := ae.ErrorCode()
		if strings.Contains(code, "Throttling") || code == "TooManyRequestsException" {
			return true
		}
		if strings.Contains(strings.ToLower(ae.ErrorMessage()), "too many requests") {
			return true
		}
	}

	return strings.Contains(strings.ToLower(err.Error()), "too many requests")
}

// requestParams lifts the canonical request into the adapter input. A bare
// prompt becomes a single user turn.
func requestParams(req domain.Request) vendor.Params {
	messages := req.Messages
	if len(messages) == 0 && req.Prompt != "" {
		messages = []domain.Message{{Role: "user", Content: req.Prompt}}
	}
	return vendor.Params{
		Messages:    messages,
		System:      req.SystemPrompt,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	}
}
