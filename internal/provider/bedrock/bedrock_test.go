package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	"github.com/synaptiq/model-gateway/internal/domain"
	"github.com/synaptiq/model-gateway/internal/vendor"
)

type fakeInvoker struct {
	invokeOut  *bedrockruntime.InvokeModelOutput
	invokeErr  error
	streamOut  StreamEvents
	streamErr  error
	lastInput  *bedrockruntime.InvokeModelInput
	lastStream *bedrockruntime.InvokeModelWithResponseStreamInput
}

func (f *fakeInvoker) InvokeModel(ctx context.Context, in *bedrockruntime.InvokeModelInput) (*bedrockruntime.InvokeModelOutput, error) {
	f.lastInput = in
	return f.invokeOut, f.invokeErr
}

func (f *fakeInvoker) InvokeModelStream(ctx context.Context, in *bedrockruntime.InvokeModelWithResponseStreamInput) (StreamEvents, error) {
	f.lastStream = in
	return f.streamOut, f.streamErr
}

type fakeStream struct {
	events chan types.ResponseStream
	err    error
	closed bool
}

func newFakeStream(payloads ...[]byte) *fakeStream {
	events := make(chan types.ResponseStream, len(payloads))
	for _, p := range payloads {
		events <- &types.ResponseStreamMemberChunk{Value: types.PayloadPart{Bytes: p}}
	}
	close(events)
	return &fakeStream{events: events}
}

func (f *fakeStream) Events() <-chan types.ResponseStream { return f.events }
func (f *fakeStream) Close() error                        { f.closed = true; return nil }
func (f *fakeStream) Err() error                          { return f.err }

func claudeModel() *domain.ModelConfig {
	return &domain.ModelConfig{
		ModelID:  "anthropic.claude-3-haiku-20240307-v1:0",
		Provider: "bedrock",
		Vendor:   "anthropic",
	}
}

func chatRequest() domain.Request {
	return domain.Request{
		ModelID:  "anthropic.claude-3-haiku-20240307-v1:0",
		Provider: "bedrock",
		Messages: []domain.Message{{Role: "user", Content: "hi"}},
	}
}

func TestChat_Success(t *testing.T) {
	invoker := &fakeInvoker{
		invokeOut: &bedrockruntime.InvokeModelOutput{
			Body: []byte(`{"id":"msg_1","content":[{"type":"text","text":"hello"}],"stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":2}}`),
		},
	}
	p := NewWithInvoker(invoker, vendor.NewRegistry(), nil)

	resp, err := p.Chat(context.Background(), chatRequest(), claudeModel())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "hello" {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 5 {
		t.Errorf("total tokens = %d", resp.Usage.TotalTokens)
	}

	if invoker.lastInput == nil || *invoker.lastInput.ModelId != "anthropic.claude-3-haiku-20240307-v1:0" {
		t.Errorf("invoked model = %+v", invoker.lastInput)
	}

	var wire map[string]any
	if err := json.Unmarshal(invoker.lastInput.Body, &wire); err != nil {
		t.Fatalf("request body not JSON: %v", err)
	}
	if wire["anthropic_version"] != "bedrock-2023-05-31" {
		t.Errorf("wire request = %v", wire)
	}
}

func TestChat_UnknownVendor(t *testing.T) {
	p := NewWithInvoker(&fakeInvoker{}, vendor.NewRegistry(), nil)
	model := &domain.ModelConfig{ModelID: "acme.frontier-1", Provider: "bedrock", Vendor: "acme"}

	_, err := p.Chat(context.Background(), chatRequest(), model)
	ge, ok := domain.AsGatewayError(err)
	if !ok || ge.Kind != domain.KindUnsupportedVendor {
		t.Fatalf("expected unsupported vendor, got %v", err)
	}
	if ge.Vendor != "acme" {
		t.Errorf("vendor = %q", ge.Vendor)
	}
}

type throttlingAPIError struct{}

func (throttlingAPIError) Error() string        { return "ThrottlingException: rate exceeded" }
func (throttlingAPIError) ErrorCode() string    { return "ThrottlingException" }
func (throttlingAPIError) ErrorMessage() string { return "rate exceeded" }
func (throttlingAPIError) ErrorFault() smithy.ErrorFault {
	return smithy.FaultClient
}

func TestChat_ThrottlingRetryAfterRange(t *testing.T) {
	invoker := &fakeInvoker{invokeErr: throttlingAPIError{}}

	// Default jitter: run several times and keep every value in range.
	p := NewWithInvoker(invoker, vendor.NewRegistry(), nil)
	for i := 0; i < 50; i++ {
		_, err := p.Chat(context.Background(), chatRequest(), claudeModel())
		ge, ok := domain.AsGatewayError(err)
		if !ok || ge.Kind != domain.KindThrottling {
			t.Fatalf("expected throttling error, got %v", err)
		}
		if ge.RetryAfterMs < 15000 || ge.RetryAfterMs >= 20000 {
			t.Fatalf("retryAfterMs = %d, want [15000,20000)", ge.RetryAfterMs)
		}
		if ge.ModelID == "" || ge.Vendor == "" {
			t.Fatalf("throttling error missing model/vendor: %+v", ge)
		}
	}
}

func TestChat_ThrottlingPinnedJitter(t *testing.T) {
	invoker := &fakeInvoker{invokeErr: throttlingAPIError{}}
	p := NewWithInvoker(invoker, vendor.NewRegistry(), func() int64 { return 1234 })

	_, err := p.Chat(context.Background(), chatRequest(), claudeModel())
	ge, _ := domain.AsGatewayError(err)
	if ge == nil || ge.RetryAfterMs != 16234 {
		t.Fatalf("retryAfterMs = %+v, want 16234", ge)
	}
}

func TestChat_ThrottlingByMessage(t *testing.T) {
	invoker := &fakeInvoker{invokeErr: errors.New("upstream said: Too Many Requests")}
	p := NewWithInvoker(invoker, vendor.NewRegistry(), nil)

	_, err := p.Chat(context.Background(), chatRequest(), claudeModel())
	if !domain.IsKind(err, domain.KindThrottling) {
		t.Fatalf("expected throttling, got %v", err)
	}
}

func TestChat_InvocationErrorDefaultsTo500(t *testing.T) {
	invoker := &fakeInvoker{invokeErr: errors.New("connection reset")}
	p := NewWithInvoker(invoker, vendor.NewRegistry(), nil)

	_, err := p.Chat(context.Background(), chatRequest(), claudeModel())
	ge, ok := domain.AsGatewayError(err)
	if !ok || ge.Kind != domain.KindInvocation {
		t.Fatalf("expected invocation error, got %v", err)
	}
	if ge.StatusCode != 500 {
		t.Errorf("statusCode = %d, want 500", ge.StatusCode)
	}
}

func TestStreamChat_DeliversChunksAndUsage(t *testing.T) {
	stream := newFakeStream(
		[]byte(`{"type":"content_block_delta","delta":{"type":"text_delta","text":"hel"}}`),
		[]byte(`{"type":"content_block_delta","delta":{"type":"text_delta","text":"lo"}}`),
		[]byte(`{"type":"message_delta","usage":{"input_tokens":3,"output_tokens":2}}`),
		[]byte(`{"type":"message_stop"}`),
	)
	invoker := &fakeInvoker{streamOut: stream}
	p := NewWithInvoker(invoker, vendor.NewRegistry(), nil)

	chunks, errs := p.StreamChat(context.Background(), chatRequest(), claudeModel())

	var content string
	var usage *domain.Usage
	for chunk := range chunks {
		content += chunk.Content
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
	}
	if err := <-errs; err != nil {
		t.Fatalf("unexpected stream error: %v", err)
	}

	if content != "hello" {
		t.Errorf("content = %q", content)
	}
	if usage == nil || usage.CompletionTokens != 2 {
		t.Errorf("usage = %+v", usage)
	}
	if !stream.closed {
		t.Error("event stream was not closed")
	}
}

func TestStreamChat_InvokeFailureClassified(t *testing.T) {
	invoker := &fakeInvoker{streamErr: throttlingAPIError{}}
	p := NewWithInvoker(invoker, vendor.NewRegistry(), func() int64 { return 0 })

	chunks, errs := p.StreamChat(context.Background(), chatRequest(), claudeModel())
	for range chunks {
	}
	err := <-errs
	ge, ok := domain.AsGatewayError(err)
	if !ok || ge.Kind != domain.KindThrottling || ge.RetryAfterMs != 15000 {
		t.Fatalf("expected throttling with base delay, got %v", err)
	}
}

func TestStreamChat_ConsumerCancellation(t *testing.T) {
	// Unbuffered-looking stream with more chunks than the consumer reads.
	stream := newFakeStream(
		[]byte(`{"type":"content_block_delta","delta":{"type":"text_delta","text":"a"}}`),
		[]byte(`{"type":"content_block_delta","delta":{"type":"text_delta","text":"b"}}`),
		[]byte(`{"type":"content_block_delta","delta":{"type":"text_delta","text":"c"}}`),
	)
	invoker := &fakeInvoker{streamOut: stream}
	p := NewWithInvoker(invoker, vendor.NewRegistry(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	chunks, errs := p.StreamChat(ctx, chatRequest(), claudeModel())

	<-chunks
	cancel()

	// Producer must terminate and close both channels.
	for range chunks {
	}
	for range errs {
	}
	if !stream.closed {
		t.Error("event stream was not closed after cancellation")
	}
}
