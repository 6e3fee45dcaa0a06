package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordRequest(t *testing.T) {
	RequestsTotal.Reset()
	RequestDuration.Reset()

	RecordRequest("bedrock", "anthropic", "anthropic.claude-3-haiku-20240307-v1:0", "success", 1.5)

	count := testutil.ToFloat64(RequestsTotal.WithLabelValues("bedrock", "anthropic", "anthropic.claude-3-haiku-20240307-v1:0", "success"))
	if count != 1 {
		t.Errorf("RequestsTotal = %v, want 1", count)
	}
}

func TestRecordTokens(t *testing.T) {
	TokensTotal.Reset()

	RecordTokens("bedrock", "meta", "meta.llama3-8b-instruct-v1:0", 100, 50)

	in := testutil.ToFloat64(TokensTotal.WithLabelValues("bedrock", "meta", "meta.llama3-8b-instruct-v1:0", "input"))
	if in != 100 {
		t.Errorf("input tokens = %v, want 100", in)
	}

	out := testutil.ToFloat64(TokensTotal.WithLabelValues("bedrock", "meta", "meta.llama3-8b-instruct-v1:0", "output"))
	if out != 50 {
		t.Errorf("output tokens = %v, want 50", out)
	}
}

func TestRecordProviderError(t *testing.T) {
	ProviderErrors.Reset()

	RecordProviderError("bedrock", "amazon", "throttling")
	RecordProviderError("bedrock", "amazon", "throttling")
	RecordProviderError("bedrock", "amazon", "invocation")

	throttles := testutil.ToFloat64(ProviderErrors.WithLabelValues("bedrock", "amazon", "throttling"))
	if throttles != 2 {
		t.Errorf("throttling errors = %v, want 2", throttles)
	}
}

func TestActiveStreams(t *testing.T) {
	before := testutil.ToFloat64(ActiveStreams)

	IncrementActiveStreams()
	IncrementActiveStreams()
	DecrementActiveStreams()

	after := testutil.ToFloat64(ActiveStreams)
	if after-before != 1 {
		t.Errorf("active streams delta = %v, want 1", after-before)
	}
}
