package domain

import "time"

// ConnectionType distinguishes pay-per-call access from pre-reserved capacity.
type ConnectionType string

const (
	ConnectionOnDemand    ConnectionType = "on_demand"
	ConnectionProvisioned ConnectionType = "provisioned"
)

// Canonical modality values. Callers may send the shorthand "text"; the
// request processor rewrites it to ModalityTextToText.
const (
	ModalityShorthandText = "text"
	ModalityTextToText    = "text-to-text"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the gateway's vendor-neutral request shape. Exactly one of
// Messages, Prompt, or ConversationID must be resolvable to content before
// invocation; when ConversationID is set, UserID must be set too. A Request
// is treated as immutable once normalized; normalization returns a copy.
type Request struct {
	ModelID        string         `json:"modelId"`
	Provider       string         `json:"provider"`
	Vendor         string         `json:"vendor,omitempty"`
	Modality       string         `json:"modality,omitempty"`
	Messages       []Message      `json:"messages,omitempty"`
	Prompt         string         `json:"prompt,omitempty"`
	ConversationID string         `json:"conversationId,omitempty"`
	UserID         string         `json:"userId,omitempty"`
	SystemPrompt   string         `json:"systemPrompt,omitempty"`
	Temperature    *float64       `json:"temperature,omitempty"`
	MaxTokens      *int           `json:"maxTokens,omitempty"`
	TopP           *float64       `json:"topP,omitempty"`
	Stream         bool           `json:"stream,omitempty"`
	ConnectionType ConnectionType `json:"connectionType,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// Response is one normalized model exchange: the full reply for a direct
// call, or one incremental fragment when streaming. Streaming responses
// carry Usage only on the terminal chunk, when the vendor reports it.
type Response struct {
	Content  string         `json:"content"`
	Usage    *Usage         `json:"usage,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type Modalities struct {
	Input  []string `json:"input"`
	Output []string `json:"output"`
}

type InferenceTypes struct {
	OnDemand    bool `json:"onDemand"`
	Provisioned bool `json:"provisioned"`
	Streaming   bool `json:"streaming"`
}

type Capabilities struct {
	Modalities     Modalities     `json:"modalities"`
	Streaming      bool           `json:"streaming"`
	InferenceTypes InferenceTypes `json:"inferenceTypes"`
}

type Access struct {
	OnDemand      bool `json:"onDemand"`
	Provisionable bool `json:"provisionable"`
}

// ModelConfig is a static catalog entry. The catalog is read-only; request
// processing never mutates it.
type ModelConfig struct {
	ModelID      string       `json:"modelId"`
	Provider     string       `json:"provider"`
	Vendor       string       `json:"vendor"`
	Capabilities Capabilities `json:"capabilities"`
	Access       Access       `json:"access"`
	CostPerToken float64      `json:"costPerToken,omitempty"`
}

// UsageMetadata is built exactly once per call attempt, success or failure.
// Ownership transfers to the telemetry sink at enqueue; the gateway holds no
// further reference.
type UsageMetadata struct {
	RequestID      string         `json:"requestId"`
	UserID         string         `json:"userId"`
	ConversationID string         `json:"conversationId,omitempty"`
	ModelID        string         `json:"modelId"`
	Provider       string         `json:"provider"`
	ConnectionType ConnectionType `json:"connectionType"`
	TokensIn       int            `json:"tokensIn"`
	TokensOut      int            `json:"tokensOut"`
	StartTime      time.Time      `json:"startTime"`
	EndTime        time.Time      `json:"endTime"`
	DurationMs     int64          `json:"durationMs"`
	Source         string         `json:"source"`
	Tags           []string       `json:"tags,omitempty"`
	Success        bool           `json:"success"`
	Error          string         `json:"error,omitempty"`
	EstimatedCost  float64        `json:"estimatedCost,omitempty"`
}

// UserContext carries the identity established by the upstream
// authenticator. The gateway itself performs no authentication.
type UserContext struct {
	UserID    string `json:"userId"`
	Email     string `json:"email,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// Turn is one prior exchange handed to or from the conversation store. The
// gateway treats stored turns as already-serialized text.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
