// Package llm defines the Provider interface for Large Language Model
// backends used to generate clinical documents from transcripts.
//
// A provider wraps a remote or local model API (e.g., OpenAI GPT-4o, an
// Ollama instance) behind a uniform completion interface so document
// generation never couples to a specific SDK.
//
// Implementations must be safe for concurrent use and must propagate context
// cancellation promptly.
package llm

import "context"

// Usage holds token accounting information returned by the backend. Counts
// are in the model's native token unit and may differ between providers for
// the same textual content.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a
// response. Prompt must be non-empty.
type CompletionRequest struct {
	// SystemPrompt is the high-priority instruction defining the document
	// kind and output format.
	SystemPrompt string

	// Prompt is the user-role content, typically the transcript to
	// transform.
	Prompt string

	// Temperature controls output randomness in [0.0, 2.0]. Zero means use
	// the provider default.
	Temperature float64

	// MaxTokens caps the completion length. Zero means use the provider
	// default.
	MaxTokens int
}

// CompletionResponse is the full model reply.
type CompletionResponse struct {
	// Content is the text of the assistant's reply.
	Content string

	// Usage contains token accounting for this request/response pair. Some
	// backends do not report usage and leave it zero.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
