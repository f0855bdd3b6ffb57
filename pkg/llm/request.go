package llm

// ChatRequest represents a chat completion request (Ollama-compatible).
// The Model field may carry a provider prefix ("ollama:qwen3-30b"); routing
// strips the prefix before the request reaches a backend.
type ChatRequest struct {
	Model    string    `json:"model"`            // Model identifier, optionally provider-prefixed
	Messages []Message `json:"messages"`         // Conversation history
	Stream   *bool     `json:"stream,omitempty"` // Whether to stream the response
	Format   string    `json:"format,omitempty"` // Response format ("json" for JSON mode)

	// Generation options
	Options *Options `json:"options,omitempty"`

	// Keep model loaded (Ollama-specific)
	KeepAlive string `json:"keep_alive,omitempty"`
}

// Streaming reports whether the request asks for a streamed response.
// Unlike Ollama, relay defaults to non-streaming when the field is absent.
func (r *ChatRequest) Streaming() bool {
	return r.Stream != nil && *r.Stream
}

// Options contains model inference parameters.
type Options struct {
	// Sampling parameters
	Temperature *float64 `json:"temperature,omitempty"` // Creativity (0.0-2.0)
	TopP        *float64 `json:"top_p,omitempty"`       // Nucleus sampling threshold
	TopK        *int     `json:"top_k,omitempty"`       // Top-k sampling
	Seed        *int     `json:"seed,omitempty"`        // Random seed for reproducibility

	// Length parameters
	NumPredict *int `json:"num_predict,omitempty"` // Max tokens to generate
	NumCtx     *int `json:"num_ctx,omitempty"`     // Context window size

	// Repetition control
	RepeatPenalty *float64 `json:"repeat_penalty,omitempty"` // Penalty for repeating tokens
	RepeatLastN   *int     `json:"repeat_last_n,omitempty"`  // Tokens to consider for penalty

	// Stop sequences
	Stop []string `json:"stop,omitempty"` // Stop generation at these sequences
}
