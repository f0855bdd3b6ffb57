package llm

import "time"

// ChatResponse represents a chat completion response (Ollama-compatible).
// Responses from OpenAI-style backends are normalized into this shape.
type ChatResponse struct {
	Model     string    `json:"model"`      // Model that generated the response
	CreatedAt time.Time `json:"created_at"` // Response timestamp
	Message   Message   `json:"message"`    // The assistant's response
	Done      bool      `json:"done"`       // Whether generation is complete

	// Metrics (only present when done=true)
	TotalDuration      int64 `json:"total_duration,omitempty"`       // Total time in nanoseconds
	LoadDuration       int64 `json:"load_duration,omitempty"`        // Model load time
	PromptEvalCount    int   `json:"prompt_eval_count,omitempty"`    // Tokens in prompt
	PromptEvalDuration int64 `json:"prompt_eval_duration,omitempty"` // Prompt processing time
	EvalCount          int   `json:"eval_count,omitempty"`           // Generated tokens
	EvalDuration       int64 `json:"eval_duration,omitempty"`        // Generation time
}

// Text returns the assistant message content.
func (r *ChatResponse) Text() string {
	return r.Message.Content
}

// StreamChunk represents a single chunk in a streaming response.
type StreamChunk struct {
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	Message   Message   `json:"message"`
	Done      bool      `json:"done"`

	// Final chunk includes metrics
	TotalDuration      int64 `json:"total_duration,omitempty"`
	LoadDuration       int64 `json:"load_duration,omitempty"`
	PromptEvalCount    int   `json:"prompt_eval_count,omitempty"`
	PromptEvalDuration int64 `json:"prompt_eval_duration,omitempty"`
	EvalCount          int   `json:"eval_count,omitempty"`
	EvalDuration       int64 `json:"eval_duration,omitempty"`
}

// ErrorResponse represents an error returned to API clients.
type ErrorResponse struct {
	Error string `json:"error"`
}
