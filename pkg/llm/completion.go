package llm

import "time"

// CompletionRequest is the OpenAI-compatible chat completion request shape,
// accepted on the /v1 surface and sent to OpenAI-style upstreams.
type CompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	Seed        *int      `json:"seed,omitempty"`
	Stop        []string  `json:"stop,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

// Choice represents a single completion choice.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage reports token accounting for a completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionResponse is the OpenAI-compatible chat completion response shape.
type CompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// ChunkChoice is a single choice within a streaming completion chunk.
type ChunkChoice struct {
	Index        int     `json:"index"`
	Delta        Message `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

// CompletionChunk is one SSE event of an OpenAI-compatible streaming response.
type CompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
}

// Chat converts an OpenAI-style request into the canonical ChatRequest.
func (r *CompletionRequest) Chat() *ChatRequest {
	req := &ChatRequest{
		Model:    r.Model,
		Messages: r.Messages,
	}
	if r.Stream {
		stream := true
		req.Stream = &stream
	}
	if r.Temperature != nil || r.TopP != nil || r.MaxTokens != nil || r.Seed != nil || len(r.Stop) > 0 {
		req.Options = &Options{
			Temperature: r.Temperature,
			TopP:        r.TopP,
			NumPredict:  r.MaxTokens,
			Seed:        r.Seed,
			Stop:        r.Stop,
		}
	}
	return req
}

// Completion converts the canonical ChatRequest into the OpenAI request shape
// for forwarding to OpenAI-compatible upstreams.
func (r *ChatRequest) Completion() *CompletionRequest {
	out := &CompletionRequest{
		Model:    r.Model,
		Messages: r.Messages,
		Stream:   r.Streaming(),
	}
	if r.Options != nil {
		out.Temperature = r.Options.Temperature
		out.TopP = r.Options.TopP
		out.MaxTokens = r.Options.NumPredict
		out.Seed = r.Options.Seed
		out.Stop = r.Options.Stop
	}
	return out
}

// Chat normalizes an OpenAI-style response into the canonical ChatResponse.
// An empty choice list yields an empty assistant message; callers that care
// should have rejected it at the transport layer.
func (r *CompletionResponse) Chat() *ChatResponse {
	resp := &ChatResponse{
		Model:           r.Model,
		CreatedAt:       time.Unix(r.Created, 0).UTC(),
		Message:         Message{Role: RoleAssistant},
		Done:            true,
		PromptEvalCount: r.Usage.PromptTokens,
		EvalCount:       r.Usage.CompletionTokens,
	}
	if len(r.Choices) > 0 {
		resp.Message = r.Choices[0].Message
	}
	return resp
}

// Completion converts the canonical ChatResponse back into the OpenAI
// response shape for the /v1 surface.
func (r *ChatResponse) Completion(id string) *CompletionResponse {
	created := r.CreatedAt.Unix()
	if r.CreatedAt.IsZero() {
		created = time.Now().Unix()
	}
	return &CompletionResponse{
		ID:      id,
		Object:  "chat.completion",
		Created: created,
		Model:   r.Model,
		Choices: []Choice{{
			Index:        0,
			Message:      r.Message,
			FinishReason: "stop",
		}},
		Usage: Usage{
			PromptTokens:     r.PromptEvalCount,
			CompletionTokens: r.EvalCount,
			TotalTokens:      r.PromptEvalCount + r.EvalCount,
		},
	}
}
