// Package provider implements the chat completion backends relay can route
// to, plus the model-string routing that picks between them.
package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/papercomputeco/relay/pkg/llm"
)

// Provider is a chat completion backend.
type Provider interface {
	// Name returns the registry name of the provider ("ollama", "openai", ...).
	Name() string

	// Complete performs a single blocking chat completion. The request's
	// Model field must already be stripped of any provider prefix.
	Complete(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)

	// Stream performs a streaming chat completion, invoking fn for every
	// chunk. The final chunk has Done set. Returning an error from fn
	// aborts the stream.
	Stream(ctx context.Context, req *llm.ChatRequest, fn func(*llm.StreamChunk) error) error
}

// Embedder is implemented by providers that can produce embedding vectors.
type Embedder interface {
	Embed(ctx context.Context, model string, inputs []string) ([][]float32, error)
}

// HTTPError captures a non-2xx response from an upstream provider.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.Status, e.Body)
}

// newHTTPClient returns the default client for provider transports.
func newHTTPClient() *http.Client {
	return &http.Client{
		// LLM requests can be slow, especially with thinking models
		Timeout: 5 * time.Minute,
	}
}
