package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/papercomputeco/relay/pkg/llm"
)

// DefaultOllamaBaseURL is the default base URL for a local Ollama server.
const DefaultOllamaBaseURL = "http://localhost:11434"

// Ollama is a Provider backed by an Ollama server's native chat API.
type Ollama struct {
	name       string
	baseURL    string
	httpClient *http.Client
}

// NewOllama returns a Provider that talks to the Ollama API at baseURL.
// An empty baseURL falls back to DefaultOllamaBaseURL.
func NewOllama(name, baseURL string) *Ollama {
	u := strings.TrimRight(baseURL, "/")
	if u == "" {
		u = DefaultOllamaBaseURL
	}
	return &Ollama{
		name:       name,
		baseURL:    u,
		httpClient: newHTTPClient(),
	}
}

// Name implements Provider.
func (o *Ollama) Name() string { return o.name }

// Complete implements Provider using POST /api/chat with streaming disabled.
func (o *Ollama) Complete(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	streaming := false
	forwarded := *req
	forwarded.Stream = &streaming

	body, err := o.post(ctx, "/api/chat", &forwarded)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var resp llm.ChatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &resp, nil
}

// Stream implements Provider. Ollama streams newline-delimited JSON chunks.
func (o *Ollama) Stream(ctx context.Context, req *llm.ChatRequest, fn func(*llm.StreamChunk) error) error {
	streaming := true
	forwarded := *req
	forwarded.Stream = &streaming

	body, err := o.post(ctx, "/api/chat", &forwarded)
	if err != nil {
		return err
	}
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var chunk llm.StreamChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return fmt.Errorf("unmarshal chunk: %w", err)
		}
		if err := fn(&chunk); err != nil {
			return err
		}
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return nil
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed implements Embedder using POST /api/embed.
func (o *Ollama) Embed(ctx context.Context, model string, inputs []string) ([][]float32, error) {
	body, err := o.post(ctx, "/api/embed", ollamaEmbedRequest{Model: model, Input: inputs})
	if err != nil {
		return nil, err
	}
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var resp ollamaEmbedResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal embeddings: %w", err)
	}
	if len(resp.Embeddings) != len(inputs) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(inputs), len(resp.Embeddings))
	}
	return resp.Embeddings, nil
}

// post sends a JSON payload and returns the response body on 2xx status.
func (o *Ollama) post(ctx context.Context, path string, payload any) (io.ReadCloser, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		httpResp.Body.Close()
		return nil, &HTTPError{Status: httpResp.StatusCode, Body: string(body)}
	}
	return httpResp.Body, nil
}
