package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/papercomputeco/relay/pkg/llm"
)

// DefaultOpenAIBaseURL is the default base URL for the OpenAI API.
const DefaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAI is a Provider backed by an OpenAI-compatible chat completions
// endpoint. One implementation covers every such upstream (OpenAI, Groq);
// only the name, base URL and credentials differ.
type OpenAI struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewOpenAI returns a Provider that talks to an OpenAI-compatible API.
// name is the registry name the provider answers to.
func NewOpenAI(name, baseURL, apiKey string) *OpenAI {
	u := strings.TrimRight(baseURL, "/")
	if u == "" {
		u = DefaultOpenAIBaseURL
	}
	return &OpenAI{
		name:       name,
		baseURL:    u,
		apiKey:     apiKey,
		httpClient: newHTTPClient(),
	}
}

// Name implements Provider.
func (o *OpenAI) Name() string { return o.name }

// Complete implements Provider using POST {base}/chat/completions.
func (o *OpenAI) Complete(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	payload := req.Completion()
	payload.Stream = false

	body, err := o.post(ctx, "/chat/completions", payload)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var resp llm.CompletionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no choices in response")
	}
	return resp.Chat(), nil
}

// Stream implements Provider. OpenAI-compatible upstreams stream server-sent
// events; each data line carries a completion chunk, terminated by [DONE].
func (o *OpenAI) Stream(ctx context.Context, req *llm.ChatRequest, fn func(*llm.StreamChunk) error) error {
	payload := req.Completion()
	payload.Stream = true

	body, err := o.post(ctx, "/chat/completions", payload)
	if err != nil {
		return err
	}
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	done := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}

		var event llm.CompletionChunk
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			return fmt.Errorf("unmarshal chunk: %w", err)
		}
		if len(event.Choices) == 0 {
			continue
		}

		choice := event.Choices[0]
		chunk := &llm.StreamChunk{
			Model:     event.Model,
			CreatedAt: time.Unix(event.Created, 0).UTC(),
			Message:   llm.Message{Role: llm.RoleAssistant, Content: choice.Delta.Content},
			Done:      choice.FinishReason != nil,
		}
		if err := fn(chunk); err != nil {
			return err
		}
		if chunk.Done {
			done = true
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}

	// Some upstreams close with [DONE] and no finish_reason chunk.
	if !done {
		return fn(&llm.StreamChunk{
			Model:     req.Model,
			CreatedAt: time.Now().UTC(),
			Message:   llm.Message{Role: llm.RoleAssistant},
			Done:      true,
		})
	}
	return nil
}

type openAIEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed implements Embedder using POST {base}/embeddings.
func (o *OpenAI) Embed(ctx context.Context, model string, inputs []string) ([][]float32, error) {
	body, err := o.post(ctx, "/embeddings", openAIEmbedRequest{Model: model, Input: inputs})
	if err != nil {
		return nil, err
	}
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var resp openAIEmbedResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal embeddings: %w", err)
	}
	if len(resp.Data) != len(inputs) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(inputs), len(resp.Data))
	}

	out := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// post sends a JSON payload with bearer auth and returns the body on 2xx.
func (o *OpenAI) post(ctx context.Context, path string, payload any) (io.ReadCloser, error) {
	if o.apiKey == "" {
		return nil, fmt.Errorf("%s: API key not set", o.name)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

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
