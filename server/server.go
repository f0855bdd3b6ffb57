// Package server exposes relay's routed completions over HTTP: an
// Ollama-compatible /api/chat and an OpenAI-compatible /v1/chat/completions,
// both recording every turn to the transcript store.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"net/http"
	_ "net/http/pprof"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/papercomputeco/relay/pkg/llm"
	"github.com/papercomputeco/relay/pkg/provider"
	"github.com/papercomputeco/relay/pkg/transcript"
)

// Server routes chat completion requests to configured providers by model
// prefix and records each completed turn.
type Server struct {
	config Config
	logger *zap.Logger
	store  transcript.Store
	app    *fiber.App

	mu       sync.RWMutex
	registry *provider.Registry
}

// New creates a Server over the given registry and transcript store.
func New(config Config, registry *provider.Registry, store transcript.Store, logger *zap.Logger) (*Server, error) {
	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
		// Enable streaming
		StreamRequestBody: true,
	})

	s := &Server{
		config:   config,
		logger:   logger,
		store:    store,
		registry: registry,
		app:      app,
	}

	app.Post("/api/chat", s.handleChat)
	app.Post("/v1/chat/completions", s.handleCompletions)
	app.Get("/v1/models", s.handleModels)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(map[string]string{"status": "ok"})
	})

	app.Get("/transcripts", s.handleListTranscripts)
	app.Get("/transcripts/:id", s.handleGetTranscript)

	// Profiling endpoints ride on the stdlib mux
	app.All("/debug/pprof/*", adaptor.HTTPHandler(http.DefaultServeMux))

	return s, nil
}

// SwapRegistry replaces the provider registry, used for config hot-reload.
func (s *Server) SwapRegistry(registry *provider.Registry) {
	s.mu.Lock()
	s.registry = registry
	s.mu.Unlock()
	s.logger.Info("provider registry swapped", zap.Strings("providers", registry.Names()))
}

func (s *Server) currentRegistry() *provider.Registry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry
}

// Run starts the server on the configured listening address.
func (s *Server) Run() error {
	s.logger.Info("starting relay server", zap.String("listen", s.config.ListenAddr))
	return s.app.Listen(s.config.ListenAddr)
}

// RunWithListener starts the server on an existing listener (tests).
func (s *Server) RunWithListener(ln net.Listener) error {
	return s.app.Listener(ln)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// Close shuts down the server and releases the transcript store.
func (s *Server) Close() error {
	if err := s.app.Shutdown(); err != nil {
		return err
	}
	return s.store.Close()
}

// handleChat serves Ollama-style chat requests, routed by model prefix.
func (s *Server) handleChat(c *fiber.Ctx) error {
	startTime := time.Now()

	var req llm.ChatRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		s.logger.Error("failed to parse request", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "invalid request body"})
	}

	prov, bare, err := s.currentRegistry().Route(req.Model)
	if err != nil {
		s.logger.Error("failed to route request", zap.String("model", req.Model), zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: err.Error()})
	}

	s.logger.Debug("received chat request",
		zap.String("model", req.Model),
		zap.String("provider", prov.Name()),
		zap.Int("message_count", len(req.Messages)),
		zap.Bool("stream", req.Streaming()),
	)

	routed := req
	routed.Model = bare

	if req.Streaming() {
		return s.streamChat(c, prov, &routed, startTime)
	}

	resp, err := prov.Complete(c.Context(), &routed)
	if err != nil {
		s.logger.Error("completion failed", zap.String("provider", prov.Name()), zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(llm.ErrorResponse{Error: "upstream request failed"})
	}

	s.recordTurn(c.Context(), prov.Name(), &routed, resp, time.Since(startTime))
	return c.JSON(resp)
}

// streamChat forwards a streaming completion as NDJSON, accumulating the
// full response so the turn can be recorded once the stream finishes.
func (s *Server) streamChat(c *fiber.Ctx, prov provider.Provider, req *llm.ChatRequest, startTime time.Time) error {
	c.Set("Content-Type", "application/x-ndjson")
	c.Set("Transfer-Encoding", "chunked")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		// The fiber context is gone once the handler returns; the upstream
		// call lives on its own context inside the stream writer.
		ctx := context.Background()

		var fullContent strings.Builder
		var finalResp *llm.ChatResponse
		encoder := json.NewEncoder(w)

		err := prov.Stream(ctx, req, func(chunk *llm.StreamChunk) error {
			fullContent.WriteString(chunk.Message.Content)

			if err := encoder.Encode(chunk); err != nil {
				return err
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if chunk.Done {
				finalResp = &llm.ChatResponse{
					Model:              chunk.Model,
					CreatedAt:          chunk.CreatedAt,
					Message:            llm.Message{Role: llm.RoleAssistant, Content: fullContent.String()},
					Done:               true,
					TotalDuration:      chunk.TotalDuration,
					LoadDuration:       chunk.LoadDuration,
					PromptEvalCount:    chunk.PromptEvalCount,
					PromptEvalDuration: chunk.PromptEvalDuration,
					EvalCount:          chunk.EvalCount,
					EvalDuration:       chunk.EvalDuration,
				}
			}
			return nil
		})
		if err != nil {
			s.logger.Error("streaming failed", zap.String("provider", prov.Name()), zap.Error(err))
			return
		}

		if finalResp != nil {
			s.recordTurn(ctx, prov.Name(), req, finalResp, time.Since(startTime))
		}
	}))

	return nil
}

// handleCompletions serves the OpenAI-compatible surface over the same routing.
func (s *Server) handleCompletions(c *fiber.Ctx) error {
	startTime := time.Now()

	var req llm.CompletionRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		s.logger.Error("failed to parse request", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "invalid request body"})
	}

	chatReq := req.Chat()
	prov, bare, err := s.currentRegistry().Route(chatReq.Model)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: err.Error()})
	}
	chatReq.Model = bare

	if req.Stream {
		return s.streamCompletions(c, prov, chatReq, startTime)
	}

	resp, err := prov.Complete(c.Context(), chatReq)
	if err != nil {
		s.logger.Error("completion failed", zap.String("provider", prov.Name()), zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(llm.ErrorResponse{Error: "upstream request failed"})
	}

	turn := s.recordTurn(c.Context(), prov.Name(), chatReq, resp, time.Since(startTime))
	return c.JSON(resp.Completion(completionID(turn)))
}

// streamCompletions re-emits the routed stream as OpenAI server-sent events.
func (s *Server) streamCompletions(c *fiber.Ctx, prov provider.Provider, req *llm.ChatRequest, startTime time.Time) error {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		ctx := context.Background()

		var fullContent strings.Builder
		var finalResp *llm.ChatResponse
		id := "chatcmpl-" + strings.ReplaceAll(time.Now().UTC().Format("20060102150405.000000000"), ".", "")

		err := prov.Stream(ctx, req, func(chunk *llm.StreamChunk) error {
			fullContent.WriteString(chunk.Message.Content)

			event := llm.CompletionChunk{
				ID:      id,
				Object:  "chat.completion.chunk",
				Created: chunk.CreatedAt.Unix(),
				Model:   chunk.Model,
				Choices: []llm.ChunkChoice{{
					Delta: llm.Message{Role: llm.RoleAssistant, Content: chunk.Message.Content},
				}},
			}
			if chunk.Done {
				reason := "stop"
				event.Choices[0].FinishReason = &reason
				finalResp = &llm.ChatResponse{
					Model:           chunk.Model,
					CreatedAt:       chunk.CreatedAt,
					Message:         llm.Message{Role: llm.RoleAssistant, Content: fullContent.String()},
					Done:            true,
					PromptEvalCount: chunk.PromptEvalCount,
					EvalCount:       chunk.EvalCount,
				}
			}

			data, err := json.Marshal(event)
			if err != nil {
				return err
			}
			if _, err := w.WriteString("data: " + string(data) + "\n\n"); err != nil {
				return err
			}
			return w.Flush()
		})
		if err != nil {
			s.logger.Error("streaming failed", zap.String("provider", prov.Name()), zap.Error(err))
			return
		}

		w.WriteString("data: [DONE]\n\n")
		w.Flush()

		if finalResp != nil {
			s.recordTurn(ctx, prov.Name(), req, finalResp, time.Since(startTime))
		}
	}))

	return nil
}

// handleModels echoes the configured providers in the OpenAI list shape.
func (s *Server) handleModels(c *fiber.Ctx) error {
	names := s.currentRegistry().Names()

	type model struct {
		ID     string `json:"id"`
		Object string `json:"object"`
	}
	data := make([]model, 0, len(names))
	for _, name := range names {
		data = append(data, model{ID: name, Object: "model"})
	}

	return c.JSON(map[string]any{
		"object": "list",
		"data":   data,
	})
}

// handleListTranscripts returns recorded turns, newest first.
func (s *Server) handleListTranscripts(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)

	turns, err := s.store.List(c.Context(), limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to list transcripts"})
	}

	return c.JSON(map[string]any{
		"count": len(turns),
		"turns": turns,
	})
}

// handleGetTranscript returns a single recorded turn by ID.
func (s *Server) handleGetTranscript(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "id parameter required"})
	}

	turn, err := s.store.Get(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(llm.ErrorResponse{Error: "transcript not found"})
	}

	return c.JSON(turn)
}

// recordTurn persists a completed exchange. Storage failures are logged and
// swallowed; the completion already succeeded.
func (s *Server) recordTurn(ctx context.Context, providerName string, req *llm.ChatRequest, resp *llm.ChatResponse, duration time.Duration) *transcript.Turn {
	turn := transcript.NewTurn(providerName, req.Model, req, resp, duration)

	if err := s.store.Put(ctx, turn); err != nil {
		s.logger.Error("failed to record transcript", zap.Error(err))
		return turn
	}

	s.logger.Info("transcript recorded",
		zap.String("id", truncate(turn.ID, 16)),
		zap.String("provider", providerName),
		zap.Duration("duration", duration),
	)
	return turn
}

func completionID(turn *transcript.Turn) string {
	return "chatcmpl-" + truncate(turn.ID, 24)
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
