package runcmder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/relay/cmd/relay/dbpath"
	"github.com/papercomputeco/relay/pkg/config"
	"github.com/papercomputeco/relay/pkg/llm"
	"github.com/papercomputeco/relay/pkg/logger"
	"github.com/papercomputeco/relay/pkg/provider"
	"github.com/papercomputeco/relay/pkg/render"
	"github.com/papercomputeco/relay/pkg/transcript"
)

const runLongDesc string = `Run a single chat completion and print the result.

The model identifier may carry a provider prefix ("ollama:qwen3-30b",
"groq/llama-3.3-70b-versatile"); unprefixed models go to the default
provider. The prompt comes from the arguments, or from stdin when absent.

Each completion is recorded to the local transcript database unless
--no-record is given.

Examples:
  relay run "Hello, explain reinforcement learning simply."
  relay run --model openai:gpt-4o-mini --system "Be terse." "What is a goroutine?"
  cat prompt.txt | relay run --json`

const runShortDesc string = "Run a one-shot chat completion"

type runCommander struct {
	configPath string
	dbPath     string

	model       string
	system      string
	temperature float64
	topP        float64
	maxTokens   int
	seed        int

	stream   bool
	jsonOut  bool
	noRecord bool
	debug    bool
}

func NewRunCmd() *cobra.Command {
	cmder := &runCommander{}

	cmd := &cobra.Command{
		Use:   "run [prompt...]",
		Short: runShortDesc,
		Long:  runLongDesc,
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd, args)
		},
	}

	cmd.Flags().StringVarP(&cmder.configPath, "config", "c", "", "Path to config file")
	cmd.Flags().StringVar(&cmder.dbPath, "db", "", "Path to transcript database")
	cmd.Flags().StringVarP(&cmder.model, "model", "m", "", "Model identifier (e.g. ollama:qwen3-30b)")
	cmd.Flags().StringVarP(&cmder.system, "system", "s", "", "System prompt")
	cmd.Flags().Float64Var(&cmder.temperature, "temperature", 0, "Sampling temperature")
	cmd.Flags().Float64Var(&cmder.topP, "top-p", 0, "Nucleus sampling threshold")
	cmd.Flags().IntVar(&cmder.maxTokens, "max-tokens", 0, "Maximum tokens to generate")
	cmd.Flags().IntVar(&cmder.seed, "seed", 0, "Random seed for reproducibility")
	cmd.Flags().BoolVar(&cmder.stream, "stream", false, "Stream the response as it is generated")
	cmd.Flags().BoolVar(&cmder.jsonOut, "json", false, "Print the raw response object as JSON")
	cmd.Flags().BoolVar(&cmder.noRecord, "no-record", false, "Skip transcript recording")
	cmd.Flags().BoolVar(&cmder.debug, "debug", false, "Enable debug logging")

	return cmd
}

func (c *runCommander) run(ctx context.Context, cmd *cobra.Command, args []string) error {
	log := logger.NewLogger(c.debug)
	defer log.Sync()

	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}

	prompt, err := c.resolvePrompt(cmd, args)
	if err != nil {
		return err
	}

	model := c.model
	if model == "" {
		model = cfg.DefaultModel
	}

	registry, err := provider.FromConfig(cfg)
	if err != nil {
		return err
	}
	prov, bare, err := registry.Route(model)
	if err != nil {
		return err
	}

	req := c.buildRequest(cmd, bare, prompt)

	log.Debug("running completion",
		zap.String("provider", prov.Name()),
		zap.String("model", bare),
		zap.Bool("stream", c.stream),
	)

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout.Duration)
	defer cancel()

	startTime := time.Now()
	var resp *llm.ChatResponse
	if c.stream {
		resp, err = c.streamCompletion(ctx, cmd, prov, req)
	} else {
		resp, err = prov.Complete(ctx, req)
	}
	if err != nil {
		return fmt.Errorf("completion failed: %w", err)
	}
	duration := time.Since(startTime)

	if err := c.printResponse(cmd, resp); err != nil {
		return err
	}

	if !c.noRecord {
		c.record(ctx, log, cfg, registry, prov.Name(), req, resp, duration)
	}
	return nil
}

// resolvePrompt joins the args, falling back to stdin so prompts can be piped.
func (c *runCommander) resolvePrompt(cmd *cobra.Command, args []string) (string, error) {
	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt != "" {
		return prompt, nil
	}

	raw, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("could not read prompt from stdin: %w", err)
	}
	prompt = strings.TrimSpace(string(raw))
	if prompt == "" {
		return "", fmt.Errorf("no prompt given")
	}
	return prompt, nil
}

func (c *runCommander) buildRequest(cmd *cobra.Command, model, prompt string) *llm.ChatRequest {
	var messages []llm.Message
	if c.system != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: c.system})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: prompt})

	req := &llm.ChatRequest{
		Model:    model,
		Messages: messages,
	}

	opts := &llm.Options{}
	set := false
	if cmd.Flags().Changed("temperature") {
		opts.Temperature = &c.temperature
		set = true
	}
	if cmd.Flags().Changed("top-p") {
		opts.TopP = &c.topP
		set = true
	}
	if cmd.Flags().Changed("max-tokens") {
		opts.NumPredict = &c.maxTokens
		set = true
	}
	if cmd.Flags().Changed("seed") {
		opts.Seed = &c.seed
		set = true
	}
	if set {
		req.Options = opts
	}
	return req
}

// streamCompletion prints content chunks as they arrive and assembles the
// final response from the accumulated stream.
func (c *runCommander) streamCompletion(ctx context.Context, cmd *cobra.Command, prov provider.Provider, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	var fullContent strings.Builder
	var finalResp *llm.ChatResponse

	err := prov.Stream(ctx, req, func(chunk *llm.StreamChunk) error {
		fullContent.WriteString(chunk.Message.Content)
		if !c.jsonOut {
			fmt.Fprint(cmd.OutOrStdout(), chunk.Message.Content)
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
		return nil, err
	}
	if finalResp == nil {
		return nil, fmt.Errorf("stream ended without a final chunk")
	}
	if !c.jsonOut {
		fmt.Fprintln(cmd.OutOrStdout())
	}
	return finalResp, nil
}

func (c *runCommander) printResponse(cmd *cobra.Command, resp *llm.ChatResponse) error {
	if c.jsonOut {
		raw, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return fmt.Errorf("could not marshal response: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(raw))
		return nil
	}

	if c.stream {
		// Content already printed chunk by chunk.
		return nil
	}

	fmt.Fprint(cmd.OutOrStdout(), render.Markdown(resp.Text()))
	if !strings.HasSuffix(resp.Text(), "\n") {
		fmt.Fprintln(cmd.OutOrStdout())
	}
	return nil
}

// record persists the turn and, when an embedding model is configured,
// indexes the response for semantic search. Both are best-effort.
func (c *runCommander) record(ctx context.Context, log *zap.Logger, cfg *config.Config, registry *provider.Registry, providerName string, req *llm.ChatRequest, resp *llm.ChatResponse, duration time.Duration) {
	path, err := dbpath.Resolve(c.dbPath, cfg.DBPath)
	if err != nil {
		log.Warn("could not resolve transcript database", zap.Error(err))
		return
	}

	store, err := transcript.NewSQLiteStore(path)
	if err != nil {
		log.Warn("could not open transcript database", zap.Error(err))
		return
	}
	defer store.Close()

	turn := transcript.NewTurn(providerName, req.Model, req, resp, duration)
	if err := store.Put(ctx, turn); err != nil {
		log.Warn("could not record transcript", zap.Error(err))
		return
	}
	log.Debug("transcript recorded", zap.String("id", turn.ID[:16]))

	if cfg.Embedding.Model == "" {
		return
	}
	embedder, embedModel, err := provider.EmbedderFromConfig(cfg, registry)
	if err != nil {
		log.Debug("embedding unavailable", zap.Error(err))
		return
	}
	vectors, err := embedder.Embed(ctx, embedModel, []string{resp.Text()})
	if err != nil {
		log.Debug("embedding failed", zap.Error(err))
		return
	}
	if err := store.IndexEmbedding(ctx, turn.ID, vectors[0]); err != nil {
		log.Debug("embedding index failed", zap.Error(err))
	}
}
