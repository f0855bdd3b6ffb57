package mcpcmder

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/relay/cmd/relay/dbpath"
	"github.com/papercomputeco/relay/pkg/config"
	"github.com/papercomputeco/relay/pkg/llm"
	"github.com/papercomputeco/relay/pkg/provider"
	"github.com/papercomputeco/relay/pkg/transcript"
)

const mcpLongDesc string = `Serve relay's routed completion as an MCP tool over stdio.

Agent hosts that speak the Model Context Protocol can call the "complete"
tool to run a chat completion through relay's provider routing. Turns are
recorded to the transcript database like every other completion.

Examples:
  relay mcp
  relay mcp --config ~/.relay/config.toml`

const mcpShortDesc string = "Serve completions over MCP stdio"

type mcpCommander struct {
	configPath string
}

type completeArgs struct {
	Prompt string `json:"prompt" jsonschema:"the user prompt to complete"`
	Model  string `json:"model,omitempty" jsonschema:"provider-prefixed model identifier, defaults to the configured model"`
	System string `json:"system,omitempty" jsonschema:"optional system prompt"`
}

func NewMCPCmd() *cobra.Command {
	cmder := &mcpCommander{}

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: mcpShortDesc,
		Long:  mcpLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&cmder.configPath, "config", "c", "", "Path to config file")

	return cmd
}

func (c *mcpCommander) run(ctx context.Context) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}

	registry, err := provider.FromConfig(cfg)
	if err != nil {
		return err
	}

	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "relay",
		Version: "0.1.0",
	}, nil)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "complete",
		Description: "Run a chat completion through relay's provider routing and return the assistant text.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args completeArgs) (*mcp.CallToolResult, any, error) {
		text, err := c.complete(ctx, cfg, registry, args)
		if err != nil {
			return nil, nil, err
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: text}},
		}, nil, nil
	})

	return srv.Run(ctx, &mcp.StdioTransport{})
}

func (c *mcpCommander) complete(ctx context.Context, cfg *config.Config, registry *provider.Registry, args completeArgs) (string, error) {
	model := args.Model
	if model == "" {
		model = cfg.DefaultModel
	}

	prov, bare, err := registry.Route(model)
	if err != nil {
		return "", err
	}

	var messages []llm.Message
	if args.System != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: args.System})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: args.Prompt})

	req := &llm.ChatRequest{Model: bare, Messages: messages}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout.Duration)
	defer cancel()

	startTime := time.Now()
	resp, err := prov.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("completion failed: %w", err)
	}

	c.record(ctx, cfg, prov.Name(), req, resp, time.Since(startTime))
	return resp.Text(), nil
}

// record is best-effort; MCP tool results must not fail on storage problems.
func (c *mcpCommander) record(ctx context.Context, cfg *config.Config, providerName string, req *llm.ChatRequest, resp *llm.ChatResponse, duration time.Duration) {
	path, err := dbpath.Resolve("", cfg.DBPath)
	if err != nil {
		return
	}
	store, err := transcript.NewSQLiteStore(path)
	if err != nil {
		return
	}
	defer store.Close()
	_ = store.Put(ctx, transcript.NewTurn(providerName, req.Model, req, resp, duration))
}
