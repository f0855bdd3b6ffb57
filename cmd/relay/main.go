package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	chatcmder "github.com/papercomputeco/relay/cmd/relay/chat"
	historycmder "github.com/papercomputeco/relay/cmd/relay/history"
	mcpcmder "github.com/papercomputeco/relay/cmd/relay/mcp"
	runcmder "github.com/papercomputeco/relay/cmd/relay/run"
	servecmder "github.com/papercomputeco/relay/cmd/relay/serve"
)

const rootLongDesc string = `relay routes chat completions to any configured LLM provider.

Model identifiers carry an optional provider prefix: "ollama:qwen3-30b"
goes to the local Ollama server, "groq/llama-3.3-70b-versatile" to Groq,
and a bare model name to the default provider. Every completion is
recorded to a local transcript database.

Configuration lives at ~/.relay/config.toml (override with RELAY_CONFIG).`

func main() {
	root := &cobra.Command{
		Use:          "relay",
		Short:        "Route chat completions to any configured LLM provider",
		Long:         rootLongDesc,
		SilenceUsage: true,
	}

	root.AddCommand(
		runcmder.NewRunCmd(),
		chatcmder.NewChatCmd(),
		historycmder.NewHistoryCmd(),
		servecmder.NewServeCmd(),
		mcpcmder.NewMCPCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
