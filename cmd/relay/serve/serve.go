package servecmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/relay/cmd/relay/dbpath"
	"github.com/papercomputeco/relay/pkg/config"
	"github.com/papercomputeco/relay/pkg/logger"
	"github.com/papercomputeco/relay/pkg/provider"
	"github.com/papercomputeco/relay/pkg/transcript"
	"github.com/papercomputeco/relay/server"
)

const serveLongDesc string = `Run the relay HTTP server.

The server exposes an Ollama-compatible /api/chat and an OpenAI-compatible
/v1/chat/completions, routing each request to a configured provider by its
model prefix and recording every turn to the transcript database. Edits to
the config file are picked up without a restart.

Examples:
  relay serve
  relay serve --listen :6062 --db /tmp/relay.db`

const serveShortDesc string = "Run the relay HTTP server"

type serveCommander struct {
	configPath string
	dbPath     string
	listenAddr string
	debug      bool
}

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&cmder.configPath, "config", "c", "", "Path to config file")
	cmd.Flags().StringVar(&cmder.dbPath, "db", "", "Path to transcript database")
	cmd.Flags().StringVarP(&cmder.listenAddr, "listen", "l", ":6062", "Address to listen on")
	cmd.Flags().BoolVar(&cmder.debug, "debug", false, "Enable debug logging")

	return cmd
}

func (c *serveCommander) run(ctx context.Context) error {
	log := logger.NewLogger(c.debug)
	defer log.Sync()

	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}

	registry, err := provider.FromConfig(cfg)
	if err != nil {
		return err
	}

	path, err := dbpath.Resolve(c.dbPath, cfg.DBPath)
	if err != nil {
		return err
	}
	store, err := transcript.NewSQLiteStore(path)
	if err != nil {
		return fmt.Errorf("could not open transcript database %s: %w", path, err)
	}

	srv, err := server.New(server.Config{ListenAddr: c.listenAddr}, registry, store, log)
	if err != nil {
		store.Close()
		return fmt.Errorf("could not create server: %w", err)
	}
	defer srv.Close()

	log.Info("relay server starting",
		zap.String("listen", c.listenAddr),
		zap.String("db", path),
		zap.Strings("providers", registry.Names()),
	)

	// Hot-reload the provider registry on config edits.
	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	go func() {
		err := config.Watch(watchCtx, c.configPath, log, func(fresh *config.Config) {
			reloaded, err := provider.FromConfig(fresh)
			if err != nil {
				log.Warn("reloaded config is invalid, keeping current providers", zap.Error(err))
				return
			}
			srv.SwapRegistry(reloaded)
		})
		if err != nil && watchCtx.Err() == nil {
			log.Warn("config watch stopped", zap.Error(err))
		}
	}()

	// Shut down cleanly on signal.
	go func() {
		<-ctx.Done()
		srv.Shutdown()
	}()

	return srv.Run()
}
