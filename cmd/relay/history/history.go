package historycmder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/relay/cmd/relay/dbpath"
	"github.com/papercomputeco/relay/pkg/config"
	"github.com/papercomputeco/relay/pkg/provider"
	"github.com/papercomputeco/relay/pkg/render"
	"github.com/papercomputeco/relay/pkg/transcript"
)

const historyLongDesc string = `Inspect recorded completions.

Every completion relay performs is stored in a local SQLite database,
deduplicated by content hash. "list" shows recent turns, "show" prints one
in full, and "search" finds turns semantically close to a query using the
configured embedding model.

Examples:
  relay history list --limit 20
  relay history show 4f1c2d…
  relay history search "reinforcement learning"`

const historyShortDesc string = "Inspect recorded completions"

type historyCommander struct {
	configPath string
	dbPath     string
	limit      int
}

func NewHistoryCmd() *cobra.Command {
	cmder := &historyCommander{}

	cmd := &cobra.Command{
		Use:   "history",
		Short: historyShortDesc,
		Long:  historyLongDesc,
	}

	cmd.PersistentFlags().StringVarP(&cmder.configPath, "config", "c", "", "Path to config file")
	cmd.PersistentFlags().StringVar(&cmder.dbPath, "db", "", "Path to transcript database")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent turns, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.list(cmd.Context(), cmd)
		},
	}
	listCmd.Flags().IntVarP(&cmder.limit, "limit", "n", 20, "Maximum turns to list")

	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a recorded turn as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.show(cmd.Context(), cmd, args[0])
		},
	}

	searchCmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find turns semantically close to a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.search(cmd.Context(), cmd, args[0])
		},
	}
	searchCmd.Flags().IntVarP(&cmder.limit, "limit", "n", 5, "Maximum results")

	cmd.AddCommand(listCmd, showCmd, searchCmd)
	return cmd
}

func (c *historyCommander) openStore() (transcript.Store, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	path, err := dbpath.Resolve(c.dbPath, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	return transcript.NewSQLiteStore(path)
}

func (c *historyCommander) list(ctx context.Context, cmd *cobra.Command) error {
	store, err := c.openStore()
	if err != nil {
		return fmt.Errorf("could not open transcript database: %w", err)
	}
	defer store.Close()

	turns, err := store.List(ctx, c.limit)
	if err != nil {
		return fmt.Errorf("could not list turns: %w", err)
	}
	if len(turns) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No recorded completions.")
		return nil
	}

	for _, turn := range turns {
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %-24s  %s\n",
			turn.ID[:12],
			turn.CreatedAt.Local().Format(time.DateTime),
			turn.Provider+":"+turn.Model,
			render.Preview(turn.Response.Text(), 60),
		)
	}
	return nil
}

func (c *historyCommander) show(ctx context.Context, cmd *cobra.Command, id string) error {
	store, err := c.openStore()
	if err != nil {
		return fmt.Errorf("could not open transcript database: %w", err)
	}
	defer store.Close()

	turn, err := c.lookup(ctx, store, id)
	if err != nil {
		return err
	}

	raw, err := json.MarshalIndent(turn, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal turn: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(raw))
	return nil
}

// lookup resolves an ID or one of the shortened prefixes that list prints.
func (c *historyCommander) lookup(ctx context.Context, store transcript.Store, id string) (*transcript.Turn, error) {
	turn, err := store.Get(ctx, id)
	if err == nil {
		return turn, nil
	}
	var notFound transcript.ErrNotFound
	if !errors.As(err, &notFound) || len(id) >= 64 {
		return nil, err
	}

	turns, err := store.List(ctx, 0)
	if err != nil {
		return nil, err
	}

	var match *transcript.Turn
	for _, t := range turns {
		if !strings.HasPrefix(t.ID, id) {
			continue
		}
		if match != nil {
			return nil, fmt.Errorf("ambiguous id prefix %q, give more characters", id)
		}
		match = t
	}
	if match == nil {
		return nil, transcript.ErrNotFound{ID: id}
	}
	return match, nil
}

func (c *historyCommander) search(ctx context.Context, cmd *cobra.Command, query string) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}

	registry, err := provider.FromConfig(cfg)
	if err != nil {
		return err
	}
	embedder, embedModel, err := provider.EmbedderFromConfig(cfg, registry)
	if err != nil {
		return fmt.Errorf("search needs an embedding model (set [embedding] model in config): %w", err)
	}

	vectors, err := embedder.Embed(ctx, embedModel, []string{query})
	if err != nil {
		return fmt.Errorf("could not embed query: %w", err)
	}

	store, err := c.openStore()
	if err != nil {
		return fmt.Errorf("could not open transcript database: %w", err)
	}
	defer store.Close()

	results, err := store.Search(ctx, vectors[0], c.limit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if len(results) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No indexed completions to search.")
		return nil
	}

	for _, result := range results {
		fmt.Fprintf(cmd.OutOrStdout(), "%.4f  %s  %-24s  %s\n",
			result.Distance,
			result.Turn.ID[:12],
			result.Turn.Provider+":"+result.Turn.Model,
			render.Preview(result.Turn.Response.Text(), 60),
		)
	}
	return nil
}
