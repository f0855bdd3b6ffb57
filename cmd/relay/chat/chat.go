package chatcmder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/relay/cmd/relay/dbpath"
	"github.com/papercomputeco/relay/pkg/config"
	"github.com/papercomputeco/relay/pkg/llm"
	"github.com/papercomputeco/relay/pkg/provider"
	"github.com/papercomputeco/relay/pkg/transcript"
)

const chatLongDesc string = `Start an interactive chat session.

The conversation history is carried across turns and sent whole on every
request, and each completed turn is recorded to the transcript database.

Examples:
  relay chat
  relay chat --model groq:llama-3.3-70b-versatile`

const chatShortDesc string = "Start an interactive chat session"

type chatCommander struct {
	configPath string
	dbPath     string
	model      string
	system     string
}

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&cmder.configPath, "config", "c", "", "Path to config file")
	cmd.Flags().StringVar(&cmder.dbPath, "db", "", "Path to transcript database")
	cmd.Flags().StringVarP(&cmder.model, "model", "m", "", "Model identifier (e.g. ollama:qwen3-30b)")
	cmd.Flags().StringVarP(&cmder.system, "system", "s", "", "System prompt")

	return cmd
}

func (c *chatCommander) run(ctx context.Context) error {
	cfg, err := config.Load(c.configPath)
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

	path, err := dbpath.Resolve(c.dbPath, cfg.DBPath)
	if err != nil {
		return err
	}
	store, err := transcript.NewSQLiteStore(path)
	if err != nil {
		return fmt.Errorf("could not open transcript database: %w", err)
	}
	defer store.Close()

	session := newSession(ctx, prov, bare, model, c.system, cfg.Timeout.Duration, store)

	program := tea.NewProgram(session, tea.WithAltScreen())
	_, err = program.Run()
	return err
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	userStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("5"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	statusStyle = lipgloss.NewStyle().Faint(true)
)

// completionMsg carries the result of one turn back into the update loop.
type completionMsg struct {
	resp     *llm.ChatResponse
	duration time.Duration
	err      error
	storeErr error
}

type session struct {
	ctx     context.Context
	prov    provider.Provider
	bare    string
	label   string
	timeout time.Duration
	store   transcript.Store

	viewport viewport.Model
	textarea textarea.Model

	messages []llm.Message
	lines    []string
	waiting  bool
	ready    bool
	width    int
}

func newSession(ctx context.Context, prov provider.Provider, bare, label, system string, timeout time.Duration, store transcript.Store) *session {
	ta := textarea.New()
	ta.Placeholder = "Send a message..."
	ta.Focus()
	ta.Prompt = "┃ "
	ta.SetHeight(2)
	ta.ShowLineNumbers = false
	ta.KeyMap.InsertNewline.SetEnabled(false)

	s := &session{
		ctx:      ctx,
		prov:     prov,
		bare:     bare,
		label:    label,
		timeout:  timeout,
		store:    store,
		textarea: ta,
		width:    80,
	}
	if system != "" {
		s.messages = append(s.messages, llm.Message{Role: llm.RoleSystem, Content: system})
	}
	return s
}

func (s *session) Init() tea.Cmd {
	return textarea.Blink
}

func (s *session) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		taCmd tea.Cmd
		vpCmd tea.Cmd
	)
	s.textarea, taCmd = s.textarea.Update(msg)
	s.viewport, vpCmd = s.viewport.Update(msg)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		s.width = msg.Width
		headerHeight := 2
		footerHeight := s.textarea.Height() + 2
		if !s.ready {
			s.viewport = viewport.New(msg.Width, msg.Height-headerHeight-footerHeight)
			s.ready = true
		} else {
			s.viewport.Width = msg.Width
			s.viewport.Height = msg.Height - headerHeight - footerHeight
		}
		s.textarea.SetWidth(msg.Width - 2)
		s.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return s, tea.Quit
		case tea.KeyEnter:
			if s.waiting {
				break
			}
			prompt := strings.TrimSpace(s.textarea.Value())
			if prompt == "" {
				break
			}
			s.textarea.Reset()
			s.messages = append(s.messages, llm.Message{Role: llm.RoleUser, Content: prompt})
			s.lines = append(s.lines, userStyle.Render("you: ")+prompt)
			s.waiting = true
			s.refresh()
			return s, tea.Batch(taCmd, vpCmd, s.complete())
		}

	case completionMsg:
		s.waiting = false
		if msg.err != nil {
			s.lines = append(s.lines, errorStyle.Render("error: "+msg.err.Error()))
			s.refresh()
			break
		}
		s.messages = append(s.messages, msg.resp.Message)
		s.lines = append(s.lines, s.renderAssistant(msg.resp.Text()))
		if msg.storeErr != nil {
			s.lines = append(s.lines, statusStyle.Render("turn not recorded: "+msg.storeErr.Error()))
		}
		s.refresh()
	}

	return s, tea.Batch(taCmd, vpCmd)
}

func (s *session) View() string {
	if !s.ready {
		return "loading..."
	}

	status := statusStyle.Render("enter to send · esc to quit")
	if s.waiting {
		status = statusStyle.Render("waiting for " + s.label + "...")
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s\n%s",
		titleStyle.Render("relay chat · "+s.label),
		s.viewport.View(),
		s.textarea.View(),
		status,
	)
}

// complete sends the whole conversation and records the finished turn.
func (s *session) complete() tea.Cmd {
	// Snapshot: the slice may grow while the request is in flight.
	messages := make([]llm.Message, len(s.messages))
	copy(messages, s.messages)

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
		defer cancel()

		req := &llm.ChatRequest{Model: s.bare, Messages: messages}

		startTime := time.Now()
		resp, err := s.prov.Complete(ctx, req)
		duration := time.Since(startTime)
		if err != nil {
			return completionMsg{err: err}
		}

		// Recording never fails the turn, but a failure is shown in the view.
		turn := transcript.NewTurn(s.prov.Name(), s.bare, req, resp, duration)
		storeErr := s.store.Put(ctx, turn)

		return completionMsg{resp: resp, duration: duration, storeErr: storeErr}
	}
}

func (s *session) renderAssistant(content string) string {
	width := s.width
	if width > 100 {
		width = 100
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}
	out, err := r.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(out, "\n") + "\n"
}

func (s *session) refresh() {
	s.viewport.SetContent(strings.Join(s.lines, "\n"))
	s.viewport.GotoBottom()
}
