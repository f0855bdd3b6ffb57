package runcmder_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	runcmder "github.com/papercomputeco/relay/cmd/relay/run"
	"github.com/papercomputeco/relay/pkg/llm"
	"github.com/papercomputeco/relay/pkg/transcript"
)

// fakeOllama answers /api/chat like a local Ollama daemon, capturing the
// last request it saw.
type fakeOllama struct {
	server      *httptest.Server
	lastRequest *llm.ChatRequest
	reply       string
}

func newFakeOllama(reply string) *fakeOllama {
	f := &fakeOllama{reply: reply}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}

		var req llm.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.lastRequest = &req

		if req.Streaming() {
			w.Header().Set("Content-Type", "application/x-ndjson")
			enc := json.NewEncoder(w)
			for _, word := range strings.SplitAfter(f.reply, " ") {
				enc.Encode(llm.StreamChunk{
					Model:     req.Model,
					CreatedAt: time.Now().UTC(),
					Message:   llm.Message{Role: llm.RoleAssistant, Content: word},
				})
			}
			enc.Encode(llm.StreamChunk{
				Model:     req.Model,
				CreatedAt: time.Now().UTC(),
				Done:      true,
				EvalCount: 3,
			})
			return
		}

		json.NewEncoder(w).Encode(llm.ChatResponse{
			Model:     req.Model,
			CreatedAt: time.Now().UTC(),
			Message:   llm.Message{Role: llm.RoleAssistant, Content: f.reply},
			Done:      true,
			EvalCount: 3,
		})
	}))
	return f
}

func (f *fakeOllama) Close() { f.server.Close() }

func writeConfig(dir, baseURL, dbPath string) string {
	body := fmt.Sprintf(`default_model = "ollama:qwen3-30b"
default_provider = "ollama"
db = %q

[providers.ollama]
kind = "ollama"
base_url = %q
`, dbPath, baseURL)

	path := filepath.Join(dir, "config.toml")
	Expect(os.WriteFile(path, []byte(body), 0o644)).To(Succeed())
	return path
}

func execute(cmd *cobra.Command, stdin string, args ...string) (string, error) {
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

var _ = Describe("relay run", func() {
	var (
		upstream   *fakeOllama
		configPath string
		dbPath     string
	)

	BeforeEach(func() {
		upstream = newFakeOllama("Reinforcement learning is trial and error with rewards.")
		dir := GinkgoT().TempDir()
		dbPath = filepath.Join(dir, "relay.db")
		configPath = writeConfig(dir, upstream.server.URL, dbPath)
	})

	AfterEach(func() {
		upstream.Close()
	})

	It("completes a prompt against the default model", func() {
		out, err := execute(runcmder.NewRunCmd(), "",
			"--config", configPath,
			"Hello, explain reinforcement learning simply.",
		)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("trial and error"))

		Expect(upstream.lastRequest).NotTo(BeNil())
		Expect(upstream.lastRequest.Model).To(Equal("qwen3-30b"))
		Expect(upstream.lastRequest.Messages).To(HaveLen(1))
		Expect(upstream.lastRequest.Messages[0].Role).To(Equal(llm.RoleUser))
	})

	It("prints the raw response object with --json", func() {
		out, err := execute(runcmder.NewRunCmd(), "",
			"--config", configPath, "--json",
			"Hello, explain reinforcement learning simply.",
		)
		Expect(err).NotTo(HaveOccurred())

		var resp llm.ChatResponse
		Expect(json.Unmarshal([]byte(out), &resp)).To(Succeed())
		Expect(resp.Done).To(BeTrue())
		Expect(resp.Text()).To(ContainSubstring("trial and error"))
		Expect(resp.EvalCount).To(Equal(3))
	})

	It("records the turn in the transcript database", func() {
		_, err := execute(runcmder.NewRunCmd(), "",
			"--config", configPath,
			"Hello, explain reinforcement learning simply.",
		)
		Expect(err).NotTo(HaveOccurred())

		store, err := transcript.NewSQLiteStore(dbPath)
		Expect(err).NotTo(HaveOccurred())
		defer store.Close()

		turns, err := store.List(context.Background(), 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(turns).To(HaveLen(1))
		Expect(turns[0].Provider).To(Equal("ollama"))
		Expect(turns[0].Model).To(Equal("qwen3-30b"))
		Expect(turns[0].Response.Text()).To(ContainSubstring("trial and error"))
	})

	It("skips recording with --no-record", func() {
		_, err := execute(runcmder.NewRunCmd(), "",
			"--config", configPath, "--no-record",
			"hello",
		)
		Expect(err).NotTo(HaveOccurred())
		Expect(dbPath).NotTo(BeAnExistingFile())
	})

	It("reads the prompt from stdin when no args are given", func() {
		out, err := execute(runcmder.NewRunCmd(), "What is a goroutine?\n",
			"--config", configPath,
		)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("trial and error"))
		Expect(upstream.lastRequest.Messages[0].Content).To(Equal("What is a goroutine?"))
	})

	It("fails without a prompt", func() {
		_, err := execute(runcmder.NewRunCmd(), "",
			"--config", configPath,
		)
		Expect(err).To(MatchError(ContainSubstring("no prompt")))
	})

	It("honors an explicit provider-prefixed model", func() {
		_, err := execute(runcmder.NewRunCmd(), "",
			"--config", configPath,
			"--model", "ollama:llama3.2",
			"hello",
		)
		Expect(err).NotTo(HaveOccurred())
		Expect(upstream.lastRequest.Model).To(Equal("llama3.2"))
	})

	It("forwards sampling options only when set", func() {
		_, err := execute(runcmder.NewRunCmd(), "",
			"--config", configPath,
			"--temperature", "0.2", "--seed", "7",
			"hello",
		)
		Expect(err).NotTo(HaveOccurred())

		opts := upstream.lastRequest.Options
		Expect(opts).NotTo(BeNil())
		Expect(*opts.Temperature).To(Equal(0.2))
		Expect(*opts.Seed).To(Equal(7))
		Expect(opts.TopP).To(BeNil())
		Expect(opts.NumPredict).To(BeNil())
	})

	It("prepends a system message with --system", func() {
		_, err := execute(runcmder.NewRunCmd(), "",
			"--config", configPath,
			"--system", "Be terse.",
			"hello",
		)
		Expect(err).NotTo(HaveOccurred())

		messages := upstream.lastRequest.Messages
		Expect(messages).To(HaveLen(2))
		Expect(messages[0].Role).To(Equal(llm.RoleSystem))
		Expect(messages[0].Content).To(Equal("Be terse."))
	})

	It("streams chunks with --stream", func() {
		out, err := execute(runcmder.NewRunCmd(), "",
			"--config", configPath, "--stream",
			"hello",
		)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("trial and error with rewards."))
		Expect(upstream.lastRequest.Streaming()).To(BeTrue())
	})

	It("sends unrecognized prefixes whole to the default provider", func() {
		// Ollama tags like "llama3:8b" look prefixed but are not.
		_, err := execute(runcmder.NewRunCmd(), "",
			"--config", configPath,
			"--model", "llama3:8b",
			"hello",
		)
		Expect(err).NotTo(HaveOccurred())
		Expect(upstream.lastRequest.Model).To(Equal("llama3:8b"))
	})
})
