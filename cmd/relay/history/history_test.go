package historycmder_test

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	historycmder "github.com/papercomputeco/relay/cmd/relay/history"
	"github.com/papercomputeco/relay/pkg/llm"
	"github.com/papercomputeco/relay/pkg/transcript"
)

func execute(cmd *cobra.Command, args ...string) (string, error) {
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func seedTurn(store transcript.Store, prompt, reply string, at time.Time) *transcript.Turn {
	req := &llm.ChatRequest{
		Model:    "qwen3-30b",
		Messages: []llm.Message{{Role: llm.RoleUser, Content: prompt}},
	}
	resp := &llm.ChatResponse{
		Model:   "qwen3-30b",
		Message: llm.Message{Role: llm.RoleAssistant, Content: reply},
		Done:    true,
	}
	turn := transcript.NewTurn("ollama", "qwen3-30b", req, resp, time.Second)
	turn.CreatedAt = at
	Expect(store.Put(context.Background(), turn)).To(Succeed())
	return turn
}

var _ = Describe("relay history", func() {
	var (
		dbPath     string
		configPath string
	)

	BeforeEach(func() {
		dir := GinkgoT().TempDir()
		dbPath = filepath.Join(dir, "relay.db")
		// Nonexistent config resolves to defaults, keeping the test
		// independent of anything under the user's home.
		configPath = filepath.Join(dir, "absent.toml")
	})

	Describe("list", func() {
		It("reports an empty database", func() {
			out, err := execute(historycmder.NewHistoryCmd(),
				"list", "--config", configPath, "--db", dbPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("No recorded completions."))
		})

		It("prints turns newest first with previews", func() {
			store, err := transcript.NewSQLiteStore(dbPath)
			Expect(err).NotTo(HaveOccurred())
			base := time.Now().UTC()
			older := seedTurn(store, "first question", "first answer", base.Add(-time.Minute))
			newer := seedTurn(store, "second question", "second answer", base)
			store.Close()

			out, err := execute(historycmder.NewHistoryCmd(),
				"list", "--config", configPath, "--db", dbPath)
			Expect(err).NotTo(HaveOccurred())

			Expect(out).To(ContainSubstring(newer.ID[:12]))
			Expect(out).To(ContainSubstring(older.ID[:12]))
			Expect(out).To(ContainSubstring("ollama:qwen3-30b"))
			Expect(out).To(ContainSubstring("second answer"))

			// Newest first
			newerAt := bytes.Index([]byte(out), []byte(newer.ID[:12]))
			olderAt := bytes.Index([]byte(out), []byte(older.ID[:12]))
			Expect(newerAt).To(BeNumerically("<", olderAt))
		})

		It("honors --limit", func() {
			store, err := transcript.NewSQLiteStore(dbPath)
			Expect(err).NotTo(HaveOccurred())
			base := time.Now().UTC()
			seedTurn(store, "a", "answer a", base.Add(-2*time.Second))
			seedTurn(store, "b", "answer b", base.Add(-time.Second))
			kept := seedTurn(store, "c", "answer c", base)
			store.Close()

			out, err := execute(historycmder.NewHistoryCmd(),
				"list", "--config", configPath, "--db", dbPath, "--limit", "1")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring(kept.ID[:12]))
			Expect(out).NotTo(ContainSubstring("answer a"))
		})
	})

	Describe("show", func() {
		It("prints a turn as JSON", func() {
			store, err := transcript.NewSQLiteStore(dbPath)
			Expect(err).NotTo(HaveOccurred())
			turn := seedTurn(store, "what is relay", "a model router", time.Now().UTC())
			store.Close()

			out, err := execute(historycmder.NewHistoryCmd(),
				"show", turn.ID, "--config", configPath, "--db", dbPath)
			Expect(err).NotTo(HaveOccurred())

			var got transcript.Turn
			Expect(json.Unmarshal([]byte(out), &got)).To(Succeed())
			Expect(got.ID).To(Equal(turn.ID))
			Expect(got.Response.Text()).To(Equal("a model router"))
		})

		It("accepts the shortened ID that list prints", func() {
			store, err := transcript.NewSQLiteStore(dbPath)
			Expect(err).NotTo(HaveOccurred())
			base := time.Now().UTC()
			seedTurn(store, "other question", "other answer", base.Add(-time.Minute))
			turn := seedTurn(store, "what is relay", "a model router", base)
			store.Close()

			out, err := execute(historycmder.NewHistoryCmd(),
				"show", turn.ID[:12], "--config", configPath, "--db", dbPath)
			Expect(err).NotTo(HaveOccurred())

			var got transcript.Turn
			Expect(json.Unmarshal([]byte(out), &got)).To(Succeed())
			Expect(got.ID).To(Equal(turn.ID))
		})

		It("fails for an unknown ID", func() {
			_, err := execute(historycmder.NewHistoryCmd(),
				"show", "deadbeef", "--config", configPath, "--db", dbPath)
			Expect(err).To(MatchError(ContainSubstring("deadbeef")))
		})
	})
})
