package transcript_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/relay/pkg/llm"
	"github.com/papercomputeco/relay/pkg/transcript"
)

func makeTurn(prompt, reply string) *transcript.Turn {
	req := &llm.ChatRequest{
		Model:    "qwen3-30b",
		Messages: []llm.Message{{Role: llm.RoleUser, Content: prompt}},
	}
	resp := &llm.ChatResponse{
		Model:   "qwen3-30b",
		Message: llm.Message{Role: llm.RoleAssistant, Content: reply},
		Done:    true,
	}
	return transcript.NewTurn("ollama", "qwen3-30b", req, resp, 100*time.Millisecond)
}

var _ = Describe("Turn", func() {
	Describe("NewTurn", func() {
		It("computes a SHA-256 hex ID", func() {
			turn := makeTurn("hello", "hi")

			Expect(turn.ID).To(HaveLen(64))
			Expect(turn.ID).To(MatchRegexp("^[a-f0-9]{64}$"))
		})

		It("assigns identical IDs to identical exchanges", func() {
			a := makeTurn("hello", "hi")
			b := makeTurn("hello", "hi")

			Expect(a.ID).To(Equal(b.ID))
		})

		It("excludes timing from the identity", func() {
			req := &llm.ChatRequest{Model: "m", Messages: []llm.Message{{Role: llm.RoleUser, Content: "x"}}}
			resp := &llm.ChatResponse{Message: llm.Message{Role: llm.RoleAssistant, Content: "y"}}

			a := transcript.NewTurn("ollama", "m", req, resp, time.Second)
			b := transcript.NewTurn("ollama", "m", req, resp, time.Minute)

			Expect(a.ID).To(Equal(b.ID))
		})

		It("assigns different IDs to different responses", func() {
			a := makeTurn("hello", "hi")
			b := makeTurn("hello", "hey there")

			Expect(a.ID).NotTo(Equal(b.ID))
		})

		It("assigns different IDs to different providers", func() {
			req := &llm.ChatRequest{Model: "m"}
			resp := &llm.ChatResponse{}

			a := transcript.NewTurn("ollama", "m", req, resp, 0)
			b := transcript.NewTurn("groq", "m", req, resp, 0)

			Expect(a.ID).NotTo(Equal(b.ID))
		})
	})
})
