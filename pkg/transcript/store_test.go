package transcript_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/relay/pkg/transcript"
)

// storeBehavior covers the Store contract shared by every implementation.
func storeBehavior(newStore func() transcript.Store) {
	var (
		ctx   context.Context
		store transcript.Store
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = newStore()
	})

	AfterEach(func() {
		store.Close()
	})

	Describe("Put and Get", func() {
		It("stores and retrieves a turn", func() {
			turn := makeTurn("hello", "hi there")

			Expect(store.Put(ctx, turn)).To(Succeed())

			retrieved, err := store.Get(ctx, turn.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(retrieved.ID).To(Equal(turn.ID))
			Expect(retrieved.Provider).To(Equal("ollama"))
			Expect(retrieved.Request.Messages).To(HaveLen(1))
			Expect(retrieved.Response.Text()).To(Equal("hi there"))
		})

		It("returns ErrNotFound for missing turns", func() {
			_, err := store.Get(ctx, "nonexistent")
			Expect(err).To(BeAssignableToTypeOf(transcript.ErrNotFound{}))
		})

		It("deduplicates by ID", func() {
			turn := makeTurn("dedup", "same reply")

			Expect(store.Put(ctx, turn)).To(Succeed())
			Expect(store.Put(ctx, makeTurn("dedup", "same reply"))).To(Succeed())

			turns, err := store.List(ctx, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(1))
		})
	})

	Describe("List", func() {
		It("returns turns newest first", func() {
			first := makeTurn("first", "one")
			second := makeTurn("second", "two")
			second.CreatedAt = first.CreatedAt.Add(time.Second)

			Expect(store.Put(ctx, first)).To(Succeed())
			Expect(store.Put(ctx, second)).To(Succeed())

			turns, err := store.List(ctx, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(2))
			Expect(turns[0].ID).To(Equal(second.ID))
			Expect(turns[1].ID).To(Equal(first.ID))
		})

		It("honors the limit", func() {
			for _, prompt := range []string{"a", "b", "c"} {
				Expect(store.Put(ctx, makeTurn(prompt, "reply to "+prompt))).To(Succeed())
			}

			turns, err := store.List(ctx, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(2))
		})

		It("returns nothing for an empty store", func() {
			turns, err := store.List(ctx, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(BeEmpty())
		})
	})

	Describe("IndexEmbedding and Search", func() {
		It("rejects embeddings for missing turns", func() {
			err := store.IndexEmbedding(ctx, "nonexistent", []float32{0.1})
			Expect(err).To(BeAssignableToTypeOf(transcript.ErrNotFound{}))
		})

		It("finds the nearest turn by cosine distance", func() {
			about := makeTurn("about cats", "cats are small felines")
			other := makeTurn("about go", "go has goroutines")

			Expect(store.Put(ctx, about)).To(Succeed())
			Expect(store.Put(ctx, other)).To(Succeed())
			Expect(store.IndexEmbedding(ctx, about.ID, []float32{1, 0, 0})).To(Succeed())
			Expect(store.IndexEmbedding(ctx, other.ID, []float32{0, 1, 0})).To(Succeed())

			results, err := store.Search(ctx, []float32{0.9, 0.1, 0}, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			Expect(results[0].Turn.ID).To(Equal(about.ID))
			Expect(results[0].Distance).To(BeNumerically("<", results[1].Distance))
		})

		It("skips unindexed turns", func() {
			indexed := makeTurn("indexed", "has a vector")
			plain := makeTurn("plain", "no vector")

			Expect(store.Put(ctx, indexed)).To(Succeed())
			Expect(store.Put(ctx, plain)).To(Succeed())
			Expect(store.IndexEmbedding(ctx, indexed.ID, []float32{1, 0})).To(Succeed())

			results, err := store.Search(ctx, []float32{1, 0}, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].Turn.ID).To(Equal(indexed.ID))
		})
	})
}

var _ = Describe("MemoryStore", func() {
	storeBehavior(func() transcript.Store {
		return transcript.NewMemoryStore()
	})
})

var _ = Describe("SQLiteStore", func() {
	storeBehavior(func() transcript.Store {
		store, err := transcript.NewSQLiteStore(":memory:")
		Expect(err).NotTo(HaveOccurred())
		return store
	})

	It("creates the database file on disk", func() {
		dbPath := filepath.Join(GinkgoT().TempDir(), "relay.db")

		store, err := transcript.NewSQLiteStore(dbPath)
		Expect(err).NotTo(HaveOccurred())
		defer store.Close()

		Expect(store.Put(context.Background(), makeTurn("persisted", "on disk"))).To(Succeed())

		_, err = os.Stat(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	It("survives reopening", func() {
		ctx := context.Background()
		dbPath := filepath.Join(GinkgoT().TempDir(), "relay.db")

		store, err := transcript.NewSQLiteStore(dbPath)
		Expect(err).NotTo(HaveOccurred())
		turn := makeTurn("persisted", "still here")
		Expect(store.Put(ctx, turn)).To(Succeed())
		store.Close()

		reopened, err := transcript.NewSQLiteStore(dbPath)
		Expect(err).NotTo(HaveOccurred())
		defer reopened.Close()

		retrieved, err := reopened.Get(ctx, turn.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(retrieved.Response.Text()).To(Equal("still here"))
	})
})
