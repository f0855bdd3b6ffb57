// Package transcript records every completion that passes through relay as a
// flat, queryable turn: the request, the response, and timing.
package transcript

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/papercomputeco/relay/pkg/llm"
)

// Turn is one recorded request/response pair.
type Turn struct {
	// ID is the content-addressed identifier (SHA-256 over provider, model,
	// request and response, hex-encoded). Identical turns deduplicate.
	ID string `json:"id"`

	CreatedAt time.Time `json:"created_at"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`

	Request  *llm.ChatRequest  `json:"request"`
	Response *llm.ChatResponse `json:"response"`

	// Duration is the wall-clock time of the completion in nanoseconds.
	Duration int64 `json:"duration"`
}

// NewTurn builds a Turn with its content hash computed.
func NewTurn(provider, model string, req *llm.ChatRequest, resp *llm.ChatResponse, duration time.Duration) *Turn {
	t := &Turn{
		CreatedAt: time.Now().UTC(),
		Provider:  provider,
		Model:     model,
		Request:   req,
		Response:  resp,
		Duration:  int64(duration),
	}
	t.ID = t.computeID()
	return t
}

// computeID hashes the identity-bearing fields. CreatedAt and Duration are
// excluded so replays of the same exchange collapse to one record.
func (t *Turn) computeID() string {
	input := struct {
		Provider string            `json:"provider"`
		Model    string            `json:"model"`
		Request  *llm.ChatRequest  `json:"request"`
		Response *llm.ChatResponse `json:"response"`
	}{t.Provider, t.Model, t.Request, t.Response}

	data, err := json.Marshal(input)
	if err != nil {
		panic("failed to marshal turn hash input: " + err.Error())
	}

	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Result is a Turn with its search distance, returned by Store.Search.
type Result struct {
	Turn     *Turn
	Distance float64
}

// Store persists turns. Implementations must deduplicate by ID.
type Store interface {
	// Put stores a turn. Storing an existing ID is a no-op.
	Put(ctx context.Context, turn *Turn) error

	// Get retrieves a turn by ID. Returns ErrNotFound if absent.
	Get(ctx context.Context, id string) (*Turn, error)

	// List returns turns newest first, at most limit (0 means no limit).
	List(ctx context.Context, limit int) ([]*Turn, error)

	// IndexEmbedding attaches an embedding vector to a stored turn.
	IndexEmbedding(ctx context.Context, id string, vector []float32) error

	// Search returns the turns nearest to the query vector by cosine
	// distance, closest first. Turns without embeddings are skipped.
	Search(ctx context.Context, vector []float32, limit int) ([]Result, error)

	// Close releases resources.
	Close() error
}

// ErrNotFound is returned when a turn doesn't exist in the store.
type ErrNotFound struct {
	ID string
}

func (e ErrNotFound) Error() string {
	if e.ID == "" {
		return "turn not found"
	}
	return "turn not found: " + e.ID
}
