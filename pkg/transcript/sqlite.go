package transcript

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/relay/pkg/llm"
)

// registerVec loads the sqlite-vec extension into every new connection.
// It must run before the first sql.Open.
var registerVec = sync.OnceFunc(sqlite_vec.Auto)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS turns (
	id         TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	provider   TEXT NOT NULL,
	model      TEXT NOT NULL,
	request    TEXT NOT NULL,
	response   TEXT NOT NULL,
	duration   INTEGER NOT NULL,
	embedding  BLOB
);
CREATE INDEX IF NOT EXISTS idx_turns_created_at ON turns(created_at);
`

// SQLiteStore is a Store backed by SQLite, with vector search over turn
// embeddings via the sqlite-vec extension.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path.
// Use ":memory:" for an in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	registerVec()

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Put implements Store. Existing IDs are left untouched.
func (s *SQLiteStore) Put(ctx context.Context, turn *Turn) error {
	reqJSON, err := json.Marshal(turn.Request)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	respJSON, err := json.Marshal(turn.Response)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO turns (id, created_at, provider, model, request, response, duration)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		turn.ID,
		turn.CreatedAt.Format(time.RFC3339Nano),
		turn.Provider,
		turn.Model,
		string(reqJSON),
		string(respJSON),
		turn.Duration,
	)
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Turn, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, provider, model, request, response, duration
		 FROM turns WHERE id = ?`, id)

	turn, err := scanTurn(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("query turn: %w", err)
	}
	return turn, nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]*Turn, error) {
	query := `SELECT id, created_at, provider, model, request, response, duration
		  FROM turns ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var turns []*Turn
	for rows.Next() {
		turn, err := scanTurn(rows)
		if err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

// IndexEmbedding implements Store.
func (s *SQLiteStore) IndexEmbedding(ctx context.Context, id string, vector []float32) error {
	blob, err := sqlite_vec.SerializeFloat32(vector)
	if err != nil {
		return fmt.Errorf("serialize embedding: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `UPDATE turns SET embedding = ? WHERE id = ?`, blob, id)
	if err != nil {
		return fmt.Errorf("update embedding: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound{ID: id}
	}
	return nil
}

// Search implements Store using sqlite-vec's cosine distance.
func (s *SQLiteStore) Search(ctx context.Context, vector []float32, limit int) ([]Result, error) {
	blob, err := sqlite_vec.SerializeFloat32(vector)
	if err != nil {
		return nil, fmt.Errorf("serialize query vector: %w", err)
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, provider, model, request, response, duration,
		        vec_distance_cosine(embedding, ?) AS distance
		 FROM turns
		 WHERE embedding IS NOT NULL
		 ORDER BY distance
		 LIMIT ?`, blob, limit)
	if err != nil {
		return nil, fmt.Errorf("query search: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			turn                       Turn
			createdAt, reqRaw, respRaw string
			distance                   float64
		)
		if err := rows.Scan(&turn.ID, &createdAt, &turn.Provider, &turn.Model,
			&reqRaw, &respRaw, &turn.Duration, &distance); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if err := hydrateTurn(&turn, createdAt, reqRaw, respRaw); err != nil {
			return nil, err
		}
		results = append(results, Result{Turn: &turn, Distance: distance})
	}
	return results, rows.Err()
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTurn(row rowScanner) (*Turn, error) {
	var (
		turn                       Turn
		createdAt, reqRaw, respRaw string
	)
	if err := row.Scan(&turn.ID, &createdAt, &turn.Provider, &turn.Model,
		&reqRaw, &respRaw, &turn.Duration); err != nil {
		return nil, err
	}
	if err := hydrateTurn(&turn, createdAt, reqRaw, respRaw); err != nil {
		return nil, err
	}
	return &turn, nil
}

func hydrateTurn(turn *Turn, createdAt, reqRaw, respRaw string) error {
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return fmt.Errorf("parse created_at: %w", err)
	}
	turn.CreatedAt = ts

	turn.Request = &llm.ChatRequest{}
	if err := json.Unmarshal([]byte(reqRaw), turn.Request); err != nil {
		return fmt.Errorf("unmarshal request: %w", err)
	}
	turn.Response = &llm.ChatResponse{}
	if err := json.Unmarshal([]byte(respRaw), turn.Response); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
