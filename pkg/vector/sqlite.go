package vector

import (
	"context"
	"database/sql"
	"encoding/json"
	"math"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cortex-mentor/cortex/pkg/errors"
	"github.com/cortex-mentor/cortex/pkg/llm"
	"github.com/cortex-mentor/cortex/pkg/logging"
)

// SQLiteStore indexes private knowledge in a local SQLite database. Documents
// are embedded on write via the configured embedder; queries embed the query
// text and rank stored vectors by cosine similarity in process. The corpus is
// one developer's insight stream, so a full scan per query is fine.
type SQLiteStore struct {
	db       *sql.DB
	embedder llm.Embedder
}

// NewSQLiteStore opens (creating if needed) the index at path.
func NewSQLiteStore(path string, embedder llm.Embedder) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ServiceUnavailable, "failed to open sqlite index")
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &SQLiteStore{db: db, embedder: embedder}
	if err := s.initDB(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.ServiceUnavailable, "failed to initialize sqlite index")
	}

	// WAL lets the worker write while a synthesis query reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		logging.GetLogger().Warn(context.Background(), "Failed to enable WAL mode: %v", err)
	}

	return s, nil
}

func (s *SQLiteStore) initDB() error {
	query := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		metadata TEXT NOT NULL,
		embedding BLOB NOT NULL,
		created_at INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(query)
	return err
}

// Upsert embeds content and stores it under id, replacing any previous
// document with the same id.
func (s *SQLiteStore) Upsert(ctx context.Context, id, content string, metadata map[string]interface{}) error {
	embedding, err := s.embedder.CreateEmbedding(ctx, content)
	if err != nil {
		return err
	}

	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return errors.Wrap(err, errors.InvalidInput, "failed to encode document metadata")
	}
	embJSON, err := json.Marshal(embedding)
	if err != nil {
		return errors.Wrap(err, errors.Unknown, "failed to encode embedding")
	}

	query := `
	INSERT INTO documents (id, content, metadata, embedding, created_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		content = excluded.content,
		metadata = excluded.metadata,
		embedding = excluded.embedding
	`
	if _, err := s.db.ExecContext(ctx, query, id, content, string(metaJSON), embJSON, time.Now().UnixNano()); err != nil {
		return errors.Wrap(err, errors.ServiceUnavailable, "failed to upsert document")
	}
	return nil
}

// Query embeds text and returns the topK most similar documents, best first.
// An empty index yields an empty slice, not an error.
func (s *SQLiteStore) Query(ctx context.Context, text string, topK int) ([]Result, error) {
	queryVec, err := s.embedder.CreateEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, content, metadata, embedding FROM documents`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ServiceUnavailable, "failed to scan document index")
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			id, content, metaJSON string
			embJSON               []byte
		)
		if err := rows.Scan(&id, &content, &metaJSON, &embJSON); err != nil {
			return nil, errors.Wrap(err, errors.Unknown, "failed to scan document row")
		}

		var embedding []float32
		if err := json.Unmarshal(embJSON, &embedding); err != nil {
			logging.GetLogger().Warn(ctx, "Skipping document %s with corrupt embedding: %v", id, err)
			continue
		}

		metadata := map[string]interface{}{}
		if err := json.Unmarshal([]byte(metaJSON), &metadata); err != nil {
			metadata = map[string]interface{}{}
		}

		results = append(results, Result{
			ID:       id,
			Content:  content,
			Metadata: metadata,
			Score:    cosineSimilarity(queryVec, embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ServiceUnavailable, "failed to iterate document index")
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// cosineSimilarity returns the cosine of the angle between a and b, or 0 when
// either vector is empty, zero, or the dimensions disagree.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
