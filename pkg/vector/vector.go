// Package vector provides the two similarity stores consulted during
// synthesis: a local SQLite-backed index for private knowledge and a REST
// client for the curated public store.
package vector

import (
	"context"
)

// Result is one ranked hit from a similarity query.
type Result struct {
	ID       string                 `json:"id"`
	Content  string                 `json:"data"`
	Metadata map[string]interface{} `json:"metadata"`
	Score    float64                `json:"score"`
}

// Store abstracts a vector similarity store. Upserts are idempotent by id;
// queries tolerate empty result sets.
type Store interface {
	Upsert(ctx context.Context, id, content string, metadata map[string]interface{}) error
	Query(ctx context.Context, text string, topK int) ([]Result, error)
}
