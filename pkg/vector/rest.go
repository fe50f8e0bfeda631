package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cortex-mentor/cortex/pkg/errors"
)

// RESTStore talks to a hosted vector index over its JSON HTTP API. The
// service embeds document and query text on its side, so no embedder is
// needed here. Used for the shared public knowledge base.
type RESTStore struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewRESTStore builds a client for the index at baseURL authenticated with a
// bearer token.
func NewRESTStore(baseURL, token string) *RESTStore {
	return &RESTStore{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type restUpsertRequest struct {
	ID       string                 `json:"id"`
	Data     string                 `json:"data"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type restQueryRequest struct {
	Data            string `json:"data"`
	TopK            int    `json:"topK"`
	IncludeMetadata bool   `json:"includeMetadata"`
	IncludeData     bool   `json:"includeData"`
}

type restQueryResponse struct {
	Result []Result `json:"result"`
}

// Upsert stores content under id; the service computes the embedding.
func (s *RESTStore) Upsert(ctx context.Context, id, content string, metadata map[string]interface{}) error {
	_, err := s.post(ctx, "/upsert-data", restUpsertRequest{ID: id, Data: content, Metadata: metadata})
	return err
}

// Query returns the topK most similar public documents, best first. A missing
// or empty result list is an empty slice.
func (s *RESTStore) Query(ctx context.Context, text string, topK int) ([]Result, error) {
	body, err := s.post(ctx, "/query-data", restQueryRequest{
		Data:            text,
		TopK:            topK,
		IncludeMetadata: true,
		IncludeData:     true,
	})
	if err != nil {
		return nil, err
	}

	var parsed restQueryResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errors.Wrap(err, errors.InvalidResponse, "failed to decode query response")
	}
	if parsed.Result == nil {
		return []Result{}, nil
	}
	return parsed.Result, nil
}

func (s *RESTStore) post(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "failed to encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ServiceUnavailable, "vector index request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ServiceUnavailable, "failed to read vector index response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.WithFields(
			errors.New(errors.ServiceUnavailable, fmt.Sprintf("vector index returned status %d", resp.StatusCode)),
			errors.Fields{"path": path, "body": string(body)},
		)
	}
	return body, nil
}
