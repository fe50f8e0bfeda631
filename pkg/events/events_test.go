package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortex-mentor/cortex/pkg/errors"
)

func TestParseGitCommit(t *testing.T) {
	raw := []byte(`{
		"event_type": "git_commit",
		"repo_name": "cortex",
		"branch_name": "main",
		"commit_hash": "abc1234567890def",
		"message": "fix bug",
		"author_name": "dev",
		"stats": {"files": 2, "insertions": 10, "deletions": 3},
		"timestamp": "2025-06-01T12:00:00Z"
	}`)

	event, err := Parse(raw)
	require.NoError(t, err)

	commit, ok := event.(*CommitEvent)
	require.True(t, ok)
	assert.Equal(t, KindGitCommit, commit.Kind())
	assert.Equal(t, "cortex", commit.RepoName)
	assert.Equal(t, "abc1234567890def", commit.CommitHash)
	assert.Equal(t, 10, commit.Stats["insertions"])
	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), commit.OccurredAt())
}

func TestParseFileChange(t *testing.T) {
	raw := []byte(`{
		"event_type": "file_change",
		"file_path": "pkg/pipeline/pipeline.go",
		"change_type": "modified",
		"content": "package pipeline",
		"timestamp": "2025-06-01T12:00:00Z"
	}`)

	event, err := Parse(raw)
	require.NoError(t, err)

	change, ok := event.(*FileChangeEvent)
	require.True(t, ok)
	assert.Equal(t, KindFileChange, change.Kind())
	assert.Equal(t, ChangeModified, change.ChangeType)
}

func TestParseRejectsUnknownTag(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"unknown tag", `{"event_type": "deploy", "foo": 1}`},
		{"missing tag", `{"foo": 1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw))
			require.Error(t, err)
			assert.Equal(t, errors.InvalidInput, errors.Code(err))
		})
	}
}

func TestParseRejectsInvalidFields(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"commit without hash", `{"event_type": "git_commit", "repo_name": "r", "timestamp": "2025-06-01T12:00:00Z"}`},
		{"commit without repo", `{"event_type": "git_commit", "commit_hash": "abc", "timestamp": "2025-06-01T12:00:00Z"}`},
		{"file change without path", `{"event_type": "file_change", "change_type": "added", "timestamp": "2025-06-01T12:00:00Z"}`},
		{"file change bad kind", `{"event_type": "file_change", "file_path": "a.go", "change_type": "renamed", "timestamp": "2025-06-01T12:00:00Z"}`},
		{"not json", `{{{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw))
			require.Error(t, err)
			assert.Equal(t, errors.InvalidInput, errors.Code(err))
		})
	}
}

func TestParseMap(t *testing.T) {
	data := map[string]interface{}{
		"event_type":  "git_commit",
		"repo_name":   "cortex",
		"branch_name": "main",
		"commit_hash": "deadbeef0123",
		"timestamp":   "2025-06-01T12:00:00Z",
	}

	event, err := ParseMap(data)
	require.NoError(t, err)
	assert.Equal(t, KindGitCommit, event.Kind())
}
