// Package events defines the developer-activity event union ingested by the
// comprehension pipeline. An event arrives as a JSON object tagged with
// event_type; parsing dispatches on that tag and rejects anything else.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cortex-mentor/cortex/pkg/errors"
)

// Kind identifies an event variant.
type Kind string

const (
	KindGitCommit  Kind = "git_commit"
	KindFileChange Kind = "file_change"
)

// ChangeType classifies a file change.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeDeleted  ChangeType = "deleted"
)

// Event is the closed union of source events. Implementations are immutable
// after construction at the ingestion boundary.
type Event interface {
	// Kind returns the discriminant tag of the variant.
	Kind() Kind

	// OccurredAt returns the UTC timestamp of the event.
	OccurredAt() time.Time
}

// CommitEvent describes a git commit observed in a repository.
type CommitEvent struct {
	EventType  Kind           `json:"event_type"`
	RepoName   string         `json:"repo_name"`
	BranchName string         `json:"branch_name"`
	Stats      map[string]int `json:"stats,omitempty"`
	CommitHash string         `json:"commit_hash"`
	Message    string         `json:"message,omitempty"`
	AuthorName string         `json:"author_name,omitempty"`
	AuthorMail string         `json:"author_email,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Diff       string         `json:"diff,omitempty"`
}

func (e *CommitEvent) Kind() Kind            { return KindGitCommit }
func (e *CommitEvent) OccurredAt() time.Time { return e.Timestamp }

// FileChangeEvent describes a single file being added, modified or deleted.
type FileChangeEvent struct {
	EventType  Kind       `json:"event_type"`
	FilePath   string     `json:"file_path"`
	Content    string     `json:"content,omitempty"`
	ChangeType ChangeType `json:"change_type"`
	Timestamp  time.Time  `json:"timestamp"`
}

func (e *FileChangeEvent) Kind() Kind            { return KindFileChange }
func (e *FileChangeEvent) OccurredAt() time.Time { return e.Timestamp }

// envelope peeks at the discriminant tag before full decoding.
type envelope struct {
	EventType Kind `json:"event_type"`
}

// Parse decodes a raw tagged event. Unknown or missing tags yield an
// InvalidInput error; this is the terminal, non-retryable input error of the
// comprehension pipeline.
func Parse(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "malformed event payload")
	}

	switch env.EventType {
	case KindGitCommit:
		var e CommitEvent
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, errors.Wrap(err, errors.InvalidInput, "malformed git_commit event")
		}
		if err := e.validate(); err != nil {
			return nil, err
		}
		return &e, nil

	case KindFileChange:
		var e FileChangeEvent
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, errors.Wrap(err, errors.InvalidInput, "malformed file_change event")
		}
		if err := e.validate(); err != nil {
			return nil, err
		}
		return &e, nil

	default:
		return nil, errors.WithFields(
			errors.New(errors.InvalidInput, fmt.Sprintf("unsupported event type: %q", env.EventType)),
			errors.Fields{"event_type": string(env.EventType)},
		)
	}
}

// ParseMap decodes an event that already lives as a generic map, as handed
// over by the task queue.
func ParseMap(data map[string]interface{}) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "event payload is not serializable")
	}
	return Parse(raw)
}

func (e *CommitEvent) validate() error {
	if e.RepoName == "" {
		return errors.New(errors.InvalidInput, "git_commit event missing repo_name")
	}
	if e.CommitHash == "" {
		return errors.New(errors.InvalidInput, "git_commit event missing commit_hash")
	}
	return nil
}

func (e *FileChangeEvent) validate() error {
	if e.FilePath == "" {
		return errors.New(errors.InvalidInput, "file_change event missing file_path")
	}
	switch e.ChangeType {
	case ChangeAdded, ChangeModified, ChangeDeleted:
		return nil
	default:
		return errors.WithFields(
			errors.New(errors.InvalidInput, fmt.Sprintf("unsupported change type: %q", e.ChangeType)),
			errors.Fields{"change_type": string(e.ChangeType)},
		)
	}
}
