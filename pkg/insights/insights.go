// Package insights defines the derived artifact produced by the comprehension
// pipeline: an LLM summary of a source event plus the text prepared for
// embedding. Insights are created once and never mutated.
package insights

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cortex-mentor/cortex/pkg/events"
)

// Insight is the structured summary of one ingested event.
type Insight struct {
	ID                  string                 `json:"insight_id"`
	SourceEventType     events.Kind            `json:"source_event_type"`
	Summary             string                 `json:"summary"`
	Patterns            []string               `json:"patterns"`
	Metadata            map[string]interface{} `json:"metadata"`
	ContentForEmbedding string                 `json:"content_for_embedding"`
	SourceEvent         events.Event           `json:"source_event"`
	Timestamp           time.Time              `json:"timestamp"`
}

// NewID derives an insight id for an event kind: a short prefix naming the
// variant plus a random 12-hex suffix.
func NewID(kind events.Kind) string {
	prefix := "generic"
	switch kind {
	case events.KindGitCommit:
		prefix = "commit"
	case events.KindFileChange:
		prefix = "code"
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%s_%s", prefix, suffix)
}

// New assembles an insight for the given event. The caller provides the
// LLM-produced summary and the variant-specific metadata and embedding text.
func New(event events.Event, summary, embedding string, metadata map[string]interface{}) *Insight {
	if metadata == nil {
		metadata = make(map[string]interface{})
	}
	return &Insight{
		ID:                  NewID(event.Kind()),
		SourceEventType:     event.Kind(),
		Summary:             summary,
		Patterns:            []string{},
		Metadata:            metadata,
		ContentForEmbedding: embedding,
		SourceEvent:         event,
		Timestamp:           time.Now().UTC(),
	}
}
