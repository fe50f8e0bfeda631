package knowledge

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cortex-mentor/cortex/pkg/errors"
	"github.com/cortex-mentor/cortex/pkg/events"
	"github.com/cortex-mentor/cortex/pkg/insights"
)

const (
	// InsightsDir holds one leaf node per insight.
	InsightsDir = "insights"

	// RepositoriesDir holds one index node per repository.
	RepositoriesDir = "repositories"

	hashPrefixLen = 12
)

// GraphWriter maintains the Zettelkasten-style note graph: one atomic node
// per insight, linked from a per-repository index node.
type GraphWriter struct {
	store Store
}

func NewGraphWriter(store Store) *GraphWriter {
	return &GraphWriter{store: store}
}

// insightFrontMatter is the YAML header of an insight node.
type insightFrontMatter struct {
	InsightID       string   `yaml:"insight_id"`
	SourceEventType string   `yaml:"source_event_type"`
	Timestamp       string   `yaml:"timestamp"`
	Patterns        []string `yaml:"patterns"`
	ParentNodes     []string `yaml:"parent_nodes"`
}

// InsightFilename derives the deterministic node filename for an insight.
// Re-processing the same commit yields the same name, making node creation an
// idempotent upsert.
func InsightFilename(insight *insights.Insight) string {
	slug := strings.ReplaceAll(string(insight.SourceEventType), "_", ".")

	var filename string
	switch event := insight.SourceEvent.(type) {
	case *events.CommitEvent:
		filename = fmt.Sprintf("%s.%s.md", slug, hashPrefix(event.CommitHash))
	case *events.FileChangeEvent:
		pathHash := md5.Sum([]byte(event.FilePath))
		filename = fmt.Sprintf("%s.%s.%s.md",
			slug,
			hex.EncodeToString(pathHash[:])[:hashPrefixLen],
			insight.Timestamp.Format("20060102T150405"),
		)
	default:
		filename = fmt.Sprintf("generic.%s.md", insight.ID)
	}

	return strings.ReplaceAll(filename, "/", "_")
}

func hashPrefix(hash string) string {
	if len(hash) > hashPrefixLen {
		return hash[:hashPrefixLen]
	}
	return hash
}

// ProcessInsight creates the insight node and updates any index node that
// should link to it. Returns the relative path of the insight node.
func (w *GraphWriter) ProcessInsight(insight *insights.Insight) (string, error) {
	insightRel, err := w.createInsightNode(insight)
	if err != nil {
		return "", err
	}

	if event, ok := insight.SourceEvent.(*events.CommitEvent); ok && event.RepoName != "" {
		indexRel := path.Join(RepositoriesDir, event.RepoName+".md")
		if err := w.updateIndexNode(indexRel, insightRel); err != nil {
			return "", err
		}
	}

	return insightRel, nil
}

// createInsightNode renders the markdown node with YAML front matter.
func (w *GraphWriter) createInsightNode(insight *insights.Insight) (string, error) {
	rel := path.Join(InsightsDir, InsightFilename(insight))

	var parents []string
	if repo, ok := insight.Metadata["repo_name"].(string); ok && repo != "" {
		parents = []string{fmt.Sprintf("[[../%s/%s.md]]", RepositoriesDir, repo)}
	}

	front := insightFrontMatter{
		InsightID:       insight.ID,
		SourceEventType: string(insight.SourceEventType),
		Timestamp:       insight.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
		Patterns:        insight.Patterns,
		ParentNodes:     parents,
	}

	frontYAML, err := yaml.Marshal(front)
	if err != nil {
		return "", errors.Wrap(err, errors.InvalidResponse, "failed to render insight front matter")
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(frontYAML)
	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "# Insight: %s\n", insight.Summary)

	if err := w.store.Write(rel, b.String()); err != nil {
		return "", err
	}
	return rel, nil
}

// updateIndexNode appends a wikilink line to an index node, creating the node
// with a header on first write. Duplicate link lines are skipped so that
// re-processing an insight does not grow the index.
func (w *GraphWriter) updateIndexNode(indexRel, targetRel string) error {
	// Link target relative to the index node's own directory.
	linkTarget := path.Join("..", targetRel)
	linkLine := fmt.Sprintf("- [[%s]]\n", linkTarget)

	if !w.store.Exists(indexRel) {
		stem := strings.TrimSuffix(path.Base(indexRel), ".md")
		header := fmt.Sprintf("# Index: %s\n\n## Related Insights\n\n%s", stem, linkLine)
		return w.store.Write(indexRel, header)
	}

	existing, err := w.store.Read(indexRel)
	if err != nil {
		return err
	}
	if strings.Contains(existing, linkLine) {
		return nil
	}
	return w.store.Append(indexRel, linkLine)
}
