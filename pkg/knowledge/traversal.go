package knowledge

import (
	"context"
	"path"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cortex-mentor/cortex/pkg/errors"
	"github.com/cortex-mentor/cortex/pkg/logging"
	"github.com/cortex-mentor/cortex/pkg/pipeline"
)

// BrokenLinksKey is the pipeline context key under which traversal records
// wikilink targets that could not be read.
const BrokenLinksKey = "broken_links"

var wikilinkRe = regexp.MustCompile(`\[\[(.*?)\]\]`)

// Traverser walks the knowledge graph from a set of entry points, following
// wikilinks and merging visited bodies while preventing cycles.
type Traverser struct {
	store Store
}

func NewTraverser(store Store) *Traverser {
	return &Traverser{store: store}
}

// TraverseAll traverses every entry point with one shared visited set, so
// overlapping entry points never duplicate content. Entry paths are relative
// to the knowledge graph root.
func (t *Traverser) TraverseAll(ctx context.Context, entryPoints []string, pctx *pipeline.Context) string {
	visited := make(map[string]bool)
	parts := make([]string, 0, len(entryPoints))

	for _, entry := range entryPoints {
		if body := t.traverse(ctx, entry, visited, pctx); body != "" {
			parts = append(parts, body)
		}
	}

	return strings.Join(parts, "\n")
}

// traverse performs an iterative depth-first walk from entry. The explicit
// stack keeps deep or cyclic graphs within bounded call depth; the visited
// set is marked before children are expanded, so a document reachable from
// two paths is emitted once and mutual cycles terminate.
func (t *Traverser) traverse(ctx context.Context, entry string, visited map[string]bool, pctx *pipeline.Context) string {
	logger := logging.GetLogger()

	stack := []string{normalize(entry)}
	var parts []string

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if visited[current] {
			continue
		}
		visited[current] = true

		content, err := t.store.Read(current)
		if err != nil {
			if errors.Code(err) == errors.ResourceNotFound {
				// A broken link degrades gracefully: record it and move on.
				logger.Warn(ctx, "Document not found during graph traversal: %s", current)
				if pctx != nil {
					pctx.AppendString(BrokenLinksKey, current)
				}
				continue
			}
			logger.Error(ctx, "Failed to read %s during graph traversal: %v", current, err)
			continue
		}

		_, body := SplitFrontMatter(content)
		parts = append(parts, body)

		// Wikilinks are scanned from the front-matter-stripped body only;
		// front matter is structured metadata, not prose.
		links := wikilinkRe.FindAllStringSubmatch(body, -1)

		// Push in reverse so children pop in link-appearance order.
		dir := path.Dir(current)
		for i := len(links) - 1; i >= 0; i-- {
			target := strings.TrimSpace(links[i][1])
			if target == "" {
				continue
			}
			stack = append(stack, normalize(path.Join(dir, target)))
		}
	}

	return strings.Join(parts, "\n")
}

// SplitFrontMatter separates a leading ----delimited YAML block from the
// document body. Absent front matter yields the whole content as body;
// malformed YAML yields empty metadata with the remainder preserved as body.
func SplitFrontMatter(content string) (map[string]interface{}, string) {
	if !strings.HasPrefix(content, "---\n") {
		return map[string]interface{}{}, content
	}

	rest := strings.TrimPrefix(content, "---\n")
	idx := strings.Index(rest, "\n---")
	if idx < 0 {
		// Unterminated front matter; treat the whole document as body.
		return map[string]interface{}{}, content
	}

	block := rest[:idx]
	body := rest[idx+len("\n---"):]
	body = strings.TrimPrefix(body, "\n")
	body = strings.TrimPrefix(body, "\n")

	meta := make(map[string]interface{})
	if err := yaml.Unmarshal([]byte(block), &meta); err != nil {
		return map[string]interface{}{}, body
	}
	if meta == nil {
		meta = map[string]interface{}{}
	}
	return meta, body
}
