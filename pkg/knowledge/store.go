// Package knowledge maintains the on-disk markdown knowledge graph: insight
// leaf nodes, repository index nodes, and the cycle-safe traversal that walks
// their wikilinks.
package knowledge

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cortex-mentor/cortex/pkg/errors"
)

// Store abstracts document access for the graph writer and the traversal
// engine. Paths are relative to the knowledge graph root, using forward
// slashes.
type Store interface {
	// Read returns the document at relPath; ResourceNotFound if absent.
	Read(relPath string) (string, error)

	// Write creates or replaces the document at relPath.
	Write(relPath, content string) error

	// Append appends to the document at relPath, creating it if absent.
	Append(relPath, content string) error

	// Exists reports whether a document is present at relPath.
	Exists(relPath string) bool
}

// FSStore is the filesystem-backed store rooted at the knowledge graph
// directory.
type FSStore struct {
	root string
}

// NewFSStore creates a store rooted at root, ensuring the directory layout
// (insights/, repositories/) exists.
func NewFSStore(root string) (*FSStore, error) {
	for _, dir := range []string{InsightsDir, RepositoriesDir} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, errors.Wrap(err, errors.ServiceUnavailable, "failed to create knowledge graph directory")
		}
	}
	return &FSStore{root: root}, nil
}

// Root returns the absolute root of the knowledge graph.
func (s *FSStore) Root() string { return s.root }

// Rel converts an absolute document path to a store-relative one.
func (s *FSStore) Rel(absPath string) (string, error) {
	rel, err := filepath.Rel(s.root, absPath)
	if err != nil {
		return "", errors.Wrap(err, errors.InvalidInput, "path outside knowledge graph root")
	}
	return filepath.ToSlash(rel), nil
}

func (s *FSStore) abs(relPath string) string {
	return filepath.Join(s.root, filepath.FromSlash(relPath))
}

func (s *FSStore) Read(relPath string) (string, error) {
	data, err := os.ReadFile(s.abs(relPath))
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.WithFields(
				errors.New(errors.ResourceNotFound, "document not found"),
				errors.Fields{"path": relPath},
			)
		}
		return "", errors.Wrap(err, errors.ServiceUnavailable, "failed to read document")
	}
	return string(data), nil
}

func (s *FSStore) Write(relPath, content string) error {
	abs := s.abs(relPath)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return errors.Wrap(err, errors.ServiceUnavailable, "failed to create document directory")
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return errors.Wrap(err, errors.ServiceUnavailable, "failed to write document")
	}
	return nil
}

func (s *FSStore) Append(relPath, content string) error {
	abs := s.abs(relPath)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return errors.Wrap(err, errors.ServiceUnavailable, "failed to create document directory")
	}
	f, err := os.OpenFile(abs, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrap(err, errors.ServiceUnavailable, "failed to open document for append")
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		return errors.Wrap(err, errors.ServiceUnavailable, "failed to append to document")
	}
	return nil
}

func (s *FSStore) Exists(relPath string) bool {
	_, err := os.Stat(s.abs(relPath))
	return err == nil
}

// MemStore is an in-memory store used in tests.
type MemStore struct {
	docs map[string]string
}

func NewMemStore() *MemStore {
	return &MemStore{docs: make(map[string]string)}
}

func (s *MemStore) Read(relPath string) (string, error) {
	content, ok := s.docs[relPath]
	if !ok {
		return "", errors.WithFields(
			errors.New(errors.ResourceNotFound, "document not found"),
			errors.Fields{"path": relPath},
		)
	}
	return content, nil
}

func (s *MemStore) Write(relPath, content string) error {
	s.docs[relPath] = content
	return nil
}

func (s *MemStore) Append(relPath, content string) error {
	s.docs[relPath] += content
	return nil
}

func (s *MemStore) Exists(relPath string) bool {
	_, ok := s.docs[relPath]
	return ok
}

// Paths returns the stored document paths, for assertions.
func (s *MemStore) Paths() []string {
	paths := make([]string, 0, len(s.docs))
	for p := range s.docs {
		paths = append(paths, p)
	}
	return paths
}

// normalize cleans a slash path; used when resolving wikilink targets.
func normalize(p string) string {
	return strings.TrimPrefix(filepath.ToSlash(filepath.Clean(filepath.FromSlash(p))), "./")
}
