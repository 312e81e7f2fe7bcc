package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// FSStore reads documents from a root directory. The identity is a relative
// path beneath the root; anything that would escape the root is rejected.
// It implements the engine's DocumentSource, nothing more — the filesystem
// backend carries no audit trail.
type FSStore struct {
	root   string
	logger *slog.Logger
}

// NewFSStore creates a filesystem-backed document source.
func NewFSStore(root string, logger *slog.Logger) (*FSStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving document root %q: %w", root, err)
	}
	return &FSStore{root: abs, logger: logger}, nil
}

// Read returns the content of the document at <root>/<identity>.
func (s *FSStore) Read(_ context.Context, identity string) (string, error) {
	if identity == "" {
		return "", fmt.Errorf("%w: empty identity", ErrNotFound)
	}
	// Identities are relative paths; absolute paths and parent traversal
	// would escape the root.
	if filepath.IsAbs(identity) || !filepath.IsLocal(identity) {
		return "", fmt.Errorf("identity %q escapes document root", identity)
	}

	path := filepath.Join(s.root, identity)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, identity)
		}
		return "", fmt.Errorf("reading document %s: %w", identity, err)
	}
	return string(data), nil
}

// Root returns the absolute document root directory.
func (s *FSStore) Root() string { return s.root }
