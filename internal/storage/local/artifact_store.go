// Package local implements a local filesystem artifact store.
package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Config captures the parameters for the local filesystem artifact store.
type Config struct {
	// BaseDir is the root directory; each entity namespace is a
	// subdirectory holding that entity's artifacts.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// ArtifactStore persists artifacts under per-entity directories. A given
// namespace is only ever written by its own entity's worker, so no file-level
// locking is needed.
type ArtifactStore struct {
	baseDir string
}

// New creates a filesystem-backed artifact store rooted at cfg.BaseDir,
// creating it when absent and verifying it is writable.
func New(cfg Config) (*ArtifactStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	info, err := os.Stat(cfg.BaseDir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat base directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	probe := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(probe, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		return nil, fmt.Errorf("clean up probe file: %w", err)
	}
	return &ArtifactStore{baseDir: cfg.BaseDir}, nil
}

// List returns the artifact names in a namespace. A namespace that does not
// exist yet yields an empty list.
func (s *ArtifactStore) List(_ context.Context, namespace string) ([]string, error) {
	dir, err := s.resolve(namespace, "")
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read namespace %s: %w", namespace, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

// Open opens one artifact for reading.
func (s *ArtifactStore) Open(_ context.Context, namespace, name string) (io.ReadCloser, error) {
	path, err := s.resolve(namespace, name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open artifact %s/%s: %w", namespace, name, err)
	}
	return f, nil
}

// Put writes an artifact, creating the namespace directory on first use, and
// returns a file:// URI. An existing artifact of the same name is replaced.
func (s *ArtifactStore) Put(_ context.Context, namespace, name, _ string, data io.Reader) (string, error) {
	path, err := s.resolve(namespace, name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", fmt.Errorf("create namespace dir: %w", err)
	}
	payload, err := io.ReadAll(data)
	if err != nil {
		return "", fmt.Errorf("read artifact data: %w", err)
	}
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		return "", fmt.Errorf("write artifact %s/%s: %w", namespace, name, err)
	}
	return fmt.Sprintf("file://%s", path), nil
}

// resolve joins and validates a path, rejecting traversal out of baseDir.
func (s *ArtifactStore) resolve(namespace, name string) (string, error) {
	if strings.TrimSpace(namespace) == "" {
		return "", fmt.Errorf("namespace is required")
	}
	full := filepath.Join(s.baseDir, namespace, name)
	cleanBase := filepath.Clean(s.baseDir)
	if !strings.HasPrefix(filepath.Clean(full), cleanBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	return full, nil
}
