package library

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Files reads and writes deck documents.
type Files interface {
	ReadFile(path string) (string, error)
	WriteFile(path, content string) error
	// Markdown lists the markdown documents under root in lexical order.
	Markdown(root string) ([]string, error)
}

func isMarkdown(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".md")
}

// OSFiles is Files over the local filesystem.
type OSFiles struct{}

func (OSFiles) ReadFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// WriteFile replaces the document, keeping its permissions.
func (OSFiles) WriteFile(path, content string) error {
	mode := fs.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	return os.WriteFile(path, []byte(content), mode)
}

func (OSFiles) Markdown(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && d.Name() == ".git" {
			return filepath.SkipDir
		}
		if !d.IsDir() && isMarkdown(d.Name()) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	return paths, nil
}

// MemFiles is an in-memory Files for tests and fixtures.
type MemFiles struct {
	mu    sync.RWMutex
	files map[string]string
}

func NewMemFiles(files map[string]string) *MemFiles {
	m := &MemFiles{files: make(map[string]string, len(files))}
	for k, v := range files {
		m.files[k] = v
	}
	return m
}

func (m *MemFiles) ReadFile(path string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.files[path]
	if !ok {
		return "", fmt.Errorf("%s: %w", path, fs.ErrNotExist)
	}
	return s, nil
}

func (m *MemFiles) WriteFile(path, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = content
	return nil
}

func (m *MemFiles) Remove(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
}

func (m *MemFiles) Markdown(root string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	prefix := strings.TrimSuffix(root, "/") + "/"
	var paths []string
	for p := range m.files {
		if strings.HasPrefix(p, prefix) && isMarkdown(p) {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths, nil
}
