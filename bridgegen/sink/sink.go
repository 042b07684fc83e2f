// Package sink provides output destinations for generated code.
package sink

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// OutputSink is where the generator writes files. Paths are slash-separated
// and relative to the sink. Implementations must allow concurrent writes.
type OutputSink interface {
	WriteFile(ctx context.Context, path string, content []byte) error
}

// Store is an OutputSink that can also inspect and prune what it holds. The
// generator needs a Store to skip unchanged output and delete stale files.
type Store interface {
	OutputSink

	// List returns the relative paths of the files directly under the root
	// with the given extension, sorted.
	List(ctx context.Context, ext string) ([]string, error)

	// Remove deletes path. Removing a missing file is not an error.
	Remove(ctx context.Context, path string) error

	// ReadHead returns the first line of path without its line terminator.
	// It returns fs.ErrNotExist (wrapped) when the file does not exist.
	ReadHead(ctx context.Context, path string) (string, error)
}

var (
	_ Store = (*FilesystemSink)(nil)
	_ Store = (*MemorySink)(nil)
)

// FilesystemSink stores files under a directory.
type FilesystemSink struct {
	Root string

	// Mode applies to written files; zero means 0644.
	Mode os.FileMode
}

// NewFilesystemSink returns a sink rooted at root.
func NewFilesystemSink(root string) *FilesystemSink {
	return &FilesystemSink{Root: root, Mode: 0644}
}

// resolve validates path and returns its location under Root.
func (s *FilesystemSink) resolve(path string) (string, error) {
	if err := ValidatePath(path); err != nil {
		return "", fmt.Errorf("sink: %q: %w", path, err)
	}
	full := filepath.Join(s.Root, filepath.FromSlash(path))

	root, err := filepath.Abs(s.Root)
	if err != nil {
		return "", fmt.Errorf("sink: resolve root: %w", err)
	}
	abs, err := filepath.Abs(full)
	if err != nil {
		return "", fmt.Errorf("sink: resolve %q: %w", path, err)
	}
	if !strings.HasPrefix(abs, root+string(filepath.Separator)) {
		return "", fmt.Errorf("sink: %q escapes %s", path, s.Root)
	}
	return full, nil
}

// WriteFile replaces path with content, creating parent directories. Readers
// never observe a partially written file.
func (s *FilesystemSink) WriteFile(ctx context.Context, path string, content []byte) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fmt.Errorf("sink: create directory for %q: %w", path, err)
	}
	mode := s.Mode
	if mode == 0 {
		mode = 0644
	}

	tmp, err := writeTemp(filepath.Dir(full), content, mode)
	if err != nil {
		return fmt.Errorf("sink: write %q: %w", path, err)
	}
	if err := ctx.Err(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, full); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("sink: write %q: %w", path, err)
	}
	return nil
}

// writeTemp writes content to a new .bridge-*.tmp file in dir and returns its
// name. The file is removed again on failure.
func writeTemp(dir string, content []byte, mode os.FileMode) (name string, err error) {
	f, err := os.CreateTemp(dir, ".bridge-*.tmp")
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(f.Name())
		}
	}()
	if _, err := f.Write(content); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	if err := os.Chmod(f.Name(), mode); err != nil {
		return "", err
	}
	return f.Name(), nil
}

// List returns the regular files in Root with extension ext.
func (s *FilesystemSink) List(ctx context.Context, ext string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.Root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sink: list %s: %w", s.Root, err)
	}
	var out []string
	for _, e := range entries {
		if e.Type().IsRegular() && filepath.Ext(e.Name()) == ext {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// Remove deletes path within the root directory.
func (s *FilesystemSink) Remove(ctx context.Context, path string) error {
	fullPath, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("sink: remove %q: %w", path, err)
	}
	return nil
}

// ReadHead reads the first line of path.
func (s *FilesystemSink) ReadHead(ctx context.Context, path string) (string, error) {
	fullPath, err := s.resolve(path)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f, err := os.Open(fullPath)
	if err != nil {
		return "", fmt.Errorf("sink: open %q: %w", path, err)
	}
	defer f.Close()

	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && line == "" {
		return "", nil
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// MemorySink keeps files in memory. It is safe for concurrent use.
type MemorySink struct {
	mu     sync.RWMutex
	files  map[string][]byte
	writes map[string]int
}

// NewMemorySink returns an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{files: make(map[string][]byte), writes: make(map[string]int)}
}

// WriteFile stores a copy of content under path.
func (s *MemorySink) WriteFile(ctx context.Context, path string, content []byte) error {
	if err := ValidatePath(path); err != nil {
		return fmt.Errorf("sink: %q: %w", path, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.files[path] = bytes.Clone(content)
	s.writes[path]++
	s.mu.Unlock()
	return nil
}

// List returns the stored top-level paths with extension ext.
func (s *MemorySink) List(ctx context.Context, ext string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for p := range s.files {
		if !strings.Contains(p, "/") && filepath.Ext(p) == ext {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Remove deletes path from the store.
func (s *MemorySink) Remove(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, path)
	return nil
}

// ReadHead returns the first line of a stored file.
func (s *MemorySink) ReadHead(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	content, ok := s.files[path]
	if !ok {
		return "", fmt.Errorf("sink: open %q: %w", path, fs.ErrNotExist)
	}
	line, _, _ := bytes.Cut(content, []byte("\n"))
	return strings.TrimRight(string(line), "\r"), nil
}

// Files returns a snapshot of every stored file.
func (s *MemorySink) Files() map[string][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]byte, len(s.files))
	for p, c := range s.files {
		out[p] = bytes.Clone(c)
	}
	return out
}

// Get returns a copy of path's content, nil when absent.
func (s *MemorySink) Get(path string) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return bytes.Clone(s.files[path])
}

// Writes returns how many times path has been written.
func (s *MemorySink) Writes(path string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes[path]
}

// Reset forgets every file and write count.
func (s *MemorySink) Reset() {
	s.mu.Lock()
	s.files = make(map[string][]byte)
	s.writes = make(map[string]int)
	s.mu.Unlock()
}

var (
	errEmptyPath     = errors.New("empty path")
	errAbsolutePath  = errors.New("absolute path")
	errPathTraversal = errors.New("path leaves the output directory")
)

// ValidatePath accepts only clean, relative, slash-separated paths that stay
// inside the sink.
func ValidatePath(path string) error {
	switch {
	case path == "":
		return errEmptyPath
	case filepath.IsAbs(path), strings.HasPrefix(path, "/"), hasDriveLetter(path):
		return errAbsolutePath
	case strings.Contains(path, ".."):
		return errPathTraversal
	}
	if clean := filepath.ToSlash(filepath.Clean(path)); clean != path {
		return fmt.Errorf("path is not clean, want %q", clean)
	}
	return nil
}

func hasDriveLetter(path string) bool {
	if len(path) < 2 || path[1] != ':' {
		return false
	}
	c := path[0] | 0x20
	return c >= 'a' && c <= 'z'
}
