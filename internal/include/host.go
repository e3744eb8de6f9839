package include

import (
	"path/filepath"

	"github.com/spf13/afero"
)

var _ Host = (*FileHost)(nil)

// FileHost is a Host backed by an afero filesystem. It records every registered dependency
// once, in the order first seen.
type FileHost struct {
	fs           afero.Fs
	resourcePath string
	rootDir      string
	deps         []string
	seen         map[string]struct{}
}

// NewFileHost creates a host for expanding the document at resourcePath. An empty rootDir
// defaults to the document's own directory.
func NewFileHost(fsys afero.Fs, resourcePath, rootDir string) *FileHost {
	resourcePath = filepath.Clean(resourcePath)
	if rootDir == "" {
		rootDir = filepath.Dir(resourcePath)
	}

	return &FileHost{
		fs:           fsys,
		resourcePath: resourcePath,
		rootDir:      filepath.Clean(rootDir),
		seen:         make(map[string]struct{}),
	}
}

func (h *FileHost) ResourcePath() string { return h.resourcePath }

func (h *FileHost) RootDir() string { return h.rootDir }

func (h *FileHost) AddDependency(path string) {
	if _, ok := h.seen[path]; ok {
		return
	}
	h.seen[path] = struct{}{}
	h.deps = append(h.deps, path)
}

func (h *FileHost) ReadFile(path string) ([]byte, error) {
	return afero.ReadFile(h.fs, path)
}

// Dependencies returns the files registered so far
func (h *FileHost) Dependencies() []string {
	return append([]string(nil), h.deps...)
}

// ExpandPath reads the document at resourcePath and expands it with r, returning the
// expanded text and every file it depends on.
func ExpandPath(r *Resolver, fsys afero.Fs, resourcePath, rootDir string) (string, []string, error) {
	host := NewFileHost(fsys, resourcePath, rootDir)

	data, err := host.ReadFile(host.ResourcePath())
	if err != nil {
		return "", nil, &ReadError{Path: host.ResourcePath(), Err: err}
	}

	out, err := r.Expand(string(data), host)
	if err != nil {
		return "", host.Dependencies(), err
	}
	return out, host.Dependencies(), nil
}
