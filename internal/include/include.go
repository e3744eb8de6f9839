// Package include expands nested <include src="..."> directives in HTML documents.
//
// Each directive is replaced by the contents of the file it names, after that file has been
// expanded itself, so partials may nest to any depth. Paths resolve against the directory of
// the file being expanded, or against the host's root directory when src starts with "./".
// Every file read is reported to the host as a build dependency.
package include

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"
)

// DefaultMaxDepth bounds include nesting when no other limit is configured
const DefaultMaxDepth = 64

// Host is the loader context the resolver runs inside.
type Host interface {
	// ResourcePath is the absolute path of the top-level document.
	ResourcePath() string
	// RootDir is the directory root-relative includes resolve against.
	RootDir() string
	// AddDependency registers a file the current output depends on.
	AddDependency(path string)
	// ReadFile returns the full contents of path.
	ReadFile(path string) ([]byte, error)
}

// Resolver expands include directives. The zero value is not usable, use NewResolver.
type Resolver struct {
	maxDepth       int
	restrictToRoot bool
}

// Option configures a Resolver
type Option func(*Resolver)

// WithMaxDepth limits how deep includes may nest.
func WithMaxDepth(n int) Option {
	return func(r *Resolver) {
		r.maxDepth = n
	}
}

// WithRestrictToRoot rejects includes that resolve outside the host's root directory.
func WithRestrictToRoot(restrict bool) Option {
	return func(r *Resolver) {
		r.restrictToRoot = restrict
	}
}

// NewResolver creates a resolver with the given options applied over the defaults
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Expand runs a default resolver over content.
func Expand(content string, host Host) (string, error) {
	return NewResolver().Expand(content, host)
}

// Expand replaces every directive in content, resolving relative paths against the
// directory of the host's resource.
func (r *Resolver) Expand(content string, host Host) (string, error) {
	return r.ExpandFile(content, host, "")
}

// ExpandFile expands content as if it were read from currentPath. An empty currentPath
// falls back to the host's resource path.
func (r *Resolver) ExpandFile(content string, host Host, currentPath string) (string, error) {
	if currentPath == "" {
		currentPath = host.ResourcePath()
	}

	chain := []string{}
	if currentPath != "" {
		chain = append(chain, filepath.Clean(currentPath))
	}

	return r.expand(content, host, currentPath, chain)
}

func (r *Resolver) expand(content string, host Host, currentPath string, chain []string) (string, error) {
	directives := Parse(content)
	if len(directives) == 0 {
		return content, nil
	}

	if r.maxDepth > 0 && len(chain) > r.maxDepth {
		return "", fmt.Errorf("%w: %d levels at %s", ErrMaxDepth, r.maxDepth, currentPath)
	}

	workDir := filepath.Dir(currentPath)
	rootDir := host.RootDir()

	var sb strings.Builder
	sb.Grow(len(content))

	last := 0
	for _, d := range directives {
		path := Resolve(d, workDir, rootDir)

		if r.restrictToRoot && !within(rootDir, path) {
			return "", fmt.Errorf("%w: %s (root %s)", ErrOutsideRoot, path, rootDir)
		}

		host.AddDependency(path)

		if slices.Contains(chain, path) {
			return "", cycleError(chain, path)
		}

		data, err := host.ReadFile(path)
		if err != nil {
			return "", &ReadError{Path: path, Includer: currentPath, Err: err}
		}

		log.Debug().Str("src", d.Src).Str("path", path).Str("includer", currentPath).Msg("Expanding include")

		expanded, err := r.expand(string(data), host, path, append(slices.Clip(chain), path))
		if err != nil {
			return "", err
		}

		sb.WriteString(content[last:d.start])
		sb.WriteString(expanded)
		last = d.end
	}
	sb.WriteString(content[last:])

	return sb.String(), nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
