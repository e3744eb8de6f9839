package include

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrIncludeCycle indicates a document includes itself, directly or through other partials
	ErrIncludeCycle = errors.New("include cycle detected")
	// ErrMaxDepth indicates includes are nested deeper than the resolver allows
	ErrMaxDepth = errors.New("include depth limit exceeded")
	// ErrOutsideRoot indicates an include resolved to a path outside the root directory
	ErrOutsideRoot = errors.New("include resolves outside root directory")
)

// ReadError is returned when an included file cannot be read. It carries the resolved path
// and the document that referenced it.
type ReadError struct {
	Path     string
	Includer string
	Err      error
}

func (e *ReadError) Error() string {
	if e.Includer == "" {
		return fmt.Sprintf("failed to read %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("failed to read include %s (from %s): %v", e.Path, e.Includer, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

func cycleError(chain []string, path string) error {
	return fmt.Errorf("%w: %s -> %s", ErrIncludeCycle, strings.Join(chain, " -> "), path)
}
