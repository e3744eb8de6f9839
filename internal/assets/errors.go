package assets

import "errors"

var (
	// ErrNoEntryPoints indicates none of the entry point patterns matched a file
	ErrNoEntryPoints = errors.New("no entry points found")
	// ErrBuildFailed indicates esbuild reported errors
	ErrBuildFailed = errors.New("esbuild failed with errors")
	// ErrNotBuilt indicates metadata was requested before a successful build
	ErrNotBuilt = errors.New("assets not built yet, call Build() first")
	// ErrEntryPointNotFound indicates an entry point is missing from the build metadata
	ErrEntryPointNotFound = errors.New("entrypoint not found in metadata")
	// ErrInvalidTarget indicates an unsupported esbuild target
	ErrInvalidTarget = errors.New("invalid build target")
	// ErrUnsafeOutputDir indicates the output directory would overlap the project sources
	ErrUnsafeOutputDir = errors.New("unsafe output directory")
)
