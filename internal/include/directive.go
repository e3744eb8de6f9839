package include

import (
	"path/filepath"
	"regexp"
)

// rootMarker before the src path switches resolution to the root directory.
const rootMarker = "./"

// includePattern matches <include src="PATH"/> and <include src="PATH"></include>.
// The optional first group is the root marker, the second the path itself.
var includePattern = regexp.MustCompile(`(?i)<include\s+src="(\./)?([^"]+)"\s*/?>(?:</include>)?`)

// Directive is a single inclusion tag found in a document.
type Directive struct {
	// Raw is the matched tag text
	Raw string
	// RootRelative is set when src carried the ./ marker
	RootRelative bool
	// Src is the target path with the marker stripped
	Src string

	start, end int
}

// Parse returns every directive in content in the order they appear.
func Parse(content string) []Directive {
	matches := includePattern.FindAllStringSubmatchIndex(content, -1)
	if len(matches) == 0 {
		return nil
	}

	directives := make([]Directive, 0, len(matches))
	for _, m := range matches {
		directives = append(directives, Directive{
			Raw:          content[m[0]:m[1]],
			RootRelative: m[2] >= 0 && content[m[2]:m[3]] == rootMarker,
			Src:          content[m[4]:m[5]],
			start:        m[0],
			end:          m[1],
		})
	}
	return directives
}

// Resolve returns the absolute path a directive refers to. Root-relative directives join
// against rootDir, everything else against workDir. An absolute src is returned cleaned.
func Resolve(d Directive, workDir, rootDir string) string {
	if filepath.IsAbs(d.Src) {
		return filepath.Clean(d.Src)
	}

	base := workDir
	if d.RootRelative {
		base = rootDir
	}
	return filepath.Join(base, filepath.FromSlash(d.Src))
}
