package assets

import (
	"context"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/wolfeidau/sitebundle/internal/include"
	"github.com/wolfeidau/sitebundle/internal/telemetry"
)

var (
	headClosePattern = regexp.MustCompile(`(?i)</head\s*>`)
	bodyClosePattern = regexp.MustCompile(`(?i)</body\s*>`)
)

// RenderPage expands the page's layout template and writes it to the output directory with
// the built scripts and styles injected. It returns the written path.
func (p *Pipeline) RenderPage(ctx context.Context, page Page) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.metadata == nil {
		return "", ErrNotBuilt
	}

	entryPoints, err := p.entryPoints()
	if err != nil {
		return "", err
	}

	out, deps, err := p.renderPage(ctx, page, entryPoints, p.OutputDir())
	if len(deps) > 0 {
		set := newDependencySet()
		set.add(p.deps...)
		set.add(deps...)
		p.deps = set.list()
	}
	return out, err
}

// renderPage writes the page under outDir, which is the output directory or a staging
// directory that replaces it
func (p *Pipeline) renderPage(ctx context.Context, page Page, entryPoints []string, outDir string) (string, []string, error) {
	templatePath := p.abs(page.Template)

	content, deps, err := include.ExpandPath(p.resolver, p.fs, templatePath, p.abs(p.config.SourceDir))
	deps = append(deps, templatePath)
	if err != nil {
		return "", deps, fmt.Errorf("failed to render page %s: %w", page.Template, err)
	}
	telemetry.GetMetrics().IncludesExpandedTotal.Add(ctx, int64(len(deps)-1))

	chunks := page.Chunks
	if len(chunks) == 0 {
		chunks = entryPoints
	}

	var head, body []string
	for _, chunk := range chunks {
		scripts, entrypoint, err := p.loadScripts(chunk)
		if err != nil {
			return "", deps, fmt.Errorf("failed to render page %s: %w", page.Template, err)
		}

		info, _, _ := p.findOutput(chunk)
		if info.CSSBundle != "" {
			head = append(head, fmt.Sprintf(`<link href="%s" rel="stylesheet">`, html.EscapeString(p.publicURL(info.CSSBundle))))
		}

		for _, script := range scripts {
			if script == entrypoint {
				body = append(body, fmt.Sprintf(`<script type="module" src="%s"></script>`, html.EscapeString(script)))
				continue
			}
			head = append(head, fmt.Sprintf(`<link rel="modulepreload" href="%s">`, html.EscapeString(script)))
		}
	}

	if page.Favicon != "" {
		faviconPath := p.abs(page.Favicon)
		deps = append(deps, faviconPath)

		url, err := p.copyToOutput(faviconPath, outDir)
		if err != nil {
			return "", deps, fmt.Errorf("failed to copy favicon: %w", err)
		}
		head = append([]string{fmt.Sprintf(`<link rel="icon" href="%s">`, html.EscapeString(url))}, head...)
	}

	if page.Inject == InjectHead {
		head = append(head, body...)
		body = nil
	}

	content = injectBefore(content, headClosePattern, head, false)
	content = injectBefore(content, bodyClosePattern, body, true)

	filename := page.Filename
	if filename == "" {
		filename = filepath.Base(page.Template)
	}
	outPath := filepath.Join(outDir, filename)

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", deps, err
	}
	if err := os.WriteFile(outPath, []byte(content), 0o600); err != nil {
		return "", deps, err
	}

	telemetry.GetMetrics().PagesRenderedTotal.Add(ctx, 1)
	log.Debug().Str("template", page.Template).Str("file", outPath).Msg("Rendered page")

	return outPath, deps, nil
}

// copyToOutput copies a file into the root of outDir and returns its URL
func (p *Pipeline) copyToOutput(path, outDir string) (string, error) {
	data, err := afero.ReadFile(p.fs, path)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", err
	}

	name := filepath.Base(path)
	if err := os.WriteFile(filepath.Join(outDir, name), data, 0o600); err != nil {
		return "", err
	}
	return publicPrefix(p.config.PublicPath) + name, nil
}

// injectBefore inserts tags before the last match of closing in content. When the tag is
// missing the tags are appended, or prepended if atEnd is false.
func injectBefore(content string, closing *regexp.Regexp, tags []string, atEnd bool) string {
	if len(tags) == 0 {
		return content
	}

	block := strings.Join(tags, "")
	matches := closing.FindAllStringIndex(content, -1)
	if len(matches) == 0 {
		if atEnd {
			return content + block
		}
		return block + content
	}

	idx := matches[len(matches)-1][0]
	return content[:idx] + block + content[idx:]
}
