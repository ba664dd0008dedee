// Package extract turns uploaded file bytes into plain text.
package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"docindex/internal/domain"
	"docindex/internal/port"
)

var _ port.Extractor = (*Registry)(nil)

// Registry dispatches on the lowercased file extension and falls back to
// plain text for anything unregistered.
type Registry struct {
	byExt    map[string]port.Extractor
	rejected map[string]struct{}
	fallback port.Extractor
}

// NewRegistry returns a registry with every built-in format.
func NewRegistry() *Registry {
	r := &Registry{
		byExt:    make(map[string]port.Extractor),
		rejected: make(map[string]struct{}),
		fallback: PlainText{},
	}

	r.Register(HTML{}, ".html", ".htm", ".xhtml")
	r.Register(Markdown{}, ".md", ".markdown")
	r.Register(DOCX{}, ".docx")
	r.Register(NewPDF(), ".pdf")
	r.Reject(".doc", ".zip", ".png", ".jpg", ".jpeg", ".gif")
	return r
}

// Register binds an extractor to extensions, replacing earlier bindings.
func (r *Registry) Register(e port.Extractor, exts ...string) {
	for _, ext := range exts {
		ext = strings.ToLower(ext)
		r.byExt[ext] = e
		delete(r.rejected, ext)
	}
}

// Reject marks extensions whose contents cannot be read as text.
func (r *Registry) Reject(exts ...string) {
	for _, ext := range exts {
		r.rejected[strings.ToLower(ext)] = struct{}{}
	}
}

// Extract returns the text of data. Errors wrap domain.ErrExtraction.
func (r *Registry) Extract(ctx context.Context, data []byte, filename string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := r.rejected[ext]; ok {
		return "", fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, filename)
	}

	e, ok := r.byExt[ext]
	if !ok {
		e = r.fallback
	}
	return e.Extract(ctx, data, filename)
}
