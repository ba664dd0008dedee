package extract

import (
	"context"
	"regexp"
	"strings"
)

// Markdown removes formatting syntax. Fenced code is kept as text since
// documentation often explains itself through it.
type Markdown struct{}

var (
	codeFence    = regexp.MustCompile("(?m)^\\s*```.*$")
	inlineCode   = regexp.MustCompile("`([^`]+)`")
	mdImages     = regexp.MustCompile(`!\[([^\]]*)\]\([^)]+\)`)
	mdLinks      = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	mdHeadings   = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	mdEmphasis   = regexp.MustCompile(`(\*\*|__|\*|~~)`)
	mdBlockquote = regexp.MustCompile(`(?m)^>\s?`)
	mdRule       = regexp.MustCompile(`(?m)^\s*[-*_]{3,}\s*$`)
	mdBullets    = regexp.MustCompile(`(?m)^\s*[-*+]\s+`)
	mdNumbered   = regexp.MustCompile(`(?m)^\s*\d+\.\s+`)
)

func (Markdown) Extract(_ context.Context, data []byte, filename string) (string, error) {
	content, err := decodeText(data, filename)
	if err != nil {
		return "", err
	}
	return stripMarkdown(content), nil
}

func stripMarkdown(content string) string {
	content = codeFence.ReplaceAllString(content, "")
	content = inlineCode.ReplaceAllString(content, "$1")
	content = mdImages.ReplaceAllString(content, "$1")
	content = mdLinks.ReplaceAllString(content, "$1")
	content = mdHeadings.ReplaceAllString(content, "")
	content = mdRule.ReplaceAllString(content, "")
	content = mdBlockquote.ReplaceAllString(content, "")
	content = mdBullets.ReplaceAllString(content, "")
	content = mdNumbered.ReplaceAllString(content, "")
	content = mdEmphasis.ReplaceAllString(content, "")
	content = repeatedNewlines.ReplaceAllString(content, "\n\n")
	return strings.TrimSpace(content)
}
