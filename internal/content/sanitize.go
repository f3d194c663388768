// Package content normalizes scraped text and rewrites hyperlinks in drafts
// before they are published.
package content

import (
	"regexp"
	"strings"
)

var (
	markdownImageExpr = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	htmlImageExpr     = regexp.MustCompile(`(?is)<(img|picture|figure|svg)\b[^>]*>(.*?</(picture|figure|svg)>)?`)
	markdownLinkExpr  = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	rawURLExpr        = regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s<>()\[\]]+`)
	spaceRunExpr      = regexp.MustCompile(`[ \t]{2,}`)
	blankRunExpr      = regexp.MustCompile(`\n{3,}`)
)

// Sanitize removes embedded images and raw URLs from scraped text. Markdown
// links collapse to their anchor text. The result is the only text that
// classification and enrichment stages see.
func Sanitize(text string) string {
	if text == "" {
		return ""
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = markdownImageExpr.ReplaceAllString(text, "")
	text = htmlImageExpr.ReplaceAllString(text, "")
	text = markdownLinkExpr.ReplaceAllString(text, "$1")
	text = rawURLExpr.ReplaceAllString(text, "")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRunExpr.ReplaceAllString(line, " "))
	}
	text = strings.Join(lines, "\n")
	text = blankRunExpr.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}
