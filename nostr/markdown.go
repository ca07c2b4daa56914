package nostr

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var articleMarkdown = goldmark.New()

// RenderArticleHTML renders long-form article content (markdown per
// NIP-23) to HTML.
func RenderArticleHTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := articleMarkdown.Convert([]byte(markdown), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// MarkdownPlainText strips markdown structure from article content,
// keeping only the text. Block boundaries become newlines.
func MarkdownPlainText(markdown string) string {
	src := []byte(markdown)
	doc := articleMarkdown.Parser().Parse(text.NewReader(src))

	var buf bytes.Buffer
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := n.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				buf.WriteByte('\n')
			}
		case *ast.Paragraph, *ast.Heading, *ast.ListItem, *ast.Blockquote:
			if buf.Len() > 0 {
				buf.WriteByte('\n')
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(buf.String())
}
