// Package normalize turns pasted prompt text into clean plain text or
// Markdown before it is sent for distillation.
package normalize

import (
	stdhtml "html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// verbatimSelectors are elements whose markup is kept as a code block
// instead of being converted or dropped.
var verbatimSelectors = "script, style, noscript, svg, iframe, template"

// markupShare is the fraction of a prompt that must be markup before it is
// treated as a pasted document.
const markupShare = 0.5

var (
	blankRuns      = regexp.MustCompile(`\n{3,}`)
	trailingSpaces = regexp.MustCompile(`[ \t]+\n`)
)

// Normalizer converts HTML prompts to Markdown. It is safe for concurrent use.
type Normalizer struct {
	conv *converter.Converter
}

// New creates a Normalizer with a compact Markdown converter.
func New() *Normalizer {
	return &Normalizer{
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(
					table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
				),
			),
		),
	}
}

// Prompt returns text with whitespace collapsed. A pasted HTML document
// (see IsDocument) is converted to Markdown first; tags quoted inside an
// ordinary prompt are left alone. On conversion failure the
// whitespace-collapsed input is returned.
func (n *Normalizer) Prompt(text string) string {
	if IsDocument(text) {
		if md, err := n.toMarkdown(text); err == nil && strings.TrimSpace(md) != "" {
			text = md
		}
	}
	return CollapseWhitespace(text)
}

func (n *Normalizer) toMarkdown(raw string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return "", err
	}
	// Nothing is removed: code-like elements survive as fenced blocks.
	doc.Find(verbatimSelectors).Each(func(_ int, s *goquery.Selection) {
		outer, err := goquery.OuterHtml(s)
		if err != nil {
			return
		}
		s.ReplaceWithHtml("<pre><code>" + stdhtml.EscapeString(outer) + "</code></pre>")
	})
	cleaned, err := doc.Html()
	if err != nil {
		return "", err
	}
	return n.conv.ConvertString(cleaned)
}

// IsDocument reports whether text is a pasted HTML document rather than a
// prompt that merely mentions tags: it starts with a doctype, <html> or
// <body>, or markup makes up at least half of it.
func IsDocument(text string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(text))
	for _, prefix := range []string{"<!doctype", "<html", "<body"} {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	if !LooksLikeHTML(text) {
		return false
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return false
	}
	total := utf8.RuneCountInString(strings.TrimSpace(text))
	visible := utf8.RuneCountInString(strings.TrimSpace(doc.Text()))
	return total > 0 && float64(total-visible)/float64(total) >= markupShare
}

// LooksLikeHTML reports whether text contains at least one well-formed
// element tag, as opposed to stray angle brackets in prose or code.
func LooksLikeHTML(text string) bool {
	if !strings.Contains(text, "<") {
		return false
	}
	z := html.NewTokenizer(strings.NewReader(text))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return false
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			if knownTag(string(name)) {
				return true
			}
		}
	}
}

var commonTags = map[string]bool{
	"html": true, "body": true, "div": true, "p": true, "span": true, "br": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "ul": true, "ol": true, "li": true,
	"table": true, "tr": true, "td": true, "th": true, "a": true, "b": true, "i": true,
	"strong": true, "em": true, "pre": true, "code": true, "blockquote": true, "section": true,
	"article": true, "script": true, "style": true, "img": true,
}

func knownTag(name string) bool { return commonTags[strings.ToLower(name)] }

// CollapseWhitespace normalizes line endings, strips trailing spaces and
// squeezes runs of blank lines down to one.
func CollapseWhitespace(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = trailingSpaces.ReplaceAllString(text, "\n")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
