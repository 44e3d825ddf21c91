// Package htmlutil holds the goquery helpers shared by the site adapters:
// whitespace cleanup, line-preserving text extraction, and page diagnostics.
package htmlutil

import (
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// CleanText collapses whitespace (including non-breaking spaces) to single spaces.
func CleanText(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.Join(strings.Fields(s), " ")
}

// Parse builds a goquery document from an HTML string.
func Parse(src string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(src))
}

// Title returns the cleaned <title> text.
func Title(doc *goquery.Document) string {
	return CleanText(doc.Find("title").First().Text())
}

// blockElements end a line when text is flattened.
var blockElements = map[string]bool{
	"br": true, "p": true, "div": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// Lines flattens the selection to text, starting a new line at <br> and
// block elements, and returns the non-empty cleaned lines. Inline wrappers
// such as <span> do not break lines.
func Lines(sel *goquery.Selection) []string {
	var sb strings.Builder
	for _, n := range sel.Nodes {
		writeLines(n, &sb)
		sb.WriteByte('\n')
	}

	raw := strings.Split(sb.String(), "\n")
	out := make([]string, 0, len(raw))
	for _, l := range raw {
		if l = CleanText(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func writeLines(n *html.Node, sb *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)
		return
	case html.ElementNode:
		if n.Data == "script" || n.Data == "style" {
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeLines(c, sb)
	}
	if n.Type == html.ElementNode && blockElements[n.Data] {
		sb.WriteByte('\n')
	}
}

// Words returns the selection's text with every text node separated by a
// space, so adjacent inline wrappers ("<span>711 W</span><span>NORWOOD</span>")
// do not run together.
func Words(sel *goquery.Selection) string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			parts = append(parts, n.Data)
			return
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return CleanText(strings.Join(parts, " "))
}

// ContainsAny reports whether the visible body text contains any of the
// phrases, case-insensitively.
func ContainsAny(doc *goquery.Document, phrases ...string) bool {
	body := strings.ToLower(CleanText(doc.Find("body").Text()))
	for _, p := range phrases {
		if strings.Contains(body, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// SampleClasses returns up to limit distinct class names used by elements
// matching selector, sorted. It is used to describe unfamiliar markup in
// failure diagnostics.
func SampleClasses(doc *goquery.Document, selector string, limit int) []string {
	seen := make(map[string]bool)
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		class, _ := s.Attr("class")
		for _, c := range strings.Fields(class) {
			seen[c] = true
		}
	})

	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Anchor is a link with its visible text.
type Anchor struct {
	Name string
	Href string
}

// Anchors returns every a[href] inside sel with cleaned link text.
func Anchors(sel *goquery.Selection) []Anchor {
	var out []Anchor
	sel.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		out = append(out, Anchor{Name: CleanText(a.Text()), Href: strings.TrimSpace(href)})
	})
	return out
}

// Resolve makes href absolute against base. It returns href unchanged when
// either fails to parse.
func Resolve(base, href string) string {
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	h, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(h).String()
}
