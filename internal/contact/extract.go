package contact

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/leadscan/internal/htmlutil"
)

// MaxValues caps how many phone numbers and emails are kept per person.
const MaxValues = 10

var (
	phonePattern = regexp.MustCompile(`\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}`)
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
)

// scopes returns the section matched by selector, when present, followed by
// the whole body. Extraction uses the first scope that yields anything.
func scopes(doc *goquery.Document, selector string) []*goquery.Selection {
	body := doc.Find("body")
	if selector != "" {
		if s := doc.Find(selector); s.Length() > 0 {
			return []*goquery.Selection{s, body}
		}
	}
	return []*goquery.Selection{body}
}

// extractPhones returns up to MaxValues distinct phone numbers formatted as
// "(210) 555-0100". Numbers are compared by digits.
func extractPhones(doc *goquery.Document, section string) []string {
	for _, root := range scopes(doc, section) {
		if out := phonesIn(root); len(out) > 0 {
			return out
		}
	}
	return []string{}
}

func phonesIn(root *goquery.Selection) []string {
	text := strings.Join(htmlutil.Lines(root), "\n")
	seen := make(map[string]bool)
	var out []string
	for _, m := range phonePattern.FindAllString(text, -1) {
		digits := onlyDigits(m)
		if len(digits) != 10 || seen[digits] {
			continue
		}
		seen[digits] = true
		out = append(out, fmt.Sprintf("(%s) %s-%s", digits[:3], digits[3:6], digits[6:]))
		if len(out) == MaxValues {
			break
		}
	}
	return out
}

func onlyDigits(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// extractEmails returns up to MaxValues distinct lowercase emails from
// mailto: links and from the visible text.
func extractEmails(doc *goquery.Document, section string) []string {
	for _, root := range scopes(doc, section) {
		if out := emailsIn(root); len(out) > 0 {
			return out
		}
	}
	return []string{}
}

func emailsIn(root *goquery.Selection) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(e string) bool {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" || seen[e] || !emailPattern.MatchString(e) {
			return len(out) < MaxValues
		}
		seen[e] = true
		out = append(out, e)
		return len(out) < MaxValues
	}

	more := true
	root.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if !strings.HasPrefix(strings.ToLower(href), "mailto:") {
			return true
		}
		addr := href[len("mailto:"):]
		if i := strings.IndexByte(addr, '?'); i >= 0 {
			addr = addr[:i]
		}
		if unescaped, err := url.PathUnescape(addr); err == nil {
			addr = unescaped
		}
		more = add(addr)
		return more
	})
	if !more {
		return out
	}

	for _, m := range emailPattern.FindAllString(strings.Join(htmlutil.Lines(root), "\n"), -1) {
		if !add(m) {
			break
		}
	}
	return out
}
