package contact

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antzucaro/matchr"

	"github.com/nao1215/leadscan/internal/htmlutil"
	"github.com/nao1215/leadscan/internal/namematch"
)

// FallbackConfidence is assigned when no candidate's name matched and the
// first result is taken on address proximity alone.
const FallbackConfidence = 0.5

// Candidate is one person card on the search results page.
type Candidate struct {
	Name string
	Href string
}

// Selection is the chosen candidate and how it was chosen.
type Selection struct {
	Candidate  Candidate
	Confidence float64
	Fallback   bool
}

// parseCandidates reads person cards in document order. Cards without a
// link cannot be followed and are dropped.
func parseCandidates(doc *goquery.Document, sel Selectors) []Candidate {
	var out []Candidate
	doc.Find(sel.Cards).Each(func(_ int, card *goquery.Selection) {
		name := htmlutil.CleanText(card.Find(sel.CardName).First().Text())
		if name == "" {
			if lines := htmlutil.Lines(card); len(lines) > 0 {
				name = lines[0]
			}
		}

		link := card.Find(sel.CardLink).First()
		if link.Length() == 0 {
			link = card.Find("a[href]").First()
		}
		if link.Length() == 0 && goquery.NodeName(card) == "a" {
			link = card
		}
		href, _ := link.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return
		}
		out = append(out, Candidate{Name: name, Href: href})
	})
	return out
}

// Select picks the candidate whose name best matches ownerName. Equal
// scores are broken by Jaro-Winkler similarity, then by document order.
// When nothing scores above zero and allowFallback is set, the first
// candidate is returned at FallbackConfidence. ok is false when there is
// nothing to select.
func Select(ownerName string, candidates []Candidate, allowFallback bool) (Selection, bool) {
	if len(candidates) == 0 {
		return Selection{}, false
	}

	owner := strings.Join(namematch.Tokens(ownerName), " ")
	best := -1
	var bestScore, bestSim float64
	for i, c := range candidates {
		score := namematch.Score(ownerName, c.Name)
		if score <= 0 {
			continue
		}
		sim := matchr.JaroWinkler(owner, strings.Join(namematch.Tokens(c.Name), " "), false)
		if best < 0 || score > bestScore || (score == bestScore && sim > bestSim) {
			best, bestScore, bestSim = i, score, sim
		}
	}

	if best >= 0 {
		return Selection{Candidate: candidates[best], Confidence: bestScore}, true
	}
	if !allowFallback {
		return Selection{}, false
	}
	return Selection{Candidate: candidates[0], Confidence: FallbackConfidence, Fallback: true}, true
}
