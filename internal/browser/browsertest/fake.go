// Package browsertest provides an in-memory browser.Page backed by canned
// HTML for adapter tests.
package browsertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/nao1215/leadscan/internal/browser"
	"github.com/nao1215/leadscan/internal/htmlutil"
	"github.com/nao1215/leadscan/internal/model"
)

// Site is a set of pages keyed by absolute URL.
type Site struct {
	// Pages maps URL to HTML.
	Pages map[string]string

	// Clicks maps a selector to the URL loaded when it is clicked. Clicking
	// a selector not listed here follows the element's href, if any.
	Clicks map[string]string
}

// Launcher hands out FakePages over one Site and counts lifecycles.
type Launcher struct {
	Site *Site

	// LaunchErr, when set, is returned by every Launch.
	LaunchErr error

	mu       sync.Mutex
	launched int
	pages    []*Page
}

// NewLauncher creates a Launcher for site.
func NewLauncher(site *Site) *Launcher {
	return &Launcher{Site: site}
}

// Launch implements browser.Launcher.
func (l *Launcher) Launch(ctx context.Context) (browser.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.LaunchErr != nil {
		return nil, l.LaunchErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	p := &Page{site: l.Site, Filled: make(map[string]string)}
	l.launched++
	l.pages = append(l.pages, p)
	return p, nil
}

// Launched returns how many browsers were started.
func (l *Launcher) Launched() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launched
}

// AllClosed reports whether every launched page was closed.
func (l *Launcher) AllClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range l.pages {
		if !p.Closed() {
			return false
		}
	}
	return true
}

// LastPage returns the most recently launched page.
func (l *Launcher) LastPage() *Page {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.pages) == 0 {
		return nil
	}
	return l.pages[len(l.pages)-1]
}

// Page is a fake browser tab.
type Page struct {
	site *Site

	mu      sync.Mutex
	current string
	closed  bool

	// Visits lists every URL loaded, in order.
	Visits []string

	// Filled records the last value typed into each selector.
	Filled map[string]string

	// Clicked lists every clicked selector, in order.
	Clicked []string
}

func (p *Page) load(url string) error {
	if _, ok := p.site.Pages[url]; !ok {
		return fmt.Errorf("browsertest: no page for %s", url)
	}
	p.current = url
	p.Visits = append(p.Visits, url)
	return nil
}

// Navigate implements browser.Page.
func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.load(url)
}

// Title implements browser.Page.
func (p *Page) Title(_ context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	doc, err := htmlutil.Parse(p.site.Pages[p.current])
	if err != nil {
		return "", err
	}
	return htmlutil.Title(doc), nil
}

// HTML implements browser.Page.
func (p *Page) HTML(_ context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.site.Pages[p.current], nil
}

// URL implements browser.Page.
func (p *Page) URL(_ context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, nil
}

// Click implements browser.Page.
func (p *Page) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if target, ok := p.site.Clicks[selector]; ok {
		p.Clicked = append(p.Clicked, selector)
		return p.load(target)
	}

	doc, err := htmlutil.Parse(p.site.Pages[p.current])
	if err != nil {
		return err
	}
	el := doc.Find(selector).First()
	if el.Length() == 0 {
		return fmt.Errorf("%w: no element %q", model.ErrTimeout, selector)
	}
	p.Clicked = append(p.Clicked, selector)
	if href, ok := el.Attr("href"); ok {
		return p.load(htmlutil.Resolve(p.current, href))
	}
	return nil
}

// Fill implements browser.Page.
func (p *Page) Fill(ctx context.Context, selector, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	doc, err := htmlutil.Parse(p.site.Pages[p.current])
	if err != nil {
		return err
	}
	if doc.Find(selector).Length() == 0 {
		return fmt.Errorf("%w: no element %q", model.ErrTimeout, selector)
	}
	p.Filled[selector] = value
	return nil
}

// WaitVisible implements browser.Page. Elements present in the markup
// count as visible.
func (p *Page) WaitVisible(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	doc, err := htmlutil.Parse(p.site.Pages[p.current])
	if err != nil {
		return err
	}
	if doc.Find(selector).Length() == 0 {
		return fmt.Errorf("%w: %q never appeared", model.ErrTimeout, selector)
	}
	return nil
}

// Close implements browser.Page.
func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Closed reports whether Close was called.
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Value returns what was typed into selector.
func (p *Page) Value(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Filled[selector]
}
