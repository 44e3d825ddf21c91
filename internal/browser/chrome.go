package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/nao1215/leadscan/internal/model"
)

// Default browser settings.
const (
	// DefaultNavigationTimeout bounds every page action.
	DefaultNavigationTimeout = 30 * time.Second

	// DefaultUserAgent is a current desktop Chrome string.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36"
)

// Options configures ChromeLauncher.
type Options struct {
	// Headless runs Chrome without a window.
	Headless bool

	// UserAgent overrides the browser's User-Agent header.
	UserAgent string

	// ExecPath is the Chrome binary. Empty lets chromedp search PATH.
	ExecPath string

	// ProxyServer is passed to --proxy-server when set (e.g. "socks5://127.0.0.1:9050").
	ProxyServer string

	// NavigationTimeout bounds every Page call.
	NavigationTimeout time.Duration
}

// DefaultOptions returns headless Chrome with the default timeout.
func DefaultOptions() Options {
	return Options{
		Headless:          true,
		UserAgent:         DefaultUserAgent,
		NavigationTimeout: DefaultNavigationTimeout,
	}
}

// ChromeLauncher launches a fresh Chrome process per call.
type ChromeLauncher struct {
	opts   Options
	logger *slog.Logger
}

// NewChromeLauncher creates a launcher. A nil logger uses slog.Default().
func NewChromeLauncher(opts Options, logger *slog.Logger) *ChromeLauncher {
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = DefaultNavigationTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChromeLauncher{opts: opts, logger: logger}
}

// Launch starts Chrome and opens its first tab. The browser lives until the
// returned page is closed or ctx is cancelled.
func (l *ChromeLauncher) Launch(ctx context.Context) (Page, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(l.opts.UserAgent),
		chromedp.WindowSize(1366, 900),
	)
	if l.opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(l.opts.ExecPath))
	}
	if l.opts.ProxyServer != "" {
		allocOpts = append(allocOpts, chromedp.ProxyServer(l.opts.ProxyServer))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			l.logger.Debug(fmt.Sprintf(format, args...), "component", "chromedp")
		}),
	)

	// An empty Run starts the browser so launch errors surface here.
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, err
	}

	l.logger.Debug("browser launched", "headless", l.opts.Headless)

	return &chromePage{
		ctx:     tabCtx,
		timeout: l.opts.NavigationTimeout,
		release: func() {
			cancelTab()
			cancelAlloc()
		},
	}, nil
}

// chromePage implements Page on a chromedp tab context.
type chromePage struct {
	ctx     context.Context
	timeout time.Duration
	release func()
}

// run executes actions under the navigation timeout. The call is also
// cancelled when the caller's ctx is.
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: %w", model.ErrTimeout, p.timeout, err)
	}
	return err
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

func (p *chromePage) Title(ctx context.Context) (string, error) {
	var title string
	err := p.run(ctx, chromedp.Title(&title))
	return title, err
}

func (p *chromePage) HTML(ctx context.Context) (string, error) {
	var src string
	err := p.run(ctx, chromedp.OuterHTML("html", &src, chromedp.ByQuery))
	return src, err
}

func (p *chromePage) URL(ctx context.Context) (string, error) {
	var loc string
	err := p.run(ctx, chromedp.Location(&loc))
	return loc, err
}

func (p *chromePage) Click(ctx context.Context, selector string) error {
	return p.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
}

func (p *chromePage) Fill(ctx context.Context, selector, value string) error {
	return p.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.SetValue(selector, "", chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
}

func (p *chromePage) WaitVisible(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (p *chromePage) Close() error {
	p.release()
	return nil
}
