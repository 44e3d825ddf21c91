// Package netclient builds the HTTP clients used to talk to the county
// portal and the geocoders: an *http.Client with an optional SOCKS5/HTTP
// proxy, cookie jar and header injection, and a resty client on top of it
// with per-host rate limiting and request instrumentation.
package netclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/net/proxy"
)

// Defaults for Options.
const (
	DefaultTimeout           = 30 * time.Second
	DefaultRequestsPerSecond = 1.0
	DefaultBurst             = 2
	DefaultMaxRedirects      = 10
	DefaultUserAgent         = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36"
)

// ErrInvalidProxyURL is returned when ProxyURL has an unsupported scheme or
// cannot be parsed. Supported schemes are socks5, socks5h, http and https.
var ErrInvalidProxyURL = errors.New("invalid proxy URL: expected socks5://, socks5h://, http:// or https://")

// Options configures the clients built by this package.
type Options struct {
	// ProxyURL routes all traffic through a proxy when set.
	ProxyURL string

	// Timeout bounds each request including redirects.
	Timeout time.Duration

	// UserAgent is sent on every request.
	UserAgent string

	// Headers are added to every request that does not already set them.
	Headers map[string]string

	// Cookie is a raw "name=value; name2=value2" string added to every request.
	Cookie string

	// BypassCloudflare wraps the transport with browser-like TLS settings
	// and headers.
	BypassCloudflare bool

	// RequestsPerSecond and Burst rate-limit requests per host.
	RequestsPerSecond float64
	Burst             int

	// MaxRedirects caps redirect chains.
	MaxRedirects int

	// Logger receives request logs. Nil uses slog.Default().
	Logger *slog.Logger
}

// DefaultOptions returns options with every default applied.
func DefaultOptions() Options {
	return Options{
		Timeout:           DefaultTimeout,
		UserAgent:         DefaultUserAgent,
		BypassCloudflare:  true,
		RequestsPerSecond: DefaultRequestsPerSecond,
		Burst:             DefaultBurst,
		MaxRedirects:      DefaultMaxRedirects,
	}
}

func (o *Options) applyDefaults() {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	if o.RequestsPerSecond <= 0 {
		o.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if o.Burst <= 0 {
		o.Burst = DefaultBurst
	}
	if o.MaxRedirects <= 0 {
		o.MaxRedirects = DefaultMaxRedirects
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// NewHTTPClient creates an *http.Client configured from opts.
func NewHTTPClient(opts Options) (*http.Client, error) {
	opts.applyDefaults()

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if err := configureProxy(transport, opts.ProxyURL); err != nil {
		return nil, err
	}

	var rt http.RoundTripper = transport
	if opts.BypassCloudflare {
		rt = cloudflarebp.AddCloudFlareByPass(rt)
	}
	rt = &headerInjectingTransport{
		base:      rt,
		userAgent: opts.UserAgent,
		cookie:    opts.Cookie,
		headers:   opts.Headers,
	}

	jar, _ := cookiejar.New(nil) //nolint:errcheck // cookiejar.New only fails with invalid options

	maxRedirects := opts.MaxRedirects
	return &http.Client{
		Transport: rt,
		Timeout:   opts.Timeout,
		Jar:       jar,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}, nil
}

// configureProxy points the transport at proxyURL. SOCKS proxies are
// dialed with x/net/proxy; HTTP proxies use the transport's Proxy hook.
func configureProxy(t *http.Transport, proxyURL string) error {
	if proxyURL == "" {
		return nil
	}
	u, err := url.Parse(proxyURL)
	if err != nil || u.Host == "" {
		return ErrInvalidProxyURL
	}

	switch u.Scheme {
	case "socks5", "socks5h":
		dialer, err := proxy.FromURL(u, proxy.Direct)
		if err != nil {
			return fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		t.Proxy = nil
		if cd, ok := dialer.(proxy.ContextDialer); ok {
			t.DialContext = cd.DialContext
		} else {
			t.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}
	case "http", "https":
		t.Proxy = http.ProxyURL(u)
	default:
		return ErrInvalidProxyURL
	}
	return nil
}

// headerInjectingTransport adds the configured User-Agent, cookie and
// headers to every request, including redirects.
type headerInjectingTransport struct {
	base      http.RoundTripper
	userAgent string
	cookie    string
	headers   map[string]string
}

// RoundTrip implements http.RoundTripper.
func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())

	if t.userAgent != "" && clone.Header.Get("User-Agent") == "" {
		clone.Header.Set("User-Agent", t.userAgent)
	}
	if t.cookie != "" {
		if existing := clone.Header.Get("Cookie"); existing != "" {
			clone.Header.Set("Cookie", existing+"; "+t.cookie)
		} else {
			clone.Header.Set("Cookie", t.cookie)
		}
	}
	for k, v := range t.headers {
		if clone.Header.Get(k) == "" {
			clone.Header.Set(k, v)
		}
	}

	return t.base.RoundTrip(clone)
}

// NewRestyClient creates a resty client on top of NewHTTPClient with
// per-host rate limiting and request instrumentation.
func NewRestyClient(opts Options) (*resty.Client, error) {
	opts.applyDefaults()

	hc, err := NewHTTPClient(opts)
	if err != nil {
		return nil, err
	}

	limiter := NewHostLimiter(opts.RequestsPerSecond, opts.Burst)

	client := resty.NewWithClient(hc).
		SetTimeout(opts.Timeout).
		SetHeader("User-Agent", opts.UserAgent)

	client.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
		return limiter.WaitURL(r.Context(), r.URL)
	})
	Instrument(client, opts.Logger, nil)

	return client, nil
}
