package config

import (
	"path/filepath"
	"slices"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "leadscan"

	// DefaultLookback is how far back a run reaches when no --from is given.
	DefaultLookback = 7 * 24 * time.Hour

	// DefaultConcurrency is the number of leads enriched at once. Each
	// worker may hold a Chrome process, so this stays small.
	DefaultConcurrency = 3

	// DefaultWorkerMemoryMB is the memory budget assumed per worker when
	// clamping concurrency to available memory.
	DefaultWorkerMemoryMB = 512

	// DefaultStageTimeout bounds the owner and contact stages for one lead.
	DefaultStageTimeout = 3 * time.Minute

	// DefaultNavigationTimeout bounds every browser navigation.
	DefaultNavigationTimeout = 30 * time.Second

	// DefaultRequestTimeout bounds every plain HTTP request.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultRequestsPerSecond limits plain HTTP requests per host.
	DefaultRequestsPerSecond = 1.0

	// DefaultGeocodeInterval spaces fallback geocoder requests. The public
	// Nominatim instance allows one request per second.
	DefaultGeocodeInterval = time.Second

	// DefaultContactDelayMin and DefaultContactDelayMax bound the random
	// pause before each people-search navigation.
	DefaultContactDelayMin = time.Second
	DefaultContactDelayMax = 2 * time.Second

	// DefaultStrategy tries the direct HTTP fetch first, then the browser.
	DefaultStrategy = StrategyAuto
)

// Listing strategies selectable with --strategy.
const (
	StrategyAuto    = "auto"
	StrategyDirect  = "direct"
	StrategyBrowser = "browser"
)

// Strategies lists the accepted --strategy values.
var Strategies = []string{StrategyAuto, StrategyDirect, StrategyBrowser}

// Config holds all options for a run. It is filled from defaults, then the
// config file, then LEADSCAN_* environment variables, then CLI flags.
type Config struct {
	// From and To bound the recorded date of the notices to fetch. Both
	// are inclusive calendar days.
	From time.Time
	To   time.Time

	// Limit caps the number of records requested from the portal.
	// Zero lets the portal decide.
	Limit int

	// Strategy selects how the portal is read: auto, direct or browser.
	Strategy string

	// Concurrency is the number of leads enriched in parallel. It is
	// lowered at run time when available memory cannot hold that many
	// workers at WorkerMemoryMB each.
	Concurrency    int
	WorkerMemoryMB int

	// StageTimeout bounds the owner and contact lookups for one lead.
	StageTimeout time.Duration

	// NavigationTimeout bounds each browser navigation; RequestTimeout
	// bounds each plain HTTP request.
	NavigationTimeout time.Duration
	RequestTimeout    time.Duration

	// RequestsPerSecond rate-limits plain HTTP requests per host.
	RequestsPerSecond float64

	// GeocodeInterval spaces fallback geocoder requests.
	GeocodeInterval time.Duration

	// ContactDelayMin and ContactDelayMax bound the random pause before
	// each people-search navigation.
	ContactDelayMin time.Duration
	ContactDelayMax time.Duration

	// AllowContactFallback accepts the first person card at confidence 0.5
	// when no card scores 0.7 or above. Such matches are flagged for review.
	AllowContactFallback bool

	// VerifyEmailMX drops scraped emails whose domain has no MX record.
	VerifyEmailMX bool

	// DNSServers are used for MX lookups. Empty uses public resolvers.
	DNSServers []string

	// ProxyURL routes HTTP and browser traffic through a proxy
	// (socks5://, http://).
	ProxyURL string

	// UserAgent is sent by the HTTP client and the browser.
	UserAgent string

	// Headless runs Chrome without a window. ChromePath overrides the
	// binary chromedp would find on PATH.
	Headless   bool
	ChromePath string

	// NominatimEmail is sent with fallback geocoder requests as the usage
	// policy asks.
	NominatimEmail string

	// DBDir is the directory holding the lead database and the run lock.
	// Defaults to the XDG data directory (~/.local/share/leadscan on Linux).
	DBDir string

	// SaveToDB persists runs and leads to DBDir.
	SaveToDB bool

	// SkipRecent skips records already enriched within this window.
	// Zero enriches everything.
	SkipRecent time.Duration

	// JSONReport and MarkdownReport select the report format. Both false
	// means terminal tables. They are mutually exclusive.
	JSONReport     bool
	MarkdownReport bool

	// ReportFile writes the report to a file instead of stdout.
	ReportFile string

	// Verbose enables debug logging; LogJSON switches logs to JSON lines.
	Verbose bool
	LogJSON bool

	// ConfigFilePath is the configuration file given with -c. When empty the
	// file is searched for; see FindConfigFile.
	ConfigFilePath string

	// Sources holds the site descriptions loaded from the config file.
	Sources *File
}

// NewConfig creates a Config with default values and an empty date range.
func NewConfig() *Config {
	return &Config{
		Strategy:             DefaultStrategy,
		Concurrency:          DefaultConcurrency,
		WorkerMemoryMB:       DefaultWorkerMemoryMB,
		StageTimeout:         DefaultStageTimeout,
		NavigationTimeout:    DefaultNavigationTimeout,
		RequestTimeout:       DefaultRequestTimeout,
		RequestsPerSecond:    DefaultRequestsPerSecond,
		GeocodeInterval:      DefaultGeocodeInterval,
		ContactDelayMin:      DefaultContactDelayMin,
		ContactDelayMax:      DefaultContactDelayMax,
		AllowContactFallback: true,
		Headless:             true,
		SaveToDB:             true,
		Sources:              NewFile(),
	}
}

// DefaultRange returns the range used when none is given: the last
// DefaultLookback up to and including today.
func DefaultRange(now time.Time) (from, to time.Time) {
	to = truncateDay(now)
	return to.Add(-DefaultLookback), to
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// XDGDataDir returns the XDG data directory for leadscan.
// On Linux: ~/.local/share/leadscan
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for leadscan.
// On Linux: ~/.config/leadscan
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for leadscan.
// On Linux: ~/.cache/leadscan
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if c.Sources == nil || c.Sources.Portal.SearchURL == "" {
		return ErrNoPortalURL
	}
	if !c.From.IsZero() && !c.To.IsZero() && c.From.After(c.To) {
		return ErrInvalidRange
	}
	if c.Limit < 0 {
		return ErrInvalidLimit
	}
	if !slices.Contains(Strategies, c.Strategy) {
		return ErrInvalidStrategy
	}
	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.StageTimeout <= 0 || c.NavigationTimeout <= 0 || c.RequestTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.ContactDelayMin < 0 || c.ContactDelayMax < c.ContactDelayMin {
		return ErrInvalidContactDelay
	}
	if c.SkipRecent < 0 {
		return ErrInvalidSkipRecent
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	return nil
}
