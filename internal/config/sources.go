package config

import (
	"maps"

	"dario.cat/mergo"
	"github.com/nao1215/leadscan/internal/contact"
	"github.com/nao1215/leadscan/internal/geocode"
	"github.com/nao1215/leadscan/internal/listing"
	"github.com/nao1215/leadscan/internal/owner"
)

// Source names used as keys under "sources:" in the config file.
const (
	SourcePortal       = "portal"
	SourceGeocoder     = "geocoder"
	SourceAssessor     = "assessor"
	SourcePeopleSearch = "people_search"
)

// SourceConfig holds request settings for one external site.
type SourceConfig struct {
	// UserAgent overrides the default browser User-Agent.
	UserAgent string `yaml:"user_agent,omitempty"`

	// Proxy routes this source through a proxy (socks5:// or http://).
	Proxy string `yaml:"proxy,omitempty"`

	// Cookie is sent as-is. Format: "name=value; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are added to every plain HTTP request to this source.
	Headers map[string]string `yaml:"headers,omitempty"`

	// RequestsPerSecond overrides the per-host rate limit.
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`
}

// GeocoderConfig points at the two geocoding tiers.
type GeocoderConfig struct {
	CensusURL    string `yaml:"census_url,omitempty"`
	Benchmark    string `yaml:"benchmark,omitempty"`
	NominatimURL string `yaml:"nominatim_url,omitempty"`

	// Email identifies the operator to Nominatim.
	Email string `yaml:"email,omitempty"`
}

// RunConfig holds run options that may also come from flags.
type RunConfig struct {
	Strategy        string   `yaml:"strategy,omitempty"`
	Concurrency     int      `yaml:"concurrency,omitempty"`
	StageTimeout    string   `yaml:"stage_timeout,omitempty"`
	ContactFallback *bool    `yaml:"contact_fallback,omitempty"`
	VerifyEmailMX   bool     `yaml:"verify_email_mx,omitempty"`
	DNSServers      []string `yaml:"dns_servers,omitempty"`
	DBDir           string   `yaml:"db_dir,omitempty"`
	ChromePath      string   `yaml:"chrome_path,omitempty"`
}

// File is the structure of the .leadscan configuration file.
type File struct {
	// Defaults apply to every source unless the source overrides them.
	Defaults SourceConfig `yaml:"defaults,omitempty"`

	// Sources maps a source name (portal, geocoder, assessor,
	// people_search) to its overrides.
	Sources map[string]SourceConfig `yaml:"sources,omitempty"`

	Portal       listing.Portal    `yaml:"portal"`
	Assessor     owner.Selectors   `yaml:"assessor"`
	PeopleSearch contact.Selectors `yaml:"people_search"`
	Geocoder     GeocoderConfig    `yaml:"geocoder"`

	Run RunConfig `yaml:"run,omitempty"`
}

// NewFile returns a File holding the built-in site layouts.
func NewFile() *File {
	f := &File{Sources: make(map[string]SourceConfig)}
	f.fillDefaults()
	return f
}

// fillDefaults fills every empty layout field from the built-in layouts.
func (cf *File) fillDefaults() {
	fill(&cf.Portal, listing.DefaultPortal())
	fill(&cf.Assessor, owner.DefaultSelectors())
	fill(&cf.PeopleSearch, contact.DefaultSelectors())
	fill(&cf.Geocoder, GeocoderConfig{
		CensusURL:    geocode.DefaultCensusURL,
		Benchmark:    geocode.DefaultBenchmark,
		NominatimURL: geocode.DefaultNominatimURL,
	})
	if cf.Sources == nil {
		cf.Sources = make(map[string]SourceConfig)
	}
}

// fill copies non-zero fields of src into zero fields of dst.
func fill[T any](dst *T, src T) {
	_ = mergo.Merge(dst, src) //nolint:errcheck // dst and src share a struct type
}

// Source returns the settings for a source with Defaults filled in. Headers
// from both levels are combined; the source wins on conflicts.
func (cf *File) Source(name string) SourceConfig {
	result := cf.Sources[name]
	result.Headers = maps.Clone(result.Headers)

	defaults := cf.Defaults
	defaults.Headers = maps.Clone(defaults.Headers)

	fill(&result, defaults)
	return result
}
