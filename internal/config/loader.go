package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the configuration file name searched for in the
// current and home directories.
const DefaultConfigFile = ".leadscan"

// XDGConfigFile is the file name searched for in XDGConfigDir.
const XDGConfigFile = "config.yaml"

// EnvPrefix prefixes every environment variable leadscan reads.
const EnvPrefix = "LEADSCAN_"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// LoadConfigFile loads site layouts and run defaults from a YAML file.
// Fields the file leaves empty keep their built-in values. If the file does
// not exist, it returns ErrConfigNotFound.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cf File
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cf.fillDefaults()
	return &cf, nil
}

// FindConfigFile searches for the configuration file in the following order:
//  1. configPath, if specified
//  2. .leadscan in the current directory
//  3. .leadscan in the user's home directory
//  4. config.yaml in the XDG config directory
//
// Returns the path of the first file found, or "" when none exists.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	var candidates []string
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, DefaultConfigFile))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, DefaultConfigFile))
	}
	candidates = append(candidates, filepath.Join(XDGConfigDir(), XDGConfigFile))

	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// ApplyFile copies the file's run options into c and keeps the file as
// c.Sources. Options the file leaves unset are not touched.
func (c *Config) ApplyFile(cf *File) error {
	c.Sources = cf
	r := cf.Run

	if r.Strategy != "" {
		c.Strategy = r.Strategy
	}
	if r.Concurrency != 0 {
		c.Concurrency = r.Concurrency
	}
	if r.StageTimeout != "" {
		d, err := time.ParseDuration(r.StageTimeout)
		if err != nil {
			return fmt.Errorf("run.stage_timeout: %w", err)
		}
		c.StageTimeout = d
	}
	if r.ContactFallback != nil {
		c.AllowContactFallback = *r.ContactFallback
	}
	if r.VerifyEmailMX {
		c.VerifyEmailMX = true
	}
	if len(r.DNSServers) > 0 {
		c.DNSServers = r.DNSServers
	}
	if r.DBDir != "" {
		c.DBDir = r.DBDir
	}
	if r.ChromePath != "" {
		c.ChromePath = r.ChromePath
	}
	if cf.Geocoder.Email != "" {
		c.NominatimEmail = cf.Geocoder.Email
	}
	return nil
}

// ApplyEnv overrides c from LEADSCAN_* variables. lookup is usually
// os.LookupEnv; tests pass a map.
//
//	LEADSCAN_PORTAL_URL         portal.search_url
//	LEADSCAN_ASSESSOR_URL       assessor.search_url
//	LEADSCAN_PEOPLE_SEARCH_URL  people_search.home_url
//	LEADSCAN_PROXY              proxy for every source
//	LEADSCAN_USER_AGENT         user agent for every source
//	LEADSCAN_NOMINATIM_EMAIL    geocoder.email
//	LEADSCAN_DB_DIR             database directory
//	LEADSCAN_CHROME_PATH        Chrome binary
//	LEADSCAN_CONCURRENCY        worker count
//	LEADSCAN_VERIFY_EMAIL_MX    true/false
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		return v, ok && v != ""
	}
	if c.Sources == nil {
		c.Sources = NewFile()
	}

	if v, ok := get("PORTAL_URL"); ok {
		c.Sources.Portal.SearchURL = v
	}
	if v, ok := get("ASSESSOR_URL"); ok {
		c.Sources.Assessor.SearchURL = v
	}
	if v, ok := get("PEOPLE_SEARCH_URL"); ok {
		c.Sources.PeopleSearch.HomeURL = v
	}
	if v, ok := get("PROXY"); ok {
		c.ProxyURL = v
	}
	if v, ok := get("USER_AGENT"); ok {
		c.UserAgent = v
	}
	if v, ok := get("NOMINATIM_EMAIL"); ok {
		c.NominatimEmail = v
	}
	if v, ok := get("DB_DIR"); ok {
		c.DBDir = v
	}
	if v, ok := get("CHROME_PATH"); ok {
		c.ChromePath = v
	}
	if v, ok := get("CONCURRENCY"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sCONCURRENCY: %w", EnvPrefix, err)
		}
		c.Concurrency = n
	}
	if v, ok := get("VERIFY_EMAIL_MX"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sVERIFY_EMAIL_MX: %w", EnvPrefix, err)
		}
		c.VerifyEmailMX = b
	}
	return nil
}

// SourceFor returns the request settings for a source. ProxyURL and
// UserAgent set on c (from flags or the environment) take precedence over
// the file.
func (c *Config) SourceFor(name string) SourceConfig {
	var sc SourceConfig
	if c.Sources != nil {
		sc = c.Sources.Source(name)
	}
	if c.ProxyURL != "" {
		sc.Proxy = c.ProxyURL
	}
	if c.UserAgent != "" {
		sc.UserAgent = c.UserAgent
	}
	if sc.RequestsPerSecond <= 0 {
		sc.RequestsPerSecond = c.RequestsPerSecond
	}
	return sc
}
