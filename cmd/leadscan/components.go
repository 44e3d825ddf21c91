package main

import (
	"fmt"
	"log/slog"

	"github.com/nao1215/leadscan/internal/browser"
	"github.com/nao1215/leadscan/internal/config"
	"github.com/nao1215/leadscan/internal/contact"
	"github.com/nao1215/leadscan/internal/geocode"
	"github.com/nao1215/leadscan/internal/listing"
	"github.com/nao1215/leadscan/internal/netclient"
	"github.com/nao1215/leadscan/internal/owner"
	"github.com/nao1215/leadscan/internal/pipeline"
)

// components are the external-facing parts of a run.
type components struct {
	acquirer pipeline.Acquirer
	geocoder pipeline.BatchGeocoder
	owners   owner.Locator
	contacts contact.Locator
}

// query builds the listing query for the configured range.
func (c *components) query(cfg *config.Config) listing.Query {
	return listing.Query{From: cfg.From, To: cfg.To, Limit: cfg.Limit}
}

// newComponents wires HTTP clients, browser launchers and site adapters
// from cfg. Each source gets its own proxy, user agent, headers and rate.
func newComponents(cfg *config.Config, logger *slog.Logger) (*components, error) {
	sources := cfg.Sources
	if sources == nil {
		sources = config.NewFile()
	}

	portalHTTP, err := netclient.NewRestyClient(httpOptions(cfg, config.SourcePortal, logger))
	if err != nil {
		return nil, fmt.Errorf("portal client: %w", err)
	}
	geoHTTP, err := netclient.NewRestyClient(httpOptions(cfg, config.SourceGeocoder, logger))
	if err != nil {
		return nil, fmt.Errorf("geocoder client: %w", err)
	}

	var strategies []listing.Strategy
	if cfg.Strategy != config.StrategyBrowser {
		strategies = append(strategies, listing.NewDirectStrategy(portalHTTP, sources.Portal))
	}
	if cfg.Strategy != config.StrategyDirect {
		strategies = append(strategies, listing.NewBrowserStrategy(
			launcher(cfg, config.SourcePortal, logger),
			sources.Portal,
			listing.WithBrowserLogger(logger),
		))
	}

	geo := geocode.New(
		geocode.NewCensusClient(geoHTTP,
			geocode.WithCensusURL(sources.Geocoder.CensusURL),
			geocode.WithBenchmark(sources.Geocoder.Benchmark),
		),
		geocode.NewNominatimClient(geoHTTP, sources.Geocoder.NominatimURL, cfg.NominatimEmail),
		geocode.WithLogger(logger),
		geocode.WithFallbackInterval(cfg.GeocodeInterval),
	)

	contactOpts := []contact.Option{
		contact.WithLogger(logger),
		contact.WithDelay(cfg.ContactDelayMin, cfg.ContactDelayMax),
		contact.WithFallback(cfg.AllowContactFallback),
	}
	if cfg.VerifyEmailMX {
		contactOpts = append(contactOpts, contact.WithMXVerifier(contact.NewMXVerifier(cfg.DNSServers...)))
	}

	return &components{
		acquirer: listing.NewAcquirer(logger, strategies...),
		geocoder: geo,
		owners: owner.NewAssessorAdapter(
			launcher(cfg, config.SourceAssessor, logger),
			sources.Assessor,
			owner.WithLogger(logger),
		),
		contacts: contact.NewPeopleSearchAdapter(
			launcher(cfg, config.SourcePeopleSearch, logger),
			sources.PeopleSearch,
			contactOpts...,
		),
	}, nil
}

func httpOptions(cfg *config.Config, source string, logger *slog.Logger) netclient.Options {
	sc := cfg.SourceFor(source)
	opts := netclient.DefaultOptions()
	opts.ProxyURL = sc.Proxy
	opts.Timeout = cfg.RequestTimeout
	opts.Headers = sc.Headers
	opts.Cookie = sc.Cookie
	opts.Logger = logger.With("source", source)
	if sc.UserAgent != "" {
		opts.UserAgent = sc.UserAgent
	}
	if sc.RequestsPerSecond > 0 {
		opts.RequestsPerSecond = sc.RequestsPerSecond
	}
	return opts
}

func launcher(cfg *config.Config, source string, logger *slog.Logger) *browser.ChromeLauncher {
	sc := cfg.SourceFor(source)
	opts := browser.DefaultOptions()
	opts.Headless = cfg.Headless
	opts.ExecPath = cfg.ChromePath
	opts.ProxyServer = sc.Proxy
	opts.NavigationTimeout = cfg.NavigationTimeout
	if sc.UserAgent != "" {
		opts.UserAgent = sc.UserAgent
	}
	return browser.NewChromeLauncher(opts, logger.With("source", source))
}
