// Package geocode converts property addresses to coordinates.
//
// Geocoding is tiered: the whole batch goes to a bulk provider first, and
// whatever it could not match is retried one address at a time against a
// single-address provider. The single-address tier is strictly sequential
// with at least MinFallbackInterval between requests, which is the public
// provider's usage policy. A missing entry in the result means "no match";
// it is not an error.
package geocode

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/nao1215/leadscan/internal/model"
)

// MinFallbackInterval is the shortest allowed gap between single-address
// requests.
const MinFallbackInterval = time.Second

// Address is one geocoding input. ID keys the result map.
type Address struct {
	ID     string
	Street string
	City   string
	State  string
	Zip    string
}

// FromNormalized builds an Address from a normalized address.
func FromNormalized(id string, a model.NormalizedAddress) Address {
	return Address{ID: id, Street: a.Street, City: a.City, State: a.State, Zip: a.Zip}
}

// BatchProvider geocodes many addresses in bulk. Unmatched addresses are
// absent from the returned map.
type BatchProvider interface {
	Name() string
	GeocodeBatch(ctx context.Context, addrs []Address) (map[string]model.GeocodeResult, error)
}

// Provider geocodes a single address. It returns nil, nil when there is no
// match.
type Provider interface {
	Name() string
	Geocode(ctx context.Context, addr Address) (*model.GeocodeResult, error)
}

// Geocoder runs the batch tier and then the fallback tier.
type Geocoder struct {
	batch    BatchProvider
	fallback Provider
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// Option configures a Geocoder.
type Option func(*Geocoder)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Geocoder) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithFallbackInterval sets the gap between fallback requests. Values
// below MinFallbackInterval are raised to it.
func WithFallbackInterval(d time.Duration) Option {
	return func(g *Geocoder) {
		g.limiter = newFallbackLimiter(d)
	}
}

func newFallbackLimiter(d time.Duration) *rate.Limiter {
	if d < MinFallbackInterval {
		d = MinFallbackInterval
	}
	return rate.NewLimiter(rate.Every(d), 1)
}

// New creates a Geocoder. Either provider may be nil to disable its tier.
func New(batch BatchProvider, fallback Provider, opts ...Option) *Geocoder {
	g := &Geocoder{
		batch:    batch,
		fallback: fallback,
		limiter:  newFallbackLimiter(MinFallbackInterval),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Geocode returns coordinates for every address either tier could match.
// Provider errors are logged and never abort the batch.
func (g *Geocoder) Geocode(ctx context.Context, addrs []Address) map[string]model.GeocodeResult {
	results := make(map[string]model.GeocodeResult, len(addrs))
	if len(addrs) == 0 {
		return results
	}

	if g.batch != nil {
		matched, err := g.batch.GeocodeBatch(ctx, addrs)
		if err != nil {
			g.logger.Warn("batch geocoding failed, falling back per address",
				"provider", g.batch.Name(), "addresses", len(addrs), "error", err)
		}
		for id, r := range matched {
			results[id] = r
		}
		g.logger.Info("batch geocoding finished", "provider", g.batch.Name(), "matched", len(matched), "total", len(addrs))
	}

	if g.fallback == nil {
		return results
	}

	var pending []Address
	for _, a := range addrs {
		if _, ok := results[a.ID]; !ok && a.Street != "" {
			pending = append(pending, a)
		}
	}

	for _, a := range pending {
		if err := g.limiter.Wait(ctx); err != nil {
			g.logger.Warn("fallback geocoding stopped", "remaining", len(pending), "error", err)
			break
		}
		r, err := g.fallback.Geocode(ctx, a)
		if err != nil {
			g.logger.Debug("fallback geocoding failed", "provider", g.fallback.Name(), "id", a.ID, "error", err)
			continue
		}
		if r != nil {
			r.ID = a.ID
			results[a.ID] = *r
		}
	}

	return results
}
