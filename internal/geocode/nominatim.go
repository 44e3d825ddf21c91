package geocode

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-resty/resty/v2"

	"github.com/nao1215/leadscan/internal/model"
)

// DefaultNominatimURL is the public OpenStreetMap search endpoint.
const DefaultNominatimURL = "https://nominatim.openstreetmap.org/search"

// NominatimClient is a single-address Provider backed by Nominatim.
// Nominatim's usage policy requires an identifying User-Agent; set it on
// the resty client.
type NominatimClient struct {
	client *resty.Client
	url    string
	email  string
}

// NewNominatimClient creates a NominatimClient. An empty baseURL uses
// DefaultNominatimURL. email, when set, is sent in the From header.
func NewNominatimClient(client *resty.Client, baseURL, email string) *NominatimClient {
	if baseURL == "" {
		baseURL = DefaultNominatimURL
	}
	return &NominatimClient{client: client, url: baseURL, email: email}
}

// Name implements Provider.
func (c *NominatimClient) Name() string { return "nominatim" }

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Geocode implements Provider.
func (c *NominatimClient) Geocode(ctx context.Context, a Address) (*model.GeocodeResult, error) {
	var places []nominatimPlace
	req := c.client.R().
		SetContext(ctx).
		SetHeader("Accept-Language", "en").
		SetQueryParams(map[string]string{
			"format":       "json",
			"limit":        "1",
			"countrycodes": "us",
			"street":       a.Street,
			"city":         a.City,
			"state":        a.State,
			"postalcode":   a.Zip,
		}).
		SetResult(&places)
	if c.email != "" {
		req.SetHeader("From", c.email)
	}

	resp, err := req.Get(c.url)
	if err != nil {
		return nil, fmt.Errorf("nominatim request failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("nominatim returned %s", resp.Status())
	}
	if len(places) == 0 {
		return nil, nil
	}

	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid latitude %q: %w", places[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid longitude %q: %w", places[0].Lon, err)
	}
	return &model.GeocodeResult{
		ID:             a.ID,
		Latitude:       lat,
		Longitude:      lon,
		MatchedAddress: places[0].DisplayName,
		Source:         "nominatim",
	}, nil
}
