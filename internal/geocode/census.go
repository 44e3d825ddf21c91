package geocode

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/nao1215/leadscan/internal/model"
)

const (
	// DefaultCensusURL is the Census Bureau batch address endpoint.
	DefaultCensusURL = "https://geocoding.geo.census.gov/geocoder/locations/addressbatch"

	// CensusBatchLimit is the most addresses the Census API accepts per file.
	CensusBatchLimit = 10000

	// DefaultBenchmark selects the current address ranges.
	DefaultBenchmark = "Public_AR_Current"

	censusMatch = "Match"
)

// Census response columns.
const (
	colID = iota
	_     // input address
	colMatch
	_ // match type (Exact / Non_Exact)
	colMatchedAddress
	colCoordinates
)

// CensusClient is a BatchProvider backed by the Census Bureau geocoder.
type CensusClient struct {
	client     *resty.Client
	url        string
	benchmark  string
	batchLimit int
}

// CensusOption configures a CensusClient.
type CensusOption func(*CensusClient)

// WithCensusURL overrides the endpoint.
func WithCensusURL(u string) CensusOption {
	return func(c *CensusClient) {
		if u != "" {
			c.url = u
		}
	}
}

// WithBenchmark overrides the benchmark name.
func WithBenchmark(b string) CensusOption {
	return func(c *CensusClient) {
		if b != "" {
			c.benchmark = b
		}
	}
}

// WithBatchLimit lowers the per-request address count. Values above
// CensusBatchLimit are ignored.
func WithBatchLimit(n int) CensusOption {
	return func(c *CensusClient) {
		if n > 0 && n <= CensusBatchLimit {
			c.batchLimit = n
		}
	}
}

// NewCensusClient creates a CensusClient.
func NewCensusClient(client *resty.Client, opts ...CensusOption) *CensusClient {
	c := &CensusClient{
		client:     client,
		url:        DefaultCensusURL,
		benchmark:  DefaultBenchmark,
		batchLimit: CensusBatchLimit,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements BatchProvider.
func (c *CensusClient) Name() string { return "census" }

// GeocodeBatch implements BatchProvider. Inputs larger than the batch limit
// are split into several requests; a failed chunk does not discard the
// results of the others.
func (c *CensusClient) GeocodeBatch(ctx context.Context, addrs []Address) (map[string]model.GeocodeResult, error) {
	results := make(map[string]model.GeocodeResult, len(addrs))
	var errs []error
	for start := 0; start < len(addrs); start += c.batchLimit {
		end := min(start+c.batchLimit, len(addrs))
		chunk, err := c.submit(ctx, addrs[start:end])
		if err != nil {
			errs = append(errs, fmt.Errorf("chunk %d-%d: %w", start, end, err))
			continue
		}
		for id, r := range chunk {
			results[id] = r
		}
	}
	return results, errors.Join(errs...)
}

func (c *CensusClient) submit(ctx context.Context, addrs []Address) (map[string]model.GeocodeResult, error) {
	file, err := encodeAddressFile(addrs)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetMultipartField("addressFile", "addresses.csv", "text/csv", bytes.NewReader(file)).
		SetMultipartFormData(map[string]string{"benchmark": c.benchmark}).
		Post(c.url)
	if err != nil {
		return nil, fmt.Errorf("census request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("census returned %s", resp.Status())
	}

	return ParseCensusCSV(bytes.NewReader(resp.Body()))
}

// encodeAddressFile renders the "id,street,city,state,zip" upload file.
func encodeAddressFile(addrs []Address) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, a := range addrs {
		if err := w.Write([]string{a.ID, a.Street, a.City, a.State, a.Zip}); err != nil {
			return nil, fmt.Errorf("failed to encode address file: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to encode address file: %w", err)
	}
	return buf.Bytes(), nil
}

// ParseCensusCSV parses a Census batch response. Only rows whose match
// indicator is exactly "Match" are returned; "Tie" and "No_Match" rows are
// dropped. The coordinate column is "longitude,latitude" and is un-reversed
// here.
func ParseCensusCSV(r io.Reader) (map[string]model.GeocodeResult, error) {
	cr := csv.NewReader(r)
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	results := make(map[string]model.GeocodeResult)
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return results, fmt.Errorf("failed to parse census response: %w", err)
		}
		if len(row) <= colCoordinates || strings.TrimSpace(row[colMatch]) != censusMatch {
			continue
		}

		lon, lat, ok := parseLonLat(row[colCoordinates])
		if !ok {
			continue
		}
		id := strings.TrimSpace(row[colID])
		results[id] = model.GeocodeResult{
			ID:             id,
			Latitude:       lat,
			Longitude:      lon,
			MatchedAddress: strings.TrimSpace(row[colMatchedAddress]),
			Source:         "census",
		}
	}
	return results, nil
}

func parseLonLat(s string) (lon, lat float64, ok bool) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, false
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, false
	}
	lat, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, false
	}
	return lon, lat, true
}
