// Package nominatim provides a client for the OpenStreetMap Nominatim
// geocoder.
package nominatim

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/place-resolver/internal/resilience"
)

const defaultBaseURL = "https://nominatim.openstreetmap.org"

// Client defines the Nominatim operations.
type Client interface {
	// Search geocodes a free-form query and returns up to limit places.
	Search(ctx context.Context, query string, limit int) ([]Place, error)
}

// Place is one geocoder hit.
type Place struct {
	PlaceID     int64
	OSMType     string
	OSMID       int64
	Name        string
	DisplayName string
	Category    string
	Type        string
	Lat, Lon    float64
	Importance  float64
	CountryCode string // ISO 3166-1 alpha-2, upper case
	Country     string
	// Bounds is the place's extent in lon/lat (XY) order, or nil.
	Bounds *geom.Bounds
}

// Option configures the Nominatim client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL, e.g. a self-hosted instance.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithUserAgent sets the User-Agent header, required by the usage policy.
func WithUserAgent(ua string) Option {
	return func(c *httpClient) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithLanguage sets the Accept-Language header for result names.
func WithLanguage(lang string) Option {
	return func(c *httpClient) {
		c.language = lang
	}
}

type httpClient struct {
	baseURL   string
	userAgent string
	language  string
	http      *http.Client
}

// NewClient creates a Nominatim client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL:   defaultBaseURL,
		userAgent: "place-resolver/1.0",
		language:  "en",
		http:      &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type searchResult struct {
	PlaceID     int64    `json:"place_id"`
	OSMType     string   `json:"osm_type"`
	OSMID       int64    `json:"osm_id"`
	Lat         string   `json:"lat"`
	Lon         string   `json:"lon"`
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	Category    string   `json:"category"`
	Type        string   `json:"type"`
	Importance  float64  `json:"importance"`
	BoundingBox []string `json:"boundingbox"` // [minlat, maxlat, minlon, maxlon]
	Address     struct {
		Country     string `json:"country"`
		CountryCode string `json:"country_code"`
	} `json:"address"`
}

func (c *httpClient) Search(ctx context.Context, query string, limit int) ([]Place, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	q := url.Values{
		"q":              {query},
		"format":         {"jsonv2"},
		"addressdetails": {"1"},
		"limit":          {strconv.Itoa(limit)},
	}
	reqURL := c.baseURL + "/search?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "nominatim: create request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if c.language != "" {
		req.Header.Set("Accept-Language", c.language)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "nominatim: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, resilience.HTTPStatusError("nominatim", resp.StatusCode)
	}

	var raw []searchResult
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, eris.Wrap(err, "nominatim: decode response")
	}

	places := make([]Place, 0, len(raw))
	for _, r := range raw {
		lat, errLat := strconv.ParseFloat(r.Lat, 64)
		lon, errLon := strconv.ParseFloat(r.Lon, 64)
		if errLat != nil || errLon != nil {
			continue
		}
		name := r.Name
		if name == "" {
			name, _, _ = strings.Cut(r.DisplayName, ",")
		}
		places = append(places, Place{
			PlaceID:     r.PlaceID,
			OSMType:     r.OSMType,
			OSMID:       r.OSMID,
			Name:        name,
			DisplayName: r.DisplayName,
			Category:    r.Category,
			Type:        r.Type,
			Lat:         lat,
			Lon:         lon,
			Importance:  r.Importance,
			CountryCode: strings.ToUpper(r.Address.CountryCode),
			Country:     r.Address.Country,
			Bounds:      parseBoundingBox(r.BoundingBox),
		})
	}
	return places, nil
}

// parseBoundingBox converts Nominatim's [minlat, maxlat, minlon, maxlon]
// strings into XY bounds.
func parseBoundingBox(bb []string) *geom.Bounds {
	if len(bb) != 4 {
		return nil
	}
	var v [4]float64
	for i, s := range bb {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		v[i] = f
	}
	return geom.NewBounds(geom.XY).Set(v[2], v[0], v[3], v[1])
}
