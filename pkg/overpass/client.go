// Package overpass provides a client for the OpenStreetMap Overpass API,
// limited to route-relation lookups inside a bounding box.
package overpass

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/place-resolver/internal/resilience"
)

const defaultBaseURL = "https://overpass-api.de"

// DefaultRouteTypes are the OSM route=* values treated as scenic routes.
var DefaultRouteTypes = []string{"hiking", "foot", "bicycle"}

// Client defines the Overpass operations.
type Client interface {
	// Routes returns up to limit route relations of the given types whose
	// extent intersects bounds (lon/lat XY order).
	Routes(ctx context.Context, bounds *geom.Bounds, routeTypes []string, limit int) ([]Route, error)
}

// Route is one OSM route relation with its center point.
type Route struct {
	ID       int64
	Name     string
	Type     string // route=* value
	Network  string
	Lat, Lon float64
	Tags     map[string]string
}

// URL returns the openstreetmap.org page of the relation.
func (r Route) URL() string {
	return fmt.Sprintf("https://www.openstreetmap.org/relation/%d", r.ID)
}

// Option configures the Overpass client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL, e.g. a private instance.
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

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *httpClient) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

type httpClient struct {
	baseURL   string
	userAgent string
	http      *http.Client
}

// NewClient creates an Overpass client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL:   defaultBaseURL,
		userAgent: "place-resolver/1.0",
		http:      &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type interpreterResponse struct {
	Remark   string `json:"remark"`
	Elements []struct {
		Type   string            `json:"type"`
		ID     int64             `json:"id"`
		Tags   map[string]string `json:"tags"`
		Center *struct {
			Lat float64 `json:"lat"`
			Lon float64 `json:"lon"`
		} `json:"center"`
	} `json:"elements"`
}

// BuildRouteQuery renders the Overpass QL for a route lookup.
func BuildRouteQuery(bounds *geom.Bounds, routeTypes []string, limit int) string {
	if len(routeTypes) == 0 {
		routeTypes = DefaultRouteTypes
	}
	// Overpass bbox order is (south, west, north, east).
	return fmt.Sprintf(
		"[out:json][timeout:25];\nrelation[\"type\"=\"route\"][\"route\"~\"^(%s)$\"][\"name\"](%.6f,%.6f,%.6f,%.6f);\nout tags center %d;",
		strings.Join(routeTypes, "|"),
		bounds.Min(1), bounds.Min(0), bounds.Max(1), bounds.Max(0),
		limit,
	)
}

func (c *httpClient) Routes(ctx context.Context, bounds *geom.Bounds, routeTypes []string, limit int) ([]Route, error) {
	if bounds == nil || bounds.IsEmpty() {
		return nil, eris.New("overpass: empty bounds")
	}
	if limit <= 0 || limit > 200 {
		limit = 25
	}
	form := url.Values{"data": {BuildRouteQuery(bounds, routeTypes, limit)}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/interpreter", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, eris.Wrap(err, "overpass: create request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "overpass: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, resilience.HTTPStatusError("overpass", resp.StatusCode)
	}

	var ir interpreterResponse
	if err := json.NewDecoder(resp.Body).Decode(&ir); err != nil {
		return nil, eris.Wrap(err, "overpass: decode response")
	}
	// The server signals query timeouts in-band with a 200.
	if strings.Contains(ir.Remark, "timed out") {
		return nil, resilience.NewTransientError(eris.Errorf("overpass: %s", ir.Remark), http.StatusGatewayTimeout)
	}

	routes := make([]Route, 0, len(ir.Elements))
	for _, el := range ir.Elements {
		if el.Type != "relation" || el.Center == nil || el.Tags["name"] == "" {
			continue
		}
		routes = append(routes, Route{
			ID:      el.ID,
			Name:    el.Tags["name"],
			Type:    el.Tags["route"],
			Network: el.Tags["network"],
			Lat:     el.Center.Lat,
			Lon:     el.Center.Lon,
			Tags:    el.Tags,
		})
	}
	return routes, nil
}
