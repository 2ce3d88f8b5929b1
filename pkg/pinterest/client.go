// Package pinterest provides a client for Pinterest's public pin search
// resource, which needs no API key.
package pinterest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/place-resolver/internal/resilience"
)

const defaultBaseURL = "https://www.pinterest.com"

// Client defines the Pinterest search operations.
type Client interface {
	// Search returns up to limit pins matching query, in the order served.
	Search(ctx context.Context, query string, limit int) ([]Pin, error)
}

// Pin is one search result reduced to its best available image.
type Pin struct {
	ID        string
	Title     string
	ImageURL  string
	Author    string
	AuthorURL string
	Saves     int
}

// Link returns the public page of the pin.
func (p Pin) Link() string {
	if p.ID == "" {
		return ""
	}
	return "https://www.pinterest.com/pin/" + url.PathEscape(p.ID) + "/"
}

// Option configures the Pinterest client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
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

// NewClient creates a Pinterest search client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL:   defaultBaseURL,
		userAgent: "place-resolver/1.0",
		http:      &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type searchData struct {
	Options searchOptions  `json:"options"`
	Context map[string]any `json:"context"`
}

type searchOptions struct {
	Query string `json:"query"`
	Scope string `json:"scope"`
}

type imageRef struct {
	URL string `json:"url"`
}

type searchResponse struct {
	ResourceResponse struct {
		Data struct {
			Results []pinResult `json:"results"`
		} `json:"data"`
	} `json:"resource_response"`
}

type pinResult struct {
	ID        string              `json:"id"`
	Title     string              `json:"title"`
	GridTitle string              `json:"grid_title"`
	Images    map[string]imageRef `json:"images"`
	Pinner    struct {
		Username   string `json:"username"`
		ProfileURL string `json:"profile_url"`
	} `json:"pinner"`
	AggregatedPinData struct {
		AggregatedStats struct {
			Saves int `json:"saves"`
		} `json:"aggregated_stats"`
	} `json:"aggregated_pin_data"`
}

// imageSizes are tried in order; "orig" is the uploaded original.
var imageSizes = []string{"orig", "736x", "564x"}

func (c *httpClient) Search(ctx context.Context, query string, limit int) ([]Pin, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	data, err := json.Marshal(searchData{
		Options: searchOptions{Query: query, Scope: "pins"},
		Context: map[string]any{},
	})
	if err != nil {
		return nil, eris.Wrap(err, "pinterest: encode search data")
	}
	q := url.Values{
		"source_url": {"/search/pins/?q=" + url.QueryEscape(query)},
		"data":       {string(data)},
	}
	reqURL := c.baseURL + "/resource/BaseSearchResource/get/?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "pinterest: create request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "pinterest: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, resilience.HTTPStatusError("pinterest", resp.StatusCode)
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, eris.Wrap(err, "pinterest: decode response")
	}

	results := sr.ResourceResponse.Data.Results
	pins := make([]Pin, 0, len(results))
	for _, r := range results {
		if limit > 0 && len(pins) >= limit {
			break
		}
		img := bestImageURL(r.Images)
		if img == "" {
			continue
		}
		title := r.Title
		if title == "" {
			title = r.GridTitle
		}
		pins = append(pins, Pin{
			ID:        r.ID,
			Title:     title,
			ImageURL:  img,
			Author:    r.Pinner.Username,
			AuthorURL: r.Pinner.ProfileURL,
			Saves:     r.AggregatedPinData.AggregatedStats.Saves,
		})
	}
	return pins, nil
}

// bestImageURL picks the largest rendition present, or "" when none is.
func bestImageURL(images map[string]imageRef) string {
	for _, size := range imageSizes {
		if u := images[size].URL; u != "" {
			return u
		}
	}
	return ""
}
