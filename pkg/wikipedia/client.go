// Package wikipedia provides a client for the MediaWiki action API, combining
// full-text search with page extracts, coordinates and lead images in one
// request.
package wikipedia

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/place-resolver/internal/resilience"
)

const defaultBaseURL = "https://en.wikipedia.org"

// Client defines the Wikipedia search operations.
type Client interface {
	// Search returns up to limit pages matching query, in search rank order.
	Search(ctx context.Context, query string, limit int) ([]Page, error)
}

// Page is one search hit with its enrichment props.
type Page struct {
	PageID   int
	Title    string
	URL      string
	Extract  string
	ImageURL string
	Lat, Lon float64
	HasCoord bool
	Rank     int
}

// Option configures the Wikipedia client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL, e.g. another language edition.
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

// WithUserAgent sets the User-Agent header. Wikimedia asks for a contact.
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

// NewClient creates a Wikipedia client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL:   defaultBaseURL,
		userAgent: "place-resolver/1.0 (https://github.com/sells-group/place-resolver)",
		http:      &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type queryResponse struct {
	Query struct {
		Pages []struct {
			PageID      int    `json:"pageid"`
			Title       string `json:"title"`
			Index       int    `json:"index"`
			Extract     string `json:"extract"`
			FullURL     string `json:"fullurl"`
			Missing     bool   `json:"missing"`
			Coordinates []struct {
				Lat float64 `json:"lat"`
				Lon float64 `json:"lon"`
			} `json:"coordinates"`
			Original *struct {
				Source string `json:"source"`
			} `json:"original"`
		} `json:"pages"`
	} `json:"query"`
	Error *struct {
		Code string `json:"code"`
		Info string `json:"info"`
	} `json:"error"`
}

func (c *httpClient) Search(ctx context.Context, query string, limit int) ([]Page, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	q := url.Values{
		"action":        {"query"},
		"format":        {"json"},
		"formatversion": {"2"},
		"generator":     {"search"},
		"gsrsearch":     {query},
		"gsrlimit":      {strconv.Itoa(limit)},
		"prop":          {"extracts|coordinates|pageimages|info"},
		"exintro":       {"1"},
		"explaintext":   {"1"},
		"exlimit":       {"max"},
		"piprop":        {"original"},
		"inprop":        {"url"},
		"colimit":       {"max"},
	}
	reqURL := c.baseURL + "/w/api.php?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "wikipedia: create request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "wikipedia: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, resilience.HTTPStatusError("wikipedia", resp.StatusCode)
	}

	var qr queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		return nil, eris.Wrap(err, "wikipedia: decode response")
	}
	if qr.Error != nil {
		if qr.Error.Code == "ratelimited" {
			return nil, resilience.NewTransientError(eris.New("wikipedia: ratelimited"), http.StatusTooManyRequests)
		}
		return nil, eris.Errorf("wikipedia: api error %s: %s", qr.Error.Code, qr.Error.Info)
	}

	pages := make([]Page, 0, len(qr.Query.Pages))
	for _, p := range qr.Query.Pages {
		if p.Missing {
			continue
		}
		page := Page{
			PageID:  p.PageID,
			Title:   p.Title,
			URL:     p.FullURL,
			Extract: strings.TrimSpace(p.Extract),
			Rank:    p.Index,
		}
		if p.Original != nil {
			page.ImageURL = p.Original.Source
		}
		if len(p.Coordinates) > 0 {
			page.Lat, page.Lon, page.HasCoord = p.Coordinates[0].Lat, p.Coordinates[0].Lon, true
		}
		pages = append(pages, page)
	}
	// Generator results come back keyed by page id; restore search order.
	sort.SliceStable(pages, func(i, j int) bool { return pages[i].Rank < pages[j].Rank })
	return pages, nil
}
