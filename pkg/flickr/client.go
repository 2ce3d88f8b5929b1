// Package flickr provides a client for the Flickr public photo feed, which
// needs no API key.
package flickr

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

const defaultBaseURL = "https://www.flickr.com"

// Client defines the Flickr feed operations.
type Client interface {
	// Search returns up to limit photos carrying all of the given tags.
	Search(ctx context.Context, tags []string, limit int) ([]Photo, error)
}

// Photo is one feed item with its image URL rewritten to the large size.
type Photo struct {
	Title     string
	Link      string
	ImageURL  string
	Author    string
	AuthorID  string
	AuthorURL string
	Published time.Time
	Tags      []string
}

// Option configures the Flickr client.
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

// NewClient creates a Flickr feed client.
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

type feedResponse struct {
	Items []feedItem `json:"items"`
}

type feedItem struct {
	Title string `json:"title"`
	Link  string `json:"link"`
	Media struct {
		M string `json:"m"`
	} `json:"media"`
	Published string `json:"published"`
	Author    string `json:"author"`
	AuthorID  string `json:"author_id"`
	AuthorURL string `json:"author_url"`
	Tags      string `json:"tags"`
}

func (c *httpClient) Search(ctx context.Context, tags []string, limit int) ([]Photo, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	q := url.Values{
		"tags":           {strings.Join(tags, ",")},
		"tagmode":        {"all"},
		"format":         {"json"},
		"nojsoncallback": {"1"},
	}
	reqURL := c.baseURL + "/services/feeds/photos_public.gne?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "flickr: create request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "flickr: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, resilience.HTTPStatusError("flickr", resp.StatusCode)
	}

	var feed feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, eris.Wrap(err, "flickr: decode response")
	}

	photos := make([]Photo, 0, len(feed.Items))
	for _, it := range feed.Items {
		if limit > 0 && len(photos) >= limit {
			break
		}
		img := LargeImageURL(it.Media.M)
		if img == "" {
			continue
		}
		p := Photo{
			Title:     it.Title,
			Link:      it.Link,
			ImageURL:  img,
			Author:    ParseAuthor(it.Author),
			AuthorID:  it.AuthorID,
			AuthorURL: ProfileURL(it.AuthorURL, it.AuthorID),
			Tags:      strings.Fields(it.Tags),
		}
		if ts, err := time.Parse(time.RFC3339, it.Published); err == nil {
			p.Published = ts
		}
		photos = append(photos, p)
	}
	return photos, nil
}

// LargeImageURL rewrites a feed thumbnail ("_m.jpg") to the large size ("_b.jpg").
func LargeImageURL(u string) string {
	return strings.Replace(u, "_m.jpg", "_b.jpg", 1)
}

// ParseAuthor extracts the display name from the feed's
// `nobody@flickr.com ("name")` author format.
func ParseAuthor(s string) string {
	open := strings.Index(s, "(")
	closing := strings.LastIndex(s, ")")
	if open < 0 || closing <= open {
		return s
	}
	return strings.Trim(s[open+1:closing], `"`)
}

// ProfileURL returns the author's profile link: the feed's own value when
// present, else the people page for the author's NSID.
func ProfileURL(authorURL, authorID string) string {
	if authorURL != "" {
		return authorURL
	}
	if authorID == "" {
		return ""
	}
	return "https://www.flickr.com/people/" + url.PathEscape(authorID) + "/"
}
