// Package reddit provides a client for Reddit's public subreddit search JSON
// endpoint.
package reddit

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

const defaultBaseURL = "https://www.reddit.com"

// PhotoSubreddits are searched for image artifacts, in order.
var PhotoSubreddits = []string{
	"itookapicture",
	"travelphotography",
	"earthporn",
	"cityporn",
	"villageporn",
	"architectureporn",
}

// Client defines the Reddit search operations.
type Client interface {
	// Search returns the top posts matching query within one subreddit.
	Search(ctx context.Context, subreddit, query string, limit int) ([]Post, error)
}

// Post is one search hit.
type Post struct {
	Title      string
	URL        string
	Author     string
	Permalink  string
	Subreddit  string
	Score      int
	CreatedUTC time.Time
}

// SourceURL returns the absolute URL of the post's comment page.
func (p Post) SourceURL() string {
	if p.Permalink == "" {
		return ""
	}
	return "https://reddit.com" + p.Permalink
}

// AuthorURL returns the author's profile link, or "" for deleted accounts.
func (p Post) AuthorURL() string {
	if p.Author == "" || p.Author == "[deleted]" {
		return ""
	}
	return "https://reddit.com/u/" + p.Author
}

// Option configures the Reddit client.
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

// WithUserAgent sets the User-Agent header. Reddit rejects generic agents.
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

// NewClient creates a Reddit search client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL:   defaultBaseURL,
		userAgent: "Mozilla/5.0 (compatible; place-resolver/1.0)",
		http:      &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type listing struct {
	Data struct {
		Children []struct {
			Data struct {
				Title      string  `json:"title"`
				URL        string  `json:"url"`
				Author     string  `json:"author"`
				Permalink  string  `json:"permalink"`
				Subreddit  string  `json:"subreddit"`
				Score      int     `json:"score"`
				CreatedUTC float64 `json:"created_utc"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

func (c *httpClient) Search(ctx context.Context, subreddit, query string, limit int) ([]Post, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	q := url.Values{
		"q":           {query},
		"restrict_sr": {"1"},
		"sort":        {"top"},
		"limit":       {strconv.Itoa(limit)},
	}
	reqURL := c.baseURL + "/r/" + url.PathEscape(subreddit) + "/search.json?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "reddit: create request")
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "reddit: r/%s request failed", subreddit)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, resilience.HTTPStatusError("reddit", resp.StatusCode)
	}

	var l listing
	if err := json.NewDecoder(resp.Body).Decode(&l); err != nil {
		return nil, eris.Wrapf(err, "reddit: r/%s decode response", subreddit)
	}

	posts := make([]Post, 0, len(l.Data.Children))
	for _, ch := range l.Data.Children {
		d := ch.Data
		posts = append(posts, Post{
			Title:      d.Title,
			URL:        d.URL,
			Author:     d.Author,
			Permalink:  d.Permalink,
			Subreddit:  d.Subreddit,
			Score:      d.Score,
			CreatedUTC: time.Unix(int64(d.CreatedUTC), 0).UTC(),
		})
	}
	return posts, nil
}

var imageSuffixes = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}

var imageHosts = []string{"i.redd.it", "i.imgur.com"}

var excludedTitleWords = []string{"meme", "funny", "joke", "selfie", "my face"}

// IsImageURL reports whether u points directly at an image.
func IsImageURL(u string) bool {
	lower := strings.ToLower(u)
	for _, s := range imageSuffixes {
		if strings.HasSuffix(lower, s) {
			return true
		}
	}
	for _, h := range imageHosts {
		if strings.Contains(lower, h) {
			return true
		}
	}
	return false
}

// ExcludedTitle reports whether a post title marks it as off-topic
// (memes, selfies).
func ExcludedTitle(title string) bool {
	lower := strings.ToLower(title)
	for _, w := range excludedTitleWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// ImagePosts keeps direct-image, on-topic posts and orders them by score,
// highest first. The input is not modified.
func ImagePosts(posts []Post) []Post {
	out := make([]Post, 0, len(posts))
	for _, p := range posts {
		if IsImageURL(p.URL) && !ExcludedTitle(p.Title) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
