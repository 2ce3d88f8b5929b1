package provider

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/place-resolver/internal/model"
	"github.com/sells-group/place-resolver/internal/normalize"
	"github.com/sells-group/place-resolver/pkg/flickr"
)

// FlickrSource serves public feed photos tagged with the search key parts.
type FlickrSource struct {
	client flickr.Client
}

// NewFlickrSource creates a FlickrSource.
func NewFlickrSource(c flickr.Client) *FlickrSource {
	return &FlickrSource{client: c}
}

func (s *FlickrSource) ID() string { return "flickr" }

func (s *FlickrSource) Kinds() []model.ArtifactKind {
	return []model.ArtifactKind{model.KindImage}
}

func (s *FlickrSource) Fetch(ctx context.Context, q Query) ([]model.RawItem, error) {
	tags := SearchTags(q.SearchKey)
	if len(tags) == 0 {
		return nil, nil
	}
	photos, err := s.client.Search(ctx, tags, q.Limit)
	if err != nil {
		return nil, eris.Wrap(err, "flickr: search")
	}

	items := make([]model.RawItem, 0, len(photos))
	for i, p := range photos {
		if p.ImageURL == "" {
			continue
		}
		items = append(items, model.RawItem{
			Value:     p.ImageURL,
			Title:     p.Title,
			Author:    p.Author,
			AuthorURL: p.AuthorURL,
			SourceURL: p.Link,
			Score:     float64(len(photos) - i),
		})
	}
	return items, nil
}

// SearchTags turns a comma-separated search key into feed tags. Each
// component becomes one tag with its spaces removed ("Marrakech-Safi" →
// "marrakechsafi"); a key without commas is split into words instead.
func SearchTags(searchKey string) []string {
	parts := strings.Split(searchKey, ",")
	if len(parts) == 1 {
		parts = strings.Fields(searchKey)
	}
	tags := make([]string, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		tag := strings.ReplaceAll(normalize.Fold(p), " ", "")
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	return tags
}
