package provider

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/place-resolver/internal/model"
	"github.com/sells-group/place-resolver/pkg/pinterest"
)

// PinterestSource serves pin images matching the full search key. Pins are
// scored by their save count.
type PinterestSource struct {
	client pinterest.Client
}

// NewPinterestSource creates a PinterestSource.
func NewPinterestSource(c pinterest.Client) *PinterestSource {
	return &PinterestSource{client: c}
}

func (s *PinterestSource) ID() string { return "pinterest" }

func (s *PinterestSource) Kinds() []model.ArtifactKind {
	return []model.ArtifactKind{model.KindImage}
}

func (s *PinterestSource) Fetch(ctx context.Context, q Query) ([]model.RawItem, error) {
	pins, err := s.client.Search(ctx, q.SearchKey, q.Limit)
	if err != nil {
		return nil, eris.Wrap(err, "pinterest: search")
	}

	items := make([]model.RawItem, 0, len(pins))
	for _, p := range pins {
		if p.ImageURL == "" {
			continue
		}
		items = append(items, model.RawItem{
			Value:     p.ImageURL,
			Title:     p.Title,
			Author:    p.Author,
			AuthorURL: p.AuthorURL,
			SourceURL: p.Link(),
			Score:     float64(p.Saves),
		})
	}
	return items, nil
}
