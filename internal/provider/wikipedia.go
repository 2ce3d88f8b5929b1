package provider

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/place-resolver/internal/model"
	"github.com/sells-group/place-resolver/pkg/wikipedia"
)

// WikipediaSource serves lead images and intro extracts of matching articles.
type WikipediaSource struct {
	client wikipedia.Client
}

// NewWikipediaSource creates a WikipediaSource.
func NewWikipediaSource(c wikipedia.Client) *WikipediaSource {
	return &WikipediaSource{client: c}
}

func (s *WikipediaSource) ID() string { return "wikipedia" }

func (s *WikipediaSource) Kinds() []model.ArtifactKind {
	return []model.ArtifactKind{model.KindImage, model.KindText}
}

func (s *WikipediaSource) Fetch(ctx context.Context, q Query) ([]model.RawItem, error) {
	pages, err := s.client.Search(ctx, q.SearchKey, q.Limit)
	if err != nil {
		return nil, eris.Wrap(err, "wikipedia: search")
	}

	items := make([]model.RawItem, 0, len(pages))
	for _, p := range pages {
		item := model.RawItem{
			Title:     p.Title,
			SourceURL: p.URL,
			Score:     float64(len(pages) - p.Rank),
		}
		if p.HasCoord {
			item.Coordinates = &model.Coordinates{Lat: p.Lat, Lng: p.Lon}
		}
		switch q.Kind {
		case model.KindText:
			item.Value = p.Extract
		default:
			item.Value = p.ImageURL
		}
		if item.Value == "" {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}
