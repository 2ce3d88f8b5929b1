package provider

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/place-resolver/internal/model"
	"github.com/sells-group/place-resolver/internal/resilience"
	"github.com/sells-group/place-resolver/pkg/reddit"
)

const redditPageSize = 25

// RedditSource serves direct image links from photography subreddits.
type RedditSource struct {
	client     reddit.Client
	subreddits []string
}

// NewRedditSource creates a RedditSource over the given subreddits, or
// reddit.PhotoSubreddits when none are given.
func NewRedditSource(c reddit.Client, subreddits ...string) *RedditSource {
	if len(subreddits) == 0 {
		subreddits = reddit.PhotoSubreddits
	}
	return &RedditSource{client: c, subreddits: subreddits}
}

func (s *RedditSource) ID() string { return "reddit" }

func (s *RedditSource) Kinds() []model.ArtifactKind {
	return []model.ArtifactKind{model.KindImage}
}

// Fetch walks the subreddits in order until limit image posts are found. A
// rate-limit response ends the walk; other per-subreddit failures are
// skipped unless every subreddit fails.
func (s *RedditSource) Fetch(ctx context.Context, q Query) ([]model.RawItem, error) {
	var all []reddit.Post
	var lastErr error
	succeeded := 0

	for _, sub := range s.subreddits {
		posts, err := s.client.Search(ctx, sub, q.SearchKey, redditPageSize)
		if err != nil {
			if resilience.IsRateLimited(err) || ctx.Err() != nil {
				return nil, eris.Wrapf(err, "reddit: search r/%s", sub)
			}
			zap.L().Debug("reddit subreddit search failed",
				zap.String("subreddit", sub),
				zap.Error(err),
			)
			lastErr = err
			continue
		}
		succeeded++
		all = append(all, posts...)
		if len(reddit.ImagePosts(all)) >= q.Limit {
			break
		}
	}
	if succeeded == 0 && lastErr != nil {
		return nil, eris.Wrap(lastErr, "reddit: search")
	}

	posts := reddit.ImagePosts(all)
	if q.Limit > 0 && len(posts) > q.Limit {
		posts = posts[:q.Limit]
	}
	items := make([]model.RawItem, 0, len(posts))
	for _, p := range posts {
		items = append(items, model.RawItem{
			Value:     p.URL,
			Title:     p.Title,
			Author:    p.Author,
			AuthorURL: p.AuthorURL(),
			SourceURL: p.SourceURL(),
			Score:     float64(p.Score),
		})
	}
	return items, nil
}
