package facebook

import (
	"context"
	"net/url"

	"go.uber.org/zap"

	"github.com/TobiSchelling/Supernova/internal/social"
)

// postSource is a page edge whose posts embed their comments.
type postSource struct {
	edge     string
	idPrefix string
	kind     string
}

var (
	feedSource    = postSource{edge: "feed", idPrefix: "fb_post", kind: social.TypePostComment}
	visitorSource = postSource{edge: "visitor_posts", idPrefix: "fb_visitor", kind: social.TypeVisitorComment}
)

// FetchComments gathers page post comments, visitor post comments and ad
// comments. Each source fails independently; only an auth failure on the
// page feed aborts the account.
func (a *Adapter) FetchComments(ctx context.Context, account social.Account) ([]social.RawComment, error) {
	log := a.logger.With(zap.String("platform", "facebook"), zap.String("account", account.ID))

	var out []social.RawComment

	feed, err := a.postComments(ctx, account, feedSource)
	if err != nil {
		if social.IsKind(err, social.KindAuth) {
			return nil, err
		}
		log.Warn("page feed unavailable", zap.String("source", feedSource.edge), zap.Error(err))
	}
	out = append(out, feed...)

	visitor, err := a.postComments(ctx, account, visitorSource)
	if err != nil {
		log.Warn("visitor posts unavailable", zap.String("source", visitorSource.edge), zap.Error(err))
	}
	out = append(out, visitor...)

	stories := a.discoverAds(ctx, account, log)
	var adCount int
	for _, story := range stories {
		comments, err := a.storyComments(ctx, account, story)
		if err != nil {
			log.Debug("could not fetch ad comments", zap.String("story", story.StoryID), zap.Error(err))
			continue
		}
		adCount += len(comments)
		out = append(out, comments...)
	}

	log.Info("facebook comments fetched",
		zap.Int("post", len(feed)),
		zap.Int("visitor", len(visitor)),
		zap.Int("ad", adCount))
	return out, nil
}

func (a *Adapter) postComments(ctx context.Context, account social.Account, src postSource) ([]social.RawComment, error) {
	var resp list[post]
	if err := a.graph.Get(ctx, account.AccessToken, account.PageID+"/"+src.edge, url.Values{"fields": {postFields}}, &resp); err != nil {
		return nil, err
	}

	var out []social.RawComment
	for _, p := range resp.Data {
		if p.Comments == nil {
			continue
		}
		for _, c := range p.Comments.Data {
			out = append(out, social.RawComment{
				IDPrefix:   src.idPrefix,
				RawID:      c.ID,
				Type:       src.kind,
				Text:       c.Message,
				Author:     authorName(c.From),
				Timestamp:  c.CreatedTime,
				PostID:     p.ID,
				PostURL:    p.PermalinkURL,
				CommentURL: c.PermalinkURL,
			})
		}
	}
	return out, nil
}

// discoverAds runs every strategy and merges their stories by id, keeping
// the first occurrence.
func (a *Adapter) discoverAds(ctx context.Context, account social.Account, log *zap.Logger) []AdStory {
	seen := make(map[string]bool)
	var out []AdStory
	for _, d := range a.Discovery {
		stories, err := d.Discover(ctx, a.graph, account)
		if err != nil {
			log.Debug("ad discovery failed", zap.String("source", d.Name()), zap.Error(err))
			continue
		}
		for _, s := range stories {
			if s.StoryID == "" || seen[s.StoryID] {
				continue
			}
			seen[s.StoryID] = true
			out = append(out, s)
		}
	}
	return out
}

func (a *Adapter) storyComments(ctx context.Context, account social.Account, story AdStory) ([]social.RawComment, error) {
	var resp list[comment]
	if err := a.graph.Get(ctx, account.AccessToken, story.StoryID+"/comments", url.Values{"fields": {commentFields}}, &resp); err != nil {
		return nil, err
	}

	prefix, kind := "fb_ad", social.TypeAdComment
	if story.Promoted {
		prefix, kind = "fb_promoted", social.TypePromotedComment
	}

	out := make([]social.RawComment, 0, len(resp.Data))
	for _, c := range resp.Data {
		out = append(out, social.RawComment{
			IDPrefix:   prefix,
			RawID:      c.ID,
			Type:       kind,
			Text:       c.Message,
			Author:     authorName(c.From),
			Timestamp:  c.CreatedTime,
			PostID:     story.StoryID,
			PostURL:    story.PostURL,
			CommentURL: c.PermalinkURL,
			AdID:       story.AdID,
			AdName:     story.AdName,
		})
	}
	return out, nil
}
