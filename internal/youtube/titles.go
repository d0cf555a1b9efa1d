package youtube

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"
)

// TitleResolver maps video ids to titles using the channel's public Atom
// feed. Lookups are best effort and cached per channel.
type TitleResolver struct {
	feedURL string
	parser  *gofeed.Parser
	logger  *zap.Logger

	mu    sync.Mutex
	cache map[string]map[string]string
}

// NewTitleResolver creates a resolver. An empty feedURL disables lookups.
func NewTitleResolver(feedURL string, logger *zap.Logger) *TitleResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TitleResolver{
		feedURL: feedURL,
		parser:  gofeed.NewParser(),
		logger:  logger,
		cache:   make(map[string]map[string]string),
	}
}

// Titles returns known video titles for channelID. Failures yield an empty
// map and are not cached.
func (r *TitleResolver) Titles(ctx context.Context, channelID string) map[string]string {
	if r == nil || r.feedURL == "" || channelID == "" {
		return map[string]string{}
	}

	r.mu.Lock()
	cached, ok := r.cache[channelID]
	r.mu.Unlock()
	if ok {
		return cached
	}

	u, err := url.Parse(r.feedURL)
	if err != nil {
		r.logger.Debug("bad feed url", zap.String("url", r.feedURL), zap.Error(err))
		return map[string]string{}
	}
	q := u.Query()
	q.Set("channel_id", channelID)
	u.RawQuery = q.Encode()

	feed, err := r.parser.ParseURLWithContext(u.String(), ctx)
	if err != nil {
		r.logger.Debug("video titles unavailable", zap.String("channel", channelID), zap.Error(err))
		return map[string]string{}
	}

	titles := make(map[string]string, len(feed.Items))
	for _, item := range feed.Items {
		if id := videoID(item); id != "" {
			titles[id] = strings.TrimSpace(item.Title)
		}
	}

	r.mu.Lock()
	r.cache[channelID] = titles
	r.mu.Unlock()
	return titles
}

// videoID reads yt:videoId, falling back to the "yt:video:<id>" guid.
func videoID(item *gofeed.Item) string {
	if yt, ok := item.Extensions["yt"]; ok {
		if ids := yt["videoId"]; len(ids) > 0 && ids[0].Value != "" {
			return ids[0].Value
		}
	}
	return strings.TrimPrefix(item.GUID, "yt:video:")
}
