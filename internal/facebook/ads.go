package facebook

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/TobiSchelling/Supernova/internal/social"
)

// AdStory is a page story that carries ad or promotion comments.
type AdStory struct {
	StoryID  string
	AdID     string
	AdName   string
	PostURL  string
	Promoted bool
}

// AdDiscovery finds ad stories for a page. Strategies run in order and
// their results are merged by story id.
type AdDiscovery interface {
	Name() string
	Discover(ctx context.Context, g *Graph, account social.Account) ([]AdStory, error)
}

// DefaultDiscovery returns the strategies used when none are configured.
func DefaultDiscovery(logger *zap.Logger) []AdDiscovery {
	return []AdDiscovery{
		PageAds{},
		AdAccounts{Limit: 50, Logger: logger},
		PromotablePosts{},
	}
}

// PageAds lists ads attached directly to the page.
type PageAds struct{}

func (PageAds) Name() string { return "page_ads" }

func (PageAds) Discover(ctx context.Context, g *Graph, account social.Account) ([]AdStory, error) {
	var resp list[ad]
	if err := g.Get(ctx, account.AccessToken, account.PageID+"/ads", url.Values{"fields": {adFields}}, &resp); err != nil {
		return nil, err
	}
	var out []AdStory
	for _, a := range resp.Data {
		if id := a.storyID(); id != "" {
			out = append(out, AdStory{StoryID: id, AdID: a.ID, AdName: a.Name})
		}
	}
	return out, nil
}

// AdAccounts walks the user's ad accounts and keeps ads whose story was
// published by the page.
type AdAccounts struct {
	Limit  int
	Logger *zap.Logger
}

func (AdAccounts) Name() string { return "ad_accounts" }

func (s AdAccounts) Discover(ctx context.Context, g *Graph, account social.Account) ([]AdStory, error) {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var accounts list[user]
	if err := g.Get(ctx, account.AccessToken, "me/adaccounts", url.Values{"fields": {"id,name"}}, &accounts); err != nil {
		return nil, err
	}

	var out []AdStory
	for _, acct := range accounts.Data {
		params := url.Values{"fields": {adFields}}
		if s.Limit > 0 {
			params.Set("limit", fmt.Sprint(s.Limit))
		}
		var ads list[ad]
		if err := g.Get(ctx, account.AccessToken, acct.ID+"/ads", params, &ads); err != nil {
			logger.Debug("skipping ad account", zap.String("ad_account", acct.ID), zap.Error(err))
			continue
		}
		for _, a := range ads.Data {
			storyID := a.storyID()
			if storyID == "" {
				continue
			}
			var story struct {
				From *user `json:"from"`
			}
			if err := g.Get(ctx, account.AccessToken, storyID, url.Values{"fields": {"from"}}, &story); err != nil {
				logger.Debug("could not verify ad story", zap.String("story", storyID), zap.Error(err))
				continue
			}
			if story.From == nil || story.From.ID != account.PageID {
				continue
			}
			out = append(out, AdStory{StoryID: storyID, AdID: a.ID, AdName: a.Name})
		}
	}
	return out, nil
}

// PromotablePosts lists page posts that can be or have been promoted.
type PromotablePosts struct{}

func (PromotablePosts) Name() string { return "promotable_posts" }

func (PromotablePosts) Discover(ctx context.Context, g *Graph, account social.Account) ([]AdStory, error) {
	var resp list[post]
	if err := g.Get(ctx, account.AccessToken, account.PageID+"/promotable_posts",
		url.Values{"fields": {"id,permalink_url,message"}}, &resp); err != nil {
		return nil, err
	}
	out := make([]AdStory, 0, len(resp.Data))
	for _, p := range resp.Data {
		out = append(out, AdStory{StoryID: p.ID, PostURL: p.PermalinkURL, Promoted: true})
	}
	return out, nil
}
