// Package youtube reads and answers YouTube channel comments through the
// Data API v3.
package youtube

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/TobiSchelling/Supernova/internal/httpapi"
	"github.com/TobiSchelling/Supernova/internal/social"
)

const (
	// DefaultBaseURL is the Data API root.
	DefaultBaseURL = "https://www.googleapis.com/youtube/v3"
	// DefaultFeedURL is the public per-channel Atom feed.
	DefaultFeedURL = "https://www.youtube.com/feeds/videos.xml"
	// DefaultMaxPages bounds comment thread pagination.
	DefaultMaxPages = 5

	watchURL = "https://www.youtube.com/watch"
)

// Options configures an Adapter.
type Options struct {
	BaseURL string
	// FeedURL is used for best-effort video titles. Empty disables it.
	FeedURL  string
	MaxPages int
	Logger   *zap.Logger
}

// Adapter implements social.Adapter for YouTube channels.
type Adapter struct {
	baseURL  string
	client   *httpapi.Client
	titles   *TitleResolver
	maxPages int
	logger   *zap.Logger
}

var _ social.Adapter = (*Adapter)(nil)

// New creates a YouTube adapter.
func New(client *httpapi.Client, opts Options) *Adapter {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = DefaultMaxPages
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Adapter{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		client:   client,
		titles:   NewTitleResolver(opts.FeedURL, opts.Logger),
		maxPages: opts.MaxPages,
		logger:   opts.Logger,
	}
}

func (a *Adapter) Platform() social.Platform { return social.YouTube }

type channelList struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title string `json:"title"`
		} `json:"snippet"`
	} `json:"items"`
}

type threadList struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		ID      string `json:"id"`
		Snippet struct {
			VideoID         string `json:"videoId"`
			TopLevelComment struct {
				ID      string `json:"id"`
				Snippet struct {
					TextDisplay       string `json:"textDisplay"`
					TextOriginal      string `json:"textOriginal"`
					AuthorDisplayName string `json:"authorDisplayName"`
					PublishedAt       string `json:"publishedAt"`
					VideoID           string `json:"videoId"`
				} `json:"snippet"`
			} `json:"topLevelComment"`
		} `json:"snippet"`
	} `json:"items"`
}

func (a *Adapter) get(ctx context.Context, bearer, path string, q url.Values, out any) error {
	return a.client.Do(ctx, httpapi.Request{
		Method: http.MethodGet,
		URL:    a.baseURL + "/" + path,
		Query:  q,
		Bearer: bearer,
	}, out)
}

// ValidateToken confirms the token belongs to the requested channel.
func (a *Adapter) ValidateToken(ctx context.Context, creds social.Credentials) error {
	var resp channelList
	q := url.Values{"part": {"snippet"}, "mine": {"true"}, "key": {creds.APIKey}}
	if err := a.get(ctx, creds.AccessToken, "channels", q, &resp); err != nil {
		se, ok := social.AsError(err)
		if !ok || se.Status == 0 || se.Kind == social.KindRateLimit || se.Kind == social.KindAuth {
			return err
		}
		return &social.Error{
			Kind:     social.KindAuth,
			Platform: social.YouTube,
			Message:  "authentication failed: " + se.Message,
			Hint:     "re-authenticate and paste a fresh access token",
			Status:   se.Status,
			Err:      err,
		}
	}
	if len(resp.Items) == 0 || resp.Items[0].ID != creds.Identity {
		return &social.Error{
			Kind:     social.KindPermission,
			Platform: social.YouTube,
			Message:  "the channel id does not match the authenticated account",
			Hint:     "use the token of the channel owner",
		}
	}
	return nil
}

// ValidateResource looks the channel up with the API key.
func (a *Adapter) ValidateResource(ctx context.Context, creds social.Credentials) (social.Account, error) {
	var resp channelList
	q := url.Values{"part": {"snippet"}, "id": {creds.Identity}, "key": {creds.APIKey}}
	if err := a.client.Get(ctx, a.baseURL+"/channels", q, &resp); err != nil {
		return social.Account{}, social.Reword(err, social.KindProvider,
			"invalid API key or channel id", "check the API key and the Channel ID")
	}
	if len(resp.Items) == 0 {
		return social.Account{}, &social.Error{
			Kind:     social.KindNotFound,
			Platform: social.YouTube,
			Message:  "channel not found",
			Hint:     "check your Channel ID",
		}
	}
	title := resp.Items[0].Snippet.Title
	name := title
	if name == "" {
		name = creds.Identity
	}
	return social.Account{Name: name, ChannelID: creds.Identity, ChannelTitle: title}, nil
}

// Probe reads a single comment thread.
func (a *Adapter) Probe(ctx context.Context, creds social.Credentials) error {
	q := url.Values{
		"part":                         {"snippet"},
		"allThreadsRelatedToChannelId": {creds.Identity},
		"maxResults":                   {"1"},
		"key":                          {creds.APIKey},
	}
	return commentsError(a.get(ctx, creds.AccessToken, "commentThreads", q, nil))
}

// commentsError rewords the comment-specific 403 reasons.
func commentsError(err error) error {
	if err == nil || !social.IsKind(err, social.KindPermission) {
		return err
	}
	if httpapi.Reason(err) == "commentsDisabled" {
		return social.Reword(err, social.KindPermission, "comments are disabled for this channel", "")
	}
	return social.Reword(err, social.KindPermission, "access denied to comments",
		"the token needs the youtube.force-ssl scope")
}

// FetchComments pages through the channel's comment threads.
func (a *Adapter) FetchComments(ctx context.Context, account social.Account) ([]social.RawComment, error) {
	titles := a.titles.Titles(ctx, account.ChannelID)

	var out []social.RawComment
	pageToken := ""
	for page := 0; page < a.maxPages; page++ {
		q := url.Values{
			"part":                         {"snippet"},
			"allThreadsRelatedToChannelId": {account.ChannelID},
			"maxResults":                   {"100"},
			"key":                          {account.APIKey},
		}
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}

		var resp threadList
		if err := a.get(ctx, account.AccessToken, "commentThreads", q, &resp); err != nil {
			if page > 0 {
				a.logger.Warn("stopping comment pagination early",
					zap.String("account", account.ID), zap.Int("page", page), zap.Error(err))
				break
			}
			return nil, commentsError(err)
		}

		for _, item := range resp.Items {
			top := item.Snippet.TopLevelComment
			videoID := item.Snippet.VideoID
			if videoID == "" {
				videoID = top.Snippet.VideoID
			}
			text := stripHTML(top.Snippet.TextDisplay)
			if text == "" {
				text = top.Snippet.TextOriginal
			}
			author := top.Snippet.AuthorDisplayName
			if author == "" {
				author = "Unknown"
			}

			rc := social.RawComment{
				IDPrefix:  "yt",
				RawID:     item.ID,
				Type:      social.TypeVideoComment,
				Text:      text,
				Author:    author,
				Timestamp: top.Snippet.PublishedAt,
				PostID:    videoID,
				PostTitle: titles[videoID],
			}
			if videoID != "" {
				rc.PostURL = watchURL + "?v=" + url.QueryEscape(videoID)
				rc.CommentURL = rc.PostURL + "&lc=" + url.QueryEscape(item.ID)
			}
			out = append(out, rc)
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}

	a.logger.Info("youtube comments fetched",
		zap.String("account", account.ID),
		zap.Int("comments", len(out)))
	return out, nil
}

// Reply posts text as a reply to a top-level comment.
func (a *Adapter) Reply(ctx context.Context, account social.Account, originalID, text string) error {
	body := map[string]any{
		"snippet": map[string]string{
			"parentId":     originalID,
			"textOriginal": text,
		},
	}
	err := a.client.Do(ctx, httpapi.Request{
		Method: http.MethodPost,
		URL:    a.baseURL + "/comments",
		Query:  url.Values{"part": {"snippet"}, "key": {account.APIKey}},
		Bearer: account.AccessToken,
		Body:   body,
	}, nil)
	if err != nil {
		return social.WithOp(social.YouTube, "reply", err)
	}
	return nil
}
