// Package instagram reads and answers Instagram Business comments through
// the Graph API.
package instagram

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/TobiSchelling/Supernova/internal/httpapi"
	"github.com/TobiSchelling/Supernova/internal/social"
)

// DefaultBaseURL is the Graph API root including the version.
const DefaultBaseURL = "https://graph.facebook.com/v18.0"

const (
	replyFields = "id,text,username,timestamp"
	mediaFields = "id,caption,permalink,timestamp,comments{" + replyFields + ",replies{" + replyFields + "}}"
)

// Adapter implements social.Adapter for Instagram Business accounts.
type Adapter struct {
	baseURL string
	client  *httpapi.Client
	logger  *zap.Logger
}

var _ social.Adapter = (*Adapter)(nil)

// New creates an Instagram adapter talking to baseURL.
func New(baseURL string, client *httpapi.Client, logger *zap.Logger) *Adapter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{baseURL: strings.TrimRight(baseURL, "/"), client: client, logger: logger}
}

func (a *Adapter) Platform() social.Platform { return social.Instagram }

func (a *Adapter) get(ctx context.Context, token, path string, params url.Values, out any) error {
	q := url.Values{"access_token": {token}}
	for k, vs := range params {
		q[k] = vs
	}
	return a.client.Get(ctx, a.baseURL+"/"+path, q, out)
}

type igComment struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Username  string `json:"username"`
	Timestamp string `json:"timestamp"`
	Replies   *struct {
		Data []igComment `json:"data"`
	} `json:"replies"`
}

type media struct {
	ID        string `json:"id"`
	Caption   string `json:"caption"`
	Permalink string `json:"permalink"`
	Timestamp string `json:"timestamp"`
	Comments  *struct {
		Data []igComment `json:"data"`
	} `json:"comments"`
}

// ValidateToken calls /me with the token.
func (a *Adapter) ValidateToken(ctx context.Context, creds social.Credentials) error {
	err := a.get(ctx, creds.AccessToken, "me", nil, nil)
	if err == nil {
		return nil
	}
	se, ok := social.AsError(err)
	if !ok || se.Status == 0 || se.Kind == social.KindRateLimit {
		return err
	}
	return &social.Error{
		Kind:     social.KindAuth,
		Platform: social.Instagram,
		Message:  "invalid access token: " + se.Message,
		Hint:     "generate a new access token",
		Status:   se.Status,
		Err:      err,
	}
}

// ValidateResource loads the business account.
func (a *Adapter) ValidateResource(ctx context.Context, creds social.Credentials) (social.Account, error) {
	var u struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}
	err := a.get(ctx, creds.AccessToken, creds.Identity, url.Values{"fields": {"id,username"}}, &u)
	if err != nil {
		err = social.Reword(err, social.KindNotFound, "user not found", "check your User ID")
		err = social.Reword(err, social.KindPermission, "access denied to account",
			"ensure you have the correct permissions")
		return social.Account{}, err
	}
	name := creds.Identity
	if u.Username != "" {
		name = "@" + u.Username
	}
	return social.Account{Name: name, UserID: creds.Identity, Username: u.Username}, nil
}

// Probe lists one media item to confirm the token can read media.
func (a *Adapter) Probe(ctx context.Context, creds social.Credentials) error {
	err := a.get(ctx, creds.AccessToken, creds.Identity+"/media", url.Values{"limit": {"1"}}, nil)
	return social.Reword(err, social.KindPermission, "unable to read media",
		"the token needs instagram_basic and instagram_manage_comments")
}

// FetchComments returns media comments and their replies. Replies become
// separate comments carrying the parent id.
func (a *Adapter) FetchComments(ctx context.Context, account social.Account) ([]social.RawComment, error) {
	var resp struct {
		Data []media `json:"data"`
	}
	if err := a.get(ctx, account.AccessToken, account.UserID+"/media", url.Values{"fields": {mediaFields}}, &resp); err != nil {
		return nil, err
	}

	var out []social.RawComment
	for _, m := range resp.Data {
		if m.Comments == nil {
			continue
		}
		for _, c := range m.Comments.Data {
			out = append(out, raw(m, c, "ig", social.TypeMediaComment, ""))
			if c.Replies == nil {
				continue
			}
			for _, r := range c.Replies.Data {
				out = append(out, raw(m, r, "ig_reply", social.TypeMediaReply, c.ID))
			}
		}
	}

	a.logger.Info("instagram comments fetched",
		zap.String("account", account.ID),
		zap.Int("media", len(resp.Data)),
		zap.Int("comments", len(out)))
	return out, nil
}

func raw(m media, c igComment, prefix, kind, parentID string) social.RawComment {
	author := c.Username
	if author == "" {
		author = "Unknown"
	}
	return social.RawComment{
		IDPrefix:   prefix,
		RawID:      c.ID,
		Type:       kind,
		Text:       c.Text,
		Author:     author,
		Timestamp:  c.Timestamp,
		PostID:     m.ID,
		PostURL:    m.Permalink,
		CommentURL: m.Permalink,
		PostTitle:  m.Caption,
		ParentID:   parentID,
	}
}

// Reply posts text as a reply to a comment.
func (a *Adapter) Reply(ctx context.Context, account social.Account, originalID, text string) error {
	body := map[string]string{"message": text, "access_token": account.AccessToken}
	if err := a.client.PostJSON(ctx, a.baseURL+"/"+originalID+"/replies", nil, body, nil); err != nil {
		return social.WithOp(social.Instagram, "reply", err)
	}
	return nil
}
