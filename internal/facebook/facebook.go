// Package facebook reads and answers Facebook Page comments through the
// Graph API.
package facebook

import (
	"context"
	"net/url"

	"go.uber.org/zap"

	"github.com/TobiSchelling/Supernova/internal/httpapi"
	"github.com/TobiSchelling/Supernova/internal/social"
)

// DefaultBaseURL is the Graph API root including the version.
const DefaultBaseURL = "https://graph.facebook.com/v18.0"

// Adapter implements social.Adapter for Facebook Pages.
type Adapter struct {
	graph  *Graph
	logger *zap.Logger

	// Discovery lists the ad discovery strategies, in order.
	Discovery []AdDiscovery
}

var _ social.Adapter = (*Adapter)(nil)

// New creates a Facebook adapter talking to baseURL.
func New(baseURL string, client *httpapi.Client, logger *zap.Logger) *Adapter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		graph:     &Graph{BaseURL: baseURL, client: client},
		logger:    logger,
		Discovery: DefaultDiscovery(logger),
	}
}

func (a *Adapter) Platform() social.Platform { return social.Facebook }

// ValidateToken calls /me with the token.
func (a *Adapter) ValidateToken(ctx context.Context, creds social.Credentials) error {
	var me user
	err := a.graph.Get(ctx, creds.AccessToken, "me", nil, &me)
	if err == nil {
		return nil
	}
	se, ok := social.AsError(err)
	if !ok || se.Status == 0 || se.Kind == social.KindRateLimit {
		return err
	}
	return &social.Error{
		Kind:     social.KindAuth,
		Platform: social.Facebook,
		Message:  "invalid access token: " + se.Message,
		Hint:     "generate a new page access token",
		Status:   se.Status,
		Err:      err,
	}
}

// ValidateResource loads the page and returns its account fields.
func (a *Adapter) ValidateResource(ctx context.Context, creds social.Credentials) (social.Account, error) {
	var page user
	err := a.graph.Get(ctx, creds.AccessToken, creds.Identity, url.Values{"fields": {"id,name"}}, &page)
	if err != nil {
		err = social.Reword(err, social.KindNotFound, "page not found", "check your Page ID")
		err = social.Reword(err, social.KindPermission, "access denied to page",
			"ensure you have admin access and the correct permissions")
		return social.Account{}, err
	}
	name := page.Name
	if name == "" {
		name = creds.Identity
	}
	return social.Account{Name: name, PageID: creds.Identity, PageName: page.Name}, nil
}

// Probe reads one comment from the page feed to confirm the token scopes.
func (a *Adapter) Probe(ctx context.Context, creds social.Credentials) error {
	params := url.Values{"fields": {"comments.limit(1)"}, "limit": {"1"}}
	err := a.graph.Get(ctx, creds.AccessToken, creds.Identity+"/feed", params, nil)
	if err == nil {
		return nil
	}
	switch social.KindOf(err) {
	case social.KindAuth, social.KindRateLimit:
		return err
	}
	se, ok := social.AsError(err)
	if !ok || se.Status == 0 {
		return err
	}
	return &social.Error{
		Kind:     social.KindPermission,
		Platform: social.Facebook,
		Message:  "unable to access page comments",
		Hint:     "the token needs pages_read_engagement and pages_manage_posts",
		Status:   se.Status,
		Err:      err,
	}
}

// Reply posts text as a reply to a comment.
func (a *Adapter) Reply(ctx context.Context, account social.Account, originalID, text string) error {
	body := map[string]string{"message": text, "access_token": account.AccessToken}
	var resp struct {
		ID string `json:"id"`
	}
	if err := a.graph.Post(ctx, originalID+"/comments", body, &resp); err != nil {
		return social.WithOp(social.Facebook, "reply", err)
	}
	return nil
}
