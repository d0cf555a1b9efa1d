package facebook

import (
	"context"
	"net/url"
	"strings"

	"github.com/TobiSchelling/Supernova/internal/httpapi"
)

// Graph issues authenticated Graph API calls on behalf of one adapter.
type Graph struct {
	BaseURL string
	client  *httpapi.Client
}

// Get fetches path (relative to BaseURL) with the token appended as
// access_token.
func (g *Graph) Get(ctx context.Context, token, path string, params url.Values, out any) error {
	q := url.Values{}
	for k, vs := range params {
		q[k] = vs
	}
	q.Set("access_token", token)
	return g.client.Get(ctx, g.url(path), q, out)
}

// Post sends body as JSON to path.
func (g *Graph) Post(ctx context.Context, path string, body, out any) error {
	return g.client.PostJSON(ctx, g.url(path), nil, body, out)
}

func (g *Graph) url(path string) string {
	return strings.TrimRight(g.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

// list is the Graph collection envelope.
type list[T any] struct {
	Data []T `json:"data"`
}

type user struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type comment struct {
	ID           string `json:"id"`
	Message      string `json:"message"`
	From         *user  `json:"from"`
	CreatedTime  string `json:"created_time"`
	PermalinkURL string `json:"permalink_url"`
}

type post struct {
	ID           string         `json:"id"`
	PermalinkURL string         `json:"permalink_url"`
	Message      string         `json:"message"`
	Comments     *list[comment] `json:"comments"`
}

type ad struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Creative *struct {
		ObjectStoryID          string `json:"object_story_id"`
		EffectiveObjectStoryID string `json:"effective_object_story_id"`
	} `json:"creative"`
}

// storyID prefers the effective story id of the ad creative.
func (a ad) storyID() string {
	if a.Creative == nil {
		return ""
	}
	if a.Creative.EffectiveObjectStoryID != "" {
		return a.Creative.EffectiveObjectStoryID
	}
	return a.Creative.ObjectStoryID
}

const (
	commentFields = "id,message,from,created_time,permalink_url"
	postFields    = "id,permalink_url,message,comments{" + commentFields + "}"
	adFields      = "id,name,creative{object_story_id,effective_object_story_id}"
)

func authorName(u *user) string {
	if u == nil || u.Name == "" {
		return "Unknown"
	}
	return u.Name
}
