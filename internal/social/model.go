package social

import (
	"fmt"
	"strings"
	"time"
)

// Platform identifies one of the supported social networks.
type Platform string

const (
	Facebook  Platform = "facebook"
	Instagram Platform = "instagram"
	YouTube   Platform = "youtube"
)

// Platforms lists every supported platform in sync order.
var Platforms = []Platform{Facebook, Instagram, YouTube}

// ParsePlatform converts user input into a Platform.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case Facebook, Instagram, YouTube:
		return p, nil
	}
	return "", &Error{Kind: KindValidation, Op: "parse platform", Message: fmt.Sprintf("unknown platform %q", s)}
}

// Prefix is the short tag used for account and comment ids.
func (p Platform) Prefix() string {
	switch p {
	case Facebook:
		return "fb"
	case Instagram:
		return "ig"
	case YouTube:
		return "yt"
	}
	return string(p)
}

// Title returns the display name of the platform.
func (p Platform) Title() string {
	switch p {
	case Facebook:
		return "Facebook"
	case Instagram:
		return "Instagram"
	case YouTube:
		return "YouTube"
	}
	return string(p)
}

// Account is one authenticated identity on one platform.
type Account struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Connected bool   `json:"connected"`

	PageID       string `json:"pageId,omitempty"`
	PageName     string `json:"pageName,omitempty"`
	UserID       string `json:"userId,omitempty"`
	Username     string `json:"username,omitempty"`
	ChannelID    string `json:"channelId,omitempty"`
	ChannelTitle string `json:"channelTitle,omitempty"`

	AccessToken string `json:"accessToken"`
	APIKey      string `json:"apiKey,omitempty"`

	LastSync        *time.Time `json:"lastSync"`
	LastSyncAttempt *time.Time `json:"lastSyncAttempt"`
}

// IdentityKey returns the platform-specific identity used to match
// reconnects of the same page, business account or channel.
func (a Account) IdentityKey(p Platform) string {
	switch p {
	case Facebook:
		return a.PageID
	case Instagram:
		return a.UserID
	case YouTube:
		return a.ChannelID
	}
	return ""
}

// Redacted returns a copy without secrets, suitable for export.
func (a Account) Redacted() Account {
	a.AccessToken = ""
	a.APIKey = ""
	return a
}

// Category is the heuristic topic bucket of a comment.
type Category string

const (
	CategoryRefunds   Category = "refunds"
	CategoryQuestions Category = "questions"
	CategoryFeedback  Category = "feedback"
	CategoryGeneral   Category = "general"
)

// Priority is the heuristic urgency of a comment.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Comment subtypes.
const (
	TypePostComment     = "post_comment"
	TypeVisitorComment  = "visitor_comment"
	TypeAdComment       = "ad_comment"
	TypePromotedComment = "promoted_post_comment"
	TypeMediaComment    = "media_comment"
	TypeMediaReply      = "media_reply"
	TypeVideoComment    = "video_comment"
)

// Comment is the unified record every platform is normalized into.
type Comment struct {
	ID          string    `json:"id"`
	Platform    Platform  `json:"platform"`
	Text        string    `json:"text"`
	Author      string    `json:"author"`
	Sentiment   float64   `json:"sentiment"`
	Category    Category  `json:"category"`
	Priority    Priority  `json:"priority"`
	Timestamp   time.Time `json:"timestamp"`
	Responded   bool      `json:"responded"`
	OriginalID  string    `json:"originalId"`
	Type        string    `json:"type"`
	AccountID   string    `json:"accountId"`
	AccountName string    `json:"accountName"`

	PostID     string `json:"postId,omitempty"`
	PostURL    string `json:"postUrl,omitempty"`
	CommentURL string `json:"commentUrl,omitempty"`
	PostTitle  string `json:"postTitle,omitempty"`
	ParentID   string `json:"parentId,omitempty"`
	AdID       string `json:"adId,omitempty"`
	AdName     string `json:"adName,omitempty"`
}

// RawComment is what an adapter extracts from a provider response before
// classification and account attribution.
type RawComment struct {
	// IDPrefix is prepended to RawID to form the stable comment id,
	// e.g. "fb_post".
	IDPrefix  string
	RawID     string
	Type      string
	Text      string
	Author    string
	Timestamp string

	PostID     string
	PostURL    string
	CommentURL string
	PostTitle  string
	ParentID   string
	AdID       string
	AdName     string
}

// CommentID derives the stable unified id for a raw comment.
func (r RawComment) CommentID() string {
	return r.IDPrefix + "_" + r.RawID
}
