package database

// Reply statuses stored in reply_log.
const (
	ReplySent   = "sent"
	ReplyFailed = "failed"
)

// ReplyLog records one attempt to post a reply to a provider.
type ReplyLog struct {
	ID         string  `json:"id"`
	CommentID  string  `json:"commentId"`
	Platform   string  `json:"platform"`
	AccountID  *string `json:"accountId"`
	OriginalID string  `json:"originalId"`
	Text       string  `json:"text"`
	Status     string  `json:"status"`
	Error      *string `json:"error,omitempty"`
	CreatedAt  *string `json:"createdAt"`
}

// Stats contains aggregate database statistics.
type Stats struct {
	StoredKeys    int
	RepliesSent   int
	RepliesFailed int
}
