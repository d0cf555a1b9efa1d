package database

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

const tableReplies = "reply_log"

func replyColumns() []string {
	return []string{"id", "comment_id", "platform", "account_id", "original_id", "reply_text", "status", "error", "created_at"}
}

// InsertReply records a reply attempt.
func (db *DB) InsertReply(r ReplyLog) error {
	_, err := sq.Insert(tableReplies).
		Columns("id", "comment_id", "platform", "account_id", "original_id", "reply_text", "status", "error").
		Values(r.ID, r.CommentID, r.Platform, r.AccountID, r.OriginalID, r.Text, r.Status, r.Error).
		RunWith(db.conn).
		Exec()
	if err != nil {
		return fmt.Errorf("recording reply %s: %w", r.ID, err)
	}
	return nil
}

// GetReplies returns reply attempts, newest first. An empty commentID
// returns attempts for every comment.
func (db *DB) GetReplies(commentID string, limit int) ([]ReplyLog, error) {
	q := sq.Select(replyColumns()...).
		From(tableReplies).
		OrderBy("created_at DESC", "rowid DESC")
	if commentID != "" {
		q = q.Where(sq.Eq{"comment_id": commentID})
	}
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	rows, err := q.RunWith(db.conn).Query()
	if err != nil {
		return nil, fmt.Errorf("querying replies: %w", err)
	}
	defer rows.Close()

	out := []ReplyLog{}
	for rows.Next() {
		var r ReplyLog
		if err := rows.Scan(&r.ID, &r.CommentID, &r.Platform, &r.AccountID, &r.OriginalID,
			&r.Text, &r.Status, &r.Error, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning reply: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating replies: %w", err)
	}
	return out, nil
}

// ClearReplies removes the whole reply log.
func (db *DB) ClearReplies() error {
	if _, err := sq.Delete(tableReplies).RunWith(db.conn).Exec(); err != nil {
		return fmt.Errorf("clearing replies: %w", err)
	}
	return nil
}

// GetStats returns aggregate counts over the local store.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}
	if err := sq.Select("COUNT(*)").From(tableKV).RunWith(db.conn).QueryRow().Scan(&s.StoredKeys); err != nil {
		return nil, fmt.Errorf("counting stored keys: %w", err)
	}
	err := sq.Select(
		"COALESCE(SUM(CASE WHEN status = 'sent' THEN 1 ELSE 0 END), 0)",
		"COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)",
	).From(tableReplies).RunWith(db.conn).QueryRow().Scan(&s.RepliesSent, &s.RepliesFailed)
	if err != nil {
		return nil, fmt.Errorf("counting replies: %w", err)
	}
	return s, nil
}
