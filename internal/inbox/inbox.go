// Package inbox is the service behind the CLI and the dashboard API. It
// owns the credential store, the comment store and the aggregator.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TobiSchelling/Supernova/internal/aggregate"
	"github.com/TobiSchelling/Supernova/internal/classify"
	"github.com/TobiSchelling/Supernova/internal/credentials"
	"github.com/TobiSchelling/Supernova/internal/database"
	"github.com/TobiSchelling/Supernova/internal/observability"
	"github.com/TobiSchelling/Supernova/internal/social"
)

// Options configures a Service.
type Options struct {
	Logger       *zap.Logger
	Rand         rand.Source
	Now          func() time.Time
	MaxComments  int
	GraphVersion string
	Defaults     *Settings
}

// Service implements every user-facing operation.
type Service struct {
	db       *database.DB
	creds    *credentials.Store
	comments *aggregate.Store
	agg      *aggregate.Aggregator
	logger   *zap.Logger
	now      func() time.Time
	defaults Settings

	mu       sync.Mutex
	settings Settings
	notes    []Notification
}

// New builds the service on top of db and rehydrates all stored state.
func New(db *database.DB, adapters []social.Adapter, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Rand == nil {
		opts.Rand = rand.NewSource(time.Now().UnixNano())
	}
	defaults := DefaultSettings()
	if opts.Defaults != nil {
		defaults = *opts.Defaults
	}

	creds := credentials.Load(db, opts.Logger.Named("credentials"),
		credentials.WithClock(opts.Now), credentials.WithGraphVersion(opts.GraphVersion))
	comments := aggregate.LoadStore(db, opts.MaxComments, opts.Logger.Named("comments"))
	agg := aggregate.New(creds, comments, adapters, aggregate.Options{
		Classifier: classify.New(opts.Rand),
		Logger:     opts.Logger.Named("sync"),
		Now:        opts.Now,
	})

	return &Service{
		db:       db,
		creds:    creds,
		comments: comments,
		agg:      agg,
		logger:   opts.Logger,
		now:      opts.Now,
		defaults: defaults,
		settings: loadSettings(db, defaults, opts.Logger),
	}
}

// ConnectPlatform validates creds with the platform and stores the account.
func (s *Service) ConnectPlatform(ctx context.Context, p social.Platform, creds social.Credentials) (social.ConnectResult, error) {
	adapter, ok := s.agg.Adapter(p)
	if !ok {
		return social.ConnectResult{}, social.Validationf(p, "unsupported platform")
	}
	res, err := social.Connect(ctx, adapter, s.creds, creds)
	if err != nil {
		s.logger.Warn("connect failed", zap.String("platform", string(p)), zap.Error(err))
		s.notify(LevelError, p.Title()+" connection failed", err.Error())
		return social.ConnectResult{}, err
	}
	s.logger.Info("account connected", zap.String("platform", string(p)), zap.String("account", res.AccountID))
	s.notify(LevelInfo, p.Title()+" connected", res.Message)
	return res, nil
}

// DisconnectPlatform removes one account, or every account of p when
// accountID is empty. Removing every account also drops p's comments.
func (s *Service) DisconnectPlatform(p social.Platform, accountID string) (credentials.RemoveResult, error) {
	res, err := s.creds.Remove(p, accountID)
	if err != nil {
		return res, err
	}
	if !res.Removed {
		return res, nil
	}
	if accountID == "" {
		n, err := s.comments.RemovePlatform(p)
		if err != nil {
			return res, err
		}
		s.logger.Info("removed platform comments", zap.String("platform", string(p)), zap.Int("count", n))
	}
	s.notify(LevelInfo, p.Title()+" disconnected", res.Message)
	return res, nil
}

// SyncAll fetches comments from every connected account.
func (s *Service) SyncAll(ctx context.Context) (*aggregate.SyncResult, error) {
	res, err := s.agg.SyncAll(ctx)
	if err != nil {
		s.logger.Error("sync failed", zap.Error(err))
		s.notify(LevelError, "Sync failed", err.Error())
		return nil, err
	}
	if res.Shared {
		return res, nil
	}

	for _, p := range social.Platforms {
		pr, ok := res.Platforms[p]
		if !ok {
			continue
		}
		for _, f := range pr.Failures {
			msg := f.Error
			if f.Kind == social.KindAuth {
				msg += ". The account was disconnected, reconnect it with a new token."
			}
			s.notify(LevelWarning, fmt.Sprintf("%s sync problem: %s", p.Title(), f.AccountName), msg)
		}
		if len(pr.Failures) == 0 && pr.Err != nil {
			s.notify(LevelError, p.Title()+" sync failed", pr.Error)
		}
	}

	if res.Added > 0 {
		s.notify(LevelInfo, "New comments", fmt.Sprintf("%d new comments synced", res.Added))
		var urgent int
		for _, c := range res.New {
			if c.Priority == social.PriorityHigh {
				urgent++
			}
		}
		if urgent > 0 {
			s.notify(LevelWarning, "High priority comments", fmt.Sprintf("%d high priority comments need attention", urgent))
		}
	}
	return res, nil
}

// ReplyResult reports the outcome of a reply.
type ReplyResult struct {
	Comment   social.Comment `json:"comment"`
	AccountID string         `json:"accountId"`
	Delivered bool           `json:"delivered"`
	Warning   string         `json:"warning,omitempty"`
}

// ReplyToComment posts text through the account that owns the comment.
// A provider failure still marks the comment responded and is reported
// as a warning rather than an error.
func (s *Service) ReplyToComment(ctx context.Context, commentID, text string) (ReplyResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ReplyResult{}, social.Validationf("", "reply text is required")
	}
	c, ok := s.comments.Get(commentID)
	if !ok {
		return ReplyResult{}, &social.Error{Kind: social.KindNotFound, Message: fmt.Sprintf("comment %q not found", commentID)}
	}
	adapter, ok := s.agg.Adapter(c.Platform)
	if !ok {
		return ReplyResult{}, social.Validationf(c.Platform, "unsupported platform")
	}
	acct, err := s.replyAccount(c)
	if err != nil {
		s.notify(LevelError, "Reply failed", err.Error())
		return ReplyResult{}, err
	}

	p := string(c.Platform)
	sendErr := adapter.Reply(ctx, acct, c.OriginalID, text)

	entry := database.ReplyLog{
		ID:         uuid.NewString(),
		CommentID:  c.ID,
		Platform:   p,
		AccountID:  &acct.ID,
		OriginalID: c.OriginalID,
		Text:       text,
		Status:     database.ReplySent,
	}
	if sendErr != nil {
		msg := sendErr.Error()
		entry.Status = database.ReplyFailed
		entry.Error = &msg
	}
	if err := s.db.InsertReply(entry); err != nil {
		s.logger.Error("recording reply", zap.String("comment", c.ID), zap.Error(err))
	}

	updated, err := s.comments.MarkResponded(c.ID)
	if err != nil {
		return ReplyResult{}, err
	}
	res := ReplyResult{Comment: updated, AccountID: acct.ID, Delivered: sendErr == nil}

	if sendErr != nil {
		observability.Replies.WithLabelValues(p, "failed").Inc()
		if social.IsKind(sendErr, social.KindAuth) {
			if _, err := s.creds.MarkDisconnected(c.Platform, acct.ID, acct.AccessToken); err != nil {
				s.logger.Error("saving account state", zap.String("account", acct.ID), zap.Error(err))
			}
		}
		s.logger.Warn("reply not delivered",
			zap.String("platform", p), zap.String("comment", c.ID), zap.String("account", acct.ID), zap.Error(sendErr))
		res.Warning = fmt.Sprintf("Reply could not be delivered (%v). The comment was marked as responded.", sendErr)
		s.notify(LevelWarning, "Reply not delivered", res.Warning)
		return res, nil
	}

	observability.Replies.WithLabelValues(p, "sent").Inc()
	s.logger.Info("reply sent", zap.String("platform", p), zap.String("comment", c.ID), zap.String("account", acct.ID))
	return res, nil
}

// replyAccount picks the comment's own account when it is still connected,
// otherwise the first connected account of the platform.
func (s *Service) replyAccount(c social.Comment) (social.Account, error) {
	if c.AccountID != "" {
		if a, ok := s.creds.Account(c.Platform, c.AccountID); ok && a.Connected {
			return a, nil
		}
	}
	accounts := s.creds.ConnectedAccounts(c.Platform)
	if len(accounts) == 0 {
		return social.Account{}, social.NotConnected(c.Platform)
	}
	s.logger.Warn("comment account unavailable, replying through another account",
		zap.String("comment", c.ID),
		zap.String("wanted", c.AccountID),
		zap.String("account", accounts[0].ID))
	return accounts[0], nil
}

// MarkHandled marks a comment responded without replying.
func (s *Service) MarkHandled(commentID string) (social.Comment, error) {
	return s.comments.MarkResponded(commentID)
}

// Status returns the platform summary without secrets.
func (s *Service) Status(p social.Platform) credentials.Status {
	st := s.creds.Status(p)
	st.Accounts = redact(st.Accounts)
	st.ConnectedAccounts = redact(st.ConnectedAccounts)
	return st
}

func redact(accounts []social.Account) []social.Account {
	out := make([]social.Account, len(accounts))
	for i, a := range accounts {
		out[i] = a.Redacted()
	}
	return out
}

// Snapshot is the exported state of the inbox. It never holds secrets.
type Snapshot struct {
	ID         string                                 `json:"id"`
	ExportedAt time.Time                              `json:"exportedAt"`
	Comments   []social.Comment                       `json:"comments"`
	Platforms  map[social.Platform]credentials.Status `json:"platforms"`
	Settings   Settings                               `json:"settings"`
	Stats      aggregate.Stats                        `json:"stats"`
}

// ExportSnapshot returns comments, platform status and settings.
func (s *Service) ExportSnapshot() Snapshot {
	platforms := make(map[social.Platform]credentials.Status, len(social.Platforms))
	for _, p := range social.Platforms {
		platforms[p] = s.Status(p)
	}
	return Snapshot{
		ID:         uuid.NewString(),
		ExportedAt: s.now().UTC(),
		Comments:   s.comments.All(),
		Platforms:  platforms,
		Settings:   s.Settings(),
		Stats:      s.comments.Stats(),
	}
}

// ClearAllState wipes accounts, comments, settings and the reply log.
func (s *Service) ClearAllState() error {
	var errs []error
	errs = append(errs, s.creds.Clear(), s.comments.Clear(), s.db.DeleteValue(SettingsKey), s.db.ClearReplies())

	s.mu.Lock()
	s.settings = s.defaults
	s.notes = nil
	s.mu.Unlock()

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("clearing state: %w", err)
	}
	s.logger.Info("all local state cleared")
	return nil
}

// Comments lists stored comments matching f.
func (s *Service) Comments(f aggregate.Filter) []social.Comment {
	return s.comments.List(f)
}

// Comment returns one stored comment.
func (s *Service) Comment(id string) (social.Comment, bool) {
	return s.comments.Get(id)
}

// Stats summarizes the stored comments.
func (s *Service) Stats() aggregate.Stats {
	return s.comments.Stats()
}

// Replies returns the reply log, newest first.
func (s *Service) Replies(commentID string, limit int) ([]database.ReplyLog, error) {
	return s.db.GetReplies(commentID, limit)
}

// ConnectedPlatforms lists platforms with at least one connected account.
func (s *Service) ConnectedPlatforms() []social.Platform {
	return s.creds.ConnectedPlatforms()
}

// Settings returns the current settings.
func (s *Service) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// UpdateSettings validates and persists new settings.
func (s *Service) UpdateSettings(next Settings) (Settings, error) {
	if err := next.Validate(); err != nil {
		return s.Settings(), err
	}
	raw, err := encodeSettings(next)
	if err != nil {
		return s.Settings(), err
	}
	if err := s.db.SetValue(SettingsKey, raw); err != nil {
		return s.Settings(), err
	}
	s.mu.Lock()
	s.settings = next
	s.mu.Unlock()
	return next, nil
}
