// Package aggregate runs syncs across every connected account and merges
// the results into the comment store.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/TobiSchelling/Supernova/internal/classify"
	"github.com/TobiSchelling/Supernova/internal/credentials"
	"github.com/TobiSchelling/Supernova/internal/observability"
	"github.com/TobiSchelling/Supernova/internal/social"
)

// AccountFailure records one account whose fetch failed.
type AccountFailure struct {
	AccountID   string      `json:"accountId"`
	AccountName string      `json:"accountName"`
	Kind        social.Kind `json:"kind"`
	Error       string      `json:"error"`
}

// PlatformResult holds the outcome for one platform.
type PlatformResult struct {
	Accounts int              `json:"accounts"`
	Fetched  int              `json:"fetched"`
	Added    int              `json:"added"`
	Failures []AccountFailure `json:"failures,omitempty"`
	Err      error            `json:"-"`
	Error    string           `json:"error,omitempty"`
}

func (r *PlatformResult) fail(err error) {
	r.Err = err
	r.Error = err.Error()
}

// SyncResult holds the outcome of a sync run.
type SyncResult struct {
	Added     int                                 `json:"added"`
	Fetched   int                                 `json:"fetched"`
	Platforms map[social.Platform]*PlatformResult `json:"platforms"`
	StartedAt time.Time                           `json:"startedAt"`
	Duration  time.Duration                       `json:"duration"`
	// Shared is set when the run was joined rather than started.
	Shared bool `json:"shared"`
	// New lists the comments added by this run.
	New []social.Comment `json:"-"`
}

// Options configures an Aggregator.
type Options struct {
	Classifier *classify.Classifier
	Logger     *zap.Logger
	Now        func() time.Time
}

// Aggregator orchestrates fetches from all connected accounts.
type Aggregator struct {
	adapters   map[social.Platform]social.Adapter
	creds      *credentials.Store
	store      *Store
	classifier *classify.Classifier
	logger     *zap.Logger
	now        func() time.Time
	group      singleflight.Group
}

// New creates an aggregator over the given adapters.
func New(creds *credentials.Store, store *Store, adapters []social.Adapter, opts Options) *Aggregator {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Classifier == nil {
		opts.Classifier = classify.New(rand.NewSource(time.Now().UnixNano()))
	}
	byPlatform := make(map[social.Platform]social.Adapter, len(adapters))
	for _, a := range adapters {
		byPlatform[a.Platform()] = a
	}
	return &Aggregator{
		adapters:   byPlatform,
		creds:      creds,
		store:      store,
		classifier: opts.Classifier,
		logger:     opts.Logger,
		now:        opts.Now,
	}
}

// Adapter returns the adapter registered for p.
func (a *Aggregator) Adapter(p social.Platform) (social.Adapter, bool) {
	ad, ok := a.adapters[p]
	return ad, ok
}

// SyncAll fetches every connected account and merges the results.
// Concurrent callers share a single run.
func (a *Aggregator) SyncAll(ctx context.Context) (*SyncResult, error) {
	v, err, shared := a.group.Do("sync", func() (any, error) {
		return a.syncAll(ctx)
	})
	if err != nil {
		observability.SyncRuns.WithLabelValues("error").Inc()
		return nil, err
	}
	res := *v.(*SyncResult)
	res.Shared = shared
	if shared {
		observability.SyncRuns.WithLabelValues("shared").Inc()
	}
	return &res, nil
}

func (a *Aggregator) syncAll(ctx context.Context) (*SyncResult, error) {
	start := a.now()
	res := &SyncResult{StartedAt: start, Platforms: make(map[social.Platform]*PlatformResult)}

	var fresh []social.Comment
	for _, p := range a.creds.ConnectedPlatforms() {
		adapter, ok := a.adapters[p]
		if !ok {
			pr := &PlatformResult{}
			pr.fail(fmt.Errorf("no adapter registered for %s", p))
			res.Platforms[p] = pr
			a.logger.Warn("skipping platform without adapter", zap.String("platform", string(p)))
			continue
		}
		comments, pr := a.syncPlatform(ctx, adapter)
		res.Platforms[p] = pr
		res.Fetched += pr.Fetched
		fresh = append(fresh, comments...)
	}

	added := a.store.Merge(fresh)
	for _, c := range added {
		if pr, ok := res.Platforms[c.Platform]; ok {
			pr.Added++
		}
		observability.CommentsAdded.WithLabelValues(string(c.Platform)).Inc()
	}
	res.Added = len(added)
	res.New = added

	if err := a.store.Save(); err != nil {
		return nil, err
	}

	res.Duration = a.now().Sub(start)
	observability.SyncRuns.WithLabelValues("ok").Inc()
	observability.SyncDuration.Observe(res.Duration.Seconds())

	a.logger.Info("sync complete",
		zap.Int("fetched", res.Fetched),
		zap.Int("added", res.Added),
		zap.Int("platforms", len(res.Platforms)),
		zap.Duration("duration", res.Duration))
	return res, nil
}

// syncPlatform fetches each connected account of one platform in turn and
// applies the failure policy. A panic is contained to the platform.
func (a *Aggregator) syncPlatform(ctx context.Context, adapter social.Adapter) (out []social.Comment, pr *PlatformResult) {
	p := adapter.Platform()
	pr = &PlatformResult{}
	log := a.logger.With(zap.String("platform", string(p)))

	defer func() {
		if r := recover(); r != nil {
			log.Error("platform sync panicked", zap.Any("panic", r))
			pr.fail(fmt.Errorf("%s sync panicked: %v", p, r))
		}
	}()

	var errs []error
	for _, acct := range a.creds.ConnectedAccounts(p) {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		pr.Accounts++

		raw, err := adapter.FetchComments(ctx, acct)
		now := a.now()
		if err != nil {
			kind := social.KindOf(err)
			log.Warn("account fetch failed",
				zap.String("account", acct.ID),
				zap.String("kind", string(kind)),
				zap.Error(err))
			observability.AccountFailures.WithLabelValues(string(p), string(kind)).Inc()
			pr.Failures = append(pr.Failures, AccountFailure{
				AccountID:   acct.ID,
				AccountName: acct.Name,
				Kind:        kind,
				Error:       err.Error(),
			})
			errs = append(errs, err)

			if uerr := a.creds.MarkAttempted(p, acct.ID, now); uerr != nil {
				log.Error("saving account state", zap.String("account", acct.ID), zap.Error(uerr))
			}
			if kind == social.KindAuth {
				raw = nil
				disconnected, uerr := a.creds.MarkDisconnected(p, acct.ID, acct.AccessToken)
				if uerr != nil {
					log.Error("saving account state", zap.String("account", acct.ID), zap.Error(uerr))
				} else if !disconnected {
					log.Info("account reconnected during sync, keeping it connected", zap.String("account", acct.ID))
				}
			}
		} else if uerr := a.creds.MarkSynced(p, acct.ID, now); uerr != nil {
			log.Error("saving account state", zap.String("account", acct.ID), zap.Error(uerr))
		}

		for _, r := range raw {
			out = append(out, a.normalize(p, acct, r, now))
		}
		pr.Fetched += len(raw)
	}

	if len(errs) > 0 {
		pr.fail(errors.Join(errs...))
	}
	return out, pr
}

// normalize turns a raw comment into a classified, attributed Comment.
func (a *Aggregator) normalize(p social.Platform, acct social.Account, r social.RawComment, now time.Time) social.Comment {
	cls := a.classifier.Classify(r.Text)
	return social.Comment{
		ID:          r.CommentID(),
		Platform:    p,
		Text:        r.Text,
		Author:      r.Author,
		Sentiment:   cls.Sentiment,
		Category:    cls.Category,
		Priority:    cls.Priority,
		Timestamp:   ParseTimestamp(r.Timestamp, now),
		OriginalID:  r.RawID,
		Type:        r.Type,
		AccountID:   acct.ID,
		AccountName: acct.Name,
		PostID:      r.PostID,
		PostURL:     r.PostURL,
		CommentURL:  r.CommentURL,
		PostTitle:   r.PostTitle,
		ParentID:    r.ParentID,
		AdID:        r.AdID,
		AdName:      r.AdName,
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05",
}

// ParseTimestamp reads a provider timestamp, falling back to fallback when
// the value is missing or unreadable.
func ParseTimestamp(s string, fallback time.Time) time.Time {
	if s == "" {
		return fallback.UTC()
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return fallback.UTC()
}
