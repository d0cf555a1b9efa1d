package inbox

import (
	"context"
	"encoding/json"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/Supernova/internal/aggregate"
	"github.com/TobiSchelling/Supernova/internal/database"
	"github.com/TobiSchelling/Supernova/internal/social"
)

type reply struct {
	accountID  string
	originalID string
	text       string
}

type fakeAdapter struct {
	platform social.Platform
	raw      []social.RawComment
	replyErr error

	mu      sync.Mutex
	replies []reply
}

func (f *fakeAdapter) Platform() social.Platform { return f.platform }

func (f *fakeAdapter) ValidateToken(_ context.Context, c social.Credentials) error {
	if c.AccessToken == "bad" {
		return &social.Error{Kind: social.KindAuth, Platform: f.platform, Message: "invalid access token", Status: 401}
	}
	return nil
}

func (f *fakeAdapter) ValidateResource(_ context.Context, c social.Credentials) (social.Account, error) {
	switch f.platform {
	case social.Facebook:
		return social.Account{Name: "Page " + c.Identity, PageID: c.Identity, PageName: "Page " + c.Identity}, nil
	case social.YouTube:
		return social.Account{Name: "Channel", ChannelID: c.Identity, ChannelTitle: "Channel"}, nil
	}
	return social.Account{Name: "@user", UserID: c.Identity, Username: "user"}, nil
}

func (f *fakeAdapter) Probe(context.Context, social.Credentials) error { return nil }

func (f *fakeAdapter) FetchComments(context.Context, social.Account) ([]social.RawComment, error) {
	return f.raw, nil
}

func (f *fakeAdapter) Reply(_ context.Context, acct social.Account, originalID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, reply{acct.ID, originalID, text})
	return f.replyErr
}

type fixture struct {
	db  *database.DB
	svc *Service
	fb  *fakeAdapter
	yt  *fakeAdapter
	now time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		db:  db,
		fb:  &fakeAdapter{platform: social.Facebook},
		yt:  &fakeAdapter{platform: social.YouTube},
		now: time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC),
	}
	f.svc = f.open()
	return f
}

// open builds a fresh service over the same database.
func (f *fixture) open() *Service {
	return New(f.db, []social.Adapter{f.fb, f.yt}, Options{
		Rand: rand.NewSource(1),
		Now: func() time.Time {
			f.now = f.now.Add(time.Millisecond)
			return f.now
		},
	})
}

func (f *fixture) connectFacebook(t *testing.T, pageID string) string {
	t.Helper()
	res, err := f.svc.ConnectPlatform(context.Background(), social.Facebook,
		social.Credentials{AccessToken: "tok-" + pageID, Identity: pageID})
	require.NoError(t, err)
	return res.AccountID
}

func annComment() []social.RawComment {
	return []social.RawComment{{IDPrefix: "fb_post", RawID: "c1", Type: social.TypePostComment, Text: "I love this!", Author: "Ann"}}
}

func TestConnectAndSyncScenario(t *testing.T) {
	f := newFixture(t)
	id := f.connectFacebook(t, "123456")

	st := f.svc.Status(social.Facebook)
	require.True(t, st.Connected)
	require.Len(t, st.Accounts, 1)
	assert.Equal(t, "123456", st.Accounts[0].PageID)
	assert.Empty(t, st.Accounts[0].AccessToken, "status never exposes tokens")

	f.fb.raw = annComment()
	res, err := f.svc.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)

	c, ok := f.svc.Comment("fb_post_c1")
	require.True(t, ok)
	assert.Equal(t, id, c.AccountID)
	assert.Equal(t, social.CategoryFeedback, c.Category)
	assert.Equal(t, social.PriorityLow, c.Priority)
	assert.GreaterOrEqual(t, c.Sentiment, 0.3)
	assert.LessOrEqual(t, c.Sentiment, 0.8)
	assert.False(t, c.Responded)
}

func TestReconnectKeepsAccountID(t *testing.T) {
	f := newFixture(t)
	first := f.connectFacebook(t, "123456")
	second := f.connectFacebook(t, "123456")

	assert.Equal(t, first, second)
	assert.Len(t, f.svc.Status(social.Facebook).Accounts, 1)
}

func TestConnectFailureIsSurfaced(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ConnectPlatform(context.Background(), social.Facebook, social.Credentials{AccessToken: "bad", Identity: "1"})
	assert.True(t, social.IsKind(err, social.KindAuth))
	assert.False(t, f.svc.Status(social.Facebook).Connected)

	notes := f.svc.Notifications()
	require.NotEmpty(t, notes)
	assert.Equal(t, LevelError, notes[0].Level)

	_, err = f.svc.ConnectPlatform(context.Background(), social.Facebook, social.Credentials{AccessToken: "tok", Identity: "page"})
	assert.True(t, social.IsKind(err, social.KindValidation))

	_, err = f.svc.ConnectPlatform(context.Background(), social.Instagram, social.Credentials{AccessToken: "tok", Identity: "1"})
	assert.True(t, social.IsKind(err, social.KindValidation), "no adapter registered")
}

func TestDisconnect(t *testing.T) {
	f := newFixture(t)
	a := f.connectFacebook(t, "1")
	f.connectFacebook(t, "2")
	f.fb.raw = annComment()
	_, err := f.svc.SyncAll(context.Background())
	require.NoError(t, err)

	res, err := f.svc.DisconnectPlatform(social.Facebook, a)
	require.NoError(t, err)
	assert.True(t, res.Removed)
	assert.Len(t, f.svc.Comments(aggregate.Filter{}), 1, "single account disconnect keeps comments")

	res, err = f.svc.DisconnectPlatform(social.Facebook, "fb_unknown")
	require.NoError(t, err)
	assert.False(t, res.Removed)
	assert.Equal(t, "Account not found", res.Message)

	res, err = f.svc.DisconnectPlatform(social.Facebook, "")
	require.NoError(t, err)
	assert.True(t, res.Removed)
	assert.Empty(t, f.svc.Comments(aggregate.Filter{}), "platform disconnect drops its comments")
	assert.False(t, f.svc.Status(social.Facebook).Connected)
}

func TestReplyWithoutConnectedAccount(t *testing.T) {
	f := newFixture(t)
	a := f.connectFacebook(t, "1")
	f.fb.raw = annComment()
	_, err := f.svc.SyncAll(context.Background())
	require.NoError(t, err)
	_, err = f.svc.DisconnectPlatform(social.Facebook, a)
	require.NoError(t, err)

	_, err = f.svc.ReplyToComment(context.Background(), "fb_post_c1", "Thanks!")
	assert.True(t, social.IsKind(err, social.KindNotConnected))

	c, _ := f.svc.Comment("fb_post_c1")
	assert.False(t, c.Responded)
	assert.Empty(t, f.fb.replies)
}

func TestReplyRoutesToOwningAccount(t *testing.T) {
	f := newFixture(t)
	f.connectFacebook(t, "1")
	f.fb.raw = annComment()
	_, err := f.svc.SyncAll(context.Background())
	require.NoError(t, err)
	c, _ := f.svc.Comment("fb_post_c1")

	// A second page connected later must not receive the reply.
	f.connectFacebook(t, "2")

	res, err := f.svc.ReplyToComment(context.Background(), "fb_post_c1", "  Thanks!  ")
	require.NoError(t, err)
	assert.True(t, res.Delivered)
	assert.True(t, res.Comment.Responded)
	require.Len(t, f.fb.replies, 1)
	assert.Equal(t, reply{c.AccountID, "c1", "Thanks!"}, f.fb.replies[0])

	logs, err := f.svc.Replies("fb_post_c1", 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, database.ReplySent, logs[0].Status)
}

func TestReplyFallsBackToAnotherAccount(t *testing.T) {
	f := newFixture(t)
	a := f.connectFacebook(t, "1")
	f.fb.raw = annComment()
	_, err := f.svc.SyncAll(context.Background())
	require.NoError(t, err)

	b := f.connectFacebook(t, "2")
	_, err = f.svc.DisconnectPlatform(social.Facebook, a)
	require.NoError(t, err)

	res, err := f.svc.ReplyToComment(context.Background(), "fb_post_c1", "Thanks!")
	require.NoError(t, err)
	assert.Equal(t, b, res.AccountID)
}

func TestReplyFailureStillMarksResponded(t *testing.T) {
	f := newFixture(t)
	f.connectFacebook(t, "1")
	f.fb.raw = annComment()
	_, err := f.svc.SyncAll(context.Background())
	require.NoError(t, err)

	f.fb.replyErr = &social.Error{Kind: social.KindPermission, Platform: social.Facebook, Message: "(#200) Permissions error", Status: 403}
	res, err := f.svc.ReplyToComment(context.Background(), "fb_post_c1", "Thanks!")
	require.NoError(t, err)
	assert.False(t, res.Delivered)
	assert.Contains(t, res.Warning, "Permissions error")
	assert.True(t, res.Comment.Responded)

	c, _ := f.svc.Comment("fb_post_c1")
	assert.True(t, c.Responded)
	assert.True(t, f.svc.Status(social.Facebook).Connected, "permission errors keep the account connected")

	logs, err := f.svc.Replies("", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, database.ReplyFailed, logs[0].Status)
	require.NotNil(t, logs[0].Error)

	assert.Equal(t, LevelWarning, f.svc.Notifications()[0].Level)
}

func TestReplyAuthFailureDisconnects(t *testing.T) {
	f := newFixture(t)
	f.connectFacebook(t, "1")
	f.fb.raw = annComment()
	_, err := f.svc.SyncAll(context.Background())
	require.NoError(t, err)

	f.fb.replyErr = &social.Error{Kind: social.KindAuth, Platform: social.Facebook, Message: "expired", Status: 401}
	res, err := f.svc.ReplyToComment(context.Background(), "fb_post_c1", "Thanks!")
	require.NoError(t, err)
	assert.False(t, res.Delivered)
	assert.False(t, f.svc.Status(social.Facebook).Connected)
}

func TestReplyValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ReplyToComment(context.Background(), "fb_post_c1", "   ")
	assert.True(t, social.IsKind(err, social.KindValidation))

	_, err = f.svc.ReplyToComment(context.Background(), "missing", "hi")
	assert.True(t, social.IsKind(err, social.KindNotFound))
}

func TestMarkHandled(t *testing.T) {
	f := newFixture(t)
	f.connectFacebook(t, "1")
	f.fb.raw = annComment()
	_, err := f.svc.SyncAll(context.Background())
	require.NoError(t, err)

	c, err := f.svc.MarkHandled("fb_post_c1")
	require.NoError(t, err)
	assert.True(t, c.Responded)
	assert.Empty(t, f.fb.replies)

	reopened := f.open()
	c, _ = reopened.Comment("fb_post_c1")
	assert.True(t, c.Responded, "handled state is persisted")
}

func TestExportSnapshotHasNoSecrets(t *testing.T) {
	f := newFixture(t)
	f.connectFacebook(t, "1")
	_, err := f.svc.ConnectPlatform(context.Background(), social.YouTube,
		social.Credentials{AccessToken: "yt-secret-token", Identity: "UCabcdefghijk", APIKey: "yt-secret-key"})
	require.NoError(t, err)
	f.fb.raw = annComment()
	_, err = f.svc.SyncAll(context.Background())
	require.NoError(t, err)

	snap := f.svc.ExportSnapshot()
	assert.NotEmpty(t, snap.ID)
	assert.Len(t, snap.Comments, 1)
	assert.True(t, snap.Platforms[social.YouTube].Connected)

	data, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "tok-1")
	assert.NotContains(t, string(data), "yt-secret-token")
	assert.NotContains(t, string(data), "yt-secret-key")
}

func TestClearAllState(t *testing.T) {
	f := newFixture(t)
	f.connectFacebook(t, "1")
	f.fb.raw = annComment()
	_, err := f.svc.SyncAll(context.Background())
	require.NoError(t, err)
	_, err = f.svc.UpdateSettings(Settings{AutoRefresh: 0, NotificationSound: "none"})
	require.NoError(t, err)

	require.NoError(t, f.svc.ClearAllState())
	assert.Empty(t, f.svc.ConnectedPlatforms())
	assert.Empty(t, f.svc.Comments(aggregate.Filter{}))
	assert.Equal(t, DefaultSettings(), f.svc.Settings())
	assert.Empty(t, f.svc.Notifications())

	reopened := f.open()
	assert.Empty(t, reopened.ConnectedPlatforms())
	assert.Empty(t, reopened.Comments(aggregate.Filter{}))
	assert.Equal(t, DefaultSettings(), reopened.Settings())
}

func TestSettings(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, DefaultSettings(), f.svc.Settings())
	assert.Equal(t, time.Minute, f.svc.Settings().RefreshInterval())

	_, err := f.svc.UpdateSettings(Settings{AutoRefresh: -1, NotificationSound: "default"})
	assert.True(t, social.IsKind(err, social.KindValidation))
	_, err = f.svc.UpdateSettings(Settings{AutoRefresh: 1000, NotificationSound: "trumpet"})
	assert.True(t, social.IsKind(err, social.KindValidation))

	want := Settings{AutoRefresh: 30000, NotificationSound: "chime"}
	got, err := f.svc.UpdateSettings(want)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, want, f.open().Settings())
}

func TestMalformedSettingsFallBackToDefaults(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.SetValue(SettingsKey, `{"autoRefresh":`))
	assert.Equal(t, DefaultSettings(), f.open().Settings())
}

func TestReplyTemplates(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"thanks", "sorry", "help"} {
		text, err := f.svc.ReplyTemplate(name)
		require.NoError(t, err)
		assert.NotEmpty(t, text)
	}
	_, err := f.svc.ReplyTemplate("nope")
	assert.True(t, social.IsKind(err, social.KindValidation))
	assert.Equal(t, []string{"help", "sorry", "thanks"}, TemplateNames())
}

func TestNotificationsAreBounded(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < maxNotifications+5; i++ {
		f.svc.notify(LevelInfo, "n", "m")
	}
	assert.Len(t, f.svc.Notifications(), maxNotifications)
}

func TestSyncRaisesPriorityNotification(t *testing.T) {
	f := newFixture(t)
	f.connectFacebook(t, "1")
	f.fb.raw = []social.RawComment{{IDPrefix: "fb_post", RawID: "u1", Text: "URGENT refund now"}}
	_, err := f.svc.SyncAll(context.Background())
	require.NoError(t, err)

	var titles []string
	for _, n := range f.svc.Notifications() {
		titles = append(titles, n.Title)
	}
	assert.Contains(t, titles, "High priority comments")
	assert.Contains(t, titles, "New comments")
}
