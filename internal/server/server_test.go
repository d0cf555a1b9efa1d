package server

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/Supernova/internal/database"
	"github.com/TobiSchelling/Supernova/internal/inbox"
	"github.com/TobiSchelling/Supernova/internal/social"
)

type stubAdapter struct {
	raw []social.RawComment
}

func (stubAdapter) Platform() social.Platform { return social.Facebook }

func (stubAdapter) ValidateToken(_ context.Context, c social.Credentials) error {
	if c.AccessToken == "expired" {
		return &social.Error{Kind: social.KindAuth, Platform: social.Facebook, Message: "invalid access token", Hint: "generate a new token"}
	}
	return nil
}

func (stubAdapter) ValidateResource(_ context.Context, c social.Credentials) (social.Account, error) {
	return social.Account{Name: "Acme", PageID: c.Identity, PageName: "Acme"}, nil
}

func (stubAdapter) Probe(context.Context, social.Credentials) error { return nil }

func (s stubAdapter) FetchComments(context.Context, social.Account) ([]social.RawComment, error) {
	return s.raw, nil
}

func (stubAdapter) Reply(context.Context, social.Account, string, string) error { return nil }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	adapter := stubAdapter{raw: []social.RawComment{
		{IDPrefix: "fb_post", RawID: "c1", Type: social.TypePostComment, Text: "I love this!", Author: "Ann"},
		{IDPrefix: "fb_post", RawID: "c2", Type: social.TypePostComment, Text: "URGENT: I need a refund", Author: "Bob"},
	}}
	svc := inbox.New(db, []social.Adapter{adapter}, inbox.Options{Rand: rand.NewSource(1)})
	srv, err := New(svc, nil)
	require.NoError(t, err)
	return srv
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if method == http.MethodPost || method == http.MethodPut {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func connectAndSync(t *testing.T, srv *Server) {
	t.Helper()
	rec := do(t, srv, "POST", "/api/platforms/facebook/connect", `{"accessToken":"tok","identity":"123456"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = do(t, srv, "POST", "/api/sync", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestIndexRoute(t *testing.T) {
	srv := newTestServer(t)
	connectAndSync(t, srv)

	rec := do(t, srv, "GET", "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Supernova digest")
	assert.Contains(t, body, "<h2>Needs attention</h2>")
	assert.Contains(t, body, "<table>")

	rec = do(t, srv, "GET", "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConnectSyncAndList(t *testing.T) {
	srv := newTestServer(t)
	connectAndSync(t, srv)

	rec := do(t, srv, "GET", "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"accessToken":"tok"`)
	st := decode[statusResponse](t, rec)
	assert.Equal(t, []social.Platform{social.Facebook}, st.Connected)
	assert.Equal(t, 2, st.Stats.Total)

	rec = do(t, srv, "GET", "/api/comments?priority=high", "")
	require.Equal(t, http.StatusOK, rec.Code)
	comments := decode[[]social.Comment](t, rec)
	require.Len(t, comments, 1)
	assert.Equal(t, "fb_post_c2", comments[0].ID)

	rec = do(t, srv, "GET", "/api/comments?limit=1", "")
	assert.Len(t, decode[[]social.Comment](t, rec), 1)

	rec = do(t, srv, "GET", "/api/comments?platform=myspace", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, "GET", "/api/comments?limit=x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConnectErrorsCarryKind(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, "POST", "/api/platforms/facebook/connect", `{"accessToken":"expired","identity":"1"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	resp := decode[errorResponse](t, rec)
	assert.Equal(t, social.KindAuth, resp.Kind)
	assert.Equal(t, "generate a new token", resp.Hint)

	rec = do(t, srv, "POST", "/api/platforms/facebook/connect", `{"accessToken":"tok","identity":"abc"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, "POST", "/api/platforms/facebook/connect", `{"token":"tok"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown fields are rejected")
}

func TestReplyRoutes(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, "POST", "/api/comments/fb_post_c1/reply", `{"text":"hi"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	connectAndSync(t, srv)

	rec = do(t, srv, "POST", "/api/comments/fb_post_c1/reply", `{"template":"thanks"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[inbox.ReplyResult](t, rec)
	assert.True(t, res.Delivered)
	assert.True(t, res.Comment.Responded)

	rec = do(t, srv, "GET", "/api/comments/fb_post_c1/replies", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Thank you for your feedback!")

	rec = do(t, srv, "POST", "/api/comments/fb_post_c2/reply", `{"template":"bogus"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, "POST", "/api/comments/fb_post_c2/handled", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[social.Comment](t, rec).Responded)

	rec = do(t, srv, "GET", "/api/comments?status=unresponded", "")
	assert.Empty(t, decode[[]social.Comment](t, rec))
}

func TestReplyWithoutAccountIsConflict(t *testing.T) {
	srv := newTestServer(t)
	rec := do(t, srv, "POST", "/api/platforms/facebook/connect", `{"accessToken":"tok","identity":"123456"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	connected := decode[social.ConnectResult](t, rec)
	rec = do(t, srv, "POST", "/api/sync", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, "POST", "/api/platforms/facebook/disconnect", `{"accountId":"`+connected.AccountID+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, "POST", "/api/comments/fb_post_c1/reply", `{"text":"hi"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, social.KindNotConnected, decode[errorResponse](t, rec).Kind)
}

func TestDisconnectPlatformDropsComments(t *testing.T) {
	srv := newTestServer(t)
	connectAndSync(t, srv)

	rec := do(t, srv, "POST", "/api/platforms/facebook/disconnect", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, "GET", "/api/comments/fb_post_c1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMutatingRoutesRejectCrossSiteRequests(t *testing.T) {
	srv := newTestServer(t)
	connectAndSync(t, srv)

	send := func(method, path, contentType string, headers map[string]string) int {
		req := httptest.NewRequest(method, path, strings.NewReader(""))
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		return rec.Code
	}

	tests := []struct {
		name        string
		method      string
		path        string
		contentType string
		headers     map[string]string
		want        int
	}{
		{"form post", "POST", "/api/platforms/facebook/disconnect", "text/plain", nil, http.StatusUnsupportedMediaType},
		{"no content type", "POST", "/api/platforms/facebook/disconnect", "", nil, http.StatusUnsupportedMediaType},
		{"foreign origin", "POST", "/api/platforms/facebook/disconnect", "text/plain", map[string]string{"Origin": "https://evil.example"}, http.StatusForbidden},
		{"foreign origin json", "POST", "/api/sync", "application/json", map[string]string{"Origin": "https://evil.example"}, http.StatusForbidden},
		{"cross-site fetch", "DELETE", "/api/state", "", map[string]string{"Sec-Fetch-Site": "cross-site"}, http.StatusForbidden},
		{"cross-site settings", "PUT", "/api/settings", "application/json", map[string]string{"Sec-Fetch-Site": "same-site"}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, send(tt.method, tt.path, tt.contentType, tt.headers))
		})
	}

	rec := do(t, srv, "GET", "/api/status", "")
	status := decode[statusResponse](t, rec)
	assert.Equal(t, []social.Platform{social.Facebook}, status.Connected, "rejected requests change nothing")
	rec = do(t, srv, "GET", "/api/comments", "")
	assert.Len(t, decode[[]social.Comment](t, rec), 2)

	code := send("POST", "/api/sync", "application/json; charset=utf-8", map[string]string{
		"Origin":         "http://example.com",
		"Sec-Fetch-Site": "same-origin",
	})
	assert.Equal(t, http.StatusOK, code, "same-origin JSON requests pass")
}

func TestSettingsRoutes(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, "GET", "/api/settings", "")
	assert.Equal(t, inbox.DefaultSettings(), decode[inbox.Settings](t, rec))

	rec = do(t, srv, "PUT", "/api/settings", `{"notificationSound":"chime"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[inbox.Settings](t, rec)
	assert.Equal(t, "chime", got.NotificationSound)
	assert.Equal(t, 60000, got.AutoRefresh, "omitted fields keep their value")

	rec = do(t, srv, "PUT", "/api/settings", `{"autoRefresh":-5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportAndClear(t *testing.T) {
	srv := newTestServer(t)
	connectAndSync(t, srv)

	rec := do(t, srv, "GET", "/api/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "supernova-export-")
	assert.NotContains(t, rec.Body.String(), `"tok"`)
	snap := decode[inbox.Snapshot](t, rec)
	assert.Len(t, snap.Comments, 2)

	rec = do(t, srv, "DELETE", "/api/state", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, srv, "GET", "/api/comments", "")
	assert.Empty(t, decode[[]social.Comment](t, rec))
}

func TestNotificationsAndTemplates(t *testing.T) {
	srv := newTestServer(t)
	connectAndSync(t, srv)

	rec := do(t, srv, "GET", "/api/notifications", "")
	notes := decode[[]inbox.Notification](t, rec)
	require.NotEmpty(t, notes)
	assert.Equal(t, "High priority comments", notes[0].Title)

	rec = do(t, srv, "GET", "/api/templates", "")
	templates := decode[map[string]string](t, rec)
	assert.Len(t, templates, 3)
}

func TestMetricsRoute(t *testing.T) {
	srv := newTestServer(t)
	rec := do(t, srv, "GET", "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusTooManyRequests, statusFor(social.KindRateLimit))
	assert.Equal(t, http.StatusBadGateway, statusFor(social.KindProvider))
	assert.Equal(t, http.StatusConflict, statusFor(social.KindNotConnected))
	assert.Equal(t, http.StatusInternalServerError, statusFor(""))
}
