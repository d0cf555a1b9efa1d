package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/Supernova/internal/quota"
	"github.com/TobiSchelling/Supernova/internal/social"
)

func TestGetDecodesAndMergesQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v18.0/123", r.URL.Path)
		assert.Equal(t, "id,name", r.URL.Query().Get("fields"))
		assert.Equal(t, "tok", r.URL.Query().Get("access_token"))
		assert.Equal(t, "1", r.URL.Query().Get("existing"))
		w.Write([]byte(`{"id":"123","name":"Acme"}`))
	}))
	defer srv.Close()

	c := New(social.Facebook, Options{})
	var out struct{ ID, Name string }
	err := c.Get(context.Background(), srv.URL+"/v18.0/123?existing=1",
		url.Values{"fields": {"id,name"}, "access_token": {"tok"}}, &out)
	require.NoError(t, err)
	assert.Equal(t, "Acme", out.Name)
}

func TestPostJSONSendsBodyAndBearer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "c1", body["snippet"]["parentId"])
		w.Write([]byte(`{"id":"r1"}`))
	}))
	defer srv.Close()

	c := New(social.YouTube, Options{})
	var out struct{ ID string }
	err := c.Do(context.Background(), Request{
		Method: http.MethodPost,
		URL:    srv.URL + "/comments",
		Bearer: "secret",
		Body:   map[string]any{"snippet": map[string]string{"parentId": "c1"}},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "r1", out.ID)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   social.Kind
		msg    string
		reason string
	}{
		{"unauthorized", 401, `{"error":{"message":"Invalid OAuth access token."}}`, social.KindAuth, "Invalid OAuth access token.", ""},
		{"graph token code", 400, `{"error":{"message":"Session has expired","code":190}}`, social.KindAuth, "Session has expired", ""},
		{"youtube quota", 403, `{"error":{"code":403,"message":"quota","errors":[{"reason":"quotaExceeded"}]}}`, social.KindRateLimit, "quota", "quotaExceeded"},
		{"graph throttling", 403, `{"error":{"message":"Application request limit reached","code":4}}`, social.KindRateLimit, "Application request limit reached", ""},
		{"too many requests", 429, ``, social.KindRateLimit, "Too Many Requests", ""},
		{"forbidden", 403, `{"error":{"message":"nope","errors":[{"reason":"commentsDisabled"}]}}`, social.KindPermission, "nope", "commentsDisabled"},
		{"not found", 404, `{}`, social.KindNotFound, "Not Found", ""},
		{"server error", 500, `<html>oops</html>`, social.KindProvider, "Internal Server Error", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			err := New(social.Instagram, Options{}).Get(context.Background(), srv.URL, nil, nil)
			require.Error(t, err)
			assert.Equal(t, tt.kind, social.KindOf(err))
			assert.Equal(t, tt.reason, Reason(err))

			var se *social.Error
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.msg, se.Message)
			assert.Equal(t, tt.status, se.Status)
			assert.Equal(t, social.Instagram, se.Platform)
		})
	}
}

func TestTransportFailureIsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	err := New(social.Facebook, Options{Timeout: time.Second}).Get(context.Background(), addr, nil, nil)
	require.Error(t, err)
	assert.Equal(t, social.KindProvider, social.KindOf(err))
}

func TestMalformedJSONIsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": [`))
	}))
	defer srv.Close()

	var out map[string]any
	err := New(social.Facebook, Options{}).Get(context.Background(), srv.URL, nil, &out)
	assert.Equal(t, social.KindProvider, social.KindOf(err))
}

func TestQuotaExhaustedSkipsRequest(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(social.YouTube, Options{Limiter: quota.NewMemory(1, nil)})
	require.NoError(t, c.Get(context.Background(), srv.URL, nil, nil))

	err := c.Get(context.Background(), srv.URL, nil, nil)
	assert.True(t, social.IsKind(err, social.KindRateLimit))
	assert.Equal(t, 1, calls)
}
