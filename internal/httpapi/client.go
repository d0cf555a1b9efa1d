// Package httpapi is the JSON transport shared by the platform adapters.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/Supernova/internal/observability"
	"github.com/TobiSchelling/Supernova/internal/quota"
	"github.com/TobiSchelling/Supernova/internal/social"
)

const (
	userAgent       = "Supernova/1.0 (social inbox)"
	maxResponseSize = 10 << 20
)

// Options configures a Client.
type Options struct {
	Timeout    time.Duration
	Limiter    quota.Limiter
	Logger     *zap.Logger
	HTTPClient *http.Client
}

// Client performs JSON requests against one provider and classifies
// failures into social.Error values.
type Client struct {
	platform social.Platform
	http     *http.Client
	limiter  quota.Limiter
	logger   *zap.Logger
}

// New creates a Client for platform p.
func New(p social.Platform, opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{
			Timeout: opts.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		}
	}
	return &Client{platform: p, http: hc, limiter: opts.Limiter, logger: opts.Logger}
}

// Request describes one provider call.
type Request struct {
	Method string
	URL    string
	Query  url.Values
	// Bearer is sent as an Authorization header when set.
	Bearer string
	// Body is encoded as JSON when non-nil.
	Body any
}

// Get issues a GET and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, rawURL string, query url.Values, out any) error {
	return c.Do(ctx, Request{Method: http.MethodGet, URL: rawURL, Query: query}, out)
}

// PostJSON issues a POST with a JSON body and decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, rawURL string, query url.Values, body, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPost, URL: rawURL, Query: query, Body: body}, out)
}

// Do sends r. A nil out discards the response body.
func (c *Client) Do(ctx context.Context, r Request, out any) error {
	p := string(c.platform)

	if c.limiter != nil {
		ok, err := c.limiter.Allow(ctx, c.platform)
		if err != nil {
			c.logger.Warn("quota check failed", zap.String("platform", p), zap.Error(err))
		} else if !ok {
			observability.APIRequests.WithLabelValues(p, "quota").Inc()
			return &social.Error{
				Kind:     social.KindRateLimit,
				Platform: c.platform,
				Message:  "daily API quota exhausted",
				Hint:     "try again tomorrow or raise quota.daily_limit",
			}
		}
	}

	u, err := url.Parse(r.URL)
	if err != nil {
		return fmt.Errorf("parsing url: %w", err)
	}
	if len(r.Query) > 0 {
		q := u.Query()
		for k, vs := range r.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	var body io.Reader
	if r.Body != nil {
		data, err := json.Marshal(r.Body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.Bearer != "" {
		req.Header.Set("Authorization", "Bearer "+r.Bearer)
	}

	// Query strings carry access tokens; only the path is logged.
	c.logger.Debug("api request", zap.String("platform", p), zap.String("method", method), zap.String("path", u.Path))

	done := observability.TrackAPI(p)
	resp, err := c.http.Do(req)
	done()
	if err != nil {
		observability.APIRequests.WithLabelValues(p, "transport_error").Inc()
		return &social.Error{
			Kind:     social.KindProvider,
			Platform: c.platform,
			Message:  "request failed",
			Hint:     "check your network connection",
			Err:      err,
		}
	}
	defer resp.Body.Close()

	observability.APIRequests.WithLabelValues(p, strconv.Itoa(resp.StatusCode)).Inc()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &social.Error{Kind: social.KindProvider, Platform: c.platform, Message: "reading response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classify(c.platform, resp.StatusCode, data)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &social.Error{Kind: social.KindProvider, Platform: c.platform, Message: "unexpected response format", Err: err}
	}
	return nil
}
