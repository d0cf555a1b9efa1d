package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/TobiSchelling/Supernova/internal/social"
)

// errorEnvelope covers both the Graph and the Google error bodies.
type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
		Errors  []struct {
			Reason  string `json:"reason"`
			Message string `json:"message"`
		} `json:"errors"`
	} `json:"error"`
}

// httpError is the cause attached to every classified HTTP failure.
type httpError struct {
	code   int
	reason string
	body   string
}

func (e *httpError) Error() string {
	if e.reason != "" {
		return http.StatusText(e.code) + ": " + e.reason
	}
	return http.StatusText(e.code)
}

// Reason returns the provider error reason (e.g. "commentsDisabled") of a
// failed request, or "".
func Reason(err error) string {
	var he *httpError
	if errors.As(err, &he) {
		return he.reason
	}
	return ""
}

var rateLimitReasons = map[string]bool{
	"quotaExceeded":         true,
	"rateLimitExceeded":     true,
	"dailyLimitExceeded":    true,
	"userRateLimitExceeded": true,
}

// Graph API throttling codes.
var graphRateLimitCodes = map[int]bool{4: true, 17: true, 32: true, 613: true}

// graphTokenCode marks an invalid or expired Graph access token.
const graphTokenCode = 190

func classify(p social.Platform, status int, body []byte) error {
	var env errorEnvelope
	_ = json.Unmarshal(body, &env)

	he := &httpError{code: status, body: strings.TrimSpace(string(body))}
	if len(env.Error.Errors) > 0 {
		he.reason = env.Error.Errors[0].Reason
	}

	msg := env.Error.Message
	if msg == "" {
		msg = http.StatusText(status)
	}
	e := &social.Error{Platform: p, Message: msg, Status: status, Err: he}

	switch {
	case status == http.StatusUnauthorized || env.Error.Code == graphTokenCode:
		e.Kind = social.KindAuth
		e.Hint = "the access token is invalid or expired, generate a new one"
	case status == http.StatusTooManyRequests || rateLimitReasons[he.reason] || graphRateLimitCodes[env.Error.Code]:
		e.Kind = social.KindRateLimit
		e.Hint = "API quota exceeded, try again later"
	case status == http.StatusForbidden:
		e.Kind = social.KindPermission
		e.Hint = "the token lacks the required permissions"
	case status == http.StatusNotFound:
		e.Kind = social.KindNotFound
	default:
		e.Kind = social.KindProvider
	}
	return e
}
