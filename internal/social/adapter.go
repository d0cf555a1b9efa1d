package social

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Adapter translates one provider's REST surface into the unified model.
type Adapter interface {
	Platform() Platform

	// ValidateToken checks the access token against a lightweight
	// identity endpoint.
	ValidateToken(ctx context.Context, creds Credentials) error

	// ValidateResource checks the page, business account or channel and
	// returns an Account populated with identity and display fields.
	ValidateResource(ctx context.Context, creds Credentials) (Account, error)

	// Probe confirms the token carries the scopes needed to read comments.
	Probe(ctx context.Context, creds Credentials) error

	// FetchComments pulls raw comments for one connected account.
	FetchComments(ctx context.Context, account Account) ([]RawComment, error)

	// Reply posts text as a reply to the provider-native comment id.
	Reply(ctx context.Context, account Account, originalID, text string) error
}

// AccountStore is the part of the credential store Connect needs.
type AccountStore interface {
	Upsert(p Platform, account Account) (Account, error)
}

// Credentials are the form fields a user pastes in to connect an account.
type Credentials struct {
	AccessToken string `json:"accessToken"`
	// Identity is the page id, business account id or channel id.
	Identity    string `json:"identity"`
	APIKey      string `json:"apiKey,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

var (
	numericID = regexp.MustCompile(`^[0-9]+$`)
	channelID = regexp.MustCompile(`^UC[A-Za-z0-9_-]{10,}$`)
)

// Validate rejects malformed input before any network call is made.
func (c Credentials) Validate(p Platform) error {
	if strings.TrimSpace(c.AccessToken) == "" {
		return Validationf(p, "access token is required")
	}
	id := strings.TrimSpace(c.Identity)
	switch p {
	case Facebook:
		if !numericID.MatchString(id) {
			return Validationf(p, "page id must be numeric, got %q", c.Identity)
		}
	case Instagram:
		if !numericID.MatchString(id) {
			return Validationf(p, "business account id must be numeric, got %q", c.Identity)
		}
	case YouTube:
		if !channelID.MatchString(id) {
			return Validationf(p, "channel id must start with UC, got %q", c.Identity)
		}
		if strings.TrimSpace(c.APIKey) == "" {
			return Validationf(p, "API key is required")
		}
	default:
		return Validationf(p, "unsupported platform")
	}
	return nil
}

// Normalized returns the credentials with surrounding whitespace removed.
func (c Credentials) Normalized() Credentials {
	c.AccessToken = strings.TrimSpace(c.AccessToken)
	c.Identity = strings.TrimSpace(c.Identity)
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.DisplayName = strings.TrimSpace(c.DisplayName)
	return c
}

// ConnectResult is returned by a successful Connect.
type ConnectResult struct {
	AccountID string `json:"accountId"`
	Message   string `json:"message"`
}

// Connect runs the connect state machine shared by every platform:
// validate input, validate token, validate resource, probe permissions,
// then upsert the account keyed by its platform identity.
func Connect(ctx context.Context, a Adapter, store AccountStore, creds Credentials) (ConnectResult, error) {
	p := a.Platform()
	creds = creds.Normalized()
	if err := creds.Validate(p); err != nil {
		return ConnectResult{}, err
	}
	if err := a.ValidateToken(ctx, creds); err != nil {
		return ConnectResult{}, WithOp(p, "validate token", err)
	}
	account, err := a.ValidateResource(ctx, creds)
	if err != nil {
		return ConnectResult{}, WithOp(p, "validate resource", err)
	}
	if err := a.Probe(ctx, creds); err != nil {
		return ConnectResult{}, WithOp(p, "probe permissions", err)
	}

	account.Connected = true
	account.AccessToken = creds.AccessToken
	account.APIKey = creds.APIKey
	if creds.DisplayName != "" {
		account.Name = creds.DisplayName
	}
	saved, err := store.Upsert(p, account)
	if err != nil {
		return ConnectResult{}, fmt.Errorf("saving %s account: %w", p, err)
	}
	return ConnectResult{
		AccountID: saved.ID,
		Message:   fmt.Sprintf("%s connected successfully! %s", p.Title(), saved.Name),
	}, nil
}
