// Package credentials keeps the connected accounts of every platform and
// persists them to the local key/value store after each change.
package credentials

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/Supernova/internal/social"
)

// StorageKey is the key/value entry holding the credentials blob.
const StorageKey = "supernova_credentials"

// DefaultGraphVersion is the Graph API version recorded for Facebook and
// Instagram when nothing else is configured.
const DefaultGraphVersion = "v18.0"

// KV is the local storage the store persists into.
type KV interface {
	GetValue(key string) (string, bool, error)
	SetValue(key, value string) error
	DeleteValue(key string) error
}

// PlatformState is the persisted state of one platform.
type PlatformState struct {
	Accounts   []social.Account `json:"accounts"`
	APIVersion string           `json:"apiVersion,omitempty"`
}

// Status summarizes one platform for the dashboard.
type Status struct {
	Platform          social.Platform  `json:"platform"`
	Connected         bool             `json:"connected"`
	Accounts          []social.Account `json:"accounts"`
	ConnectedAccounts []social.Account `json:"connectedAccounts"`
	AccountCount      int              `json:"accountCount"`
	LastSync          *time.Time       `json:"lastSync"`
	LastSyncAttempt   *time.Time       `json:"lastSyncAttempt"`
}

// RemoveResult reports the outcome of a disconnect.
type RemoveResult struct {
	Removed bool   `json:"success"`
	Count   int    `json:"count"`
	Message string `json:"message"`
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the time source used for new account ids.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithGraphVersion sets the API version recorded for Graph platforms.
func WithGraphVersion(v string) Option {
	return func(s *Store) {
		if v != "" {
			s.graphVersion = v
		}
	}
}

// Store is the single source of truth for connected accounts.
type Store struct {
	mu           sync.Mutex
	kv           KV
	logger       *zap.Logger
	now          func() time.Time
	graphVersion string
	platforms    map[social.Platform]*PlatformState
}

// Load builds a Store and rehydrates it from kv. Missing or malformed
// stored data is logged and replaced by empty defaults.
func Load(kv KV, logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		kv:           kv,
		logger:       logger,
		now:          time.Now,
		graphVersion: DefaultGraphVersion,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.platforms = s.defaults()
	s.load()
	return s
}

func (s *Store) defaults() map[social.Platform]*PlatformState {
	return map[social.Platform]*PlatformState{
		social.Facebook:  {Accounts: []social.Account{}, APIVersion: s.graphVersion},
		social.Instagram: {Accounts: []social.Account{}, APIVersion: s.graphVersion},
		social.YouTube:   {Accounts: []social.Account{}},
	}
}

func (s *Store) load() {
	raw, ok, err := s.kv.GetValue(StorageKey)
	if err != nil {
		s.logger.Error("loading stored credentials", zap.Error(err))
		return
	}
	if !ok || raw == "" {
		return
	}

	var stored map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		s.logger.Error("stored credentials are malformed, starting empty", zap.Error(err))
		return
	}

	for name, blob := range stored {
		p := social.Platform(name)
		state, known := s.platforms[p]
		if !known {
			s.logger.Warn("ignoring stored credentials for unknown platform", zap.String("platform", name))
			continue
		}
		var ps PlatformState
		if err := json.Unmarshal(blob, &ps); err != nil {
			s.logger.Error("stored platform state is malformed", zap.String("platform", name), zap.Error(err))
			continue
		}
		if ps.Accounts != nil {
			state.Accounts = ps.Accounts
		}
		if ps.APIVersion != "" {
			state.APIVersion = ps.APIVersion
		}
	}
}

// persist writes the full state. Callers must hold s.mu.
func (s *Store) persist() error {
	data, err := json.Marshal(s.platforms)
	if err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}
	if err := s.kv.SetValue(StorageKey, string(data)); err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}
	return nil
}

// Upsert inserts account or replaces the account with the same platform
// identity. A replaced account keeps its id and sync timestamps.
func (s *Store) Upsert(p social.Platform, account social.Account) (social.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.platforms[p]
	if !ok {
		return social.Account{}, social.Validationf(p, "unsupported platform")
	}

	key := account.IdentityKey(p)
	idx := -1
	for i, existing := range state.Accounts {
		if key != "" && existing.IdentityKey(p) == key {
			idx = i
			break
		}
	}

	if idx >= 0 {
		prev := state.Accounts[idx]
		account.ID = prev.ID
		if account.LastSync == nil {
			account.LastSync = prev.LastSync
		}
		if account.LastSyncAttempt == nil {
			account.LastSyncAttempt = prev.LastSyncAttempt
		}
		state.Accounts[idx] = account
	} else {
		account.ID = s.newID(p, state)
		state.Accounts = append(state.Accounts, account)
	}

	return account, s.persist()
}

// newID returns "<prefix>_<unix millis>", bumped until unique.
func (s *Store) newID(p social.Platform, state *PlatformState) string {
	ms := s.now().UnixMilli()
	for {
		id := fmt.Sprintf("%s_%d", p.Prefix(), ms)
		taken := false
		for _, a := range state.Accounts {
			if a.ID == id {
				taken = true
				break
			}
		}
		if !taken {
			return id
		}
		ms++
	}
}

// MarkSynced records a successful fetch for the account with id.
func (s *Store) MarkSynced(p social.Platform, id string, at time.Time) error {
	return s.patch(p, id, func(a *social.Account) bool {
		a.LastSync = &at
		return true
	})
}

// MarkAttempted records a failed fetch attempt for the account with id.
func (s *Store) MarkAttempted(p social.Platform, id string, at time.Time) error {
	return s.patch(p, id, func(a *social.Account) bool {
		a.LastSyncAttempt = &at
		return true
	})
}

// MarkDisconnected flags the account disconnected after token was
// rejected. Nothing changes when the account has since been reconnected
// with another token. It reports whether the flag was set.
func (s *Store) MarkDisconnected(p social.Platform, id, token string) (bool, error) {
	var changed bool
	err := s.patch(p, id, func(a *social.Account) bool {
		if a.AccessToken != token || !a.Connected {
			return false
		}
		a.Connected = false
		changed = true
		return true
	})
	return changed, err
}

// patch applies fn to the stored account with id and persists when fn
// reports a change. Accounts removed in the meantime are ignored.
func (s *Store) patch(p social.Platform, id string, fn func(*social.Account) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.platforms[p]
	if !ok {
		return social.Validationf(p, "unsupported platform")
	}
	for i := range state.Accounts {
		if state.Accounts[i].ID != id {
			continue
		}
		if !fn(&state.Accounts[i]) {
			return nil
		}
		return s.persist()
	}
	s.logger.Debug("account vanished before update", zap.String("platform", string(p)), zap.String("account", id))
	return nil
}

// Remove deletes one account by id, or every account of the platform when
// accountID is empty.
func (s *Store) Remove(p social.Platform, accountID string) (RemoveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.platforms[p]
	if !ok {
		return RemoveResult{Message: "Platform not found"}, nil
	}

	if accountID != "" {
		for i, a := range state.Accounts {
			if a.ID != accountID {
				continue
			}
			state.Accounts = append(state.Accounts[:i], state.Accounts[i+1:]...)
			res := RemoveResult{Removed: true, Count: 1, Message: fmt.Sprintf("%s disconnected successfully!", a.Name)}
			return res, s.persist()
		}
		return RemoveResult{Message: "Account not found"}, nil
	}

	count := len(state.Accounts)
	state.Accounts = []social.Account{}
	res := RemoveResult{
		Removed: true,
		Count:   count,
		Message: fmt.Sprintf("All %d %s accounts disconnected successfully!", count, p),
	}
	return res, s.persist()
}

// Status returns the connection summary of one platform.
func (s *Store) Status(p social.Platform) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{Platform: p, Accounts: []social.Account{}, ConnectedAccounts: []social.Account{}}
	state, ok := s.platforms[p]
	if !ok {
		return st
	}

	st.Accounts = append(st.Accounts, state.Accounts...)
	for _, a := range state.Accounts {
		if !a.Connected {
			continue
		}
		st.ConnectedAccounts = append(st.ConnectedAccounts, a)
		st.LastSync = latest(st.LastSync, a.LastSync)
		st.LastSyncAttempt = latest(st.LastSyncAttempt, a.LastSyncAttempt)
	}
	st.AccountCount = len(st.ConnectedAccounts)
	st.Connected = st.AccountCount > 0
	return st
}

func latest(cur, candidate *time.Time) *time.Time {
	if candidate == nil {
		return cur
	}
	if cur == nil || candidate.After(*cur) {
		t := *candidate
		return &t
	}
	return cur
}

// ConnectedPlatforms returns platforms with at least one connected
// account, in sync order.
func (s *Store) ConnectedPlatforms() []social.Platform {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []social.Platform
	for _, p := range social.Platforms {
		for _, a := range s.platforms[p].Accounts {
			if a.Connected {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

// ConnectedAccounts returns copies of the connected accounts of p.
func (s *Store) ConnectedAccounts(p social.Platform) []social.Account {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.platforms[p]
	if !ok {
		return nil
	}
	var out []social.Account
	for _, a := range state.Accounts {
		if a.Connected {
			out = append(out, a)
		}
	}
	return out
}

// Account looks up an account by id.
func (s *Store) Account(p social.Platform, id string) (social.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.platforms[p]
	if !ok {
		return social.Account{}, false
	}
	for _, a := range state.Accounts {
		if a.ID == id {
			return a, true
		}
	}
	return social.Account{}, false
}

// Snapshot returns a copy of every platform's state.
func (s *Store) Snapshot() map[social.Platform]PlatformState {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[social.Platform]PlatformState, len(s.platforms))
	for p, state := range s.platforms {
		out[p] = PlatformState{
			Accounts:   append([]social.Account{}, state.Accounts...),
			APIVersion: state.APIVersion,
		}
	}
	return out
}

// Clear drops every account and removes the stored blob.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.platforms = s.defaults()
	return s.kv.DeleteValue(StorageKey)
}
