package aggregate

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/TobiSchelling/Supernova/internal/classify"
	"github.com/TobiSchelling/Supernova/internal/social"
)

const (
	// StorageKey is the key/value entry holding the comment list.
	StorageKey = "supernova_comments"
	// DefaultMaxComments is the retention cap of the store.
	DefaultMaxComments = 1000
)

// KV is the local storage the comment store persists into.
type KV interface {
	GetValue(key string) (string, bool, error)
	SetValue(key, value string) error
	DeleteValue(key string) error
}

// Store holds the merged comments, newest first, capped at max entries.
type Store struct {
	mu       sync.Mutex
	kv       KV
	logger   *zap.Logger
	max      int
	comments []social.Comment
}

// LoadStore creates a Store and rehydrates it from kv. Malformed stored
// data is logged and ignored.
func LoadStore(kv KV, max int, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if max <= 0 {
		max = DefaultMaxComments
	}
	s := &Store{kv: kv, logger: logger, max: max}

	raw, ok, err := kv.GetValue(StorageKey)
	switch {
	case err != nil:
		logger.Error("loading stored comments", zap.Error(err))
	case ok && raw != "":
		var stored []social.Comment
		if err := json.Unmarshal([]byte(raw), &stored); err != nil {
			logger.Error("stored comments are malformed, starting empty", zap.Error(err))
		} else {
			s.comments = stored
			s.sortAndTrim()
		}
	}
	return s
}

// Merge adds comments whose id is not yet stored and returns the ones that
// were added. Stored comments are never overwritten. The store is re-sorted
// newest first and trimmed to the cap; it is not persisted. Comments evicted
// by the trim are not reported as added.
func (s *Store) Merge(fresh []social.Comment) []social.Comment {
	s.mu.Lock()
	defer s.mu.Unlock()

	known := make(map[string]bool, len(s.comments)+len(fresh))
	for _, c := range s.comments {
		known[c.ID] = true
	}

	var added []social.Comment
	for _, c := range fresh {
		if known[c.ID] {
			continue
		}
		known[c.ID] = true
		added = append(added, c)
	}

	s.comments = append(added[:len(added):len(added)], s.comments...)
	s.sortAndTrim()
	if len(added) == 0 {
		return added
	}

	kept := make(map[string]bool, len(s.comments))
	for _, c := range s.comments {
		kept[c.ID] = true
	}
	retained := added[:0]
	for _, c := range added {
		if kept[c.ID] {
			retained = append(retained, c)
		}
	}
	return retained
}

// sortAndTrim orders by timestamp descending and evicts the oldest entries
// beyond the cap. Callers must hold s.mu.
func (s *Store) sortAndTrim() {
	sort.SliceStable(s.comments, func(i, j int) bool {
		return s.comments[i].Timestamp.After(s.comments[j].Timestamp)
	})
	if len(s.comments) > s.max {
		evicted := len(s.comments) - s.max
		s.comments = s.comments[:s.max]
		s.logger.Debug("evicted oldest comments", zap.Int("count", evicted))
	}
}

// Save persists the full comment list.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persist()
}

func (s *Store) persist() error {
	list := s.comments
	if list == nil {
		list = []social.Comment{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("encoding comments: %w", err)
	}
	if err := s.kv.SetValue(StorageKey, string(data)); err != nil {
		return fmt.Errorf("saving comments: %w", err)
	}
	return nil
}

// Get returns the comment with the given id.
func (s *Store) Get(id string) (social.Comment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.comments {
		if c.ID == id {
			return c, true
		}
	}
	return social.Comment{}, false
}

// MarkResponded sets responded on a comment and persists the store.
func (s *Store) MarkResponded(id string) (social.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.comments {
		if s.comments[i].ID == id {
			s.comments[i].Responded = true
			return s.comments[i], s.persist()
		}
	}
	return social.Comment{}, &social.Error{Kind: social.KindNotFound, Message: fmt.Sprintf("comment %q not found", id)}
}

// RemovePlatform drops every comment of p, persists and returns the count.
func (s *Store) RemovePlatform(p social.Platform) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.comments[:0]
	removed := 0
	for _, c := range s.comments {
		if c.Platform == p {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	s.comments = kept
	if removed == 0 {
		return 0, nil
	}
	return removed, s.persist()
}

// Clear drops every comment and removes the stored list.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments = nil
	return s.kv.DeleteValue(StorageKey)
}

// Len returns the number of stored comments.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.comments)
}

// All returns a copy of every comment, newest first.
func (s *Store) All() []social.Comment {
	return s.List(Filter{})
}

// Filter narrows a listing. Zero values match everything.
type Filter struct {
	Platform social.Platform
	Category social.Category
	Priority social.Priority
	// Status is "responded", "unresponded" or empty.
	Status string
	// Query matches text or author, case-insensitively.
	Query string
	Limit int
}

func (f Filter) match(c social.Comment) bool {
	if f.Platform != "" && c.Platform != f.Platform {
		return false
	}
	if f.Category != "" && c.Category != f.Category {
		return false
	}
	if f.Priority != "" && c.Priority != f.Priority {
		return false
	}
	switch f.Status {
	case "responded":
		if !c.Responded {
			return false
		}
	case "unresponded":
		if c.Responded {
			return false
		}
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		if !strings.Contains(strings.ToLower(c.Text), q) && !strings.Contains(strings.ToLower(c.Author), q) {
			return false
		}
	}
	return true
}

// List returns matching comments, newest first.
func (s *Store) List(f Filter) []social.Comment {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []social.Comment{}
	for _, c := range s.comments {
		if !f.match(c) {
			continue
		}
		out = append(out, c)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out
}

// Stats summarizes the stored comments.
type Stats struct {
	Total        int                     `json:"total"`
	Unresponded  int                     `json:"unresponded"`
	HighPriority int                     `json:"highPriority"`
	ByPlatform   map[social.Platform]int `json:"byPlatform"`
	ByCategory   map[social.Category]int `json:"byCategory"`
	ByMood       map[string]int          `json:"byMood"`
	AvgSentiment float64                 `json:"avgSentiment"`
}

// Stats computes counts over every stored comment.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		ByPlatform: map[social.Platform]int{},
		ByCategory: map[social.Category]int{},
		ByMood:     map[string]int{},
	}
	var sum float64
	for _, c := range s.comments {
		st.Total++
		if !c.Responded {
			st.Unresponded++
		}
		if c.Priority == social.PriorityHigh {
			st.HighPriority++
		}
		st.ByPlatform[c.Platform]++
		st.ByCategory[c.Category]++
		st.ByMood[classify.Mood(c.Sentiment)]++
		sum += c.Sentiment
	}
	if st.Total > 0 {
		st.AvgSentiment = sum / float64(st.Total)
	}
	return st
}
