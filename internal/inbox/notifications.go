package inbox

import (
	"time"

	"github.com/google/uuid"
)

const maxNotifications = 50

// Notification levels.
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Notification is a user-facing event raised by the service.
type Notification struct {
	ID        string    `json:"id"`
	Level     string    `json:"level"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Service) notify(level, title, message string) {
	n := Notification{
		ID:        uuid.NewString(),
		Level:     level,
		Title:     title,
		Message:   message,
		Timestamp: s.now(),
	}
	s.mu.Lock()
	s.notes = append([]Notification{n}, s.notes...)
	if len(s.notes) > maxNotifications {
		s.notes = s.notes[:maxNotifications]
	}
	s.mu.Unlock()
}

// Notifications returns recent notifications, newest first.
func (s *Service) Notifications() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notification{}, s.notes...)
}
