package inbox

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/Supernova/internal/social"
)

// SettingsKey is the key/value entry holding the user settings.
const SettingsKey = "supernova_settings"

var notificationSounds = map[string]bool{"default": true, "chime": true, "none": true}

// Settings are the user preferences kept next to the inbox.
type Settings struct {
	// AutoRefresh is the sync interval in milliseconds; 0 turns it off.
	AutoRefresh       int    `json:"autoRefresh"`
	NotificationSound string `json:"notificationSound"`
}

// DefaultSettings returns the settings used before the user changes any.
func DefaultSettings() Settings {
	return Settings{AutoRefresh: 60000, NotificationSound: "default"}
}

// Validate rejects out-of-range values.
func (s Settings) Validate() error {
	if s.AutoRefresh < 0 {
		return social.Validationf("", "autoRefresh must not be negative")
	}
	if !notificationSounds[s.NotificationSound] {
		return social.Validationf("", "notificationSound must be default, chime or none, got %q", s.NotificationSound)
	}
	return nil
}

// RefreshInterval returns AutoRefresh as a duration.
func (s Settings) RefreshInterval() time.Duration {
	return time.Duration(s.AutoRefresh) * time.Millisecond
}

func loadSettings(kv interface {
	GetValue(key string) (string, bool, error)
}, defaults Settings, logger *zap.Logger) Settings {
	raw, ok, err := kv.GetValue(SettingsKey)
	if err != nil {
		logger.Error("loading settings", zap.Error(err))
		return defaults
	}
	if !ok || raw == "" {
		return defaults
	}
	s := defaults
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		logger.Error("stored settings are malformed, using defaults", zap.Error(err))
		return defaults
	}
	if err := s.Validate(); err != nil {
		logger.Warn("stored settings are invalid, using defaults", zap.Error(err))
		return defaults
	}
	return s
}

func encodeSettings(s Settings) (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encoding settings: %w", err)
	}
	return string(data), nil
}
