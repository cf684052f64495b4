package memory

import (
	"sync"

	"fyne.io/fyne/v2"
	"github.com/tejashwikalptaru/tunecache/internal/domain"
	"github.com/tejashwikalptaru/tunecache/internal/ports"
)

const (
	settingsFormatKey = "settings.default_format"
	settingsVideoKey  = "settings.save_as_video"
)

// SettingsRepository implements ports.SettingsRepository using Fyne preferences.
//
// Thread-safe: All operations protected by sync.RWMutex.
type SettingsRepository struct {
	prefs fyne.Preferences
	mu    sync.RWMutex
}

// NewSettingsRepository creates a new settings repository.
func NewSettingsRepository(prefs fyne.Preferences) *SettingsRepository {
	return &SettingsRepository{
		prefs: prefs,
	}
}

// Load returns saved settings, using defaults for anything unset.
// A saved format that is no longer valid falls back to the default.
func (r *SettingsRepository) Load(defaults domain.Settings) (domain.Settings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	settings := domain.Settings{
		DefaultFormat: domain.MediaFormat(r.prefs.StringWithFallback(settingsFormatKey, string(defaults.DefaultFormat))),
		SaveAsVideo:   r.prefs.BoolWithFallback(settingsVideoKey, defaults.SaveAsVideo),
	}
	if !settings.DefaultFormat.IsValid() {
		settings.DefaultFormat = defaults.DefaultFormat
	}
	return settings, nil
}

// Save persists settings after validating the format.
func (r *SettingsRepository) Save(settings domain.Settings) error {
	if !settings.DefaultFormat.IsValid() {
		return domain.NewValidationError("default_format", settings.DefaultFormat, domain.ErrUnsupportedFormat.Error())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.prefs.SetString(settingsFormatKey, string(settings.DefaultFormat))
	r.prefs.SetBool(settingsVideoKey, settings.SaveAsVideo)
	return nil
}

// Clear removes all saved settings.
func (r *SettingsRepository) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prefs.RemoveValue(settingsFormatKey)
	r.prefs.RemoveValue(settingsVideoKey)
	return nil
}

// Verify interface implementation
var _ ports.SettingsRepository = (*SettingsRepository)(nil)
