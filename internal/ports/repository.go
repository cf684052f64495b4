// Package ports define repository interfaces for data persistence abstraction.
// These interfaces enable the repository pattern and allow swapping persistence mechanisms.
package ports

import (
	"github.com/tejashwikalptaru/tunecache/internal/domain"
)

// CatalogRepository keeps the list of files that finished caching.
// Implementations can use files, databases, or in-memory storage.
//
// Thread-safety: Implementations must be thread-safe.
type CatalogRepository interface {
	// Add persists an entry.
	// If an entry with the same ID exists, it is replaced.
	//
	// Returns an error if saving fails.
	Add(entry domain.CatalogEntry) error

	// Get retrieves an entry by ID.
	// If the entry doesn't exist, returns domain.ErrNotFound.
	Get(id string) (domain.CatalogEntry, error)

	// List returns all entries, most recent first.
	//
	// Returns an empty slice if none exist, or an error if loading fails.
	List() ([]domain.CatalogEntry, error)

	// Remove deletes an entry by ID.
	// If the entry doesn't exist, this is a no-op (no error).
	Remove(id string) error

	// Clear removes all entries.
	Clear() error
}

// HistoryRepository keeps the terminal outcome of recent jobs.
//
// Thread-safety: Implementations must be thread-safe.
type HistoryRepository interface {
	// Record appends an outcome. Old records are dropped beyond the repository limit.
	//
	// Returns an error if saving fails.
	Record(record domain.HistoryRecord) error

	// Recent returns up to limit records, most recent first.
	// A limit <= 0 returns everything kept.
	Recent(limit int) ([]domain.HistoryRecord, error)

	// Clear removes all records.
	Clear() error
}

// SettingsRepository handles the persistence of user defaults.
//
// Thread-safety: Implementations must be thread-safe.
type SettingsRepository interface {
	// Load returns the saved settings, falling back to the given defaults for unset values.
	Load(defaults domain.Settings) (domain.Settings, error)

	// Save persists settings.
	//
	// Returns an error if the settings are invalid.
	Save(settings domain.Settings) error

	// Clear removes all saved settings.
	Clear() error
}
