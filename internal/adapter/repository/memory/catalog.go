// Package memory provides repository implementations backed by Fyne preferences.
//
// Fyne preferences live in OS-specific app data directories and fall back to an
// in-memory store under fyne's test app, which is what the tests use.
package memory

import (
	"encoding/json"
	"slices"
	"sync"

	"fyne.io/fyne/v2"
	"github.com/tejashwikalptaru/tunecache/internal/domain"
	"github.com/tejashwikalptaru/tunecache/internal/ports"
)

const catalogKey = "catalog.entries"

// CatalogRepository implements ports.CatalogRepository using Fyne preferences.
// Entries are stored as one JSON array, most recent first.
//
// Thread-safe: All operations protected by sync.RWMutex.
type CatalogRepository struct {
	prefs fyne.Preferences
	mu    sync.RWMutex
}

// NewCatalogRepository creates a new catalog repository.
func NewCatalogRepository(prefs fyne.Preferences) *CatalogRepository {
	return &CatalogRepository{
		prefs: prefs,
	}
}

// Add stores entry at the front, replacing any entry with the same ID.
func (r *CatalogRepository) Add(entry domain.CatalogEntry) error {
	if entry.ID == "" {
		return domain.NewValidationError("id", entry.ID, "catalog entry needs an id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.load()
	if err != nil {
		return err
	}

	entries = slices.DeleteFunc(entries, func(e domain.CatalogEntry) bool { return e.ID == entry.ID })
	entries = slices.Insert(entries, 0, entry)
	return r.save("add", entries)
}

// Get returns the entry with id, or domain.ErrNotFound.
func (r *CatalogRepository) Get(id string) (domain.CatalogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries, err := r.load()
	if err != nil {
		return domain.CatalogEntry{}, err
	}

	i := slices.IndexFunc(entries, func(e domain.CatalogEntry) bool { return e.ID == id })
	if i < 0 {
		return domain.CatalogEntry{}, domain.NewRepositoryError("get", "catalog", "no entry "+id, domain.ErrNotFound)
	}
	return entries[i], nil
}

// List returns every entry, most recent first.
func (r *CatalogRepository) List() ([]domain.CatalogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.load()
}

// Remove deletes the entry with id. Unknown ids are ignored.
func (r *CatalogRepository) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.load()
	if err != nil {
		return err
	}

	kept := slices.DeleteFunc(entries, func(e domain.CatalogEntry) bool { return e.ID == id })
	if len(kept) == len(entries) {
		return nil
	}
	return r.save("remove", kept)
}

// Clear removes all entries.
func (r *CatalogRepository) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prefs.RemoveValue(catalogKey)
	return nil
}

func (r *CatalogRepository) load() ([]domain.CatalogEntry, error) {
	data := r.prefs.String(catalogKey)
	if data == "" {
		return []domain.CatalogEntry{}, nil
	}

	var entries []domain.CatalogEntry
	if err := json.Unmarshal([]byte(data), &entries); err != nil {
		return nil, domain.NewRepositoryError("load", "catalog", "failed to unmarshal entries", err)
	}
	return entries, nil
}

func (r *CatalogRepository) save(op string, entries []domain.CatalogEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return domain.NewRepositoryError(op, "catalog", "failed to marshal entries", err)
	}
	r.prefs.SetString(catalogKey, string(data))
	return nil
}

// Verify interface implementation
var _ ports.CatalogRepository = (*CatalogRepository)(nil)
