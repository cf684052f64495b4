package memory

import (
	"encoding/json"
	"sync"

	"fyne.io/fyne/v2"
	"github.com/tejashwikalptaru/tunecache/internal/domain"
	"github.com/tejashwikalptaru/tunecache/internal/ports"
)

const (
	historyKey = "history.records"

	// DefaultHistoryLimit is how many job outcomes are kept.
	DefaultHistoryLimit = 100
)

// HistoryRepository implements ports.HistoryRepository using Fyne preferences.
// Records are kept newest first and trimmed to the configured limit.
//
// Thread-safe: All operations protected by sync.RWMutex.
type HistoryRepository struct {
	prefs fyne.Preferences
	limit int
	mu    sync.RWMutex
}

// NewHistoryRepository creates a new history repository keeping at most limit records.
// A limit <= 0 uses DefaultHistoryLimit.
func NewHistoryRepository(prefs fyne.Preferences, limit int) *HistoryRepository {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &HistoryRepository{
		prefs: prefs,
		limit: limit,
	}
}

// Record prepends record, dropping the oldest ones past the limit.
func (r *HistoryRepository) Record(record domain.HistoryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load()
	if err != nil {
		return err
	}

	records = append([]domain.HistoryRecord{record}, records...)
	if len(records) > r.limit {
		records = records[:r.limit]
	}

	data, err := json.Marshal(records)
	if err != nil {
		return domain.NewRepositoryError("record", "history", "failed to marshal records", err)
	}
	r.prefs.SetString(historyKey, string(data))
	return nil
}

// Recent returns up to limit records, newest first. limit <= 0 returns all of them.
func (r *HistoryRepository) Recent(limit int) ([]domain.HistoryRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records, err := r.load()
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Clear removes all saved history data.
func (r *HistoryRepository) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prefs.RemoveValue(historyKey)
	return nil
}

func (r *HistoryRepository) load() ([]domain.HistoryRecord, error) {
	data := r.prefs.String(historyKey)
	if data == "" {
		return []domain.HistoryRecord{}, nil
	}

	var records []domain.HistoryRecord
	if err := json.Unmarshal([]byte(data), &records); err != nil {
		return nil, domain.NewRepositoryError("load", "history", "failed to unmarshal records", err)
	}
	return records, nil
}

// Verify interface implementation
var _ ports.HistoryRepository = (*HistoryRepository)(nil)
