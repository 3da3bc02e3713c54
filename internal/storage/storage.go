package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/avoronkov/invest-sentinel/internal/models"
)

// JSONStorage keeps the whole supervisor state in one JSON file guarded by a
// RWMutex. Writes go through a temp file plus atomic rename so a crash never
// leaves a torn file behind.
type JSONStorage struct {
	mu       sync.RWMutex
	filepath string
	data     *storageData
}

type storageData struct {
	Settings    *models.BotSettings             `json:"settings"`
	Orders      map[string]*models.TrackedOrder `json:"orders"`
	LastUpdated time.Time                       `json:"last_updated"`
}

// NewJSONStorage opens (or initialises) the storage file at path.
func NewJSONStorage(path string) (*JSONStorage, error) {
	s := &JSONStorage{
		filepath: path,
		data: &storageData{
			Orders: make(map[string]*models.TrackedOrder),
		},
	}

	if _, err := os.Stat(path); err == nil {
		if err := s.load(); err != nil {
			return nil, fmt.Errorf("loading storage: %w", err)
		}
	}

	return s, nil
}

func (s *JSONStorage) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.filepath)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		return err
	}
	if s.data.Orders == nil {
		s.data.Orders = make(map[string]*models.TrackedOrder)
	}
	return nil
}

// saveLocked persists the current state. Callers must hold the write lock.
func (s *JSONStorage) saveLocked() error {
	s.data.LastUpdated = time.Now().UTC()

	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}

	// Write to temp file first, then atomic rename.
	tmpFile := s.filepath + ".tmp"
	if err := os.WriteFile(tmpFile, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpFile, s.filepath)
}

// settingsLocked returns the singleton settings, creating defaults on first
// access. Callers must hold the write lock.
func (s *JSONStorage) settingsLocked() *models.BotSettings {
	if s.data.Settings == nil {
		def := models.DefaultSettings()
		s.data.Settings = &def
	}
	return s.data.Settings
}

// Settings returns the singleton bot settings, creating them on first call.
func (s *JSONStorage) Settings() (models.BotSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := s.data.Settings == nil
	settings := s.settingsLocked()
	if created {
		if err := s.saveLocked(); err != nil {
			return models.BotSettings{}, err
		}
	}
	return *settings, nil
}

func (s *JSONStorage) mutateSettings(reason, by string, apply func(*models.BotSettings)) (models.BotSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings := s.settingsLocked()
	apply(settings)
	settings.LastChangeReason = reason
	settings.LastChangeBy = by
	settings.LastChangeAt = time.Now().UTC()
	settings.UpdatedAt = settings.LastChangeAt

	if err := s.saveLocked(); err != nil {
		return models.BotSettings{}, err
	}
	return *settings, nil
}

// SetActive flips the kill switch and records who did it and why.
func (s *JSONStorage) SetActive(active bool, reason, by string) (models.BotSettings, error) {
	return s.mutateSettings(reason, by, func(b *models.BotSettings) {
		b.IsActive = active
		if active {
			b.PauseUntil = nil
		}
	})
}

// SetMode switches between auto, manual and monitor_only.
func (s *JSONStorage) SetMode(mode models.Mode, reason, by string) (models.BotSettings, error) {
	if !mode.Valid() {
		return models.BotSettings{}, fmt.Errorf("unknown mode %q", mode)
	}
	return s.mutateSettings(reason, by, func(b *models.BotSettings) {
		b.Mode = mode
	})
}

// SetPauseUntil suspends activity until the given instant.
func (s *JSONStorage) SetPauseUntil(until time.Time, reason, by string) (models.BotSettings, error) {
	return s.mutateSettings(reason, by, func(b *models.BotSettings) {
		u := until.UTC()
		b.PauseUntil = &u
	})
}

// SaveTracked upserts a tracked order by order id.
func (s *JSONStorage) SaveTracked(order models.TrackedOrder) error {
	if err := order.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := s.data.Orders[order.OrderID]; ok {
		order.CreatedAt = existing.CreatedAt
	} else if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	if order.Status == "" {
		order.Status = models.StatusPending
	}
	order.UpdatedAt = now

	s.data.Orders[order.OrderID] = &order
	return s.saveLocked()
}

// UpdateTracked applies patch to a stored order and bumps updated_at.
func (s *JSONStorage) UpdateTracked(orderID string, patch func(*models.TrackedOrder)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.data.Orders[orderID]
	if !ok {
		return false, nil
	}
	patch(order)
	order.UpdatedAt = time.Now().UTC()
	if err := s.saveLocked(); err != nil {
		return false, err
	}
	return true, nil
}

// MarkExecuted transitions a pending order to executed.
func (s *JSONStorage) MarkExecuted(orderID string, executedPrice float64, reason string, pnlRub, pnlPct *float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.data.Orders[orderID]
	if !ok {
		return fmt.Errorf("mark executed %s: %w", orderID, ErrOrderNotFound)
	}
	if !models.CanTransition(order.Status, models.StatusExecuted) {
		return fmt.Errorf("mark executed %s: %s -> executed: %w", orderID, order.Status, ErrInvalidTransition)
	}

	now := time.Now().UTC()
	order.Status = models.StatusExecuted
	order.IsExecuted = true
	order.ExecutedPrice = executedPrice
	order.ExecutedAt = &now
	order.ExecReason = reason
	order.PnLRub = pnlRub
	order.PnLPct = pnlPct
	order.UpdatedAt = now

	return s.saveLocked()
}

// MarkCancelled transitions a pending order to cancelled.
func (s *JSONStorage) MarkCancelled(orderID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.data.Orders[orderID]
	if !ok {
		return fmt.Errorf("mark cancelled %s: %w", orderID, ErrOrderNotFound)
	}
	if !models.CanTransition(order.Status, models.StatusCancelled) {
		return fmt.Errorf("mark cancelled %s: %s -> cancelled: %w", orderID, order.Status, ErrInvalidTransition)
	}

	order.Status = models.StatusCancelled
	order.CancelReason = reason
	order.UpdatedAt = time.Now().UTC()

	return s.saveLocked()
}

// LinkSiblings records SL/TP back-references on the entry order.
func (s *JSONStorage) LinkSiblings(entryID, slOrderID, tpOrderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.data.Orders[entryID]
	if !ok {
		return fmt.Errorf("link siblings %s: %w", entryID, ErrOrderNotFound)
	}
	if slOrderID != "" {
		order.SLOrderID = slOrderID
	}
	if tpOrderID != "" {
		order.TPOrderID = tpOrderID
	}
	order.UpdatedAt = time.Now().UTC()

	return s.saveLocked()
}

// GetTracked returns one stored order by id.
func (s *JSONStorage) GetTracked(orderID string) (models.TrackedOrder, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.data.Orders[orderID]
	if !ok {
		return models.TrackedOrder{}, false, nil
	}
	return *order, true, nil
}

// ListPending returns all pending orders ordered by creation time.
func (s *JSONStorage) ListPending() ([]models.TrackedOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pending []models.TrackedOrder
	for _, order := range s.data.Orders {
		if order.Status == models.StatusPending {
			pending = append(pending, *order)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	return pending, nil
}

// IncrementStats atomically applies the delta to the running counters.
func (s *JSONStorage) IncrementStats(delta models.StatsDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings := s.settingsLocked()
	settings.TotalOrdersPlaced += delta.OrdersPlaced
	settings.TotalSLTriggered += delta.SLTriggered
	settings.TotalTPTriggered += delta.TPTriggered
	settings.TotalPnLRub += delta.PnLRub
	settings.UpdatedAt = time.Now().UTC()

	return s.saveLocked()
}
