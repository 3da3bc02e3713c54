package storage

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/avoronkov/invest-sentinel/internal/models"
)

// MockStorage implements Interface in memory for testing. Error fields let
// tests simulate a broken backing store (fail-closed paths).
type MockStorage struct {
	mu sync.Mutex

	settings *models.BotSettings
	orders   map[string]*models.TrackedOrder

	SettingsErr error
	WriteErr    error
}

var _ Interface = (*MockStorage)(nil)

// NewMockStorage creates an empty mock store.
func NewMockStorage() *MockStorage {
	return &MockStorage{orders: make(map[string]*models.TrackedOrder)}
}

func (m *MockStorage) settingsLocked() *models.BotSettings {
	if m.settings == nil {
		def := models.DefaultSettings()
		m.settings = &def
	}
	return m.settings
}

func (m *MockStorage) Settings() (models.BotSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SettingsErr != nil {
		return models.BotSettings{}, m.SettingsErr
	}
	return *m.settingsLocked(), nil
}

func (m *MockStorage) SetActive(active bool, reason, by string) (models.BotSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return models.BotSettings{}, m.WriteErr
	}
	s := m.settingsLocked()
	s.IsActive = active
	if active {
		s.PauseUntil = nil
	}
	m.stamp(s, reason, by)
	return *s, nil
}

func (m *MockStorage) SetMode(mode models.Mode, reason, by string) (models.BotSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return models.BotSettings{}, m.WriteErr
	}
	s := m.settingsLocked()
	s.Mode = mode
	m.stamp(s, reason, by)
	return *s, nil
}

func (m *MockStorage) SetPauseUntil(until time.Time, reason, by string) (models.BotSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return models.BotSettings{}, m.WriteErr
	}
	s := m.settingsLocked()
	u := until.UTC()
	s.PauseUntil = &u
	m.stamp(s, reason, by)
	return *s, nil
}

func (m *MockStorage) stamp(s *models.BotSettings, reason, by string) {
	s.LastChangeReason = reason
	s.LastChangeBy = by
	s.LastChangeAt = time.Now().UTC()
	s.UpdatedAt = s.LastChangeAt
}

func (m *MockStorage) SaveTracked(order models.TrackedOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	if err := order.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if existing, ok := m.orders[order.OrderID]; ok {
		order.CreatedAt = existing.CreatedAt
	} else if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	if order.Status == "" {
		order.Status = models.StatusPending
	}
	order.UpdatedAt = now
	m.orders[order.OrderID] = &order
	return nil
}

func (m *MockStorage) UpdateTracked(orderID string, patch func(*models.TrackedOrder)) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return false, m.WriteErr
	}
	order, ok := m.orders[orderID]
	if !ok {
		return false, nil
	}
	patch(order)
	order.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *MockStorage) MarkExecuted(orderID string, executedPrice float64, reason string, pnlRub, pnlPct *float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	order, ok := m.orders[orderID]
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
	return nil
}

func (m *MockStorage) MarkCancelled(orderID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	order, ok := m.orders[orderID]
	if !ok {
		return fmt.Errorf("mark cancelled %s: %w", orderID, ErrOrderNotFound)
	}
	if !models.CanTransition(order.Status, models.StatusCancelled) {
		return fmt.Errorf("mark cancelled %s: %s -> cancelled: %w", orderID, order.Status, ErrInvalidTransition)
	}
	order.Status = models.StatusCancelled
	order.CancelReason = reason
	order.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MockStorage) LinkSiblings(entryID, slOrderID, tpOrderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	order, ok := m.orders[entryID]
	if !ok {
		return fmt.Errorf("link siblings %s: %w", entryID, ErrOrderNotFound)
	}
	if slOrderID != "" {
		order.SLOrderID = slOrderID
	}
	if tpOrderID != "" {
		order.TPOrderID = tpOrderID
	}
	return nil
}

func (m *MockStorage) GetTracked(orderID string) (models.TrackedOrder, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok {
		return models.TrackedOrder{}, false, nil
	}
	return *order, true, nil
}

func (m *MockStorage) ListPending() ([]models.TrackedOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pending []models.TrackedOrder
	for _, order := range m.orders {
		if order.Status == models.StatusPending {
			pending = append(pending, *order)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	return pending, nil
}

func (m *MockStorage) IncrementStats(delta models.StatsDelta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	s := m.settingsLocked()
	s.TotalOrdersPlaced += delta.OrdersPlaced
	s.TotalSLTriggered += delta.SLTriggered
	s.TotalTPTriggered += delta.TPTriggered
	s.TotalPnLRub += delta.PnLRub
	s.UpdatedAt = time.Now().UTC()
	return nil
}
