// Package storage persists bot settings, tracked orders and running
// statistics so the supervisor survives restarts.
package storage

import (
	"time"

	"github.com/avoronkov/invest-sentinel/internal/models"
)

// Interface is the contract for durable supervisor state.
//
// Implementations must be safe for concurrent use - callers can assume all
// methods are goroutine-safe and can safely call them from multiple
// goroutines. Every method is a single atomic unit: a returned nil error
// means the change is durable.
type Interface interface {
	// Settings returns the singleton bot settings, creating them with safe
	// defaults (kill switch off, manual mode) on first call.
	Settings() (models.BotSettings, error)
	SetActive(active bool, reason, by string) (models.BotSettings, error)
	SetMode(mode models.Mode, reason, by string) (models.BotSettings, error)
	SetPauseUntil(until time.Time, reason, by string) (models.BotSettings, error)

	// SaveTracked upserts a tracked order by order id.
	SaveTracked(order models.TrackedOrder) error
	// UpdateTracked applies patch under the lock and bumps updated_at.
	// Returns false if no row with the given id exists.
	UpdateTracked(orderID string, patch func(*models.TrackedOrder)) (bool, error)
	// MarkExecuted transitions a pending order to executed and records the
	// fill. pnlRub/pnlPct are set for exit orders, nil for entries.
	MarkExecuted(orderID string, executedPrice float64, reason string, pnlRub, pnlPct *float64) error
	// MarkCancelled transitions a pending order to cancelled.
	MarkCancelled(orderID, reason string) error
	// LinkSiblings records the SL/TP order ids on their parent entry.
	// Empty ids leave the corresponding field untouched.
	LinkSiblings(entryID, slOrderID, tpOrderID string) error

	GetTracked(orderID string) (models.TrackedOrder, bool, error)
	// ListPending returns all pending orders ordered by creation time.
	ListPending() ([]models.TrackedOrder, error)

	// IncrementStats atomically applies the delta to the running counters.
	IncrementStats(delta models.StatsDelta) error
}

// NewStorage creates a new storage implementation (currently JSON-based).
// In the future, this can be extended to support different storage backends.
func NewStorage(filepath string) (Interface, error) {
	return NewJSONStorage(filepath)
}

// Ensure JSONStorage implements Interface
var _ Interface = (*JSONStorage)(nil)
