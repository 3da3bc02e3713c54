package models

import "time"

// Mode selects how much of the lifecycle the supervisor automates.
type Mode string

const (
	// ModeAuto places SL/TP automatically after an entry fill.
	ModeAuto Mode = "auto"
	// ModeManual only notifies; the operator places exits themselves.
	ModeManual Mode = "manual"
	// ModeMonitorOnly observes without notifications about actions.
	ModeMonitorOnly Mode = "monitor_only"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeAuto, ModeManual, ModeMonitorOnly:
		return true
	}
	return false
}

// BotSettings is the durable singleton controlling the whole process.
// There is exactly one row; first boot creates it with the kill switch off.
type BotSettings struct {
	IsActive   bool       `json:"is_active"`
	Mode       Mode       `json:"mode"`
	PauseUntil *time.Time `json:"pause_until,omitempty"`

	LastChangeReason string    `json:"last_change_reason,omitempty"`
	LastChangeBy     string    `json:"last_change_by,omitempty"`
	LastChangeAt     time.Time `json:"last_change_at,omitempty"`

	TotalOrdersPlaced int     `json:"total_orders_placed"`
	TotalSLTriggered  int     `json:"total_sl_triggered"`
	TotalTPTriggered  int     `json:"total_tp_triggered"`
	TotalPnLRub       float64 `json:"total_pnl_rub"`

	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultSettings returns the safe first-boot settings: kill switch off,
// manual mode.
func DefaultSettings() BotSettings {
	return BotSettings{
		IsActive:         false,
		Mode:             ModeManual,
		LastChangeReason: "initial setup",
		LastChangeAt:     time.Now().UTC(),
		UpdatedAt:        time.Now().UTC(),
	}
}

// ActiveAt reports whether the bot should act at the given instant,
// honouring both the kill switch and a pause window.
func (s *BotSettings) ActiveAt(now time.Time) bool {
	if !s.IsActive {
		return false
	}
	if s.PauseUntil != nil && s.PauseUntil.After(now) {
		return false
	}
	return true
}

// StatsDelta is an atomic increment applied to the running counters.
type StatsDelta struct {
	OrdersPlaced int
	SLTriggered  int
	TPTriggered  int
	PnLRub       float64
}
