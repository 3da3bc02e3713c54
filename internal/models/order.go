// Package models provides the domain types shared by the order supervisor:
// tracked orders, bot settings and the per-ticker analytics snapshot.
package models

import (
	"fmt"
	"time"
)

// OrderType classifies a tracked order within the entry/exit lifecycle.
type OrderType string

const (
	// OrderTypeEntryBuy is the take-profit-buy stop order that opens a position.
	OrderTypeEntryBuy OrderType = "entry_buy"
	// OrderTypeStopLoss is the protective sell-stop placed after an entry fills.
	OrderTypeStopLoss OrderType = "stop_loss"
	// OrderTypeTakeProfit is the profit-taking sell-stop paired with the stop-loss.
	OrderTypeTakeProfit OrderType = "take_profit"
)

// Valid reports whether t is one of the known order types.
func (t OrderType) Valid() bool {
	switch t {
	case OrderTypeEntryBuy, OrderTypeStopLoss, OrderTypeTakeProfit:
		return true
	}
	return false
}

// IsExit reports whether the order is one of the SL/TP exit pair.
func (t OrderType) IsExit() bool {
	return t == OrderTypeStopLoss || t == OrderTypeTakeProfit
}

// Sibling returns the opposite exit type for an SL/TP order.
func (t OrderType) Sibling() OrderType {
	switch t {
	case OrderTypeStopLoss:
		return OrderTypeTakeProfit
	case OrderTypeTakeProfit:
		return OrderTypeStopLoss
	default:
		return ""
	}
}

// OrderStatus is the durable lifecycle status of a tracked order.
type OrderStatus string

const (
	// StatusPending means the order is live on the exchange and being watched.
	StatusPending OrderStatus = "pending"
	// StatusExecuted is terminal: the order filled.
	StatusExecuted OrderStatus = "executed"
	// StatusCancelled is terminal: the order was cancelled or vanished unfilled.
	StatusCancelled OrderStatus = "cancelled"
)

// statusTransitions defines the only legal status moves. The lifecycle is a
// DAG: pending is the sole non-terminal state.
var statusTransitions = map[OrderStatus][]OrderStatus{
	StatusPending: {StatusExecuted, StatusCancelled},
}

// CanTransition reports whether a status change from -> to is legal.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TrackedOrder is an order the supervisor observes until it reaches a
// terminal status. Entry orders carry the snapshot-derived offsets so that
// SL/TP can be computed from the real fill price later.
type TrackedOrder struct {
	OrderID   string    `json:"order_id"`
	Ticker    string    `json:"ticker"`
	FIGI      string    `json:"figi"`
	OrderType OrderType `json:"order_type"`
	Quantity  int       `json:"quantity"` // in lots
	LotSize   int       `json:"lot_size"`

	EntryPrice  float64 `json:"entry_price"`
	StopPrice   float64 `json:"stop_price"`
	TargetPrice float64 `json:"target_price"`
	StopOffset  float64 `json:"stop_offset"`
	TakeOffset  float64 `json:"take_offset"`
	ATR         float64 `json:"atr"`

	Status        OrderStatus `json:"status"`
	IsExecuted    bool        `json:"is_executed"`
	ExecutedPrice float64     `json:"executed_price,omitempty"`
	ExecutedAt    *time.Time  `json:"executed_at,omitempty"`
	ExecReason    string      `json:"exec_reason,omitempty"`
	CancelReason  string      `json:"cancel_reason,omitempty"`

	ParentOrderID string `json:"parent_order_id,omitempty"`
	SLOrderID     string `json:"sl_order_id,omitempty"`
	TPOrderID     string `json:"tp_order_id,omitempty"`

	PnLRub *float64 `json:"pnl_rub,omitempty"`
	PnLPct *float64 `json:"pnl_pct,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy string    `json:"created_by,omitempty"`
}

// Validate checks the fields a freshly tracked order must carry.
func (o *TrackedOrder) Validate() error {
	if o.OrderID == "" {
		return fmt.Errorf("tracked order missing order_id")
	}
	if !o.OrderType.Valid() {
		return fmt.Errorf("tracked order %s: unknown order type %q", o.OrderID, o.OrderType)
	}
	if o.Quantity <= 0 {
		return fmt.Errorf("tracked order %s: quantity must be > 0, got %d", o.OrderID, o.Quantity)
	}
	if o.LotSize <= 0 {
		return fmt.Errorf("tracked order %s: lot size must be > 0, got %d", o.OrderID, o.LotSize)
	}
	if o.OrderType.IsExit() && o.ParentOrderID == "" {
		return fmt.Errorf("tracked order %s: %s requires parent_order_id", o.OrderID, o.OrderType)
	}
	return nil
}

// Shares returns the position size in shares rather than lots.
func (o *TrackedOrder) Shares() int {
	return o.Quantity * o.LotSize
}

// PnL computes the realised result of an exit fill against the recorded
// entry price. Returns rubles and percent of the entry value.
func (o *TrackedOrder) PnL(exitPrice float64) (rub, pct float64) {
	perShare := exitPrice - o.EntryPrice
	rub = perShare * float64(o.Shares())
	if o.EntryPrice > 0 {
		pct = perShare / o.EntryPrice * 100
	}
	return rub, pct
}
