// Package broker defines the capability set the supervisor needs from the
// exchange and the wrappers (dry-run, circuit breaker, rate limit) layered
// on top of a concrete client.
package broker

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// StopKind is the exchange-level kind of a stop order.
type StopKind string

const (
	KindTakeProfit StopKind = "take_profit"
	KindStopLoss   StopKind = "stop_loss"
)

// StopOrderStatus is the status the exchange reports for a stop order.
type StopOrderStatus string

const (
	StopOrderActive    StopOrderStatus = "active"
	StopOrderExecuted  StopOrderStatus = "executed"
	StopOrderCancelled StopOrderStatus = "cancelled"
)

// StopOrder is one row of the exchange's stop-order listing.
type StopOrder struct {
	OrderID      string
	FIGI         string
	Side         Side
	Kind         StopKind
	TriggerPrice float64
	Quantity     int
	Status       StopOrderStatus
}

// PortfolioPosition is one row of the account portfolio.
type PortfolioPosition struct {
	FIGI         string
	Quantity     float64
	AveragePrice float64
}

// PlaceStopOrderRequest carries the parameters of a new stop order.
// Expiration is always good-till-cancel.
type PlaceStopOrderRequest struct {
	FIGI         string
	QuantityLots int
	TriggerPrice float64
	Side         Side
	Kind         StopKind
}

// Port is the broker capability set the supervisor depends on. All calls may
// block until the per-request timeout and report failures as typed errors;
// callers never observe partial success.
type Port interface {
	PlaceStopOrder(ctx context.Context, req PlaceStopOrderRequest) (orderID string, err error)
	// CancelStopOrder is idempotent: cancelling an unknown order is not an error.
	CancelStopOrder(ctx context.Context, orderID string) error
	ListStopOrders(ctx context.Context) ([]StopOrder, error)
	GetPortfolio(ctx context.Context) ([]PortfolioPosition, error)
	// PlaceMarketOrder is used only for emergency closes.
	PlaceMarketOrder(ctx context.Context, figi string, quantityLots int, side Side) (orderID string, err error)
	GetLastPrice(ctx context.Context, figi string) (float64, error)
}

// DefaultCallTimeout bounds every individual broker call.
const DefaultCallTimeout = 15 * time.Second

// RejectedError is a validation refusal by the exchange. It is permanent:
// the caller surfaces it and does not retry.
type RejectedError struct {
	Op     string
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("broker rejected %s: %s", e.Op, e.Reason)
}

// UnavailableError is a transport-level failure (network, 5xx, deadline).
// It is transient: the watcher retries on the next poll.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("broker unavailable during %s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// IsRejected reports whether err is a permanent broker rejection.
func IsRejected(err error) bool {
	var re *RejectedError
	return errors.As(err, &re)
}

// IsUnavailable reports whether err is a transient transport failure.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	if errors.As(err, &ue) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
