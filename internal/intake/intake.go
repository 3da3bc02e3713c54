// Package intake handles user-initiated buy orders: validation, the
// confirm-or-cancel handshake and the final placement that hands the entry
// over to the watcher.
package intake

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avoronkov/invest-sentinel/internal/broker"
	"github.com/avoronkov/invest-sentinel/internal/config"
	"github.com/avoronkov/invest-sentinel/internal/models"
	"github.com/avoronkov/invest-sentinel/internal/snapshot"
	"github.com/avoronkov/invest-sentinel/internal/validator"
	"github.com/avoronkov/invest-sentinel/internal/watcher"
)

var (
	// ErrConfirmationExpired means the callback id is unknown or past its
	// deadline; the user must start over.
	ErrConfirmationExpired = errors.New("confirmation expired or already handled")
	// ErrNotYourOrder means a different user tried to confirm the order.
	ErrNotYourOrder = errors.New("confirmation belongs to another user")
	// ErrRejected wraps a failed validation.
	ErrRejected = errors.New("order rejected by validation")
)

// Tracker is the slice of the watcher the intake needs.
type Tracker interface {
	TrackOrder(req watcher.TrackRequest) error
	OpenPositions() int
}

// Checker is the slice of the validator the intake needs.
type Checker interface {
	ValidateBuy(req validator.BuyRequest) validator.Result
	IncrementDailyTrades()
}

// Gate reports whether the bot is accepting trading operations. Satisfied
// by the mode controller.
type Gate interface {
	IsActive() bool
}

// Stats is the slice of the store the intake needs for order counters.
type Stats interface {
	IncrementStats(delta models.StatsDelta) error
}

// PendingOrder is a validated buy waiting for the user's confirmation.
type PendingOrder struct {
	CallbackID   string    `json:"callback_id"`
	UserID       string    `json:"user_id"`
	Ticker       string    `json:"ticker"`
	FIGI         string    `json:"figi"`
	EntryPrice   float64   `json:"entry_price"`
	QuantityLots int       `json:"quantity_lots"`
	LotSize      int       `json:"lot_size"`
	ATR          float64   `json:"atr"`
	SLPrice      float64   `json:"sl_price"`
	TPPrice      float64   `json:"tp_price"`
	RiskRub      float64   `json:"risk_rub"`
	RiskPct      float64   `json:"risk_pct"`
	RewardRub    float64   `json:"reward_rub"`
	Warnings     []string  `json:"warnings,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Intake validates buys against the snapshot cache and holds them until
// confirmed. Confirmations are single-shot and owner-bound.
type Intake struct {
	cfg     *config.Config
	port    broker.Port
	cache   *snapshot.Cache
	checker Checker
	tracker Tracker
	gate    Gate
	stats   Stats
	logger  *log.Logger

	mu      sync.Mutex
	pending map[string]*PendingOrder

	now func() time.Time
}

// New wires an intake.
func New(
	cfg *config.Config,
	port broker.Port,
	cache *snapshot.Cache,
	checker Checker,
	tracker Tracker,
	gate Gate,
	stats Stats,
	logger *log.Logger,
) *Intake {
	if logger == nil {
		logger = log.Default()
	}
	return &Intake{
		cfg:     cfg,
		port:    port,
		cache:   cache,
		checker: checker,
		tracker: tracker,
		gate:    gate,
		stats:   stats,
		logger:  logger,
		pending: make(map[string]*PendingOrder),
		now:     time.Now,
	}
}

// RequestBuy validates a buy and parks it for confirmation. price and lots
// are optional: a nil price uses the snapshot entry level, nil lots are
// sized from the per-trade risk budget.
func (i *Intake) RequestBuy(ctx context.Context, userID, ticker string, price *float64, lots *int) (*PendingOrder, error) {
	if !i.gate.IsActive() {
		return nil, fmt.Errorf("bot is inactive, resume it before trading")
	}
	if !i.cfg.FreeTrading.Enabled {
		return nil, fmt.Errorf("free trading is disabled")
	}

	snap, ok := i.cache.Get(ticker)
	if !ok {
		return nil, fmt.Errorf("ticker %s not in today's snapshot", ticker)
	}
	if snap.ATR <= 0 {
		return nil, fmt.Errorf("no ATR computed for %s yet", ticker)
	}

	entryPrice := snap.EntryPrice
	if price != nil {
		entryPrice = *price
	}
	if entryPrice <= 0 {
		return nil, fmt.Errorf("no entry price for %s", ticker)
	}

	callCtx, cancel := context.WithTimeout(ctx, broker.DefaultCallTimeout)
	currentPrice, err := i.port.GetLastPrice(callCtx, snap.FIGI)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("getting current price for %s: %w", ticker, err)
	}

	lotSize := snap.LotSize
	if lotSize <= 0 {
		lotSize = 1
	}
	quantityLots := i.autoLots(entryPrice, snap.ATR, lotSize)
	if lots != nil {
		quantityLots = *lots
	}

	result := i.checker.ValidateBuy(validator.BuyRequest{
		Ticker:        ticker,
		EntryPrice:    entryPrice,
		QuantityLots:  quantityLots,
		LotSize:       lotSize,
		CurrentPrice:  currentPrice,
		ATR:           snap.ATR,
		OpenPositions: i.tracker.OpenPositions(),
	})
	if !result.IsValid {
		return nil, fmt.Errorf("%w: %v", ErrRejected, result.Errors)
	}

	pending := &PendingOrder{
		CallbackID:   uuid.NewString(),
		UserID:       userID,
		Ticker:       ticker,
		FIGI:         snap.FIGI,
		EntryPrice:   entryPrice,
		QuantityLots: quantityLots,
		LotSize:      lotSize,
		ATR:          snap.ATR,
		SLPrice:      result.SLPrice,
		TPPrice:      result.TPPrice,
		RiskRub:      result.RiskRub,
		RiskPct:      result.RiskPct,
		RewardRub:    result.RewardRub,
		Warnings:     result.Warnings,
		CreatedAt:    i.now(),
	}

	i.mu.Lock()
	i.sweepLocked()
	i.pending[pending.CallbackID] = pending
	i.mu.Unlock()

	i.logger.Printf("buy %s pending confirmation %s: %d lots at %.2f (SL %.2f / TP %.2f)",
		ticker, pending.CallbackID, quantityLots, entryPrice, result.SLPrice, result.TPPrice)
	return pending, nil
}

// autoLots sizes the position so a stop-out costs the per-trade risk
// budget; never less than one lot.
func (i *Intake) autoLots(entryPrice, atr float64, lotSize int) int {
	maxRiskRub := i.cfg.Trading.DepositRub * i.cfg.Trading.RiskPerTradePct
	riskPerLot := atr * i.cfg.FreeTrading.SLATRMultiplier * float64(lotSize)
	if riskPerLot <= 0 {
		return 1
	}
	lots := int(maxRiskRub / riskPerLot)
	if lots < 1 {
		return 1
	}
	return lots
}

// take pops a pending order if it is still live; expired entries are
// dropped on the spot.
func (i *Intake) take(callbackID string) (*PendingOrder, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	pending, ok := i.pending[callbackID]
	if !ok {
		return nil, ErrConfirmationExpired
	}
	delete(i.pending, callbackID)

	if i.now().Sub(pending.CreatedAt) > i.cfg.ConfirmationTimeout() {
		return nil, ErrConfirmationExpired
	}
	return pending, nil
}

// Confirm places the entry order and hands it to the watcher. Only the user
// who requested the buy may confirm it.
func (i *Intake) Confirm(ctx context.Context, userID, callbackID string) (string, error) {
	pending, err := i.take(callbackID)
	if err != nil {
		return "", err
	}

	if pending.UserID != userID {
		// Put it back so the owner can still confirm.
		i.mu.Lock()
		i.pending[callbackID] = pending
		i.mu.Unlock()
		return "", ErrNotYourOrder
	}

	if !i.gate.IsActive() {
		// Re-park the order so the owner can confirm after a resume.
		i.mu.Lock()
		i.pending[callbackID] = pending
		i.mu.Unlock()
		return "", fmt.Errorf("bot is inactive, resume it before trading")
	}

	callCtx, cancel := context.WithTimeout(ctx, broker.DefaultCallTimeout)
	orderID, err := i.port.PlaceStopOrder(callCtx, broker.PlaceStopOrderRequest{
		FIGI:         pending.FIGI,
		QuantityLots: pending.QuantityLots,
		TriggerPrice: pending.EntryPrice,
		Side:         broker.SideBuy,
		Kind:         broker.KindTakeProfit,
	})
	cancel()
	if err != nil {
		return "", fmt.Errorf("placing entry for %s: %w", pending.Ticker, err)
	}

	i.checker.IncrementDailyTrades()
	if statsErr := i.stats.IncrementStats(models.StatsDelta{OrdersPlaced: 1}); statsErr != nil {
		i.logger.Printf("[ERROR] incrementing stats: %v", statsErr)
	}

	if i.cfg.Safety.DryRun {
		i.logger.Printf("DRY RUN: entry %s for %s not tracked", orderID, pending.Ticker)
		return orderID, nil
	}

	if err := i.tracker.TrackOrder(watcher.TrackRequest{
		OrderID:      orderID,
		Ticker:       pending.Ticker,
		FIGI:         pending.FIGI,
		OrderType:    models.OrderTypeEntryBuy,
		QuantityLots: pending.QuantityLots,
		LotSize:      pending.LotSize,
		EntryPrice:   pending.EntryPrice,
		StopPrice:    pending.SLPrice,
		TargetPrice:  pending.TPPrice,
		StopOffset:   pending.EntryPrice - pending.SLPrice,
		TakeOffset:   pending.TPPrice - pending.EntryPrice,
		ATR:          pending.ATR,
		CreatedBy:    "user:" + userID,
	}); err != nil {
		return orderID, fmt.Errorf("entry %s placed but not tracked: %w", orderID, err)
	}

	i.logger.Printf("entry %s placed and tracked for %s", orderID, pending.Ticker)
	return orderID, nil
}

// CancelPending discards a pending confirmation. Cancelling an unknown or
// expired id just reports false.
func (i *Intake) CancelPending(callbackID string) (PendingOrder, bool) {
	pending, err := i.take(callbackID)
	if err != nil {
		return PendingOrder{}, false
	}
	i.logger.Printf("pending buy %s cancelled (%s)", callbackID, pending.Ticker)
	return *pending, true
}

// PendingCount returns the number of live confirmations.
func (i *Intake) PendingCount() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.sweepLocked()
	return len(i.pending)
}

// sweepLocked drops expired confirmations. Callers must hold the lock.
func (i *Intake) sweepLocked() {
	deadline := i.now().Add(-i.cfg.ConfirmationTimeout())
	for id, p := range i.pending {
		if p.CreatedAt.Before(deadline) {
			delete(i.pending, id)
		}
	}
}
