// Package watcher polls the exchange stop-order listing and drives tracked
// orders through their lifecycle: entry fills spawn the SL/TP pair, exit
// fills realise PnL and cancel the sibling, vanished orders are resolved
// against the portfolio.
package watcher

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/avoronkov/invest-sentinel/internal/broker"
	"github.com/avoronkov/invest-sentinel/internal/config"
	"github.com/avoronkov/invest-sentinel/internal/guard"
	"github.com/avoronkov/invest-sentinel/internal/modectl"
	"github.com/avoronkov/invest-sentinel/internal/models"
	"github.com/avoronkov/invest-sentinel/internal/notify"
	"github.com/avoronkov/invest-sentinel/internal/retry"
	"github.com/avoronkov/invest-sentinel/internal/storage"
	"github.com/avoronkov/invest-sentinel/internal/util"
)

const (
	// maxConsecutiveErrors triggers the long cooldown sleep.
	maxConsecutiveErrors = 5
	errorCooldown        = 60 * time.Second
)

// LossRecorder receives realised losses so the daily limit can see them.
type LossRecorder interface {
	AddDailyLoss(lossRub float64)
}

// TrackRequest carries everything needed to start watching one order.
type TrackRequest struct {
	OrderID      string
	Ticker       string
	FIGI         string
	OrderType    models.OrderType
	QuantityLots int
	LotSize      int

	EntryPrice  float64
	StopPrice   float64
	TargetPrice float64
	StopOffset  float64
	TakeOffset  float64
	ATR         float64

	ParentOrderID string
	CreatedBy     string
}

// Watcher is the polling supervisor. The kill switch is re-checked at the
// top of every iteration and again before each individual order, so a mid
// iteration kill stops all further action.
type Watcher struct {
	cfg      *config.Config
	port     broker.Port
	store    storage.Interface
	ctl      *modectl.Controller
	notifier notify.Notifier
	losses   LossRecorder
	retrier  *retry.Client
	guard    *guard.SLPlacementGuard
	logger   *log.Logger

	pollInterval time.Duration

	mu       sync.Mutex
	tracked  map[string]models.TrackedOrder
	executed map[string]struct{}
}

// New wires a watcher. losses may be nil when no daily-loss accounting is
// wanted (tests, monitor deployments).
func New(
	cfg *config.Config,
	port broker.Port,
	store storage.Interface,
	ctl *modectl.Controller,
	notifier notify.Notifier,
	losses LossRecorder,
	logger *log.Logger,
) *Watcher {
	if logger == nil {
		logger = log.Default()
	}
	w := &Watcher{
		cfg:          cfg,
		port:         port,
		store:        store,
		ctl:          ctl,
		notifier:     notifier,
		losses:       losses,
		retrier:      retry.NewClient(port, logger),
		logger:       logger,
		pollInterval: cfg.PollInterval(),
		tracked:      make(map[string]models.TrackedOrder),
		executed:     make(map[string]struct{}),
	}
	w.guard = guard.New(cfg.SLPlacementTimeout(), w.emergencyClose, logger)
	return w
}

// Guard exposes the SL deadline registry, mainly for the kill command and
// status reporting.
func (w *Watcher) Guard() *guard.SLPlacementGuard { return w.guard }

// TrackedCount returns how many orders are currently watched.
func (w *Watcher) TrackedCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.tracked)
}

// Tracked returns a copy of the watched orders for reporting.
func (w *Watcher) Tracked() []models.TrackedOrder {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]models.TrackedOrder, 0, len(w.tracked))
	for _, o := range w.tracked {
		out = append(out, o)
	}
	return out
}

// OpenPositions counts watched entry orders that have not filled yet. The
// validator uses it for the concurrent-positions cap.
func (w *Watcher) OpenPositions() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, o := range w.tracked {
		if o.OrderType == models.OrderTypeEntryBuy && !o.IsExecuted {
			n++
		}
	}
	return n
}

// TrackOrder starts watching an order and persists it. Refused while the
// kill switch is off.
func (w *Watcher) TrackOrder(req TrackRequest) error {
	if !w.ctl.IsActive() {
		w.logger.Printf("[WARN] track refused while inactive: %s", req.OrderID)
		return fmt.Errorf("bot is inactive, order %s not tracked", req.OrderID)
	}

	order := models.TrackedOrder{
		OrderID:       req.OrderID,
		Ticker:        req.Ticker,
		FIGI:          req.FIGI,
		OrderType:     req.OrderType,
		Quantity:      req.QuantityLots,
		LotSize:       req.LotSize,
		EntryPrice:    req.EntryPrice,
		StopPrice:     req.StopPrice,
		TargetPrice:   req.TargetPrice,
		StopOffset:    req.StopOffset,
		TakeOffset:    req.TakeOffset,
		ATR:           req.ATR,
		Status:        models.StatusPending,
		ParentOrderID: req.ParentOrderID,
		CreatedBy:     req.CreatedBy,
	}

	w.mu.Lock()
	w.tracked[order.OrderID] = order
	w.mu.Unlock()

	if err := w.store.SaveTracked(order); err != nil {
		w.logger.Printf("[ERROR] persisting tracked order %s: %v", order.OrderID, err)
		return err
	}

	w.logger.Printf("tracking %s %s (%s)", order.OrderType, order.OrderID, order.Ticker)
	return nil
}

// Untrack stops watching an order and marks it cancelled in storage.
func (w *Watcher) Untrack(orderID, reason string) {
	w.mu.Lock()
	delete(w.tracked, orderID)
	w.mu.Unlock()

	if err := w.store.MarkCancelled(orderID, reason); err != nil {
		w.logger.Printf("[ERROR] marking %s cancelled: %v", orderID, err)
	}
	w.logger.Printf("untracked %s (%s)", orderID, reason)
}

// Run is the poll loop. It hydrates pending orders from storage, then polls
// until ctx is cancelled. While inactive the loop keeps running at half
// cadence so a resume picks up immediately.
func (w *Watcher) Run(ctx context.Context) error {
	w.hydrate()

	consecutive := 0
	for {
		if !w.ctl.IsActive() {
			if !sleepCtx(ctx, w.pollInterval*2) {
				break
			}
			continue
		}

		if err := w.checkOrders(ctx); err != nil {
			consecutive++
			w.logger.Printf("[ERROR] poll iteration failed (consecutive %d): %v", consecutive, err)
			if consecutive == 1 {
				w.notifier.SendError(fmt.Sprintf("watcher error, continuing: %v", err))
			} else if consecutive >= maxConsecutiveErrors {
				w.notifier.SendError(fmt.Sprintf("watcher: %d consecutive errors, cooling down %s", consecutive, errorCooldown))
				if !sleepCtx(ctx, errorCooldown) {
					break
				}
				consecutive = 0
				continue
			}
		} else {
			consecutive = 0
		}

		if !sleepCtx(ctx, w.pollInterval) {
			break
		}
	}

	w.guard.CancelAll()
	w.logger.Printf("watcher stopped")
	return nil
}

// sleepCtx waits d or until ctx is done; false means shutdown.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

// hydrate restores pending orders from storage after a restart.
func (w *Watcher) hydrate() {
	pending, err := w.store.ListPending()
	if err != nil {
		w.logger.Printf("[ERROR] loading pending orders: %v", err)
		return
	}

	w.mu.Lock()
	for _, order := range pending {
		w.tracked[order.OrderID] = order
	}
	w.mu.Unlock()

	w.logger.Printf("restored %d pending orders", len(pending))
	if len(pending) > 0 {
		w.notifier.Send(fmt.Sprintf("restored %d tracked orders after restart", len(pending)))
	}
}

// checkOrders runs one poll iteration over every tracked order.
func (w *Watcher) checkOrders(ctx context.Context) error {
	w.mu.Lock()
	snapshot := make([]models.TrackedOrder, 0, len(w.tracked))
	for _, o := range w.tracked {
		snapshot = append(snapshot, o)
	}
	w.mu.Unlock()

	if len(snapshot) == 0 {
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, broker.DefaultCallTimeout)
	listed, err := w.port.ListStopOrders(callCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("listing stop orders: %w", err)
	}

	byID := make(map[string]broker.StopOrder, len(listed))
	for _, o := range listed {
		byID[o.OrderID] = o
	}

	for _, tracked := range snapshot {
		// A kill mid-iteration stops all further action.
		if !w.ctl.IsActive() {
			w.logger.Printf("iteration interrupted, bot inactive")
			return nil
		}
		if err := w.processOrder(ctx, tracked, byID); err != nil {
			w.logger.Printf("[ERROR] processing order %s: %v", tracked.OrderID, err)
		}
	}
	return nil
}

func (w *Watcher) processOrder(ctx context.Context, tracked models.TrackedOrder, listed map[string]broker.StopOrder) error {
	w.mu.Lock()
	_, done := w.executed[tracked.OrderID]
	w.mu.Unlock()
	if done {
		return nil
	}

	apiOrder, found := listed[tracked.OrderID]
	if !found {
		return w.resolveMissing(ctx, tracked)
	}

	switch apiOrder.Status {
	case broker.StopOrderExecuted:
		return w.handleExecuted(ctx, tracked, apiOrder.TriggerPrice)
	case broker.StopOrderCancelled:
		w.handleCancelled(tracked)
	}
	return nil
}

// resolveMissing handles an order that vanished from the listing. For an
// entry the portfolio decides: a live position means it filled at the
// average price; anything else is treated as cancelled.
func (w *Watcher) resolveMissing(ctx context.Context, tracked models.TrackedOrder) error {
	w.logger.Printf("order %s (%s) missing from listing, checking portfolio", tracked.OrderID, tracked.Ticker)

	callCtx, cancel := context.WithTimeout(ctx, broker.DefaultCallTimeout)
	positions, err := w.port.GetPortfolio(callCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("resolving missing order %s: %w", tracked.OrderID, err)
	}

	var executedPrice float64
	hasPosition := false
	for _, pos := range positions {
		if pos.FIGI == tracked.FIGI && pos.Quantity > 0 {
			hasPosition = true
			executedPrice = pos.AveragePrice
			break
		}
	}

	if hasPosition && tracked.OrderType == models.OrderTypeEntryBuy {
		return w.handleExecuted(ctx, tracked, executedPrice)
	}
	w.handleCancelled(tracked)
	return nil
}

// handleExecuted routes a fill by order type.
func (w *Watcher) handleExecuted(ctx context.Context, tracked models.TrackedOrder, executedPrice float64) error {
	w.mu.Lock()
	w.executed[tracked.OrderID] = struct{}{}
	w.mu.Unlock()

	w.logger.Printf("order %s (%s %s) executed at %.2f",
		tracked.OrderID, tracked.Ticker, tracked.OrderType, executedPrice)

	switch tracked.OrderType {
	case models.OrderTypeEntryBuy:
		if err := w.store.MarkExecuted(tracked.OrderID, executedPrice, "filled", nil, nil); err != nil {
			w.logger.Printf("[ERROR] marking entry %s executed: %v", tracked.OrderID, err)
		}
		w.onEntryExecuted(ctx, tracked, executedPrice)

	case models.OrderTypeStopLoss:
		w.onExitExecuted(ctx, tracked, executedPrice, "sl_triggered")

	case models.OrderTypeTakeProfit:
		w.onExitExecuted(ctx, tracked, executedPrice, "tp_triggered")
	}
	return nil
}

// handleCancelled drops an order the exchange cancelled.
func (w *Watcher) handleCancelled(tracked models.TrackedOrder) {
	w.logger.Printf("order %s (%s) cancelled on exchange", tracked.OrderID, tracked.Ticker)
	w.notifier.Send(fmt.Sprintf("order cancelled: %s %s (%s)", tracked.Ticker, tracked.OrderType, tracked.OrderID))
	w.Untrack(tracked.OrderID, "cancelled_on_exchange")
}

// onEntryExecuted reacts to a filled entry. In auto mode the SL/TP pair is
// placed under the guard deadline; any other mode only notifies and leaves
// the exits to the operator.
func (w *Watcher) onEntryExecuted(ctx context.Context, tracked models.TrackedOrder, executedPrice float64) {
	mode := w.ctl.Mode()

	slPrice := util.Round2(executedPrice - tracked.StopOffset)
	tpPrice := util.Round2(executedPrice + tracked.TakeOffset)

	if mode != models.ModeMonitorOnly {
		w.notifier.Send(fmt.Sprintf("position opened: %s at %.2f RUB, %d lots (SL %.2f / TP %.2f)",
			tracked.Ticker, executedPrice, tracked.Quantity, slPrice, tpPrice))
	}

	if mode != models.ModeAuto {
		if mode != models.ModeMonitorOnly {
			w.notifier.Send(fmt.Sprintf("mode is %s: SL and TP were NOT placed automatically", mode))
		}
		w.mu.Lock()
		delete(w.tracked, tracked.OrderID)
		w.mu.Unlock()
		return
	}

	// A pending stop-loss may already exist for this entry, e.g. after a
	// restart hydrated both rows before the fill was observed. Never place
	// a second one.
	if slID, ok := w.pendingStopLossFor(tracked.OrderID); ok {
		w.logger.Printf("stop-loss %s already tracked for entry %s, skipping placement", slID, tracked.OrderID)
		w.guard.Cancel(tracked.OrderID)
		w.mu.Lock()
		delete(w.tracked, tracked.OrderID)
		w.mu.Unlock()
		return
	}

	// Arm the deadline before touching the exchange: if the SL placement
	// below fails or hangs, the emergency close still fires.
	w.guard.Start(tracked.OrderID)
	w.placeSLTP(ctx, tracked, executedPrice, slPrice, tpPrice)
}

// pendingStopLossFor returns the watched stop-loss whose parent is the
// given entry, if one exists.
func (w *Watcher) pendingStopLossFor(entryOrderID string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, o := range w.tracked {
		if o.OrderType == models.OrderTypeStopLoss && o.ParentOrderID == entryOrderID && !o.IsExecuted {
			return id, true
		}
	}
	return "", false
}

// placeSLTP places the protective pair. The SL is the critical leg: its
// success disarms the guard; a TP failure only warns.
func (w *Watcher) placeSLTP(ctx context.Context, entry models.TrackedOrder, executedPrice, slPrice, tpPrice float64) {
	var slOrderID, tpOrderID string

	callCtx, cancel := context.WithTimeout(ctx, broker.DefaultCallTimeout)
	slOrderID, err := w.port.PlaceStopOrder(callCtx, broker.PlaceStopOrderRequest{
		FIGI:         entry.FIGI,
		QuantityLots: entry.Quantity,
		TriggerPrice: slPrice,
		Side:         broker.SideSell,
		Kind:         broker.KindStopLoss,
	})
	cancel()

	if err != nil {
		// The guard keeps ticking and will fire the emergency close.
		w.logger.Printf("[ERROR] SL placement failed for %s: %v", entry.Ticker, err)
		w.notifier.SendCritical(fmt.Sprintf("SL NOT placed for %s: %v; emergency close in %s",
			entry.Ticker, err, w.cfg.SLPlacementTimeout()))
	} else {
		w.logger.Printf("stop-loss %s placed for %s at %.2f", slOrderID, entry.Ticker, slPrice)

		// Persist the SL before disarming the guard: a crash in between
		// leaves the guard to expire harmlessly on restart, the SL is
		// already live on the exchange.
		if trackErr := w.TrackOrder(TrackRequest{
			OrderID:       slOrderID,
			Ticker:        entry.Ticker,
			FIGI:          entry.FIGI,
			OrderType:     models.OrderTypeStopLoss,
			QuantityLots:  entry.Quantity,
			LotSize:       entry.LotSize,
			EntryPrice:    executedPrice,
			StopPrice:     slPrice,
			TargetPrice:   tpPrice,
			StopOffset:    entry.StopOffset,
			TakeOffset:    entry.TakeOffset,
			ATR:           entry.ATR,
			ParentOrderID: entry.OrderID,
			CreatedBy:     "auto",
		}); trackErr != nil {
			w.logger.Printf("[ERROR] tracking SL %s: %v", slOrderID, trackErr)
		}
		w.guard.Cancel(entry.OrderID)
		if statsErr := w.store.IncrementStats(models.StatsDelta{OrdersPlaced: 1}); statsErr != nil {
			w.logger.Printf("[ERROR] incrementing stats: %v", statsErr)
		}
	}

	callCtx, cancel = context.WithTimeout(ctx, broker.DefaultCallTimeout)
	tpID, tpErr := w.port.PlaceStopOrder(callCtx, broker.PlaceStopOrderRequest{
		FIGI:         entry.FIGI,
		QuantityLots: entry.Quantity,
		TriggerPrice: tpPrice,
		Side:         broker.SideSell,
		Kind:         broker.KindTakeProfit,
	})
	cancel()

	if tpErr != nil {
		w.logger.Printf("[ERROR] TP placement failed for %s: %v", entry.Ticker, tpErr)
		w.notifier.SendError(fmt.Sprintf("TP not placed for %s: %v", entry.Ticker, tpErr))
	} else {
		tpOrderID = tpID
		w.logger.Printf("take-profit %s placed for %s at %.2f", tpOrderID, entry.Ticker, tpPrice)

		if trackErr := w.TrackOrder(TrackRequest{
			OrderID:       tpOrderID,
			Ticker:        entry.Ticker,
			FIGI:          entry.FIGI,
			OrderType:     models.OrderTypeTakeProfit,
			QuantityLots:  entry.Quantity,
			LotSize:       entry.LotSize,
			EntryPrice:    executedPrice,
			StopPrice:     slPrice,
			TargetPrice:   tpPrice,
			StopOffset:    entry.StopOffset,
			TakeOffset:    entry.TakeOffset,
			ATR:           entry.ATR,
			ParentOrderID: entry.OrderID,
			CreatedBy:     "auto",
		}); trackErr != nil {
			w.logger.Printf("[ERROR] tracking TP %s: %v", tpOrderID, trackErr)
		}
		if statsErr := w.store.IncrementStats(models.StatsDelta{OrdersPlaced: 1}); statsErr != nil {
			w.logger.Printf("[ERROR] incrementing stats: %v", statsErr)
		}
	}

	if slOrderID != "" || tpOrderID != "" {
		if err := w.store.LinkSiblings(entry.OrderID, slOrderID, tpOrderID); err != nil {
			w.logger.Printf("[ERROR] linking siblings for %s: %v", entry.OrderID, err)
		}
	}

	if err == nil {
		if tpErr == nil {
			w.notifier.Send(fmt.Sprintf("SL and TP placed for %s: SL %.2f / TP %.2f", entry.Ticker, slPrice, tpPrice))
		} else {
			w.notifier.Send(fmt.Sprintf("only SL placed for %s at %.2f; place TP manually", entry.Ticker, slPrice))
		}
		w.mu.Lock()
		delete(w.tracked, entry.OrderID)
		w.mu.Unlock()
	}
}

// onExitExecuted finalises an SL or TP fill: realise PnL, bump stats,
// record the loss and cancel the surviving sibling.
func (w *Watcher) onExitExecuted(ctx context.Context, tracked models.TrackedOrder, executedPrice float64, reason string) {
	pnlRub, pnlPct := tracked.PnL(executedPrice)
	if err := w.store.MarkExecuted(tracked.OrderID, executedPrice, reason, &pnlRub, &pnlPct); err != nil {
		w.logger.Printf("[ERROR] marking %s executed: %v", tracked.OrderID, err)
	}

	delta := models.StatsDelta{PnLRub: pnlRub}
	label := "take-profit"
	if tracked.OrderType == models.OrderTypeStopLoss {
		delta.SLTriggered = 1
		label = "stop-loss"
	} else {
		delta.TPTriggered = 1
	}
	if err := w.store.IncrementStats(delta); err != nil {
		w.logger.Printf("[ERROR] incrementing stats: %v", err)
	}

	if w.losses != nil && pnlRub < 0 {
		w.losses.AddDailyLoss(-pnlRub)
	}

	w.notifier.Send(fmt.Sprintf("%s triggered: %s entry %.2f exit %.2f, PnL %+.0f RUB (%+.2f%%)",
		label, tracked.Ticker, tracked.EntryPrice, executedPrice, pnlRub, pnlPct))

	w.cancelSibling(ctx, tracked)

	w.mu.Lock()
	delete(w.tracked, tracked.OrderID)
	w.mu.Unlock()
}

// cancelSibling cancels the opposite exit order of the same ticker so the
// position is not sold twice.
func (w *Watcher) cancelSibling(ctx context.Context, tracked models.TrackedOrder) {
	target := tracked.OrderType.Sibling()
	if target == "" {
		return
	}

	// The parent link is authoritative; ticker alone can hit the wrong
	// position when two of them are open on the same share.
	var siblingID string
	w.mu.Lock()
	if tracked.ParentOrderID != "" {
		for id, o := range w.tracked {
			if o.OrderType == target && !o.IsExecuted && o.ParentOrderID == tracked.ParentOrderID {
				siblingID = id
				break
			}
		}
	}
	if siblingID == "" {
		for id, o := range w.tracked {
			if o.Ticker == tracked.Ticker && o.OrderType == target && !o.IsExecuted {
				siblingID = id
				break
			}
		}
	}
	w.mu.Unlock()

	if siblingID == "" {
		return
	}

	if err := w.retrier.CancelStopOrderWithRetry(ctx, siblingID); err != nil {
		w.logger.Printf("[ERROR] cancelling sibling %s: %v", siblingID, err)
		w.notifier.SendError(fmt.Sprintf("failed to cancel %s order %s for %s", target, siblingID, tracked.Ticker))
		return
	}

	w.Untrack(siblingID, "opposite_triggered")
	w.notifier.Send(fmt.Sprintf("linked %s order cancelled for %s", target, tracked.Ticker))
}

// emergencyClose sells the naked position at market after the guard
// deadline expired without a confirmed stop-loss. It runs on the timer
// goroutine and never retries: a failure here needs the operator.
func (w *Watcher) emergencyClose(entryOrderID string) {
	w.mu.Lock()
	entry, ok := w.tracked[entryOrderID]
	w.mu.Unlock()
	if !ok {
		w.logger.Printf("[WARN] emergency close for unknown entry %s, skipping", entryOrderID)
		return
	}

	w.logger.Printf("[ERROR] EMERGENCY CLOSE %s (%s): SL was not placed in time", entry.Ticker, entryOrderID)
	w.notifier.SendCritical(fmt.Sprintf("EMERGENCY CLOSE %s: SL not placed within %s, selling %d lots at market",
		entry.Ticker, w.cfg.SLPlacementTimeout(), entry.Quantity))

	ctx, cancel := context.WithTimeout(context.Background(), broker.DefaultCallTimeout)
	defer cancel()

	closeID, err := w.port.PlaceMarketOrder(ctx, entry.FIGI, entry.Quantity, broker.SideSell)
	if err != nil {
		w.logger.Printf("[ERROR] emergency close failed for %s: %v", entry.Ticker, err)
		w.notifier.SendCritical(fmt.Sprintf("FAILED to close %s position (%d lots): %v; CLOSE MANUALLY NOW",
			entry.Ticker, entry.Quantity, err))
	} else {
		w.logger.Printf("emergency close order %s placed for %s", closeID, entry.Ticker)
		w.notifier.SendCritical(fmt.Sprintf("position %s closed at market, order %s; verify the fill", entry.Ticker, closeID))

		// The entry is already executed in storage; only the reason changes.
		if _, uerr := w.store.UpdateTracked(entryOrderID, func(o *models.TrackedOrder) {
			o.ExecReason = "emergency_close"
		}); uerr != nil {
			w.logger.Printf("[ERROR] recording emergency close for %s: %v", entryOrderID, uerr)
		}
	}

	// A take-profit placed before the guard expired is orphaned now: the
	// position it would close is gone. Stop watching it and hand the live
	// exchange order to the operator.
	w.mu.Lock()
	var orphanTP string
	for id, o := range w.tracked {
		if o.OrderType == models.OrderTypeTakeProfit && o.ParentOrderID == entryOrderID {
			orphanTP = id
			break
		}
	}
	w.mu.Unlock()

	if orphanTP != "" {
		w.notifier.SendError(fmt.Sprintf("take-profit %s for %s is still live on the exchange, cancel it manually",
			orphanTP, entry.Ticker))
	}

	w.mu.Lock()
	delete(w.tracked, entryOrderID)
	if orphanTP != "" {
		delete(w.tracked, orphanTP)
	}
	w.mu.Unlock()
}
