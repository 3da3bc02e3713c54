package broker

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"
)

// DryRunPort is a Port that never contacts the exchange. Every placement
// returns a synthetic order id and is remembered as an active stop order so
// the watcher sees a consistent listing. Used when safety.dry_run is on.
type DryRunPort struct {
	mu     sync.Mutex
	orders map[string]StopOrder
	prices map[string]float64
	logger *log.Logger
}

var _ Port = (*DryRunPort)(nil)

// NewDryRunPort creates a dry-run broker. Last prices can be seeded via
// SetLastPrice; unknown FIGIs resolve to zero.
func NewDryRunPort(logger *log.Logger) *DryRunPort {
	return &DryRunPort{
		orders: make(map[string]StopOrder),
		prices: make(map[string]float64),
		logger: logger,
	}
}

// SetLastPrice seeds the synthetic last price for a FIGI.
func (d *DryRunPort) SetLastPrice(figi string, price float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prices[figi] = price
}

func (d *DryRunPort) PlaceStopOrder(_ context.Context, req PlaceStopOrderRequest) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := "DRY-" + uuid.New().String()
	d.orders[id] = StopOrder{
		OrderID:      id,
		FIGI:         req.FIGI,
		Side:         req.Side,
		Kind:         req.Kind,
		TriggerPrice: req.TriggerPrice,
		Quantity:     req.QuantityLots,
		Status:       StopOrderActive,
	}
	d.logger.Printf("DRY RUN: stop order not sent, would place %s %s %d lots @ %.2f (%s)",
		req.Side, req.FIGI, req.QuantityLots, req.TriggerPrice, req.Kind)
	return id, nil
}

func (d *DryRunPort) CancelStopOrder(_ context.Context, orderID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.orders, orderID)
	d.logger.Printf("DRY RUN: cancel stop order %s", orderID)
	return nil
}

func (d *DryRunPort) ListStopOrders(_ context.Context) ([]StopOrder, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]StopOrder, 0, len(d.orders))
	for _, o := range d.orders {
		out = append(out, o)
	}
	return out, nil
}

func (d *DryRunPort) GetPortfolio(_ context.Context) ([]PortfolioPosition, error) {
	return nil, nil
}

func (d *DryRunPort) PlaceMarketOrder(_ context.Context, figi string, quantityLots int, side Side) (string, error) {
	id := "DRY-" + uuid.New().String()
	d.logger.Printf("DRY RUN: market order not sent, would %s %d lots of %s", side, quantityLots, figi)
	return id, nil
}

func (d *DryRunPort) GetLastPrice(_ context.Context, figi string) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.prices[figi], nil
}
