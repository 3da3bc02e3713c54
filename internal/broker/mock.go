package broker

import (
	"context"
	"fmt"
	"sync"
)

// MockPort implements Port for testing. Listings, portfolio and prices are
// plain fields the test mutates between polls; every mutating call is
// recorded so tests can assert on what reached the "exchange".
type MockPort struct {
	mu sync.Mutex

	StopOrders []StopOrder
	Portfolio  []PortfolioPosition
	LastPrices map[string]float64

	// Errors returned by the corresponding calls; nil means success.
	PlaceStopErr error
	// PlaceStopErrFn, when set, decides per request whether the placement
	// fails. Takes precedence over PlaceStopErr.
	PlaceStopErrFn func(req PlaceStopOrderRequest) error
	CancelErr      error
	// CancelStopFn, when set, replaces the default cancel behaviour
	// entirely. Useful for per-attempt error sequences.
	CancelStopFn func(orderID string) error
	ListErr        error
	PortfolioErr   error
	MarketOrderErr error
	LastPriceErr   error

	// nextID feeds synthetic order ids for placements.
	nextID func() string

	PlacedStops  []PlaceStopOrderRequest
	Cancelled    []string
	MarketOrders []string // figi of each market order
	ListCalls    int
}

var _ Port = (*MockPort)(nil)

// NewMockPort creates a mock broker whose placements get ids M1, M2, ...
func NewMockPort() *MockPort {
	n := 0
	m := &MockPort{LastPrices: make(map[string]float64)}
	m.nextID = func() string {
		n++
		return fmt.Sprintf("M%d", n)
	}
	return m
}

// SetNextIDs overrides the generated order ids with a fixed sequence.
func (m *MockPort) SetNextIDs(ids ...string) {
	i := 0
	m.nextID = func() string {
		if i >= len(ids) {
			return "overflow"
		}
		id := ids[i]
		i++
		return id
	}
}

func (m *MockPort) PlaceStopOrder(_ context.Context, req PlaceStopOrderRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PlaceStopErrFn != nil {
		if err := m.PlaceStopErrFn(req); err != nil {
			return "", err
		}
	} else if m.PlaceStopErr != nil {
		return "", m.PlaceStopErr
	}
	m.PlacedStops = append(m.PlacedStops, req)
	id := m.nextID()
	m.StopOrders = append(m.StopOrders, StopOrder{
		OrderID:      id,
		FIGI:         req.FIGI,
		Side:         req.Side,
		Kind:         req.Kind,
		TriggerPrice: req.TriggerPrice,
		Quantity:     req.QuantityLots,
		Status:       StopOrderActive,
	})
	return id, nil
}

func (m *MockPort) CancelStopOrder(_ context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CancelStopFn != nil {
		return m.CancelStopFn(orderID)
	}
	if m.CancelErr != nil {
		return m.CancelErr
	}
	m.Cancelled = append(m.Cancelled, orderID)
	for i := range m.StopOrders {
		if m.StopOrders[i].OrderID == orderID {
			m.StopOrders[i].Status = StopOrderCancelled
		}
	}
	return nil
}

func (m *MockPort) ListStopOrders(_ context.Context) ([]StopOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListCalls++
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	out := make([]StopOrder, len(m.StopOrders))
	copy(out, m.StopOrders)
	return out, nil
}

func (m *MockPort) GetPortfolio(_ context.Context) ([]PortfolioPosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PortfolioErr != nil {
		return nil, m.PortfolioErr
	}
	out := make([]PortfolioPosition, len(m.Portfolio))
	copy(out, m.Portfolio)
	return out, nil
}

func (m *MockPort) PlaceMarketOrder(_ context.Context, figi string, _ int, _ Side) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.MarketOrderErr != nil {
		return "", m.MarketOrderErr
	}
	m.MarketOrders = append(m.MarketOrders, figi)
	return m.nextID(), nil
}

func (m *MockPort) GetLastPrice(_ context.Context, figi string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LastPriceErr != nil {
		return 0, m.LastPriceErr
	}
	return m.LastPrices[figi], nil
}

// SetOrderStatus flips the status of one listed order in place.
func (m *MockPort) SetOrderStatus(orderID string, status StopOrderStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.StopOrders {
		if m.StopOrders[i].OrderID == orderID {
			m.StopOrders[i].Status = status
		}
	}
}

// RemoveOrder drops an order from the listing entirely.
func (m *MockPort) RemoveOrder(orderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.StopOrders[:0]
	for _, o := range m.StopOrders {
		if o.OrderID != orderID {
			out = append(out, o)
		}
	}
	m.StopOrders = out
}
