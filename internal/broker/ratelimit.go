package broker

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitedPort throttles broker calls with a token bucket. The exchange
// caps stop-order endpoints per account; the watcher plus chat commands can
// exceed that during bursts without this wrapper.
type RateLimitedPort struct {
	port    Port
	limiter *rate.Limiter
}

var _ Port = (*RateLimitedPort)(nil)

// NewRateLimitedPort wraps port with the given sustained rate and burst.
func NewRateLimitedPort(port Port, rps float64, burst int) *RateLimitedPort {
	return &RateLimitedPort{
		port:    port,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (r *RateLimitedPort) wait(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return &UnavailableError{Op: "rate limit", Err: err}
	}
	return nil
}

func (r *RateLimitedPort) PlaceStopOrder(ctx context.Context, req PlaceStopOrderRequest) (string, error) {
	if err := r.wait(ctx); err != nil {
		return "", err
	}
	return r.port.PlaceStopOrder(ctx, req)
}

func (r *RateLimitedPort) CancelStopOrder(ctx context.Context, orderID string) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	return r.port.CancelStopOrder(ctx, orderID)
}

func (r *RateLimitedPort) ListStopOrders(ctx context.Context) ([]StopOrder, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.port.ListStopOrders(ctx)
}

func (r *RateLimitedPort) GetPortfolio(ctx context.Context) ([]PortfolioPosition, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.port.GetPortfolio(ctx)
}

func (r *RateLimitedPort) PlaceMarketOrder(ctx context.Context, figi string, quantityLots int, side Side) (string, error) {
	if err := r.wait(ctx); err != nil {
		return "", err
	}
	return r.port.PlaceMarketOrder(ctx, figi, quantityLots, side)
}

func (r *RateLimitedPort) GetLastPrice(ctx context.Context, figi string) (float64, error) {
	if err := r.wait(ctx); err != nil {
		return 0, err
	}
	return r.port.GetLastPrice(ctx, figi)
}
