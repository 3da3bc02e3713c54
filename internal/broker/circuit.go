package broker

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/sony/gobreaker"
)

// CircuitBreakerPort wraps a Port with circuit breaker functionality so a
// flapping exchange API cannot be hammered by the poll loop. Permanent
// rejections do not count as failures: the exchange answered.
type CircuitBreakerPort struct {
	port    Port
	breaker *gobreaker.CircuitBreaker
}

var _ Port = (*CircuitBreakerPort)(nil)

// CircuitBreakerSettings configures circuit breaker behavior.
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// NewCircuitBreakerPort creates a CircuitBreakerPort with sensible defaults.
func NewCircuitBreakerPort(port Port) *CircuitBreakerPort {
	return NewCircuitBreakerPortWithSettings(port, CircuitBreakerSettings{
		MaxRequests:  3,                // Allow 3 requests when half-open
		Interval:     60 * time.Second, // Reset counts every minute
		Timeout:      30 * time.Second, // Open circuit for 30 seconds
		MinRequests:  5,                // Minimum requests before tripping
		FailureRatio: 0.6,              // Trip if 60% failure rate
	})
}

// NewCircuitBreakerPortWithSettings creates a CircuitBreakerPort with custom settings.
func NewCircuitBreakerPortWithSettings(port Port, settings CircuitBreakerSettings) *CircuitBreakerPort {
	gbSettings := gobreaker.Settings{
		Name:        "BrokerCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			// A rejection is a healthy exchange saying no.
			return err == nil || IsRejected(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s state changed from %s to %s", name, from, to)
		},
	}

	return &CircuitBreakerPort{
		port:    port,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// execBreaker is a generic helper for circuit breaker wrapper methods.
func execBreaker[T any](breaker *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn() })
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, &UnavailableError{Op: "circuit", Err: err}
		}
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

func (c *CircuitBreakerPort) PlaceStopOrder(ctx context.Context, req PlaceStopOrderRequest) (string, error) {
	return execBreaker(c.breaker, func() (string, error) { return c.port.PlaceStopOrder(ctx, req) })
}

func (c *CircuitBreakerPort) CancelStopOrder(ctx context.Context, orderID string) error {
	_, err := execBreaker(c.breaker, func() (struct{}, error) {
		return struct{}{}, c.port.CancelStopOrder(ctx, orderID)
	})
	return err
}

func (c *CircuitBreakerPort) ListStopOrders(ctx context.Context) ([]StopOrder, error) {
	return execBreaker(c.breaker, func() ([]StopOrder, error) { return c.port.ListStopOrders(ctx) })
}

func (c *CircuitBreakerPort) GetPortfolio(ctx context.Context) ([]PortfolioPosition, error) {
	return execBreaker(c.breaker, func() ([]PortfolioPosition, error) { return c.port.GetPortfolio(ctx) })
}

func (c *CircuitBreakerPort) PlaceMarketOrder(ctx context.Context, figi string, quantityLots int, side Side) (string, error) {
	return execBreaker(c.breaker, func() (string, error) {
		return c.port.PlaceMarketOrder(ctx, figi, quantityLots, side)
	})
}

func (c *CircuitBreakerPort) GetLastPrice(ctx context.Context, figi string) (float64, error) {
	return execBreaker(c.breaker, func() (float64, error) { return c.port.GetLastPrice(ctx, figi) })
}
