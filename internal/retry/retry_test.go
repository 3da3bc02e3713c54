package retry

import (
	"context"
	"errors"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avoronkov/invest-sentinel/internal/broker"
)

func fastConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Timeout:        time.Second,
	}
}

func testLogger() *log.Logger {
	return log.New(os.Stderr, "", 0)
}

func TestCancelSucceedsFirstTry(t *testing.T) {
	port := broker.NewMockPort()
	port.StopOrders = []broker.StopOrder{{OrderID: "S1", Status: broker.StopOrderActive}}
	c := NewClient(port, testLogger(), fastConfig())

	err := c.CancelStopOrderWithRetry(context.Background(), "S1")
	require.NoError(t, err)
	assert.Equal(t, []string{"S1"}, port.Cancelled)
}

func TestCancelRetriesTransientFailures(t *testing.T) {
	port := broker.NewMockPort()
	calls := 0
	port.CancelStopFn = func(orderID string) error {
		calls++
		if calls < 3 {
			return &broker.UnavailableError{Op: "cancel_stop_order", Err: errors.New("502")}
		}
		return nil
	}
	c := NewClient(port, testLogger(), fastConfig())

	err := c.CancelStopOrderWithRetry(context.Background(), "S1")
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestCancelDoesNotRetryRejection(t *testing.T) {
	port := broker.NewMockPort()
	calls := 0
	port.CancelStopFn = func(orderID string) error {
		calls++
		return &broker.RejectedError{Op: "cancel_stop_order", Reason: "account blocked"}
	}
	c := NewClient(port, testLogger(), fastConfig())

	err := c.CancelStopOrderWithRetry(context.Background(), "S1")
	require.Error(t, err)
	assert.Equal(t, 1, calls, "permanent rejection must not be retried")
	assert.True(t, broker.IsRejected(err))
}

func TestCancelGivesUpAfterMaxRetries(t *testing.T) {
	port := broker.NewMockPort()
	calls := 0
	port.CancelStopFn = func(orderID string) error {
		calls++
		return &broker.UnavailableError{Op: "cancel_stop_order", Err: errors.New("down")}
	}
	c := NewClient(port, testLogger(), fastConfig())

	err := c.CancelStopOrderWithRetry(context.Background(), "S1")
	require.Error(t, err)
	assert.Equal(t, 4, calls)
}

func TestCancelHonoursContext(t *testing.T) {
	port := broker.NewMockPort()
	port.CancelStopFn = func(orderID string) error {
		return &broker.UnavailableError{Op: "cancel_stop_order", Err: errors.New("down")}
	}
	cfg := fastConfig()
	cfg.InitialBackoff = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	c := NewClient(port, testLogger(), cfg)
	err := c.CancelStopOrderWithRetry(ctx, "S1")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
