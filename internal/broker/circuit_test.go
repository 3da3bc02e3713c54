package broker

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func testBreakerSettings() CircuitBreakerSettings {
	return CircuitBreakerSettings{
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		MinRequests:  3,
		FailureRatio: 0.6,
	}
}

func TestCircuitBreakerPassesThrough(t *testing.T) {
	mock := NewMockPort()
	mock.SetNextIDs("S1")
	cb := NewCircuitBreakerPortWithSettings(mock, testBreakerSettings())

	id, err := cb.PlaceStopOrder(context.Background(), PlaceStopOrderRequest{
		FIGI: "F1", Side: SideSell, Kind: KindStopLoss, TriggerPrice: 246, QuantityLots: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, "S1", id)
	require.Len(t, mock.PlacedStops, 1)
}

func TestCircuitBreakerOpensOnOutage(t *testing.T) {
	mock := NewMockPort()
	mock.ListErr = &UnavailableError{Op: "list"}
	cb := NewCircuitBreakerPortWithSettings(mock, testBreakerSettings())

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := cb.ListStopOrders(ctx)
		require.Error(t, err)
	}

	// Breaker is open now; the wrapped port is no longer reached.
	before := mock.ListCalls
	_, err := cb.ListStopOrders(ctx)
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
	assert.Equal(t, before, mock.ListCalls)
}

func TestCircuitBreakerIgnoresRejections(t *testing.T) {
	mock := NewMockPort()
	mock.PlaceStopErr = &RejectedError{Reason: "insufficient funds"}
	cb := NewCircuitBreakerPortWithSettings(mock, testBreakerSettings())

	ctx := context.Background()
	req := PlaceStopOrderRequest{FIGI: "F1", Side: SideSell, Kind: KindStopLoss, TriggerPrice: 246, QuantityLots: 1}
	for i := 0; i < 10; i++ {
		_, err := cb.PlaceStopOrder(ctx, req)
		require.Error(t, err)
		assert.True(t, IsRejected(err), "rejection must pass through unchanged")
	}

	// Still closed: rejections are answered requests, not failures.
	mock.PlaceStopErr = nil
	mock.SetNextIDs("S1")
	_, err := cb.PlaceStopOrder(ctx, req)
	assert.NoError(t, err)
}

func TestDryRunPortListsPlacements(t *testing.T) {
	d := NewDryRunPort(testLogger())
	ctx := context.Background()

	id, err := d.PlaceStopOrder(ctx, PlaceStopOrderRequest{
		FIGI: "F1", Side: SideBuy, Kind: KindTakeProfit, TriggerPrice: 250, QuantityLots: 2,
	})
	require.NoError(t, err)
	assert.Contains(t, id, "DRY-")

	orders, err := d.ListStopOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, id, orders[0].OrderID)
	assert.Equal(t, StopOrderActive, orders[0].Status)

	require.NoError(t, d.CancelStopOrder(ctx, id))
	orders, err = d.ListStopOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestDryRunPortLastPrice(t *testing.T) {
	d := NewDryRunPort(testLogger())
	d.SetLastPrice("F1", 251.5)

	price, err := d.GetLastPrice(context.Background(), "F1")
	require.NoError(t, err)
	assert.InDelta(t, 251.5, price, 1e-9)
}
