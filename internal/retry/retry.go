// Package retry wraps transient broker operations with bounded exponential
// backoff. Rejections are permanent and never retried.
package retry

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/avoronkov/invest-sentinel/internal/broker"
)

type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration
}

var DefaultConfig = Config{
	MaxRetries:     3,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     30 * time.Second,
	Timeout:        2 * time.Minute,
}

// Client retries cancel operations on transient failures. Cancels are the
// only retried call: placements must fail fast so the SL guard can react,
// and emergency closes must not be delayed by backoff.
type Client struct {
	port   broker.Port
	logger *log.Logger
	config Config
}

func NewClient(port broker.Port, logger *log.Logger, config ...Config) *Client {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if logger == nil {
		logger = log.Default()
	}

	return &Client{
		port:   port,
		logger: logger,
		config: cfg,
	}
}

// CancelStopOrderWithRetry cancels a stop order, retrying transient
// failures with backoff. The cancel is idempotent at the broker layer, so a
// repeat after an ambiguous failure is safe.
func (c *Client) CancelStopOrderWithRetry(ctx context.Context, orderID string) error {
	cancelCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var lastErr error
	backoff := c.config.InitialBackoff

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if cancelCtx.Err() != nil {
			return fmt.Errorf("cancel timed out after %v: %w", c.config.Timeout, cancelCtx.Err())
		}

		err := c.port.CancelStopOrder(cancelCtx, orderID)
		if err == nil {
			if attempt > 0 {
				c.logger.Printf("cancel of %s succeeded on attempt %d", orderID, attempt+1)
			}
			return nil
		}

		lastErr = err
		c.logger.Printf("[WARN] cancel attempt %d for %s failed: %v", attempt+1, orderID, err)

		if !broker.IsUnavailable(err) || attempt == c.config.MaxRetries {
			break
		}

		select {
		case <-time.After(backoff):
			backoff = c.nextBackoff(backoff)
		case <-cancelCtx.Done():
			return fmt.Errorf("cancel timed out during backoff: %w", cancelCtx.Err())
		}
	}

	return fmt.Errorf("failed to cancel %s after %d attempts: %w", orderID, c.config.MaxRetries+1, lastErr)
}

func (c *Client) nextBackoff(current time.Duration) time.Duration {
	backoff := time.Duration(float64(current) * 1.5)
	if backoff > c.config.MaxBackoff {
		backoff = c.config.MaxBackoff
	}

	maxJitter := int64(backoff / 4)
	if maxJitter > 0 {
		jitterVal, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
		if err != nil {
			c.logger.Printf("failed to generate jitter: %v", err)
		} else {
			backoff += time.Duration(jitterVal.Int64())
		}
	}

	return backoff
}
