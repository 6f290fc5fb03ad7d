package kafka

import (
	"context"
	"log/slog"
	"time"
)

// pinger is satisfied by *kgo.Client.
type pinger interface {
	Ping(ctx context.Context) error
}

// ConnectivityChecker verifies that at least one bootstrap server answers
// within a bounded timeout.
type ConnectivityChecker struct {
	client     pinger
	brokers    []string
	timeout    time.Duration
	maxRetries int
}

// NewConnectivityChecker creates a checker probing through client.
func NewConnectivityChecker(client pinger, brokers []string, timeout time.Duration, maxRetries int) *ConnectivityChecker {
	return &ConnectivityChecker{
		client:     client,
		brokers:    append([]string(nil), brokers...),
		timeout:    timeout,
		maxRetries: maxRetries,
	}
}

// Check pings the cluster. Any failure, including the deadline expiring,
// is reported as a *ConnectivityError.
func (c *ConnectivityChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := withRetry(ctx, "ping broker", c.maxRetries, func() error {
		return c.client.Ping(ctx)
	})
	if err != nil {
		slog.Debug("broker ping failed", "brokers", c.brokers, "elapsed", time.Since(start), "error", err)
		return &ConnectivityError{
			Brokers: c.brokers,
			Timeout: c.timeout,
			Op:      "ping broker",
			Err:     err,
		}
	}

	slog.Debug("broker ping succeeded", "brokers", c.brokers, "elapsed", time.Since(start))
	return nil
}
