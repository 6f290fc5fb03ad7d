package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

type fakeTimeout struct{}

func (fakeTimeout) Error() string   { return "i/o timeout" }
func (fakeTimeout) Timeout() bool   { return true }
func (fakeTimeout) Temporary() bool { return true }

func dialError(cause error) error {
	return &net.OpError{
		Op:   "dial",
		Net:  "tcp",
		Addr: &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 12345},
		Err:  cause,
	}
}

func TestRetryClassification(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		auth      bool
		retryable bool
	}{
		{name: "nil"},
		{name: "plain", err: errors.New("boom")},
		{name: "eof", err: io.EOF},
		{name: "sasl-failed", err: kerr.SaslAuthenticationFailed, auth: true},
		{name: "sasl-mechanism", err: kerr.UnsupportedSaslMechanism, auth: true},
		{name: "cluster-authz", err: fmt.Errorf("describe: %w", kerr.ClusterAuthorizationFailed), auth: true},
		{name: "group-authz", err: kerr.GroupAuthorizationFailed, auth: true},
		{name: "first-read-eof", err: fmt.Errorf("handshake: %w", &kgo.ErrFirstReadEOF{}), auth: true},
		{name: "coordinator-loading", err: kerr.CoordinatorLoadInProgress, retryable: true},
		{name: "not-controller", err: fmt.Errorf("create topics: %w", kerr.NotController), retryable: true},
		{name: "broker-unavailable", err: kerr.BrokerNotAvailable, retryable: true},
		{name: "topic-exists", err: kerr.TopicAlreadyExists},
		{name: "invalid-partitions", err: kerr.InvalidPartitions},
		{name: "closed-conn", err: fmt.Errorf("read: %w", net.ErrClosed), retryable: true},
		{name: "dial-timeout", err: dialError(fakeTimeout{}), retryable: true},
		{name: "dial-refused", err: dialError(&os.SyscallError{Syscall: "connect", Err: syscall.ECONNREFUSED})},
		{name: "canceled", err: fmt.Errorf("ping: %w", context.Canceled)},
		{name: "deadline", err: context.DeadlineExceeded},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isAuthError(tc.err); got != tc.auth {
				t.Fatalf("isAuthError(%v) = %v, want %v", tc.err, got, tc.auth)
			}
			if got := isRetryable(tc.err); got != tc.retryable {
				t.Fatalf("isRetryable(%v) = %v, want %v", tc.err, got, tc.retryable)
			}
		})
	}
}

// scripted returns the errors in order, then nil, and counts calls.
func scripted(calls *int, errs ...error) func() error {
	return func() error {
		i := *calls
		*calls++
		if i < len(errs) {
			return errs[i]
		}
		return nil
	}
}

func TestWithRetryAttemptBudget(t *testing.T) {
	transient := kerr.BrokerNotAvailable

	cases := []struct {
		name       string
		maxRetries int
		errs       []error
		wantCalls  int
		wantErr    bool
		exhausted  bool
	}{
		{name: "zero-budget-success", maxRetries: 0, wantCalls: 1},
		{name: "zero-budget-transient", maxRetries: 0, errs: []error{transient}, wantCalls: 1, wantErr: true},
		{name: "one-retry-recovers", maxRetries: 1, errs: []error{transient}, wantCalls: 2},
		{name: "one-retry-exhausted", maxRetries: 1, errs: []error{transient, transient}, wantCalls: 2, wantErr: true, exhausted: true},
		{name: "two-retries-recover-last", maxRetries: 2, errs: []error{transient, transient}, wantCalls: 3},
		{name: "auth-stops-budget", maxRetries: 2, errs: []error{kerr.SaslAuthenticationFailed}, wantCalls: 1, wantErr: true},
		{name: "permanent-stops-budget", maxRetries: 2, errs: []error{transient, kerr.InvalidTopicException}, wantCalls: 2, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			err := withRetry(context.Background(), "create topic", tc.maxRetries, scripted(&calls, tc.errs...))

			if calls != tc.wantCalls {
				t.Fatalf("calls = %d, want %d", calls, tc.wantCalls)
			}
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if err == nil {
				return
			}
			last := tc.errs[calls-1]
			if !errors.Is(err, last) {
				t.Fatalf("err = %v, want it to wrap %v", err, last)
			}
			if got := strings.Contains(err.Error(), "attempts exhausted"); got != tc.exhausted {
				t.Fatalf("err = %q, exhausted wording = %v, want %v", err, got, tc.exhausted)
			}
		})
	}
}

func TestWithRetrySingleAttemptReturnsCauseUnwrapped(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), "ping broker", 0, scripted(&calls, kerr.NotController))
	if err != kerr.NotController {
		t.Fatalf("err = %v, want the bare cause", err)
	}
}

func TestWithRetryStopsWhenContextEnds(t *testing.T) {
	t.Run("canceled-during-backoff", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := withRetry(ctx, "ping broker", 5, func() error {
			calls++
			cancel()
			return kerr.BrokerNotAvailable
		})
		if calls != 1 {
			t.Fatalf("calls = %d, want 1", calls)
		}
		if !errors.Is(err, context.Canceled) || !errors.Is(err, kerr.BrokerNotAvailable) {
			t.Fatalf("err = %v, want cancellation and the last cause", err)
		}
	})

	t.Run("deadline-shorter-than-backoff", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		start := time.Now()
		calls := 0
		err := withRetry(ctx, "ping broker", 5, scripted(&calls, kerr.BrokerNotAvailable, kerr.BrokerNotAvailable))
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("err = %v, want deadline exceeded", err)
		}
		if calls != 1 {
			t.Fatalf("calls = %d, want 1 before the first backoff ends", calls)
		}
		if elapsed := time.Since(start); elapsed >= initialBackoff {
			t.Fatalf("withRetry waited %v, want it to return at the deadline", elapsed)
		}
	})
}
