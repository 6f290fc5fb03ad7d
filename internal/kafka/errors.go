package kafka

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrConnectivity matches every *ConnectivityError via errors.Is.
	ErrConnectivity = errors.New("kafka connectivity error")

	// ErrConfiguration matches every *ConfigurationError via errors.Is.
	ErrConfiguration = errors.New("kafka configuration error")
)

// ConnectivityError reports that no broker answered within the timeout.
type ConnectivityError struct {
	Brokers []string
	Timeout time.Duration
	Op      string
	Err     error
}

func (e *ConnectivityError) Error() string {
	op := e.Op
	if op == "" {
		op = "connect"
	}
	msg := fmt.Sprintf("%s: no kafka broker reachable at [%s]", op, strings.Join(e.Brokers, ","))
	if e.Timeout > 0 {
		msg += fmt.Sprintf(" within %s", e.Timeout)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

func (e *ConnectivityError) Is(target error) bool { return target == ErrConnectivity }

// ConfigurationError reports a malformed registration, unknown config
// reference or a topic whose actual shape differs from the desired one.
type ConfigurationError struct {
	Topic  string
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString("invalid kafka configuration")
	if e.Topic != "" {
		fmt.Fprintf(&b, " for topic %q", e.Topic)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, ": %s", e.Field)
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, ": %s", e.Reason)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

func configError(topic, field, reason string) error {
	return &ConfigurationError{Topic: topic, Field: field, Reason: reason}
}
