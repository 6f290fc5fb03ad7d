package main

import (
	"errors"

	"github.com/ppiankov/kafkabundle/internal/kafka"
)

// Process exit codes.
const (
	ExitSuccess       = 0
	ExitInternal      = 1
	ExitInvalidArg    = 2
	ExitConfiguration = 3
	ExitConnectivity  = 4
)

// classifyError maps a command error to an exit code. Connectivity wins over
// configuration when both are joined.
func classifyError(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, kafka.ErrConnectivity):
		return ExitConnectivity
	case errors.Is(err, kafka.ErrConfiguration):
		return ExitConfiguration
	case errors.Is(err, errInvalidArg):
		return ExitInvalidArg
	default:
		return ExitInternal
	}
}
