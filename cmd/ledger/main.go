// Command ledger rebuilds portfolio ledgers from their order logs.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"tradeledger/internal/cli"
	apperrors "tradeledger/internal/errors"
	"tradeledger/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCmd(logging.NewLogger())
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(exitCode(err))
	}
}

// exitCode maps ledger failures to distinct process exit codes.
func exitCode(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrInvalidOrder):
		return 2
	case errors.Is(err, apperrors.ErrOversell), errors.Is(err, apperrors.ErrMissingPrice):
		return 3
	case errors.Is(err, apperrors.ErrPersistence):
		return 4
	case errors.Is(err, apperrors.ErrConfigInvalid):
		return 5
	default:
		return 1
	}
}
