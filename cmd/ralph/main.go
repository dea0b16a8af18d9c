package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/thruflo/ralph/internal/cli"
	"github.com/thruflo/ralph/internal/logging"
	"github.com/thruflo/ralph/internal/tracing"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx := context.Background()

	shutdown, err := tracing.Setup(ctx, "ralph")
	if err != nil {
		logging.Warn("tracing disabled", "error", err)
		shutdown = func(context.Context) error { return nil }
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			logging.Warn("failed to flush traces", "error", err)
		}
	}()

	if err := cli.Execute(ctx); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.Code
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}
