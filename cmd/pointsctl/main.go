package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/okian/pointsledger/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := cli.ExecuteContext(ctx, cli.New(), os.Stderr)
	stop()
	os.Exit(code)
}
