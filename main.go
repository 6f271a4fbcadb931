package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/campusdesk/cli/cmd"
	"github.com/campusdesk/cli/internal/format"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.Execute(ctx)
	stop()
	if err != nil {
		format.PrintError("%v", err)
		os.Exit(1)
	}
}
