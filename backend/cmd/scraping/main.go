// backend/cmd/scraping/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ps-vitor/xhs-relay/backend/cmd/scraping/commands"
)

func main() {
	// Ctrl-C cancels the job, which kills the scraper's process tree.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	commands.ExecuteContext(ctx)
}
