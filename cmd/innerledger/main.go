// innerledger is the command line client of the gasless relay: it reads forwarder state,
// signs CreateRecord requests and submits them through a relay.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(dialEthClient).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
