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

	wiring := defaultCommandWiring(os.Stdout, os.Stderr)
	if err := newApp(wiring).RunContext(ctx, os.Args); err != nil {
		exitOnErr(err, wiring.stderr)
	}
}
