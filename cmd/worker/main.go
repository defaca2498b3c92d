package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"tiof/internal/app/bootstrap"
)

// Worker process entrypoint.
// Data flow:
// 1) Load config.
// 2) Open the shared postgres ledger.
// 3) Audit ledger invariants on every poll interval until SIGINT/SIGTERM.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Println("tiof worker starting")
	app, err := bootstrap.BuildWorker(ctx)
	if err != nil {
		log.Fatalf("bootstrap worker failed: %v", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Printf("worker shutdown close failed: %v", err)
		}
	}()

	if err := app.Run(ctx); err != nil {
		log.Printf("tiof worker stopped with error: %v", err)
	}
}
