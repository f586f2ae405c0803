package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"worldeconomics/internal/gateway/app"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize app: %v", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(a.Start)
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down server...")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
	log.Println("Server exiting")
}
