package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/davidwehrlin/tag-master/internal/logger"
)

type Stopper interface {
	Stop(ctx context.Context) error
}

// SetupGracefulShutdown blocks until SIGINT or SIGTERM, then stops srv
// within timeout.
func SetupGracefulShutdown(srv Stopper, timeout time.Duration, log logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	sig := <-quit
	log.Infof("Received %s, shutting down", sig)

	if err := shutdown(srv, timeout); err != nil {
		log.Fatalf("Server shutdown error: %v", err)
	}
}

func shutdown(srv Stopper, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Stop(ctx)
}
