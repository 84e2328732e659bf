package app

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/G-Research/eventhouse/internal/common/logcontext"
)

// CreateContextWithShutdown returns a context that will report done when a SIGINT or SIGTERM is received
func CreateContextWithShutdown() *logcontext.Context {
	return contextWithShutdown(syscall.SIGINT, syscall.SIGTERM)
}

func contextWithShutdown(signals ...os.Signal) *logcontext.Context {
	ctx, cancel := logcontext.WithCancel(logcontext.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, signals...)
	go func() {
		defer signal.Stop(c)
		select {
		case sig := <-c:
			ctx.Log.Infof("Received %s, shutting down", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx
}
