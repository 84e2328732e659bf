package serve

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/eventhouse/internal/common/health"
)

const shutdownTimeout = 5 * time.Second

// MetricsAndHealthMux returns a mux exposing prometheus metrics from gatherer on /metrics and checker on /health
func MetricsAndHealthMux(gatherer prometheus.Gatherer, checker health.Checker) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	health.SetupHttpMux(mux, checker)
	return mux
}

// ListenAndServe starts serving handler on port in the background. The returned function shuts the server down.
// Port 0 picks a free port; the bound address is returned so callers (mostly tests) can find it.
func ListenAndServe(port uint16, handler http.Handler) (string, func(), error) {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return "", nil, errors.WithMessagef(err, "could not listen on port %d", port)
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infof("Serving metrics and health on %s", lis.Addr())
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("http server failed")
		}
	}()
	return lis.Addr().String(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.WithError(err).Warn("http server did not shut down cleanly")
		}
	}, nil
}
