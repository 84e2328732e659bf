package serve

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/eventhouse/internal/common/health"
)

func TestListenAndServe(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "eventhouse_test_total", Help: "test"})
	registry.MustRegister(counter)
	counter.Inc()

	checker := health.CheckerFunc(func() error { return errors.New("sink down") })
	addr, shutdown, err := ListenAndServe(0, MetricsAndHealthMux(registry, checker))
	require.NoError(t, err)
	defer shutdown()

	port := addr[strings.LastIndex(addr, ":"):]

	resp, err := http.Get("http://127.0.0.1" + port + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "eventhouse_test_total 1")

	resp, err = http.Get("http://127.0.0.1" + port + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
