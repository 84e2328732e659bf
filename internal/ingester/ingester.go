package ingester

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/eventhouse/internal/common/health"
	"github.com/G-Research/eventhouse/internal/common/logcontext"
	"github.com/G-Research/eventhouse/internal/common/serve"
	"github.com/G-Research/eventhouse/internal/common/util"
	"github.com/G-Research/eventhouse/internal/ingester/batcher"
	"github.com/G-Research/eventhouse/internal/ingester/configuration"
	"github.com/G-Research/eventhouse/internal/ingester/metrics"
	"github.com/G-Research/eventhouse/internal/ingester/pool"
	"github.com/G-Research/eventhouse/internal/ingester/queue"
	"github.com/G-Research/eventhouse/internal/ingester/routing"
	"github.com/G-Research/eventhouse/internal/ingester/sink"
)

// Run connects to ClickHouse and NATS and then moves events from one to the other until ctx is cancelled.  An error
// is only returned if startup fails; once events are flowing every failure is resolved into a message disposition.
func Run(ctx *logcontext.Context, config configuration.EventhouseConfiguration) error {
	log.Info("Eventhouse starting")
	ctx = logcontext.WithLogFields(ctx, log.Fields{
		"stream":   config.Nats.Stream.Name,
		"consumer": config.Nats.Consumer.Durable,
	})

	router := routing.NewRouter(config.ExtraRoutes())
	log.Infof("Routing subjects %v", router.Subjects())

	clickhouse, err := sink.NewClickHouseClient(config.ClickHouse)
	if err != nil {
		return err
	}
	if err := clickhouse.Ping(ctx); err != nil {
		return errors.WithMessagef(err, "ClickHouse at %s is not reachable", config.ClickHouse.Url)
	}
	log.Infof("Connected to ClickHouse at %s", config.ClickHouse.Url)

	client, err := queue.Connect(ctx, config.Nats)
	if err != nil {
		return err
	}
	// Closed last, once the batcher has settled every message
	defer util.CloseResource("NATS connection", client)
	if err := client.EnsureStream(ctx); err != nil {
		return err
	}
	consumer, err := client.Subscribe(ctx)
	if err != nil {
		return err
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	mux := serve.MetricsAndHealthMux(prometheus.DefaultGatherer, health.NewMultiChecker(client, clickhouse))
	_, shutdownServer, err := serve.ListenAndServe(config.MetricsPort, mux)
	if err != nil {
		return err
	}
	defer shutdownServer()

	return runPipeline(ctx, consumer, router, clickhouse, config.BatcherConfig(), config.EffectiveWorkers(), m)
}

// runPipeline runs the worker pool and the batcher until ctx is cancelled.  Shutdown happens in this order: workers
// finish their in-flight pulls and exit, the batcher input is closed, the batcher flushes everything it holds and
// only then does runPipeline return.
func runPipeline(
	ctx *logcontext.Context,
	source pool.Source,
	router pool.Router,
	inserter sink.Inserter,
	batcherConfig batcher.Config,
	workers int,
	m *metrics.Metrics,
) error {
	b := batcher.New(inserter, batcherConfig, m)
	p := pool.New(source, router, b, workers, m)

	g, groupCtx := logcontext.ErrGroup(ctx)
	g.Go(func() error {
		return b.Run(logcontext.WithLogField(groupCtx, "component", "batcher"))
	})
	g.Go(func() error {
		defer b.Close()
		return p.Run(logcontext.WithLogField(groupCtx, "component", "pool"))
	})
	err := g.Wait()
	log.Info("Eventhouse stopped")
	return err
}
