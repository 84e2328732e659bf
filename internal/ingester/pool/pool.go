package pool

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/G-Research/eventhouse/internal/common/logcontext"
	"github.com/G-Research/eventhouse/internal/ingester/metrics"
	"github.com/G-Research/eventhouse/internal/ingester/model"
)

const (
	minWorkers     = 8
	maxWorkers     = 256
	workersPerCore = 4
	// How long a worker backs off after a failed pull
	pullErrorWait = 100 * time.Millisecond
)

// ErrSourceClosed is returned by a Source that will never produce another message
var ErrSourceClosed = errors.New("source closed")

// Source is where the pool pulls messages from.  Pull returns (nil, nil) if no message arrived before the source's
// own pull timeout.
type Source interface {
	Pull(ctx context.Context) (*model.Message, error)
}

type Router interface {
	Route(subject string) (model.Route, bool)
}

// Forwarder accepts routed events.  Once it returns nil it owns the event's disposition.
type Forwarder interface {
	Submit(ctx context.Context, event model.InboundEvent) error
}

// DefaultWorkers derives a worker count from the number of available cores
func DefaultWorkers(parallelism int) int {
	workers := parallelism * workersPerCore
	if workers < minWorkers {
		return minWorkers
	}
	if workers > maxWorkers {
		return maxWorkers
	}
	return workers
}

// Pool runs a fixed number of workers, each of which pulls one message at a time, routes it and forwards it.
type Pool struct {
	source    Source
	router    Router
	forwarder Forwarder
	workers   int
	metrics   *metrics.Metrics
	clock     clock.Clock
}

func New(source Source, router Router, forwarder Forwarder, workers int, m *metrics.Metrics) *Pool {
	return &Pool{
		source:    source,
		router:    router,
		forwarder: forwarder,
		workers:   workers,
		metrics:   m,
		clock:     clock.RealClock{},
	}
}

// Run blocks until every worker has exited.  Workers stop taking new messages once ctx is cancelled, but a pull that
// is already in flight completes and its message is forwarded as normal.
func (p *Pool) Run(ctx *logcontext.Context) error {
	ctx.Log.Infof("Starting %d ingestion workers", p.workers)
	wg := sync.WaitGroup{}
	wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go func(id int) {
			defer wg.Done()
			p.work(logcontext.WithLogField(ctx, "worker", id))
		}(i)
	}
	wg.Wait()
	ctx.Log.Info("All ingestion workers have stopped")
	return nil
}

func (p *Pool) work(ctx *logcontext.Context) {
	// Pulls and forwards run to completion even if shutdown is signalled while they are blocked
	inflight := logcontext.Detached(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, err := p.source.Pull(inflight)
		if errors.Is(err, ErrSourceClosed) {
			ctx.Log.Debug("Source closed, worker exiting")
			return
		}
		if err != nil {
			p.metrics.RecordPullError()
			ctx.Log.WithError(err).Warn("Failed to pull message")
			select {
			case <-ctx.Done():
			case <-p.clock.After(pullErrorWait):
			}
			continue
		}
		if msg == nil {
			continue
		}
		p.process(inflight, msg)
	}
}

func (p *Pool) process(ctx *logcontext.Context, msg *model.Message) {
	log := ctx.Log.WithField("subject", msg.Subject)
	p.metrics.RecordEventReceived(msg.Subject)

	route, ok := p.router.Route(msg.Subject)
	if !ok {
		p.metrics.RecordUnroutable(msg.Subject)
		log.Warn("No route for subject, rejecting message")
		p.settle(log, msg.Handle, model.Term)
		return
	}

	err := p.forwarder.Submit(ctx, model.InboundEvent{
		Subject: msg.Subject,
		Route:   route,
		Payload: msg.Payload,
		Handle:  msg.Handle,
	})
	if err != nil {
		log.WithError(err).Warn("Could not hand message to batcher, it will be redelivered")
		p.settle(log, msg.Handle, model.Nak)
	}
}

func (p *Pool) settle(log *logrus.Entry, handle model.AckHandle, d model.Disposition) {
	err := model.Settle(handle, d, 0)
	p.metrics.RecordDisposition(d, err)
	if err != nil {
		log.WithError(err).Warnf("Failed to %s message", d)
	}
}
