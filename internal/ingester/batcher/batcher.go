package batcher

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"k8s.io/utils/clock"

	"github.com/G-Research/eventhouse/internal/common/logcontext"
	"github.com/G-Research/eventhouse/internal/common/util"
	"github.com/G-Research/eventhouse/internal/ingester/metrics"
	"github.com/G-Research/eventhouse/internal/ingester/model"
	"github.com/G-Research/eventhouse/internal/ingester/sink"
)

// ErrStopped is returned by Submit once the batcher no longer accepts events.
var ErrStopped = errors.New("batcher has stopped")

type Config struct {
	// A subject is flushed as soon as it holds this many rows
	MaxRows int `validate:"gt=0"`
	// A subject is flushed as soon as its payloads add up to this many bytes
	MaxBytes int64 `validate:"gt=0"`
	// Every batch open when the flush timer fires is flushed
	FlushInterval time.Duration `validate:"gt=0"`
	// How long to keep accepting in-flight events after shutdown has been signalled
	DrainTimeout time.Duration `validate:"gt=0"`
	// Redelivery delay requested when a batch fails transiently
	NakDelay      time.Duration `validate:"gte=0"`
	InsertTimeout time.Duration `validate:"gt=0"`
}

type entry struct {
	payload []byte
	handle  model.AckHandle
}

type subjectBatch struct {
	route   model.Route
	entries []entry
	bytes   int64
	opened  time.Time
}

// Batcher accumulates events per subject and bulk inserts each subject's batch once it is big enough, old enough or
// the process is shutting down.  All batch state is owned by the goroutine executing Run; producers only ever talk
// to it through Submit.
type Batcher struct {
	inserter  sink.Inserter
	config    Config
	metrics   *metrics.Metrics
	clock     clock.WithTicker
	input     chan model.InboundEvent
	stopped   chan struct{}
	closeLock sync.RWMutex
	closed    bool
	batches   map[string]*subjectBatch
	pending   atomic.Int64
}

func New(inserter sink.Inserter, config Config, m *metrics.Metrics) *Batcher {
	return &Batcher{
		inserter: inserter,
		config:   config,
		metrics:  m,
		clock:    clock.RealClock{},
		input:    make(chan model.InboundEvent, config.MaxRows),
		stopped:  make(chan struct{}),
		batches:  map[string]*subjectBatch{},
	}
}

// Submit hands an event to the batcher, blocking while the input is full.  Once the batcher has stopped, or Close
// has been called, ErrStopped is returned and the caller still owns the event's disposition.
func (b *Batcher) Submit(ctx context.Context, event model.InboundEvent) error {
	b.closeLock.RLock()
	defer b.closeLock.RUnlock()
	if b.closed {
		return ErrStopped
	}
	select {
	case <-b.stopped:
		return ErrStopped
	default:
	}
	select {
	case b.input <- event:
		return nil
	case <-b.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of rows currently held in open batches
func (b *Batcher) Pending() int {
	return int(b.pending.Load())
}

// Run is the batcher's control loop.  It returns once every held batch has been flushed, either because ctx was
// cancelled (after draining for at most DrainTimeout) or because the input was closed.
func (b *Batcher) Run(ctx *logcontext.Context) error {
	defer close(b.stopped)
	ticker := b.clock.NewTicker(b.config.FlushInterval)
	defer ticker.Stop()

	for {
		// Shutdown is checked before the timer, and the timer before the input, so that neither can be starved
		select {
		case <-ctx.Done():
			b.drain(ctx)
			return nil
		default:
		}
		select {
		case tick := <-ticker.C():
			b.flushDue(ctx, tick)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			b.drain(ctx)
			return nil
		case tick := <-ticker.C():
			b.flushDue(ctx, tick)
		case event, ok := <-b.input:
			if !ok {
				ctx.Log.Info("Batcher input closed, flushing all batches")
				b.flushAll(ctx)
				return nil
			}
			b.append(ctx, event)
		}
	}
}

// Close stops the batcher accepting events, waits for Run to return and naks anything that was still queued when it
// did.  It must only be called once no more events will be submitted.
func (b *Batcher) Close() {
	b.closeLock.Lock()
	if !b.closed {
		b.closed = true
		close(b.input)
	}
	b.closeLock.Unlock()

	<-b.stopped
	leftover := 0
	for event := range b.input {
		b.settle(logrus.WithField("subject", event.Subject), event.Handle, model.Nak)
		leftover++
	}
	if leftover > 0 {
		logrus.Warnf("Batcher stopped with %d events still queued, they will be redelivered", leftover)
	}
}

// drain flushes everything currently held and then keeps batching events that are still in flight until the input
// is closed or the drain timeout expires.
func (b *Batcher) drain(ctx *logcontext.Context) {
	ctx.Log.Info("Batcher shutdown: flushing all batches")
	b.flushAll(ctx)

	timeout := b.clock.After(b.config.DrainTimeout)
	for {
		select {
		case event, ok := <-b.input:
			if !ok {
				b.flushAll(ctx)
				return
			}
			b.append(ctx, event)
		case <-timeout:
			ctx.Log.Warnf("Batcher drain timed out after %s", b.config.DrainTimeout)
			b.flushAll(ctx)
			return
		}
	}
}

// append adds event to its subject's batch and flushes that batch straight away if it is now full
func (b *Batcher) append(ctx *logcontext.Context, event model.InboundEvent) {
	batch, ok := b.batches[event.Subject]
	if !ok {
		batch = &subjectBatch{
			route:   event.Route,
			entries: make([]entry, 0, b.config.MaxRows),
			opened:  b.clock.Now(),
		}
		b.batches[event.Subject] = batch
	}
	batch.entries = append(batch.entries, entry{payload: event.Payload, handle: event.Handle})
	batch.bytes += int64(len(event.Payload))
	b.addPending(1)

	if b.full(batch) {
		b.flush(ctx, event.Subject, metrics.FlushReasonSize)
	}
}

func (b *Batcher) full(batch *subjectBatch) bool {
	return len(batch.entries) >= b.config.MaxRows || batch.bytes >= b.config.MaxBytes
}

// flushDue flushes every batch that is full or was already open when the timer fired at tick
func (b *Batcher) flushDue(ctx *logcontext.Context, tick time.Time) {
	for _, subject := range b.subjects() {
		batch := b.batches[subject]
		if b.full(batch) {
			b.flush(ctx, subject, metrics.FlushReasonSize)
		} else if !batch.opened.After(tick) {
			b.flush(ctx, subject, metrics.FlushReasonTimer)
		}
	}
}

func (b *Batcher) flushAll(ctx *logcontext.Context) {
	for _, subject := range b.subjects() {
		b.flush(ctx, subject, metrics.FlushReasonShutdown)
	}
}

func (b *Batcher) subjects() []string {
	subjects := maps.Keys(b.batches)
	slices.Sort(subjects)
	return subjects
}

// flush removes subject's batch before inserting it, then settles every row in the batch with the same disposition.
// The insert runs on a context that shutdown does not cancel so its outcome, and therefore every row's disposition,
// is always known.
func (b *Batcher) flush(ctx *logcontext.Context, subject string, reason metrics.FlushReason) {
	batch, ok := b.batches[subject]
	if !ok {
		return
	}
	delete(b.batches, subject)
	b.addPending(-len(batch.entries))
	if len(batch.entries) == 0 {
		return
	}

	log := ctx.Log.WithFields(logrus.Fields{
		"flushId": util.NewULID(),
		"subject": subject,
		"table":   batch.route.Table,
		"rows":    len(batch.entries),
		"bytes":   batch.bytes,
	})

	rows := make([][]byte, len(batch.entries))
	for i, e := range batch.entries {
		rows[i] = e.payload
	}

	insertCtx, cancel := logcontext.WithTimeout(logcontext.Detached(ctx), b.config.InsertTimeout)
	start := b.clock.Now()
	err := b.inserter.InsertBatch(insertCtx, batch.route.Table, batch.route.Schema, rows)
	cancel()
	elapsed := b.clock.Since(start)

	disposition := model.Ack
	outcome := metrics.FlushOutcomeSuccess
	if err == nil {
		log.Infof("Flushed %d rows to %s in %s", len(rows), batch.route.Table, elapsed)
	} else if sink.IsPermanent(err) {
		disposition = model.Term
		outcome = metrics.FlushOutcomePermanent
		log.WithError(err).Error("Flush failed permanently, rejecting every row in the batch")
	} else {
		disposition = model.Nak
		outcome = metrics.FlushOutcomeTransient
		log.WithError(err).Warnf("Flush failed, every row in the batch will be redelivered after %s", b.config.NakDelay)
	}
	b.metrics.RecordFlush(batch.route.Table, reason, outcome, len(rows), int(batch.bytes), elapsed.Seconds())

	for _, e := range batch.entries {
		b.settle(log, e.handle, disposition)
	}
}

// settle issues d on handle.  A failed disposition is logged and left to the queue's redelivery.
func (b *Batcher) settle(log *logrus.Entry, handle model.AckHandle, d model.Disposition) {
	err := model.Settle(handle, d, b.config.NakDelay)
	b.metrics.RecordDisposition(d, err)
	if err != nil {
		log.WithError(err).Warnf("Failed to %s message", d)
	}
}

func (b *Batcher) addPending(delta int) {
	b.metrics.SetPendingRows(int(b.pending.Add(int64(delta))))
}
