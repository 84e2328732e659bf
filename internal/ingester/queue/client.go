package queue

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/G-Research/eventhouse/internal/common/logcontext"
	"github.com/G-Research/eventhouse/internal/common/util"
	"github.com/G-Research/eventhouse/internal/ingester/model"
	"github.com/G-Research/eventhouse/internal/ingester/pool"
)

const (
	connectRetryDelay     = time.Second
	drainTimeout          = 10 * time.Second
	dispositionAttempts   = 3
	dispositionRetryDelay = 50 * time.Millisecond
)

// Client owns the connection to NATS and is shared by every worker
type Client struct {
	config Config
	conn   *nats.Conn
	js     nats.JetStreamContext
	closed chan struct{}
}

// Connect dials NATS, retrying up to ConnectAttempts times
func Connect(ctx *logcontext.Context, config Config) (*Client, error) {
	opts := []nats.Option{
		nats.Name("eventhouse-" + util.NewULID()),
		nats.Timeout(config.ConnectTimeout),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DrainTimeout(drainTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				ctx.Log.WithError(err).Warn("Disconnected from NATS")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			ctx.Log.Infof("Reconnected to NATS at %s", nc.ConnectedUrlRedacted())
		}),
	}
	if config.Username != "" {
		opts = append(opts, nats.UserInfo(config.Username, config.Password))
	}

	servers := strings.Join(config.Servers, ",")
	var conn *nats.Conn
	var closed chan struct{}
	err := util.RetryWithBackoff(ctx, config.ConnectAttempts, connectRetryDelay,
		func() error {
			// Each attempt gets its own channel so that a failed attempt being closed is not mistaken for this one
			attemptClosed := make(chan struct{})
			closeOnce := sync.Once{}
			onClosed := nats.ClosedHandler(func(_ *nats.Conn) {
				closeOnce.Do(func() { close(attemptClosed) })
			})
			var err error
			conn, err = nats.Connect(servers, append(opts, onClosed)...)
			closed = attemptClosed
			return err
		},
		func(attempt uint, err error) {
			ctx.Log.WithError(err).Warnf("Failed to connect to NATS (attempt %d of %d)", attempt+1, config.ConnectAttempts)
		})
	if err != nil {
		return nil, errors.WithMessagef(err, "could not connect to NATS at %s", servers)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, errors.WithMessage(err, "could not create JetStream context")
	}
	ctx.Log.Infof("Connected to NATS at %s", conn.ConnectedUrlRedacted())
	return &Client{config: config, conn: conn, js: js, closed: closed}, nil
}

// EnsureStream checks that the configured stream exists, creating it if allowed to
func (c *Client) EnsureStream(ctx *logcontext.Context) error {
	name := c.config.Stream.Name
	info, err := c.js.StreamInfo(name, nats.Context(ctx))
	if err == nil {
		ctx.Log.Infof("Using stream %s with subjects %v holding %d messages", name, info.Config.Subjects, info.State.Msgs)
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return errors.WithMessagef(err, "could not look up stream %s", name)
	}
	if !c.config.Stream.Create {
		return errors.Errorf("stream %s does not exist and stream creation is disabled", name)
	}

	_, err = c.js.AddStream(&nats.StreamConfig{
		Name:         name,
		Subjects:     c.config.Stream.Subjects,
		Retention:    c.config.Stream.Retention,
		Discard:      c.config.Stream.Discard,
		Storage:      c.config.Stream.Storage,
		MaxConsumers: c.config.Stream.MaxConsumers,
		MaxAge:       c.config.Stream.MaxAge,
		Replicas:     c.config.Stream.Replicas,
	}, nats.Context(ctx))
	if err != nil {
		return errors.WithMessagef(err, "could not create stream %s", name)
	}
	ctx.Log.Infof("Created stream %s with subjects %v", name, c.config.Stream.Subjects)
	return nil
}

// Subscribe binds a durable pull consumer to the stream
func (c *Client) Subscribe(ctx *logcontext.Context) (*Consumer, error) {
	consumer := c.config.Consumer
	sub, err := c.js.PullSubscribe(
		consumer.FilterSubject,
		consumer.Durable,
		nats.BindStream(c.config.Stream.Name),
		nats.AckExplicit(),
		nats.AckWait(consumer.AckWait),
		nats.MaxDeliver(consumer.MaxDeliver),
		nats.MaxAckPending(consumer.MaxAckPending),
	)
	if err != nil {
		return nil, errors.WithMessagef(err, "could not create pull consumer %s", consumer.Durable)
	}
	ctx.Log.Infof("Pulling from %s as durable consumer %s", consumer.FilterSubject, consumer.Durable)
	return &Consumer{sub: sub, pullTimeout: c.config.PullTimeout}, nil
}

func (c *Client) Check() error {
	if !c.conn.IsConnected() {
		return errors.Errorf("not connected to NATS, connection status is %s", statusName(c.conn.Status()))
	}
	return nil
}

// Close drains the connection and waits for it to close, so that dispositions already issued have been flushed to
// the server by the time it returns.
func (c *Client) Close() error {
	if c.conn.IsClosed() {
		return nil
	}
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
		return errors.WithMessage(err, "could not drain NATS connection")
	}
	select {
	case <-c.closed:
	case <-time.After(drainTimeout + time.Second):
		c.conn.Close()
		return errors.Errorf("NATS connection did not drain within %s", drainTimeout)
	}
	if errors.Is(c.conn.LastError(), nats.ErrDrainTimeout) {
		return errors.Errorf("NATS connection did not drain within %s", drainTimeout)
	}
	return nil
}

func statusName(status nats.Status) string {
	switch status {
	case nats.DISCONNECTED:
		return "disconnected"
	case nats.CONNECTED:
		return "connected"
	case nats.CLOSED:
		return "closed"
	case nats.RECONNECTING:
		return "reconnecting"
	case nats.CONNECTING:
		return "connecting"
	case nats.DRAINING_SUBS, nats.DRAINING_PUBS:
		return "draining"
	default:
		return "unknown"
	}
}

// Consumer pulls messages one at a time from a durable pull consumer
type Consumer struct {
	sub         *nats.Subscription
	pullTimeout time.Duration
}

// Pull waits up to the pull timeout for the next message.  (nil, nil) means nothing arrived in time.
func (c *Consumer) Pull(ctx context.Context) (*model.Message, error) {
	pullCtx, cancel := context.WithTimeout(ctx, c.pullTimeout)
	defer cancel()

	msgs, err := c.sub.Fetch(1, nats.Context(pullCtx))
	switch {
	case errors.Is(err, nats.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return nil, nil
	case errors.Is(err, nats.ErrConnectionClosed), errors.Is(err, nats.ErrBadSubscription), errors.Is(err, nats.ErrConnectionDraining):
		return nil, pool.ErrSourceClosed
	case err != nil:
		return nil, errors.WithMessage(err, "fetch failed")
	case len(msgs) == 0:
		return nil, nil
	}

	msg := msgs[0]
	return &model.Message{
		Subject: msg.Subject,
		Payload: msg.Data,
		Handle:  &jsHandle{msg: msg},
	}, nil
}

// jsHandle settles a JetStream message.  Each call is retried a few times as a publish can fail while the connection
// is reconnecting; if it still fails, the server redelivers the message after AckWait.
type jsHandle struct {
	msg *nats.Msg
}

func (h *jsHandle) Ack() error {
	return retryDisposition(func() error { return h.msg.Ack() })
}

func (h *jsHandle) Nak(delay time.Duration) error {
	if delay <= 0 {
		return retryDisposition(func() error { return h.msg.Nak() })
	}
	return retryDisposition(func() error { return h.msg.NakWithDelay(delay) })
}

func (h *jsHandle) Term() error {
	return retryDisposition(func() error { return h.msg.Term() })
}

func retryDisposition(action func() error) error {
	return util.RetryWithBackoff(context.Background(), dispositionAttempts, dispositionRetryDelay, action, func(uint, error) {})
}
