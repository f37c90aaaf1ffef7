package lumen

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Connector buffers lifecycle events and ships them to the collector from
// background goroutines. All methods are safe for concurrent use. Enqueue
// never blocks on the network unless the blocking drain path is requested,
// and never returns an error to the producer.
type Connector struct {
	cfg      Config
	appID    string
	disabled bool
	logger   *slog.Logger

	spool     *spool
	delivery  *deliveryLoop
	heartbeat *heartbeatLoop

	deliveryStarted  atomic.Bool
	heartbeatStarted atomic.Bool

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// Stats is a snapshot of the connector's counters and queue depths.
type Stats struct {
	// EventsSent and PayloadsSent count attempted sends, advanced
	// immediately before each bulk request.
	EventsSent   int64
	PayloadsSent int64

	// Buffered is the accumulation buffer length; Pending is the number of
	// events flushed but not yet confirmed delivered.
	Buffered int
	Pending  int
}

// New creates a connector. A missing APIKey does not fail: it returns a
// disabled connector whose operations are silent no-ops, so instrumentation
// never breaks the host application. The heartbeat loop starts immediately;
// the delivery loop starts lazily on the first enqueue.
func New(cfg Config) (*Connector, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	logger := cfg.Logger.With("component", "lumen")

	c := &Connector{
		cfg:    cfg,
		logger: logger,
	}

	if cfg.APIKey == "" {
		c.disabled = true
		logger.Warn("no API key configured, connector disabled")
		return c, nil
	}

	appID := cfg.AppID
	if appID == "" {
		appID = newAppID(cfg.AppName)
	}
	c.appID = appID

	c.spool = newSpool(cfg.BufferMaxSize)

	// One transport per background task: bulk and ack share the delivery
	// loop's client, the heartbeat loop gets its own.
	deliveryTransport := newTransport(cfg.CollectorURL, cfg.APIKey, cfg.RequestTimeout)
	heartbeatTransport := newTransport(cfg.CollectorURL, cfg.APIKey, cfg.RequestTimeout)

	c.delivery = newDeliveryLoop(c.spool, deliveryTransport, appID, cfg)
	c.heartbeat = newHeartbeatLoop(heartbeatTransport, appID, cfg)

	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.startHeartbeatIfNecessary()

	return c, nil
}

// AppID returns the application identity token, or empty when disabled.
func (c *Connector) AppID() string {
	return c.appID
}

// Disabled reports whether the connector was constructed without an API key.
func (c *Connector) Disabled() bool {
	return c.disabled
}

// Stats returns a snapshot of counters and queue depths.
func (c *Connector) Stats() Stats {
	if c.disabled {
		return Stats{}
	}
	return Stats{
		EventsSent:   c.delivery.eventsSent.Load(),
		PayloadsSent: c.delivery.payloadsSent.Load(),
		Buffered:     c.spool.bufferedLen(),
		Pending:      c.spool.pendingLen(),
	}
}

// Enqueue appends a pre-serialized event to the accumulation buffer and
// starts the delivery loop if it is not yet running. The buffer is flushed
// to the pending queue when flush is true or the buffer reached its
// configured maximum. When block is additionally true, the call waits for
// the pending queue to drain (bounded by DrainMaxWait) and then sends a
// final acknowledgment; this is the shutdown path.
//
// Enqueue is a silent no-op on a disabled connector.
func (c *Connector) Enqueue(event string, flush, block bool) {
	if c.disabled {
		return
	}

	c.startDeliveryIfNecessary()

	n := c.spool.append(event)
	if flush || n >= c.cfg.BufferMaxSize {
		c.spool.flush()
		if block {
			c.drainAndFinalize()
		}
	}
}

// Flush moves all accumulated events to the pending queue without waiting
// for delivery.
func (c *Connector) Flush() {
	if c.disabled {
		return
	}
	c.spool.flush()
}

// Close flushes the buffer, drains the pending queue (bounded by
// DrainMaxWait), sends the final acknowledgment, and stops the background
// loops. Safe to call multiple times; only the first call does the work.
func (c *Connector) Close() {
	if c.disabled {
		return
	}
	c.closeOnce.Do(func() {
		c.spool.flush()
		if c.spool.pendingLen() > 0 {
			c.startDeliveryIfNecessary()
		}
		c.drainAndFinalize()
		c.cancel()
	})
}

// startDeliveryIfNecessary launches the delivery loop at most once. The
// compare-and-swap makes it race-free under concurrent producers: only the
// caller that flips the flag starts the goroutine.
func (c *Connector) startDeliveryIfNecessary() {
	if c.deliveryStarted.CompareAndSwap(false, true) {
		go c.delivery.run(c.ctx)
	}
}

// startHeartbeatIfNecessary launches the heartbeat loop at most once.
func (c *Connector) startHeartbeatIfNecessary() {
	if c.heartbeatStarted.CompareAndSwap(false, true) {
		go c.heartbeat.run(c.ctx)
	}
}

// drainAndFinalize polls the pending queue until it empties or DrainMaxWait
// elapses, then sends exactly one acknowledgment request regardless of the
// outcome. A timeout means accepted data loss, logged as a warning; it
// never blocks shutdown indefinitely.
func (c *Connector) drainAndFinalize() {
	deadline := time.Now().Add(c.cfg.DrainMaxWait)

	for c.spool.pendingLen() > 0 {
		if time.Now().After(deadline) {
			c.logger.Warn("drain timed out with events still pending",
				"pending", c.spool.pendingLen(),
				"waited", c.cfg.DrainMaxWait,
			)
			break
		}
		time.Sleep(c.cfg.DrainPollInterval)
	}

	if err := c.delivery.transport.post(c.ctx, pathAck, identityRequest{AppID: c.appID}); err != nil {
		c.logger.Warn("ack failed", "error", err)
	}
}
