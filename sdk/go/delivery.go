package lumen

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// deliveryLoop drains the pending queue into bounded payloads and ships
// them. Its polling interval adapts: doubled (capped at max) after a failed
// send, reset to base after a success.
type deliveryLoop struct {
	spool      *spool
	transport  *transport
	appID      string
	payloadMax int
	base       time.Duration
	max        time.Duration
	logger     *slog.Logger

	// interval, retryBatch, and retrySnapshot are touched only by the loop
	// goroutine (and by drainOnce in tests); they need no lock.
	interval time.Duration

	// retryBatch pins a failed payload together with the counters it was
	// first sent with, so the retry repeats the exact same request. The
	// collector recognizes a replayed payload by app identity plus payload
	// counter; minting fresh counters on retry would defeat that.
	retryBatch    []string
	retrySnapshot counterSnapshot

	eventsSent   atomic.Int64
	payloadsSent atomic.Int64
}

func newDeliveryLoop(sp *spool, tr *transport, appID string, cfg Config) *deliveryLoop {
	return &deliveryLoop{
		spool:      sp,
		transport:  tr,
		appID:      appID,
		payloadMax: cfg.PayloadMaxSize,
		base:       cfg.BaseInterval,
		max:        cfg.MaxInterval,
		interval:   cfg.BaseInterval,
		logger:     cfg.Logger.With("component", "delivery"),
	}
}

// run loops until ctx is cancelled: drain what is pending, sleep for the
// current interval, repeat.
func (d *deliveryLoop) run(ctx context.Context) {
	for {
		d.drainOnce(ctx)
		if !sleepWithContext(ctx, d.interval) {
			return
		}
	}
}

// drainOnce performs one delivery cycle: while the pending queue is
// non-empty, peek up to payloadMax events off the front, send them, and
// remove them only on confirmed success. The first failure ends the cycle
// and doubles the interval; the peeked events stay pending and the next
// cycle resends the identical payload, counters included.
func (d *deliveryLoop) drainOnce(ctx context.Context) {
	for d.spool.pendingLen() > 0 {
		batch := d.retryBatch
		snapshot := d.retrySnapshot
		if batch == nil {
			batch = d.spool.peekFront(d.payloadMax)
			if len(batch) == 0 {
				return
			}
			// Counters advance before the first send of a payload: they
			// count attempted payloads, and a retry is the same payload.
			snapshot = counterSnapshot{
				Events:   d.eventsSent.Add(int64(len(batch))),
				Payloads: d.payloadsSent.Add(1),
			}
		}

		err := d.transport.post(ctx, pathBulk, bulkRequest{
			AppID:    d.appID,
			Events:   batch,
			Counters: snapshot,
		})
		if err != nil {
			d.retryBatch = batch
			d.retrySnapshot = snapshot
			d.backoff()
			d.logger.Warn("bulk send failed",
				"error", err,
				"batch_size", len(batch),
				"pending", d.spool.pendingLen(),
				"next_interval", d.interval,
			)
			return
		}

		d.retryBatch = nil
		d.spool.commitFront(len(batch))
		d.interval = d.base
	}
}

// backoff doubles the polling interval, capped at the configured maximum.
func (d *deliveryLoop) backoff() {
	d.interval *= 2
	if d.interval > d.max {
		d.interval = d.max
	}
}

// sleepWithContext sleeps for d or until ctx is cancelled. Returns false on
// cancellation.
func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
