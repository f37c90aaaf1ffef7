package lumen

import (
	"context"
	"log/slog"
	"time"
)

// heartbeatLoop pings the collector's liveness endpoint on a fixed cadence,
// independent of event traffic. Failures are logged and otherwise ignored:
// no retry, no backoff, the next tick tries again regardless.
type heartbeatLoop struct {
	transport *transport
	appID     string
	interval  time.Duration
	logger    *slog.Logger
}

func newHeartbeatLoop(tr *transport, appID string, cfg Config) *heartbeatLoop {
	return &heartbeatLoop{
		transport: tr,
		appID:     appID,
		interval:  cfg.HeartbeatInterval,
		logger:    cfg.Logger.With("component", "heartbeat"),
	}
}

// run loops until ctx is cancelled.
func (h *heartbeatLoop) run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.transport.post(ctx, pathHeartbeat, identityRequest{AppID: h.appID}); err != nil {
				h.logger.Warn("heartbeat failed", "error", err)
			}
		}
	}
}
