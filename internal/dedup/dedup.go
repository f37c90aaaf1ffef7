// Package dedup detects retried bulk payloads with a sliding-window bloom
// filter. The connector retries a whole payload when it does not see a 200,
// so a payload that was stored but whose response was lost arrives twice;
// the filter lets the collector absorb the replay without double-storing.
package dedup

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
)

// Filter is a sliding-window duplicate detector built from two bloom
// filters. Keys are added to the current filter; lookups check current and
// previous. Rotation every window/2 swaps current to previous, so a key
// stays visible for at least one full window.
type Filter struct {
	mu       sync.RWMutex
	current  *bloom.BloomFilter
	previous *bloom.BloomFilter

	window   time.Duration
	capacity uint
	fpRate   float64
	logger   *slog.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a Filter with the given window, expected key capacity per
// window, and false positive rate.
func New(window time.Duration, capacity uint, fpRate float64, logger *slog.Logger) *Filter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Filter{
		current:  bloom.NewWithEstimates(capacity, fpRate),
		previous: bloom.NewWithEstimates(capacity, fpRate),
		window:   window,
		capacity: capacity,
		fpRate:   fpRate,
		logger:   logger.With("component", "dedup"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Seen reports whether key was observed within the window. A miss records
// the key and returns false. Empty keys always pass through. Safe for
// concurrent use.
func (f *Filter) Seen(key string) bool {
	if key == "" {
		return false
	}
	data := []byte(key)

	f.mu.RLock()
	if f.current.Test(data) || f.previous.Test(data) {
		f.mu.RUnlock()
		return true
	}
	f.mu.RUnlock()

	f.mu.Lock()
	defer f.mu.Unlock()
	// Double-check: another goroutine may have added the key between the
	// read unlock and the write lock.
	if f.current.Test(data) || f.previous.Test(data) {
		return true
	}
	f.current.Add(data)
	return false
}

// Rotate swaps current to previous and starts a fresh current filter.
func (f *Filter) Rotate() {
	f.mu.Lock()
	f.previous = f.current
	f.current = bloom.NewWithEstimates(f.capacity, f.fpRate)
	f.mu.Unlock()
}

// Window returns the configured dedup window.
func (f *Filter) Window() time.Duration {
	return f.window
}

// Start launches the rotation goroutine, ticking every window/2. It stops
// when ctx is cancelled or Stop is called.
func (f *Filter) Start(ctx context.Context) {
	interval := f.window / 2
	f.logger.Info("dedup filter started", "window", f.window, "rotate_interval", interval)

	go func() {
		defer close(f.doneCh)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				f.Rotate()
				f.logger.Debug("dedup filter rotated")
			case <-ctx.Done():
				return
			case <-f.stopCh:
				return
			}
		}
	}()
}

// Stop signals the rotation goroutine to stop and waits for it to exit.
func (f *Filter) Stop() {
	close(f.stopCh)
	<-f.doneCh
}
