package lumen

import (
	"sync"
)

// The package-level singleton supports the common one-connector-per-process
// deployment: the instrumented application calls Init once at startup and
// Enqueue from anywhere, without threading a *Connector through its code.
var (
	globalMu sync.Mutex
	global   *Connector
)

// Init initializes the process-wide connector. The first successful call
// wins; later calls return the existing connector and ignore their config.
func Init(cfg Config) (*Connector, error) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if global != nil {
		return global, nil
	}

	c, err := New(cfg)
	if err != nil {
		return nil, err
	}
	global = c
	return c, nil
}

// Active reports whether the process-wide connector is initialized and not
// disabled.
func Active() bool {
	globalMu.Lock()
	defer globalMu.Unlock()
	return global != nil && !global.disabled
}

// Enqueue forwards to the process-wide connector. A no-op when Init has not
// been called, so instrumentation call sites never have to guard against
// initialization order.
func Enqueue(event string, flush, block bool) {
	globalMu.Lock()
	c := global
	globalMu.Unlock()

	if c == nil {
		return
	}
	c.Enqueue(event, flush, block)
}

// Flush moves the process-wide connector's accumulated events to the pending
// queue. A no-op when Init has not been called.
func Flush() {
	globalMu.Lock()
	c := global
	globalMu.Unlock()

	if c == nil {
		return
	}
	c.Flush()
}

// Shutdown drains and closes the process-wide connector. A no-op when Init
// has not been called.
func Shutdown() {
	globalMu.Lock()
	c := global
	globalMu.Unlock()

	if c == nil {
		return
	}
	c.Close()
}

// resetForTesting clears the singleton so unit tests can re-Init.
func resetForTesting() {
	globalMu.Lock()
	global = nil
	globalMu.Unlock()
}
