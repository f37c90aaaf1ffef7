package lumen

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// collectorStub is a fake collector that records requests per endpoint and
// can be told to fail bulk sends.
type collectorStub struct {
	mu         sync.Mutex
	bulks      []bulkRequest
	heartbeats int
	acks       int
	failBulk   bool
}

func (c *collectorStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	c.mu.Lock()
	defer c.mu.Unlock()

	switch r.URL.Path {
	case pathBulk:
		if c.failBulk {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var br bulkRequest
		_ = json.Unmarshal(body, &br)
		c.bulks = append(c.bulks, br)
	case pathHeartbeat:
		c.heartbeats++
	case pathAck:
		c.acks++
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (c *collectorStub) ackCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acks
}

func (c *collectorStub) heartbeatCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.heartbeats
}

func (c *collectorStub) deliveredEvents() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, b := range c.bulks {
		out = append(out, b.Events...)
	}
	return out
}

func fastConfig(serverURL string) Config {
	return Config{
		CollectorURL:      serverURL,
		APIKey:            "secret",
		AppName:           "test",
		BaseInterval:      10 * time.Millisecond,
		MaxInterval:       40 * time.Millisecond,
		HeartbeatInterval: 20 * time.Millisecond,
		DrainMaxWait:      300 * time.Millisecond,
		DrainPollInterval: 25 * time.Millisecond,
		RequestTimeout:    time.Second,
		Logger:            slog.New(slog.DiscardHandler),
	}
}

// TestConnector_AutoFlushAtBufferMax verifies the scenario: with buffer max
// 2, the second enqueue flushes ["a","b"] to the pending queue while "c"
// stays in the accumulation buffer; an explicit flush moves it too.
func TestConnector_AutoFlushAtBufferMax(t *testing.T) {
	stub := &collectorStub{failBulk: true} // keep the queue observable
	srv := httptest.NewServer(stub)
	defer srv.Close()

	cfg := fastConfig(srv.URL)
	cfg.BufferMaxSize = 2
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}

	c.Enqueue("a", false, false)
	c.Enqueue("b", false, false)

	if got := c.spool.pendingLen(); got != 2 {
		t.Errorf("pendingLen after auto-flush = %d, want 2", got)
	}

	c.Enqueue("c", false, false)
	if got := c.spool.bufferedLen(); got != 1 {
		t.Errorf("bufferedLen = %d, want 1 (c not yet flushed)", got)
	}

	c.Flush()
	if got := c.spool.pendingLen(); got != 3 {
		t.Fatalf("pendingLen after explicit flush = %d, want 3", got)
	}
	batch := c.spool.peekFront(3)
	want := []string{"a", "b", "c"}
	for i, ev := range want {
		if batch[i] != ev {
			t.Errorf("pending[%d] = %q, want %q", i, batch[i], ev)
		}
	}
}

// TestConnector_Disabled_EnqueueIsNoOp verifies the missing-key policy: the
// pending queue stays empty regardless of call volume and nothing panics.
func TestConnector_Disabled_EnqueueIsNoOp(t *testing.T) {
	cfg := Config{Logger: slog.New(slog.DiscardHandler)}
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() without API key returned error: %v", err)
	}
	if !c.Disabled() {
		t.Fatal("connector should be disabled without an API key")
	}

	for i := 0; i < 500; i++ {
		c.Enqueue("ev", true, false)
	}
	c.Flush()

	if got := c.Stats(); got.Pending != 0 || got.Buffered != 0 {
		t.Errorf("Stats = %+v, want empty on disabled connector", got)
	}

	// Close must also be a no-op, not a hang or panic.
	c.Close()
}

// TestConnector_DeliversInOrder verifies events flow producer -> buffer ->
// pending queue -> collector preserving enqueue order.
func TestConnector_DeliversInOrder(t *testing.T) {
	stub := &collectorStub{}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	c, err := New(fastConfig(srv.URL))
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	defer c.Close()

	want := []string{"start", "step-1", "step-2", "step-3", "finish"}
	for _, ev := range want {
		c.Enqueue(ev, false, false)
	}
	c.Enqueue("tail", true, false)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(stub.deliveredEvents()) == len(want)+1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	got := stub.deliveredEvents()
	if len(got) != len(want)+1 {
		t.Fatalf("collector received %d events, want %d", len(got), len(want)+1)
	}
	for i, ev := range want {
		if got[i] != ev {
			t.Errorf("delivered[%d] = %q, want %q", i, got[i], ev)
		}
	}
}

// TestConnector_BlockingEnqueue_FailingTransport verifies drain-and-finalize
// returns after approximately DrainMaxWait when the transport always fails,
// and still issues exactly one ack attempt.
func TestConnector_BlockingEnqueue_FailingTransport(t *testing.T) {
	stub := &collectorStub{failBulk: true}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	c, err := New(fastConfig(srv.URL))
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}

	start := time.Now()
	c.Enqueue("last-event", true, true)
	elapsed := time.Since(start)

	if elapsed < 250*time.Millisecond {
		t.Errorf("blocking enqueue returned after %v, want ~DrainMaxWait (300ms)", elapsed)
	}
	if elapsed > 2*time.Second {
		t.Errorf("blocking enqueue took %v, should not hang far past DrainMaxWait", elapsed)
	}
	if got := stub.ackCount(); got != 1 {
		t.Errorf("ack attempts = %d, want exactly 1", got)
	}
	if got := c.spool.pendingLen(); got == 0 {
		t.Error("pending queue should still hold the undelivered event")
	}
}

// TestConnector_BlockingEnqueue_DrainsBeforeAck verifies the happy path:
// the blocking call returns once the queue empties and the ack follows.
func TestConnector_BlockingEnqueue_DrainsBeforeAck(t *testing.T) {
	stub := &collectorStub{}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	c, err := New(fastConfig(srv.URL))
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}

	c.Enqueue("a", false, false)
	c.Enqueue("b", false, false)
	c.Enqueue("c", true, true)

	if got := c.spool.pendingLen(); got != 0 {
		t.Errorf("pendingLen after blocking drain = %d, want 0", got)
	}
	if got := stub.ackCount(); got != 1 {
		t.Errorf("ack attempts = %d, want 1", got)
	}
	if got := stub.deliveredEvents(); len(got) != 3 {
		t.Errorf("collector received %d events, want 3", len(got))
	}
}

// TestConnector_Heartbeats verifies the heartbeat loop runs on its fixed
// cadence, independent of event traffic.
func TestConnector_Heartbeats(t *testing.T) {
	stub := &collectorStub{}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	c, err := New(fastConfig(srv.URL))
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	defer c.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if stub.heartbeatCount() >= 2 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("heartbeats = %d after waiting, want >= 2", stub.heartbeatCount())
}

// TestConnector_CloseIsIdempotent verifies repeated Close calls do the work
// once: a single ack.
func TestConnector_CloseIsIdempotent(t *testing.T) {
	stub := &collectorStub{}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	c, err := New(fastConfig(srv.URL))
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}

	c.Enqueue("only", false, false)
	c.Close()
	c.Close()
	c.Close()

	if got := stub.ackCount(); got != 1 {
		t.Errorf("ack attempts after triple Close = %d, want 1", got)
	}
}

// TestConnector_AppIDDerivedFromName verifies the identity is the app name
// plus a random suffix, or the configured override verbatim.
func TestConnector_AppIDDerivedFromName(t *testing.T) {
	stub := &collectorStub{}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	cfg := fastConfig(srv.URL)
	cfg.AppName = "worker"
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	defer c.Close()

	id := c.AppID()
	if len(id) <= len("worker-") || id[:len("worker-")] != "worker-" {
		t.Errorf("AppID = %q, want %q plus a random suffix", id, "worker-")
	}

	other, err := New(cfg)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	defer other.Close()
	if other.AppID() == id {
		t.Error("two connectors derived the same AppID; suffix should be random")
	}

	cfg.AppID = "pinned-id"
	pinned, err := New(cfg)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	defer pinned.Close()
	if pinned.AppID() != "pinned-id" {
		t.Errorf("AppID = %q, want override %q", pinned.AppID(), "pinned-id")
	}
}

// TestConnector_ConcurrentEnqueue verifies concurrent producers lose no
// events and the automatic flush count keeps up with volume.
func TestConnector_ConcurrentEnqueue(t *testing.T) {
	stub := &collectorStub{}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	cfg := fastConfig(srv.URL)
	cfg.BufferMaxSize = 10
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}

	const producers = 4
	const perProducer = 50

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				c.Enqueue("ev", false, false)
			}
		}()
	}
	wg.Wait()
	c.Close()

	total := producers * perProducer
	if got := len(stub.deliveredEvents()); got != total {
		t.Errorf("collector received %d events, want %d", got, total)
	}
}
