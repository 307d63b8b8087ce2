package serial

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kstaniek/velbus-bridge/internal/busstatus"
	"github.com/kstaniek/velbus-bridge/internal/cache"
	"github.com/kstaniek/velbus-bridge/internal/logging"
	"github.com/kstaniek/velbus-bridge/internal/metrics"
	"github.com/kstaniek/velbus-bridge/internal/protocol"
)

// ReconnectBackoff is the fixed delay between failed connection attempts.
const ReconnectBackoff = 5 * time.Second

// DefaultReadTimeout bounds each blocking port Read so the reader
// goroutine can observe context cancellation between reads.
const DefaultReadTimeout = 500 * time.Millisecond

// openFn is a hook for tests to substitute a fake port instead of opening
// real hardware.
var openFn = Open

// Transport owns the field-bus serial connection lifecycle:
// Disconnected -> Connecting -> Connected -> (Faulted -> Connecting)* -> Disconnected.
// Reconnection runs under a singleton in-flight guard so overlapping
// Ensure calls never start two reconnect loops.
type Transport struct {
	devicePath   string
	autodiscover bool
	readTimeout  time.Duration
	txQueueSize  int

	cache   *cache.Cache
	onFrame func(protocol.Frame)

	// OnSent and OnSendFailed, when set, are wired into the writer so a
	// caller (the bridge) can delete committed ids from the cache and
	// correlate queued sends with their outcome. Must be set before the
	// first Ensure call.
	OnSent       func(id string)
	OnSendFailed func(id string, err error)

	tracker *busstatus.Tracker

	mu        sync.Mutex
	port      Port
	writer    *TXWriter
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	connected atomic.Bool
	reconnect atomic.Bool

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewTransport constructs a Transport. onFrame is invoked (from the
// reader goroutine) for every frame received from the bus, after bus
// status tracking is applied.
func NewTransport(devicePath string, autodiscover bool, readTimeout time.Duration, txQueueSize int, tracker *busstatus.Tracker, c *cache.Cache, onFrame func(protocol.Frame)) *Transport {
	return &Transport{
		devicePath:   devicePath,
		autodiscover: autodiscover,
		readTimeout:  readTimeout,
		txQueueSize:  txQueueSize,
		tracker:      tracker,
		cache:        c,
		onFrame:      onFrame,
		stopCh:       make(chan struct{}),
	}
}

// IsActive reports whether the serial connection is currently open.
func (t *Transport) IsActive() bool { return t.connected.Load() }

// Ensure starts a background reconnection loop if the bus is not already
// connected and no reconnect attempt is already in flight. It returns
// immediately; callers are notified of connectivity via IsActive/Send.
func (t *Transport) Ensure(ctx context.Context) {
	if t.IsActive() {
		return
	}
	if !t.reconnect.CompareAndSwap(false, true) {
		return
	}
	go t.reconnectLoop(ctx)
}

func (t *Transport) reconnectLoop(ctx context.Context) {
	logging.L().Info("bus_connect_attempt")
	for {
		select {
		case <-ctx.Done():
			t.reconnect.Store(false)
			return
		case <-t.stopCh:
			t.reconnect.Store(false)
			return
		default:
		}
		if err := t.start(ctx); err != nil {
			logging.L().Error("bus_connect_failed", "error", err)
			select {
			case <-time.After(ReconnectBackoff):
			case <-ctx.Done():
				t.reconnect.Store(false)
				return
			case <-t.stopCh:
				t.reconnect.Store(false)
				return
			}
			continue
		}
		t.reconnect.Store(false)
		return
	}
}

func (t *Transport) start(ctx context.Context) error {
	if t.IsActive() {
		return nil
	}

	path, err := SelectPort(t.devicePath, t.autodiscover)
	if err != nil {
		return err
	}

	port, err := openFn(path, t.readTimeout)
	if err != nil {
		return err
	}

	childCtx, cancel := context.WithCancel(ctx)

	t.mu.Lock()
	t.port = port
	t.writer = NewTXWriter(childCtx, port, t.cache, t.txQueueSize, t.OnSent, t.OnSendFailed)
	t.cancel = cancel
	t.mu.Unlock()

	t.connected.Store(true)
	metrics.SetBusAlive(true)

	// fault waits for the reader goroutine to exit, so it must not run on it.
	reader := NewReader(port, t.handleFrame, func(error) { go t.fault(ctx) })
	t.wg.Add(1)
	go reader.Run(childCtx, &t.wg)

	logging.L().Info("bus_connected", "device", path)
	return nil
}

func (t *Transport) handleFrame(fr protocol.Frame) {
	prev, cur := t.tracker.Observe(fr)
	// Fan the frame out only after any writer lock/unlock below is applied.
	defer t.onFrame(fr)

	if prev.Alive() == cur.Alive() {
		return
	}
	metrics.SetBusAlive(cur.Alive())
	t.mu.Lock()
	w := t.writer
	t.mu.Unlock()
	if w == nil {
		return
	}
	if cur.Alive() {
		w.Unlock()
	} else {
		w.Lock()
	}
}

// fault tears the connection down and re-arms reconnection, matching the
// original on_bus_fault handler (stop then ensure).
func (t *Transport) fault(ctx context.Context) {
	metrics.IncReconnect()
	t.teardown()
	t.Ensure(ctx)
}

func (t *Transport) teardown() {
	if !t.connected.Swap(false) {
		return
	}
	metrics.SetBusAlive(false)

	t.mu.Lock()
	cancel := t.cancel
	port := t.port
	writer := t.writer
	t.cancel = nil
	t.port = nil
	t.writer = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if writer != nil {
		writer.Close()
	}
	t.wg.Wait()
	if port != nil {
		_ = port.Close()
	}
}

// Stop permanently disables reconnection and closes any active connection.
// A second call is a no-op.
func (t *Transport) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopCh)
	})
	t.teardown()
}

// Send queues the cached frame identified by id for transmission.
// ErrNotConnected is returned if the bus is not currently connected.
func (t *Transport) Send(id string) error {
	t.mu.Lock()
	w := t.writer
	t.mu.Unlock()
	if w == nil {
		return ErrNotConnected
	}
	return w.SendID(id)
}
