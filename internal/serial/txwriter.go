package serial

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kstaniek/velbus-bridge/internal/cache"
	"github.com/kstaniek/velbus-bridge/internal/logging"
	"github.com/kstaniek/velbus-bridge/internal/metrics"
	"github.com/kstaniek/velbus-bridge/internal/transport"
)

// ErrTxOverflow is returned by SendID when the writer queue is full.
var ErrTxOverflow = errors.New("serial tx overflow")

// SendDelay is the minimum spacing enforced between consecutive writes to
// the field bus.
const SendDelay = 50 * time.Millisecond

// ErrWriterLocked is reported (via onFailed) for a frame that was still
// waiting at the lock gate when the writer's parent context ended.
var ErrWriterLocked = errors.New("serial writer locked")

// TXWriter funnels all bus writes through one goroutine, pacing them by
// SendDelay and holding the next frame at a lock gate while locked (bus
// not alive); frames queued meanwhile stay queued in FIFO order. It queues
// frame identifiers rather than raw frames: the cache is the single
// source of truth for frame bytes, resolved at write time.
type TXWriter struct {
	base   *transport.AsyncTx[string]
	locked atomic.Bool
	lastTx atomic.Int64 // unix nanos of the last successful write

	mu          sync.Mutex
	lastAttempt string
}

// NewTXWriter creates a bus TXWriter with a buffered channel of size buf.
// onSent is invoked (from the writer goroutine) with the id of every
// frame successfully written; onFailed is invoked with the id and error
// of a queued write that could not complete (still locked when parent
// ended, unknown id, or I/O error). Both let the bridge delete committed frames from the cache and
// correlate outcomes. Either may be nil.
func NewTXWriter(parent context.Context, sp Port, c *cache.Cache, buf int, onSent func(string), onFailed func(string, error)) *TXWriter {
	w := &TXWriter{}

	send := func(id string) error {
		w.mu.Lock()
		w.lastAttempt = id
		w.mu.Unlock()
		fr, err := c.Get(id)
		if err != nil {
			return err
		}
		_, err = sp.Write(fr)
		return err
	}

	hooks := transport.Hooks[string]{
		OnBeforeSend: func() error {
			for w.locked.Load() {
				select {
				case <-parent.Done():
					return ErrWriterLocked
				case <-time.After(5 * time.Millisecond):
				}
			}
			w.pace()
			return nil
		},
		OnError: func(err error) {
			w.mu.Lock()
			id := w.lastAttempt
			w.mu.Unlock()
			if !errors.Is(err, ErrWriterLocked) {
				metrics.IncError(metrics.ErrBusWrite)
				logging.L().Error("bus_write_error", "id", id, "error", err)
			}
			if onFailed != nil {
				onFailed(id, err)
			}
		},
		OnAfter: func(id string) {
			w.lastTx.Store(time.Now().UnixNano())
			metrics.IncBusTx()
			logging.L().Debug("bus_out", "id", id)
			if onSent != nil {
				onSent(id)
			}
		},
		OnDrop: func() error {
			metrics.IncDrop()
			metrics.IncError(metrics.ErrBusOverflow)
			return ErrTxOverflow
		},
	}

	w.base = transport.NewAsyncTx(parent, buf, send, hooks)
	return w
}

// pace blocks until at least SendDelay has elapsed since the previous send.
func (w *TXWriter) pace() {
	last := w.lastTx.Load()
	if last == 0 {
		return
	}
	elapsed := time.Since(time.Unix(0, last))
	if elapsed < SendDelay {
		time.Sleep(SendDelay - elapsed)
	}
}

// Lock holds further sends at the lock gate (the bus is not alive).
func (w *TXWriter) Lock() { w.locked.Store(true) }

// Unlock allows sends to resume.
func (w *TXWriter) Unlock() { w.locked.Store(false) }

// Locked reports whether the writer currently holds sends.
func (w *TXWriter) Locked() bool { return w.locked.Load() }

// SendID queues a cached frame id for asynchronous write (drops with
// ErrTxOverflow if the buffer is full).
func (w *TXWriter) SendID(id string) error { return w.base.SendFrame(id) }

// Close stops the writer and waits for pending goroutine exit.
func (w *TXWriter) Close() { w.base.Close() }
