// Package transport provides a reusable asynchronous transmitter that
// funnels writes through a single goroutine, giving producers a
// non-blocking enqueue with an explicit overflow hook. The serial
// writer builds on it with T = string (frame identifiers resolved
// against the packet cache at send time).
package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// AsyncTx funnels values of type T through a single goroutine (fan-in).
// It provides non-blocking enqueue semantics: if the internal buffer is
// full, SendFrame invokes the configured OnDrop hook and returns its
// error (usually an overflow sentinel), so producers never block behind
// a slow or wedged transport.
//
// Life-cycle:
//
//	a := NewAsyncTx(ctx, buf, sendFn, hooks)
//	a.SendFrame(item)
//	a.Close()
//
// After Close returns no more items will be processed. Callers should
// not send after Close; doing so returns ErrAsyncTxClosed.
type AsyncTx[T any] struct {
	mu     sync.Mutex
	ch     chan T
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	send   func(T) error
	hooks  Hooks[T]
	closed atomic.Bool
}

// Hooks customize AsyncTx behavior without duplicating the goroutine and
// buffer plumbing per backend.
type Hooks[T any] struct {
	// OnBeforeSend runs immediately before send, while still able to
	// block; used by the serial writer to gate on the bus lock and pace
	// writes. If it returns an error, send is skipped and OnError fires.
	OnBeforeSend func() error
	// OnError is called when send (or OnBeforeSend) returns a non-nil error.
	OnError func(error)
	// OnAfter is called only after a successful send.
	OnAfter func(T)
	// OnDrop is called when the buffer is full; its returned error is
	// returned from SendFrame. If nil, the overflow is silent.
	OnDrop func() error
}

// ErrAsyncTxClosed is returned by SendFrame once Close has been called.
var ErrAsyncTxClosed = errors.New("async tx closed")

// NewAsyncTx constructs an AsyncTx with a buffered channel of size buf.
func NewAsyncTx[T any](parent context.Context, buf int, send func(T) error, hooks Hooks[T]) *AsyncTx[T] {
	ctx, cancel := context.WithCancel(parent)
	a := &AsyncTx[T]{
		ch:     make(chan T, buf),
		ctx:    ctx,
		cancel: cancel,
		send:   send,
		hooks:  hooks,
	}
	a.wg.Add(1)
	go a.loop()
	return a
}

func (a *AsyncTx[T]) loop() {
	defer a.wg.Done()
	for {
		select {
		case item, ok := <-a.ch:
			if !ok {
				return
			}
			if a.hooks.OnBeforeSend != nil {
				if err := a.hooks.OnBeforeSend(); err != nil {
					if a.hooks.OnError != nil {
						a.hooks.OnError(err)
					}
					continue
				}
			}
			if err := a.send(item); err != nil {
				if a.hooks.OnError != nil {
					a.hooks.OnError(err)
				}
				continue
			}
			if a.hooks.OnAfter != nil {
				a.hooks.OnAfter(item)
			}
		case <-a.ctx.Done():
			return
		}
	}
}

// SendFrame queues an item for asynchronous transmission or returns the
// drop error if the buffer is full.
func (a *AsyncTx[T]) SendFrame(item T) error {
	if a.closed.Load() {
		return ErrAsyncTxClosed
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed.Load() {
		return ErrAsyncTxClosed
	}
	select {
	case a.ch <- item:
		return nil
	default:
		if a.hooks.OnDrop != nil {
			return a.hooks.OnDrop()
		}
		return nil
	}
}

// Len reports the number of items currently queued.
func (a *AsyncTx[T]) Len() int { return len(a.ch) }

// Close stops the worker and waits for pending operations to finish.
func (a *AsyncTx[T]) Close() {
	if a.closed.Swap(true) {
		return
	}
	a.cancel()
	a.mu.Lock()
	close(a.ch)
	a.mu.Unlock()
	a.wg.Wait()
}
