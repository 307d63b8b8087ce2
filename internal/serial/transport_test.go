package serial

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/kstaniek/velbus-bridge/internal/busstatus"
	"github.com/kstaniek/velbus-bridge/internal/cache"
	"github.com/kstaniek/velbus-bridge/internal/protocol"
)

// fakePort is an in-memory Port over a pipe, for exercising Transport
// without real hardware. Like a port opened with a read timeout, each
// Read returns io.EOF after a short wait with no data, so the reader can
// observe cancellation.
type fakePort struct {
	r      net.Conn
	w      net.Conn
	mu     sync.Mutex
	closed bool
}

func newFakePort() *fakePort {
	r, w := net.Pipe()
	return &fakePort{r: r, w: w}
}

func (p *fakePort) Read(b []byte) (int, error) {
	_ = p.r.SetReadDeadline(time.Now().Add(10 * time.Millisecond))
	n, err := p.r.Read(b)
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return n, io.EOF
	}
	return n, err
}
func (p *fakePort) Write(b []byte) (int, error) { return len(b), nil }
func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	_ = p.r.Close()
	_ = p.w.Close()
	return nil
}

func withFakeOpen(t *testing.T, port Port) {
	t.Helper()
	prev := openFn
	openFn = func(name string, readTimeout time.Duration) (Port, error) { return port, nil }
	t.Cleanup(func() { openFn = prev })
}

func TestTransport_EnsureConnectsAndSends(t *testing.T) {
	fp := newFakePort()
	withFakeOpen(t, fp)

	var received []protocol.Frame
	var mu sync.Mutex
	c := cache.New()
	tr := NewTransport("dummy", false, 10*time.Millisecond, 4, busstatus.NewTracker(), c, func(fr protocol.Frame) {
		mu.Lock()
		received = append(received, fr.Clone())
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tr.Ensure(ctx)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && !tr.IsActive() {
		time.Sleep(5 * time.Millisecond)
	}
	if !tr.IsActive() {
		t.Fatalf("expected transport to become active")
	}

	id := c.Put(protocol.Frame{protocol.STX, protocol.PriorityHigh, 0, 0, 0, protocol.ETX})
	if err := tr.Send(id); err != nil {
		t.Fatalf("unexpected send error: %v", err)
	}

	tr.Stop()
}

func TestTransport_SendBeforeConnectFails(t *testing.T) {
	tr := NewTransport("dummy", false, 10*time.Millisecond, 4, busstatus.NewTracker(), cache.New(), func(protocol.Frame) {})
	if err := tr.Send("missing"); err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestTransport_EnsureIsIdempotentWhileConnecting(t *testing.T) {
	tr := NewTransport("", false, 10*time.Millisecond, 4, busstatus.NewTracker(), cache.New(), func(protocol.Frame) {})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// No device path and autodiscovery off: SelectPort fails with ErrNoPort,
	// so the reconnect loop should keep retrying rather than connecting.
	tr.Ensure(ctx)
	tr.Ensure(ctx) // second call must not start a parallel loop
	time.Sleep(20 * time.Millisecond)
	if tr.IsActive() {
		t.Fatalf("transport should not be active without a port")
	}
	tr.Stop()
}
