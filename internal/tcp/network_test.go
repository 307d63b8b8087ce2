package tcp

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/kstaniek/velbus-bridge/internal/protocol"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

func TestNetwork_RelayDisabledDropsSend(t *testing.T) {
	n := NewNetwork(Settings{Address: "127.0.0.1:0", Relay: false}, nil)
	ctx := testContext(t)
	if err := n.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer n.Stop()

	conn, err := net.Dial("tcp", n.listener.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	time.Sleep(50 * time.Millisecond) // let the accept loop register the client
	n.Send(frame(0x03))

	_ = conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	buf := make([]byte, 32)
	if _, err := conn.Read(buf); err == nil {
		t.Fatalf("expected no data with relay disabled")
	}
}

func TestNetwork_BroadcastsToAllClients(t *testing.T) {
	n := NewNetwork(Settings{Address: "127.0.0.1:0", Relay: true, OutBufSize: 8}, nil)
	ctx := testContext(t)
	if err := n.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer n.Stop()

	const numClients = 3
	conns := make([]net.Conn, numClients)
	for i := range conns {
		c, err := net.Dial("tcp", n.listener.Addr().String())
		if err != nil {
			t.Fatalf("dial %d: %v", i, err)
		}
		defer c.Close()
		conns[i] = c
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		n.mu.RLock()
		cur := len(n.clients)
		n.mu.RUnlock()
		if cur == numClients {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	fr := frame(0x07)
	n.Send(fr)

	var wg sync.WaitGroup
	for i, c := range conns {
		wg.Add(1)
		go func(i int, c net.Conn) {
			defer wg.Done()
			_ = c.SetReadDeadline(time.Now().Add(time.Second))
			buf := make([]byte, 32)
			n2, err := c.Read(buf)
			if err != nil {
				t.Errorf("client %d: read error: %v", i, err)
				return
			}
			if !byteEqual(buf[:n2], fr) {
				t.Errorf("client %d: unexpected bytes %x", i, buf[:n2])
			}
		}(i, c)
	}
	wg.Wait()
}

func TestNetwork_AuthRejectsMismatch(t *testing.T) {
	n := NewNetwork(Settings{
		Address:     "127.0.0.1:0",
		Relay:       true,
		Auth:        true,
		AuthKey:     "velbus",
		AuthTimeout: time.Second,
	}, func(*Client, protocol.Frame) {})
	ctx := testContext(t)
	if err := n.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer n.Stop()

	conn, err := net.Dial("tcp", n.listener.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("other\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 8)
	if _, err := conn.Read(buf); err == nil {
		t.Fatalf("expected connection to be closed after failed auth")
	}

	n.mu.RLock()
	cur := len(n.clients)
	n.mu.RUnlock()
	if cur != 0 {
		t.Fatalf("expected rejected client to never be registered, got %d clients", cur)
	}
}
