package tcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/kstaniek/velbus-bridge/internal/logging"
	"github.com/kstaniek/velbus-bridge/internal/metrics"
	"github.com/kstaniek/velbus-bridge/internal/protocol"
)

const clientReadBufSize = 1024

// OnPacket is invoked (from the client's reader goroutine) for every frame
// received from this client.
type OnPacket func(*Client, protocol.Frame)

// OnClose is invoked once, when the client connection is torn down.
type OnClose func(*Client)

// Client owns one accepted TCP connection: authorization, a per-connection
// frame parser, and per-client echo suppression (spec.md 4.5 / 9 strategy
// (a)). Reads and writes run on separate goroutines, matching the
// teacher's reader.go/writer.go split, scoped here to a single client
// instead of a shared hub.
type Client struct {
	conn net.Conn
	addr string

	out    chan protocol.Frame
	closed chan struct{}
	once   sync.Once

	mu     sync.Mutex
	recent [][]byte

	onPacket OnPacket
	onClose  OnClose

	log *slog.Logger
	wg  sync.WaitGroup
}

func newClient(conn net.Conn, outBuf int, onPacket OnPacket, onClose OnClose) *Client {
	addr := conn.RemoteAddr().String()
	return &Client{
		conn:     conn,
		addr:     addr,
		out:      make(chan protocol.Frame, outBuf),
		closed:   make(chan struct{}),
		onPacket: onPacket,
		onClose:  onClose,
		log:      logging.L().With("remote", addr),
	}
}

// Addr returns the remote address of the connection.
func (c *Client) Addr() string { return c.addr }

// run starts the reader and writer goroutines. It does not block.
func (c *Client) run(ctx context.Context) {
	c.wg.Add(2)
	go c.readLoop(ctx)
	go c.writeLoop(ctx)
}

func (c *Client) readLoop(ctx context.Context) {
	defer c.wg.Done()
	parser := protocol.NewParser()
	buf := make([]byte, clientReadBufSize)
	for {
		select {
		case <-c.closed:
			return
		case <-ctx.Done():
			return
		default:
		}

		n, err := c.conn.Read(buf)
		if n > 0 {
			for _, fr := range parser.Feed(buf[:n]) {
				metrics.IncTCPRx()
				c.markSent(fr)
				if c.onPacket != nil {
					c.onPacket(c, fr)
				}
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				wrap := fmt.Errorf("%w: %v", ErrConnRead, err)
				metrics.IncError(mapErrToMetric(wrap))
				c.log.Debug("client_read_error", "error", err)
			}
			c.Close()
			return
		}
	}
}

func (c *Client) writeLoop(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case fr := <-c.out:
			if c.suppress(fr) {
				continue
			}
			if _, err := c.conn.Write(fr); err != nil {
				wrap := fmt.Errorf("%w: %v", ErrConnWrite, err)
				metrics.IncError(mapErrToMetric(wrap))
				c.log.Debug("client_write_error", "error", err)
				c.Close()
				return
			}
			metrics.AddTCPTx(1)
		case <-c.closed:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Send enqueues fr for transmission to this client, non-blocking: a full
// outbound buffer drops the frame (a slow client must not stall the
// bridge's fan-out).
func (c *Client) Send(fr protocol.Frame) {
	select {
	case c.out <- fr:
	default:
		metrics.IncDrop()
	}
}

// markSent records fr's bytes as recently sent by this client, so a
// later Send of the identical bytes (the bus echoing the client's own
// write back) is suppressed exactly once.
func (c *Client) markSent(fr protocol.Frame) {
	c.mu.Lock()
	c.recent = append(c.recent, fr.Clone())
	c.mu.Unlock()
}

// suppress reports whether fr matches an entry in the recently-sent list,
// removing that entry if so (spec.md 4.5: "remove that member and do not
// transmit").
func (c *Client) suppress(fr protocol.Frame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, r := range c.recent {
		if byteEqual(r, fr) {
			c.recent = append(c.recent[:i], c.recent[i+1:]...)
			return true
		}
	}
	return false
}

func byteEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Close tears down the connection and fires onClose exactly once.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.closed)
		_ = c.conn.Close()
		c.mu.Lock()
		c.recent = nil
		c.mu.Unlock()
		if c.onClose != nil {
			c.onClose(c)
		}
	})
}

// wait blocks until both goroutines for this client have exited.
func (c *Client) wait() { c.wg.Wait() }
