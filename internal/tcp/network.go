package tcp

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kstaniek/velbus-bridge/internal/logging"
	"github.com/kstaniek/velbus-bridge/internal/metrics"
	"github.com/kstaniek/velbus-bridge/internal/protocol"
)

// Settings configures one bound listening endpoint.
type Settings struct {
	Address     string
	Relay       bool
	Auth        bool
	AuthKey     string
	AuthTimeout time.Duration
	TLS         bool
	CertFile    string
	KeyFile     string
	OutBufSize  int
}

const defaultOutBufSize = 256

// Network is a single bound listening endpoint fanning frames out to its
// connected Clients, mirroring the teacher's internal/hub.Hub broadcast
// shape but at the granularity of one listener.
type Network struct {
	settings Settings
	onPacket OnPacket

	listener net.Listener
	tlsConf  *tls.Config

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.RWMutex
	clients map[*Client]struct{}
}

// NewNetwork constructs a Network. onPacket is invoked for every frame
// received from any of its clients.
func NewNetwork(settings Settings, onPacket OnPacket) *Network {
	if settings.OutBufSize <= 0 {
		settings.OutBufSize = defaultOutBufSize
	}
	return &Network{
		settings: settings,
		onPacket: onPacket,
		clients:  make(map[*Client]struct{}),
	}
}

// Relay reports whether this network fans bus frames back out to clients.
func (n *Network) Relay() bool { return n.settings.Relay }

// IsActive reports whether the listener is currently accepting connections.
func (n *Network) IsActive() bool { return n.running.Load() }

// Start binds the listener and begins accepting connections in the
// background. It returns once the listener is bound (or binding failed).
func (n *Network) Start(ctx context.Context) error {
	if n.running.Load() {
		return nil
	}

	if n.settings.TLS {
		cert, err := tls.LoadX509KeyPair(n.settings.CertFile, n.settings.KeyFile)
		if err != nil {
			wrap := fmt.Errorf("%w: load cert: %v", ErrListen, err)
			metrics.IncError(mapErrToMetric(wrap))
			return wrap
		}
		n.tlsConf = &tls.Config{Certificates: []tls.Certificate{cert}}
	}

	ln, err := listen(ctx, n.settings.Address)
	if err != nil {
		wrap := fmt.Errorf("%w: %v", ErrListen, err)
		metrics.IncError(mapErrToMetric(wrap))
		return wrap
	}

	childCtx, cancel := context.WithCancel(ctx)
	n.listener = ln
	n.cancel = cancel
	n.running.Store(true)

	logging.L().Info("tcp_listen", "addr", ln.Addr().String(), "tls", n.settings.TLS, "relay", n.settings.Relay)

	n.wg.Add(1)
	go n.acceptLoop(childCtx)
	return nil
}

func (n *Network) acceptLoop(ctx context.Context) {
	defer n.wg.Done()
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			wrap := fmt.Errorf("%w: %v", ErrAccept, err)
			metrics.IncError(mapErrToMetric(wrap))
			logging.L().Warn("tcp_accept_error", "error", wrap)
			continue
		}
		n.wg.Add(1)
		go n.handleConn(ctx, conn)
	}
}

func (n *Network) handleConn(ctx context.Context, conn net.Conn) {
	defer n.wg.Done()

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
		_ = tcpConn.SetKeepAlive(true)
		_ = tcpConn.SetKeepAlivePeriod(30 * time.Second)
	}

	if n.tlsConf != nil {
		conn = tls.Server(conn, n.tlsConf)
	}

	if n.settings.Auth {
		if err := authorize(conn, n.settings.AuthKey, n.settings.AuthTimeout); err != nil {
			metrics.IncReject()
			metrics.IncError(mapErrToMetric(err))
			logging.L().Warn("client_auth_failed", "remote", conn.RemoteAddr().String(), "error", err)
			_ = conn.Close()
			return
		}
	}

	cl := newClient(conn, n.settings.OutBufSize, n.onPacket, n.remove)
	n.add(cl)
	logging.L().Info("client_connected", "remote", cl.Addr())
	cl.run(ctx)
	cl.wait()
}

func (n *Network) add(c *Client) {
	n.mu.Lock()
	n.clients[c] = struct{}{}
	cur := len(n.clients)
	n.mu.Unlock()
	metrics.SetClients(cur)
}

func (n *Network) remove(c *Client) {
	n.mu.Lock()
	delete(n.clients, c)
	cur := len(n.clients)
	n.mu.Unlock()
	metrics.SetClients(cur)
	logging.L().Info("client_disconnected", "remote", c.Addr())
}

func (n *Network) snapshot() []*Client {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*Client, 0, len(n.clients))
	for c := range n.clients {
		out = append(out, c)
	}
	return out
}

// Send dispatches fr to every connected client. If relay is disabled the
// frame is dropped. Per-client failures are isolated: Client.Send never
// blocks the other clients and errors surface only through that client's
// own goroutines.
func (n *Network) Send(fr protocol.Frame) {
	if !n.settings.Relay {
		return
	}
	for _, c := range n.snapshot() {
		c.Send(fr)
	}
}

// Stop closes the listener (interrupting the accept loop) and every
// client, then waits for all goroutines to exit. Idempotent.
func (n *Network) Stop() {
	if !n.running.Swap(false) {
		return
	}
	if n.cancel != nil {
		n.cancel()
	}
	if n.listener != nil {
		_ = n.listener.Close()
	}
	for _, c := range n.snapshot() {
		c.Close()
	}
	n.wg.Wait()
}
