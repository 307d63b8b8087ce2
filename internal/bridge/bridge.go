// Package bridge wires the serial transport and TCP networks together:
// the routing hub described in spec.md 4.8.
package bridge

import (
	"context"
	"errors"

	"github.com/kstaniek/velbus-bridge/internal/busstatus"
	"github.com/kstaniek/velbus-bridge/internal/cache"
	"github.com/kstaniek/velbus-bridge/internal/config"
	"github.com/kstaniek/velbus-bridge/internal/logging"
	"github.com/kstaniek/velbus-bridge/internal/metrics"
	"github.com/kstaniek/velbus-bridge/internal/ntp"
	"github.com/kstaniek/velbus-bridge/internal/protocol"
	"github.com/kstaniek/velbus-bridge/internal/serial"
	"github.com/kstaniek/velbus-bridge/internal/tcp"
)

// DefaultWriterQueueSize is the bound on the serial writer's queue
// (spec.md 8, "Bounded queue" property).
const DefaultWriterQueueSize = 292

// Bridge is the routing hub: it owns the serial transport, the TCP
// network manager, the shared packet cache and the optional NTP
// broadcaster, and wires bus <-> TCP traffic between them.
type Bridge struct {
	cache     *cache.Cache
	transport *serial.Transport
	networks  *tcp.NetworkManager
	ntpBcast  *ntp.Broadcaster
}

// New constructs a Bridge from a parsed configuration.
func New(cfg *config.Config) *Bridge {
	c := cache.New()
	tracker := busstatus.NewTracker()

	b := &Bridge{cache: c}

	b.transport = serial.NewTransport(
		cfg.Serial.Port,
		cfg.Serial.Autodiscover,
		serial.DefaultReadTimeout,
		DefaultWriterQueueSize,
		tracker,
		c,
		b.onBusFrame,
	)
	b.transport.OnSent = b.onBusSent
	b.transport.OnSendFailed = b.onBusSendFailed

	networks := make([]*tcp.Network, 0, len(cfg.Connections))
	for _, conn := range cfg.Connections {
		settings := tcp.Settings{
			Address:     hostPort(conn.Host, conn.Port),
			Relay:       conn.Relay,
			Auth:        conn.Auth,
			AuthKey:     conn.AuthKey,
			AuthTimeout: 0,
			TLS:         conn.SSL,
			CertFile:    conn.Cert,
			KeyFile:     conn.PK,
		}
		networks = append(networks, tcp.NewNetwork(settings, b.onTCPFrame))
	}
	b.networks = tcp.NewNetworkManager(networks)

	if cfg.NTP.Enabled {
		b.ntpBcast = ntp.New(cfg.NTP.Synctime, nil, b.sendInternal)
	}

	return b
}

func hostPort(host string, port int) string {
	if host == "" {
		host = "0.0.0.0"
	}
	return host + ":" + itoa(port)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Start ensures the serial transport, starts the network manager and the
// NTP broadcaster if enabled.
func (b *Bridge) Start(ctx context.Context) error {
	b.transport.Ensure(ctx)
	if err := b.networks.Start(ctx); err != nil {
		return err
	}
	if b.ntpBcast != nil {
		b.ntpBcast.Start(ctx)
	}
	metrics.SetReadinessFunc(b.transport.IsActive)
	logging.L().Info("bridge_started")
	return nil
}

// Stop stops NTP, the serial transport, then the network manager, in
// that order (spec.md 4.8).
func (b *Bridge) Stop() {
	if b.ntpBcast != nil {
		b.ntpBcast.Stop()
	}
	b.transport.Stop()
	b.networks.Stop()
	logging.L().Info("bridge_stopped")
}

// onBusFrame handles a frame received from the serial port. The bus
// status tracker and writer lock/unlock transition were already applied
// by the Transport before this callback runs; the Bridge's only job is
// to fan the frame out to every TCP client. Echo suppression is handled
// entirely by each Client's own recently-sent list (spec.md 4.5, 9).
func (b *Bridge) onBusFrame(fr protocol.Frame) {
	b.networks.Send(fr)
}

// onTCPFrame handles a frame received from a TCP client: register it in
// the cache and, if the bus is connected, enqueue its id on the writer.
func (b *Bridge) onTCPFrame(_ *tcp.Client, fr protocol.Frame) {
	if !b.transport.IsActive() {
		return
	}
	id := b.cache.Put(fr)
	metrics.SetCacheSize(b.cache.Len())
	if err := b.transport.Send(id); err != nil {
		b.cache.Delete(id)
		metrics.SetCacheSize(b.cache.Len())
		if !errors.Is(err, serial.ErrTxOverflow) {
			logging.L().Warn("bus_enqueue_failed", "error", err)
		}
	}
}

// sendInternal is the Bridge's send-injection entry point for internally
// generated frames (the NTP broadcaster).
func (b *Bridge) sendInternal(fr protocol.Frame) {
	id := b.cache.Put(fr)
	metrics.SetCacheSize(b.cache.Len())
	if err := b.transport.Send(id); err != nil {
		b.cache.Delete(id)
		metrics.SetCacheSize(b.cache.Len())
		logging.L().Warn("ntp_enqueue_failed", "error", err)
	}
}

// onBusSent fires once the writer has actually committed the frame
// identified by id to the serial port: it fans the frame back out to all
// Networks (the clients see their own write complete, rather than a
// speculative echo) and retires the cache entry.
func (b *Bridge) onBusSent(id string) {
	fr, err := b.cache.Get(id)
	if err != nil {
		metrics.IncError(metrics.ErrCacheMiss)
		return
	}
	b.networks.Send(fr)
	b.cache.Delete(id)
	metrics.SetCacheSize(b.cache.Len())
}

// onBusSendFailed fires when a queued id could not be written: an unknown
// id, an I/O error, or ErrWriterLocked when the writer shut down while
// the frame waited at its lock gate (while the writer is merely locked,
// frames stay queued and no failure is reported). The cache entry is
// deleted for every failure except ErrWriterLocked.
func (b *Bridge) onBusSendFailed(id string, err error) {
	if errors.Is(err, serial.ErrWriterLocked) {
		return
	}
	b.cache.Delete(id)
	metrics.SetCacheSize(b.cache.Len())
}
