package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/kstaniek/velbus-bridge/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus counters
var (
	BusRxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bus_rx_frames_total",
		Help: "Total frames received from the field bus.",
	})
	BusTxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bus_tx_frames_total",
		Help: "Total frames written to the field bus.",
	})
	TCPRxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tcp_rx_frames_total",
		Help: "Total frames received from TCP clients.",
	})
	TCPTxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tcp_tx_frames_total",
		Help: "Total frames sent to TCP clients.",
	})
	BridgeDroppedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_dropped_frames_total",
		Help: "Total frames dropped by the bridge due to slow clients or a full writer queue.",
	})
	BridgeRejectedClients = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_rejected_clients_total",
		Help: "Total client connection attempts rejected (e.g., auth failure).",
	})
	BridgeActiveClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_active_clients",
		Help: "Current number of connected TCP clients across all networks.",
	})
	BridgeQueueDepthMax = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_queue_depth_max",
		Help: "Observed max queued frames among clients since last sample window.",
	})
	BridgeQueueDepthAvg = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_queue_depth_avg",
		Help: "Approximate average queued frames per client in last sample.",
	})
	BusAlive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bus_alive",
		Help: "1 when the bus status tracker considers the field bus alive (active and buffer-ready), 0 otherwise.",
	})
	BusReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bus_reconnects_total",
		Help: "Total times the serial transport re-entered the Connecting state after a fault.",
	})
	CacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cache_size",
		Help: "Current number of frames held in the packet cache.",
	})
	NTPBroadcasts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ntp_broadcasts_total",
		Help: "Total NTP-style time/date frames injected onto the bus.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})
	MalformedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "malformed_frames_total",
		Help: "Total byte spans discarded by the parser while resynchronizing on invalid framing.",
	})
	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality)
const (
	ErrTCPRead     = "tcp_read"
	ErrTCPWrite    = "tcp_write"
	ErrAuth        = "auth"
	ErrBusWrite    = "bus_write"
	ErrBusOverflow = "bus_tx_overflow"
	ErrBusRead     = "bus_read"
	ErrCacheMiss   = "cache_miss"
	ErrListenBind  = "listen_bind"
)

// StartHTTP serves Prometheus metrics at /metrics and readiness at /ready
// on addr, using a mux of its own, in a background goroutine.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for easy logging (avoid Prometheus scraping in-process)
var (
	localBusRx     uint64
	localBusTx     uint64
	localTCPRx     uint64
	localTCPTx     uint64
	localDrop      uint64
	localReject    uint64
	localErrors    uint64
	localClients   uint64
	localMalformed uint64
	localQDMax     uint64
	localQDAvg     uint64
	localReconn    uint64
	localNTP       uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	BusRx         uint64
	BusTx         uint64
	TCPRx         uint64
	TCPTx         uint64
	Drops         uint64
	Rejects       uint64
	Errors        uint64 // sum across error labels
	Clients       uint64
	Malformed     uint64
	QueueDepthMax uint64
	QueueDepthAvg uint64
	Reconnects    uint64
	NTPBroadcasts uint64
}

func Snap() Snapshot {
	return Snapshot{
		BusRx:         atomic.LoadUint64(&localBusRx),
		BusTx:         atomic.LoadUint64(&localBusTx),
		TCPRx:         atomic.LoadUint64(&localTCPRx),
		TCPTx:         atomic.LoadUint64(&localTCPTx),
		Drops:         atomic.LoadUint64(&localDrop),
		Rejects:       atomic.LoadUint64(&localReject),
		Errors:        atomic.LoadUint64(&localErrors),
		Clients:       atomic.LoadUint64(&localClients),
		Malformed:     atomic.LoadUint64(&localMalformed),
		QueueDepthMax: atomic.LoadUint64(&localQDMax),
		QueueDepthAvg: atomic.LoadUint64(&localQDAvg),
		Reconnects:    atomic.LoadUint64(&localReconn),
		NTPBroadcasts: atomic.LoadUint64(&localNTP),
	}
}

// Wrapper helpers to keep call sites simple.
func IncBusRx() {
	BusRxFrames.Inc()
	atomic.AddUint64(&localBusRx, 1)
}

func IncBusTx() {
	BusTxFrames.Inc()
	atomic.AddUint64(&localBusTx, 1)
}

func IncTCPRx() {
	TCPRxFrames.Inc()
	atomic.AddUint64(&localTCPRx, 1)
}

func AddTCPTx(n int) {
	TCPTxFrames.Add(float64(n))
	atomic.AddUint64(&localTCPTx, uint64(n))
}

func IncDrop() {
	BridgeDroppedFrames.Inc()
	atomic.AddUint64(&localDrop, 1)
}

func IncReject() {
	BridgeRejectedClients.Inc()
	atomic.AddUint64(&localReject, 1)
}

func SetClients(n int) {
	BridgeActiveClients.Set(float64(n))
	atomic.StoreUint64(&localClients, uint64(n))
}

func SetBusAlive(alive bool) {
	if alive {
		BusAlive.Set(1)
		return
	}
	BusAlive.Set(0)
}

func IncReconnect() {
	BusReconnects.Inc()
	atomic.AddUint64(&localReconn, 1)
}

func SetCacheSize(n int) {
	CacheSize.Set(float64(n))
}

func IncNTPBroadcast() {
	NTPBroadcasts.Inc()
	atomic.AddUint64(&localNTP, 1)
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

func IncMalformed() {
	MalformedFrames.Inc()
	atomic.AddUint64(&localMalformed, 1)
}

// SetQueueDepth records a snapshot of max and avg queue depth.
func SetQueueDepth(max, avg int) {
	BridgeQueueDepthMax.Set(float64(max))
	BridgeQueueDepthAvg.Set(float64(avg))
	atomic.StoreUint64(&localQDMax, uint64(max))
	atomic.StoreUint64(&localQDAvg, uint64(avg))
}

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	for _, lbl := range []string{
		ErrTCPRead, ErrTCPWrite, ErrAuth,
		ErrBusWrite, ErrBusOverflow, ErrBusRead,
		ErrCacheMiss, ErrListenBind,
	} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil {
		return true
	}
	return fn()
}

// Ready is a concise alias used at call sites.
func Ready() bool { return IsReady() }
