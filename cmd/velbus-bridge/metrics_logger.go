package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kstaniek/velbus-bridge/internal/metrics"
)

func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := metrics.Snap()
				l.Info("metrics_snapshot",
					"bus_rx", snap.BusRx,
					"bus_tx", snap.BusTx,
					"tcp_rx", snap.TCPRx,
					"tcp_tx", snap.TCPTx,
					"drops", snap.Drops,
					"rejects", snap.Rejects,
					"errors", snap.Errors,
					"clients", snap.Clients,
					"malformed", snap.Malformed,
					"reconnects", snap.Reconnects,
					"ntp_broadcasts", snap.NTPBroadcasts,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
