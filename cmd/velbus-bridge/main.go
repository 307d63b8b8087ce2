package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kstaniek/velbus-bridge/internal/bridge"
	"github.com/kstaniek/velbus-bridge/internal/config"
	"github.com/kstaniek/velbus-bridge/internal/metrics"
)

type flags struct {
	settingsPath    string
	logFormat       string
	logLevel        string
	metricsAddr     string
	logMetricsEvery time.Duration
	mdnsEnable      bool
	mdnsName        string
	showVersion     bool
}

func parseFlags() *flags {
	f := &flags{}
	flag.StringVar(&f.settingsPath, "settings", "", "Path to the JSON settings file (empty uses built-in defaults)")
	flag.StringVar(&f.logFormat, "log-format", "text", "Log format: text|json")
	flag.StringVar(&f.logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	flag.StringVar(&f.metricsAddr, "metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	flag.DurationVar(&f.logMetricsEvery, "log-metrics-interval", 0, "If >0, periodically log metrics counters")
	flag.BoolVar(&f.mdnsEnable, "mdns-enable", false, "Enable mDNS/Avahi advertisement")
	flag.StringVar(&f.mdnsName, "mdns-name", "", "mDNS instance name (default velbus-bridge-<hostname>)")
	flag.BoolVar(&f.showVersion, "version", false, "Print version and exit")
	flag.Parse()
	return f
}

func main() {
	f := parseFlags()
	if f.showVersion {
		fmt.Printf("velbus-bridge %s (commit %s, built %s)\n", version, commit, date)
		return
	}

	l := setupLogger(f.logFormat, f.logLevel)

	cfg, err := config.Load(f.settingsPath)
	if err != nil {
		l.Error("config_error", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	startMetricsLogger(ctx, f.logMetricsEvery, l, &wg)

	br := bridge.New(cfg)
	if err := br.Start(ctx); err != nil {
		l.Error("bridge_start_error", "error", err)
		os.Exit(1)
	}

	if f.mdnsEnable {
		port := 0
		if len(cfg.Connections) > 0 {
			port = cfg.Connections[0].Port
		}
		cleanupMDNS, err := startMDNS(ctx, cfg, f.mdnsEnable, f.mdnsName, port)
		if err != nil {
			l.Warn("mdns_start_failed", "error", err)
		} else {
			l.Info("mdns_started", "service", mdnsServiceType, "name", f.mdnsName, "port", port)
			defer cleanupMDNS()
		}
	}

	if f.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srvHTTP := metrics.StartHTTP(f.metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigCh
	l.Info("shutdown_signal", "signal", s.String())
	cancel()
	br.Stop()
	wg.Wait()
}
