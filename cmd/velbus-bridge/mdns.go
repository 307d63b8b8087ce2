package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/kstaniek/velbus-bridge/internal/config"
)

// mdnsServiceType is the advertised Bonjour/Avahi service type.
const mdnsServiceType = "_velbus-bridge._tcp"

// startMDNS registers the bridge via mDNS and returns a cleanup function.
// It is a no-op when disabled.
func startMDNS(ctx context.Context, cfg *config.Config, enabled bool, name string, port int) (func(), error) {
	if !enabled {
		return func() {}, nil
	}
	instance := name
	if instance == "" {
		host, _ := os.Hostname()
		instance = fmt.Sprintf("velbus-bridge-%s", host)
	}
	meta := []string{
		"serial=" + cfg.Serial.Port,
		"version=" + version,
		"commit=" + commit,
	}
	svc, err := zeroconf.Register(instance, mdnsServiceType, "local.", port, meta, nil)
	if err != nil {
		return nil, fmt.Errorf("mdns register: %w", err)
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		svc.Shutdown()
	}()
	return func() { close(done); svc.Shutdown(); time.Sleep(50 * time.Millisecond) }, nil
}
