package tcp

import (
	"context"

	"github.com/kstaniek/velbus-bridge/internal/protocol"
)

// NetworkManager composes N Networks behind one API, forwarding
// Start/Stop/Send to all of them. There is no cross-network ordering
// guarantee, matching spec.md 4.7.
type NetworkManager struct {
	networks []*Network
}

// NewNetworkManager wraps the given networks.
func NewNetworkManager(networks []*Network) *NetworkManager {
	return &NetworkManager{networks: networks}
}

// Start starts every network, returning the first error encountered (after
// attempting to start all of them).
func (m *NetworkManager) Start(ctx context.Context) error {
	var firstErr error
	for _, n := range m.networks {
		if err := n.Start(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Stop stops every network.
func (m *NetworkManager) Stop() {
	for _, n := range m.networks {
		n.Stop()
	}
}

// Send forwards fr to every network's Send.
func (m *NetworkManager) Send(fr protocol.Frame) {
	for _, n := range m.networks {
		n.Send(fr)
	}
}
