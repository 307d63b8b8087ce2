//go:build !linux

package tcp

import (
	"context"
	"net"
	"time"
)

// listen has no IP_FREEBIND equivalent outside Linux, so it retries the
// bind every 5s until the address becomes available (spec.md 4.6).
func listen(ctx context.Context, addr string) (net.Listener, error) {
	var lc net.ListenConfig
	for {
		ln, err := lc.Listen(ctx, "tcp", addr)
		if err == nil {
			return ln, nil
		}
		select {
		case <-time.After(5 * time.Second):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
