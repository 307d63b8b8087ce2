package tcp

import (
	"errors"

	"github.com/kstaniek/velbus-bridge/internal/metrics"
)

// Sentinel errors used for wrapping so callers can classify via errors.Is.
var (
	ErrListen     = errors.New("listen")
	ErrAccept     = errors.New("accept")
	ErrAuthFailed = errors.New("auth")
	ErrConnRead   = errors.New("conn_read")
	ErrConnWrite  = errors.New("conn_write")
)

// mapErrToMetric maps wrapped sentinel errors to metrics labels.
func mapErrToMetric(err error) string {
	switch {
	case errors.Is(err, ErrConnRead):
		return metrics.ErrTCPRead
	case errors.Is(err, ErrConnWrite):
		return metrics.ErrTCPWrite
	case errors.Is(err, ErrAuthFailed):
		return metrics.ErrAuth
	case errors.Is(err, ErrAccept), errors.Is(err, ErrListen):
		return metrics.ErrListenBind
	default:
		return "other"
	}
}
