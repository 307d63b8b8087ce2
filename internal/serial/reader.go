package serial

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/kstaniek/velbus-bridge/internal/logging"
	"github.com/kstaniek/velbus-bridge/internal/metrics"
	"github.com/kstaniek/velbus-bridge/internal/protocol"
)

const readBufSize = 256

// Reader drains a Port through the packet parser and hands extracted
// frames to onFrame. It stops and calls onFault on any fatal I/O error
// (device removed, non-transient read failure); transient EOFs are
// ignored and the read loop continues.
type Reader struct {
	port    Port
	onFrame func(protocol.Frame)
	onFault func(error)
	log     *slog.Logger
}

// NewReader constructs a Reader over port. onFrame is invoked for every
// frame extracted by the parser; onFault is invoked at most once, when
// the read loop exits due to a fatal error.
func NewReader(port Port, onFrame func(protocol.Frame), onFault func(error)) *Reader {
	return &Reader{port: port, onFrame: onFrame, onFault: onFault, log: logging.L()}
}

// Run reads until ctx is cancelled or a fatal error occurs. It returns
// when the loop exits; callers typically invoke it in its own goroutine
// coordinated via wg.
func (r *Reader) Run(ctx context.Context, wg *sync.WaitGroup) {
	if wg != nil {
		defer wg.Done()
	}
	defer r.log.Info("bus_rx_end")

	parser := protocol.NewParser()
	buf := make([]byte, readBufSize)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := r.port.Read(buf)
		if n > 0 {
			for _, fr := range parser.Feed(buf[:n]) {
				metrics.IncBusRx()
				r.onFrame(fr)
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			var perr *os.PathError
			if errors.As(err, &perr) {
				r.fault(err)
				return
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				continue
			}
			if errors.Is(err, os.ErrClosed) {
				return
			}
			metrics.IncError(metrics.ErrBusRead)
			r.log.Warn("bus_read_error", "error", err)
			time.Sleep(50 * time.Millisecond)
		}
	}
}

func (r *Reader) fault(err error) {
	r.log.Error("bus_fault", "error", err)
	if r.onFault != nil {
		r.onFault(err)
	}
}
