// Package ntp periodically broadcasts time/date frames onto the field
// bus, the way the original NTP thread does on a minute boundary.
package ntp

import (
	"context"
	"time"

	"github.com/kstaniek/velbus-bridge/internal/logging"
	"github.com/kstaniek/velbus-bridge/internal/metrics"
	"github.com/kstaniek/velbus-bridge/internal/protocol"
)

// Sender is the Bridge's internal send-injection entry point.
type Sender func(protocol.Frame)

// Broadcaster emits time/date/DST frames on the bus on a schedule.
type Broadcaster struct {
	synctime string // "hh:mm" or empty
	loc      *time.Location
	send     Sender

	stopCh chan struct{}
	doneCh chan struct{}
}

// New constructs a Broadcaster. synctime, if non-empty, must be "hh:mm".
// loc defaults to time.Local when nil.
func New(synctime string, loc *time.Location, send Sender) *Broadcaster {
	if loc == nil {
		loc = time.Local
	}
	return &Broadcaster{
		synctime: synctime,
		loc:      loc,
		send:     send,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the broadcast loop in a background goroutine.
func (b *Broadcaster) Start(ctx context.Context) {
	go b.run(ctx)
}

// Stop signals the loop to exit and waits for it to do so.
func (b *Broadcaster) Stop() {
	select {
	case <-b.stopCh:
	default:
		close(b.stopCh)
	}
	<-b.doneCh
}

func (b *Broadcaster) run(ctx context.Context) {
	defer close(b.doneCh)
	logging.L().Info("ntp_started")
	for {
		if !b.waitForMinuteBoundary(ctx) {
			return
		}
		b.broadcast()

		next := b.nextWakeUp()
		sleepUntil := next.Add(-time.Minute)
		d := time.Until(sleepUntil)
		if d < 0 {
			d = 0
		}
		logging.L().Info("ntp_next_broadcast", "at", next)
		select {
		case <-time.After(d):
		case <-b.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// waitForMinuteBoundary blocks until the wall clock reaches the next
// minute boundary, returning false if stopped first.
func (b *Broadcaster) waitForMinuteBoundary(ctx context.Context) bool {
	now := time.Now()
	until := now.Truncate(time.Minute).Add(time.Minute)
	t := time.NewTimer(time.Until(until))
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-b.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}

func (b *Broadcaster) broadcast() {
	now := time.Now().In(b.loc)
	frames := []protocol.Frame{
		timeFrame(now),
		dateFrame(now),
		dstFrame(),
	}
	logging.L().Info("ntp_broadcast", "time", now)
	for _, fr := range frames {
		b.send(fr)
		metrics.IncNTPBroadcast()
	}
}

// nextWakeUp computes the minimum of the next configured sync-time and
// the next DST transition for loc, defaulting to +1h when neither is
// available (spec.md 4.9 / 9).
func (b *Broadcaster) nextWakeUp() time.Time {
	now := time.Now().In(b.loc)

	var candidates []time.Time

	if b.synctime != "" {
		if hh, mm, ok := parseHHMM(b.synctime); ok {
			sync := time.Date(now.Year(), now.Month(), now.Day(), hh, mm, 0, 0, b.loc)
			if !sync.After(now) {
				sync = sync.AddDate(0, 0, 1)
			}
			candidates = append(candidates, sync)
		}
	}

	if dst, ok := nextDSTTransition(b.loc, now); ok {
		candidates = append(candidates, dst)
	}

	if len(candidates) == 0 {
		return now.Add(time.Hour)
	}
	min := candidates[0]
	for _, c := range candidates[1:] {
		if c.Before(min) {
			min = c
		}
	}
	return min
}

func parseHHMM(s string) (hh, mm int, ok bool) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, false
	}
	return t.Hour(), t.Minute(), true
}

// nextDSTTransition finds the next UTC-offset change for loc after from,
// by scanning hour-by-hour up to one year ahead and refining to the
// minute. Returns ok=false if loc carries no transition within that
// window (e.g. a fixed-offset zone), matching spec.md 9's stdlib-only
// fallback.
func nextDSTTransition(loc *time.Location, from time.Time) (time.Time, bool) {
	const maxHours = 366 * 24
	from = from.In(loc)
	_, baseOffset := from.Zone()

	cursor := from
	for i := 0; i < maxHours; i++ {
		cursor = cursor.Add(time.Hour)
		_, off := cursor.Zone()
		if off != baseOffset {
			return refineDSTTransition(from, cursor, baseOffset), true
		}
	}
	return time.Time{}, false
}

// refineDSTTransition binary-searches between lo (still at baseOffset)
// and hi (already transitioned) down to minute granularity.
func refineDSTTransition(lo, hi time.Time, baseOffset int) time.Time {
	for hi.Sub(lo) > time.Minute {
		mid := lo.Add(hi.Sub(lo) / 2)
		_, off := mid.Zone()
		if off == baseOffset {
			lo = mid
		} else {
			hi = mid
		}
	}
	return hi.Truncate(time.Minute)
}
