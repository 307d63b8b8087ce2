package ntp

import (
	"time"

	"github.com/kstaniek/velbus-bridge/internal/protocol"
)

// timeFrame builds the "current time" frame: weekday (Monday=0), hour,
// minute.
func timeFrame(t time.Time) protocol.Frame {
	weekday := (int(t.Weekday()) + 6) % 7 // time.Sunday==0 -> Velbus Monday==0
	b := []byte{
		protocol.STX, 0xFB, 0x00, 0x04, 0xD8,
		byte(weekday), byte(t.Hour()), byte(t.Minute()),
	}
	return sealFrame(b)
}

// dateFrame builds the "current date" frame: day, month, year (big-endian
// 16-bit).
func dateFrame(t time.Time) protocol.Frame {
	year := t.Year()
	b := []byte{
		protocol.STX, 0xFB, 0x00, 0x05, 0xB7,
		byte(t.Day()), byte(t.Month()),
		byte(year >> 8), byte(year & 0xFF),
	}
	return sealFrame(b)
}

// dstFrame builds the fixed DST-state frame.
func dstFrame() protocol.Frame {
	b := []byte{protocol.STX, 0xFB, 0x00, 0x02, 0xAF, 0x00}
	return sealFrame(b)
}

// sealFrame appends the checksum over b and the trailing ETX.
func sealFrame(b []byte) protocol.Frame {
	cksum := protocol.Checksum(b)
	return protocol.Frame(append(append([]byte{}, b...), cksum, protocol.ETX))
}
