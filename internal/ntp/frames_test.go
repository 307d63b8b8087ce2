package ntp

import (
	"testing"
	"time"
)

func TestTimeFrame(t *testing.T) {
	dt := time.Date(2024, time.June, 15, 10, 30, 0, 0, time.UTC) // Saturday
	fr := timeFrame(dt)
	want := []byte{0x0F, 0xFB, 0x00, 0x04, 0xD8, 0x05, 0x0A, 0x1E}
	for i, b := range want {
		if fr[i] != b {
			t.Fatalf("byte %d: got 0x%02X want 0x%02X", i, fr[i], b)
		}
	}
	if fr[len(fr)-1] != 0x04 {
		t.Fatalf("expected trailing ETX, got 0x%02X", fr[len(fr)-1])
	}
}

func TestDateFrame(t *testing.T) {
	dt := time.Date(2024, time.June, 15, 10, 30, 0, 0, time.UTC)
	fr := dateFrame(dt)
	want := []byte{0x0F, 0xFB, 0x00, 0x05, 0xB7, 0x0F, 0x06, 0x07, 0xE8}
	for i, b := range want {
		if fr[i] != b {
			t.Fatalf("byte %d: got 0x%02X want 0x%02X", i, fr[i], b)
		}
	}
}

func TestDSTFrame(t *testing.T) {
	fr := dstFrame()
	want := []byte{0x0F, 0xFB, 0x00, 0x02, 0xAF, 0x00}
	for i, b := range want {
		if fr[i] != b {
			t.Fatalf("byte %d: got 0x%02X want 0x%02X", i, fr[i], b)
		}
	}
}

func TestParseHHMM(t *testing.T) {
	hh, mm, ok := parseHHMM("10:29")
	if !ok || hh != 10 || mm != 29 {
		t.Fatalf("unexpected: hh=%d mm=%d ok=%v", hh, mm, ok)
	}
	if _, _, ok := parseHHMM("garbage"); ok {
		t.Fatalf("expected parse failure")
	}
}

func TestNextDSTTransitionNoneForFixedZone(t *testing.T) {
	if _, ok := nextDSTTransition(time.UTC, time.Now()); ok {
		t.Fatalf("UTC has no transitions")
	}
}
