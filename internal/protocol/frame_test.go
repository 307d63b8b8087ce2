package protocol

import "testing"

func TestChecksum_KnownVector(t *testing.T) {
	// STX, priority=HIGH, address=0x00, len=1, body=0x09 -> bus-off frame.
	header := []byte{STX, PriorityHigh, 0x00, 0x01, 0x09}
	got := Checksum(header[:4+1])
	want := byte(0x100 - int(sumBytes(header)))
	if got != want {
		t.Fatalf("checksum = 0x%02X, want 0x%02X", got, want)
	}
}

func sumBytes(b []byte) int {
	var s int
	for _, c := range b {
		s += int(c)
	}
	return s & 0xFF
}

func buildFrame(priority, address byte, body []byte) Frame {
	n := len(body)
	fr := make(Frame, 6+n)
	fr[0] = STX
	fr[1] = priority
	fr[2] = address
	fr[3] = byte(n)
	copy(fr[4:4+n], body)
	fr[4+n] = Checksum(fr[0 : 4+n])
	fr[5+n] = ETX
	return fr
}

func TestFrame_Accessors(t *testing.T) {
	fr := buildFrame(PriorityHigh, 0x01, []byte{0x0A})
	if fr.Priority() != PriorityHigh {
		t.Fatalf("priority mismatch")
	}
	if fr.Address() != 0x01 {
		t.Fatalf("address mismatch")
	}
	if fr.BodyLen() != 1 {
		t.Fatalf("body len mismatch")
	}
	if !fr.HasCommand() {
		t.Fatalf("expected HasCommand true")
	}
	if fr.Body()[0] != 0x0A {
		t.Fatalf("body mismatch")
	}
}

func TestFrame_HasCommand_EmptyBody(t *testing.T) {
	fr := buildFrame(0xFB, 0x00, nil)
	if fr.HasCommand() {
		t.Fatalf("expected HasCommand false for empty body")
	}
}
