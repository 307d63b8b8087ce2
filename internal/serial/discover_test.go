package serial

import "testing"

func TestAllowed(t *testing.T) {
	if !allowed("10CF:0B1B") {
		t.Fatalf("expected known VID:PID to be allowed")
	}
	if allowed("FFFF:FFFF") {
		t.Fatalf("expected unknown VID:PID to be rejected")
	}
}

func TestSelectPort_ConfiguredFallback(t *testing.T) {
	got, err := SelectPort("/dev/ttyUSB0", false)
	if err != nil || got != "/dev/ttyUSB0" {
		t.Fatalf("expected configured path, got %q, err=%v", got, err)
	}
}

func TestSelectPort_NoneAvailable(t *testing.T) {
	_, err := SelectPort("", false)
	if err != ErrNoPort {
		t.Fatalf("expected ErrNoPort, got %v", err)
	}
}
