package protocol

import (
	"bytes"
	"testing"
)

func TestParser_RoundTrip_Chunked(t *testing.T) {
	want := []Frame{
		buildFrame(0xFB, 0x00, []byte{0x01, 0x02, 0x03}),
		buildFrame(0xF8, 0x01, []byte{0x09}),
		buildFrame(0xFA, 0x02, nil),
		buildFrame(0xF9, 0x03, []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}),
	}

	var stream []byte
	for _, fr := range want {
		stream = append(stream, fr...)
	}

	p := NewParser()
	var got []Frame
	chunkSizes := []int{1, 2, 3, 4, 5, 7, 11}
	cs := 0
	for pos := 0; pos < len(stream); {
		n := chunkSizes[cs%len(chunkSizes)]
		cs++
		if pos+n > len(stream) {
			n = len(stream) - pos
		}
		got = append(got, p.Feed(stream[pos:pos+n])...)
		pos += n
	}

	if len(got) != len(want) {
		t.Fatalf("decoded %d frames, want %d", len(got), len(want))
	}
	for i := range want {
		if !bytes.Equal(got[i], want[i]) {
			t.Fatalf("frame %d mismatch\n got  % X\n want % X", i, got[i], want[i])
		}
	}
}

func TestParser_Realignment_SkipsGarbage(t *testing.T) {
	garbage := []byte{0x01, 0x02, 0x0F, 0xFF, 0x03} // looks like STX but bad priority
	valid := buildFrame(0xFB, 0x05, []byte{0xAA})

	p := NewParser()
	got := p.Feed(append(append([]byte{}, garbage...), valid...))
	if len(got) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(got))
	}
	if !bytes.Equal(got[0], valid) {
		t.Fatalf("frame mismatch: got % X want % X", got[0], valid)
	}
}

func TestParser_InvalidBodyLengthNibble_Realigns(t *testing.T) {
	// body length nibble > 8 is invalid; parser must realign past it.
	bad := []byte{STX, 0xFB, 0x00, 0x0F, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	valid := buildFrame(0xF8, 0x00, []byte{0x0A})

	p := NewParser()
	got := p.Feed(append(append([]byte{}, bad...), valid...))
	if len(got) != 1 || !bytes.Equal(got[0], valid) {
		t.Fatalf("expected to resync onto the valid frame, got %d frames", len(got))
	}
}

func TestParser_NoValidFrame_ProducesNoOutput(t *testing.T) {
	p := NewParser()
	got := p.Feed([]byte{0x01, 0x02, 0x03, 0x04, 0x05})
	if len(got) != 0 {
		t.Fatalf("expected no frames from a prefix with no valid frame, got %d", len(got))
	}
}

func TestParser_BufferHardCap(t *testing.T) {
	p := NewParser()
	junk := bytes.Repeat([]byte{0x01}, maxBufferLength+500)
	_ = p.Feed(junk)
	if len(p.buf) > maxBufferLength {
		t.Fatalf("buffer exceeded hard cap: %d > %d", len(p.buf), maxBufferLength)
	}
}

func FuzzParser_NeverPanics(f *testing.F) {
	f.Add([]byte(buildFrame(0xFB, 0x00, []byte{0x01, 0x02})))
	f.Add([]byte{0x0F, 0xFF, 0x00, 0x00})
	f.Fuzz(func(t *testing.T, data []byte) {
		p := NewParser()
		_ = p.Feed(data)
	})
}
