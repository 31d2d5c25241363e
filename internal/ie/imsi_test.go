package ie

import "testing"

func TestRoundTrip(t *testing.T) {
	cases := []string{"1234567890", "12345", "1", "001000000000001", "999999999999999"}
	for _, s := range cases {
		got, err := FromIE(ToIE(IMSI(s)))
		if err != nil {
			t.Fatalf("FromIE(ToIE(%q)) returned error: %v", s, err)
		}
		if string(got) != s {
			t.Fatalf("round trip mismatch: want %q got %q", s, got)
		}
	}
}

func TestToIELiteral(t *testing.T) {
	got := ToIE(IMSI("1234567890"))
	want := []byte{0x01, 0x00, 0x05, 0x00, 0x21, 0x43, 0x65, 0x87, 0x09}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: want %d got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d mismatch: want %#x got %#x", i, want[i], got[i])
		}
	}
}

func TestOddLengthFiller(t *testing.T) {
	got := ToIE(IMSI("12345"))
	last := got[len(got)-1]
	if last != 0xF5 {
		t.Fatalf("expected filler byte 0xF5, got %#x", last)
	}
}

func TestFromIERejectsNonFinalFiller(t *testing.T) {
	// Two digits encoded, but the first nibble is a filler — illegal anywhere but the last nibble.
	data := []byte{0x01, 0x00, 0x01, 0x00, 0x1F}
	if _, err := FromIE(data); err == nil {
		t.Fatalf("expected rejection of non-terminal filler nibble")
	}
}

func TestFromIERejectsBadType(t *testing.T) {
	data := []byte{0x02, 0x00, 0x01, 0x00, 0x21}
	if _, err := FromIE(data); err == nil {
		t.Fatalf("expected rejection of wrong type byte")
	}
}

func TestFromIERejectsLengthMismatch(t *testing.T) {
	data := []byte{0x01, 0x00, 0x02, 0x00, 0x21}
	if _, err := FromIE(data); err == nil {
		t.Fatalf("expected rejection of length/payload mismatch")
	}
}

func TestFromIERejectsShortBuffer(t *testing.T) {
	if _, err := FromIE([]byte{0x01, 0x00, 0x00}); err == nil {
		t.Fatalf("expected rejection of buffer shorter than 4 bytes")
	}
}

func TestValid(t *testing.T) {
	if !Valid("5") {
		t.Fatalf("single digit should be valid")
	}
	if Valid("") {
		t.Fatalf("empty string should be invalid")
	}
	if Valid("1234567890123456") {
		t.Fatalf("16 digits should be invalid")
	}
	if Valid("12a45") {
		t.Fatalf("non-digit should be invalid")
	}
}
