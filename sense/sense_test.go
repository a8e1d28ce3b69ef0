package sense

import "testing"

func TestNormalizeRejectsBadResponseCode(t *testing.T) {
	b := []byte{0x55, 0, 0, 0}
	if got := Normalize(b); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestNormalizeDescriptorFormat(t *testing.T) {
	// S1 sense from spec.md boundary scenario S1.
	b := []byte{
		0x72, 0x00, 0x00, 0x1D, 0x00, 0x00, 0x00, 0x0E,
		0x09, 0x0C, 0x00, 0x00, 0x00, 0x01, 0x00, 0x4F,
		0x00, 0xC2, 0x00, 0x00, 0xB0,
	}
	d := Normalize(b)
	if d == nil {
		t.Fatal("expected non-nil disect")
	}
	if d.SenseKey != KeyNoSense || d.ASC != 0x00 || d.ASCQ != AscqATAPassThroughInfo {
		t.Fatalf("got %+v", d)
	}
	desc := FindDescriptor(b, 0x09)
	if desc == nil {
		t.Fatal("expected ATA return descriptor")
	}
	if desc[3] != 0x00 { // error register
		t.Fatalf("unexpected error register byte: %x", desc[3])
	}
}

func TestNormalizeFixedFormat(t *testing.T) {
	b := make([]byte, 18)
	b[0] = 0x70
	b[2] = KeyIllegalRequest
	b[7] = 10 // additional sense length -> total 18, > 13
	b[12] = ascInvalidField
	b[13] = 0x00
	d := Normalize(b)
	if d == nil {
		t.Fatal("expected non-nil")
	}
	if SimpleFilter(d) != BadField {
		t.Fatalf("got %v", SimpleFilter(d))
	}
}

func TestSimpleFilterUnitAttention(t *testing.T) {
	d := &Disect{SenseKey: KeyUnitAttention}
	if SimpleFilter(d) != TryAgain {
		t.Fatalf("expected TryAgain")
	}
}

func TestSelfTestInProgress(t *testing.T) {
	d := &Disect{SenseKey: KeyNotReady, ASC: AscSelfTestInProgress, ASCQ: AscqSelfTestInProgress}
	if !IsSelfTestInProgress(d) {
		t.Fatal("expected in-progress")
	}
}
