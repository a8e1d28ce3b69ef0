package ataname

import "testing"

func TestSmartDispatch(t *testing.T) {
	if got := Name(0xB0, 0xDA); got != "SMART RETURN STATUS" {
		t.Fatalf("got %q", got)
	}
	if got := Name(0xB0, 0xD8); got != "SMART ENABLE OPERATIONS" {
		t.Fatalf("got %q", got)
	}
}

func TestUnknownOpcodeReserved(t *testing.T) {
	if got := Name(0x01, 0x00); got != reserved {
		t.Fatalf("got %q, want reserved placeholder", got)
	}
}

func TestPlainOpcode(t *testing.T) {
	if got := Name(0xEC, 0x00); got != "IDENTIFY DEVICE" {
		t.Fatalf("got %q", got)
	}
}
