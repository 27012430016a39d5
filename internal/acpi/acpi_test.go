package acpi

import "testing"

func TestNewHandoffRejectsZeroAddress(t *testing.T) {
	if _, err := NewHandoff(0); err != ErrNoRSDP {
		t.Errorf("NewHandoff(0) error = %v, want %v", err, ErrNoRSDP)
	}
}

func TestNewHandoffAcceptsNonZeroAddress(t *testing.T) {
	h, err := NewHandoff(0xe0000)
	if err != nil {
		t.Fatalf("NewHandoff(0xe0000) error = %v, want nil", err)
	}
	if h.RSDPAddress != 0xe0000 {
		t.Errorf("RSDPAddress = 0x%x, want 0xe0000", h.RSDPAddress)
	}
}
