package textutil

import (
	"testing"
	"time"
)

func TestNormalizeCode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1026054858", "1026054858"},
		{"  1026054858\r\n", "1026054858"},
		{"\x1d0104012345\x1d21ABC", "010401234521ABC"},
		{"１０２６", "1026"},
		{"", ""},
	}
	for _, tc := range tests {
		if got := NormalizeCode(tc.in); got != tc.want {
			t.Errorf("NormalizeCode(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDisplayName(t *testing.T) {
	if got := DisplayName("  jane   DOE "); got != "Jane Doe" {
		t.Fatalf("DisplayName = %q", got)
	}
	if got := DisplayName("   "); got != "" {
		t.Fatalf("DisplayName blank = %q", got)
	}
}

func TestSanitizeHelpers(t *testing.T) {
	if got := SanitizeToken("PCB 273"); got != "pcb_273" {
		t.Fatalf("SanitizeToken = %q", got)
	}
	if got := SanitizeToken("***"); got != "unknown" {
		t.Fatalf("SanitizeToken fallback = %q", got)
	}
	if got := OrDefault(" ", "N/A"); got != "N/A" {
		t.Fatalf("OrDefault = %q", got)
	}
}

func TestTimestampTag(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 123456789, time.UTC)
	if got := TimestampTag(ts); got != "20260304_050607_123456" {
		t.Fatalf("TimestampTag = %q", got)
	}
}
