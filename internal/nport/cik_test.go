package nport

import "testing"

func TestNormalizeCIK(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"123", "0000000123", true},
		{"0000884394", "0000884394", true},
		{"  884394  ", "0000884394", true},
		{"0", "0000000000", true},
		{"", "", false},
		{"abc", "", false},
		{"12a34", "", false},
	}
	for _, tt := range tests {
		got, ok := NormalizeCIK(tt.in)
		if ok != tt.ok {
			t.Errorf("NormalizeCIK(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			continue
		}
		if ok && got != tt.want {
			t.Errorf("NormalizeCIK(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeCIKIdempotent(t *testing.T) {
	first, ok := NormalizeCIK("123")
	if !ok {
		t.Fatal("expected ok")
	}
	second, ok := NormalizeCIK(first)
	if !ok || second != first {
		t.Errorf("normalization not idempotent: %q -> %q", first, second)
	}
}
