package joincode

import "testing"

func TestNew_ShapeAndUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code := New()
		if len(code) != Length {
			t.Fatalf("code %q: length %d, want %d", code, len(code), Length)
		}
		if !Valid(code) {
			t.Fatalf("New produced invalid code %q", code)
		}
		seen[code] = true
	}
	// 200 draws from a 32^6 space should not collide down to a handful.
	if len(seen) < 190 {
		t.Errorf("suspicious duplication: %d unique codes out of 200", len(seen))
	}
}

func TestValid(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"ABC234", true},
		{"abc234", false}, // lowercase not in alphabet; normalize first
		{"AB0234", false}, // ambiguous zero excluded
		{"ABCD", false},
		{"", false},
		{"ABC2345", false},
	}
	for _, tt := range tests {
		if got := Valid(tt.code); got != tt.want {
			t.Errorf("Valid(%q) = %v, want %v", tt.code, got, tt.want)
		}
	}
}
