package serialio

import "testing"

func TestMatchesPortName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"ttyUSB0", true},
		{"ttyUSB12", true},
		{"ttyACM0", true},
		{"ttyAMA0", true},
		{"ttymxc1", true},
		{"ttyS0", true},
		{"tty1", false},
		{"console", false},
		{"ptmx", false},
		{"ttyUSB", false},
		{"random", false},
	}

	for _, tt := range tests {
		if got := matchesPortName(tt.name); got != tt.want {
			t.Errorf("matchesPortName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
