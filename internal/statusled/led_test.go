package statusled

import (
	"bytes"
	"strings"
	"testing"
)

func TestTerminalSkipsRepeatedColor(t *testing.T) {
	var buf bytes.Buffer
	led := NewTerminal(&buf)

	if err := led.SetColor(255, 0, 0); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	first := buf.Len()
	if first == 0 {
		t.Fatal("Expected output on first draw")
	}

	if err := led.SetColor(255, 0, 0); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if buf.Len() != first {
		t.Error("Expected repeated color to be skipped")
	}

	if err := led.SetColor(0, 255, 0); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if buf.Len() == first {
		t.Error("Expected new color to be drawn")
	}
}

func TestTerminalDrawsGlyph(t *testing.T) {
	var buf bytes.Buffer
	led := NewTerminal(&buf)

	if err := led.SetColor(0, 0, 255); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !strings.Contains(buf.String(), "●") {
		t.Errorf("Expected glyph in output, got %q", buf.String())
	}
}

func TestSysfsWritesAllChannels(t *testing.T) {
	writes := map[string]uint8{}
	led := &Sysfs{
		r: "red", g: "green", b: "blue",
		write: func(path string, value uint8) error {
			writes[path] = value
			return nil
		},
	}

	if err := led.SetColor(10, 20, 30); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if writes["red"] != 10 || writes["green"] != 20 || writes["blue"] != 30 {
		t.Errorf("Expected channel writes 10/20/30, got %v", writes)
	}
}
