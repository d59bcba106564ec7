// Package statusled renders the device state indicator. Hardware without a
// physical RGB LED gets a terminal rendition drawn with ANSI truecolor.
package statusled

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Terminal draws the indicator as a colored glyph on w, redrawing in place
// so it behaves like a steady lamp rather than a scrolling log.
type Terminal struct {
	mu sync.Mutex
	w  io.Writer

	lastR, lastG, lastB uint8
	drawn               bool
}

func NewTerminal(w io.Writer) *Terminal {
	return &Terminal{w: w}
}

// SetColor updates the glyph. Repeated identical colors are skipped to keep
// the 50ms render tick from flooding the terminal.
func (t *Terminal) SetColor(r, g, b uint8) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.drawn && r == t.lastR && g == t.lastG && b == t.lastB {
		return nil
	}
	t.lastR, t.lastG, t.lastB = r, g, b
	t.drawn = true

	style := lipgloss.NewStyle().
		Foreground(lipgloss.Color(fmt.Sprintf("#%02X%02X%02X", r, g, b)))

	_, err := fmt.Fprintf(t.w, "\r%s", style.Render("●"))
	return err
}

// Sysfs drives a physical RGB LED through the Linux leds class, one
// brightness file per channel.
type Sysfs struct {
	mu      sync.Mutex
	r, g, b string

	write func(path string, value uint8) error
}

// NewSysfs takes the brightness file paths for the red, green and blue
// channels, e.g. /sys/class/leds/led-red/brightness.
func NewSysfs(redPath, greenPath, bluePath string) *Sysfs {
	return &Sysfs{
		r:     redPath,
		g:     greenPath,
		b:     bluePath,
		write: writeBrightness,
	}
}

func (s *Sysfs) SetColor(r, g, b uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.write(s.r, r); err != nil {
		return err
	}
	if err := s.write(s.g, g); err != nil {
		return err
	}
	return s.write(s.b, b)
}
