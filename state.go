package bridge

import (
	"context"
	"math"
	"sync"
	"time"
)

// DeviceState represents the coarse status of the bridge device
type DeviceState int

const (
	StateIdle            DeviceState = iota // powered, no serial device attached
	StateNetworkDown                        // network link is down
	StateSerialConnected                    // serial device attached, no terminal
	StateTerminalActive                     // at least one remote terminal subscribed
	StateUpdating                           // firmware/data upload in progress
	StateFault                              // latched error state
)

func (s DeviceState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNetworkDown:
		return "network-down"
	case StateSerialConnected:
		return "serial-connected"
	case StateTerminalActive:
		return "terminal-active"
	case StateUpdating:
		return "updating"
	case StateFault:
		return "fault"
	default:
		return "unknown"
	}
}

// statePriority is the total order deciding which states may replace which.
// StateFault outranks everything and latches; StateUpdating yields only to
// StateFault; the remaining states replace each other freely.
var statePriority = map[DeviceState]int{
	StateIdle:            0,
	StateNetworkDown:     0,
	StateSerialConnected: 0,
	StateTerminalActive:  0,
	StateUpdating:        1,
	StateFault:           2,
}

// Pattern is the visual rendering of a DeviceState: an RGB color, either
// steady or pulsing.
type Pattern struct {
	R, G, B uint8
	Pulse   bool
}

// statePatterns maps each state to its pattern. In-progress states pulse,
// settled states are steady.
var statePatterns = map[DeviceState]Pattern{
	StateIdle:            {R: 0, G: 0, B: 255, Pulse: true},
	StateNetworkDown:     {R: 255, G: 165, B: 0, Pulse: true},
	StateSerialConnected: {R: 0, G: 255, B: 0},
	StateTerminalActive:  {R: 0, G: 255, B: 255},
	StateUpdating:        {R: 255, G: 0, B: 255, Pulse: true},
	StateFault:           {R: 255, G: 0, B: 0},
}

// PatternFor returns the visual pattern for a state
func PatternFor(s DeviceState) Pattern {
	return statePatterns[s]
}

// Renderer receives the color the indicator wants displayed. Implementations
// drive an LED, a terminal cell, or nothing at all.
type Renderer interface {
	SetColor(r, g, b uint8) error
}

// Indicator holds one prioritized DeviceState and renders it continuously.
type Indicator struct {
	mu    sync.Mutex
	state DeviceState

	tick  time.Duration
	cycle time.Duration
	epoch time.Time // monotonic reference for the pulse phase
}

// NewIndicator creates an indicator in StateIdle
func NewIndicator(opts ...Option) (*Indicator, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		if err := opt(&config); err != nil {
			return nil, err
		}
	}

	return &Indicator{
		state: StateIdle,
		tick:  config.RenderTick,
		cycle: config.PulseCycle,
		epoch: time.Now(),
	}, nil
}

// Set updates the current state unless the current state outranks the new
// one. StateFault is latched: once set, no further Set call has any effect
// until the process restarts.
func (i *Indicator) Set(s DeviceState) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.state == StateFault {
		return
	}
	if statePriority[i.state] > statePriority[s] {
		return
	}
	i.state = s
}

// Reset drops the state from an in-progress value back to a settled one. It
// applies only when the current state equals from, so it can never clobber a
// latched fault or an unrelated transition.
func (i *Indicator) Reset(from, to DeviceState) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.state == from {
		i.state = to
	}
}

// State returns the current state; safe to call concurrently with Set
func (i *Indicator) State() DeviceState {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// Run renders the current state to r at a fixed tick until ctx is done.
// Steady states map directly to their color; pulsing states breathe between
// 10% and 100% brightness with a phase derived from the monotonic clock.
// Render errors are ignored so a broken output never stops the loop.
func (i *Indicator) Run(ctx context.Context, r Renderer) {
	ticker := time.NewTicker(i.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p := PatternFor(i.State())
			if p.Pulse {
				b := i.brightness(time.Since(i.epoch))
				_ = r.SetColor(scale(p.R, b), scale(p.G, b), scale(p.B, b))
			} else {
				_ = r.SetColor(p.R, p.G, p.B)
			}
		}
	}
}

// brightness maps an elapsed monotonic duration onto the 10%..100% pulse
func (i *Indicator) brightness(elapsed time.Duration) float64 {
	angle := 2 * math.Pi * float64(elapsed) / float64(i.cycle)
	return 0.1 + 0.9*(math.Sin(angle)+1)/2
}

func scale(c uint8, b float64) uint8 {
	return uint8(float64(c) * b)
}
