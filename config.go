package bridge

import "time"

// Config holds tunables shared by the bridge, indicator and stager.
type Config struct {
	HeartbeatInterval time.Duration // control frame period for client liveness
	RenderTick        time.Duration // indicator redraw period
	PulseCycle        time.Duration // full brightness cycle for pulsing states
	MaxTimeouts       int           // consecutive receive timeouts tolerated by Stream
	ChunkSize         int           // receive buffer size used by Stream
}

// Option is a functional option for configuring the core components
type Option func(*Config) error

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 10 * time.Second,
		RenderTick:        50 * time.Millisecond,
		PulseCycle:        2500 * time.Millisecond,
		MaxTimeouts:       3,
		ChunkSize:         4096,
	}
}

// WithHeartbeatInterval sets the period of the client liveness control frame
func WithHeartbeatInterval(d time.Duration) Option {
	return func(c *Config) error {
		if d <= 0 {
			return ErrInvalidConfig
		}
		c.HeartbeatInterval = d
		return nil
	}
}

// WithRenderTick sets the indicator redraw period
func WithRenderTick(d time.Duration) Option {
	return func(c *Config) error {
		if d <= 0 {
			return ErrInvalidConfig
		}
		c.RenderTick = d
		return nil
	}
}

// WithPulseCycle sets the full brightness cycle of pulsing states
func WithPulseCycle(d time.Duration) Option {
	return func(c *Config) error {
		if d <= 0 {
			return ErrInvalidConfig
		}
		c.PulseCycle = d
		return nil
	}
}

// WithMaxTimeouts sets how many consecutive receive timeouts an update
// stream tolerates before the session fails with ErrTransportFatal
func WithMaxTimeouts(n int) Option {
	return func(c *Config) error {
		if n < 1 {
			return ErrInvalidConfig
		}
		c.MaxTimeouts = n
		return nil
	}
}

// WithChunkSize sets the receive buffer size used by Session.Stream
func WithChunkSize(n int) Option {
	return func(c *Config) error {
		if n < 1 {
			return ErrInvalidConfig
		}
		c.ChunkSize = n
		return nil
	}
}
