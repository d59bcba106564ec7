package serialio

import "time"

// Parity represents the parity mode
type Parity int

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
)

// Config holds the configuration for a serial port
type Config struct {
	BaudRate          int
	DataBits          int
	StopBits          int
	Parity            Parity
	ReadTimeoutTenths int // VTIME setting in tenths of seconds (0-255)
}

// Option is a functional option for configuring a serial port
type Option func(*Config) error

// DefaultConfig returns a configuration with sensible defaults (115200 8N1,
// 200ms read timeout so the read pump stays responsive to shutdown)
func DefaultConfig() Config {
	return Config{
		BaudRate:          115200,
		DataBits:          8,
		StopBits:          1,
		Parity:            ParityNone,
		ReadTimeoutTenths: 2,
	}
}

// WithBaudRate sets the baud rate
func WithBaudRate(rate int) Option {
	return func(c *Config) error {
		if _, err := getBaudRate(rate); err != nil {
			return err
		}
		c.BaudRate = rate
		return nil
	}
}

// WithDataBits sets the number of data bits (5, 6, 7, or 8)
func WithDataBits(bits int) Option {
	return func(c *Config) error {
		if bits < 5 || bits > 8 {
			return ErrInvalidConfig
		}
		c.DataBits = bits
		return nil
	}
}

// WithStopBits sets the number of stop bits (1 or 2)
func WithStopBits(bits int) Option {
	return func(c *Config) error {
		if bits != 1 && bits != 2 {
			return ErrInvalidConfig
		}
		c.StopBits = bits
		return nil
	}
}

// WithParity sets the parity mode
func WithParity(parity Parity) Option {
	return func(c *Config) error {
		c.Parity = parity
		return nil
	}
}

// WithReadTimeout sets the blocking read timeout. Must be a multiple of
// 100ms between 0 and 25.5s because termios VTIME counts deciseconds.
func WithReadTimeout(timeout time.Duration) Option {
	return func(c *Config) error {
		if timeout < 0 || timeout > 25500*time.Millisecond {
			return ErrInvalidConfig
		}
		if timeout%(100*time.Millisecond) != 0 {
			return ErrInvalidConfig
		}
		c.ReadTimeoutTenths = int(timeout / (100 * time.Millisecond))
		return nil
	}
}
