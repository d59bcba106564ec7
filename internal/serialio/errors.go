// Package serialio provides the physical serial transport of the bridge:
// a raw termios port plus a manager that keeps one device attached,
// reconnecting whenever it drops.
package serialio

import "errors"

// Predefined error types for robust error handling
var (
	ErrDeviceNotFound  = errors.New("serial device not found")
	ErrNotConnected    = errors.New("no serial device attached")
	ErrPortClosed      = errors.New("serial port is closed")
	ErrInvalidBaudRate = errors.New("invalid baud rate")
	ErrInvalidConfig   = errors.New("invalid serial configuration")
)
