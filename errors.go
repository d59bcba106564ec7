package bridge

import "errors"

// Predefined error types for robust error handling
var (
	// Update session errors
	ErrSessionBusy      = errors.New("an update session is already active")
	ErrNoSession        = errors.New("no active update session")
	ErrSessionFailed    = errors.New("update session already failed")
	ErrCapacityExceeded = errors.New("image exceeds target region capacity")
	ErrIncomplete       = errors.New("received length does not match declared length")
	ErrIntegrityCheck   = errors.New("integrity verification of written image failed")
	ErrTransportFatal   = errors.New("unrecoverable transport error")

	// Bridge errors
	ErrNoTransmitter = errors.New("no serial transmitter attached")

	ErrInvalidConfig = errors.New("invalid bridge configuration")
)
