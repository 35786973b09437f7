package pkg

import "errors"

// Resource exhaustion errors.
var (
	// ErrOutOfPipes indicates every allocatable hardware pipe is enabled.
	ErrOutOfPipes = errors.New("out of pipes")

	// ErrOutOfDevices indicates every device address slot is occupied.
	ErrOutOfDevices = errors.New("out of devices")
)

// Invalid request errors.
var (
	// ErrInvalidSize indicates a packet size that maps onto no pipe size class.
	ErrInvalidSize = errors.New("invalid pipe size")

	// ErrInvalidConfiguration indicates a pipe configuration that was rejected,
	// either by validation or by the controller's CFGOK read-back.
	ErrInvalidConfiguration = errors.New("invalid pipe configuration")

	// ErrInvalidOperation indicates an operation on a pipe that is not enabled
	// or an endpoint that has no pipe.
	ErrInvalidOperation = errors.New("invalid pipe operation")

	// ErrPipeOutOfRange indicates a pipe index beyond the hardware pipe count.
	ErrPipeOutOfRange = errors.New("pipe index out of range")

	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")
)

// USB transport errors.
var (
	// ErrTransfer matches every transaction failure reported by the host.
	ErrTransfer = errors.New("transfer error")

	// ErrStall indicates an endpoint stall condition.
	ErrStall = errors.New("endpoint stalled")

	// ErrNAK indicates the NAK retry limit was exhausted.
	ErrNAK = errors.New("NAK limit reached")

	// ErrTimeout indicates a hardware status bit never latched.
	ErrTimeout = errors.New("hardware timeout")

	// ErrProtocol indicates a pipe error (CRC, PID, time-out or data toggle).
	ErrProtocol = errors.New("protocol error")

	// ErrDescriptorTooShort indicates the descriptor data is too short.
	ErrDescriptorTooShort = errors.New("descriptor too short")

	// ErrDescriptorTypeMismatch indicates the descriptor type does not match expected.
	ErrDescriptorTypeMismatch = errors.New("descriptor type mismatch")
)

// TransferStatus represents the completion status of a pipe transaction.
type TransferStatus int

// Transfer status values.
const (
	TransferStatusSuccess  TransferStatus = iota // Transaction acknowledged
	TransferStatusError                          // Pipe error flag raised
	TransferStatusStall                          // Endpoint stalled
	TransferStatusNAK                            // NAK limit reached
	TransferStatusTimeout                        // Completion never latched
	TransferStatusPending                        // Still in flight
)

// String returns a string representation of the transfer status.
func (s TransferStatus) String() string {
	switch s {
	case TransferStatusSuccess:
		return "success"
	case TransferStatusError:
		return "error"
	case TransferStatusStall:
		return "stall"
	case TransferStatusNAK:
		return "nak"
	case TransferStatusTimeout:
		return "timeout"
	case TransferStatusPending:
		return "pending"
	default:
		return "unknown"
	}
}

// Error returns the corresponding error for the transfer status.
// Pending and Success both report nil.
func (s TransferStatus) Error() error {
	switch s {
	case TransferStatusSuccess, TransferStatusPending:
		return nil
	case TransferStatusStall:
		return ErrStall
	case TransferStatusNAK:
		return ErrNAK
	case TransferStatusTimeout:
		return ErrTimeout
	default:
		return ErrProtocol
	}
}
