package hal

import "io"

// Speed represents the USB connection speed.
type Speed uint8

// USB speed constants (USB 2.0 Specification).
const (
	SpeedUnknown Speed = iota // Not connected or unknown
	SpeedLow                  // Low Speed (1.5 Mbit/s)
	SpeedFull                 // Full Speed (12 Mbit/s)
	SpeedHigh                 // High Speed (480 Mbit/s)
)

// String returns a human-readable speed name.
func (s Speed) String() string {
	switch s {
	case SpeedLow:
		return "Low Speed"
	case SpeedFull:
		return "Full Speed"
	case SpeedHigh:
		return "High Speed"
	default:
		return "Unknown"
	}
}

// MaxPacketSize0 returns the default control pipe size used to talk to a
// freshly reset device at this speed. Unknown speeds report 0.
func (s Speed) MaxPacketSize0() uint16 {
	switch s {
	case SpeedLow:
		return 8
	case SpeedFull:
		return 64
	case SpeedHigh:
		return 512
	default:
		return 0
	}
}

// SpeedFromStatus decodes the negotiated speed from an SR register value.
// The reserved encoding reports SpeedUnknown.
func SpeedFromStatus(sr uint32) Speed {
	switch (sr & SRSpeedMask) >> SRSpeedPos {
	case SRSpeedFull:
		return SpeedFull
	case SRSpeedHigh:
		return SpeedHigh
	case SRSpeedLow:
		return SpeedLow
	default:
		return SpeedUnknown
	}
}

// StatusFromSpeed encodes a speed into the SR SPEED field.
func StatusFromSpeed(s Speed) uint32 {
	switch s {
	case SpeedHigh:
		return SRSpeedHigh << SRSpeedPos
	case SpeedLow:
		return SRSpeedLow << SRSpeedPos
	case SpeedFull:
		return SRSpeedFull << SRSpeedPos
	default:
		return SRSpeedReserved << SRSpeedPos
	}
}

// Token is the PID a pipe issues for its next transaction.
// Values match the HSTPIPCFG PTOKEN field.
type Token uint8

// Token values.
const (
	TokenSetup Token = 0
	TokenIn    Token = 1
	TokenOut   Token = 2
)

// String returns the token name.
func (t Token) String() string {
	switch t {
	case TokenSetup:
		return "SETUP"
	case TokenIn:
		return "IN"
	case TokenOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// TransferType indicates the type of USB transfer.
// Values match the HSTPIPCFG PTYPE field.
type TransferType uint8

// Transfer type constants.
const (
	TransferControl     TransferType = 0 // Control transfer
	TransferIsochronous TransferType = 1 // Isochronous transfer
	TransferBulk        TransferType = 2 // Bulk transfer
	TransferInterrupt   TransferType = 3 // Interrupt transfer
)

// String returns the transfer type name.
func (t TransferType) String() string {
	switch t {
	case TransferControl:
		return "control"
	case TransferIsochronous:
		return "isochronous"
	case TransferBulk:
		return "bulk"
	case TransferInterrupt:
		return "interrupt"
	default:
		return "unknown"
	}
}

// SetupPacket represents a USB SETUP packet.
type SetupPacket struct {
	RequestType uint8  // Request characteristics
	Request     uint8  // Specific request
	Value       uint16 // Request-specific value
	Index       uint16 // Request-specific index
	Length      uint16 // Number of bytes to transfer
}

// SetupPacketSize is the size of a USB SETUP packet in bytes.
const SetupPacketSize = 8

// ParseSetupPacket parses raw bytes into a SetupPacket.
// Returns false if data is too short.
func ParseSetupPacket(data []byte, out *SetupPacket) bool {
	if len(data) < SetupPacketSize {
		return false
	}
	out.RequestType = data[0]
	out.Request = data[1]
	out.Value = uint16(data[2]) | uint16(data[3])<<8
	out.Index = uint16(data[4]) | uint16(data[5])<<8
	out.Length = uint16(data[6]) | uint16(data[7])<<8
	return true
}

// MarshalTo writes the setup packet to buf.
// Returns the number of bytes written (8), or 0 if buf is too small.
func (s *SetupPacket) MarshalTo(buf []byte) int {
	if len(buf) < SetupPacketSize {
		return 0
	}
	buf[0] = s.RequestType
	buf[1] = s.Request
	buf[2] = byte(s.Value)
	buf[3] = byte(s.Value >> 8)
	buf[4] = byte(s.Index)
	buf[5] = byte(s.Index >> 8)
	buf[6] = byte(s.Length)
	buf[7] = byte(s.Length >> 8)
	return SetupPacketSize
}

// IsIn reports whether the data stage moves device-to-host.
func (s *SetupPacket) IsIn() bool {
	return s.RequestType&0x80 != 0
}

// Register is the byte offset of a 32-bit controller register from the
// peripheral base address.
type Register uint32

// Memory is the controller's dual-port RAM. Offsets are relative to the
// start of the pipe FIFO window (see FIFOOffset).
type Memory interface {
	io.ReaderAt
	io.WriterAt
}

// Registers is the register-level view of the controller.
//
// Implementations must perform every Load and Store as a single 32-bit
// volatile access; side effects of write-one-to-clear and write-one-to-set
// registers are the hardware's.
type Registers interface {
	// Load returns the current value of a register.
	Load(r Register) uint32

	// Store writes a register.
	Store(r Register, v uint32)

	// FIFO returns the shared transfer memory.
	FIFO() Memory
}

// Critical is implemented by register backends that can hold off the
// controller interrupt. Critical runs fn with the interrupt masked; sources
// that latch meanwhile are delivered once fn returns.
type Critical interface {
	Critical(fn func())
}

// ClockMode selects the USB clock configuration requested from the clock tree.
type ClockMode uint8

// Clock modes.
const (
	ClockHighSpeed ClockMode = iota // UTMI PLL, 480 MHz
	ClockLowPower                   // 48 MHz USB clock, full speed only
)

// String returns the clock mode name.
func (m ClockMode) String() string {
	if m == ClockLowPower {
		return "low-power"
	}
	return "high-speed"
}

// Clock is the clock-tree collaborator.
type Clock interface {
	// EnableUSBClock starts the clocks the controller needs in mode.
	EnableUSBClock(mode ClockMode)
}
