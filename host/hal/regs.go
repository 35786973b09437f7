package hal

// Peripheral addresses on the SAM3X8E.
const (
	// PeripheralBase is the UOTGHS register base address.
	PeripheralBase uintptr = 0x400AC000

	// FIFOBase is the start of the UOTGHS FIFO access window.
	FIFOBase uintptr = 0x20180000

	// FIFOStride is the size of each pipe's FIFO access window.
	FIFOStride = 0x8000

	// DPRAMSize is the dual-port RAM available for pipe banks.
	DPRAMSize = 4096

	// NumPipes is the number of hardware pipes.
	NumPipes = 10
)

// FIFOOffset returns the offset of a pipe's FIFO window within Memory.
func FIFOOffset(pipe uint8) int64 {
	return int64(pipe) * FIFOStride
}

// Register offsets.
const (
	DEVCTRL Register = 0x0000 // Device General Control

	HSTCTRL  Register = 0x0400 // Host General Control
	HSTISR   Register = 0x0404 // Host Global Interrupt Status
	HSTICR   Register = 0x0408 // Host Global Interrupt Clear
	HSTIFR   Register = 0x040C // Host Global Interrupt Set
	HSTIMR   Register = 0x0410 // Host Global Interrupt Mask
	HSTIDR   Register = 0x0414 // Host Global Interrupt Disable
	HSTIER   Register = 0x0418 // Host Global Interrupt Enable
	HSTPIP   Register = 0x041C // Host Pipe (enable and reset)
	HSTFNUM  Register = 0x0420 // Host Frame Number
	HSTADDR1 Register = 0x0424 // Host Address 1 (pipes 0-3)
	HSTADDR2 Register = 0x0428 // Host Address 2 (pipes 4-7)
	HSTADDR3 Register = 0x042C // Host Address 3 (pipes 8-9)

	HSTPIPCFG0 Register = 0x0500 // Host Pipe Configuration (array)
	HSTPIPISR0 Register = 0x0530 // Host Pipe Status (array)
	HSTPIPICR0 Register = 0x0560 // Host Pipe Clear (array)
	HSTPIPIFR0 Register = 0x0590 // Host Pipe Set (array)
	HSTPIPIMR0 Register = 0x05C0 // Host Pipe Mask (array)
	HSTPIPIER0 Register = 0x05F0 // Host Pipe Enable (array)
	HSTPIPIDR0 Register = 0x0620 // Host Pipe Disable (array)
	HSTPIPINRQ Register = 0x0650 // Host Pipe IN Request (array)
	HSTPIPERR0 Register = 0x0680 // Host Pipe Error (array)

	CTRL Register = 0x0800 // General Control
	SR   Register = 0x0804 // General Status
	SCR  Register = 0x0808 // General Status Clear
	SFR  Register = 0x080C // General Status Set

	// RegisterSpan is one past the last register offset.
	RegisterSpan Register = 0x0810
)

// Per-pipe register arrays have a 4-byte stride.
func pipeReg(base Register, n uint8) Register { return base + Register(n)*4 }

// PipeCfg returns HSTPIPCFG for pipe n.
func PipeCfg(n uint8) Register { return pipeReg(HSTPIPCFG0, n) }

// PipeISR returns HSTPIPISR for pipe n.
func PipeISR(n uint8) Register { return pipeReg(HSTPIPISR0, n) }

// PipeICR returns HSTPIPICR for pipe n.
func PipeICR(n uint8) Register { return pipeReg(HSTPIPICR0, n) }

// PipeIFR returns HSTPIPIFR for pipe n.
func PipeIFR(n uint8) Register { return pipeReg(HSTPIPIFR0, n) }

// PipeIMR returns HSTPIPIMR for pipe n.
func PipeIMR(n uint8) Register { return pipeReg(HSTPIPIMR0, n) }

// PipeIER returns HSTPIPIER for pipe n.
func PipeIER(n uint8) Register { return pipeReg(HSTPIPIER0, n) }

// PipeIDR returns HSTPIPIDR for pipe n.
func PipeIDR(n uint8) Register { return pipeReg(HSTPIPIDR0, n) }

// PipeERR returns HSTPIPERR for pipe n.
func PipeERR(n uint8) Register { return pipeReg(HSTPIPERR0, n) }

// PipeAddr returns the HSTADDRx register holding pipe n's device address and
// the bit position of its 7-bit field.
func PipeAddr(n uint8) (Register, uint32) {
	return HSTADDR1 + Register(n/4)*4, uint32(n%4) * 8
}

// PipeAddrMask is the width of a HSTADDRx address field.
const PipeAddrMask = 0x7F

// DEVCTRL bits.
const (
	DevctrlSpdconfPos  = 10
	DevctrlSpdconfMask = 0x3 << DevctrlSpdconfPos

	SpdconfNormal    = 0 // Normal mode, high speed capable
	SpdconfLowPower  = 1 // Low power mode, full speed only
	SpdconfHighSpeed = 2 // Forced high speed
	SpdconfForcedFS  = 3 // Forced full speed
)

// HSTCTRL bits.
const (
	HstctrlSOFE   = 1 << 8  // Start of Frame Generation Enable
	HstctrlRESET  = 1 << 9  // Send USB Reset
	HstctrlRESUME = 1 << 10 // Send USB Resume
)

// HSTISR / HSTICR / HSTIFR / HSTIMR / HSTIDR / HSTIER bits. The clear, set,
// mask, disable and enable registers share the status bit positions.
const (
	HstDCONN  = 1 << 0 // Device Connection
	HstDDISC  = 1 << 1 // Device Disconnection
	HstRST    = 1 << 2 // USB Reset Sent
	HstRSMED  = 1 << 3 // Downstream Resume Sent
	HstRXRSM  = 1 << 4 // Upstream Resume Received
	HstHSOF   = 1 << 5 // Host Start of Frame
	HstHWUP   = 1 << 6 // Host Wake-Up
	HstPipe0  = 1 << 8 // Pipe 0 interrupt; pipe n is HstPipe0 << n
	HstAllISR = HstDCONN | HstDDISC | HstRST | HstRSMED | HstRXRSM | HstHSOF | HstHWUP
)

// HSTPIP bits.
const (
	HstpipPEN0  = 1 << 0  // Pipe 0 Enable; pipe n is HstpipPEN0 << n
	HstpipPRST0 = 1 << 16 // Pipe 0 Reset; pipe n is HstpipPRST0 << n
)

// PipeEnableBit returns the HSTPIP enable bit of pipe n.
func PipeEnableBit(n uint8) uint32 { return HstpipPEN0 << n }

// PipeResetBit returns the HSTPIP reset bit of pipe n.
func PipeResetBit(n uint8) uint32 { return HstpipPRST0 << n }

// HSTPIPCFG fields.
const (
	CfgALLOC     = 1 << 1
	CfgPBKPos    = 2
	CfgPBKMask   = 0x3 << CfgPBKPos
	CfgPSIZEPos  = 4
	CfgPSIZEMask = 0x7 << CfgPSIZEPos
	CfgPTOKENPos = 8
	CfgPTOKEN    = 0x3 << CfgPTOKENPos
	CfgAUTOSW    = 1 << 10
	CfgPTYPEPos  = 12
	CfgPTYPEMask = 0x3 << CfgPTYPEPos
	CfgPEPNUMPos = 16
	CfgPEPNUM    = 0xF << CfgPEPNUMPos
	CfgINTFRQPos = 24
	CfgINTFRQ    = 0xFF << CfgINTFRQPos
)

// HSTPIPISR / HSTPIPICR / HSTPIPIFR bits.
const (
	PipRXIN        = 1 << 0 // Received IN Data
	PipTXOUT       = 1 << 1 // Transmitted OUT Data
	PipTXSTP       = 1 << 2 // Transmitted SETUP
	PipPERR        = 1 << 3 // Pipe Error
	PipNAKED       = 1 << 4 // NAKed
	PipOVERF       = 1 << 5 // Overflow
	PipRXSTALLD    = 1 << 6 // Received STALLed
	PipSHORTPACKET = 1 << 7 // Short Packet

	PipDTSEQPos  = 8 // Data Toggle Sequence
	PipDTSEQMask = 0x3 << PipDTSEQPos
	PipCFGOK     = 1 << 18 // Configuration OK
	PipPBYCTPos  = 20      // Pipe Byte Count
	PipPBYCTMask = 0x7FF << PipPBYCTPos

	PipAllFlags = PipRXIN | PipTXOUT | PipTXSTP | PipPERR | PipNAKED | PipOVERF | PipRXSTALLD | PipSHORTPACKET
)

// HSTPIPIMR / HSTPIPIER / HSTPIPIDR bits beyond the status positions.
const (
	PipFIFOCON = 1 << 14 // FIFO Control
	PipPFREEZE = 1 << 17 // Pipe Freeze
	PipRSTDT   = 1 << 18 // Reset Data Toggle
)

// CTRL bits.
const (
	CtrlIDTE    = 1 << 0
	CtrlVBUSTE  = 1 << 1
	CtrlSRPE    = 1 << 2
	CtrlVBERRE  = 1 << 3
	CtrlBCERRE  = 1 << 4
	CtrlROLEEXE = 1 << 5
	CtrlHNPERRE = 1 << 6
	CtrlSTOE    = 1 << 7
	CtrlVBUSHWC = 1 << 8
	CtrlOTGPADE = 1 << 12
	CtrlVBUSPO  = 1 << 13
	CtrlFRZCLK  = 1 << 14
	CtrlUSBE    = 1 << 15
	CtrlUIDE    = 1 << 24
	CtrlUIMOD   = 1 << 25
)

// SR / SCR / SFR bits. SCR and SFR share the interrupt bit positions.
const (
	SrIDTI      = 1 << 0
	SrVBUSTI    = 1 << 1
	SrSRPI      = 1 << 2
	SrVBERRI    = 1 << 3
	SrBCERRI    = 1 << 4
	SrROLEEXI   = 1 << 5
	SrHNPERRI   = 1 << 6
	SrSTOI      = 1 << 7
	SrVBUSRQ    = 1 << 9
	SrID        = 1 << 10
	SrVBUS      = 1 << 11
	SRSpeedPos  = 12
	SRSpeedMask = 0x3 << SRSpeedPos
	SrCLKUSABLE = 1 << 14

	SRSpeedFull     = 0
	SRSpeedHigh     = 1
	SRSpeedLow      = 2
	SRSpeedReserved = 3
)
