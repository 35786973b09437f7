package host

import (
	"errors"
	"fmt"
	"io"
	"math/bits"

	"github.com/ardnew/uotghs/host/hal"
	"github.com/ardnew/uotghs/pkg"
)

// Pipe size limits in bytes.
const (
	MinPipeSize = 8
	MaxPipeSize = 1024
)

// PipeConfig describes the endpoint bound to a pipe.
type PipeConfig struct {
	Address       uint8 // device address
	Endpoint      uint8 // endpoint number 0-15
	Type          hal.TransferType
	Token         hal.Token
	MaxPacketSize uint16
	Interval      uint8 // interrupt pipes only
	Banks         uint8 // 1 or 2; 0 means 1
}

// Pipe is one hardware transfer channel.
type Pipe struct {
	index uint8
	cfg   PipeConfig
	live  bool
	gen   uint32 // bumped on every allocation
}

// Index returns the hardware channel number.
func (p *Pipe) Index() uint8 { return p.index }

// Config returns the configuration the pipe was allocated with. Token
// follows the last Send.
func (p *Pipe) Config() PipeConfig { return p.cfg }

// Allocated reports whether the pipe is bound to an endpoint.
func (p *Pipe) Allocated() bool { return p.live }

// Pipes manages the controller's hardware pipes. Pipe 0 is reserved for the
// default control pipe.
type Pipes struct {
	regs  hal.Registers
	spin  int
	pipes [hal.NumPipes]Pipe
}

// NewPipes returns a pipe manager over regs. spinLimit bounds the
// freeze-acknowledge wait; zero waits forever.
func NewPipes(regs hal.Registers, spinLimit int) *Pipes {
	m := &Pipes{regs: regs, spin: spinLimit}
	for i := range m.pipes {
		m.pipes[i].index = uint8(i)
	}
	return m
}

// SizeClass maps a packet size onto the PSIZE encoding: the size is rounded
// up to a power of two and 8 bytes is class 0.
func SizeClass(size uint16) (uint32, bool) {
	if size < MinPipeSize || size > MaxPipeSize {
		return 0, false
	}
	return uint32(bits.Len16(size-1)) - 3, true
}

// Get returns pipe n.
func (m *Pipes) Get(n uint8) (*Pipe, error) {
	if n >= hal.NumPipes {
		return nil, fmt.Errorf("pipe %d: %w", n, pkg.ErrPipeOutOfRange)
	}
	return &m.pipes[n], nil
}

// Enabled reports whether the pipe's PEN bit is set.
func (m *Pipes) Enabled(p *Pipe) bool {
	return m.regs.Load(hal.HSTPIP)&hal.PipeEnableBit(p.index) != 0
}

// Frozen reports whether the pipe is frozen.
func (m *Pipes) Frozen(p *Pipe) bool {
	return m.regs.Load(hal.PipeIMR(p.index))&hal.PipPFREEZE != 0
}

// Freeze stops the pipe from issuing tokens.
func (m *Pipes) Freeze(p *Pipe) {
	m.regs.Store(hal.PipeIER(p.index), hal.PipPFREEZE)
}

func validate(cfg PipeConfig) (uint32, error) {
	class, ok := SizeClass(cfg.MaxPacketSize)
	if !ok {
		return 0, fmt.Errorf("%d bytes: %w", cfg.MaxPacketSize, pkg.ErrInvalidSize)
	}
	switch {
	case cfg.Type != hal.TransferControl && cfg.Type != hal.TransferBulk && cfg.Type != hal.TransferInterrupt,
		cfg.Token > hal.TokenOut,
		cfg.Token == hal.TokenSetup && cfg.Type != hal.TransferControl,
		cfg.Banks > 2,
		cfg.Endpoint > 0x0F,
		cfg.Address > hal.PipeAddrMask:
		return 0, fmt.Errorf("%s pipe %d banks: %w", cfg.Type, cfg.Banks, pkg.ErrInvalidConfiguration)
	}
	return class, nil
}

func cfgBits(cfg PipeConfig, class uint32) uint32 {
	banks := uint32(max(cfg.Banks, 1) - 1)
	v := uint32(cfg.Endpoint)<<hal.CfgPEPNUMPos |
		uint32(cfg.Type)<<hal.CfgPTYPEPos |
		uint32(cfg.Token)<<hal.CfgPTOKENPos |
		class<<hal.CfgPSIZEPos |
		banks<<hal.CfgPBKPos
	if cfg.Type == hal.TransferInterrupt {
		v |= uint32(cfg.Interval) << hal.CfgINTFRQPos
	}
	if cfg.Type != hal.TransferControl {
		v |= hal.CfgAUTOSW
	}
	return v
}

// Alloc binds cfg to the first disabled pipe among 1..NumPipes-1. The
// configuration is validated before any register is written.
func (m *Pipes) Alloc(cfg PipeConfig) (*Pipe, error) {
	class, err := validate(cfg)
	if err != nil {
		return nil, err
	}
	for n := uint8(1); n < hal.NumPipes; n++ {
		p := &m.pipes[n]
		if m.Enabled(p) {
			continue
		}
		if err := m.program(p, cfg, class); err != nil {
			return nil, err
		}
		pkg.LogDebug(pkg.ComponentPipe, "allocated",
			"pipe", n,
			"address", cfg.Address,
			"endpoint", cfg.Endpoint,
			"type", cfg.Type,
			"size", cfg.MaxPacketSize)
		return p, nil
	}
	return nil, pkg.ErrOutOfPipes
}

// ConfigureDefault programs pipe 0 as the control pipe of address. The pipe
// is reallocated only when the packet size changes.
func (m *Pipes) ConfigureDefault(address uint8, maxPacketSize uint16) (*Pipe, error) {
	cfg := PipeConfig{
		Address:       address,
		Type:          hal.TransferControl,
		Token:         hal.TokenSetup,
		MaxPacketSize: maxPacketSize,
		Banks:         1,
	}
	class, err := validate(cfg)
	if err != nil {
		return nil, err
	}
	p := &m.pipes[0]
	if p.live && p.cfg.MaxPacketSize == maxPacketSize && m.Enabled(p) {
		if p.cfg.Address != address {
			m.setAddress(0, address)
			p.cfg.Address = address
		}
		return p, nil
	}
	if p.live {
		m.Free(p)
	}
	if err := m.program(p, cfg, class); err != nil {
		return nil, err
	}
	pkg.LogDebug(pkg.ComponentPipe, "default pipe", "address", address, "size", maxPacketSize)
	return p, nil
}

func (m *Pipes) program(p *Pipe, cfg PipeConfig, class uint32) error {
	n := p.index
	hal.Set(m.regs, hal.HSTPIP, hal.PipeEnableBit(n))
	m.regs.Store(hal.PipeCfg(n), cfgBits(cfg, class))
	hal.Set(m.regs, hal.PipeCfg(n), hal.CfgALLOC)
	if !hal.IsSet(m.regs, hal.PipeISR(n), hal.PipCFGOK) {
		hal.Clear(m.regs, hal.PipeCfg(n), hal.CfgALLOC)
		hal.Clear(m.regs, hal.HSTPIP, hal.PipeEnableBit(n))
		pkg.LogWarn(pkg.ComponentPipe, "configuration rejected", "pipe", n, "size", cfg.MaxPacketSize)
		return fmt.Errorf("pipe %d: %w", n, pkg.ErrInvalidConfiguration)
	}
	m.setAddress(n, cfg.Address)
	m.Freeze(p)
	p.cfg = cfg
	p.live = true
	p.gen++
	return nil
}

func (m *Pipes) setAddress(n, address uint8) {
	reg, shift := hal.PipeAddr(n)
	hal.Modify(m.regs, reg, hal.PipeAddrMask<<shift, uint32(address)<<shift)
}

// Free disables the pipe, releases its DPRAM allocation and pulses the
// enable bit so no transaction state survives into the next allocation.
func (m *Pipes) Free(p *Pipe) {
	n := p.index
	m.Freeze(p)
	hal.Clear(m.regs, hal.HSTPIP, hal.PipeEnableBit(n))
	hal.Clear(m.regs, hal.PipeCfg(n), hal.CfgALLOC)
	hal.Set(m.regs, hal.HSTPIP, hal.PipeEnableBit(n))
	hal.Clear(m.regs, hal.HSTPIP, hal.PipeEnableBit(n))
	m.setAddress(n, 0)
	if p.live {
		pkg.LogDebug(pkg.ComponentPipe, "freed", "pipe", n, "address", p.cfg.Address)
	}
	p.cfg = PipeConfig{}
	p.live = false
}

// FreeAddress frees every allocatable pipe bound to address and returns how
// many were freed.
func (m *Pipes) FreeAddress(address uint8) int {
	freed := 0
	for n := 1; n < hal.NumPipes; n++ {
		if p := &m.pipes[n]; p.live && p.cfg.Address == address {
			m.Free(p)
			freed++
		}
	}
	return freed
}

// Reset clears the pipe's data toggle and releases its reset bit. The
// allocation is kept.
func (m *Pipes) Reset(p *Pipe) {
	m.regs.Store(hal.PipeIER(p.index), hal.PipRSTDT)
	hal.Clear(m.regs, hal.HSTPIP, hal.PipeResetBit(p.index))
}

// resetAll resets every pipe and forgets all allocations. Used after the
// controller was disabled, which drops every allocation in hardware.
func (m *Pipes) resetAll() {
	for i := range m.pipes {
		m.Reset(&m.pipes[i])
		m.pipes[i].cfg = PipeConfig{}
		m.pipes[i].live = false
	}
}

// Send programs tok into the pipe, clears stale status and unfreezes it.
func (m *Pipes) Send(p *Pipe, tok hal.Token) error {
	if !m.Enabled(p) {
		return fmt.Errorf("pipe %d: %w", p.index, pkg.ErrInvalidOperation)
	}
	n := p.index
	hal.Modify(m.regs, hal.PipeCfg(n), hal.CfgPTOKEN, uint32(tok)<<hal.CfgPTOKENPos)
	p.cfg.Token = tok
	m.regs.Store(hal.PipeICR(n), hal.PipAllFlags)
	m.regs.Store(hal.PipeIDR(n), hal.PipFIFOCON|hal.PipPFREEZE)
	return nil
}

func completion(tok hal.Token) uint32 {
	switch tok {
	case hal.TokenSetup:
		return hal.PipTXSTP
	case hal.TokenIn:
		return hal.PipRXIN
	default:
		return hal.PipTXOUT
	}
}

// Poll reads the pipe status once. On completion of tok the pipe is frozen
// and the flag acknowledged; an In completion first waits for the hardware
// freeze so the bank is stable before readout. A stall or pipe error
// freezes the pipe and clears the condition. A NAK is acknowledged and
// reported; the hardware keeps retrying the token.
func (m *Pipes) Poll(p *Pipe, tok hal.Token) (pkg.TransferStatus, error) {
	n := p.index
	isr := m.regs.Load(hal.PipeISR(n))
	switch {
	case isr&completion(tok) != 0:
		if tok == hal.TokenIn && !hal.Wait(m.regs, hal.PipeIMR(n), hal.PipPFREEZE, true, m.spin) {
			return pkg.TransferStatusTimeout, fmt.Errorf("pipe %d freeze: %w", n, pkg.ErrTimeout)
		}
		m.Freeze(p)
		m.regs.Store(hal.PipeICR(n), completion(tok))
		return pkg.TransferStatusSuccess, nil
	case isr&hal.PipRXSTALLD != 0:
		m.Freeze(p)
		m.regs.Store(hal.PipeICR(n), hal.PipRXSTALLD)
		return pkg.TransferStatusStall, nil
	case isr&hal.PipPERR != 0:
		m.Freeze(p)
		m.regs.Store(hal.PipeERR(n), 0)
		m.regs.Store(hal.PipeICR(n), hal.PipPERR)
		return pkg.TransferStatusError, nil
	case isr&hal.PipNAKED != 0:
		m.regs.Store(hal.PipeICR(n), hal.PipNAKED)
		return pkg.TransferStatusNAK, nil
	}
	return pkg.TransferStatusPending, nil
}

// PollComplete reports whether tok has completed on the pipe.
func (m *Pipes) PollComplete(p *Pipe, tok hal.Token) (bool, error) {
	st, err := m.Poll(p, tok)
	return st == pkg.TransferStatusSuccess, err
}

// Read copies received data out of the pipe's FIFO window and releases the
// bank. At most the hardware byte count is copied.
func (m *Pipes) Read(p *Pipe, buf []byte) (int, error) {
	n := p.index
	count := int(hal.Field(m.regs.Load(hal.PipeISR(n)), hal.PipPBYCTMask, hal.PipPBYCTPos))
	k := min(len(buf), count)
	if _, err := m.regs.FIFO().ReadAt(buf[:k], hal.FIFOOffset(n)); err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("pipe %d read: %w", n, err)
	}
	m.regs.Store(hal.PipeIDR(n), hal.PipFIFOCON)
	return k, nil
}

// Write copies one packet into the pipe's FIFO window.
func (m *Pipes) Write(p *Pipe, buf []byte) error {
	if len(buf) > int(p.cfg.MaxPacketSize) {
		return fmt.Errorf("pipe %d write of %d bytes: %w", p.index, len(buf), pkg.ErrInvalidSize)
	}
	if len(buf) == 0 {
		return nil
	}
	if _, err := m.regs.FIFO().WriteAt(buf, hal.FIFOOffset(p.index)); err != nil {
		return fmt.Errorf("pipe %d write: %w", p.index, err)
	}
	return nil
}
