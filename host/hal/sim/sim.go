package sim

import (
	"io"

	"github.com/ardnew/uotghs/host/hal"
	"github.com/ardnew/uotghs/pkg"
)

// Reset values of the general control and status registers.
const (
	ctrlReset = hal.CtrlFRZCLK | hal.CtrlUIDE | hal.CtrlUIMOD
	srReset   = hal.SrID
)

// Controller is a software UOTGHS. The zero value is not usable; call New.
type Controller struct {
	regs [hal.RegisterSpan / 4]uint32
	fifo []byte

	irq    func()
	inIRQ  bool
	masked bool

	clock     bool
	clockMode hal.ClockMode
	supply    bool

	dev       *Device
	connected bool
	armed     [hal.NumPipes]bool

	rejectCfg [hal.NumPipes]bool

	// Interrupts counts handler invocations.
	Interrupts int
}

// New returns a controller in its power-on state with Vbus supply available
// and nothing attached.
func New() *Controller {
	c := &Controller{
		fifo:   make([]byte, hal.NumPipes*hal.FIFOStride),
		supply: true,
	}
	c.regs[hal.CTRL/4] = ctrlReset
	c.regs[hal.SR/4] = srReset
	return c
}

// OnInterrupt registers the UOTGHS interrupt handler.
func (c *Controller) OnInterrupt(fn func()) { c.irq = fn }

// Critical implements hal.Critical.
func (c *Controller) Critical(fn func()) {
	c.masked = true
	fn()
	c.masked = false
	c.raise()
}

// EnableUSBClock starts the UTMI clock.
func (c *Controller) EnableUSBClock(mode hal.ClockMode) {
	c.clock = true
	c.clockMode = mode
	pkg.LogDebug(pkg.ComponentSim, "usb clock enabled", "mode", mode)
	c.sync()
}

// ClockMode returns the mode of the last EnableUSBClock call.
func (c *Controller) ClockMode() hal.ClockMode { return c.clockMode }

// StopClock makes the UTMI clock unusable, so CLKUSABLE never sets.
func (c *Controller) StopClock() {
	c.clock = false
	c.regs[hal.SR/4] &^= hal.SrCLKUSABLE
}

// RejectConfig makes the next allocations of pipe n fail CFGOK.
func (c *Controller) RejectConfig(n uint8, reject bool) { c.rejectCfg[n] = reject }

// Attach connects d to the root port. A device already attached is
// detached first.
func (c *Controller) Attach(d *Device) {
	if c.dev != nil {
		c.Detach()
	}
	c.dev = d
	d.busReset()
	pkg.LogDebug(pkg.ComponentSim, "attach", "speed", d.Speed)
	c.sync()
	c.raise()
}

// Detach disconnects the attached device, if any.
func (c *Controller) Detach() {
	if c.dev == nil {
		return
	}
	c.dev = nil
	pkg.LogDebug(pkg.ComponentSim, "detach")
	if c.connected {
		c.connected = false
		c.regs[hal.HSTISR/4] |= hal.HstDDISC
		c.raise()
	}
}

// Device returns the attached device, or nil.
func (c *Controller) Device() *Device { return c.dev }

// SetVbus turns the external Vbus supply on or off.
func (c *Controller) SetVbus(on bool) {
	c.supply = on
	pkg.LogDebug(pkg.ComponentSim, "vbus supply", "on", on)
	c.sync()
	c.raise()
}

// VbusError reports a Vbus overcurrent or undervoltage fault.
func (c *Controller) VbusError() {
	c.regs[hal.SR/4] |= hal.SrVBERRI
	c.raise()
}

// Load implements hal.Registers.
func (c *Controller) Load(reg hal.Register) uint32 {
	if n, ok := pipeIndex(reg, hal.HSTPIPISR0); ok && c.armed[n] {
		c.transact(n)
	}
	return c.regs[reg/4]
}

// Store implements hal.Registers.
func (c *Controller) Store(reg hal.Register, v uint32) {
	r := &c.regs
	switch {
	case reg == hal.CTRL:
		old := r[reg/4]
		r[reg/4] = v
		if old&hal.CtrlUSBE != 0 && v&hal.CtrlUSBE == 0 {
			c.disable()
		}
	case reg == hal.SR, reg == hal.HSTISR, reg == hal.HSTIMR:
		// Read-only.
	case reg == hal.SCR:
		r[hal.SR/4] &^= v &^ (hal.SrID | hal.SrVBUS | hal.SRSpeedMask | hal.SrCLKUSABLE)
	case reg == hal.SFR:
		r[hal.SR/4] |= v &^ (hal.SrID | hal.SrVBUS | hal.SRSpeedMask | hal.SrCLKUSABLE)
	case reg == hal.HSTICR:
		r[hal.HSTISR/4] &^= v
	case reg == hal.HSTIFR:
		r[hal.HSTISR/4] |= v
	case reg == hal.HSTIER:
		r[hal.HSTIMR/4] |= v
	case reg == hal.HSTIDR:
		r[hal.HSTIMR/4] &^= v
	case reg == hal.HSTCTRL:
		r[reg/4] = v
		if v&hal.HstctrlRESET != 0 {
			c.busReset()
		}
	case reg == hal.HSTPIP:
		r[reg/4] = v
		for n := uint8(0); n < hal.NumPipes; n++ {
			if v&hal.PipeEnableBit(n) == 0 {
				c.armed[n] = false
			}
			if v&hal.PipeResetBit(n) != 0 {
				c.resetPipe(n)
			}
		}
	default:
		if n, ok := pipeIndex(reg, hal.HSTPIPCFG0); ok {
			r[reg/4] = v
			c.configure(n)
		} else if n, ok := pipeIndex(reg, hal.HSTPIPICR0); ok {
			r[hal.PipeISR(n)/4] &^= v & hal.PipAllFlags
		} else if n, ok := pipeIndex(reg, hal.HSTPIPIFR0); ok {
			r[hal.PipeISR(n)/4] |= v & hal.PipAllFlags
		} else if n, ok := pipeIndex(reg, hal.HSTPIPIER0); ok {
			c.pipeEnable(n, v)
		} else if n, ok := pipeIndex(reg, hal.HSTPIPIDR0); ok {
			c.pipeDisable(n, v)
		} else if _, ok := pipeIndex(reg, hal.HSTPIPISR0); ok {
			// Read-only.
		} else if _, ok := pipeIndex(reg, hal.HSTPIPIMR0); ok {
			// Read-only.
		} else if reg < hal.RegisterSpan {
			r[reg/4] = v
		}
	}
	c.sync()
	c.raise()
}

// FIFO implements hal.Registers.
func (c *Controller) FIFO() hal.Memory { return fifo{c} }

// PipeState is a decoded snapshot of one pipe.
type PipeState struct {
	Enabled   bool
	Allocated bool
	ConfigOK  bool
	Frozen    bool
	Token     hal.Token
	Type      hal.TransferType
	Endpoint  uint8
	Address   uint8
	Size      int
	Banks     int
	Interval  uint8
	Toggle    uint8
}

// Pipe returns the decoded state of pipe n.
func (c *Controller) Pipe(n uint8) PipeState {
	cfg := c.regs[hal.PipeCfg(n)/4]
	isr := c.regs[hal.PipeISR(n)/4]
	areg, shift := hal.PipeAddr(n)
	return PipeState{
		Enabled:   c.regs[hal.HSTPIP/4]&hal.PipeEnableBit(n) != 0,
		Allocated: cfg&hal.CfgALLOC != 0,
		ConfigOK:  isr&hal.PipCFGOK != 0,
		Frozen:    c.regs[hal.PipeIMR(n)/4]&hal.PipPFREEZE != 0,
		Token:     hal.Token(hal.Field(cfg, hal.CfgPTOKEN, hal.CfgPTOKENPos)),
		Type:      hal.TransferType(hal.Field(cfg, hal.CfgPTYPEMask, hal.CfgPTYPEPos)),
		Endpoint:  uint8(hal.Field(cfg, hal.CfgPEPNUM, hal.CfgPEPNUMPos)),
		Address:   uint8(c.regs[areg/4]>>shift) & hal.PipeAddrMask,
		Size:      pipeSize(cfg),
		Banks:     pipeBanks(cfg),
		Interval:  uint8(hal.Field(cfg, hal.CfgINTFRQ, hal.CfgINTFRQPos)),
		Toggle:    uint8(hal.Field(isr, hal.PipDTSEQMask, hal.PipDTSEQPos)),
	}
}

// pipeIndex reports whether reg lies in the per-pipe array starting at base.
func pipeIndex(reg, base hal.Register) (uint8, bool) {
	if reg < base || reg >= base+hal.NumPipes*4 || (reg-base)%4 != 0 {
		return 0, false
	}
	return uint8((reg - base) / 4), true
}

func pipeSize(cfg uint32) int {
	return 8 << hal.Field(cfg, hal.CfgPSIZEMask, hal.CfgPSIZEPos)
}

func pipeBanks(cfg uint32) int {
	return int(hal.Field(cfg, hal.CfgPBKMask, hal.CfgPBKPos)) + 1
}

// disable returns the controller to its reset state when USBE is cleared.
// CTRL keeps its value and the external Vbus level is preserved.
func (c *Controller) disable() {
	ctrl := c.regs[hal.CTRL/4]
	sr := c.regs[hal.SR/4] & (hal.SrID | hal.SrVBUS)
	clear(c.regs[:])
	c.regs[hal.CTRL/4] = ctrl
	c.regs[hal.SR/4] = sr | srReset
	c.armed = [hal.NumPipes]bool{}
	c.connected = false
	pkg.LogDebug(pkg.ComponentSim, "controller disabled")
}

// sync derives the status bits that follow from external conditions.
func (c *Controller) sync() {
	ctrl := c.regs[hal.CTRL/4]
	sr := &c.regs[hal.SR/4]
	enabled := ctrl&hal.CtrlUSBE != 0

	if enabled && c.clock {
		*sr |= hal.SrCLKUSABLE
	} else {
		*sr &^= hal.SrCLKUSABLE
	}

	vbus := enabled && c.supply && *sr&hal.SrVBUSRQ != 0
	if had := *sr&hal.SrVBUS != 0; had != vbus {
		if vbus {
			*sr |= hal.SrVBUS
		} else {
			*sr &^= hal.SrVBUS
		}
		*sr |= hal.SrVBUSTI
	}

	if !vbus && c.connected {
		c.connected = false
		c.regs[hal.HSTISR/4] |= hal.HstDDISC
	}
	// A device is seen once Vbus is up and its transition acknowledged.
	if c.dev != nil && !c.connected && vbus && *sr&hal.SrVBUSTI == 0 && ctrl&hal.CtrlFRZCLK == 0 {
		c.connected = true
		speed := c.dev.Speed
		spd := hal.Field(c.regs[hal.DEVCTRL/4], hal.DevctrlSpdconfMask, hal.DevctrlSpdconfPos)
		if speed == hal.SpeedHigh && (spd == hal.SpdconfLowPower || spd == hal.SpdconfForcedFS) {
			speed = hal.SpeedFull
		}
		*sr = *sr&^hal.SRSpeedMask | hal.StatusFromSpeed(speed)
		c.regs[hal.HSTISR/4] |= hal.HstDCONN
	}
}

// pending reports whether an enabled interrupt source has latched.
func (c *Controller) pending() bool {
	ctrl := c.regs[hal.CTRL/4]
	sr := c.regs[hal.SR/4]
	if c.regs[hal.HSTISR/4]&c.regs[hal.HSTIMR/4]&hal.HstAllISR != 0 {
		return true
	}
	return (sr&hal.SrVBUSTI != 0 && ctrl&hal.CtrlVBUSTE != 0) ||
		(sr&hal.SrVBERRI != 0 && ctrl&hal.CtrlVBERRE != 0)
}

// maxReentry bounds back-to-back handler runs for sources the handler
// leaves pending.
const maxReentry = 16

// raise runs the interrupt handler while a source is pending.
func (c *Controller) raise() {
	if c.irq == nil || c.inIRQ || c.masked {
		return
	}
	for i := 0; i < maxReentry && c.pending(); i++ {
		c.inIRQ = true
		c.Interrupts++
		c.irq()
		c.inIRQ = false
	}
}

func (c *Controller) busReset() {
	if c.connected {
		c.dev.busReset()
	}
	c.regs[hal.HSTCTRL/4] &^= hal.HstctrlRESET
	c.regs[hal.HSTISR/4] |= hal.HstRST
}

func (c *Controller) resetPipe(n uint8) {
	c.armed[n] = false
	c.regs[hal.PipeISR(n)/4] &= hal.PipCFGOK
	c.regs[hal.PipeIMR(n)/4] = 0
}

// configure evaluates CFGOK for pipe n after its HSTPIPCFG was written.
func (c *Controller) configure(n uint8) {
	isr := &c.regs[hal.PipeISR(n)/4]
	cfg := c.regs[hal.PipeCfg(n)/4]
	if cfg&hal.CfgALLOC == 0 {
		*isr &^= hal.PipCFGOK
		return
	}
	ok := !c.rejectCfg[n] && hal.Field(cfg, hal.CfgPBKMask, hal.CfgPBKPos) < 3
	used := 0
	for i := uint8(0); i < hal.NumPipes; i++ {
		ci := c.regs[hal.PipeCfg(i)/4]
		if ci&hal.CfgALLOC != 0 {
			used += pipeSize(ci) * pipeBanks(ci)
		}
	}
	if used > hal.DPRAMSize {
		ok = false
	}
	if ok {
		*isr |= hal.PipCFGOK
	} else {
		*isr &^= hal.PipCFGOK
	}
}

func (c *Controller) pipeEnable(n uint8, v uint32) {
	imr := &c.regs[hal.PipeIMR(n)/4]
	if v&hal.PipRSTDT != 0 {
		c.regs[hal.PipeISR(n)/4] &^= hal.PipDTSEQMask
		v &^= hal.PipRSTDT
	}
	*imr |= v
	if v&hal.PipPFREEZE != 0 {
		c.armed[n] = false
	}
}

func (c *Controller) pipeDisable(n uint8, v uint32) {
	imr := &c.regs[hal.PipeIMR(n)/4]
	*imr &^= v
	if v&hal.PipFIFOCON != 0 && c.Pipe(n).Token == hal.TokenIn {
		// Bank released after readout.
		c.regs[hal.PipeISR(n)/4] &^= hal.PipPBYCTMask
	}
	if v&hal.PipPFREEZE != 0 && c.regs[hal.HSTPIP/4]&hal.PipeEnableBit(n) != 0 {
		c.armed[n] = true
	}
}

// transact performs one bus attempt on pipe n.
func (c *Controller) transact(n uint8) {
	if !c.connected || c.regs[hal.CTRL/4]&hal.CtrlFRZCLK != 0 {
		return
	}
	isr := &c.regs[hal.PipeISR(n)/4]
	imr := &c.regs[hal.PipeIMR(n)/4]
	st := c.Pipe(n)
	if st.Address != c.dev.address {
		*isr |= hal.PipPERR
		c.regs[hal.PipeERR(n)/4] |= 1 << 3 // TIMEOUT
		c.armed[n] = false
		*imr |= hal.PipPFREEZE
		return
	}

	off := hal.FIFOOffset(n)
	count := int(hal.Field(*isr, hal.PipPBYCTMask, hal.PipPBYCTPos))
	toggle := func() {
		*isr ^= 1 << hal.PipDTSEQPos
	}

	switch st.Token {
	case hal.TokenSetup:
		c.dev.Setup(c.fifo[off : off+int64(count)])
		*isr = *isr&^(hal.PipPBYCTMask|hal.PipDTSEQMask) | hal.PipTXSTP | 1<<hal.PipDTSEQPos
		c.armed[n] = false
	case hal.TokenIn:
		data, hs := c.dev.In(st.Endpoint)
		switch hs {
		case NAK:
			*isr |= hal.PipNAKED
			return
		case STALL:
			*isr |= hal.PipRXSTALLD
			c.armed[n] = false
			return
		}
		if len(data) > st.Size {
			*isr |= hal.PipOVERF
			data = data[:st.Size]
		}
		copy(c.fifo[off:], data)
		*isr = *isr&^hal.PipPBYCTMask | uint32(len(data))<<hal.PipPBYCTPos | hal.PipRXIN
		if len(data) < st.Size {
			*isr |= hal.PipSHORTPACKET
		}
		toggle()
		*imr |= hal.PipPFREEZE
		c.armed[n] = false
	case hal.TokenOut:
		switch c.dev.Out(st.Endpoint, c.fifo[off:off+int64(count)]) {
		case NAK:
			*isr |= hal.PipNAKED
			return
		case STALL:
			*isr |= hal.PipRXSTALLD
			c.armed[n] = false
			return
		}
		*isr = *isr&^hal.PipPBYCTMask | hal.PipTXOUT
		toggle()
		c.armed[n] = false
	}
}

// fifo exposes the pipe windows of the dual-port RAM. Writes extend the
// owning pipe's byte count.
type fifo struct{ c *Controller }

func (f fifo) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(f.c.fifo)) {
		return 0, io.EOF
	}
	n := copy(p, f.c.fifo[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f fifo) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > int64(len(f.c.fifo)) {
		return 0, io.ErrShortWrite
	}
	copy(f.c.fifo[off:], p)
	pipe := uint8(off / hal.FIFOStride)
	end := uint32(off%hal.FIFOStride) + uint32(len(p))
	isr := &f.c.regs[hal.PipeISR(pipe)/4]
	if end > hal.Field(*isr, hal.PipPBYCTMask, hal.PipPBYCTPos) {
		*isr = *isr&^hal.PipPBYCTMask | (end<<hal.PipPBYCTPos)&hal.PipPBYCTMask
	}
	return len(p), nil
}
