package host

import (
	"fmt"
	"time"

	"periph.io/x/periph/conn/gpio"

	"github.com/ardnew/uotghs/host/hal"
	"github.com/ardnew/uotghs/pkg"
)

// DefaultSpinLimit bounds every busy-wait on a hardware status bit.
const DefaultSpinLimit = 1 << 16

// Config holds host tuning parameters.
type Config struct {
	// NAKLimit is the number of NAKs a token may receive before the
	// transaction fails with pkg.ErrNAK.
	NAKLimit int

	// SpinLimit bounds status polling loops. Zero polls forever.
	SpinLimit int

	// Millis returns the millisecond tick passed to drivers. When nil the
	// time since New is used.
	Millis func() uint32
}

// DefaultConfig returns the default host configuration.
func DefaultConfig() Config {
	return Config{
		NAKLimit:  NAKLimit,
		SpinLimit: DefaultSpinLimit,
	}
}

// Stats counts host activity since New.
type Stats struct {
	Events              int    // requests popped from the event channel
	Stale               int    // requests discarded as stale snapshots
	Overwritten         uint32 // requests lost to a full event channel
	Enumerations        int
	EnumerationFailures int
	NAKExhaustions      int
	Stalls              int
	Timeouts            int
	PermanentRemovals   int
}

// Host drives the UOTGHS controller in host mode.
//
// Everything but the closure returned by InterruptHandler runs in task
// context and must not be called concurrently.
type Host struct {
	regs    hal.Registers
	id      gpio.PinIO
	vbof    gpio.PinIO
	cfg     Config
	events  Events
	pipes   *Pipes
	devices DeviceTable
	orphans []orphan
	state   State
	stats   Stats
	start   time.Time
}

// New returns a host over regs with the default configuration. The ID and
// VBOF pins are held for the application; either may be nil.
func New(regs hal.Registers, id, vbof gpio.PinIO) *Host {
	return NewWithConfig(regs, id, vbof, DefaultConfig())
}

// NewWithConfig returns a host over regs with cfg.
func NewWithConfig(regs hal.Registers, id, vbof gpio.PinIO, cfg Config) *Host {
	if cfg.NAKLimit <= 0 {
		cfg.NAKLimit = NAKLimit
	}
	h := &Host{
		regs:  regs,
		id:    id,
		vbof:  vbof,
		cfg:   cfg,
		pipes: NewPipes(regs, cfg.SpinLimit),
		state: StateNoVbus,
		start: time.Now(),
	}
	pkg.LogDebug(pkg.ComponentHost, "host created",
		"id", pinName(id),
		"vbof", pinName(vbof),
		"nak_limit", cfg.NAKLimit,
		"spin_limit", cfg.SpinLimit)
	return h
}

// orphan is a device dropped outside Task whose owner has not been told yet.
type orphan struct {
	address uint8
	owner   int
}

func pinName(p gpio.PinIO) string {
	if p == nil {
		return "none"
	}
	return p.Name()
}

// Reset re-initializes the controller in host mode and requests Vbus. Every
// device and pipe is dropped and the host returns to NoVbus. Owners of the
// dropped devices are told on the next Task.
func (h *Host) Reset() error {
	var err error
	if c, ok := h.regs.(hal.Critical); ok {
		c.Critical(func() { err = h.reset() })
	} else {
		err = h.reset()
	}
	return err
}

func (h *Host) reset() error {
	r := h.regs
	spdconf := r.Load(hal.DEVCTRL) & hal.DevctrlSpdconfMask

	for _, addr := range h.devices.Addresses() {
		if owner, ok := h.devices.Owner(addr); ok {
			h.orphans = append(h.orphans, orphan{address: addr, owner: owner})
		}
		h.devices.Remove(addr)
	}

	hal.Clear(r, hal.CTRL, hal.CtrlUSBE)
	hal.Set(r, hal.CTRL, hal.CtrlUSBE)
	h.events.Flush()
	hal.Modify(r, hal.DEVCTRL, hal.DevctrlSpdconfMask, spdconf)
	h.pipes.resetAll()

	hal.Clear(r, hal.CTRL, hal.CtrlUIDE|hal.CtrlUIMOD)
	hal.Set(r, hal.CTRL, hal.CtrlVBUSPO|hal.CtrlOTGPADE)

	hal.Clear(r, hal.CTRL, hal.CtrlFRZCLK)
	if !hal.Wait(r, hal.SR, hal.SrCLKUSABLE, true, h.cfg.SpinLimit) {
		pkg.LogError(pkg.ComponentHost, "USB clock not usable")
		return fmt.Errorf("clock usable: %w", pkg.ErrTimeout)
	}

	h.init()
	pkg.LogInfo(pkg.ComponentHost, "controller reset",
		"spdconf", hal.Field(spdconf, hal.DevctrlSpdconfMask, hal.DevctrlSpdconfPos))
	return nil
}

// init arms the Vbus and connection interrupts and requests Vbus. The clock
// is frozen until the interrupt handler sees it usable.
func (h *Host) init() {
	r := h.regs
	r.Store(hal.SCR, hal.SrIDTI|hal.SrVBUSTI|hal.SrSRPI|hal.SrVBERRI|
		hal.SrBCERRI|hal.SrROLEEXI|hal.SrHNPERRI|hal.SrSTOI)
	r.Store(hal.HSTICR, hal.HstAllISR)

	hal.Set(r, hal.CTRL, hal.CtrlVBUSHWC|hal.CtrlVBUSTE|hal.CtrlVBERRE)
	r.Store(hal.SFR, hal.SrVBUSRQ)
	// Force a Vbus transition so the handler samples the current level.
	r.Store(hal.SFR, hal.SrVBUSTI)
	r.Store(hal.HSTIER, hal.HstDCONN)

	hal.Set(r, hal.CTRL, hal.CtrlFRZCLK)
	h.state = StateNoVbus
}

// SetHighSpeed selects normal (high speed capable) operation and starts the
// UTMI clock.
func (h *Host) SetHighSpeed(clock hal.Clock) {
	h.setSpeed(hal.SpdconfNormal, hal.ClockHighSpeed, clock)
}

// SetFullSpeed selects low power (full speed only) operation and starts the
// 48 MHz USB clock.
func (h *Host) SetFullSpeed(clock hal.Clock) {
	h.setSpeed(hal.SpdconfLowPower, hal.ClockLowPower, clock)
}

func (h *Host) setSpeed(spdconf uint32, mode hal.ClockMode, clock hal.Clock) {
	hal.Modify(h.regs, hal.DEVCTRL, hal.DevctrlSpdconfMask, spdconf<<hal.DevctrlSpdconfPos)
	if clock != nil {
		clock.EnableUSBClock(mode)
	}
	pkg.LogDebug(pkg.ComponentHost, "speed configured", "clock", mode)
}

// Task runs one iteration of the host: it applies at most one request from
// the event channel, then enumerates an attached device or ticks drivers.
//
// drivers is borrowed for the duration of the call.
func (h *Host) Task(drivers []Driver) {
	for _, o := range h.orphans {
		if d := driverAt(drivers, o.owner); d != nil {
			d.RemoveDevice(o.address)
		}
	}
	h.orphans = h.orphans[:0]

	if req, stale, ok := h.events.Pop(); ok {
		h.stats.Events++
		h.stats.Stale += stale
		for _, e := range requestEvents(h.state, req, stale) {
			h.apply(e, drivers)
		}
	}

	switch h.state {
	case StateConfiguring:
		h.stats.Enumerations++
		if err := h.enumerate(drivers); err != nil {
			h.stats.EnumerationFailures++
			pkg.LogWarn(pkg.ComponentEnum, "enumeration failed", "error", err)
			h.apply(EventEnumerationFailed, drivers)
			return
		}
		h.apply(EventEnumerationSucceeded, drivers)
	case StateRunning:
		h.tick(drivers)
	}
}

// apply moves the state machine on e. Leaving Attached tears down every
// device.
func (h *Host) apply(e Event, drivers []Driver) {
	next := Transition(h.state, e)
	if next == h.state {
		return
	}
	if h.state.Attached() && !next.Attached() {
		h.teardown(drivers)
	}
	pkg.LogInfo(pkg.ComponentHost, "state", "event", e, "from", h.state, "to", next)
	h.state = next
}

func (h *Host) tick(drivers []Driver) {
	millis := h.millis()
	for i, d := range drivers {
		err := d.Tick(millis, h)
		if err == nil {
			continue
		}
		addr, permanent := IsPermanent(err)
		if !permanent {
			pkg.LogWarn(pkg.ComponentDriver, "driver error", "driver", i, "error", err)
			continue
		}
		if o, ok := h.devices.Owner(addr); !ok || o != i {
			pkg.LogWarn(pkg.ComponentDriver, "permanent error for device not owned by driver",
				"driver", i, "address", addr, "error", err)
			continue
		}
		pkg.LogWarn(pkg.ComponentDriver, "removing device", "address", addr, "error", err)
		d.RemoveDevice(addr)
		h.stats.PermanentRemovals++
		h.pipes.FreeAddress(addr)
		h.devices.Remove(addr)
	}
}

// teardown removes every device: its owner in drivers is told, its pipes
// are freed and its slot released.
func (h *Host) teardown(drivers []Driver) {
	for _, addr := range h.devices.Addresses() {
		if o, ok := h.devices.Owner(addr); ok {
			if d := driverAt(drivers, o); d != nil {
				d.RemoveDevice(addr)
			}
		}
		freed := h.pipes.FreeAddress(addr)
		h.devices.Remove(addr)
		pkg.LogDebug(pkg.ComponentHost, "device removed", "address", addr, "pipes", freed)
	}
}

// driverAt returns drivers[i], or nil when i is out of range.
func driverAt(drivers []Driver, i int) Driver {
	if i < 0 || i >= len(drivers) {
		return nil
	}
	return drivers[i]
}

func (h *Host) millis() uint32 {
	if h.cfg.Millis != nil {
		return h.cfg.Millis()
	}
	return uint32(time.Since(h.start).Milliseconds())
}

// State returns the current host state.
func (h *Host) State() State { return h.state }

// Stats returns the activity counters.
func (h *Host) Stats() Stats {
	s := h.stats
	s.Overwritten = h.events.Overwritten()
	return s
}

// Pins returns the ID and VBOF pins the host was created with.
func (h *Host) Pins() (id, vbof gpio.PinIO) { return h.id, h.vbof }

// Devices returns the device table.
func (h *Host) Devices() *DeviceTable { return &h.devices }

// Pipes returns the pipe manager.
func (h *Host) Pipes() *Pipes { return h.pipes }
