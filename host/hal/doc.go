// Package hal defines the hardware boundary of the UOTGHS host driver.
//
// The driver never touches memory-mapped I/O directly. It consumes the
// controller through the [Registers] interface: 32-bit loads and stores by
// register offset, plus the dual-port RAM used as per-pipe transfer buffers
// exposed as a [Memory]. A TinyGo build backs these with volatile accesses at
// the peripheral base address; tests and the scenario runner back them with
// the software model in [github.com/ardnew/uotghs/host/hal/sim].
//
// # Register map
//
// Offsets and bit positions follow the SAM3X UOTGHS register map. Registers
// that come in per-pipe banks (HSTPIPCFG, HSTPIPISR, ...) are addressed with
// helpers such as [PipeCfg] and [PipeISR]. Write-one-to-clear and
// write-one-to-set registers (HSTICR, HSTIER, SCR, SFR, HSTPIPICR, ...) must be
// written with [Registers.Store] and a mask of the bits to act on; the
// read-modify-write helpers [Set], [Clear] and [Modify] are for plain
// read/write registers only.
//
// # Shared memory
//
// Each pipe owns a window of [FIFOStride] bytes starting at [FIFOOffset]. The
// controller advances its byte counter (PBYCT) as the window is written and
// reports the received byte count the same way after an IN transaction.
//
// # Clock
//
// The [Clock] interface is the only call made into the clock tree: the
// driver asks for the USB clock in [ClockHighSpeed] (UTMI 480 MHz) or
// [ClockLowPower] (48 MHz) mode.
package hal
