// Package sim provides a software model of the UOTGHS controller for testing
// and simulation.
//
// [Controller] implements [hal.Registers] and [hal.Clock]. It keeps a register
// file with the access semantics of the real peripheral (write-one-to-clear,
// write-one-to-set, enable/disable mask pairs), the dual-port RAM pipe
// windows, and a single root port to which one [Device] can be attached.
//
// Interrupts are delivered synchronously: when an enabled interrupt source
// latches, the handler registered with [Controller.OnInterrupt] runs before
// the triggering call returns, the way a real interrupt preempts the main
// loop. Nested delivery is suppressed while the handler runs.
//
// # Transactions
//
// Unfreezing an enabled pipe (PFREEZEC in HSTPIPIDR) arms a transaction. Each
// read of that pipe's HSTPIPISR performs one bus attempt against the attached
// device: a NAK latches NAKEDI and leaves the transaction armed, an ACK
// latches the token's completion flag, a STALL latches RXSTALLDI. A pipe
// addressed to a device address nobody answers to latches PERRI.
//
// # Example
//
//	ctrl := sim.New()
//	h := host.New(ctrl, nil, nil)
//	ctrl.OnInterrupt(h.InterruptHandler())
//	h.SetFullSpeed(ctrl)
//	h.Reset()
//
//	ctrl.Attach(sim.NewDevice(hal.SpeedFull, sim.DeviceDescriptor(0x1209, 0x0001, 0, 64)))
//	for i := 0; i < 4; i++ {
//	    h.Task(drivers)
//	}
package sim
