// Package host drives the SAM3X UOTGHS USB controller as a USB host.
//
// The host detects attachment, powers and enumerates a device, allocates
// hardware pipes to its endpoints and runs control, bulk and interrupt
// transactions on them. Enumerated devices are offered to class drivers
// implementing [Driver].
//
// # Execution contexts
//
// Work is split between two contexts:
//
//   - The closure returned by [Host.InterruptHandler] runs in interrupt
//     context. It acknowledges status bits, re-arms interrupt sources and
//     pushes a coarse state request into the event channel.
//   - [Host.Task] runs in task context. Each call applies at most one
//     request, then enumerates the attached device or ticks the drivers.
//
// Nothing is locked. The event channel is the only state shared between
// the two contexts.
//
// # Registers
//
// The controller is reached through [hal.Registers]. The
// [github.com/ardnew/uotghs/host/hal/sim] package models the controller and
// attached devices in software for tests and the scenario runner.
//
// # Example
//
//	ctrl := sim.New()
//	h := host.New(ctrl, nil, nil)
//	ctrl.OnInterrupt(h.InterruptHandler())
//	h.SetFullSpeed(ctrl)
//	if err := h.Reset(); err != nil {
//		log.Fatal(err)
//	}
//	for {
//		h.Task(drivers)
//	}
package host
