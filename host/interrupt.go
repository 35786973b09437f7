package host

import "github.com/ardnew/uotghs/host/hal"

// General status error flags squelched by the handler.
const squelchFlags = hal.SrVBERRI | hal.SrBCERRI | hal.SrHNPERRI | hal.SrSTOI

// InterruptHandler returns the UOTGHS interrupt service routine. The
// embedding application registers it with the interrupt controller.
//
// The handler only acknowledges and re-arms interrupt sources and pushes
// host-state requests into the event channel. It never logs, allocates or
// starts a transaction.
func (h *Host) InterruptHandler() func() {
	r := h.regs
	ev := &h.events
	spin := h.cfg.SpinLimit
	return func() {
		imask := r.Load(hal.HSTIMR)
		iflags := r.Load(hal.HSTISR)

		if iflags&hal.HstDDISC != 0 && imask&hal.HstDDISC != 0 {
			r.Store(hal.HSTICR, hal.HstDDISC)
			r.Store(hal.HSTIDR, hal.HstDDISC)
			// Stop a bus reset interrupted by the disconnect.
			hal.Clear(r, hal.HSTCTRL, hal.HstctrlRESET)
			r.Store(hal.HSTICR, hal.HstDCONN)
			r.Store(hal.HSTIER, hal.HstDCONN)
			ev.Push(StateDetached)
		}

		if iflags&hal.HstDCONN != 0 && imask&hal.HstDCONN != 0 {
			r.Store(hal.HSTICR, hal.HstDCONN)
			r.Store(hal.HSTIDR, hal.HstDCONN)
			r.Store(hal.HSTICR, hal.HstDDISC)
			r.Store(hal.HSTIER, hal.HstDDISC)
			ev.Push(StateConfiguring)
		}

		gflags := r.Load(hal.SR)
		if gflags&hal.SrVBERRI != 0 {
			r.Store(hal.SCR, hal.SrVBERRI)
			ev.Push(StateNoVbus)
		}

		hal.Wait(r, hal.SR, hal.SrCLKUSABLE, true, spin)
		hal.Clear(r, hal.CTRL, hal.CtrlFRZCLK)

		if gflags&hal.SrVBUSTI != 0 {
			r.Store(hal.SCR, hal.SrVBUSTI)
			if r.Load(hal.SR)&hal.SrVBUS != 0 {
				ev.Push(StateDetached)
			} else {
				ev.Push(StateNoVbus)
			}
		}

		if r.Load(hal.CTRL)&(hal.CtrlVBERRE|hal.CtrlBCERRE|hal.CtrlHNPERRE|hal.CtrlSTOE) != 0 {
			r.Store(hal.SCR, squelchFlags)
		}
	}
}
