package main

import (
	"fmt"
	"io"
	"strings"

	"periph.io/x/periph/conn/gpio/gpiotest"

	"github.com/ardnew/uotghs/host"
	"github.com/ardnew/uotghs/host/hal/sim"
	"github.com/ardnew/uotghs/pkg"
	"github.com/ardnew/uotghs/pkg/usbid"
)

// Runner plays a scenario against a host on a simulated controller.
type Runner struct {
	scenario *Scenario
	ctrl     *sim.Controller
	host     *host.Host
	monitor  *Monitor
	out      io.Writer
}

// NewRunner returns a reset host ready to play sc.
func NewRunner(sc *Scenario, cfg host.Config, highSpeed bool, names *usbid.Database, out io.Writer) (*Runner, error) {
	ctrl := sim.New()
	h := host.NewWithConfig(ctrl,
		&gpiotest.Pin{N: "ID", Num: 1},
		&gpiotest.Pin{N: "VBOF", Num: 2},
		cfg)
	ctrl.OnInterrupt(h.InterruptHandler())
	if highSpeed {
		h.SetHighSpeed(ctrl)
	} else {
		h.SetFullSpeed(ctrl)
	}
	if err := h.Reset(); err != nil {
		return nil, fmt.Errorf("reset: %w", err)
	}
	return &Runner{
		scenario: sc,
		ctrl:     ctrl,
		host:     h,
		monitor:  NewMonitor(out, names),
		out:      out,
	}, nil
}

// Run plays every step. It stops at the first step whose expected state
// does not match.
func (r *Runner) Run() error {
	drivers := []host.Driver{r.monitor}
	for i, st := range r.scenario.Steps {
		pkg.LogDebug(pkg.ComponentSim, "step", "n", i+1, "action", st.Action, "device", st.Device)
		switch st.Action {
		case ActionVbus:
			r.ctrl.SetVbus(st.On)
		case ActionVbusError:
			r.ctrl.VbusError()
		case ActionAttach:
			r.ctrl.Attach(r.scenario.Devices[st.Device].Build())
		case ActionDetach:
			r.ctrl.Detach()
		case ActionPoll:
		}

		tasks := st.Tasks
		if tasks == 0 {
			tasks = 1
		}
		for n := 0; n < tasks; n++ {
			r.host.Task(drivers)
		}

		state := r.host.State()
		fmt.Fprintf(r.out, "step %d: %s -> %s\n", i+1, st.Action, state)
		if st.Expect != "" && !strings.EqualFold(st.Expect, state.String()) {
			return fmt.Errorf("step %d: state %s, expected %s", i+1, state, st.Expect)
		}
	}
	return nil
}

// Host returns the host under test.
func (r *Runner) Host() *host.Host { return r.host }

// Monitor returns the monitor driver.
func (r *Runner) Monitor() *Monitor { return r.monitor }
