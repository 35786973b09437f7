package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	yaml "gopkg.in/yaml.v3"

	"github.com/ardnew/uotghs/host/hal"
	"github.com/ardnew/uotghs/host/hal/sim"
)

// Scenario is a scripted run of the host against simulated devices.
type Scenario struct {
	Name    string                 `yaml:"name"`
	Devices map[string]DeviceModel `yaml:"devices"`
	Steps   []Step                 `yaml:"steps"`
}

// DeviceModel describes a simulated device.
type DeviceModel struct {
	Speed          Speed            `yaml:"speed"`
	Vendor         uint16           `yaml:"vendor"`
	Product        uint16           `yaml:"product"`
	Class          uint8            `yaml:"class"`
	MaxPacketSize0 uint8            `yaml:"maxPacketSize0"`
	ControlNAKs    int              `yaml:"controlNAKs"`
	ProductIndex   uint8            `yaml:"productIndex"`
	Interface      InterfaceModel   `yaml:"interface"`
	Endpoints      []EndpointModel  `yaml:"endpoints"`
	Strings        map[uint8]string `yaml:"strings"`
}

// InterfaceModel is the class triple of the device's only interface.
type InterfaceModel struct {
	Class    uint8 `yaml:"class"`
	SubClass uint8 `yaml:"subClass"`
	Protocol uint8 `yaml:"protocol"`
}

// EndpointModel describes a non-control endpoint and the packets it holds.
type EndpointModel struct {
	Address       uint8        `yaml:"address"`
	Type          TransferType `yaml:"type"`
	MaxPacketSize uint16       `yaml:"maxPacketSize"`
	Interval      uint8        `yaml:"interval"`
	NAKs          int          `yaml:"naks"`
	Stalled       bool         `yaml:"stalled"`
	Queue         []Packet     `yaml:"queue"`
}

// Step is one scenario action followed by a number of host tasks.
type Step struct {
	Action Action `yaml:"action"`
	Device string `yaml:"device"`
	On     bool   `yaml:"on"`
	Tasks  int    `yaml:"tasks"`
	Expect string `yaml:"expect"`
}

// Action names what a step does to the simulated bus.
type Action string

// Step actions.
const (
	ActionVbus      Action = "vbus"
	ActionVbusError Action = "vbus-error"
	ActionAttach    Action = "attach"
	ActionDetach    Action = "detach"
	ActionPoll      Action = "poll"
)

func (a *Action) UnmarshalYAML(value *yaml.Node) error {
	switch Action(strings.ToLower(value.Value)) {
	case ActionVbus, ActionVbusError, ActionAttach, ActionDetach, ActionPoll:
		*a = Action(strings.ToLower(value.Value))
		return nil
	}
	return fmt.Errorf("line %d: unknown action %q", value.Line, value.Value)
}

// Speed is a device speed written as low, full or high.
type Speed hal.Speed

func (s *Speed) UnmarshalYAML(value *yaml.Node) error {
	switch strings.ToLower(value.Value) {
	case "low":
		*s = Speed(hal.SpeedLow)
	case "full", "":
		*s = Speed(hal.SpeedFull)
	case "high":
		*s = Speed(hal.SpeedHigh)
	default:
		return fmt.Errorf("line %d: unknown speed %q", value.Line, value.Value)
	}
	return nil
}

// TransferType is an endpoint type written as bulk or interrupt.
type TransferType hal.TransferType

func (t *TransferType) UnmarshalYAML(value *yaml.Node) error {
	switch strings.ToLower(value.Value) {
	case "bulk":
		*t = TransferType(hal.TransferBulk)
	case "interrupt", "":
		*t = TransferType(hal.TransferInterrupt)
	default:
		return fmt.Errorf("line %d: unsupported endpoint type %q", value.Line, value.Value)
	}
	return nil
}

// Packet is a payload written as a hex string.
type Packet []byte

func (p *Packet) UnmarshalYAML(value *yaml.Node) error {
	b, err := hex.DecodeString(strings.ReplaceAll(value.Value, " ", ""))
	if err != nil {
		return fmt.Errorf("line %d: packet: %w", value.Line, err)
	}
	*p = b
	return nil
}

// LoadScenario decodes and validates a scenario.
func LoadScenario(r io.Reader) (*Scenario, error) {
	var sc Scenario
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	if err := sc.validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (sc *Scenario) validate() error {
	if len(sc.Steps) == 0 {
		return errors.New("scenario has no steps")
	}
	for name, m := range sc.Devices {
		for _, ep := range m.Endpoints {
			if ep.Address&0x0F == 0 {
				return fmt.Errorf("device %s: endpoint 0x%02x is the control endpoint", name, ep.Address)
			}
			if ep.MaxPacketSize == 0 {
				return fmt.Errorf("device %s: endpoint 0x%02x has no packet size", name, ep.Address)
			}
		}
	}
	for i, st := range sc.Steps {
		if st.Action == ActionAttach {
			if _, ok := sc.Devices[st.Device]; !ok {
				return fmt.Errorf("step %d: unknown device %q", i+1, st.Device)
			}
		}
		if st.Tasks < 0 {
			return fmt.Errorf("step %d: negative task count", i+1)
		}
	}
	return nil
}

// Build returns a fresh simulated device for the model.
func (m DeviceModel) Build() *sim.Device {
	speed := hal.Speed(m.Speed)
	if speed == hal.SpeedUnknown {
		speed = hal.SpeedFull
	}
	mps0 := m.MaxPacketSize0
	if mps0 == 0 {
		mps0 = uint8(min(speed.MaxPacketSize0(), 64))
	}

	eps := make([]*sim.Endpoint, 0, len(m.Endpoints))
	for _, em := range m.Endpoints {
		ep := &sim.Endpoint{
			Address:       em.Address,
			Type:          hal.TransferType(em.Type),
			MaxPacketSize: em.MaxPacketSize,
			Interval:      em.Interval,
			NAKs:          em.NAKs,
			Stalled:       em.Stalled,
		}
		for _, p := range em.Queue {
			ep.Queue(p)
		}
		eps = append(eps, ep)
	}

	desc := sim.DeviceDescriptor(m.Vendor, m.Product, m.Class, mps0)
	desc[15] = m.ProductIndex
	dev := sim.NewDevice(speed, desc)
	dev.Configure(sim.ConfigurationDescriptor(m.Interface.Class, m.Interface.SubClass, m.Interface.Protocol, eps...), eps...)
	dev.ControlNAKs = m.ControlNAKs
	for i, s := range m.Strings {
		dev.Strings[i] = s
	}
	return dev
}
